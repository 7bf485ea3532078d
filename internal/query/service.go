// Package query answers historical queries over the Parquet archive
// and folds in the not-yet-archived shard data.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/wattmon/internal/archive"
	"github.com/xtxerr/wattmon/internal/config"
	"github.com/xtxerr/wattmon/internal/errors"
	"github.com/xtxerr/wattmon/internal/logging"
	"github.com/xtxerr/wattmon/internal/shard"
)

var log = logging.Component("query")

// Service runs DuckDB over the archive directory and decodes live
// shards for the recent tail the archive has not consumed yet.
type Service struct {
	mu sync.RWMutex

	cfg        config.QueryConfig
	archiveDir string
	store      *shard.Store
	db         *sql.DB
	closed     bool

	stats Stats
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// RangeQuery selects aggregates for a time range. Phase 0 matches all
// phases.
type RangeQuery struct {
	Phase     uint16
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// New creates a query service. The store may be nil when only the
// archive should be visible.
func New(cfg config.QueryConfig, archiveDir string, store *shard.Store) (*Service, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if cfg.MemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", cfg.MemoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Service{
		cfg:        cfg,
		archiveDir: archiveDir,
		store:      store,
		db:         db,
	}, nil
}

// Close closes the service. Subsequent queries fail with ErrNotRunning.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// QueryRange returns archived aggregates plus one synthetic aggregate
// per phase built from the unarchived shard tail, ordered archive
// first.
func (s *Service) QueryRange(ctx context.Context, q RangeQuery) ([]archive.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.ErrNotRunning
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	results, err := s.queryParquet(ctx, q)
	if err != nil {
		s.stats.Errors++
		return nil, fmt.Errorf("query parquet: %w", err)
	}

	live, err := s.queryShards(q)
	if err != nil {
		// The archive answer is still useful when the tail is
		// unreadable; degrade instead of failing.
		s.stats.Errors++
		log.Warn("live shard query failed", "error", err)
	}
	results = append(results, live...)

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))
	return results, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout.Duration())
	}
	return context.WithCancel(ctx)
}

// queryParquet reads matching aggregates with DuckDB. An archive with
// no files yet is an empty result; everything else is a real fault and
// propagates.
func (s *Service) queryParquet(ctx context.Context, q RangeQuery) ([]archive.Row, error) {
	pattern := filepath.Join(s.archiveDir, "*.parquet")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob archive: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	query := `
		SELECT
			phase, bucket_start, bucket_end, count,
			real_avg, real_min, real_max,
			real_p50, real_p90, real_p95, real_p99,
			apparent_avg, irms_avg,
			vrms_avg, vrms_min, vrms_max,
			energy_kwh, first_ts, last_ts
		FROM read_parquet($1)
		WHERE bucket_start >= $2
		  AND bucket_end <= $3
		  AND ($4 = 0 OR phase = $4)
		ORDER BY bucket_start, phase
	`

	rows, err := s.db.QueryContext(ctx, query,
		pattern,
		q.StartTime.UnixMilli(),
		q.EndTime.UnixMilli(),
		int32(q.Phase),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrap(errors.ErrQueryTimeout, "archive query")
		}
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]archive.Row, error) {
	var results []archive.Row

	for rows.Next() {
		var r archive.Row
		var p50, p90, p95, p99 sql.NullFloat64

		err := rows.Scan(
			&r.Phase, &r.BucketStart, &r.BucketEnd, &r.Count,
			&r.RealAvg, &r.RealMin, &r.RealMax,
			&p50, &p90, &p95, &p99,
			&r.ApparentAvg, &r.IRMSAvg,
			&r.VRMSAvg, &r.VRMSMin, &r.VRMSMax,
			&r.EnergyKWh, &r.FirstTs, &r.LastTs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		r.RealP50 = p50.Float64
		r.RealP90 = p90.Float64
		r.RealP95 = p95.Float64
		r.RealP99 = p99.Float64

		results = append(results, r)
	}

	return results, rows.Err()
}

// queryShards aggregates the unarchived shard records that fall in the
// query window into one row per phase.
func (s *Service) queryShards(q RangeQuery) ([]archive.Row, error) {
	if s.store == nil {
		return nil, nil
	}

	startMs := q.StartTime.UnixMilli()
	endMs := q.EndTime.UnixMilli()

	type acc struct {
		count                     int64
		realSum, realMin, realMax float64
		apparentSum, irmsSum      float64
		vrmsSum, vrmsMin, vrmsMax float64
		energy                    float64
		firstTs, lastTs           int64
	}
	groups := make(map[uint16]*acc)

	for _, id := range s.store.Known() {
		records, err := shard.Read(s.store.Dir(), id)
		if err != nil {
			return nil, fmt.Errorf("shard %d: %w", id, err)
		}
		for _, rec := range records {
			ts := int64(rec.Timestamp)
			if ts < startMs || ts > endMs {
				continue
			}
			if q.Phase != 0 && rec.Phase != q.Phase {
				continue
			}

			a := groups[rec.Phase]
			if a == nil {
				a = &acc{
					realMin: rec.RealPower, realMax: rec.RealPower,
					vrmsMin: rec.VRMS, vrmsMax: rec.VRMS,
					firstTs: ts, lastTs: ts,
				}
				groups[rec.Phase] = a
			}

			a.count++
			a.realSum += rec.RealPower
			a.realMin = min(a.realMin, rec.RealPower)
			a.realMax = max(a.realMax, rec.RealPower)
			a.apparentSum += rec.ApparentPower
			a.irmsSum += rec.IRMS
			a.vrmsSum += rec.VRMS
			a.vrmsMin = min(a.vrmsMin, rec.VRMS)
			a.vrmsMax = max(a.vrmsMax, rec.VRMS)
			a.energy += rec.EnergyKWh
			a.firstTs = min(a.firstTs, ts)
			a.lastTs = max(a.lastTs, ts)
		}
	}

	var results []archive.Row
	for phase, a := range groups {
		n := float64(a.count)
		results = append(results, archive.Row{
			Phase:       int32(phase),
			BucketStart: a.firstTs,
			BucketEnd:   a.lastTs,
			Count:       a.count,
			RealAvg:     a.realSum / n,
			RealMin:     a.realMin,
			RealMax:     a.realMax,
			ApparentAvg: a.apparentSum / n,
			IRMSAvg:     a.irmsSum / n,
			VRMSAvg:     a.vrmsSum / n,
			VRMSMin:     a.vrmsMin,
			VRMSMax:     a.vrmsMax,
			EnergyKWh:   a.energy,
			FirstTs:     a.firstTs,
			LastTs:      a.lastTs,
		})
	}
	return results, nil
}

// ExecuteSQL runs an ad-hoc DuckDB query. The archive directory is
// reachable via read_parquet; intended for the operator shell.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.ErrNotRunning
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.stats.Errors++
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrap(errors.ErrQueryTimeout, "execute query")
		}
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)

		if s.cfg.MaxRows > 0 && len(results) >= s.cfg.MaxRows {
			break
		}
	}

	if err := rows.Err(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrap(errors.ErrQueryTimeout, "execute query")
		}
		return nil, err
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))
	return results, nil
}

// ArchivePattern returns the read_parquet glob for the archive, for
// callers composing their own SQL.
func (s *Service) ArchivePattern() string {
	return filepath.Join(s.archiveDir, "*.parquet")
}

// Stats returns service counters.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
