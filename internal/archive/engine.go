package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/wattmon/internal/logging"
	"github.com/xtxerr/wattmon/internal/shard"
)

var log = logging.Component("archive")

// Options configures the archive engine.
type Options struct {
	// Dir is the output directory for Parquet files.
	Dir string

	// Schedule is the cron expression for compaction runs.
	Schedule string

	// Bucket is the aggregation bucket width.
	Bucket time.Duration

	// PercentileAccuracy is the DDSketch relative accuracy; zero
	// disables percentiles.
	PercentileAccuracy float64

	// Compression is the Parquet codec name.
	Compression string

	// Workers bounds concurrent shard reads. Defaults to 2.
	Workers int
}

// Engine compacts rotated-away shards into Parquet aggregates.
//
// Only shards below the active id are touched; the active shard keeps
// receiving appends and is left alone until it rotates away. Source
// shards are deleted only after the Parquet file is safely closed, so
// a crash mid-run duplicates data at worst, never loses it.
type Engine struct {
	store *shard.Store
	opts  Options

	cron    *cron.Cron
	entry   cron.EntryID
	running atomic.Bool

	// One compaction run at a time.
	runMu sync.Mutex

	runs          atomic.Int64
	runErrors     atomic.Int64
	shardsRead    atomic.Int64
	rowsWritten   atomic.Int64
	shardsDeleted atomic.Int64
}

// New creates an archive engine over the given store.
func New(store *shard.Store, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	return &Engine{
		store: store,
		opts:  opts,
	}
}

// Start schedules periodic compaction runs.
func (e *Engine) Start() error {
	if e.running.Load() {
		return fmt.Errorf("engine already running")
	}

	e.cron = cron.New()
	entry, err := e.cron.AddFunc(e.opts.Schedule, func() {
		if _, err := e.RunOnce(context.Background()); err != nil {
			e.runErrors.Add(1)
			log.Error("compaction run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", e.opts.Schedule, err)
	}

	e.entry = entry
	e.running.Store(true)
	e.cron.Start()

	log.Info("archive engine started",
		"schedule", e.opts.Schedule,
		"bucket", e.opts.Bucket,
		"dir", e.opts.Dir)
	return nil
}

// Stop cancels the schedule and waits for an in-flight run.
func (e *Engine) Stop() {
	if !e.running.Load() {
		return
	}
	e.running.Store(false)

	// Stop returns a context that completes when in-flight jobs do.
	<-e.cron.Stop().Done()

	log.Info("archive engine stopped")
}

// RunOnce compacts all currently archivable shards and returns how many
// were consumed. It is safe to call directly, including while the
// schedule is active.
func (e *Engine) RunOnce(ctx context.Context) (int, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	ids := e.archivable()
	if len(ids) == 0 {
		return 0, nil
	}

	records, err := e.readShards(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		// Empty placeholder shards carry nothing worth keeping.
		e.deleteShards(ids)
		return len(ids), nil
	}

	groups := aggregateRecords(records, e.opts.Bucket, e.opts.PercentileAccuracy)
	rows := sortedRows(groups)

	path := e.outputPath(rows)
	if err := e.writeRows(path, rows); err != nil {
		return 0, err
	}

	e.runs.Add(1)
	e.rowsWritten.Add(int64(len(rows)))
	e.deleteShards(ids)

	log.Info("compaction run complete",
		"shards", len(ids),
		"records", len(records),
		"rows", len(rows),
		"file", path)
	return len(ids), nil
}

// archivable returns the rotated-away shard ids, oldest first.
func (e *Engine) archivable() []int {
	active := e.store.Active()

	var ids []int
	for _, id := range e.store.Known() {
		if id < active {
			ids = append(ids, id)
		}
	}
	return ids
}

// readShards decodes the given shards concurrently. A corrupt shard
// fails the whole run; nothing has been deleted at this point.
func (e *Engine) readShards(ctx context.Context, ids []int) ([]shard.Record, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	perShard := make([][]shard.Record, len(ids))
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			recs, err := shard.Read(e.store.Dir(), id)
			if err != nil {
				return fmt.Errorf("shard %d: %w", id, err)
			}
			perShard[i] = recs
			e.shardsRead.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records []shard.Record
	for _, recs := range perShard {
		records = append(records, recs...)
	}
	return records, nil
}

func (e *Engine) writeRows(path string, rows []Row) error {
	w, err := NewWriter(path, e.opts.Compression)
	if err != nil {
		return err
	}
	if err := w.Write(rows); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (e *Engine) deleteShards(ids []int) {
	for _, id := range ids {
		if err := e.store.Remove(id); err != nil {
			log.Warn("failed to remove archived shard", "shard", id, "error", err)
			continue
		}
		e.shardsDeleted.Add(1)
	}
}

// outputPath names the file after the earliest bucket it contains.
// Files never collide across runs because shard ids are consumed
// monotonically; a second run over the same hour gets a suffix from
// its first new bucket or falls back to wall clock.
func (e *Engine) outputPath(rows []Row) string {
	start := time.Now().UTC()
	if len(rows) > 0 {
		start = time.UnixMilli(rows[0].BucketStart).UTC()
	}
	name := fmt.Sprintf("%s_%d.parquet", start.Format("2006-01-02_15-04"), time.Now().UnixMilli())
	return filepath.Join(e.opts.Dir, name)
}

// sortedRows flattens the aggregates ordered by bucket, then phase.
func sortedRows(groups map[bucketKey]*PhaseAggregate) []Row {
	rows := make([]Row, 0, len(groups))
	for _, agg := range groups {
		rows = append(rows, agg.Row())
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BucketStart != rows[j].BucketStart {
			return rows[i].BucketStart < rows[j].BucketStart
		}
		return rows[i].Phase < rows[j].Phase
	})
	return rows
}

// Stats returns engine counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Running:       e.running.Load(),
		Runs:          e.runs.Load(),
		RunErrors:     e.runErrors.Load(),
		ShardsRead:    e.shardsRead.Load(),
		RowsWritten:   e.rowsWritten.Load(),
		ShardsDeleted: e.shardsDeleted.Load(),
	}
}

// EngineStats holds engine counters.
type EngineStats struct {
	Running       bool
	Runs          int64
	RunErrors     int64
	ShardsRead    int64
	RowsWritten   int64
	ShardsDeleted int64
}
