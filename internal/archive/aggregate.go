// Package archive compacts rotated-away shards into time-bucketed
// Parquet aggregates and reclaims the shard files afterwards.
package archive

import (
	"math"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/wattmon/internal/shard"
)

// PhaseAggregate maintains running statistics for one phase within one
// time bucket. Real power feeds a DDSketch so the archive keeps load
// percentiles, not just the mean.
type PhaseAggregate struct {
	mu sync.Mutex

	phase uint16

	bucketStart int64 // Unix milliseconds
	bucketEnd   int64

	count int64

	realSum float64
	realMin float64
	realMax float64

	apparentSum float64
	irmsSum     float64

	vrmsSum float64
	vrmsMin float64
	vrmsMax float64

	energyKWh float64

	firstTs int64
	lastTs  int64

	sketch *ddsketch.DDSketch
}

// NewPhaseAggregate creates an empty aggregate for the given phase and
// bucket. A non-positive accuracy disables percentile tracking.
func NewPhaseAggregate(phase uint16, bucketStart, bucketEnd int64, accuracy float64) *PhaseAggregate {
	agg := &PhaseAggregate{
		phase:       phase,
		bucketStart: bucketStart,
		bucketEnd:   bucketEnd,
		realMin:     math.MaxFloat64,
		realMax:     -math.MaxFloat64,
		vrmsMin:     math.MaxFloat64,
		vrmsMax:     -math.MaxFloat64,
	}

	if accuracy > 0 {
		sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
		if err == nil {
			agg.sketch = sketch
		}
	}

	return agg
}

// Add folds one record into the aggregate. Energy is summed; the other
// quantities keep running statistics.
func (a *PhaseAggregate) Add(rec shard.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++

	a.realSum += rec.RealPower
	if rec.RealPower < a.realMin {
		a.realMin = rec.RealPower
	}
	if rec.RealPower > a.realMax {
		a.realMax = rec.RealPower
	}

	a.apparentSum += rec.ApparentPower
	a.irmsSum += rec.IRMS

	a.vrmsSum += rec.VRMS
	if rec.VRMS < a.vrmsMin {
		a.vrmsMin = rec.VRMS
	}
	if rec.VRMS > a.vrmsMax {
		a.vrmsMax = rec.VRMS
	}

	a.energyKWh += rec.EnergyKWh

	ts := int64(rec.Timestamp)
	if a.firstTs == 0 || ts < a.firstTs {
		a.firstTs = ts
	}
	if ts > a.lastTs {
		a.lastTs = ts
	}

	if a.sketch != nil {
		a.sketch.Add(rec.RealPower)
	}
}

// Count returns the number of records added.
func (a *PhaseAggregate) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Row returns the aggregate as a Parquet row.
func (a *PhaseAggregate) Row() Row {
	a.mu.Lock()
	defer a.mu.Unlock()

	row := Row{
		Phase:       int32(a.phase),
		BucketStart: a.bucketStart,
		BucketEnd:   a.bucketEnd,
		Count:       a.count,
		EnergyKWh:   a.energyKWh,
		FirstTs:     a.firstTs,
		LastTs:      a.lastTs,
	}

	if a.count > 0 {
		n := float64(a.count)
		row.RealAvg = a.realSum / n
		row.RealMin = a.realMin
		row.RealMax = a.realMax
		row.ApparentAvg = a.apparentSum / n
		row.IRMSAvg = a.irmsSum / n
		row.VRMSAvg = a.vrmsSum / n
		row.VRMSMin = a.vrmsMin
		row.VRMSMax = a.vrmsMax
	}

	if a.sketch != nil && a.count > 0 {
		row.RealP50, _ = a.sketch.GetValueAtQuantile(0.50)
		row.RealP90, _ = a.sketch.GetValueAtQuantile(0.90)
		row.RealP95, _ = a.sketch.GetValueAtQuantile(0.95)
		row.RealP99, _ = a.sketch.GetValueAtQuantile(0.99)
	}

	return row
}

// bucketKey identifies one aggregate within a compaction run.
type bucketKey struct {
	phase    uint16
	bucketMs int64
}

// aggregateRecords groups records into (phase, bucket) aggregates.
func aggregateRecords(records []shard.Record, bucket time.Duration, accuracy float64) map[bucketKey]*PhaseAggregate {
	groups := make(map[bucketKey]*PhaseAggregate)
	bucketMs := bucket.Milliseconds()

	for _, rec := range records {
		start := (int64(rec.Timestamp) / bucketMs) * bucketMs
		key := bucketKey{phase: rec.Phase, bucketMs: start}

		agg, ok := groups[key]
		if !ok {
			agg = NewPhaseAggregate(rec.Phase, start, start+bucketMs, accuracy)
			groups[key] = agg
		}
		agg.Add(rec)
	}

	return groups
}
