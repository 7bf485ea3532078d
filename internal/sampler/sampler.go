// Package sampler drives the estimation loop.
//
// The sampler cycles over the configured phase units back to back,
// merging each estimate into the unit's running reading, and flushes
// one record per phase to the sink at every save-period boundary.
// Estimation dominates the cycle time, so the loop needs no ticker;
// the period boundary is checked between cycles.
//
// Storage failures never stop the loop: the flush is logged, counted
// and retried with fresh data at the next boundary.
package sampler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/wattmon/internal/energy"
	"github.com/xtxerr/wattmon/internal/errors"
	"github.com/xtxerr/wattmon/internal/logging"
	"github.com/xtxerr/wattmon/internal/shard"
)

var log = logging.Component("sampler")

// Sink receives one record array per save period.
type Sink interface {
	Save(records []shard.Record) error
}

// Sampler owns the phase units and the estimation loop.
//
// Start and Stop are safe to call from any goroutine; the units
// themselves are touched only by the loop goroutine.
type Sampler struct {
	units      []*energy.PhaseUnit
	params     energy.Params
	savePeriod time.Duration
	sink       Sink

	shutdown chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool

	estimates     atomic.Int64
	flushes       atomic.Int64
	saveErrors    atomic.Int64
	storageFaults atomic.Int64
}

// New creates a sampler over the given phase units.
func New(units []*energy.PhaseUnit, params energy.Params, savePeriod time.Duration, sink Sink) *Sampler {
	return &Sampler{
		units:      units,
		params:     params,
		savePeriod: savePeriod,
		sink:       sink,
		shutdown:   make(chan struct{}),
	}
}

// Start launches the estimation loop. Only the first call has effect.
func (s *Sampler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go s.run()

	log.Info("sampler started",
		"phases", len(s.units),
		"save_period", s.savePeriod,
		"crossings", s.params.CrossingTarget)
}

// Stop terminates the loop and flushes the partial period so its
// accumulated energy is not lost. Blocks until the loop has exited.
// Only the first call after Start has effect.
func (s *Sampler) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}

	close(s.shutdown)
	s.wg.Wait()
	log.Info("sampler stopped")
}

// Stats returns loop counters: completed estimations, flushed periods
// and failed saves.
func (s *Sampler) Stats() (estimates, flushes, saveErrors int64) {
	return s.estimates.Load(), s.flushes.Load(), s.saveErrors.Load()
}

// StorageFaults returns how many failed saves were storage-layer
// errors. Repeated faults are the driver's device health signal, e.g.
// a full or failing flash filesystem.
func (s *Sampler) StorageFaults() int64 {
	return s.storageFaults.Load()
}

func (s *Sampler) run() {
	defer s.wg.Done()

	deadline := time.Now().Add(s.savePeriod)
	for {
		select {
		case <-s.shutdown:
			s.flush()
			return
		default:
		}

		s.cycle()

		if !time.Now().Before(deadline) {
			s.flush()
			deadline = time.Now().Add(s.savePeriod)
		}
	}
}

// cycle estimates every phase once.
func (s *Sampler) cycle() {
	for _, u := range s.units {
		u.Estimate(s.params)
		s.estimates.Add(1)
	}
}

// flush hands the merged readings to the sink and resets the units.
// The units are reset even when the save fails: a period's figures are
// scaled to the period length and must not bleed into the next one.
func (s *Sampler) flush() {
	records := make([]shard.Record, 0, len(s.units))
	for _, u := range s.units {
		if u.Reading.IsZero() {
			continue
		}
		records = append(records, shard.Record{Phase: u.ID, Reading: u.Reading})
		u.Reset()
	}
	if len(records) == 0 {
		return
	}

	if err := s.sink.Save(records); err != nil {
		s.saveErrors.Add(1)
		if errors.IsStorage(err) {
			s.storageFaults.Add(1)
			log.Error("storage fault", "records", len(records), "error", err)
		} else {
			log.Error("save failed", "records", len(records), "error", err)
		}
		return
	}

	s.flushes.Add(1)
	log.Debug("period flushed", "records", len(records))
}
