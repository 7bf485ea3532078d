// Package adc defines the sampleable-channel capability used by the
// energy estimator.
//
// Hardware binding is deliberately outside this package: a Channel is
// anything that can produce one raw sample on demand, and the mapping
// from physical ADC inputs to phase units is a configuration table, not
// compiled-in pin literals. The daemon wires real converter channels;
// tests and bench rigs wire the simulator from sim.go.
package adc

import (
	"fmt"
	"sync"

	"github.com/xtxerr/wattmon/internal/errors"
)

// Channel produces one raw unsigned sample in [0, MaxADC] per call.
// A failed read is transient by contract; the estimator reuses the
// previous sample rather than aborting the measurement window.
type Channel interface {
	Read() (uint16, error)
}

// ChannelFunc adapts a plain function to the Channel interface.
type ChannelFunc func() (uint16, error)

// Read implements Channel.
func (f ChannelFunc) Read() (uint16, error) {
	return f()
}

// Registry maps physical channel names to Channel implementations.
// The daemon populates it from its hardware bindings; the config layer
// resolves phase-unit channel names against it at startup.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Register binds a channel name. Re-registering a name replaces the
// previous binding.
func (r *Registry) Register(name string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[name] = ch
}

// Lookup resolves a channel name.
func (r *Registry) Lookup(name string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[name]
	if !ok {
		return nil, fmt.Errorf("channel %q: %w", name, errors.ErrNoSuchChannel)
	}
	return ch, nil
}

// Names returns all registered channel names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}
