// ABOUTME: Driver registry
// ABOUTME: Ordered bootstrap table with AUDIODRIVER-aware selection
package driver

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry is an ordered table of driver bootstraps. Earlier entries are
// preferred when no driver is requested by name.
type Registry struct {
	drivers []Bootstrap

	mtx *sync.Mutex
}

// NewRegistry creates a registry holding drivers in the given order
func NewRegistry(drivers ...Bootstrap) *Registry {
	r := &Registry{
		mtx: &sync.Mutex{},
	}
	for _, d := range drivers {
		if err := r.Register(d); err != nil {
			slog.Warn("skipping driver", "driver", d.Name(), "err", err)
		}
	}
	return r
}

// Register appends a driver to the table
func (r *Registry) Register(d Bootstrap) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for _, existing := range r.drivers {
		if existing.Name() == d.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateDriver, d.Name())
		}
	}
	r.drivers = append(r.drivers, d)
	return nil
}

// Drivers returns the registered drivers in preference order
func (r *Registry) Drivers() []Bootstrap {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	out := make([]Bootstrap, len(r.drivers))
	copy(out, r.drivers)
	return out
}

// Lookup finds a driver by name
func (r *Registry) Lookup(name string) (Bootstrap, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for _, d := range r.drivers {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

// Select picks the driver to use.
//
// A non-empty name (or, failing that, the AUDIODRIVER variable) selects that
// driver, which must be available. Otherwise the first available driver in
// registration order wins.
func (r *Registry) Select(name string, getenv func(string) string) (Bootstrap, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	if name == "" {
		name = getenv(EnvDriver)
	}

	if name != "" {
		d, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown driver %q", ErrNoDriver, name)
		}
		if !d.Available(withDriver(getenv, name)) {
			return nil, fmt.Errorf("%w: %s", ErrDriverUnavailable, name)
		}
		return d, nil
	}

	for _, d := range r.Drivers() {
		if d.Available(getenv) {
			slog.Debug("selected audio driver", "driver", d.Name())
			return d, nil
		}
	}
	return nil, ErrNoDriver
}

// withDriver overrides the AUDIODRIVER lookup so that drivers which only
// run on explicit request see the name chosen by the caller.
func withDriver(getenv func(string) string, name string) func(string) string {
	return func(key string) string {
		if key == EnvDriver {
			return name
		}
		return getenv(key)
	}
}
