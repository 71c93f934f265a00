package transport

import (
	"sync"
	"time"
)

// Facade selects between a real serial port and the in-process mock by
// port name, caching the last-applied configuration across backend
// switches and serializing access with a single mutex. Nothing is
// persisted to disk; settings live in process memory only.
type Facade struct {
	mu   sync.Mutex
	cfg  Config
	port Port

	// mockSeed lets callers pin the mock's randomness for reproducible
	// runs; while it is zero, each Open of the mock seeds from the wall
	// clock.
	mockSeed int64
}

// NewFacade constructs a Facade with no backend selected yet.
func NewFacade() *Facade {
	return &Facade{}
}

// SetMockSeed pins the seed used the next time the mock backend is
// selected (tests use this for reproducible runs).
func (fa *Facade) SetMockSeed(seed int64) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.mockSeed = seed
}

// SetPortName updates the configured port name; it takes effect on the
// next Open. Passing MockPortName selects the in-process mock.
func (fa *Facade) SetPortName(name string) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.cfg.PortName = name
}

// SetConfig replaces the cached serial settings wholesale; they are
// re-applied to whichever backend the next Open instantiates.
func (fa *Facade) SetConfig(cfg Config) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.cfg = cfg
}

// Open instantiates and opens the backend matching the currently
// configured port name (real serial device, or the mock for
// MockPortName), re-applying the cached configuration.
func (fa *Facade) Open() error {
	fa.mu.Lock()
	cfg := fa.cfg
	cfg.applyDefaults()
	var port Port
	if cfg.PortName == MockPortName {
		seed := fa.mockSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		m := NewMock(seed)
		m.SetConfig(cfg)
		port = m
	} else {
		port = NewReal(cfg)
	}
	fa.mu.Unlock()

	if err := port.Open(); err != nil {
		return err
	}
	fa.mu.Lock()
	fa.port = port
	fa.mu.Unlock()
	return nil
}

// Close closes the active backend, if any.
func (fa *Facade) Close() error {
	fa.mu.Lock()
	port := fa.port
	fa.port = nil
	fa.mu.Unlock()
	if port == nil {
		return nil
	}
	return port.Close()
}

// Read implements Port by forwarding to the active backend.
func (fa *Facade) Read(p []byte) (int, error) {
	fa.mu.Lock()
	port := fa.port
	fa.mu.Unlock()
	if port == nil {
		return 0, errClosed
	}
	return port.Read(p)
}

// Write implements Port by forwarding to the active backend.
func (fa *Facade) Write(p []byte) (int, error) {
	fa.mu.Lock()
	port := fa.port
	fa.mu.Unlock()
	if port == nil {
		return 0, errClosed
	}
	return port.Write(p)
}

// IsMock reports whether the currently configured port name selects the
// mock backend.
func (fa *Facade) IsMock() bool {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.cfg.PortName == MockPortName
}
