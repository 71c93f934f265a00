package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/velleman/k8090/frame"
	"github.com/velleman/k8090/mock"
)

// Mock adapts an in-process mock.Card to Port: Write decodes complete
// 7-byte command frames out of whatever was handed to it (mirroring the
// engine's own rxBuf resync logic, since a real serial link delivers
// arbitrary chunk boundaries) and feeds them to the card; Read drains the
// card's delayed, chunked response stream.
type Mock struct {
	card     *mock.Card
	cfg      Config
	rxBuf    []byte
	leftover []byte

	// closed crosses goroutines: Close runs on the engine's run goroutine
	// while Read is polled from its readLoop.
	mu     sync.Mutex
	closed bool
}

// NewMock constructs a Mock port wrapping a freshly seeded Card, configured
// with the card's mandatory serial settings.
func NewMock(seed int64) *Mock {
	return &Mock{card: mock.New(seed), cfg: DefaultConfig(MockPortName)}
}

// SetConfig replaces the settings the next Open will validate against. The
// simulated card, like the real one, only talks 19200-8-N-1.
func (m *Mock) SetConfig(cfg Config) {
	cfg.applyDefaults()
	m.cfg = cfg
}

// Card returns the underlying mock card, so callers holding a Mock can seed
// jumper state or inspect it directly.
func (m *Mock) Card() *mock.Card { return m.card }

// Open checks the configured serial settings against the card's mandatory
// 19200-8-N-1; the mock is always "present" otherwise.
func (m *Mock) Open() error {
	if !m.cfg.mandatory() {
		return fmt.Errorf("transport: mock requires 19200-8-N-1, got %d-%d-%s-%d",
			m.cfg.Baud, m.cfg.DataBits, m.cfg.Parity, m.cfg.StopBits)
	}
	m.mu.Lock()
	m.closed = false
	m.mu.Unlock()
	return nil
}

// Close marks the port closed; the next Read returns a terminal error, the
// same way a real closed serial handle would.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Mock) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Write feeds p to the card's frame decoder, accepting any chunking.
func (m *Mock) Write(p []byte) (int, error) {
	m.rxBuf = append(m.rxBuf, p...)
	for len(m.rxBuf) >= frame.Len {
		f, err := frame.Decode(m.rxBuf[:frame.Len])
		if err != nil {
			m.rxBuf = m.rxBuf[1:]
			continue
		}
		m.rxBuf = m.rxBuf[frame.Len:]
		m.card.Handle(f)
	}
	return len(p), nil
}

// Read drains the card's response stream, serving from a leftover buffer
// first when a previous chunk was larger than the caller's buffer.
func (m *Mock) Read(p []byte) (int, error) {
	for len(m.leftover) == 0 {
		if m.isClosed() {
			return 0, errClosed
		}
		select {
		case chunk, ok := <-m.card.Out():
			if !ok {
				return 0, errClosed
			}
			m.leftover = chunk
		case <-time.After(50 * time.Millisecond):
			// Mirrors a real port's read-timeout behavior instead of
			// blocking the caller's loop forever; the engine's readLoop
			// just retries on a zero-length, nil-error read.
			return 0, nil
		}
	}
	n := copy(p, m.leftover)
	m.leftover = m.leftover[n:]
	return n, nil
}
