// Package engine implements the K8090 protocol state machine: in-flight
// command tracking, the pacing and failure timers, response dispatch, and
// event emission. The engine is single-threaded cooperative: one driver
// goroutine owns the queue, the state machine, and both timers; callers
// interact through Enqueue, which is a non-blocking channel send safe to
// call from any goroutine.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/velleman/k8090/command"
	"github.com/velleman/k8090/queue"
	"github.com/velleman/k8090/relay"
)

// Engine drives one K8090 card over a Port.
type Engine struct {
	cfg    Config
	events Events

	// queue is already internally synchronized; the engine's own mutex
	// below guards state/port/inFlight, which are touched from the run
	// goroutine, from Connect (before run starts), and read by
	// State/IsConnected/Enqueue.
	queue *queue.Concurrent

	mu       sync.Mutex
	state    State
	port     Port
	inFlight *command.Command
	seeding  bool

	failureCount int

	// pacingTimer/failureTimer/pacingC/failureC are private to the run
	// goroutine: only it ever reads or writes them, so they need no lock.
	pacingTimer  *time.Timer
	failureTimer *time.Timer
	pacingC      <-chan time.Time
	failureC     <-chan time.Time
	rxBuf        []byte

	cmdCh  chan command.Command
	stopCh chan struct{}
	rxCh   chan []byte
	doneCh chan struct{} // closed by run() on exit, for either Disconnect() or a failure

	runWG sync.WaitGroup
}

// New constructs an Engine in the Disconnected state. cfg's zero fields are
// replaced with DefaultConfig's values.
func New(events Events, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:    cfg,
		events: events,
		queue:  queue.NewConcurrent(),
		state:  Disconnected,
		cmdCh:  make(chan command.Command, 64),
		stopCh: make(chan struct{}),
		rxCh:   make(chan []byte, 16),
	}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsConnected reports whether the engine is anywhere other than
// Disconnected.
func (e *Engine) IsConnected() bool {
	return e.State().connected()
}

// PendingCommandCount returns the number of pending commands for id.
func (e *Engine) PendingCommandCount(id command.ID) int {
	return len(e.queue.Get(id))
}

// SetCommandDelay updates the minimum inter-frame spacing.
func (e *Engine) SetCommandDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d > 0 {
		e.cfg.CommandDelay = d
	}
}

// SetFailureDelay updates how long the engine waits for a response before
// retrying.
func (e *Engine) SetFailureDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d > 0 {
		e.cfg.FailureDelay = d
	}
}

// SetMaxFailureCount updates the retry budget before the link is declared
// dead.
func (e *Engine) SetMaxFailureCount(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n > 0 {
		e.cfg.MaxFailures = n
	}
}

// Connect opens port and starts the engine's run goroutine, seeding the
// connection with the six families of status queries.
func (e *Engine) Connect(port Port) error {
	e.mu.Lock()
	if e.state != Disconnected {
		e.mu.Unlock()
		return fmt.Errorf("engine: already connected")
	}
	e.mu.Unlock()

	if err := port.Open(); err != nil {
		return err
	}

	// Drop any bytes a previous connection's readLoop left behind.
	for {
		select {
		case <-e.rxCh:
			continue
		default:
		}
		break
	}

	e.mu.Lock()
	e.port = port
	e.state = Connecting
	e.seeding = true
	e.failureCount = 0
	e.inFlight = nil
	e.doneCh = make(chan struct{})
	done := e.doneCh
	e.mu.Unlock()

	e.runWG.Add(2)
	go e.readLoop(port, done)
	go e.run()

	for _, seed := range seedCommands() {
		e.queue.Push(seed, true)
	}
	e.cmdCh <- command.Command{Id: command.None} // nudge the run loop to drain the seeds
	return nil
}

// seedCommands returns the connect-time status queries: relay status,
// button modes, per-relay total+remaining timer delay, jumper status, and
// firmware version.
func seedCommands() []command.Command {
	seeds := make([]command.Command, 0, 20)
	seeds = append(seeds, command.New(command.QueryRelay, relay.None, 0, 0))
	seeds = append(seeds, command.New(command.QueryButtonMode, relay.None, 0, 0))
	for pos := 1; pos <= 8; pos++ {
		mask := relay.FromPosition(pos)
		seeds = append(seeds, command.New(command.QueryTimer, mask, 0, 0)) // total
		seeds = append(seeds, command.New(command.QueryTimer, mask, 1, 0)) // remaining
	}
	seeds = append(seeds, command.New(command.QueryJumperStatus, relay.None, 0, 0))
	seeds = append(seeds, command.New(command.QueryFirmwareVersion, relay.None, 0, 0))
	return seeds
}

// Enqueue pushes cmd onto the queue and, if the engine is idle, triggers an
// immediate send. Enqueue never blocks the caller. If the engine is
// Disconnected, a NotConnected event fires and the queue is not grown.
func (e *Engine) Enqueue(cmd command.Command) {
	e.mu.Lock()
	connected := e.state.connected()
	e.mu.Unlock()
	if !connected {
		e.events.NotConnected()
		return
	}
	e.queue.Push(cmd, true)
	select {
	case e.cmdCh <- command.Command{Id: command.None}:
	default:
		// run loop already has a pending wakeup queued; nothing to do.
	}
}

// Disconnect is a hard stop: pending timers are cancelled, the queue is
// flushed, the in-flight command (if any) is abandoned without a response,
// and the transport is closed. There is no per-command cancellation API.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	if e.state == Disconnected {
		e.mu.Unlock()
		return
	}
	doneCh := e.doneCh
	e.mu.Unlock()

	// run() may already have exited on its own (a failure disconnect): in
	// that case doneCh is already closed and this select fires immediately
	// instead of blocking forever on a stopCh send nobody will read.
	select {
	case e.stopCh <- struct{}{}:
		<-doneCh
	case <-doneCh:
	}
	e.runWG.Wait()
}
