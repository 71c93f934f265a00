package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/velleman/k8090/command"
	"github.com/velleman/k8090/relay"
	"github.com/velleman/k8090/transport"
)

// testEvents records every event fired, each behind its own buffered
// channel so tests can wait for a specific event without racing on a
// shared slice.
type testEvents struct {
	NopEvents
	connected    chan struct{}
	failed       chan struct{}
	disconnected chan struct{}
	relayStatus  chan [3]relay.Set
	firmware     chan [2]int
	totalDelay   chan [2]uint16
	remainDelay  chan [2]uint16
}

func newTestEvents() *testEvents {
	return &testEvents{
		connected:    make(chan struct{}, 8),
		failed:       make(chan struct{}, 8),
		disconnected: make(chan struct{}, 8),
		relayStatus:  make(chan [3]relay.Set, 32),
		firmware:     make(chan [2]int, 8),
		totalDelay:   make(chan [2]uint16, 32),
		remainDelay:  make(chan [2]uint16, 32),
	}
}

func (e *testEvents) Connected()        { e.connected <- struct{}{} }
func (e *testEvents) ConnectionFailed() { e.failed <- struct{}{} }
func (e *testEvents) Disconnected()     { e.disconnected <- struct{}{} }

func (e *testEvents) RelayStatus(previous, current, timed relay.Set) {
	e.relayStatus <- [3]relay.Set{previous, current, timed}
}

func (e *testEvents) FirmwareVersion(year, week int) {
	e.firmware <- [2]int{year, week}
}

func (e *testEvents) TotalTimerDelay(r relay.Set, seconds uint16) {
	e.totalDelay <- [2]uint16{uint16(r), seconds}
}

func (e *testEvents) RemainingTimerDelay(r relay.Set, seconds uint16) {
	e.remainDelay <- [2]uint16{uint16(r), seconds}
}

func fastConfig() Config {
	return Config{
		CommandDelay:                2 * time.Millisecond,
		FactoryDefaultsCommandDelay: 2 * time.Millisecond,
		FailureDelay:                150 * time.Millisecond,
		MaxFailures:                 2,
	}
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestConnectSeedsAndEmitsConnected(t *testing.T) {
	events := newTestEvents()
	e := New(events, fastConfig())
	port := transport.NewMock(1)

	if err := e.Connect(port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	waitFor(t, events.connected, "Connected")

	select {
	case fw := <-events.firmware:
		if fw[0] != 2018 || fw[1] != 26 {
			t.Fatalf("firmware = %v, want [2018 26]", fw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for FirmwareVersion")
	}
}

func TestSwitchOnThenQueryInterleave(t *testing.T) {
	events := newTestEvents()
	e := New(events, fastConfig())
	port := transport.NewMock(2)
	if err := e.Connect(port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()
	waitFor(t, events.connected, "Connected")

	e.SwitchOn(relay.FromPosition(3))
	e.QueryRelayStatus()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case rs := <-events.relayStatus:
			if rs[1].Has(3) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for relay 3 to show as on")
		}
	}
}

func TestTimerRoundTrip(t *testing.T) {
	events := newTestEvents()
	e := New(events, fastConfig())
	port := transport.NewMock(3)
	if err := e.Connect(port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()
	waitFor(t, events.connected, "Connected")

	e.StartTimer(relay.FromPosition(1), 30)

	// Wait until the card reports relay 1's timer as active: a remaining
	// query enqueued alongside StartTimer would be sent first (higher
	// priority) and answered before the timer exists.
	deadline := time.After(2 * time.Second)
waitTimed:
	for {
		select {
		case rs := <-events.relayStatus:
			if rs[2].Has(1) {
				break waitTimed
			}
		case <-deadline:
			t.Fatal("timed out waiting for relay 1's timer to start")
		}
	}

	// Drop the per-relay delay reports from the connect-time seed queries.
	for {
		select {
		case <-events.remainDelay:
			continue
		default:
		}
		break
	}

	e.QueryRemainingTimerDelay(relay.FromPosition(1))

	for {
		select {
		case rd := <-events.remainDelay:
			if relay.Set(rd[0]).Has(1) {
				if rd[1] == 0 || rd[1] > 30 {
					t.Fatalf("remaining delay = %d, want in (0,30]", rd[1])
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for remaining timer delay")
		}
	}
}

func TestOppositeCancellationOnWire(t *testing.T) {
	events := newTestEvents()
	e := New(events, fastConfig())
	port := transport.NewMock(4)
	if err := e.Connect(port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()
	waitFor(t, events.connected, "Connected")

	// Enqueue RelayOn{1,2} then RelayOff{1} before the first has a chance
	// to be sent: opposite cancellation should leave only relay 2 on.
	e.SwitchOn(relay.FromPositions([]int{1, 2}))
	e.SwitchOff(relay.FromPosition(1))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case rs := <-events.relayStatus:
			if rs[1].Has(2) && !rs[1].Has(1) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for relay 2 on, relay 1 off")
		}
	}
}

func TestMultiRelayTotalTimerQuery(t *testing.T) {
	events := newTestEvents()
	e := New(events, fastConfig())
	port := transport.NewMock(5)
	if err := e.Connect(port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()
	waitFor(t, events.connected, "Connected")

	// Drop the per-relay delay reports from the connect-time seed queries.
	for {
		select {
		case <-events.totalDelay:
			continue
		default:
		}
		break
	}

	e.QueryTotalTimerDelay(relay.FromPositions([]int{1, 2}))

	want := map[int]bool{1: false, 2: false}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case td := <-events.totalDelay:
			for _, pos := range relay.Set(td[0]).Positions() {
				if _, ok := want[pos]; ok {
					if td[1] != 5 {
						t.Fatalf("relay %d total delay = %d, want 5 (factory default)", pos, td[1])
					}
					want[pos] = true
				}
			}
			if want[1] && want[2] {
				return
			}
		case <-deadline:
			t.Fatalf("timed out; reported = %v", want)
		}
	}
}

// failPort always fails Write, to exercise the retry-then-disconnect path.
type failPort struct{}

func (failPort) Open() error                 { return nil }
func (failPort) Close() error                { return nil }
func (failPort) Read(p []byte) (int, error)  { time.Sleep(10 * time.Millisecond); return 0, nil }
func (failPort) Write(p []byte) (int, error) { return 0, errors.New("simulated write failure") }

func TestRetryThenDisconnectOnWriteFailure(t *testing.T) {
	events := newTestEvents()
	cfg := fastConfig()
	cfg.MaxFailures = 2
	e := New(events, cfg)

	if err := e.Connect(failPort{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, events.failed, "ConnectionFailed")
	waitFor(t, events.disconnected, "Disconnected")

	if e.IsConnected() {
		t.Fatal("engine should be Disconnected after exhausting the retry budget")
	}
}

func TestDisconnectIsIdempotentAfterSelfDisconnect(t *testing.T) {
	events := newTestEvents()
	cfg := fastConfig()
	cfg.MaxFailures = 1
	e := New(events, cfg)
	_ = e.Connect(failPort{})

	waitFor(t, events.disconnected, "Disconnected")
	e.Disconnect() // must not deadlock even though run() already exited
}

func TestEnqueueWhileDisconnectedDoesNotGrowQueue(t *testing.T) {
	events := newTestEvents()
	e := New(events, fastConfig())
	if e.PendingCommandCount(command.RelayOn) != 0 {
		t.Fatal("a fresh engine should have no pending commands")
	}
	e.SwitchOn(relay.FromPosition(1)) // engine is Disconnected; must not panic or enqueue
	if e.PendingCommandCount(command.RelayOn) != 0 {
		t.Fatal("Enqueue on a disconnected engine should not grow the queue")
	}
}
