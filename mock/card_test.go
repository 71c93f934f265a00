package mock

import (
	"testing"
	"time"

	"github.com/velleman/k8090/command"
	"github.com/velleman/k8090/frame"
	"github.com/velleman/k8090/relay"
)

func wireFrame(id command.ID, mask relay.Set, p1, p2 byte) frame.Frame {
	w, _ := id.WireByte()
	return frame.Frame{Cmd: w, Mask: byte(mask), Param1: p1, Param2: p2}
}

// drainFrames collects every chunk the card emits until quiet for idle,
// tolerant of the mock's randomized chunk sizing and delivery pacing.
func drainFrames(t *testing.T, c *Card, idle time.Duration) []frame.Frame {
	t.Helper()
	var raw []byte
	for {
		select {
		case b := <-c.Out():
			raw = append(raw, b...)
		case <-time.After(idle):
			var out []frame.Frame
			for len(raw) >= frame.Len {
				f, err := frame.Decode(raw[:frame.Len])
				if err != nil {
					t.Fatalf("Decode: %v", err)
				}
				out = append(out, f)
				raw = raw[frame.Len:]
			}
			return out
		}
	}
}

func TestRelayOnEmitsStatus(t *testing.T) {
	c := New(1)
	c.Handle(wireFrame(command.RelayOn, relay.FromPosition(1), 0, 0))

	frames := drainFrames(t, c, time.Second)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if relay.Set(frames[0].Param1) != relay.FromPosition(1) {
		t.Fatalf("current relay set = %v, want {1}", relay.Set(frames[0].Param1))
	}
}

func TestRelayOnNoChangeIsSilent(t *testing.T) {
	c := New(2)
	c.Handle(wireFrame(command.RelayOn, relay.FromPosition(1), 0, 0))
	drainFrames(t, c, time.Second) // drain the first status

	c.Handle(wireFrame(command.RelayOn, relay.FromPosition(1), 0, 0)) // already on
	if frames := drainFrames(t, c, 200*time.Millisecond); len(frames) != 0 {
		t.Fatalf("unexpected frames for a no-op RelayOn: %+v", frames)
	}
}

func TestQueryFirmwareVersionVector(t *testing.T) {
	c := New(3)
	c.Handle(wireFrame(command.QueryFirmwareVersion, relay.None, 0, 0))
	frames := drainFrames(t, c, time.Second)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Param1 != 18 || frames[0].Param2 != 26 {
		t.Fatalf("firmware = %d/%d, want 18/26 (year 2018, week 26)", frames[0].Param1, frames[0].Param2)
	}
}

func TestTimerCoalescing(t *testing.T) {
	c := New(4)
	// Two timers started close enough in wall-clock deadline that they
	// should coalesce into a single RelayStatus when the first fires.
	c.Handle(wireFrame(command.StartTimer, relay.FromPosition(1), 0, 1)) // 1s
	time.Sleep(20 * time.Millisecond)
	c.Handle(wireFrame(command.StartTimer, relay.FromPosition(2), 0, 1)) // 1s, within kTimerDelta of relay 1
	drainFrames(t, c, 300*time.Millisecond)                              // drain the StartTimer acks before the timers expire

	frames := drainFrames(t, c, 2*time.Second)
	if len(frames) == 0 {
		t.Fatal("expected a RelayStatus once the timers expire")
	}
	f := frames[len(frames)-1]
	if relay.Set(f.Param1) != relay.None {
		t.Fatalf("current relay set after coalesced expiry = %v, want {} (both relays cleared together)", relay.Set(f.Param1))
	}
}

func TestStartTimerUsesStoredDefault(t *testing.T) {
	c := New(7)
	c.Handle(wireFrame(command.SetTimer, relay.FromPosition(5), 0, 1))   // stored default = 1s
	c.Handle(wireFrame(command.StartTimer, relay.FromPosition(5), 0, 0)) // delay 0: use the default

	acks := drainFrames(t, c, 300*time.Millisecond)
	if len(acks) == 0 {
		t.Fatal("expected a RelayStatus ack for the timer start")
	}
	if !relay.Set(acks[len(acks)-1].Param1).Has(5) {
		t.Fatal("relay 5 should be on while its timer runs")
	}

	frames := drainFrames(t, c, 2*time.Second)
	if len(frames) == 0 {
		t.Fatal("expected a RelayStatus once the default-delay timer expires")
	}
	f := frames[len(frames)-1]
	if relay.Set(f.Param1).Has(5) {
		t.Fatal("relay 5 should be off after the stored 1s default elapses")
	}
	if relay.Set(f.Param2).Has(5) {
		t.Fatal("relay 5's timer should no longer be active")
	}
}

func TestResetFactoryDefaultsSynthesizesRelayOff(t *testing.T) {
	c := New(5)
	c.Handle(wireFrame(command.RelayOn, relay.FromPosition(1), 0, 0))
	drainFrames(t, c, time.Second)

	c.Handle(wireFrame(command.ResetFactoryDefaults, relay.None, 0, 0))
	frames := drainFrames(t, c, time.Second)
	if len(frames) == 0 {
		t.Fatal("expected a synthesized RelayStatus after reset")
	}
	f := frames[len(frames)-1]
	if relay.Set(f.Param1) != relay.None {
		t.Fatalf("post-reset relay set = %v, want {} (all off)", relay.Set(f.Param1))
	}
}

func TestQueryJumperStatus(t *testing.T) {
	c := New(6)
	c.SetJumper(true)
	c.Handle(wireFrame(command.QueryJumperStatus, relay.None, 0, 0))
	frames := drainFrames(t, c, time.Second)
	if len(frames) != 1 || frames[0].Param1 != 1 {
		t.Fatalf("jumper status frames = %+v, want one frame with param1=1", frames)
	}
}
