// Package mock implements a software model of the K8090 card: relay and
// timer state, button modes, randomized response delays, and chunked
// response delivery, faithful enough that the engine can be exercised
// without hardware. Card takes decoded command frames and emits encoded
// response bytes; decoding the inbound byte stream lives in the transport
// package.
package mock

import (
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/velleman/k8090/command"
	"github.com/velleman/k8090/frame"
	"github.com/velleman/k8090/relay"
)

const (
	// kMinResponseDelay/kMaxResponseDelay bound the random pacing of
	// responses out of the mock.
	kMinResponseDelay = 2 * time.Millisecond
	kMaxResponseDelay = 40 * time.Millisecond

	// kTimerDelta coalesces near-simultaneous timer expiries into one
	// RelayStatus event.
	kTimerDelta = 100 * time.Millisecond

	// factoryDefaultDelaySeconds is the stored delay ResetFactoryDefaults
	// restores for every relay.
	factoryDefaultDelaySeconds = 5
)

type timerEntry struct {
	timer    *time.Timer
	deadline time.Time
}

// Card is the mock device's in-memory state. It is safe for concurrent use;
// all mutation happens under mu, matching the real engine's "one owner"
// discipline even though here the owner is the mock's own timer callbacks.
type Card struct {
	mu sync.Mutex

	on             relay.Set
	momentary      relay.Set
	toggle         relay.Set
	timed          relay.Set
	defaultDelays  [8]uint16
	remainingDelay [8]uint16
	timers         [8]*timerEntry

	jumperOn     bool
	firmwareYear byte
	firmwareWeek byte

	// rng drives remaining-delay randomization, chunk sizing, and the
	// binomial response-delay sampler. An instance field, not
	// process-global state, so parallel tests seed independently.
	rng *rand.Rand

	pending       [][frame.Len]byte
	deliveryTimer *time.Timer
	out           chan []byte
}

// New constructs a Card in factory-default state, seeded from seed so
// parallel tests can run with independent, reproducible randomness.
func New(seed int64) *Card {
	c := &Card{
		rng:          rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
		firmwareYear: 18,
		firmwareWeek: 26,
		out:          make(chan []byte, 16),
	}
	c.resetFactoryDefaultsLocked()
	for i := range c.remainingDelay {
		c.remainingDelay[i] = uint16(c.rng.IntN(60))
	}
	return c
}

// Out is the stream of byte chunks the device has "transmitted"; the
// transport package's Mock port reads from it to satisfy Port.Read.
func (c *Card) Out() <-chan []byte { return c.out }

func (c *Card) resetFactoryDefaultsLocked() {
	c.momentary = relay.None
	c.toggle = relay.All
	c.timed = relay.None
	for i := range c.defaultDelays {
		c.defaultDelays[i] = factoryDefaultDelaySeconds
	}
}

// Handle processes one decoded incoming command frame, applying the same
// state changes the card would, and queues any resulting response frame(s)
// for delayed, chunked delivery.
func (c *Card) Handle(f frame.Frame) {
	id, ok := commandIDFromWire(f.Cmd)
	if !ok {
		return // invalid/unknown incoming frame: silently ignored.
	}

	switch id {
	case command.RelayOn:
		c.handleRelayOn(relay.Set(f.Mask))
	case command.RelayOff:
		c.handleRelayOff(relay.Set(f.Mask))
	case command.ToggleRelay:
		c.handleToggle(relay.Set(f.Mask))
	case command.QueryRelay:
		c.handleQueryRelay()
	case command.SetButtonMode:
		c.handleSetButtonMode(relay.Set(f.Mask), relay.Set(f.Param1), relay.Set(f.Param2))
	case command.QueryButtonMode:
		c.handleQueryButtonMode()
	case command.StartTimer:
		c.handleStartTimer(relay.Set(f.Mask), uint16(f.Param1)<<8|uint16(f.Param2))
	case command.SetTimer:
		c.handleSetTimer(relay.Set(f.Mask), uint16(f.Param1)<<8|uint16(f.Param2))
	case command.QueryTimer:
		c.handleQueryTimer(relay.Set(f.Mask), f.Param1&0x01 != 0)
	case command.ResetFactoryDefaults:
		c.handleResetFactoryDefaults()
	case command.QueryJumperStatus:
		c.handleQueryJumperStatus()
	case command.QueryFirmwareVersion:
		c.handleQueryFirmwareVersion()
	}
}

func commandIDFromWire(b byte) (command.ID, bool) {
	for _, id := range []command.ID{
		command.RelayOn, command.RelayOff, command.ToggleRelay, command.QueryRelay,
		command.SetButtonMode, command.QueryButtonMode, command.StartTimer, command.SetTimer,
		command.QueryTimer, command.ResetFactoryDefaults, command.QueryJumperStatus,
		command.QueryFirmwareVersion,
	} {
		if w, ok := id.WireByte(); ok && w == b {
			return id, true
		}
	}
	return command.None, false
}

func (c *Card) handleRelayOn(mask relay.Set) {
	c.mu.Lock()
	previous := c.on
	c.on = c.on.Union(mask)
	changed := c.on != previous
	current, timed := c.on, c.activeTimersLocked()
	c.mu.Unlock()
	if changed {
		c.emitRelayStatus(previous, current, timed)
	}
}

func (c *Card) handleRelayOff(mask relay.Set) {
	c.mu.Lock()
	previous := c.on
	for _, pos := range mask.Positions() {
		c.stopTimerLocked(pos - 1)
	}
	c.on = c.on.Without(mask)
	changed := c.on != previous
	current, timed := c.on, c.activeTimersLocked()
	c.mu.Unlock()
	if changed {
		c.emitRelayStatus(previous, current, timed)
	}
}

func (c *Card) handleToggle(mask relay.Set) {
	c.mu.Lock()
	previous := c.on
	for _, pos := range mask.Positions() {
		idx := pos - 1
		if previous.Has(pos) && c.timers[idx] != nil {
			c.stopTimerLocked(idx)
		}
	}
	c.on = c.on.Xor(mask)
	changed := c.on != previous
	current, timed := c.on, c.activeTimersLocked()
	c.mu.Unlock()
	if changed {
		c.emitRelayStatus(previous, current, timed)
	}
}

func (c *Card) handleQueryRelay() {
	c.mu.Lock()
	on, timed := c.on, c.activeTimersLocked()
	c.mu.Unlock()
	c.emitRelayStatus(on, on, timed)
}

func (c *Card) handleSetButtonMode(momentary, toggle, timed relay.Set) {
	c.mu.Lock()
	// Precedence momentary > toggle > timed keeps the three sets disjoint.
	c.momentary = momentary
	c.toggle = toggle.Without(momentary)
	c.timed = timed.Without(c.toggle).Without(momentary)
	c.mu.Unlock()
}

func (c *Card) handleQueryButtonMode() {
	c.mu.Lock()
	momentary, toggle, timed := c.momentary, c.toggle, c.timed
	c.mu.Unlock()
	c.queueResponse(frame.Encode(command.ButtonModeResp.WireByte(), byte(momentary), byte(toggle), byte(timed)))
}

func (c *Card) handleStartTimer(mask relay.Set, delay uint16) {
	c.mu.Lock()
	previous := c.on
	for _, pos := range mask.Positions() {
		idx := pos - 1
		d := delay
		if d == 0 {
			d = c.defaultDelays[idx]
		}
		c.startTimerLocked(idx, time.Duration(d)*time.Second)
	}
	c.on = c.on.Union(mask)
	changed := c.on != previous
	current, timed := c.on, c.activeTimersLocked()
	c.mu.Unlock()
	if changed {
		c.emitRelayStatus(previous, current, timed)
	}
}

func (c *Card) handleSetTimer(mask relay.Set, delay uint16) {
	c.mu.Lock()
	for _, pos := range mask.Positions() {
		c.defaultDelays[pos-1] = delay
	}
	c.mu.Unlock()
}

func (c *Card) handleQueryTimer(mask relay.Set, remaining bool) {
	for _, pos := range mask.Positions() {
		idx := pos - 1
		c.mu.Lock()
		var delay uint16
		if !remaining {
			delay = c.defaultDelays[idx]
		} else if e := c.timers[idx]; e != nil {
			left := time.Until(e.deadline)
			secs := (left + time.Second - time.Nanosecond) / time.Second // ceil
			if secs < 0 {
				secs = 0
			}
			delay = uint16(secs)
		} else {
			delay = c.remainingDelay[idx]
		}
		c.mu.Unlock()
		c.queueResponse(frame.Encode(command.TimerResp.WireByte(), byte(relay.FromPosition(pos)), byte(delay>>8), byte(delay)))
	}
}

func (c *Card) handleResetFactoryDefaults() {
	c.mu.Lock()
	previous := c.on
	for i := range c.timers {
		c.stopTimerLocked(i)
	}
	c.resetFactoryDefaultsLocked()
	c.on = relay.None
	c.mu.Unlock()
	// Synthesize a RelayOff(all-on) RelayStatus, as if the reset had issued
	// one internally, when anything was actually on.
	if !previous.Empty() {
		c.emitRelayStatus(previous, relay.None, relay.None)
	}
}

func (c *Card) handleQueryJumperStatus() {
	c.mu.Lock()
	on := c.jumperOn
	c.mu.Unlock()
	var p1 byte
	if on {
		p1 = 1
	}
	c.queueResponse(frame.Encode(command.JumperStatusResp.WireByte(), 0, p1, 0))
}

func (c *Card) handleQueryFirmwareVersion() {
	c.mu.Lock()
	year, week := c.firmwareYear, c.firmwareWeek
	c.mu.Unlock()
	c.queueResponse(frame.Encode(command.FirmwareVersionResp.WireByte(), 0, year, week))
}

// SetJumper sets the simulated jumper state; exposed for tests that exercise
// QueryJumperStatus end to end.
func (c *Card) SetJumper(on bool) {
	c.mu.Lock()
	c.jumperOn = on
	c.mu.Unlock()
}

func (c *Card) emitRelayStatus(previous, current, timed relay.Set) {
	c.queueResponse(frame.Encode(command.RelayStatus.WireByte(), byte(previous), byte(current), byte(timed)))
}

func (c *Card) activeTimersLocked() relay.Set {
	var s relay.Set
	for i := 0; i < 8; i++ {
		if c.timers[i] != nil {
			s = s.Union(relay.FromPosition(i + 1))
		}
	}
	return s
}

func (c *Card) stopTimerLocked(idx int) {
	if c.timers[idx] != nil {
		c.timers[idx].timer.Stop()
		c.timers[idx] = nil
	}
}

func (c *Card) startTimerLocked(idx int, delay time.Duration) {
	c.stopTimerLocked(idx)
	deadline := time.Now().Add(delay)
	c.timers[idx] = &timerEntry{deadline: deadline}
	c.timers[idx].timer = time.AfterFunc(delay, func() { c.onTimerFire(idx) })
}

// onTimerFire implements timer coalescing: every other active
// timer within kTimerDelta of this one's deadline fires alongside it, and
// the whole batch produces a single RelayStatus.
func (c *Card) onTimerFire(idx int) {
	c.mu.Lock()
	e := c.timers[idx]
	if e == nil {
		c.mu.Unlock()
		return
	}
	previous := c.on
	toClear := relay.FromPosition(idx + 1)
	for j := 0; j < 8; j++ {
		if j == idx || c.timers[j] == nil {
			continue
		}
		delta := c.timers[j].deadline.Sub(e.deadline)
		if delta < 0 {
			delta = -delta
		}
		if delta <= kTimerDelta {
			toClear = toClear.Union(relay.FromPosition(j + 1))
		}
	}
	for _, pos := range toClear.Positions() {
		c.stopTimerLocked(pos - 1)
	}
	c.on = c.on.Without(toClear)
	current, timed := c.on, c.activeTimersLocked()
	c.mu.Unlock()

	if current != previous {
		c.emitRelayStatus(previous, current, timed)
	}
}

// queueResponse appends f to the pending outbox and arms the delivery timer
// if it isn't already running.
func (c *Card) queueResponse(f [frame.Len]byte) {
	c.mu.Lock()
	c.pending = append(c.pending, f)
	c.armDeliveryLocked()
	c.mu.Unlock()
}

func (c *Card) armDeliveryLocked() {
	if c.deliveryTimer != nil || len(c.pending) == 0 {
		return
	}
	d := c.sampleDelay()
	c.deliveryTimer = time.AfterFunc(d, c.deliver)
}

// deliver hands a random chunk of 1..3 pending responses to Out, then
// re-arms for whatever remains.
func (c *Card) deliver() {
	c.mu.Lock()
	c.deliveryTimer = nil
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	n := 1 + c.rng.IntN(3)
	if n > len(c.pending) {
		n = len(c.pending)
	}
	chunk := c.pending[:n]
	c.pending = c.pending[n:]
	buf := make([]byte, 0, n*frame.Len)
	for _, f := range chunk {
		buf = append(buf, f[:]...)
	}
	c.armDeliveryLocked()
	c.mu.Unlock()

	c.out <- buf
}

// sampleDelay draws a response-pacing delay from a binomial distribution
// truncated to [kMinResponseDelay, kMaxResponseDelay].
func (c *Card) sampleDelay() time.Duration {
	span := float64((kMaxResponseDelay - kMinResponseDelay) / time.Millisecond)
	b := distuv.Binomial{N: span, P: 0.5, Src: c.rng}
	ms := kMinResponseDelay/time.Millisecond + time.Duration(b.Rand())
	d := ms * time.Millisecond
	if d < kMinResponseDelay {
		d = kMinResponseDelay
	}
	if d > kMaxResponseDelay {
		d = kMaxResponseDelay
	}
	return d
}
