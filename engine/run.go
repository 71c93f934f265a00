package engine

import (
	"time"

	"github.com/velleman/k8090/command"
	"github.com/velleman/k8090/frame"
	"github.com/velleman/k8090/relay"
)

// run is the single driver goroutine that owns the queue, the state
// machine, and both timers. It is started by Connect and
// exits either when Disconnect signals stopCh or when the engine gives up
// on the link itself (failure count reached MaxFailures).
func (e *Engine) run() {
	defer e.runWG.Done()
	defer close(e.doneCh)

	for {
		select {
		case <-e.stopCh:
			e.teardown(false)
			return

		case <-e.cmdCh:
			e.mu.Lock()
			idle := e.state == ConnectedIdle || e.state == Connecting
			e.mu.Unlock()
			if idle {
				if e.dequeueAndSend() {
					return
				}
			}

		case b := <-e.rxCh:
			e.onBytes(b)

		case <-e.pacingC:
			if e.dequeueAndSend() {
				return
			}

		case <-e.failureC:
			if e.onFailureTimeout() {
				return
			}
		}
	}
}

// readLoop feeds bytes read from port to rxCh until a read error (including
// the one caused by port.Close() during teardown) ends it. done unblocks a
// pending handoff when run() has already exited.
func (e *Engine) readLoop(port Port, done <-chan struct{}) {
	defer e.runWG.Done()
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case e.rxCh <- chunk:
			case <-done:
				return
			}
		}
		if err != nil {
			return
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

// dequeueAndSend pops the next command, writes its frame, and arms either
// the failure timer (response expected) or the pacing timer. It returns
// true if the engine disconnected (a write failure exhausted the retry
// budget) and the caller (run's select loop) must stop.
func (e *Engine) dequeueAndSend() bool {
	cmd, ok := e.queue.Pop()
	if !ok {
		e.mu.Lock()
		e.state = ConnectedIdle
		e.mu.Unlock()
		return false
	}

	wire, ok := cmd.Id.WireByte()
	if !ok {
		// None or another id with no wire form; drop it and try the next.
		return e.dequeueAndSend()
	}

	f := frame.Encode(wire, byte(cmd.Mask), cmd.Param1, cmd.Param2)

	e.mu.Lock()
	port := e.port
	e.inFlight = &cmd
	e.mu.Unlock()

	if port == nil {
		return false
	}

	if _, err := port.Write(f[:]); err != nil {
		return e.handleWriteFailure(cmd, err)
	}

	if _, hasResp := cmd.Id.HasResponse(); hasResp {
		e.mu.Lock()
		e.state = ConnectedAwaitingResponse
		e.mu.Unlock()
		e.startFailureTimer(e.cfg.FailureDelay)
		return false
	}

	delay := e.cfg.CommandDelay
	if cmd.Id == command.ResetFactoryDefaults {
		delay = e.cfg.FactoryDefaultsCommandDelay
	}
	e.mu.Lock()
	e.state = ConnectedAwaitingPacing
	e.mu.Unlock()
	e.startPacingTimer(delay)
	return false
}

// handleWriteFailure treats a failed transport write as a lost command:
// re-enqueued and retried under the failure budget.
func (e *Engine) handleWriteFailure(cmd command.Command, err error) bool {
	e.mu.Lock()
	e.failureCount++
	failures := e.failureCount
	maxFailures := e.cfg.MaxFailures
	e.inFlight = nil
	e.mu.Unlock()

	if failures >= maxFailures {
		e.teardown(true)
		return true
	}
	e.queue.Push(cmd, false)
	return e.dequeueAndSend()
}

// onFailureTimeout fires when the failure timer expires before a matching
// response arrived. Conditional-response commands (relay
// power mutations, which the device answers only if its state changed) are
// completed silently rather than retried: no response is their expected,
// successful outcome. It returns true if the engine gave up on the link.
func (e *Engine) onFailureTimeout() bool {
	e.mu.Lock()
	if e.state != ConnectedAwaitingResponse || e.inFlight == nil {
		e.mu.Unlock()
		return false
	}
	cmd := *e.inFlight

	if cmd.Id.ConditionalResponse() {
		e.inFlight = nil
		e.failureCount = 0
		e.state = ConnectedAwaitingPacing
		e.mu.Unlock()
		e.startPacingTimer(e.cfg.CommandDelay)
		return false
	}

	e.failureCount++
	failures := e.failureCount
	maxFailures := e.cfg.MaxFailures
	e.inFlight = nil
	e.mu.Unlock()

	if failures >= maxFailures {
		e.teardown(true)
		return true
	}
	e.queue.Push(cmd, false)
	return e.dequeueAndSend()
}

// onBytes accumulates incoming bytes and parses complete 7-byte frames out
// of them in transport order. A buffer that doesn't decode at its current
// alignment is resynchronized by dropping one byte at a time; invalid
// frames are silently discarded.
func (e *Engine) onBytes(b []byte) {
	e.rxBuf = append(e.rxBuf, b...)
	for len(e.rxBuf) >= frame.Len {
		f, err := frame.Decode(e.rxBuf[:frame.Len])
		if err != nil {
			e.rxBuf = e.rxBuf[1:]
			continue
		}
		e.rxBuf = e.rxBuf[frame.Len:]
		e.handleFrame(f)
	}
}

// handleFrame correlates a decoded response frame to the in-flight command
// (if any) and dispatches the matching typed event.
func (e *Engine) handleFrame(f frame.Frame) {
	respID, ok := command.ResponseIDFromWire(f.Cmd)
	if !ok {
		return
	}

	switch respID {
	case command.RelayStatus:
		e.events.RelayStatus(relay.Set(f.Mask), relay.Set(f.Param1), relay.Set(f.Param2))
		e.completeIfMatches(respID)

	case command.ButtonStatus:
		// Unsolicited; never correlates to an in-flight command.
		e.events.ButtonStatus(relay.Set(f.Mask), relay.Set(f.Param1), relay.Set(f.Param2))

	case command.TimerResp:
		relays := relay.Set(f.Mask)
		delay := uint16(f.Param1)<<8 | uint16(f.Param2)
		if e.inFlightWantsRemaining() {
			e.events.RemainingTimerDelay(relays, delay)
		} else {
			e.events.TotalTimerDelay(relays, delay)
		}
		e.completeTimerQuery(relays)

	case command.ButtonModeResp:
		e.events.ButtonModes(relay.Set(f.Mask), relay.Set(f.Param1), relay.Set(f.Param2))
		e.completeIfMatches(respID)

	case command.JumperStatusResp:
		e.events.JumperStatus(f.Param1 != 0)
		e.completeIfMatches(respID)

	case command.FirmwareVersionResp:
		e.events.FirmwareVersion(2000+int(f.Param1), int(f.Param2))
		e.completeIfMatches(respID)
	}
}

func (e *Engine) inFlightWantsRemaining() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight != nil && e.inFlight.Id == command.QueryTimer && e.inFlight.RemainingRequested()
}

// completeTimerQuery clears relays from an in-flight QueryTimer's mask: the
// card answers a multi-relay timer query with one Timer frame per relay, so
// the query only completes once every requested relay has reported. Partial
// progress re-arms the failure timer instead of completing.
func (e *Engine) completeTimerQuery(relays relay.Set) {
	e.mu.Lock()
	if e.state != ConnectedAwaitingResponse || e.inFlight == nil || e.inFlight.Id != command.QueryTimer {
		e.mu.Unlock()
		return
	}
	e.inFlight.Mask = e.inFlight.Mask.Without(relays)
	if !e.inFlight.Mask.Empty() {
		e.mu.Unlock()
		e.startFailureTimer(e.cfg.FailureDelay)
		return
	}
	e.failureCount = 0
	e.inFlight = nil
	e.state = ConnectedAwaitingPacing
	e.mu.Unlock()

	e.stopFailureTimer()
	e.startPacingTimer(e.cfg.CommandDelay)
}

// completeIfMatches finishes the in-flight command if respID is the
// response it was waiting for: the failure timer is cancelled, the failure
// counter resets, and the pacing timer starts. A completed firmware-version
// query that was part of the connect-time probe additionally emits
// Connected.
func (e *Engine) completeIfMatches(respID command.ResponseID) {
	e.mu.Lock()
	if e.state != ConnectedAwaitingResponse || e.inFlight == nil {
		e.mu.Unlock()
		return
	}
	want, ok := e.inFlight.Id.HasResponse()
	if !ok || want != respID {
		e.mu.Unlock()
		return
	}
	wasSeedFirmware := e.seeding && respID == command.FirmwareVersionResp
	if wasSeedFirmware {
		e.seeding = false
	}
	e.failureCount = 0
	e.inFlight = nil
	e.state = ConnectedAwaitingPacing
	e.mu.Unlock()

	e.stopFailureTimer()
	e.startPacingTimer(e.cfg.CommandDelay)
	if wasSeedFirmware {
		e.events.Connected()
	}
}

// teardown is the hard stop behind both disconnect paths: timers
// cancelled, queue flushed, transport closed, state back to Disconnected.
// failure distinguishes a caller-initiated Disconnect from the engine
// giving up on the link itself.
func (e *Engine) teardown(failure bool) {
	e.stopPacingTimer()
	e.stopFailureTimer()
	e.queue.Clear()
	e.rxBuf = nil

	e.mu.Lock()
	port := e.port
	e.state = Disconnected
	e.inFlight = nil
	e.port = nil
	e.seeding = false
	e.failureCount = 0
	e.mu.Unlock()

	if port != nil {
		_ = port.Close()
	}
	if failure {
		e.events.ConnectionFailed()
	}
	e.events.Disconnected()
}

// startPacingTimer/stopPacingTimer/startFailureTimer/stopFailureTimer are
// only ever called from the run goroutine (or synchronously from functions
// it calls), so the timer fields need no lock.

func (e *Engine) startPacingTimer(d time.Duration) {
	e.stopPacingTimer()
	e.pacingTimer = time.NewTimer(d)
	e.pacingC = e.pacingTimer.C
}

func (e *Engine) stopPacingTimer() {
	if e.pacingTimer != nil {
		e.pacingTimer.Stop()
		e.pacingTimer = nil
	}
	e.pacingC = nil
}

func (e *Engine) startFailureTimer(d time.Duration) {
	e.stopFailureTimer()
	e.failureTimer = time.NewTimer(d)
	e.failureC = e.failureTimer.C
}

func (e *Engine) stopFailureTimer() {
	if e.failureTimer != nil {
		e.failureTimer.Stop()
		e.failureTimer = nil
	}
	e.failureC = nil
}
