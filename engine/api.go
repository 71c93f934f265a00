package engine

import (
	"github.com/velleman/k8090/command"
	"github.com/velleman/k8090/relay"
)

// The methods below are the driver-level relay/mode/timer/query surface,
// built on top of Enqueue. Each constructs a Command with its id's default
// priority and hands it to the queue.

// SwitchOn energizes the relays in set.
func (e *Engine) SwitchOn(set relay.Set) { e.Enqueue(command.New(command.RelayOn, set, 0, 0)) }

// SwitchOff de-energizes the relays in set.
func (e *Engine) SwitchOff(set relay.Set) { e.Enqueue(command.New(command.RelayOff, set, 0, 0)) }

// Toggle flips the relays in set.
func (e *Engine) Toggle(set relay.Set) { e.Enqueue(command.New(command.ToggleRelay, set, 0, 0)) }

// SetButtonMode assigns the momentary/toggle/timed button modes.
func (e *Engine) SetButtonMode(momentary, toggle, timed relay.Set) {
	e.Enqueue(command.New(command.SetButtonMode, momentary, byte(toggle), byte(timed)))
}

// StartTimer starts the timer for the relays in set. A zero delaySeconds
// means "use the stored default delay".
func (e *Engine) StartTimer(set relay.Set, delaySeconds uint16) {
	e.Enqueue(command.WithDelay(command.StartTimer, set, delaySeconds))
}

// SetTimerDelay stores delaySeconds as the default delay for the relays in
// set, without starting a timer.
func (e *Engine) SetTimerDelay(set relay.Set, delaySeconds uint16) {
	e.Enqueue(command.WithDelay(command.SetTimer, set, delaySeconds))
}

// QueryTotalTimerDelay asks for the stored default delay of the relays in
// set.
func (e *Engine) QueryTotalTimerDelay(set relay.Set) {
	e.Enqueue(command.New(command.QueryTimer, set, 0, 0))
}

// QueryRemainingTimerDelay asks for the time left on an active timer for
// the relays in set.
func (e *Engine) QueryRemainingTimerDelay(set relay.Set) {
	e.Enqueue(command.New(command.QueryTimer, set, 1, 0))
}

// QueryRelayStatus asks for the current relay states.
func (e *Engine) QueryRelayStatus() { e.Enqueue(command.New(command.QueryRelay, relay.None, 0, 0)) }

// QueryButtonModes asks for the momentary/toggle/timed button mode sets.
func (e *Engine) QueryButtonModes() {
	e.Enqueue(command.New(command.QueryButtonMode, relay.None, 0, 0))
}

// QueryJumperStatus asks whether the jumper is set.
func (e *Engine) QueryJumperStatus() {
	e.Enqueue(command.New(command.QueryJumperStatus, relay.None, 0, 0))
}

// QueryFirmwareVersion asks for the device's firmware year/week.
func (e *Engine) QueryFirmwareVersion() {
	e.Enqueue(command.New(command.QueryFirmwareVersion, relay.None, 0, 0))
}

// ResetFactoryDefaults restores button modes and timer delays to factory
// values.
func (e *Engine) ResetFactoryDefaults() {
	e.Enqueue(command.New(command.ResetFactoryDefaults, relay.None, 0, 0))
}

// RefreshAllInfo re-runs the full connect-time status probe against the
// live connection.
func (e *Engine) RefreshAllInfo() {
	for _, seed := range seedCommands() {
		e.Enqueue(seed)
	}
}
