package engine

import "github.com/velleman/k8090/relay"

// Events is the caller-supplied sink the engine publishes typed events
// through. Tests stub this; the server package forwards it to WebSocket
// clients (server.EventHub implements it).
type Events interface {
	Connected()
	ConnectionFailed()
	NotConnected()
	Disconnected()
	RelayStatus(previous, current, timed relay.Set)
	ButtonStatus(state, pressed, released relay.Set)
	TotalTimerDelay(r relay.Set, seconds uint16)
	RemainingTimerDelay(r relay.Set, seconds uint16)
	ButtonModes(momentary, toggle, timed relay.Set)
	JumperStatus(on bool)
	FirmwareVersion(year, week int)
}

// NopEvents implements Events with no-op methods; embed it to satisfy the
// interface while overriding only the events a caller cares about.
type NopEvents struct{}

func (NopEvents) Connected()                                      {}
func (NopEvents) ConnectionFailed()                               {}
func (NopEvents) NotConnected()                                   {}
func (NopEvents) Disconnected()                                   {}
func (NopEvents) RelayStatus(previous, current, timed relay.Set)  {}
func (NopEvents) ButtonStatus(state, pressed, released relay.Set) {}
func (NopEvents) TotalTimerDelay(r relay.Set, seconds uint16)     {}
func (NopEvents) RemainingTimerDelay(r relay.Set, seconds uint16) {}
func (NopEvents) ButtonModes(momentary, toggle, timed relay.Set)  {}
func (NopEvents) JumperStatus(on bool)                            {}
func (NopEvents) FirmwareVersion(year, week int)                  {}
