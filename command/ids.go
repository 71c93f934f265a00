// Package command defines the K8090 command/response verb enums and the
// Command record type, along with compatibility and merge rules used by the
// priority queue.
package command

import "fmt"

// ID is the closed enumeration of outbound command verbs, plus the sentinel
// None.
type ID int

const (
	None ID = iota
	RelayOn
	RelayOff
	ToggleRelay
	QueryRelay
	SetButtonMode
	QueryButtonMode
	StartTimer
	SetTimer
	QueryTimer
	ResetFactoryDefaults
	QueryJumperStatus
	QueryFirmwareVersion
)

// String implements fmt.Stringer.
func (id ID) String() string {
	switch id {
	case None:
		return "None"
	case RelayOn:
		return "RelayOn"
	case RelayOff:
		return "RelayOff"
	case ToggleRelay:
		return "ToggleRelay"
	case QueryRelay:
		return "QueryRelay"
	case SetButtonMode:
		return "SetButtonMode"
	case QueryButtonMode:
		return "QueryButtonMode"
	case StartTimer:
		return "StartTimer"
	case SetTimer:
		return "SetTimer"
	case QueryTimer:
		return "QueryTimer"
	case ResetFactoryDefaults:
		return "ResetFactoryDefaults"
	case QueryJumperStatus:
		return "QueryJumperStatus"
	case QueryFirmwareVersion:
		return "QueryFirmwareVersion"
	default:
		return fmt.Sprintf("ID(%d)", int(id))
	}
}

// WireByte returns the outbound CMD byte for id, or 0 and false if id has no
// wire representation (e.g. None).
func (id ID) WireByte() (byte, bool) {
	switch id {
	case RelayOn:
		return 0x11, true
	case RelayOff:
		return 0x12, true
	case ToggleRelay:
		return 0x14, true
	case QueryRelay:
		return 0x18, true
	case SetButtonMode:
		return 0x21, true
	case QueryButtonMode:
		return 0x22, true
	case StartTimer:
		return 0x41, true
	case SetTimer:
		return 0x42, true
	case QueryTimer:
		return 0x44, true
	case ResetFactoryDefaults:
		return 0x66, true
	case QueryJumperStatus:
		return 0x70, true
	case QueryFirmwareVersion:
		return 0x71, true
	default:
		return 0, false
	}
}

// DefaultPriority returns the default priority for id: 2 for query verbs that
// elicit a typed data response, 1 for every mutating/"set" verb.
func (id ID) DefaultPriority() int {
	switch id {
	case QueryRelay, QueryButtonMode, QueryTimer, QueryJumperStatus, QueryFirmwareVersion:
		return 2
	default:
		return 1
	}
}

// ConditionalResponse reports whether id only elicits its response frame
// when the relay set actually changes (true for the relay-power mutations).
// The engine's failure timer treats a timeout on one of these specially: no
// response at all is the expected, successful outcome when nothing changed,
// not a lost frame to retry.
func (id ID) ConditionalResponse() bool {
	switch id {
	case RelayOn, RelayOff, ToggleRelay, StartTimer:
		return true
	default:
		return false
	}
}

// HasResponse reports whether id elicits a response frame the engine must
// wait for, and the response id it correlates to. Relay power mutations
// conditionally elicit a RelayStatus response (only if state changes); that
// conditionality is handled by the engine, not here.
func (id ID) HasResponse() (ResponseID, bool) {
	switch id {
	case QueryRelay:
		return RelayStatus, true
	case QueryButtonMode:
		return ButtonModeResp, true
	case QueryTimer:
		return TimerResp, true
	case QueryJumperStatus:
		return JumperStatusResp, true
	case QueryFirmwareVersion:
		return FirmwareVersionResp, true
	case RelayOn, RelayOff, ToggleRelay, StartTimer:
		return RelayStatus, true
	default:
		return 0, false
	}
}

// ResponseID is the closed enumeration of inbound response verbs.
type ResponseID int

const (
	ButtonModeResp ResponseID = iota
	TimerResp
	ButtonStatus
	RelayStatus
	JumperStatusResp
	FirmwareVersionResp
)

// String implements fmt.Stringer.
func (r ResponseID) String() string {
	switch r {
	case ButtonModeResp:
		return "ButtonMode"
	case TimerResp:
		return "Timer"
	case ButtonStatus:
		return "ButtonStatus"
	case RelayStatus:
		return "RelayStatus"
	case JumperStatusResp:
		return "JumperStatus"
	case FirmwareVersionResp:
		return "FirmwareVersion"
	default:
		return fmt.Sprintf("ResponseID(%d)", int(r))
	}
}

// WireByte returns the inbound CMD byte associated with r.
func (r ResponseID) WireByte() byte {
	switch r {
	case ButtonModeResp:
		return 0x22
	case TimerResp:
		return 0x44
	case ButtonStatus:
		return 0x50
	case RelayStatus:
		return 0x51
	case JumperStatusResp:
		return 0x70
	case FirmwareVersionResp:
		return 0x71
	}
	return 0
}

// ResponseIDFromWire returns the ResponseID for a wire CMD byte, or false if
// the byte does not match any known response.
func ResponseIDFromWire(b byte) (ResponseID, bool) {
	switch b {
	case 0x22:
		return ButtonModeResp, true
	case 0x44:
		return TimerResp, true
	case 0x50:
		return ButtonStatus, true
	case 0x51:
		return RelayStatus, true
	case 0x70:
		return JumperStatusResp, true
	case 0x71:
		return FirmwareVersionResp, true
	default:
		return 0, false
	}
}
