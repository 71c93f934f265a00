package command

import "github.com/velleman/k8090/relay"

// Command is an immutable-by-convention logical command record. Callers
// build one with New and hand it to the queue; the queue assigns Stamp.
//
// Parameter interpretation varies by Id:
//   - RelayOn/Off/Toggle/QueryRelay: Mask is the relay set; Param1/2 unused.
//   - SetButtonMode: Mask=momentary, Param1=toggle, Param2=timed.
//   - StartTimer/SetTimer: Mask is the relay set; (Param1,Param2) is a
//     big-endian 16-bit second count.
//   - QueryTimer: Mask is the relay set; Param1 low bit selects total (0)
//     or remaining (1) delay.
//   - Others: all parameters zero.
type Command struct {
	Id       ID
	Priority int
	Mask     relay.Set
	Param1   byte
	Param2   byte

	// Stamp is assigned by the queue at enqueue time for FIFO tie-breaking.
	Stamp uint64
}

// New builds a Command with id's default priority.
func New(id ID, mask relay.Set, p1, p2 byte) Command {
	return Command{Id: id, Priority: id.DefaultPriority(), Mask: mask, Param1: p1, Param2: p2}
}

// Delay returns the big-endian 16-bit second count encoded in Param1/Param2.
func (c Command) Delay() uint16 {
	return uint16(c.Param1)<<8 | uint16(c.Param2)
}

// WithDelay builds a Command for id and mask with id's default priority and
// Param1/Param2 set to delaySeconds, big-endian.
func WithDelay(id ID, mask relay.Set, delaySeconds uint16) Command {
	return New(id, mask, byte(delaySeconds>>8), byte(delaySeconds))
}

// RemainingRequested reports whether a QueryTimer command asked for the
// remaining delay (param1 low bit set) rather than the total delay.
func (c Command) RemainingRequested() bool {
	return c.Param1&0x01 != 0
}
