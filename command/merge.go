package command

import "github.com/velleman/k8090/relay"

// Merge combines b into a (the earlier, compatible pending command) and
// returns the result. Callers must have already checked Compatible(a, b).
// The result's Priority is max(a.Priority, b.Priority); a's Stamp is
// preserved by the caller (Merge does not touch Stamp).
func Merge(a, b Command) Command {
	result := a
	if b.Priority > result.Priority {
		result.Priority = b.Priority
	}

	switch a.Id {
	case RelayOn:
		if b.Id == RelayOn {
			result.Mask = a.Mask.Union(b.Mask)
		} else { // RelayOff cancels bits in RelayOn
			result.Mask = a.Mask.Without(b.Mask)
		}
	case RelayOff:
		if b.Id == RelayOff {
			result.Mask = a.Mask.Union(b.Mask)
		} else { // RelayOn cancels bits in RelayOff
			result.Mask = a.Mask.Without(b.Mask)
		}
	case ToggleRelay:
		result.Mask = a.Mask.Xor(b.Mask)
	case SetButtonMode:
		momA, togA, timedA := a.Mask, relay.Set(a.Param1), relay.Set(a.Param2)
		momB, togB, timedB := b.Mask, relay.Set(b.Param1), relay.Set(b.Param2)
		momentary := momA.Union(momB)
		toggle := togA.Union(togB).Without(momentary)
		timed := timedA.Union(timedB).Without(toggle).Without(momentary)
		result.Mask = momentary
		result.Param1 = byte(toggle)
		result.Param2 = byte(timed)
	case StartTimer, SetTimer, QueryTimer:
		result.Mask = a.Mask.Union(b.Mask)
		// Param1/Param2 preserved from a; compatibility guarantees b agrees.
	case QueryRelay, QueryButtonMode, ResetFactoryDefaults,
		QueryJumperStatus, QueryFirmwareVersion:
		// Parameterless; no-op beyond the priority bump above.
	}
	return result
}

// CancelOpposite clears from pending (an opposite RelayOn/RelayOff command)
// the bits newly present in incoming. It never removes pending from the
// queue even if the clearing leaves its mask empty: the no-op command keeps
// its wire slot. The caller is responsible for writing the result back into
// the queue.
func CancelOpposite(pending, incoming Command) Command {
	pending.Mask = pending.Mask.Without(incoming.Mask)
	return pending
}
