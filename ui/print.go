package ui

import (
	"fmt"
	"strings"
)

// PrintRelayLine renders the current relay/timer state on one in-place
// terminal line (carriage-return, no newline).
func PrintRelayLine(on [8]bool, timed [8]bool) {
	var b strings.Builder
	b.WriteString("\rRelays: ")
	for i := 0; i < 8; i++ {
		switch {
		case on[i] && timed[i]:
			fmt.Fprintf(&b, "\033[92m[%d*]\033[0m ", i+1)
		case on[i]:
			fmt.Fprintf(&b, "\033[92m[%d]\033[0m ", i+1)
		default:
			fmt.Fprintf(&b, "[%d] ", i+1)
		}
	}
	b.WriteString("   ")
	fmt.Print(b.String())
}
