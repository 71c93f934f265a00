package transport

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes one candidate serial port, with vendor/product IDs
// when the platform's enumerator can supply them.
type PortInfo struct {
	Name     string
	VID, PID string
	IsK8090  bool
}

// ListPorts returns a best-effort list of available serial ports, tagging
// any whose VID/PID matches the K8090: the platform enumerator first, a
// device-namespace glob as fallback. Callers can prefer a tagged port when
// several candidates are present.
func ListPorts() []PortInfo {
	if ports, err := enumerator.GetDetailedPortsList(); err == nil && len(ports) > 0 {
		out := make([]PortInfo, 0, len(ports))
		seen := make(map[string]struct{}, len(ports))
		for _, p := range ports {
			if p == nil || p.Name == "" {
				continue
			}
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			out = append(out, PortInfo{
				Name:    p.Name,
				VID:     p.VID,
				PID:     p.PID,
				IsK8090: matchesK8090(p.VID, p.PID),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out
	}

	// Fallback when the enumerator returns nothing: glob well-known device
	// namespaces. No VID/PID is available this way.
	var names []string
	switch runtime.GOOS {
	case "windows":
		names = nil
	case "darwin":
		names = listByGlob("/dev/cu.*", "/dev/tty.*")
	default:
		names = listByGlob("/dev/ttyUSB*", "/dev/ttyACM*", "/dev/tty.*")
	}
	out := make([]PortInfo, len(names))
	for i, n := range names {
		out[i] = PortInfo{Name: n}
	}
	return out
}

// PreferredPort returns the first port whose VID/PID matches the K8090, or
// "" if none of ports does.
func PreferredPort(ports []PortInfo) string {
	for _, p := range ports {
		if p.IsK8090 {
			return p.Name
		}
	}
	return ""
}

func matchesK8090(vid, pid string) bool {
	return hexEquals(vid, VendorID) && hexEquals(pid, ProductID)
}

func hexEquals(s string, want int) bool {
	if s == "" {
		return false
	}
	n := 0
	for _, c := range s {
		n *= 16
		switch {
		case c >= '0' && c <= '9':
			n += int(c - '0')
		case c >= 'a' && c <= 'f':
			n += int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			n += int(c-'A') + 10
		default:
			return false
		}
	}
	return n == want
}

func listByGlob(patterns ...string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 16)
	for _, pat := range patterns {
		matches, _ := filepath.Glob(pat)
		for _, m := range matches {
			if m == "" {
				continue
			}
			if _, err := os.Stat(m); err != nil {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
