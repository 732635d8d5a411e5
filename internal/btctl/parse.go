package btctl

import (
	"regexp"
	"strings"
)

// Device is one entry of the daemon's textual device listing. Identity is
// the hardware address; the name is display/matching only and may be empty.
type Device struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// addressPattern matches six colon-separated hex octets.
var addressPattern = regexp.MustCompile(`^(?:[0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)

// ParseDevices parses a "Device <address> <name...>" listing. The format is
// an untrusted semi-structured interface: malformed or empty lines are
// skipped, never an error. A missing name yields a record with an empty name.
func ParseDevices(out string) []Device {
	var devices []Device
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "Device" {
			continue
		}
		addr := fields[1]
		if !addressPattern.MatchString(addr) {
			continue
		}
		devices = append(devices, Device{
			Address: addr,
			Name:    strings.Join(fields[2:], " "),
		})
	}
	return devices
}

// MatchesName reports whether a device name matches the target filter.
// Matching is case-insensitive substring ("airpod" matches "My AirPods Pro").
func MatchesName(name, pattern string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(pattern))
}

// FilterByName keeps the devices whose name matches pattern, in input order.
func FilterByName(devices []Device, pattern string) []Device {
	var matched []Device
	for _, d := range devices {
		if MatchesName(d.Name, pattern) {
			matched = append(matched, d)
		}
	}
	return matched
}

// IsPowered reports whether an adapter status dump contains the powered
// indicator.
func IsPowered(status string) bool {
	return strings.Contains(status, "Powered: yes")
}

// HasServicesResolved reports whether a per-device info dump shows the
// daemon finished enumerating the device's service descriptors.
func HasServicesResolved(info string) bool {
	return strings.Contains(info, "ServicesResolved: yes")
}
