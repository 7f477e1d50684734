package topology

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNilInput        = errors.New("topology: nil device list")
	ErrMalformedRecord = errors.New("topology: malformed neighbor record")
	ErrMalformedDevice = errors.New("topology: malformed device")
)

// NeighborRecord is one adjacency reported by a device's neighbor-discovery
// command. Platform, Capability and HoldTime are optional.
type NeighborRecord struct {
	Neighbor          string `json:"neighbor"`
	LocalInterface    string `json:"local_interface"`
	NeighborInterface string `json:"neighbor_interface"`
	Platform          string `json:"platform,omitempty"`
	Capability        string `json:"capability,omitempty"`
	HoldTime          string `json:"hold_time,omitempty"`
}

// Validate checks that the required fields are present.
func (r NeighborRecord) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Neighbor) == "" {
		missing = append(missing, "neighbor")
	}
	if strings.TrimSpace(r.LocalInterface) == "" {
		missing = append(missing, "local_interface")
	}
	if strings.TrimSpace(r.NeighborInterface) == "" {
		missing = append(missing, "neighbor_interface")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformedRecord, strings.Join(missing, ", "))
	}
	if NormalizeIdentity(r.Neighbor) == "" {
		return fmt.Errorf("%w: neighbor %q has no host part", ErrMalformedRecord, r.Neighbor)
	}
	return nil
}

// DeviceInput is one polled device and the neighbors it reported. Category
// is the raw hardware/model string from the inventory.
type DeviceInput struct {
	Identity  string           `json:"identity"`
	Category  string           `json:"category"`
	Neighbors []NeighborRecord `json:"neighbors"`
}

// Warning is a per-record or per-device problem that did not stop the build.
type Warning struct {
	Device string // normalized local device, empty when the device itself was malformed
	Input  int    // position of the device in the input
	Record int    // position of the record in the device's neighbors, -1 for device warnings
	Err    error
}

func (w Warning) Error() string {
	if w.Record < 0 {
		return fmt.Sprintf("device #%d: %v", w.Input, w.Err)
	}
	return fmt.Sprintf("device %s record #%d: %v", w.Device, w.Record, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }

// NormalizeIdentity reduces a raw hostname such as "ROUTER1.domain.com" to
// its lowercase short form "router1".
func NormalizeIdentity(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}
