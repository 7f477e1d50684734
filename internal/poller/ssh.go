package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-topo/internal/cdp"
	"go-topo/internal/models"
	"go-topo/internal/topology"
)

var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Commands that print the CDP neighbor table, by platform.
var cdpCommands = map[string]string{
	"iosxe": "show cdp neighbors",
	"ios":   "show cdp neighbors",
	"nxos":  "show cdp neighbors | no-more",
	"iosxr": "show cdp neighbors",
}

// Runner executes a single CLI command on a device.
type Runner interface {
	Run(ctx context.Context, host, command string) (string, error)
}

// SSHFetcher reads the CDP neighbor table from the device CLI.
type SSHFetcher struct {
	Runner Runner
}

func (f *SSHFetcher) Fetch(ctx context.Context, d models.Device) ([]topology.NeighborRecord, error) {
	platform := d.Platform
	if platform == "" {
		platform = DetectPlatform(d.Model)
	}
	command, ok := cdpCommands[strings.ToLower(platform)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, platform)
	}

	out, err := f.Runner.Run(ctx, d.IPAddress, command)
	if err != nil {
		return nil, err
	}
	records, err := cdp.ParsePlatform(platform, out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Hostname, err)
	}
	return records, nil
}

// DetectPlatform guesses the CLI platform from a hardware model string.
// Specific patterns are checked before generic ones.
func DetectPlatform(model string) string {
	m := strings.ToUpper(strings.TrimSpace(model))

	// ASR903/920 run IOS-XE, unlike the rest of the ASR9xx family
	for _, p := range []string{"ASR903", "ASR-903", "ASR920", "ASR-920"} {
		if strings.Contains(m, p) {
			return "iosxe"
		}
	}
	for _, p := range []string{"ASR9K", "ASR-9K", "ASR90", "ASR91", "ASR99", "XRV", "IOS-XR", "IOSXR", "NCS", "CRS"} {
		if strings.Contains(m, p) {
			return "iosxr"
		}
	}
	for _, p := range []string{"N9K", "N7K", "N5K", "N3K", "NEXUS", "NX-OS", "NXOS"} {
		if strings.Contains(m, p) {
			return "nxos"
		}
	}
	return "iosxe"
}

// TransportFetcher dispatches to the SSH or SNMP fetcher by the device's
// transport.
type TransportFetcher struct {
	SSH  *SSHFetcher
	SNMP *SNMPFetcher
}

func (f *TransportFetcher) Fetch(ctx context.Context, d models.Device) ([]topology.NeighborRecord, error) {
	switch d.Transport {
	case "snmp":
		if f.SNMP == nil {
			return nil, errors.New("snmp transport not configured")
		}
		return f.SNMP.Fetch(ctx, d)
	case "ssh", "":
		if f.SSH == nil {
			return nil, errors.New("ssh transport not configured")
		}
		return f.SSH.Fetch(ctx, d)
	}
	return nil, fmt.Errorf("unknown transport %q", d.Transport)
}
