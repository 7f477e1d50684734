package cdp

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/sirikothe/gotextfsm"

	"go-topo/internal/topology"
)

var (
	ErrNoTable    = errors.New("cdp: no neighbor table in output")
	ErrNotEnabled = errors.New("cdp: not enabled on device")
)

//go:embed templates/*.textfsm
var templateFS embed.FS

// TextFSM templates for "show cdp neighbors", by platform.
var templateFiles = map[string]string{
	"ios":   "templates/cisco_ios_show_cdp_neighbors.textfsm",
	"iosxe": "templates/cisco_ios_show_cdp_neighbors.textfsm",
	"nxos":  "templates/cisco_nxos_show_cdp_neighbors.textfsm",
	"iosxr": "templates/cisco_xr_show_cdp_neighbors.textfsm",
}

// Parse reads the table printed by "show cdp neighbors" using the IOS
// template, which also accepts NX-OS and IOS-XR headers.
func Parse(output string) ([]topology.NeighborRecord, error) {
	return ParsePlatform("ios", output)
}

// ParsePlatform reads the "show cdp neighbors" table with the template of
// platform. Unknown platforms use the IOS template. Long device ids that wrap
// onto their own line are joined with the following row. A continuation row
// with no pending id is returned with an empty Neighbor so the caller can
// report it.
func ParsePlatform(platform, output string) ([]topology.NeighborRecord, error) {
	if strings.Contains(output, "CDP is not enabled") {
		return nil, ErrNotEnabled
	}
	output = strings.ReplaceAll(output, "\r\n", "\n")
	if !hasTable(output) {
		return nil, ErrNoTable
	}

	fsm, err := loadTemplate(platform)
	if err != nil {
		return nil, err
	}
	parser := gotextfsm.ParserOutput{}
	if err := parser.ParseTextString(output, fsm, true); err != nil {
		return nil, fmt.Errorf("cdp: parse: %w", err)
	}

	records := make([]topology.NeighborRecord, 0, len(parser.Dict))
	for _, row := range parser.Dict {
		records = append(records, topology.NeighborRecord{
			Neighbor:          DeviceID(field(row, "NEIGHBOR_NAME")),
			LocalInterface:    field(row, "LOCAL_INTERFACE"),
			HoldTime:          field(row, "HOLDTIME"),
			Capability:        strings.Join(strings.Fields(field(row, "CAPABILITIES")), " "),
			Platform:          field(row, "PLATFORM"),
			NeighborInterface: field(row, "NEIGHBOR_INTERFACE"),
		})
	}
	return records, nil
}

// loadTemplate compiles a fresh FSM per call; parser state is not shared
// between concurrent device retrievals.
func loadTemplate(platform string) (gotextfsm.TextFSM, error) {
	name, ok := templateFiles[strings.ToLower(platform)]
	if !ok {
		name = templateFiles["ios"]
	}
	fsm := gotextfsm.TextFSM{}
	src, err := templateFS.ReadFile(name)
	if err != nil {
		return fsm, err
	}
	if err := fsm.ParseString(string(src)); err != nil {
		return fsm, fmt.Errorf("cdp: template %s: %w", name, err)
	}
	return fsm, nil
}

func hasTable(output string) bool {
	for line := range strings.Lines(output) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Device") && strings.Contains(line, "Local Intrfce") {
			return true
		}
	}
	return false
}

func field(row map[string]interface{}, name string) string {
	s, _ := row[name].(string)
	return strings.TrimSpace(s)
}

// DeviceID drops the serial number NX-OS appends in parentheses.
func DeviceID(s string) string {
	if !strings.HasSuffix(s, ")") {
		return s
	}
	if i := strings.LastIndexByte(s, '('); i >= 0 {
		return s[:i]
	}
	return s
}
