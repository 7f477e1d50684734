package inventory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go-topo/internal/models"
)

var ErrMissingColumn = errors.New("inventory: missing required column")

var requiredColumns = []string{"ip_address", "hostname", "platform", "type"}

// SkippedRow is a data row that could not be turned into a device.
type SkippedRow struct {
	Line   int
	Reason string
}

func (s SkippedRow) String() string {
	return fmt.Sprintf("line %d: %s", s.Line, s.Reason)
}

// Load reads an inventory CSV file.
func Load(path string) ([]models.Device, []SkippedRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads an inventory with a header row. Columns are matched by name,
// case-insensitively: ip_address, hostname, platform and type are required;
// transport, community and site are optional. The "type" column holds the
// hardware model.
func Parse(r io.Reader) ([]models.Device, []SkippedRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return nil, nil, err
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	var (
		devices []models.Device
		skipped []SkippedRow
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		line, _ := reader.FieldPos(0)

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		d := models.Device{
			Hostname:  field("hostname"),
			IPAddress: field("ip_address"),
			Platform:  strings.ToLower(field("platform")),
			Model:     field("type"),
			Transport: strings.ToLower(field("transport")),
			Community: field("community"),
			Site:      field("site"),
		}
		switch {
		case d.Hostname == "" && d.IPAddress == "":
			skipped = append(skipped, SkippedRow{Line: line, Reason: "missing hostname and ip_address"})
			continue
		case d.Hostname == "":
			skipped = append(skipped, SkippedRow{Line: line, Reason: "missing hostname"})
			continue
		case d.IPAddress == "":
			skipped = append(skipped, SkippedRow{Line: line, Reason: "missing ip_address"})
			continue
		}
		if d.Transport != "" && d.Transport != "ssh" && d.Transport != "snmp" {
			skipped = append(skipped, SkippedRow{Line: line, Reason: fmt.Sprintf("unknown transport %q", d.Transport)})
			continue
		}
		devices = append(devices, d)
	}
	return devices, skipped, nil
}
