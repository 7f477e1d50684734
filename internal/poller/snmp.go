package poller

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"go-topo/internal/cdp"
	"go-topo/internal/models"
	"go-topo/internal/oid"
	"go-topo/internal/topology"
)

// cdpCacheCapabilities bits, low to high.
var capabilityCodes = []struct {
	bit  uint32
	code string
}{
	{0x01, "R"},
	{0x02, "T"},
	{0x04, "B"},
	{0x08, "S"},
	{0x10, "H"},
	{0x20, "I"},
	{0x40, "r"},
	{0x80, "P"},
}

type walker interface {
	BulkWalk(rootOid string, walkFn gosnmp.WalkFunc) error
}

// SNMPFetcher reads the CISCO-CDP-MIB neighbor cache over SNMP v2c.
type SNMPFetcher struct {
	Port      uint16
	Community string // used when the device has none
	Timeout   time.Duration
	Retries   int
}

func (f *SNMPFetcher) Fetch(ctx context.Context, d models.Device) ([]topology.NeighborRecord, error) {
	g, err := f.connect(ctx, d)
	if err != nil {
		return nil, err
	}
	defer g.Conn.Close()

	return cdpNeighbors(g)
}

// connect opens a v2c session to d. The caller closes g.Conn.
func (f *SNMPFetcher) connect(ctx context.Context, d models.Device) (*gosnmp.GoSNMP, error) {
	community := d.Community
	if community == "" {
		community = f.Community
	}
	if community == "" {
		community = "public"
	}
	port := f.Port
	if port == 0 {
		port = 161
	}
	timeout := f.Timeout
	if timeout == 0 {
		timeout = gosnmp.Default.Timeout
	}

	g := &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    d.IPAddress,
		Port:      port,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   f.Retries,
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("connect error: %w", err)
	}
	return g, nil
}

type cdpEntry struct {
	ifIndex, devIndex int
	record            topology.NeighborRecord
}

// cdpNeighbors walks the CDP cache and resolves each entry's local ifIndex
// to an interface name.
func cdpNeighbors(w walker) ([]topology.NeighborRecord, error) {
	entries := make(map[[2]int]*cdpEntry)
	entry := func(ifIndex, devIndex int) *cdpEntry {
		key := [2]int{ifIndex, devIndex}
		e, ok := entries[key]
		if !ok {
			e = &cdpEntry{ifIndex: ifIndex, devIndex: devIndex}
			entries[key] = e
		}
		return e
	}

	columns := []struct {
		oid string
		set func(r *topology.NeighborRecord, v interface{})
	}{
		{oid.CdpCacheDeviceID, func(r *topology.NeighborRecord, v interface{}) { r.Neighbor = valueToString(v) }},
		{oid.CdpCacheDevicePort, func(r *topology.NeighborRecord, v interface{}) { r.NeighborInterface = valueToString(v) }},
		{oid.CdpCachePlatform, func(r *topology.NeighborRecord, v interface{}) { r.Platform = valueToString(v) }},
		{oid.CdpCacheCapabilities, func(r *topology.NeighborRecord, v interface{}) { r.Capability = capabilities(v) }},
	}
	for _, col := range columns {
		err := w.BulkWalk(col.oid, func(pdu gosnmp.SnmpPDU) error {
			ifIdx, devIdx, ok := oid.CdpIndex(pdu.Name, col.oid)
			if !ok {
				return nil // skip invalid
			}
			col.set(&entry(ifIdx, devIdx).record, pdu.Value)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("SNMP walk error: %w", err)
		}
	}

	if len(entries) == 0 {
		return []topology.NeighborRecord{}, nil
	}

	names, err := interfaceNames(w)
	if err != nil {
		return nil, err
	}

	sorted := make([]*cdpEntry, 0, len(entries))
	for _, e := range entries {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ifIndex != sorted[j].ifIndex {
			return sorted[i].ifIndex < sorted[j].ifIndex
		}
		return sorted[i].devIndex < sorted[j].devIndex
	})

	records := make([]topology.NeighborRecord, 0, len(sorted))
	for _, e := range sorted {
		r := e.record
		r.Neighbor = cdp.DeviceID(r.Neighbor)
		r.LocalInterface = names[e.ifIndex]
		if r.LocalInterface == "" {
			r.LocalInterface = "ifIndex " + strconv.Itoa(e.ifIndex)
		}
		records = append(records, r)
	}
	return records, nil
}

// interfaceNames maps ifIndex to ifName, falling back to ifDescr.
func interfaceNames(w walker) (map[int]string, error) {
	names := make(map[int]string)
	for _, column := range []string{oid.IfDescr, oid.IfName} {
		err := w.BulkWalk(column, func(pdu gosnmp.SnmpPDU) error {
			idx, ok := oid.IfIndex(pdu.Name, column)
			if !ok {
				return nil
			}
			if s := valueToString(pdu.Value); s != "" {
				names[idx] = s
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("SNMP walk error: %w", err)
		}
	}
	return names, nil
}

func capabilities(v interface{}) string {
	b, ok := v.([]byte)
	if !ok || len(b) == 0 {
		return ""
	}
	var bits uint32
	for _, c := range b {
		bits = bits<<8 | uint32(c)
	}
	var codes []string
	for _, c := range capabilityCodes {
		if bits&c.bit != 0 {
			codes = append(codes, c.code)
		}
	}
	return strings.Join(codes, " ")
}

func valueToString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}
