package poller

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/gosnmp/gosnmp"

	"go-topo/internal/models"
	"go-topo/internal/oid"
)

// dot1dTpFdbStatus / dot1qTpFdbStatus values. invalid(2) entries are dropped.
var fdbTypes = map[int]string{
	1: "other",
	3: "dynamic",
	4: "self",
	5: "static",
}

const fdbInvalid = 2

// Q-BRIDGE first; switches without it only expose the BRIDGE-MIB table.
var fdbTables = []struct {
	port, status string
	vlan         bool
}{
	{oid.Dot1qTpFdbPort, oid.Dot1qTpFdbStatus, true},
	{oid.Dot1dTpFdbPort, oid.Dot1dTpFdbStatus, false},
}

// MacFetcher reads the bridge forwarding table of a device over SNMP,
// sharing the session settings of the CDP fetcher.
type MacFetcher struct {
	SNMP *SNMPFetcher
}

func (f *MacFetcher) FetchMACs(ctx context.Context, d models.Device) ([]models.MacEntry, error) {
	g, err := f.SNMP.connect(ctx, d)
	if err != nil {
		return nil, err
	}
	defer g.Conn.Close()

	return macTable(g)
}

type fdbKey struct {
	vlan int
	mac  string
}

func macTable(w walker) ([]models.MacEntry, error) {
	var (
		ports  map[fdbKey]int
		status map[fdbKey]int
		err    error
	)
	for _, table := range fdbTables {
		ports, err = walkFdb(w, table.port, table.vlan)
		if err != nil {
			return nil, err
		}
		if len(ports) == 0 {
			continue
		}
		status, err = walkFdb(w, table.status, table.vlan)
		if err != nil {
			return nil, err
		}
		break
	}
	if len(ports) == 0 {
		return []models.MacEntry{}, nil
	}

	baseIfIndex := make(map[int]int)
	err = w.BulkWalk(oid.Dot1dBasePortIfIndex, func(pdu gosnmp.SnmpPDU) error {
		port, ok := oid.IfIndex(pdu.Name, oid.Dot1dBasePortIfIndex)
		if !ok {
			return nil
		}
		baseIfIndex[port] = int(gosnmp.ToBigInt(pdu.Value).Int64())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("SNMP walk error: %w", err)
	}
	names, err := interfaceNames(w)
	if err != nil {
		return nil, err
	}

	entries := make([]models.MacEntry, 0, len(ports))
	for k, port := range ports {
		typ := "other"
		if s, ok := status[k]; ok {
			if s == fdbInvalid {
				continue
			}
			if t, ok := fdbTypes[s]; ok {
				typ = t
			}
		}
		iface := names[baseIfIndex[port]]
		if iface == "" {
			iface = "port " + strconv.Itoa(port)
		}
		entries = append(entries, models.MacEntry{MAC: k.mac, Interface: iface, VLAN: k.vlan, Type: typ})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].VLAN != entries[j].VLAN {
			return entries[i].VLAN < entries[j].VLAN
		}
		return entries[i].MAC < entries[j].MAC
	})
	return entries, nil
}

// walkFdb reads an integer forwarding table column keyed by VLAN and MAC.
func walkFdb(w walker, column string, vlan bool) (map[fdbKey]int, error) {
	values := make(map[fdbKey]int)
	err := w.BulkWalk(column, func(pdu gosnmp.SnmpPDU) error {
		id, mac, ok := oid.MacIndex(pdu.Name, column, vlan)
		if !ok {
			return nil // skip invalid
		}
		values[fdbKey{id, mac}] = int(gosnmp.ToBigInt(pdu.Value).Int64())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("SNMP walk error: %w", err)
	}
	return values, nil
}
