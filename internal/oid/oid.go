package oid

import (
	"fmt"
	"strconv"
	"strings"
)

// CISCO-CDP-MIB cdpCacheEntry columns, indexed by <ifIndex>.<deviceIndex>.
const (
	CdpCacheAddress      = "1.3.6.1.4.1.9.9.23.1.2.1.1.4"
	CdpCacheDeviceID     = "1.3.6.1.4.1.9.9.23.1.2.1.1.6"
	CdpCacheDevicePort   = "1.3.6.1.4.1.9.9.23.1.2.1.1.7"
	CdpCachePlatform     = "1.3.6.1.4.1.9.9.23.1.2.1.1.8"
	CdpCacheCapabilities = "1.3.6.1.4.1.9.9.23.1.2.1.1.9"
)

// IF-MIB columns, indexed by ifIndex.
const (
	IfDescr = "1.3.6.1.2.1.2.2.1.2"
	IfName  = "1.3.6.1.2.1.31.1.1.1.1"
)

// BRIDGE-MIB forwarding table, indexed by the MAC address.
const (
	Dot1dTpFdbPort       = "1.3.6.1.2.1.17.4.3.1.2"
	Dot1dTpFdbStatus     = "1.3.6.1.2.1.17.4.3.1.3"
	Dot1dBasePortIfIndex = "1.3.6.1.2.1.17.1.4.1.2"
)

// Q-BRIDGE-MIB forwarding table, indexed by <vlan>.<mac>.
const (
	Dot1qTpFdbPort   = "1.3.6.1.2.1.17.7.1.2.2.1.2"
	Dot1qTpFdbStatus = "1.3.6.1.2.1.17.7.1.2.2.1.3"
)

// Suffix returns the index part of name below column, or false if name is
// not in that column. Leading dots are ignored on both sides.
func Suffix(name, column string) (string, bool) {
	name = strings.TrimPrefix(name, ".")
	column = strings.TrimPrefix(column, ".")
	if !strings.HasPrefix(name, column+".") {
		return "", false
	}
	return name[len(column)+1:], true
}

// CdpIndex splits a cdpCacheEntry index into ifIndex and deviceIndex.
func CdpIndex(name, column string) (ifIndex, devIndex int, ok bool) {
	suffix, ok := Suffix(name, column)
	if !ok {
		return 0, 0, false
	}
	parts := strings.Split(suffix, ".")
	if len(parts) != 2 {
		return 0, 0, false
	}
	ifIndex, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	devIndex, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return ifIndex, devIndex, true
}

// IfIndex parses the ifIndex of an IF-MIB column entry.
func IfIndex(name, column string) (int, bool) {
	suffix, ok := Suffix(name, column)
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// MacIndex parses a forwarding table index. With vlan set the index carries
// a leading VLAN id (Q-BRIDGE); otherwise the VLAN is 0. The MAC is returned
// as lower-case colon separated hex.
func MacIndex(name, column string, vlan bool) (int, string, bool) {
	suffix, ok := Suffix(name, column)
	if !ok {
		return 0, "", false
	}
	parts := strings.Split(suffix, ".")
	id := 0
	if vlan {
		if len(parts) != 7 {
			return 0, "", false
		}
		v, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, "", false
		}
		id, parts = v, parts[1:]
	}
	mac := DecimalMAC(strings.Join(parts, "."))
	if mac == "" {
		return 0, "", false
	}
	return id, mac, true
}

// DecimalMAC converts a dotted decimal MAC such as "0.17.34.51.68.85" to
// "00:11:22:33:44:55". It returns "" for anything else.
func DecimalMAC(s string) string {
	parts := strings.Split(s, ".")
	if len(parts) != 6 {
		return ""
	}
	hexParts := make([]string, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return ""
		}
		hexParts[i] = fmt.Sprintf("%02x", n)
	}
	return strings.Join(hexParts, ":")
}
