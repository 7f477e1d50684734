package models

import "time"

// Device is one inventory entry. Model is the hardware string used to pick
// the device category; Platform selects the CLI command set.
type Device struct {
	ID        uint   `gorm:"primaryKey"`
	Hostname  string `gorm:"uniqueIndex"`
	IPAddress string
	Platform  string // "iosxe", "nxos" or "iosxr"
	Model     string
	Transport string // "ssh" or "snmp"
	Community string
	Site      string
	Position  int // inventory order
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NeighborReport is one CDP adjacency from the latest successful retrieval
// of a device.
type NeighborReport struct {
	ID                uint `gorm:"primaryKey"`
	DeviceID          uint `gorm:"index"`
	Seq               int
	Neighbor          string
	LocalInterface    string
	NeighborInterface string
	Platform          string
	Capability        string
	HoldTime          string
	CollectedAt       time.Time
}

// MacEntry is one forwarding table entry from the latest MAC table
// retrieval of a device.
type MacEntry struct {
	ID          uint   `gorm:"primaryKey"`
	DeviceID    uint   `gorm:"index"`
	MAC         string `gorm:"index"`
	Interface   string
	VLAN        int
	Type        string // "dynamic", "static", "self" or "other"
	CollectedAt time.Time
}

type DiscoveryRun struct {
	ID        uint `gorm:"primaryKey"`
	StartedAt time.Time
	Duration  time.Duration
	Devices   int
	Failed    int
	Nodes     int
	Edges     int
	Warnings  int
	Policy    string
}
