package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go-topo/internal/models"
	"go-topo/internal/topology"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound        = errors.New("db: device not found")
	ErrInvalidDevice   = errors.New("db: invalid device")
	ErrDuplicateDevice = errors.New("db: device already exists")
)

// Store wraps the sqlite database holding the inventory, the latest neighbor
// reports and the discovery run history.
type Store struct {
	db *gorm.DB
}

func InitDB(path string) (*Store, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// sqlite allows one writer; a single connection also keeps ":memory:"
	// databases alive between queries.
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(&models.Device{}, &models.NeighborReport{}, &models.MacEntry{}, &models.DiscoveryRun{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	// Backfill empty transport and site values
	if err := gdb.Model(&models.Device{}).
		Where("transport IS NULL OR transport = ''").
		Update("transport", "ssh").Error; err != nil {
		return nil, fmt.Errorf("backfill transport: %w", err)
	}
	if err := gdb.Model(&models.Device{}).
		Where("site IS NULL OR site = ''").
		Update("site", "default").Error; err != nil {
		return nil, fmt.Errorf("backfill site: %w", err)
	}

	return &Store{db: gdb}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ListDevices returns the inventory in inventory order.
func (s *Store) ListDevices() ([]models.Device, error) {
	var devices []models.Device
	err := s.db.Order("position asc, id asc").Find(&devices).Error
	return devices, err
}

// CreateDevice appends d to the end of the inventory. A hostname already in
// the inventory gives ErrDuplicateDevice.
func (s *Store) CreateDevice(d *models.Device) error {
	if err := normalizeDevice(d); err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Device{}).Where("hostname = ?", d.Hostname).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateDevice, d.Hostname)
		}

		pos, err := nextPosition(tx)
		if err != nil {
			return err
		}
		d.Position = pos
		return tx.Create(d).Error
	})
}

// DeleteDevice removes a device with its stored neighbor reports and MAC
// table.
func (s *Store) DeleteDevice(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Device{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("device_id = ?", id).Delete(&models.NeighborReport{}).Error; err != nil {
			return err
		}
		return tx.Where("device_id = ?", id).Delete(&models.MacEntry{}).Error
	})
}

// ImportDevices upserts devices by hostname. Known hosts keep their position
// in the inventory; new ones are appended in the given order.
func (s *Store) ImportDevices(devices []models.Device) (created, updated int, err error) {
	err = s.db.Transaction(func(tx *gorm.DB) error {
		pos, err := nextPosition(tx)
		if err != nil {
			return err
		}
		for i := range devices {
			d := devices[i]
			if err := normalizeDevice(&d); err != nil {
				return fmt.Errorf("device #%d: %w", i, err)
			}

			var existing models.Device
			res := tx.Where("hostname = ?", d.Hostname).Limit(1).Find(&existing)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				d.ID = 0
				d.Position = pos
				pos++
				if err := tx.Create(&d).Error; err != nil {
					return err
				}
				created++
				continue
			}

			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"ip_address": d.IPAddress,
				"platform":   d.Platform,
				"model":      d.Model,
				"transport":  d.Transport,
				"community":  d.Community,
				"site":       d.Site,
			}).Error; err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

// ReplaceNeighbors swaps the stored report of a device for records.
func (s *Store) ReplaceNeighbors(deviceID uint, records []topology.NeighborRecord, at time.Time) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", deviceID).Delete(&models.NeighborReport{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		rows := make([]models.NeighborReport, 0, len(records))
		for i, r := range records {
			rows = append(rows, models.NeighborReport{
				DeviceID:          deviceID,
				Seq:               i,
				Neighbor:          r.Neighbor,
				LocalInterface:    r.LocalInterface,
				NeighborInterface: r.NeighborInterface,
				Platform:          r.Platform,
				Capability:        r.Capability,
				HoldTime:          r.HoldTime,
				CollectedAt:       at,
			})
		}
		return tx.Create(&rows).Error
	})
}

// Neighbors returns the stored report of a device in reported order.
func (s *Store) Neighbors(deviceID uint) ([]topology.NeighborRecord, error) {
	var rows []models.NeighborReport
	if err := s.db.Where("device_id = ?", deviceID).Order("seq asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]topology.NeighborRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, toRecord(r))
	}
	return records, nil
}

// DeviceInputs assembles builder input from the stored inventory and
// reports. Devices without a stored report get an empty neighbor list.
func (s *Store) DeviceInputs() ([]topology.DeviceInput, error) {
	devices, err := s.ListDevices()
	if err != nil {
		return nil, err
	}

	var rows []models.NeighborReport
	if err := s.db.Order("device_id asc, seq asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	byDevice := make(map[uint][]topology.NeighborRecord)
	for _, r := range rows {
		byDevice[r.DeviceID] = append(byDevice[r.DeviceID], toRecord(r))
	}

	inputs := make([]topology.DeviceInput, 0, len(devices))
	for _, d := range devices {
		neighbors := byDevice[d.ID]
		if neighbors == nil {
			neighbors = []topology.NeighborRecord{}
		}
		inputs = append(inputs, topology.DeviceInput{
			Identity:  d.Hostname,
			Category:  d.Model,
			Neighbors: neighbors,
		})
	}
	return inputs, nil
}

// ReplaceMacEntries swaps the stored MAC table of a device for entries.
func (s *Store) ReplaceMacEntries(deviceID uint, entries []models.MacEntry, at time.Time) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", deviceID).Delete(&models.MacEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		rows := make([]models.MacEntry, len(entries))
		for i, e := range entries {
			e.ID = 0
			e.DeviceID = deviceID
			e.CollectedAt = at
			rows[i] = e
		}
		return tx.Create(&rows).Error
	})
}

// MacResult is a MAC table entry joined with its device.
type MacResult struct {
	MAC       string
	Device    string
	IP        string
	Interface string
	VLAN      int
	Type      string
}

// SearchMacs finds MAC table entries containing query. Separators are
// ignored, so "0011.2233", "00-11-22" and "00:11:22" all match.
func (s *Store) SearchMacs(query string) ([]MacResult, error) {
	q := strings.NewReplacer(":", "", ".", "", "-", "", " ", "").Replace(strings.ToLower(query))
	if q == "" {
		return []MacResult{}, nil
	}

	results := []MacResult{}
	err := s.db.Table("mac_entries").
		Select("mac_entries.mac, devices.hostname as device, devices.ip_address as ip, mac_entries.interface, mac_entries.vlan, mac_entries.type").
		Joins("left join devices on devices.id = mac_entries.device_id").
		Where("REPLACE(mac_entries.mac, ':', '') LIKE ?", "%"+q+"%").
		Order("mac_entries.mac asc, devices.position asc").
		Scan(&results).Error
	return results, err
}

func (s *Store) RecordRun(run *models.DiscoveryRun) error {
	return s.db.Create(run).Error
}

// LastRun returns the most recent discovery run, if any.
func (s *Store) LastRun() (models.DiscoveryRun, bool, error) {
	var run models.DiscoveryRun
	res := s.db.Order("started_at desc, id desc").Limit(1).Find(&run)
	if res.Error != nil {
		return models.DiscoveryRun{}, false, res.Error
	}
	return run, res.RowsAffected > 0, nil
}

func nextPosition(tx *gorm.DB) (int, error) {
	var last int
	err := tx.Model(&models.Device{}).Select("COALESCE(MAX(position), 0)").Scan(&last).Error
	return last + 1, err
}

func normalizeDevice(d *models.Device) error {
	d.Hostname = strings.TrimSpace(d.Hostname)
	d.IPAddress = strings.TrimSpace(d.IPAddress)
	if d.Hostname == "" || d.IPAddress == "" {
		return fmt.Errorf("%w: hostname and ip address are required", ErrInvalidDevice)
	}
	d.Platform = strings.ToLower(strings.TrimSpace(d.Platform))
	d.Transport = strings.ToLower(strings.TrimSpace(d.Transport))
	if d.Transport == "" {
		d.Transport = "ssh"
	}
	if d.Transport != "ssh" && d.Transport != "snmp" {
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidDevice, d.Transport)
	}
	if d.Site == "" {
		d.Site = "default"
	}
	return nil
}

func toRecord(r models.NeighborReport) topology.NeighborRecord {
	return topology.NeighborRecord{
		Neighbor:          r.Neighbor,
		LocalInterface:    r.LocalInterface,
		NeighborInterface: r.NeighborInterface,
		Platform:          r.Platform,
		Capability:        r.Capability,
		HoldTime:          r.HoldTime,
	}
}
