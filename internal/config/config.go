package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	WebHost string
	WebPort string
	DBPath  string

	PollInterval  time.Duration
	DeviceTimeout time.Duration
	Workers       int

	SSHUser     string
	SSHPassword string
	SSHPort     int
	SSHTimeout  time.Duration

	SNMPCommunity string

	Dedup               bool
	CanonicalInterfaces bool
	MacTables           bool
	CategoryFile        string
	InventoryFile       string

	LogLevel     string
	LogFormat    string
	TemplatesDir string
}

// Load reads .env if it exists and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables, using defaults for
// unset ones.
func FromEnv() (Config, error) {
	var errs []error

	cfg := Config{
		WebHost:       getEnv("WEB_HOST", "0.0.0.0"),
		WebPort:       getEnv("WEB_PORT", "8080"),
		DBPath:        getEnv("DB_PATH", "/tmp/gotopo.db"),
		SSHUser:       os.Getenv("SSH_USER"),
		SSHPassword:   os.Getenv("SSH_PWD"),
		SNMPCommunity: getEnv("SNMP_COMMUNITY", "public"),
		CategoryFile:  os.Getenv("CATEGORY_FILE"),
		InventoryFile: os.Getenv("INVENTORY_FILE"),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "text")),
		TemplatesDir:  getEnv("TEMPLATES_DIR", "./internal/web/templates"),
	}

	cfg.PollInterval = seconds("POLL_INTERVAL", "600", &errs)
	cfg.DeviceTimeout = seconds("DEVICE_TIMEOUT", "60", &errs)
	cfg.SSHTimeout = seconds("SSH_TIMEOUT", "10", &errs)
	cfg.Workers = integer("WORKERS", "10", &errs)
	cfg.SSHPort = integer("SSH_PORT", "22", &errs)
	cfg.Dedup = boolean("DEDUP", "true", &errs)
	cfg.CanonicalInterfaces = boolean("CANONICAL_INTERFACES", "true", &errs)
	cfg.MacTables = boolean("MAC_TABLES", "true", &errs)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: POLL_INTERVAL must be positive", ErrInvalid))
	}
	if c.DeviceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: DEVICE_TIMEOUT must be positive", ErrInvalid))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: WORKERS must be at least 1", ErrInvalid))
	}
	if c.SSHPort < 1 || c.SSHPort > 65535 {
		errs = append(errs, fmt.Errorf("%w: SSH_PORT out of range", ErrInvalid))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: LOG_FORMAT must be text or json", ErrInvalid))
	}
	return errors.Join(errs...)
}

func (c Config) Addr() string {
	return c.WebHost + ":" + c.WebPort
}

// getEnv fetches environment variable or returns fallback
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func integer(key, fallback string, errs *[]error) int {
	v := getEnv(key, fallback)
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v))
	}
	return n
}

// seconds accepts a plain number of seconds or a Go duration such as "5m".
func seconds(key, fallback string, errs *[]error) time.Duration {
	v := getEnv(key, fallback)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalid, key, v))
	}
	return d
}

func boolean(key, fallback string, errs *[]error) bool {
	v := getEnv(key, fallback)
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, key, v))
	}
	return b
}
