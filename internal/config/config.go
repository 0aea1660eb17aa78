// Package config loads the printer core's TOML configuration file, searching
// platform-appropriate locations the way printmaster's shared config loader
// does, and applies defaults for anything the file omits.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config is the top-level, process-wide configuration for the printer core
// (spec.md §3 "System", §9 config knobs such as MAX_EVENTS).
type Config struct {
	// Hostname advertised in DNS-SD records and used for the CSRF digest
	// binding (spec.md §4.G).
	Hostname string `toml:"hostname"`
	// DNSSDName is the Bonjour service instance name; defaults to Hostname.
	DNSSDName string `toml:"dnssd_name"`

	// Listeners are "scheme://host:port" strings, e.g. "http://*:8000",
	// "https://*:8001", "unix:///run/ippcored.sock".
	Listeners []string `toml:"listeners"`

	SpoolDir string `toml:"spool_dir"`

	AdminGroup string `toml:"admin_group"`
	PrintGroup string `toml:"print_group"`

	// AllowTLSOptional permits remote HTTP (no TLS) when no password/group
	// is configured (spec.md §4.G authorization policy).
	AllowTLSOptional bool `toml:"allow_tls_optional"`

	TLSCertPath string `toml:"tls_cert_path"`
	TLSKeyPath  string `toml:"tls_key_path"`

	// MaxEvents bounds each subscription's event ring (spec.md §9 open
	// question, default 100).
	MaxEvents int `toml:"max_events"`

	// DeviceReadTimeoutSecs, SNMPDiscoverySecs, DNSSDListSecs and
	// NotificationWaitSecs mirror the fixed timeouts of spec.md §5, exposed
	// as knobs rather than compiled-in constants.
	DeviceReadTimeoutSecs int `toml:"device_read_timeout_secs"`
	SNMPDiscoverySecs     int `toml:"snmp_discovery_secs"`
	DNSSDListSecs         int `toml:"dnssd_list_secs"`
	NotificationWaitSecs  int `toml:"notification_wait_secs"`

	DNSSDEnabled bool `toml:"dnssd_enabled"`
	PNGEnabled   bool `toml:"png_enabled"`

	LogLevel string `toml:"log_level"`
}

// Defaults returns a Config with every field populated per spec.md's stated
// defaults.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		Hostname:              hostname,
		DNSSDName:             hostname,
		Listeners:             []string{"http://*:8000"},
		SpoolDir:              DefaultSpoolDir(),
		AdminGroup:            "lp-admin",
		PrintGroup:            "lp",
		AllowTLSOptional:      false,
		MaxEvents:             100,
		DeviceReadTimeoutSecs: 10,
		SNMPDiscoverySecs:     30,
		DNSSDListSecs:         10,
		NotificationWaitSecs:  30,
		DNSSDEnabled:          true,
		PNGEnabled:            true,
		LogLevel:              "INFO",
	}
}

// DefaultSpoolDir returns the platform-appropriate spool directory
// (spec.md §6 "spool directory layout").
func DefaultSpoolDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "ippcore", "spool")
	case "darwin":
		return "/var/lib/ippcore/spool"
	default:
		return "/var/lib/ippcore/spool"
	}
}

// SearchPaths returns an ordered list of candidate config file locations,
// most specific first: an explicit system directory, the user's config
// directory, the directory holding the running executable, and finally the
// current working directory.
func SearchPaths(filename string) []string {
	var paths []string

	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(os.Getenv("ProgramData"), "ippcore", filename))
	case "darwin":
		paths = append(paths, filepath.Join("/Library/Application Support/ippcore", filename))
	default:
		paths = append(paths, filepath.Join("/etc/ippcore", filename))
	}

	if home, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			paths = append(paths, filepath.Join(home, "AppData", "Local", "ippcore", filename))
		case "darwin":
			paths = append(paths, filepath.Join(home, "Library", "Application Support", "ippcore", filename))
		default:
			paths = append(paths, filepath.Join(home, ".config", "ippcore", filename))
		}
	}

	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), filename))
	}
	paths = append(paths, filepath.Join(".", filename))

	return paths
}

// Load searches SearchPaths(filename) for a readable TOML file, decodes it
// over a Defaults() base (so a partial file only overrides what it sets),
// and returns the result. An absolute filename is read directly rather than
// searched for. If no file is found, Defaults() is returned unchanged with a
// nil error.
func Load(filename string) (Config, error) {
	cfg := Defaults()

	var (
		data []byte
		err  error
	)
	paths := SearchPaths(filename)
	if filepath.IsAbs(filename) {
		paths = []string{filename}
	}
	for _, p := range paths {
		if data, err = os.ReadFile(p); err == nil {
			break
		}
	}
	if data == nil {
		return cfg, nil
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save atomically writes cfg as TOML to path, creating parent directories
// as needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
