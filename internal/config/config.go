package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the parameters needed to locate a device over USB and
// drive the handshake, loaded from an optional .env file and
// overridden by environment variables.
type Config struct {
	// KeyPath has no default; callers must supply it via the .env file,
	// ADB_KEY_PATH, or an explicit flag before loading a key.
	KeyPath        string
	ProductID      string
	ConnectTimeout time.Duration
	AuthTimeout    time.Duration
	VendorID       uint16
	ProductUSBID   uint16
}

var (
	cached       *Config
	configLoaded bool
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultAuthTimeout    = 10 * time.Second
	defaultProductID      = "adbhostusb"
)

// Load reads configuration from a .env file in the project root (if
// present), then applies environment-variable overrides, then fills
// in defaults for ProductID, ConnectTimeout and AuthTimeout if still
// unset; the other fields have no default. The result is cached after
// the first successful call.
func Load() (*Config, error) {
	if cached != nil && configLoaded {
		return cached, nil
	}

	cfg := &Config{}

	projectRoot := findProjectRoot()
	envPath := filepath.Join(projectRoot, ".env")

	data, err := os.ReadFile(envPath)
	if err == nil {
		parseEnvFile(string(data), cfg)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	cached = cfg
	configLoaded = true
	return cfg, nil
}

func parseEnvFile(content string, cfg *Config) {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		setField(cfg, key, value)
	}
}

func applyEnvOverrides(cfg *Config) {
	for _, key := range []string{
		"ADB_KEY_PATH", "ADB_PRODUCT_ID", "ADB_CONNECT_TIMEOUT",
		"ADB_AUTH_TIMEOUT", "ADB_VENDOR_ID", "ADB_PRODUCT_USB_ID",
	} {
		if value := os.Getenv(key); value != "" {
			setField(cfg, key, value)
		}
	}
}

func setField(cfg *Config, key, value string) {
	switch key {
	case "ADB_KEY_PATH":
		cfg.KeyPath = value
	case "ADB_PRODUCT_ID":
		cfg.ProductID = value
	case "ADB_CONNECT_TIMEOUT":
		if d, err := time.ParseDuration(value); err == nil {
			cfg.ConnectTimeout = d
		}
	case "ADB_AUTH_TIMEOUT":
		if d, err := time.ParseDuration(value); err == nil {
			cfg.AuthTimeout = d
		}
	case "ADB_VENDOR_ID":
		if id, err := strconv.ParseUint(strings.TrimPrefix(value, "0x"), 16, 16); err == nil {
			cfg.VendorID = uint16(id)
		}
	case "ADB_PRODUCT_USB_ID":
		if id, err := strconv.ParseUint(strings.TrimPrefix(value, "0x"), 16, 16); err == nil {
			cfg.ProductUSBID = uint16(id)
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ProductID == "" {
		cfg.ProductID = defaultProductID
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.AuthTimeout == 0 {
		cfg.AuthTimeout = defaultAuthTimeout
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
