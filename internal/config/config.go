package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvCatalog overrides the catalog path default when set.
const EnvCatalog = "ARCMGR_CATALOG"

// Config represents the optional arcmgr configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Theme    ThemeConfig    `toml:"theme"`
}

// DefaultsConfig holds persistent flag defaults.
type DefaultsConfig struct {
	Catalog      *string `toml:"catalog"`
	Archive      *string `toml:"archive"`
	Workers      *int    `toml:"workers"`
	Checksum     *bool   `toml:"checksum"`
	Algorithm    *string `toml:"algorithm"`
	Cache        *string `toml:"cache"`
	ReportDir    *string `toml:"report_dir"`
	BWLimit      *string `toml:"bwlimit"`
	TUI          *bool   `toml:"tui"`
	LogMaxSizeMB *int    `toml:"log_max_size_mb"`
}

// ThemeConfig holds optional color overrides.
type ThemeConfig struct {
	Green  *string `toml:"green"`
	Blue   *string `toml:"blue"`
	Yellow *string `toml:"yellow"`
	Red    *string `toml:"red"`
	Mauve  *string `toml:"mauve"`
	Muted  *string `toml:"muted"`
	Dim    *string `toml:"dim"`
	Bright *string `toml:"bright"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "arcmgr", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields a zero
// Config. A catalog path from the environment wins over the file.
func LoadFile(path string) (Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	if env := os.Getenv(EnvCatalog); env != "" {
		cfg.Defaults.Catalog = &env
	}
	if cfg.Defaults.Cache != nil {
		expanded := ExpandHome(*cfg.Defaults.Cache)
		cfg.Defaults.Cache = &expanded
	}
	return cfg, nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// DefaultCachePath returns the checksum cache location under XDG_CACHE_HOME.
func DefaultCachePath() string {
	dir := os.Getenv("XDG_CACHE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".cache")
	}
	return filepath.Join(dir, "arcmgr", "checksums.db")
}
