package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/memfs/internal/util"
	"gopkg.in/yaml.v3"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	// DefaultRootPerms are the permission bits of a new container's root directory
	DefaultRootPerms uint32 = 0o755

	// DefaultDirPerms are used for directories created without explicit permissions
	DefaultDirPerms uint32 = 0o755

	// DefaultFilePerms are used for files created without explicit permissions
	DefaultFilePerms uint32 = 0o644

	// DefaultAttrTimeout is the FUSE attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the FUSE directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0

	DefaultLogLvl = util.InfoLevel
	DefaultFsName = "memfs"
	DefaultName   = "memfs"
)

// Config contains runtime configuration values for an in-memory filesystem.
type Config struct {
	MountOptions
	LogLvl    util.LogLevel `validate:"gte=0,lte=4"`
	RootPerms uint32        `validate:"lte=4095"` // Permission bits of the root directory (Default 0755)
	DirPerms  uint32        `validate:"lte=4095"` // Permission bits of implicit directories (Default 0755)
	FilePerms uint32        `validate:"lte=4095"` // Permission bits of files created without a mode (Default 0644)

	// UID and GID override the process identity stamped on new nodes.
	// nil means use the identity of the running process.
	UID *uint32
	GID *uint32

	// NOTE: FUSE only

	AttrTimeout  float64 `validate:"gte=0"` // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 `validate:"gte=0"` // Directory entry cache timeout in seconds (Default 1.0)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	// LogLvl is a CLI style verbosity between ErrorVerbose (1) and TraceVerbose (5)
	LogLvl       *int     `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	RootPerms    *uint32  `yaml:"root_perms,omitempty" json:"root_perms,omitempty"`
	DirPerms     *uint32  `yaml:"dir_perms,omitempty" json:"dir_perms,omitempty"`
	FilePerms    *uint32  `yaml:"file_perms,omitempty" json:"file_perms,omitempty"`
	UID          *uint32  `yaml:"uid,omitempty" json:"uid,omitempty"`
	GID          *uint32  `yaml:"gid,omitempty" json:"gid,omitempty"`
	AttrTimeout  *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
	Debug        *bool    `yaml:"debug,omitempty" json:"debug,omitempty"`
	FsName       *string  `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name         *string  `yaml:"name,omitempty" json:"name,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:       DefaultLogLvl,
		RootPerms:    DefaultRootPerms,
		DirPerms:     DefaultDirPerms,
		FilePerms:    DefaultFilePerms,
		AttrTimeout:  DefaultAttrTimeout,
		EntryTimeout: DefaultEntryTimeout,
	}
}

// NewConfig creates a Config from defaults with override applied.
// A nil override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.LogLvl != nil {
		c.LogLvl = VerboseToLogLevel(*override.LogLvl)
	}
	if override.RootPerms != nil {
		c.RootPerms = *override.RootPerms
	}
	if override.DirPerms != nil {
		c.DirPerms = *override.DirPerms
	}
	if override.FilePerms != nil {
		c.FilePerms = *override.FilePerms
	}
	if override.UID != nil {
		c.UID = util.Pointer(*override.UID)
	}
	if override.GID != nil {
		c.GID = util.Pointer(*override.GID)
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults
// and validating the result.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg := NewConfig(override)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
