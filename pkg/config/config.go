// Package config holds the machine configuration. Values come from
// defaults, an optional HCL file, KERNOS_* environment variables and
// key=value overrides, applied in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/mitchellh/mapstructure"

	"kernos/pkg/filesys"
)

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "KERNOS_"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid configuration")

// Config holds all configuration for a machine.
type Config struct {
	// ConsoleChunkSize bounds a single console driver write.
	ConsoleChunkSize int `mapstructure:"console_chunk_size" json:"console_chunk_size"`
	// MaxOpenFiles caps open files per process. Zero means no cap.
	MaxOpenFiles int `mapstructure:"max_open_files" json:"max_open_files"`
	// MaxChildren caps running children per process. Zero means no cap.
	MaxChildren int `mapstructure:"max_children" json:"max_children"`
	// PrintExitStatus prints "name: exit(status)" when a process exits.
	PrintExitStatus bool `mapstructure:"print_exit_status" json:"print_exit_status"`
	// StackPages is the number of user stack pages.
	StackPages int `mapstructure:"stack_pages" json:"stack_pages"`
	// DataPages is the number of heap pages.
	DataPages int `mapstructure:"data_pages" json:"data_pages"`
	// LogLevel is an hclog level name.
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	// LogJSON switches the log format to JSON.
	LogJSON bool `mapstructure:"log_json" json:"log_json"`
	// DiskDir backs the filesystem with a host directory. Empty means an
	// in-memory disk.
	DiskDir string `mapstructure:"disk_dir" json:"disk_dir"`
	// DiskCapacity bounds the file data on the disk in bytes.
	DiskCapacity int64 `mapstructure:"disk_capacity" json:"disk_capacity"`
	// CheckWorkers is the number of check cases run at once.
	CheckWorkers int `mapstructure:"check_workers" json:"check_workers"`

	// Files are written to the disk before the first program runs.
	Files []FileConfig `mapstructure:"-" json:"files,omitempty"`
}

// FileConfig describes a file to preload.
type FileConfig struct {
	Name    string `hcl:"name,label" json:"name"`
	Size    int64  `hcl:"size,optional" json:"size"`
	Content string `hcl:"content,optional" json:"content"`
}

// Data returns the file contents padded to Size.
func (f FileConfig) Data() []byte {
	size := max(f.Size, int64(len(f.Content)))
	data := make([]byte, size)
	copy(data, f.Content)
	return data
}

// DefaultDiskCapacity is the disk size when none is configured.
const DefaultDiskCapacity int64 = 4 << 20

// New creates a configuration with defaults.
func New() *Config {
	return &Config{
		ConsoleChunkSize: 200,
		MaxOpenFiles:     0,
		MaxChildren:      0,
		PrintExitStatus:  true,
		StackPages:       1,
		DataPages:        4,
		LogLevel:         "info",
		LogJSON:          false,
		DiskDir:          "",
		DiskCapacity:     DefaultDiskCapacity,
		CheckWorkers:     4,
	}
}

// fileConfig is the HCL file schema. Pointers distinguish unset
// attributes from zero values.
type fileConfig struct {
	ConsoleChunkSize *int         `hcl:"console_chunk_size,optional"`
	MaxOpenFiles     *int         `hcl:"max_open_files,optional"`
	MaxChildren      *int         `hcl:"max_children,optional"`
	PrintExitStatus  *bool        `hcl:"print_exit_status,optional"`
	StackPages       *int         `hcl:"stack_pages,optional"`
	DataPages        *int         `hcl:"data_pages,optional"`
	LogLevel         *string      `hcl:"log_level,optional"`
	LogJSON          *bool        `hcl:"log_json,optional"`
	DiskDir          *string      `hcl:"disk_dir,optional"`
	DiskCapacity     *int64       `hcl:"disk_capacity,optional"`
	CheckWorkers     *int         `hcl:"check_workers,optional"`
	Files            []FileConfig `hcl:"file,block"`
}

// LoadFile applies settings from an HCL file.
func (c *Config) LoadFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return c.LoadHCL(path, src)
}

// LoadHCL applies settings from HCL source. filename is used in
// diagnostics and must end in .hcl.
func (c *Config) LoadHCL(filename string, src []byte) error {
	var fc fileConfig
	if err := hclsimple.Decode(filename, src, nil, &fc); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filename, err)
	}

	setInt(&c.ConsoleChunkSize, fc.ConsoleChunkSize)
	setInt(&c.MaxOpenFiles, fc.MaxOpenFiles)
	setInt(&c.MaxChildren, fc.MaxChildren)
	setInt(&c.StackPages, fc.StackPages)
	setInt(&c.DataPages, fc.DataPages)
	setInt(&c.CheckWorkers, fc.CheckWorkers)
	if fc.PrintExitStatus != nil {
		c.PrintExitStatus = *fc.PrintExitStatus
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.LogJSON != nil {
		c.LogJSON = *fc.LogJSON
	}
	if fc.DiskDir != nil {
		c.DiskDir = *fc.DiskDir
	}
	if fc.DiskCapacity != nil {
		c.DiskCapacity = *fc.DiskCapacity
	}
	c.Files = append(c.Files, fc.Files...)
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// LoadFromEnv applies KERNOS_* environment variables. KERNOS_LOG_LEVEL
// sets log_level, and so on.
func (c *Config) LoadFromEnv() error {
	values := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		values[strings.ToLower(strings.TrimPrefix(key, EnvPrefix))] = value
	}
	if len(values) == 0 {
		return nil
	}
	if err := c.Apply(values); err != nil {
		return fmt.Errorf("invalid %s environment: %w", EnvPrefix, err)
	}
	return nil
}

// Apply sets fields from string values keyed by their config names.
// Values are converted to the field types. Unknown keys are errors.
func (c *Config) Apply(values map[string]string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(values); err != nil {
		return fmt.Errorf("failed to decode settings: %w", err)
	}
	return nil
}

// ParseSettings splits key=value pairs as given on the command line.
func ParseSettings(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: setting %q is not key=value", ErrInvalid, pair)
		}
		values[key] = value
	}
	return values, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ConsoleChunkSize <= 0 {
		return fmt.Errorf("%w: console_chunk_size must be positive, got %d", ErrInvalid, c.ConsoleChunkSize)
	}
	if c.MaxOpenFiles < 0 {
		return fmt.Errorf("%w: max_open_files cannot be negative", ErrInvalid)
	}
	if c.MaxChildren < 0 {
		return fmt.Errorf("%w: max_children cannot be negative", ErrInvalid)
	}
	if c.StackPages < 1 {
		return fmt.Errorf("%w: stack_pages must be at least 1", ErrInvalid)
	}
	if c.DataPages < 1 {
		return fmt.Errorf("%w: data_pages must be at least 1", ErrInvalid)
	}
	if c.CheckWorkers < 1 {
		return fmt.Errorf("%w: check_workers must be at least 1", ErrInvalid)
	}
	if c.DiskCapacity <= 0 {
		return fmt.Errorf("%w: disk_capacity must be positive, got %d", ErrInvalid, c.DiskCapacity)
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalid, c.LogLevel)
	}

	seen := make(map[string]bool, len(c.Files))
	for _, f := range c.Files {
		if err := filesys.ValidateName(f.Name); err != nil {
			return fmt.Errorf("%w: file %q: %w", ErrInvalid, f.Name, err)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: file %q listed twice", ErrInvalid, f.Name)
		}
		seen[f.Name] = true
		if f.Size < 0 {
			return fmt.Errorf("%w: file %q has negative size", ErrInvalid, f.Name)
		}
	}

	return nil
}

// ToJSON returns the configuration as a JSON string.
func (c *Config) ToJSON() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
