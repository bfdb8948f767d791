package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c := New()

	assert.Equal(t, 200, c.ConsoleChunkSize)
	assert.Equal(t, 0, c.MaxOpenFiles)
	assert.True(t, c.PrintExitStatus)
	assert.Equal(t, 1, c.StackPages)
	assert.Equal(t, 4, c.DataPages)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 4, c.CheckWorkers)
	assert.Empty(t, c.DiskDir)
	assert.Equal(t, DefaultDiskCapacity, c.DiskCapacity)
	require.NoError(t, c.Validate())
}

func TestLoadHCL(t *testing.T) {
	src := []byte(`
console_chunk_size = 64
print_exit_status  = false
log_level          = "debug"

file "sample.txt" {
  content = "hello"
}

file "empty" {
  size = 32
}
`)

	c := New()
	require.NoError(t, c.LoadHCL("kernos.hcl", src))

	assert.Equal(t, 64, c.ConsoleChunkSize)
	assert.False(t, c.PrintExitStatus)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 4, c.DataPages, "unset attributes keep their defaults")

	require.Len(t, c.Files, 2)
	assert.Equal(t, "sample.txt", c.Files[0].Name)
	assert.Equal(t, []byte("hello"), c.Files[0].Data())
	assert.Len(t, c.Files[1].Data(), 32)
	require.NoError(t, c.Validate())
}

func TestLoadHCLErrors(t *testing.T) {
	c := New()
	assert.Error(t, c.LoadHCL("kernos.hcl", []byte(`console_chunk_size = "many"`)))
	assert.Error(t, c.LoadHCL("kernos.hcl", []byte(`unknown_setting = 1`)))
	assert.Error(t, c.LoadHCL("kernos.hcl", []byte(`log_level = `)))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernos.hcl")
	require.NoError(t, os.WriteFile(path, []byte("max_open_files = 8\n"), 0o644))

	c := New()
	require.NoError(t, c.LoadFile(path))
	assert.Equal(t, 8, c.MaxOpenFiles)

	assert.Error(t, c.LoadFile(filepath.Join(t.TempDir(), "missing.hcl")))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KERNOS_CONSOLE_CHUNK_SIZE", "16")
	t.Setenv("KERNOS_LOG_JSON", "true")
	t.Setenv("KERNOS_DISK_DIR", "/tmp/disk")

	c := New()
	require.NoError(t, c.LoadFromEnv())

	assert.Equal(t, 16, c.ConsoleChunkSize)
	assert.True(t, c.LogJSON)
	assert.Equal(t, "/tmp/disk", c.DiskDir)
}

func TestLoadFromEnvRejectsUnknownKeys(t *testing.T) {
	t.Setenv("KERNOS_NO_SUCH_SETTING", "1")

	assert.Error(t, New().LoadFromEnv())
}

func TestApply(t *testing.T) {
	values, err := ParseSettings([]string{"stack_pages=2", "print_exit_status=0", "log_level=warn"})
	require.NoError(t, err)

	c := New()
	require.NoError(t, c.Apply(values))
	assert.Equal(t, 2, c.StackPages)
	assert.False(t, c.PrintExitStatus)
	assert.Equal(t, "warn", c.LogLevel)

	assert.Error(t, c.Apply(map[string]string{"stack_pages": "lots"}))
}

func TestParseSettingsRejectsMalformed(t *testing.T) {
	_, err := ParseSettings([]string{"stack_pages"})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = ParseSettings([]string{"=1"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"zero chunk", func(c *Config) { c.ConsoleChunkSize = 0 }},
		{"negative open files", func(c *Config) { c.MaxOpenFiles = -1 }},
		{"negative children", func(c *Config) { c.MaxChildren = -1 }},
		{"no stack", func(c *Config) { c.StackPages = 0 }},
		{"no heap", func(c *Config) { c.DataPages = 0 }},
		{"no workers", func(c *Config) { c.CheckWorkers = 0 }},
		{"unbounded disk", func(c *Config) { c.DiskCapacity = 0 }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"long file name", func(c *Config) { c.Files = []FileConfig{{Name: "a-very-long-file-name"}} }},
		{"duplicate file", func(c *Config) { c.Files = []FileConfig{{Name: "a"}, {Name: "a"}} }},
		{"negative file size", func(c *Config) { c.Files = []FileConfig{{Name: "a", Size: -1}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			tt.modify(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestToJSON(t *testing.T) {
	assert.Contains(t, New().ToJSON(), `"console_chunk_size": 200`)
}
