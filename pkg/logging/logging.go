// Package logging builds the structured loggers used across the kernel.
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Component logger names.
const (
	Kernel  = "kernel"
	Syscall = "syscall"
	Process = "process"
	Loader  = "loader"
	Filesys = "filesys"
)

// Options configures a root logger.
type Options struct {
	// Level is an hclog level name. Empty means info.
	Level string
	// JSON switches to JSON output.
	JSON bool
	// Output receives log lines. Nil means stderr.
	Output io.Writer
	// Name is the root logger name.
	Name string
}

// New creates a root logger.
func New(opts Options) hclog.Logger {
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	name := opts.Name
	if name == "" {
		name = "kernos"
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     out,
		JSONFormat: opts.JSON,
	})
}

// Named returns the component logger under root. A nil root discards
// everything.
func Named(root hclog.Logger, component string) hclog.Logger {
	if root == nil {
		return hclog.NewNullLogger()
	}
	return root.Named(component)
}

// Discard returns a logger that drops everything.
func Discard() hclog.Logger {
	return hclog.NewNullLogger()
}
