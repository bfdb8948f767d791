// Package kernel wires a complete machine: disk, console, keyboard, the
// process manager, the system call dispatcher and the program loader.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	uuid "github.com/hashicorp/go-uuid"

	"kernos/pkg/config"
	"kernos/pkg/console"
	"kernos/pkg/fdtable"
	"kernos/pkg/filesys"
	"kernos/pkg/filesys/hostfs"
	"kernos/pkg/filesys/memfs"
	"kernos/pkg/logging"
	"kernos/pkg/process"
	"kernos/pkg/ulib"
	"kernos/pkg/userprog"
	"kernos/pkg/vm"
)

// Machine errors.
var (
	ErrHalted     = errors.New("kernel: machine halted")
	ErrNoRegistry = errors.New("kernel: no program registry")
)

// Option configures a Machine.
type Option func(*Machine)

// WithFileSystem replaces the disk chosen by the configuration.
func WithFileSystem(fs filesys.FileSystem) Option {
	return func(m *Machine) {
		m.fs = fs
	}
}

// WithKeyboard feeds the keyboard from r.
func WithKeyboard(r io.Reader) Option {
	return func(m *Machine) {
		m.keyboard = console.NewKeyboard(r)
	}
}

// WithConsoleOutput copies console output to w as it is written.
func WithConsoleOutput(w io.Writer) Option {
	return func(m *Machine) {
		m.console = console.NewTee(w)
	}
}

// WithLogger sets the root logger.
func WithLogger(log hclog.Logger) Option {
	return func(m *Machine) {
		m.log = log
	}
}

// Machine is one booted kernel.
type Machine struct {
	// ID identifies this boot in logs.
	ID string

	cfg      *config.Config
	log      hclog.Logger
	fs       filesys.FileSystem
	fsLock   sync.Mutex
	console  *console.Console
	keyboard *console.Keyboard
	programs *ulib.Registry

	procs *process.Manager
	sys   *userprog.Dispatcher
	main  *process.Process

	ctx    context.Context
	cancel context.CancelFunc
	halted atomic.Bool
}

// New boots a machine with the given configuration and programs.
func New(cfg *config.Config, programs *ulib.Registry, opts ...Option) (*Machine, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if programs == nil {
		return nil, ErrNoRegistry
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate boot id: %w", err)
	}

	m := &Machine{
		ID:       id,
		cfg:      cfg,
		programs: programs,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.log == nil {
		m.log = hclog.NewNullLogger()
	}
	root := m.log.With("boot", id)
	m.log = logging.Named(root, logging.Kernel)
	if m.console == nil {
		m.console = console.New()
	}
	if m.keyboard == nil {
		m.keyboard = console.NewKeyboard(strings.NewReader(""))
	}
	if m.fs == nil {
		if m.fs, err = newDisk(cfg); err != nil {
			return nil, err
		}
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.procs = process.NewManager(process.ManagerConfig{
		Loader: &loader{m: m, log: logging.Named(root, logging.Loader)},
		Logger: logging.Named(root, logging.Process),
		Limits: &process.ResourceLimits{
			MaxOpenFiles: cfg.MaxOpenFiles,
			MaxChildren:  cfg.MaxChildren,
		},
		Files: func(p *process.Process) *fdtable.Table {
			return fdtable.New(m.fs, &m.fsLock, cfg.MaxOpenFiles)
		},
	})
	m.procs.OnExit(m.releaseResources)

	m.sys, err = userprog.New(userprog.Options{
		FS:        m.fs,
		Lock:      &m.fsLock,
		Procs:     m.procs,
		Console:   m.console,
		Keyboard:  m.keyboard,
		Power:     m,
		Logger:    logging.Named(root, logging.Syscall),
		ChunkSize: cfg.ConsoleChunkSize,
	})
	if err != nil {
		return nil, err
	}

	m.main = m.procs.NewKernelProcess("main")

	if err := m.Preload(cfg.Files); err != nil {
		return nil, err
	}

	m.log.Info("machine booted", "programs", len(programs.Names()))
	return m, nil
}

func newDisk(cfg *config.Config) (filesys.FileSystem, error) {
	if cfg.DiskDir != "" {
		fs, err := hostfs.NewWithCapacity(cfg.DiskDir, cfg.DiskCapacity)
		if err != nil {
			return nil, fmt.Errorf("failed to open disk directory: %w", err)
		}
		return fs, nil
	}
	return memfs.NewWithCapacity(cfg.DiskCapacity), nil
}

// Preload writes files to the disk, replacing any with the same name.
func (m *Machine) Preload(files []config.FileConfig) error {
	m.fsLock.Lock()
	defer m.fsLock.Unlock()

	for _, f := range files {
		if err := m.fs.Remove(f.Name); err != nil && !errors.Is(err, filesys.ErrNotFound) {
			return fmt.Errorf("failed to replace %s: %w", f.Name, err)
		}
		if err := filesys.WriteFile(m.fs, f.Name, f.Data()); err != nil {
			return fmt.Errorf("failed to preload %s: %w", f.Name, err)
		}
		logging.Named(m.log, logging.Filesys).Debug("preloaded file", "name", f.Name, "size", len(f.Data()))
	}
	return nil
}

// Run starts cmdline as a new process, waits for it and returns its exit
// status. If a program halts the machine, Run returns ErrHalted.
func (m *Machine) Run(ctx context.Context, cmdline string) (int, error) {
	if m.halted.Load() {
		return process.ExitFault, ErrHalted
	}

	m.log.Info("running task", "cmdline", cmdline)
	pid, err := m.procs.Execute(m.ctx, m.main, cmdline)
	if err != nil {
		if m.halted.Load() {
			return process.ExitFault, ErrHalted
		}
		return process.ExitFault, err
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	status := m.procs.Wait(waitCtx, m.main, pid)
	switch {
	case m.halted.Load():
		return status, ErrHalted
	case ctx.Err() != nil:
		return process.ExitFault, ctx.Err()
	}

	m.log.Info("task finished", "cmdline", cmdline, "status", status)
	return status, nil
}

// PowerOff halts the machine. Programs that trap afterwards are stopped
// and blocked waits return -1.
func (m *Machine) PowerOff() {
	if m.halted.CompareAndSwap(false, true) {
		m.log.Info("powering off")
	}
	m.cancel()
}

// Halted reports whether the machine has been powered off.
func (m *Machine) Halted() bool {
	return m.halted.Load()
}

// Shutdown powers off and waits for every process thread to return.
func (m *Machine) Shutdown(ctx context.Context) error {
	m.PowerOff()
	return m.procs.Join(ctx)
}

// Dispatch is the system call trap.
func (m *Machine) Dispatch(ctx context.Context, p *process.Process, f *userprog.Frame) error {
	if m.halted.Load() {
		return userprog.ErrPowerOff
	}
	return m.sys.Dispatch(ctx, p, f)
}

// PageFault terminates a program that touched an invalid address.
func (m *Machine) PageFault(p *process.Process, addr vm.Addr, write bool) {
	m.log.Debug("page fault", "pid", p.PID, "name", p.Name, "addr", fmt.Sprintf("%#08x", uint32(addr)), "write", write)
	m.procs.Exit(p, process.ExitFault)
}

// releaseResources runs when any process exits.
func (m *Machine) releaseResources(p *process.Process, status int) {
	if p.Files != nil {
		if n := p.Files.CloseAll(); n > 0 {
			m.log.Debug("closed files on exit", "pid", p.PID, "count", n)
		}
	}
	if p.PageDir != nil {
		p.PageDir.Destroy()
	}

	if p.ParentPID != 0 && m.cfg.PrintExitStatus && !m.halted.Load() {
		m.console.PutBuf([]byte(fmt.Sprintf("%s: exit(%d)\n", p.Name, status)))
	}
}

// Console returns the console device.
func (m *Machine) Console() *console.Console {
	return m.console
}

// FileSystem returns the disk.
func (m *Machine) FileSystem() filesys.FileSystem {
	return m.fs
}

// Processes returns the process manager.
func (m *Machine) Processes() *process.Manager {
	return m.procs
}

// Config returns the machine configuration.
func (m *Machine) Config() *config.Config {
	return m.cfg
}
