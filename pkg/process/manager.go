package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"kernos/pkg/fdtable"
)

// Process creation errors.
var (
	ErrInvalidPID     = errors.New("invalid PID")
	ErrInvalidCommand = errors.New("invalid command")
	ErrLoadFailed     = errors.New("program load failed")
	ErrNoLoader       = errors.New("no program loader")
)

// Entry runs a loaded program on the process's thread. It returns when the
// program has finished; the status is recorded through Manager.Exit.
type Entry func(p *Process)

// Loader builds a process image for a command line. On success it sets up
// the process's address space and returns the program entry.
type Loader interface {
	Load(p *Process, cmdline string) (Entry, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(p *Process, cmdline string) (Entry, error)

// Load calls f.
func (f LoaderFunc) Load(p *Process, cmdline string) (Entry, error) {
	return f(p, cmdline)
}

// ExitHook runs once for every process that exits, before its parent can
// observe the exit.
type ExitHook func(p *Process, status int)

// ManagerConfig contains configuration for a Manager.
type ManagerConfig struct {
	// Loader builds program images.
	Loader Loader
	// Logger receives lifecycle events. A nil logger discards them.
	Logger hclog.Logger
	// Limits is applied to every new process.
	Limits *ResourceLimits
	// Files creates the descriptor table for a new process.
	Files func(p *Process) *fdtable.Table
}

// Manager manages all processes in the system.
type Manager struct {
	// processes holds all live or unreaped processes by PID.
	processes sync.Map
	// pidCounter generates unique PIDs.
	pidCounter int32

	loader Loader
	limits *ResourceLimits
	files  func(p *Process) *fdtable.Table
	log    hclog.Logger

	mu    sync.RWMutex
	hooks []ExitHook

	wg sync.WaitGroup
}

// NewManager creates a new process manager.
func NewManager(config ManagerConfig) *Manager {
	log := config.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	limits := config.Limits
	if limits == nil {
		limits = DefaultLimits()
	}

	return &Manager{
		loader: config.Loader,
		limits: limits,
		files:  config.Files,
		log:    log,
	}
}

// OnExit registers a hook that runs when a process exits.
func (m *Manager) OnExit(hook ExitHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// allocatePID allocates a new unique PID.
func (m *Manager) allocatePID() int {
	return int(atomic.AddInt32(&m.pidCounter, 1))
}

func (m *Manager) newProcess(parentPID int, cmdline string) *Process {
	p := NewProcess(m.allocatePID(), parentPID, cmdline)
	p.Limits = m.limits
	if m.files != nil {
		p.Files = m.files(p)
	}
	m.processes.Store(p.PID, p)
	return p
}

// NewKernelProcess creates the process that starts the first user program.
// It has no program of its own and is already running.
func (m *Manager) NewKernelProcess(name string) *Process {
	p := m.newProcess(0, name)
	p.SignalLoaded(true)
	p.Start()
	return p
}

// Execute starts cmdline as a child of parent and blocks until the child
// has either loaded its program or failed to. It returns the child's pid,
// or -1 with an error when no child is running.
func (m *Manager) Execute(ctx context.Context, parent *Process, cmdline string) (int, error) {
	if strings.TrimSpace(cmdline) == "" {
		return -1, ErrInvalidCommand
	}
	if err := parent.Limits.checkChildren(parent); err != nil {
		return -1, err
	}

	child := m.newProcess(parent.PID, cmdline)
	child.Promises = parent.Promises
	parent.addChild(child)

	unblock := block(parent)
	defer unblock()

	m.wg.Add(1)
	go m.run(ctx, child, cmdline)

	if err := child.WaitLoaded(ctx); err != nil {
		// Nobody can wait for the child now; it leaves the process table
		// when it exits.
		parent.takeChild(child.PID)
		select {
		case <-child.done:
			m.processes.Delete(child.PID)
		default:
		}
		return -1, err
	}
	if !child.Loaded() {
		parent.takeChild(child.PID)
		<-child.done
		m.processes.Delete(child.PID)
		return -1, fmt.Errorf("%w: %s", ErrLoadFailed, child.Name)
	}

	m.log.Debug("process started", "pid", child.PID, "parent", parent.PID, "cmdline", cmdline)
	return child.PID, nil
}

// run is the body of a process's thread.
func (m *Manager) run(ctx context.Context, p *Process, cmdline string) {
	defer m.wg.Done()
	defer m.Exit(p, ExitFault)
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("process panicked", "pid", p.PID, "name", p.Name, "panic", r)
			m.Exit(p, ExitFault)
		}
	}()

	entry, err := m.load(p, cmdline)
	if err != nil {
		m.log.Debug("load failed", "pid", p.PID, "cmdline", cmdline, "error", err)
		p.SignalLoaded(false)
		return
	}

	p.Start()
	p.SignalLoaded(true)

	if ctx.Err() != nil {
		return
	}
	entry(p)
}

// load calls the loader. The load result is always reported, even if the
// loader panics.
func (m *Manager) load(p *Process, cmdline string) (entry Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			entry = nil
			err = fmt.Errorf("%w: %v", ErrLoadFailed, r)
		}
	}()

	if m.loader == nil {
		return nil, ErrNoLoader
	}
	entry, err = m.loader.Load(p, cmdline)
	if err == nil && entry == nil {
		err = ErrLoadFailed
	}
	return entry, err
}

// Wait blocks until the direct child pid of parent exits and returns its
// status. It returns -1 if pid is not a child of parent, if it was already
// waited for, or if ctx ends first.
func (m *Manager) Wait(ctx context.Context, parent *Process, pid int) int {
	child := parent.takeChild(pid)
	if child == nil {
		return ExitFault
	}

	unblock := block(parent)
	defer unblock()

	select {
	case <-child.done:
		m.processes.Delete(pid)
		return child.ExitStatus()
	case <-ctx.Done():
		return ExitFault
	}
}

// Exit terminates p with status. Only the first call for a process has any
// effect: it runs the exit hooks and then wakes anything waiting on p.
func (m *Manager) Exit(p *Process, status int) {
	p.exitOnce.Do(func() {
		p.terminate(status)

		m.mu.RLock()
		hooks := m.hooks
		m.mu.RUnlock()
		for _, hook := range hooks {
			hook(p, status)
		}

		m.reapChildren(p)
		p.SignalLoaded(false)
		close(p.done)

		if m.orphaned(p) {
			m.processes.Delete(p.PID)
		}

		m.log.Debug("process exited", "pid", p.PID, "name", p.Name, "status", status)
	})
}

// reapChildren drops p's children. Those that already exited are removed
// from the process table; the rest are removed when they exit.
func (m *Manager) reapChildren(p *Process) {
	p.mu.Lock()
	children := p.children
	p.mu.Unlock()

	for pid, c := range children {
		if c.IsTerminated() {
			m.processes.Delete(pid)
		}
	}
	p.orphanChildren()
}

// orphaned reports whether no process can wait for p any more.
func (m *Manager) orphaned(p *Process) bool {
	parent, err := m.GetProcess(p.ParentPID)
	if err != nil {
		return true
	}
	if parent.IsTerminated() {
		return true
	}
	_, ok := parent.Child(p.PID)
	return !ok
}

// Join blocks until every process thread has returned or ctx ends.
func (m *Manager) Join(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetProcess retrieves a process by PID.
func (m *Manager) GetProcess(pid int) (*Process, error) {
	if pid <= 0 {
		return nil, ErrInvalidPID
	}

	p, ok := m.processes.Load(pid)
	if !ok {
		return nil, ErrProcessNotFound
	}
	return p.(*Process), nil
}

// GetProcesses returns all processes.
func (m *Manager) GetProcesses() []*Process {
	processes := make([]*Process, 0)

	m.processes.Range(func(key, value interface{}) bool {
		processes = append(processes, value.(*Process))
		return true
	})

	return processes
}

// CountProcesses returns the total number of processes.
func (m *Manager) CountProcesses() int {
	count := 0
	m.processes.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// block marks p as waiting and returns a func that undoes it.
func block(p *Process) func() {
	if err := p.Block(); err != nil {
		return func() {}
	}
	return func() {
		p.Unblock()
	}
}
