package process

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"kernos/pkg/fdtable"
	"kernos/pkg/security"
	"kernos/pkg/vm"
)

// ProcessState represents the state of a process in the system.
type ProcessState string

const (
	// StateReady indicates the process exists but its program is not loaded yet.
	StateReady ProcessState = "ready"
	// StateRunning indicates the process is executing its program.
	StateRunning ProcessState = "running"
	// StateWaiting indicates the process is blocked in exec or wait.
	StateWaiting ProcessState = "waiting"
	// StateZombie indicates the process has exited. Its status stays
	// readable by the parent.
	StateZombie ProcessState = "zombie"
)

// ExitFault is the status of a process the kernel terminated.
const ExitFault = -1

// Process is one user process. The kernel thread running it is a goroutine.
type Process struct {
	// PID is the unique process identifier.
	PID int
	// ParentPID is the PID of the process that started this one.
	ParentPID int
	// Name is the program name, the first word of the command line.
	Name string
	// CmdLine is the full command line.
	CmdLine string
	// CreatedAt is when the process was created.
	CreatedAt time.Time
	// StartedAt is when the program began executing.
	StartedAt time.Time
	// FinishedAt is when the process exited.
	FinishedAt time.Time
	// PageDir is the user address space. It is set by the loader.
	PageDir *vm.PageDir
	// Files is the open file table.
	Files *fdtable.Table
	// Promises restricts the system calls the process may make.
	Promises security.Promise
	// Limits defines resource limits for this process.
	Limits *ResourceLimits

	// mu protects the fields below.
	mu         sync.Mutex
	state      ProcessState
	exitStatus int
	loaded     bool
	children   map[int]*Process

	loadSem  *semaphore.Weighted
	loadOnce sync.Once
	exitOnce sync.Once
	done     chan struct{}
}

// NewProcess creates a process record for cmdline. The load handshake
// starts unsignalled.
func NewProcess(pid int, parentPID int, cmdline string) *Process {
	name := cmdline
	if fields := strings.Fields(cmdline); len(fields) > 0 {
		name = fields[0]
	}

	sem := semaphore.NewWeighted(1)
	sem.TryAcquire(1)

	return &Process{
		PID:       pid,
		ParentPID: parentPID,
		Name:      name,
		CmdLine:   cmdline,
		CreatedAt: time.Now(),
		Promises:  security.PromiseAll,
		Limits:    DefaultLimits(),
		state:     StateReady,
		children:  make(map[int]*Process),
		loadSem:   sem,
		done:      make(chan struct{}),
	}
}

// SetState atomically sets the process state.
func (p *Process) SetState(state ProcessState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

// GetState atomically gets the process state.
func (p *Process) GetState() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ExitStatus returns the recorded exit status. It is meaningful once Done
// is closed.
func (p *Process) ExitStatus() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitStatus
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Loaded reports whether the program image loaded successfully.
func (p *Process) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// SignalLoaded records the load result and wakes the parent blocked in
// Execute. Only the first call has any effect.
func (p *Process) SignalLoaded(ok bool) {
	p.loadOnce.Do(func() {
		p.mu.Lock()
		p.loaded = ok
		p.mu.Unlock()
		p.loadSem.Release(1)
	})
}

// WaitLoaded blocks until SignalLoaded has been called.
func (p *Process) WaitLoaded(ctx context.Context) error {
	if err := p.loadSem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.loadSem.Release(1)
	return nil
}

// Child returns the direct child with the given pid that has not been
// waited for yet.
func (p *Process) Child(pid int) (*Process, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.children[pid]
	return c, ok
}

// ChildCount returns the number of children not yet waited for.
func (p *Process) ChildCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.children)
}

// liveChildren counts children that have not exited.
func (p *Process) liveChildren() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, c := range p.children {
		select {
		case <-c.done:
		default:
			n++
		}
	}
	return n
}

func (p *Process) addChild(c *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children[c.PID] = c
}

// takeChild removes and returns the child with pid, so it can be waited
// for at most once.
func (p *Process) takeChild(pid int) *Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.children[pid]
	if !ok {
		return nil
	}
	delete(p.children, pid)
	return c
}

// orphanChildren forgets every child. Their statuses are no longer needed.
func (p *Process) orphanChildren() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children = make(map[int]*Process)
}
