package userprog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"kernos/pkg/filesys"
	"kernos/pkg/process"
	"kernos/pkg/security"
	"kernos/pkg/usermem"
)

// DefaultChunkSize bounds a single console write.
const DefaultChunkSize = 200

// Dispatcher errors.
var (
	ErrPowerOff    = errors.New("userprog: machine powered off")
	ErrMissingPart = errors.New("userprog: missing collaborator")
	ErrNoPageDir   = errors.New("userprog: process has no address space")
)

// ExitError ends a program after exit or a kill. The process has already
// been terminated with Status when it is returned.
type ExitError struct {
	Status int
	Cause  error
}

// Error returns the error message.
func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("process exited with status %d: %v", e.Status, e.Cause)
	}
	return fmt.Sprintf("process exited with status %d", e.Status)
}

// Unwrap returns the kill cause, if any.
func (e *ExitError) Unwrap() error {
	return e.Cause
}

// IsTerminal reports whether err means the calling program must not resume.
func IsTerminal(err error) bool {
	var ee *ExitError
	return errors.As(err, &ee) || errors.Is(err, ErrPowerOff)
}

// PromiseError is the kill cause for a call outside the process's promises.
type PromiseError struct {
	Number  Number
	Missing security.Promise
}

// Error returns the error message.
func (e *PromiseError) Error() string {
	return fmt.Sprintf("userprog: %s requires promise %q", e.Number, e.Missing.String())
}

// Console receives program output.
type Console interface {
	PutBuf(p []byte)
}

// Keyboard supplies program input one key at a time.
type Keyboard interface {
	GetChar() byte
}

// PowerController turns the machine off.
type PowerController interface {
	PowerOff()
}

// ProcessControl is the process lifecycle the handlers delegate to.
type ProcessControl interface {
	Execute(ctx context.Context, parent *process.Process, cmdline string) (int, error)
	Wait(ctx context.Context, parent *process.Process, pid int) int
	Exit(p *process.Process, status int)
}

// Options configures a Dispatcher.
type Options struct {
	// FS is the filesystem behind create, remove and open.
	FS filesys.FileSystem
	// Lock serialises every filesystem call. It must be the lock the
	// process descriptor tables were built with.
	Lock sync.Locker
	// Procs runs exec, wait and exit.
	Procs ProcessControl
	// Console receives writes to descriptor 1.
	Console Console
	// Keyboard serves reads from descriptor 0.
	Keyboard Keyboard
	// Power serves halt.
	Power PowerController
	// Logger receives call traces. Nil discards them.
	Logger hclog.Logger
	// ChunkSize bounds one console write. Zero means DefaultChunkSize.
	ChunkSize int
}

// handler runs one call. It returns the value for EAX, or a terminal error.
type handler func(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error)

// pointerKind says how a call's pointer argument is validated.
type pointerKind int

const (
	noPointer pointerKind = iota
	// stringArg is a NUL-terminated string in argument 0.
	stringArg
	// bufferArg is a buffer in argument 1 whose size is argument 2.
	bufferArg
	// outBufferArg is a bufferArg the kernel writes into.
	outBufferArg
)

type call struct {
	handler handler
	// returns is false for calls that leave EAX untouched.
	returns bool
	promise security.Promise
	pointer pointerKind
}

var calls = [numCalls]call{
	SysHalt:     {handler: sysHalt, promise: security.PromisePower},
	SysExit:     {handler: sysExit},
	SysExec:     {handler: sysExec, returns: true, promise: security.PromiseProc, pointer: stringArg},
	SysWait:     {handler: sysWait, returns: true, promise: security.PromiseProc},
	SysCreate:   {handler: sysCreate, returns: true, promise: security.PromiseWpath, pointer: stringArg},
	SysRemove:   {handler: sysRemove, returns: true, promise: security.PromiseWpath, pointer: stringArg},
	SysOpen:     {handler: sysOpen, returns: true, promise: security.PromiseRpath, pointer: stringArg},
	SysFilesize: {handler: sysFilesize, returns: true, promise: security.PromiseRpath},
	SysRead:     {handler: sysRead, returns: true, pointer: outBufferArg},
	SysWrite:    {handler: sysWrite, returns: true, pointer: bufferArg},
	SysSeek:     {handler: sysSeek, promise: security.PromiseRpath},
	SysTell:     {handler: sysTell, returns: true, promise: security.PromiseRpath},
	SysClose:    {handler: sysClose, promise: security.PromiseRpath},
}

// Dispatcher decodes traps and runs the matching handler on the calling
// process's thread.
type Dispatcher struct {
	fs        filesys.FileSystem
	lock      sync.Locker
	procs     ProcessControl
	console   Console
	keyboard  Keyboard
	power     PowerController
	log       hclog.Logger
	chunkSize int
}

// New creates a dispatcher.
func New(opts Options) (*Dispatcher, error) {
	switch {
	case opts.FS == nil:
		return nil, fmt.Errorf("%w: filesystem", ErrMissingPart)
	case opts.Lock == nil:
		return nil, fmt.Errorf("%w: filesystem lock", ErrMissingPart)
	case opts.Procs == nil:
		return nil, fmt.Errorf("%w: process control", ErrMissingPart)
	case opts.Console == nil:
		return nil, fmt.Errorf("%w: console", ErrMissingPart)
	case opts.Keyboard == nil:
		return nil, fmt.Errorf("%w: keyboard", ErrMissingPart)
	case opts.Power == nil:
		return nil, fmt.Errorf("%w: power control", ErrMissingPart)
	}

	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	return &Dispatcher{
		fs:        opts.FS,
		lock:      opts.Lock,
		procs:     opts.Procs,
		console:   opts.Console,
		keyboard:  opts.Keyboard,
		power:     opts.Power,
		log:       log,
		chunkSize: chunk,
	}, nil
}

// Dispatch handles one trap from p. It returns nil when the program should
// resume, with the result in f.EAX for calls that produce one. Any other
// result is terminal: *ExitError after exit or a kill, ErrPowerOff after
// halt.
func (d *Dispatcher) Dispatch(ctx context.Context, p *process.Process, f *Frame) error {
	if p.PageDir == nil {
		return d.kill(p, ErrNoPageDir)
	}

	req, err := decodeFrame(p.PageDir, f.ESP)
	if err != nil {
		return d.kill(p, err)
	}

	c := calls[req.Number]
	if err := d.require(p, req.Number, c.promise); err != nil {
		return err
	}
	if err := validatePointers(p, c.pointer, req); err != nil {
		return d.kill(p, err)
	}

	ret, err := c.handler(ctx, d, p, req)
	if err != nil {
		d.log.Trace("syscall", "pid", p.PID, "name", p.Name, "call", req.Number, "terminal", err)
		return err
	}

	if c.returns {
		f.EAX = uint32(int32(ret))
	}
	d.log.Trace("syscall", "pid", p.PID, "name", p.Name, "call", req.Number, "result", ret)
	return nil
}

// validatePointers checks a call's pointer argument before any handler
// code runs. Strings are copied into the kernel here.
func validatePointers(p *process.Process, kind pointerKind, req *Request) error {
	switch kind {
	case stringArg:
		s, err := usermem.CopyInString(p.PageDir, req.Addr(0))
		if err != nil {
			return err
		}
		req.str = s
	case bufferArg:
		return usermem.ValidateBuffer(p.PageDir, req.Addr(1), req.Uint(2))
	case outBufferArg:
		return usermem.ValidateWritable(p.PageDir, req.Addr(1), req.Uint(2))
	}
	return nil
}

// require kills p unless it holds promise.
func (d *Dispatcher) require(p *process.Process, n Number, promise security.Promise) error {
	if p.Promises.HasCapability(promise) {
		return nil
	}
	return d.kill(p, &PromiseError{Number: n, Missing: promise &^ p.Promises})
}

// kill terminates p with process.ExitFault.
func (d *Dispatcher) kill(p *process.Process, cause error) error {
	d.log.Debug("killing process", "pid", p.PID, "name", p.Name, "reason", cause)
	d.procs.Exit(p, process.ExitFault)
	return &ExitError{Status: process.ExitFault, Cause: cause}
}

// withLock runs fn holding the filesystem lock.
func (d *Dispatcher) withLock(fn func()) {
	d.lock.Lock()
	defer d.lock.Unlock()
	fn()
}
