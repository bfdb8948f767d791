package ulib

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"kernos/pkg/security"
	"kernos/pkg/vm"
)

// Registry errors.
var (
	ErrNoProgram  = errors.New("ulib: no such program")
	ErrDuplicate  = errors.New("ulib: program already registered")
	ErrEmptyName  = errors.New("ulib: program name is empty")
	ErrNoMainFunc = errors.New("ulib: program has no main")
)

// Main is a program body. argv[0] is the program name. The result is the
// exit status.
type Main func(rt *Runtime, argv []string) int

// Program is an executable the loader can start.
type Program struct {
	Name string
	Main Main
	// Promises restricts the calls the program may make. Zero grants
	// every promise.
	Promises security.Promise
	// Description is shown in program listings.
	Description string
}

// Pledged returns the effective promises of the program.
func (p *Program) Pledged() security.Promise {
	if p.Promises == 0 {
		return security.PromiseAll
	}
	return p.Promises
}

// Registry maps program names to programs.
type Registry struct {
	mu       sync.RWMutex
	programs map[string]*Program
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{programs: make(map[string]*Program)}
}

// Register adds prog.
func (r *Registry) Register(prog *Program) error {
	if prog.Name == "" {
		return ErrEmptyName
	}
	if prog.Main == nil {
		return fmt.Errorf("%w: %s", ErrNoMainFunc, prog.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.programs[prog.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, prog.Name)
	}
	r.programs[prog.Name] = prog
	return nil
}

// MustRegister adds prog and panics on error.
func (r *Registry) MustRegister(prog *Program) {
	if err := r.Register(prog); err != nil {
		panic(err)
	}
}

// Lookup finds a program by name.
func (r *Registry) Lookup(name string) (*Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prog, ok := r.programs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProgram, name)
	}
	return prog, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.programs))
	for name := range r.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start is the program entry point, the equivalent of crt0. It reads argc
// and argv from the initial stack, runs prog and exits with its result.
func Start(rt *Runtime, prog *Program) {
	argc := int(int32(rt.PeekWord(rt.entry + vm.WordSize)))
	argvp := rt.ArgvAddr()

	argv := make([]string, 0, max(argc, 0))
	for i := 0; i < argc; i++ {
		p := vm.Addr(rt.PeekWord(argvp + vm.Addr(i*vm.WordSize)))
		argv = append(argv, rt.LoadString(p))
	}

	rt.Exit(prog.Main(rt, argv))
}
