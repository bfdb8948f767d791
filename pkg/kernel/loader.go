package kernel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"kernos/pkg/process"
	"kernos/pkg/ulib"
	"kernos/pkg/vm"
)

// Loader limits.
const (
	// MaxArgs is the largest argc a command line may produce.
	MaxArgs = 128
	// MaxCmdLine is the longest command line, terminator included.
	MaxCmdLine = vm.PageSize
)

// Load errors.
var (
	ErrCmdLineTooLong = errors.New("kernel: command line too long")
	ErrTooManyArgs    = errors.New("kernel: too many arguments")
	ErrStackOverflow  = errors.New("kernel: arguments do not fit on the stack")
)

// loader builds process images from registered programs.
type loader struct {
	m   *Machine
	log hclog.Logger
}

// Load implements process.Loader.
func (l *loader) Load(p *process.Process, cmdline string) (process.Entry, error) {
	if len(cmdline)+1 > MaxCmdLine {
		return nil, ErrCmdLineTooLong
	}
	argv := strings.Fields(cmdline)
	if len(argv) == 0 {
		return nil, process.ErrInvalidCommand
	}
	if len(argv) > MaxArgs {
		return nil, fmt.Errorf("%w: %d", ErrTooManyArgs, len(argv))
	}

	prog, err := l.m.programs.Lookup(argv[0])
	if err != nil {
		l.m.console.PutBuf([]byte(fmt.Sprintf("load: %s: open failed\n", argv[0])))
		return nil, err
	}

	pd, layout, err := l.buildImage(argv)
	if err != nil {
		return nil, err
	}

	p.PageDir = pd
	p.Promises = p.Promises.Inherit(prog.Pledged())
	l.log.Debug("loaded program", "pid", p.PID, "name", prog.Name, "argc", len(argv), "promises", p.Promises.String())

	return func(p *process.Process) {
		rt := ulib.NewRuntime(l.m.ctx, p, l.m, layout)
		ulib.Start(rt, prog)
	}, nil
}

// buildImage maps the code, data and stack pages and pushes the arguments.
func (l *loader) buildImage(argv []string) (*vm.PageDir, ulib.Layout, error) {
	cfg := l.m.cfg
	pd := vm.NewPageDir()

	if err := pd.Map(ulib.CodeBase, false); err != nil {
		return nil, ulib.Layout{}, err
	}

	dataStart := ulib.CodeBase + vm.PageSize
	dataSize := cfg.DataPages * vm.PageSize
	if err := pd.MapRange(dataStart, dataSize, true); err != nil {
		return nil, ulib.Layout{}, err
	}

	stackBottom := vm.PhysBase - vm.Addr(cfg.StackPages*vm.PageSize)
	if err := pd.MapRange(stackBottom, cfg.StackPages*vm.PageSize, true); err != nil {
		return nil, ulib.Layout{}, err
	}

	esp, err := setupStack(pd, stackBottom, argv)
	if err != nil {
		pd.Destroy()
		return nil, ulib.Layout{}, err
	}

	return pd, ulib.Layout{
		ESP:       esp,
		DataStart: dataStart,
		DataEnd:   dataStart + vm.Addr(dataSize),
	}, nil
}

// setupStack lays out argv below PhysBase the way the C runtime expects:
// the strings, padding to a word boundary, a null sentinel, argv[argc-1]
// down to argv[0], argv, argc and a fake return address. It returns the
// initial stack pointer.
func setupStack(pd *vm.PageDir, bottom vm.Addr, argv []string) (vm.Addr, error) {
	esp := vm.PhysBase
	ptrs := make([]vm.Addr, len(argv))

	for i := len(argv) - 1; i >= 0; i-- {
		s := append([]byte(argv[i]), 0)
		if esp-bottom < vm.Addr(len(s)) {
			return 0, ErrStackOverflow
		}
		esp -= vm.Addr(len(s))
		if err := pd.Write(esp, s); err != nil {
			return 0, err
		}
		ptrs[i] = esp
	}

	esp &^= vm.WordSize - 1

	words := make([]uint32, 0, len(argv)+4)
	words = append(words, 0)
	for i := len(argv) - 1; i >= 0; i-- {
		words = append(words, uint32(ptrs[i]))
	}
	if esp-bottom < vm.Addr((len(words)+3)*vm.WordSize) {
		return 0, ErrStackOverflow
	}

	for _, w := range words {
		esp -= vm.WordSize
		if err := pd.WriteWord(esp, w); err != nil {
			return 0, err
		}
	}

	argvAddr := esp
	for _, w := range []uint32{uint32(argvAddr), uint32(len(argv)), 0} {
		esp -= vm.WordSize
		if err := pd.WriteWord(esp, w); err != nil {
			return 0, err
		}
	}
	return esp, nil
}
