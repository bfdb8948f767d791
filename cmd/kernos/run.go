package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kernos/pkg/config"
	"kernos/pkg/kernel"
	"kernos/pkg/programs"
)

func newRunCommand() *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "run [flags] -- PROGRAM [ARGS...]",
		Short: "Boot a machine and run one program",
		Long: `Boot a machine, run the command line as the first user process and
exit with its status. The keyboard reads from standard input and the
console writes to standard output.`,
		Example: `  kernos run -- echo hello world
  kernos run --file notes.txt=./notes.txt -- cat notes.txt
  kernos run --set disk_dir=/tmp/disk -- cp a b`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			for _, spec := range files {
				f, err := hostFile(spec)
				if err != nil {
					return err
				}
				cfg.Files = append(cfg.Files, f)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runProgram(ctx, cfg, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringArrayVar(&files, "file", nil, "preload a host file as NAME=PATH")
	return cmd
}

func runProgram(ctx context.Context, cfg *config.Config, cmdline string) error {
	log := newLogger(cfg)

	m, err := kernel.New(cfg, programs.Registry(),
		kernel.WithKeyboard(os.Stdin),
		kernel.WithConsoleOutput(os.Stdout),
		kernel.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("failed to boot: %w", err)
	}

	status, err := m.Run(ctx, cmdline)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := m.Shutdown(shutdownCtx); serr != nil {
		log.Warn("processes still running at shutdown", "error", serr)
	}

	switch {
	case errors.Is(err, kernel.ErrHalted):
		return nil
	case err != nil:
		return err
	case status != 0:
		return &exitError{code: status & 0xff}
	}
	return nil
}

// hostFile reads NAME=PATH into a file to preload.
func hostFile(spec string) (config.FileConfig, error) {
	name, path, ok := strings.Cut(spec, "=")
	if !ok || name == "" || path == "" {
		return config.FileConfig{}, fmt.Errorf("--file %q: expected NAME=PATH", spec)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("--file %q: %w", spec, err)
	}
	return config.FileConfig{Name: name, Content: string(data)}, nil
}
