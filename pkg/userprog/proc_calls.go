package userprog

import (
	"context"

	"kernos/pkg/process"
)

// sysHalt powers the machine off. The caller never resumes.
func sysHalt(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error) {
	d.log.Info("halt requested", "pid", p.PID, "name", p.Name)
	d.power.PowerOff()
	return 0, ErrPowerOff
}

// sysExit terminates the caller with the given status.
func sysExit(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error) {
	status := req.Int(0)
	d.procs.Exit(p, status)
	return 0, &ExitError{Status: status}
}

// sysExec starts a child and returns its pid once it has loaded, or -1.
func sysExec(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error) {
	pid, err := d.procs.Execute(ctx, p, req.Text())
	if err != nil {
		d.log.Debug("exec failed", "pid", p.PID, "cmdline", req.Text(), "error", err)
		return -1, nil
	}
	return pid, nil
}

// sysWait waits for a direct child to exit.
func sysWait(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error) {
	return d.procs.Wait(ctx, p, req.Int(0)), nil
}
