package userprog

import (
	"context"

	"kernos/pkg/fdtable"
	"kernos/pkg/filesys"
	"kernos/pkg/process"
	"kernos/pkg/security"
	"kernos/pkg/usermem"
)

func boolResult(ok bool) int {
	if ok {
		return 1
	}
	return 0
}

func sysCreate(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error) {
	var err error
	d.withLock(func() {
		err = d.fs.Create(req.Text(), int64(req.Uint(1)))
	})
	if err != nil {
		d.log.Debug("create failed", "pid", p.PID, "file", req.Text(), "error", err)
	}
	return boolResult(err == nil), nil
}

func sysRemove(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error) {
	var err error
	d.withLock(func() {
		err = d.fs.Remove(req.Text())
	})
	return boolResult(err == nil), nil
}

func sysOpen(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error) {
	fd, err := p.Files.Open(req.Text())
	if err != nil {
		d.log.Debug("open failed", "pid", p.PID, "file", req.Text(), "error", err)
		return -1, nil
	}
	return fd, nil
}

// lookup finds a file descriptor. The console descriptors are never in
// the table.
func lookup(p *process.Process, fd int) (*fdtable.Handle, bool) {
	if fdtable.IsReserved(fd) {
		return nil, false
	}
	return p.Files.Lookup(fd)
}

func sysFilesize(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error) {
	h, ok := lookup(p, req.Int(0))
	if !ok {
		return 0, nil
	}

	var n int64
	d.withLock(func() {
		n = h.File.Length()
	})
	return int(n), nil
}

// sysRead reads from the keyboard or a file. Descriptor 1 and unknown
// descriptors fail with -1.
func sysRead(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error) {
	fd, buf, size := req.Int(0), req.Addr(1), req.Uint(2)

	switch fd {
	case fdtable.Stdin:
		if err := d.require(p, SysRead, security.PromiseStdio); err != nil {
			return 0, err
		}
		data := make([]byte, size)
		for i := range data {
			data[i] = d.keyboard.GetChar()
		}
		if err := usermem.CopyOut(p.PageDir, buf, data); err != nil {
			return 0, d.kill(p, err)
		}
		return int(size), nil
	case fdtable.Stdout:
		return -1, nil
	}

	h, ok := p.Files.Lookup(fd)
	if !ok {
		return -1, nil
	}
	if err := d.require(p, SysRead, security.PromiseRpath); err != nil {
		return 0, err
	}

	data := make([]byte, size)
	var n int
	var err error
	d.withLock(func() {
		n, err = h.File.Read(data)
	})
	if err != nil {
		d.log.Debug("read failed", "pid", p.PID, "fd", fd, "file", h.Name, "error", err)
	}
	if err := usermem.CopyOut(p.PageDir, buf, data[:n]); err != nil {
		return 0, d.kill(p, err)
	}
	return n, nil
}

// sysWrite writes to the console or a file. Descriptor 0 and unknown
// descriptors fail with -1.
func sysWrite(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error) {
	fd, buf, size := req.Int(0), req.Addr(1), req.Uint(2)

	switch fd {
	case fdtable.Stdout:
		if err := d.require(p, SysWrite, security.PromiseStdio); err != nil {
			return 0, err
		}
		data, err := usermem.CopyIn(p.PageDir, buf, size)
		if err != nil {
			return 0, d.kill(p, err)
		}
		d.putConsole(data)
		return int(size), nil
	case fdtable.Stdin:
		return -1, nil
	}

	h, ok := p.Files.Lookup(fd)
	if !ok {
		return -1, nil
	}
	if err := d.require(p, SysWrite, security.PromiseWpath); err != nil {
		return 0, err
	}

	data, err := usermem.CopyIn(p.PageDir, buf, size)
	if err != nil {
		return 0, d.kill(p, err)
	}
	var n int
	d.withLock(func() {
		n, err = h.File.Write(data)
	})
	if err != nil {
		d.log.Debug("write failed", "pid", p.PID, "fd", fd, "file", h.Name, "error", err)
	}
	return n, nil
}

// putConsole hands data to the console at most chunkSize bytes at a time.
func (d *Dispatcher) putConsole(data []byte) {
	for len(data) > 0 {
		n := min(len(data), d.chunkSize)
		d.console.PutBuf(data[:n])
		data = data[n:]
	}
}

// sysSeek clamps the position to filesys.MaxFileSize so tell stays
// non-negative.
func sysSeek(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error) {
	h, ok := lookup(p, req.Int(0))
	if !ok {
		return 0, nil
	}
	pos := min(int64(req.Uint(1)), filesys.MaxFileSize)
	d.withLock(func() {
		h.File.Seek(pos)
	})
	return 0, nil
}

func sysTell(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error) {
	h, ok := lookup(p, req.Int(0))
	if !ok {
		return 0, nil
	}

	var pos int64
	d.withLock(func() {
		pos = h.File.Tell()
	})
	return int(pos), nil
}

func sysClose(ctx context.Context, d *Dispatcher, p *process.Process, req *Request) (int, error) {
	fd := req.Int(0)
	if fdtable.IsReserved(fd) {
		return 0, nil
	}
	p.Files.Close(fd)
	return 0, nil
}
