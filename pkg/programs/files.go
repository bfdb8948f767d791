package programs

import (
	"fmt"
	"strconv"
	"strings"

	"kernos/pkg/ulib"
	"kernos/pkg/userprog"
	"kernos/pkg/vm"
)

func filePrograms() []*ulib.Program {
	return []*ulib.Program{
		{Name: "cat", Description: "cat FILE...: print files", Main: cat},
		{Name: "cp", Description: "cp SRC DST: copy a file", Main: cp},
		{Name: "rm", Description: "rm FILE...: remove files", Main: rm},
		{Name: "child-close", Description: "child-close FD: close a descriptor it does not own", Main: childClose},

		test("create-normal", func(t *T, rt *ulib.Runtime) int {
			t.Check(rt.Create("quux.dat", 0), "create quux.dat")
			return 0
		}),
		test("create-empty", func(t *T, rt *ulib.Runtime) int {
			t.Msg("create(\"\"): %d", boolInt(rt.Create("", 0)))
			return 0
		}),
		test("create-long", func(t *T, rt *ulib.Runtime) int {
			name := strings.Repeat("x", 511)
			t.Msg("create(\"x...\"): %d", boolInt(rt.Create(name, 0)))
			return 0
		}),
		test("create-huge", func(t *T, rt *ulib.Runtime) int {
			t.Msg("create(\"huge\", %#x): %d", uint32(0xFFFFFFFF), boolInt(rt.Create("huge", 0xFFFFFFFF)))
			t.Check(rt.Create("small", 512), "create small")
			return 0
		}),
		test("create-exists", func(t *T, rt *ulib.Runtime) int {
			t.Check(rt.Create("quux.dat", 0), "create quux.dat")
			t.Check(rt.Create("warble.dat", 0), "create warble.dat")
			t.Check(!rt.Create("quux.dat", 0), "try to re-create quux.dat")
			t.Check(rt.Create("baffle.dat", 0), "create baffle.dat")
			return 0
		}),
		test("create-bound", func(t *T, rt *ulib.Runtime) int {
			name := storeAcrossBoundary(rt, []byte("quux.dat\x00"))
			ok := rt.Syscall(userprog.SysCreate, uint32(name), 0)
			t.Msg("create(\"quux.dat\"): %d", ok)
			return 0
		}),
		test("open-normal", func(t *T, rt *ulib.Runtime) int {
			t.Check(rt.Open("sample.txt") > 1, "open \"sample.txt\"")
			return 0
		}),
		test("open-missing", func(t *T, rt *ulib.Runtime) int {
			t.Check(rt.Open("no-such-file") == -1, "open \"no-such-file\"")
			return 0
		}),
		test("open-empty", func(t *T, rt *ulib.Runtime) int {
			t.Msg("open(\"\") returned %d", rt.Open(""))
			return 0
		}),
		test("open-boundary", func(t *T, rt *ulib.Runtime) int {
			name := storeAcrossBoundary(rt, []byte("sample.txt\x00"))
			fd := rt.Syscall(userprog.SysOpen, uint32(name))
			t.Check(fd > 1, "open \"sample.txt\"")
			return 0
		}),
		test("open-twice", func(t *T, rt *ulib.Runtime) int {
			a := rt.Open("sample.txt")
			t.Check(a > 1, "open \"sample.txt\" once")
			b := rt.Open("sample.txt")
			t.Check(b > 1, "open \"sample.txt\" again")
			if a == b {
				return t.Fail("open() returned %d both times", a)
			}
			return 0
		}),
		test("open-many", func(t *T, rt *ulib.Runtime) int {
			fds := make([]string, 0, 5)
			var third int
			for i := 0; i < 5; i++ {
				fd := rt.Open("sample.txt")
				if i == 2 {
					third = fd
				}
				fds = append(fds, strconv.Itoa(fd))
			}
			t.Msg("fds = %s", strings.Join(fds, " "))
			rt.Close(third)
			t.Msg("reopened fd = %d", rt.Open("sample.txt"))
			return 0
		}),
		test("close-normal", func(t *T, rt *ulib.Runtime) int {
			fd := rt.Open("sample.txt")
			t.Check(fd > 1, "open \"sample.txt\"")
			t.Msg("close \"sample.txt\"")
			rt.Close(fd)
			return 0
		}),
		test("close-twice", func(t *T, rt *ulib.Runtime) int {
			fd := rt.Open("sample.txt")
			t.Check(fd > 1, "open \"sample.txt\"")
			t.Msg("close \"sample.txt\"")
			rt.Close(fd)
			t.Msg("close \"sample.txt\" again")
			rt.Close(fd)
			return 0
		}),
		test("close-stdin", func(t *T, rt *ulib.Runtime) int {
			rt.Close(ulib.Stdin)
			return 0
		}),
		test("close-stdout", func(t *T, rt *ulib.Runtime) int {
			rt.Close(ulib.Stdout)
			return 0
		}),
		test("close-bad-fd", func(t *T, rt *ulib.Runtime) int {
			rt.Close(BadPtr)
			return 0
		}),
		test("read-normal", func(t *T, rt *ulib.Runtime) int {
			checkFile(t, rt, "sample.txt", SampleText)
			return 0
		}),
		test("read-boundary", func(t *T, rt *ulib.Runtime) int {
			fd := rt.Open("sample.txt")
			t.Check(fd > 1, "open \"sample.txt\"")

			buf := boundary(rt) - vm.Addr(len(SampleText)/2)
			if n := rt.Read(fd, buf, uint32(len(SampleText))); n != len(SampleText) {
				return t.Fail("read() returned %d instead of %d", n, len(SampleText))
			}
			if got := string(rt.Load(buf, len(SampleText))); got != SampleText {
				return t.Fail("expected text differs from actual")
			}
			return 0
		}),
		test("read-zero", func(t *T, rt *ulib.Runtime) int {
			fd := rt.Open("sample.txt")
			t.Check(fd > 1, "open \"sample.txt\"")
			buf := rt.Alloc(1)
			if n := rt.Read(fd, buf, 0); n != 0 {
				return t.Fail("read() returned %d instead of 0", n)
			}
			return 0
		}),
		test("read-stdout", func(t *T, rt *ulib.Runtime) int {
			buf := rt.Alloc(16)
			t.Msg("read(STDOUT) = %d", rt.Read(ulib.Stdout, buf, 16))
			return 0
		}),
		test("read-bad-fd", func(t *T, rt *ulib.Runtime) int {
			buf := rt.Alloc(1)
			for _, fd := range badDescriptors {
				if n := rt.Read(fd, buf, 1); n != -1 {
					return t.Fail("read(%d) returned %d", fd, n)
				}
			}
			return 0
		}),
		test("write-normal", func(t *T, rt *ulib.Runtime) int {
			fd := rt.Open("sample.txt")
			t.Check(fd > 1, "open \"sample.txt\"")
			if n := rt.WriteBytes(fd, []byte(SampleText)); n != len(SampleText) {
				return t.Fail("write() returned %d instead of %d", n, len(SampleText))
			}
			return 0
		}),
		test("write-boundary", func(t *T, rt *ulib.Runtime) int {
			fd := rt.Open("sample.txt")
			t.Check(fd > 1, "open \"sample.txt\"")
			buf := storeAcrossBoundary(rt, []byte(SampleText))
			if n := rt.Write(fd, buf, uint32(len(SampleText))); n != len(SampleText) {
				return t.Fail("write() returned %d instead of %d", n, len(SampleText))
			}
			return 0
		}),
		test("write-zero", func(t *T, rt *ulib.Runtime) int {
			fd := rt.Open("sample.txt")
			t.Check(fd > 1, "open \"sample.txt\"")
			buf := rt.Alloc(1)
			if n := rt.Write(fd, buf, 0); n != 0 {
				return t.Fail("write() returned %d instead of 0", n)
			}
			return 0
		}),
		test("write-stdin", func(t *T, rt *ulib.Runtime) int {
			buf := rt.PutString("x")
			t.Msg("write(STDIN) = %d", rt.Write(ulib.Stdin, buf, 1))
			return 0
		}),
		test("write-bad-fd", func(t *T, rt *ulib.Runtime) int {
			buf := rt.PutString("x")
			for _, fd := range badDescriptors {
				if n := rt.Write(fd, buf, 1); n != -1 {
					return t.Fail("write(%d) returned %d", fd, n)
				}
			}
			return 0
		}),
		test("bad-fd-benign", func(t *T, rt *ulib.Runtime) int {
			rt.Seek(BadPtr, 10)
			t.Msg("tell(bad) = %d", rt.Tell(BadPtr))
			t.Msg("filesize(bad) = %d", rt.Filesize(BadPtr))
			rt.Close(BadPtr)
			return 0
		}),
		test("fd-seq", func(t *T, rt *ulib.Runtime) int {
			fd := rt.Open("x")
			t.Msg("open(\"x\") = %d", fd)
			t.Msg("write(%d, \"hi\", 2) = %d", fd, rt.WriteBytes(fd, []byte("hi")))
			rt.Seek(fd, 0)
			got, n := rt.ReadBytes(fd, 2)
			t.Msg("read(%d, buf, 2) = %d, buf = \"%s\"", fd, n, got)
			rt.Close(fd)
			t.Msg("tell(%d) = %d", fd, rt.Tell(fd))
			return 0
		}),
		test("seek-tell", func(t *T, rt *ulib.Runtime) int {
			fd := rt.Open("sample.txt")
			t.Check(fd > 1, "open \"sample.txt\"")
			t.Msg("filesize = %d", rt.Filesize(fd))
			rt.Seek(fd, 10)
			t.Msg("tell after seek 10 = %d", rt.Tell(fd))
			rt.Seek(fd, 1000)
			got, n := rt.ReadBytes(fd, 4)
			t.Msg("read past end = %d (%d bytes)", n, len(got))
			return 0
		}),
		test("multi-child-fd", func(t *T, rt *ulib.Runtime) int {
			fd := rt.Open("sample.txt")
			t.Check(fd > 1, "open \"sample.txt\"")
			t.Msg("wait(exec()) = %d", rt.Wait(rt.Exec(fmt.Sprintf("child-close %d", fd))))

			got, n := rt.ReadBytes(fd, len(SampleText))
			if n != len(SampleText) || string(got) != SampleText {
				return t.Fail("read %d bytes after child closed descriptor", n)
			}
			t.Msg("verified contents of \"sample.txt\"")
			return 0
		}),
		test("remove-open", func(t *T, rt *ulib.Runtime) int {
			fd := rt.Open("sample.txt")
			t.Check(fd > 1, "open \"sample.txt\"")
			t.Check(rt.Remove("sample.txt"), "remove \"sample.txt\"")
			t.Check(rt.Open("sample.txt") == -1, "open removed \"sample.txt\" fails")

			got, n := rt.ReadBytes(fd, len(SampleText))
			if n != len(SampleText) || string(got) != SampleText {
				return t.Fail("read %d bytes from removed file", n)
			}
			t.Msg("read removed file through open descriptor")
			return 0
		}),
	}
}

// badDescriptors are never valid file descriptors.
var badDescriptors = []int{BadPtr, 5546, -5, -8192, -2147483648, 2147483647}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func cat(rt *ulib.Runtime, argv []string) int {
	status := 0
	for _, name := range argv[1:] {
		fd := rt.Open(name)
		if fd < 0 {
			rt.Print(fmt.Sprintf("cat: %s: open failed\n", name))
			status = 1
			continue
		}
		for {
			data, n := rt.ReadBytes(fd, 64)
			if n <= 0 {
				break
			}
			rt.WriteBytes(ulib.Stdout, data)
		}
		rt.Close(fd)
	}
	return status
}

func cp(rt *ulib.Runtime, argv []string) int {
	if len(argv) != 3 {
		rt.Print("usage: cp SRC DST\n")
		return 1
	}

	src := rt.Open(argv[1])
	if src < 0 {
		rt.Print(fmt.Sprintf("cp: %s: open failed\n", argv[1]))
		return 1
	}
	size := rt.Filesize(src)
	if !rt.Create(argv[2], uint32(size)) {
		rt.Print(fmt.Sprintf("cp: %s: create failed\n", argv[2]))
		return 1
	}
	dst := rt.Open(argv[2])
	if dst < 0 {
		rt.Print(fmt.Sprintf("cp: %s: open failed\n", argv[2]))
		return 1
	}

	for {
		data, n := rt.ReadBytes(src, 128)
		if n <= 0 {
			break
		}
		if w := rt.WriteBytes(dst, data); w != n {
			rt.Print(fmt.Sprintf("cp: %s: short write\n", argv[2]))
			return 1
		}
	}
	return 0
}

func rm(rt *ulib.Runtime, argv []string) int {
	status := 0
	for _, name := range argv[1:] {
		if !rt.Remove(name) {
			rt.Print(fmt.Sprintf("rm: %s: remove failed\n", name))
			status = 1
		}
	}
	return status
}

// childClose closes a descriptor that belongs to its parent. The call must
// not affect the parent.
func childClose(rt *ulib.Runtime, argv []string) int {
	t := &T{rt: rt, name: "child-close"}
	t.Msg("begin")
	if len(argv) > 1 {
		if fd, err := strconv.Atoi(argv[1]); err == nil {
			rt.Close(fd)
		}
	}
	t.Msg("end")
	return 0
}
