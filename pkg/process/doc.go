/*
Package process provides process management for the kernel.

Every user process runs its program on its own goroutine, which plays the
part of the kernel thread. The package tracks the process table, the
parent/child relationships and the lifecycle of each process:

  - Ready: created, program not loaded yet
  - Running: program executing
  - Waiting: blocked in exec or wait
  - Zombie: exited, status kept for the parent

# Starting a child

Execute creates the child, starts its thread and blocks until the child
reports whether its program loaded. The report is a one-shot handshake:

	pid, err := manager.Execute(ctx, parent, "echo hello")
	if err != nil {
		// pid is -1; nothing is running
	}

The child signals exactly once, whether the loader succeeds, fails or
panics.

# Waiting

Wait only accepts direct children and succeeds at most once per child:

	status := manager.Wait(ctx, parent, pid)

A second wait on the same pid, or a wait on a pid that is not a child of
the caller, returns -1 immediately.

# Exit

Exit records the status, runs the registered exit hooks and then wakes the
parent. It is idempotent, so a process killed by the kernel and a process
calling exit go through the same path. The kernel uses the hooks to close
open files, release the address space and print the exit message.
*/
package process
