/*
Package userprog implements the system call boundary between user programs
and the kernel.

A program traps with its stack pointer in a Frame. Word 0 on the stack is
the call number and words 1..N are its arguments:

	 0 halt      4 create    8 read     12 close
	 1 exit      5 remove    9 write
	 2 exec      6 open     10 seek
	 3 wait      7 filesize 11 tell

Dispatch validates every stack word and every pointer argument before it
is used. An invalid address, an unknown call number or a call outside the
process's promises terminates the process with status -1. Recoverable
failures are reported to the program as -1 or false.

Descriptors 0 and 1 are the keyboard and the console. read and write fail
on unknown descriptors, while seek, tell, filesize and close quietly do
nothing.

The filesystem lock is held around single filesystem calls only, never
while user memory is validated or copied.
*/
package userprog
