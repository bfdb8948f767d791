/*
Package security implements pledge-style promises for user processes.

A process holds a Promise, a bit set of capabilities. Every system call
belongs to one promise; calling outside the held set terminates the
process. A child starts with the intersection of its parent's promises
and the promises its program asks for, so privileges only shrink down a
process tree.

	parent := security.PromiseStdio | security.PromiseProc
	child := parent.Inherit(security.PromiseAll) // stdio proc
*/
package security
