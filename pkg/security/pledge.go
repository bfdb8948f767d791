package security

import "strings"

// Promise is a set of capabilities a process has pledged to stay within,
// inspired by OpenBSD's pledge. Promises combine with bitwise OR.
type Promise uint64

// Promise constants. Each system call belongs to exactly one of them.
const (
	// PromiseStdio allows console input and output.
	PromiseStdio Promise = 1 << iota
	// PromiseRpath allows opening, reading, seeking and closing files.
	PromiseRpath
	// PromiseWpath allows creating, removing and writing files.
	PromiseWpath
	// PromiseProc allows starting and waiting for child processes.
	PromiseProc
	// PromisePower allows powering off the machine.
	PromisePower
)

// PromiseAll holds every capability.
const PromiseAll = PromiseStdio | PromiseRpath | PromiseWpath | PromiseProc | PromisePower

var promiseNames = []struct {
	promise Promise
	name    string
}{
	{PromiseStdio, "stdio"},
	{PromiseRpath, "rpath"},
	{PromiseWpath, "wpath"},
	{PromiseProc, "proc"},
	{PromisePower, "power"},
}

// HasCapability returns true if the promise includes every bit of cap.
func (p Promise) HasCapability(cap Promise) bool {
	return p&cap == cap
}

// AddCapability returns a new promise with the additional capability included.
func (p Promise) AddCapability(cap Promise) Promise {
	return p | cap
}

// RemoveCapability returns a new promise with the specified capability removed.
func (p Promise) RemoveCapability(cap Promise) Promise {
	return p &^ cap
}

// Inherit returns the promises a child gets when its parent holds p and the
// child's program asks for want. A child never gains what the parent lacks.
func (p Promise) Inherit(want Promise) Promise {
	return p & want
}

// String returns the promise names separated by spaces, in pledge(2) style.
func (p Promise) String() string {
	names := make([]string, 0, len(promiseNames))
	for _, pn := range promiseNames {
		if p.HasCapability(pn.promise) {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, " ")
}

// ParsePromise parses a space separated promise list such as "stdio rpath".
// Unknown names are reported with ok set to false.
func ParsePromise(s string) (Promise, bool) {
	var p Promise
	for _, field := range strings.Fields(s) {
		found := false
		for _, pn := range promiseNames {
			if pn.name == field {
				p |= pn.promise
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return p, true
}
