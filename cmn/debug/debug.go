// Package debug provides togglable invariant assertions. Disabled by
// default so release builds pay nothing for the checks; tests and
// debug tooling flip Enabled to catch contract violations early.
package debug

import "fmt"

// Enabled gates every Assert call in this package. Tests that want the
// invariants enforced set it in TestMain or a package init.
var Enabled = false

// Assert panics with msg (and optional args, fmt.Sprint-joined) if cond is
// false and Enabled is true. A no-op otherwise.
func Assert(cond bool, args ...any) {
	if !Enabled || cond {
		return
	}
	if len(args) == 0 {
		panic("assertion failed")
	}
	panic(fmt.Sprint(args...))
}

// Assertf is Assert with a format string.
func Assertf(cond bool, format string, args ...any) {
	if !Enabled || cond {
		return
	}
	panic(fmt.Sprintf(format, args...))
}

// AssertNoErr panics if err != nil and Enabled is true.
func AssertNoErr(err error) {
	if !Enabled || err == nil {
		return
	}
	panic(err)
}
