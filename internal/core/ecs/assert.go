//go:build !release

package ecs

import "fmt"

// assertf panics when an invariant of the world is violated. Release
// builds compile the checks out.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
