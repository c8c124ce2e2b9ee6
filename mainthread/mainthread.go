// Package mainthread models the platform-designated main thread as a
// capability. The main goroutine's identity is process-wide state
// established once at startup and only ever queried here, never mutated.
//
// Operations that must run on the main thread take a Marker parameter
// instead of performing an internal runtime check, which makes the
// requirement visible at the call site.
package mainthread

import (
	"github.com/srg/dispatchq/internal/goid"
)

// mainGID is captured while the runtime executes package initialization,
// which the language spec guarantees happens on the main goroutine.
var mainGID = goid.Current()

// Marker is a zero-content capability token proving the holder obtained it
// on the main goroutine. New is the only sanctioned constructor; a
// zero-value Marker forged elsewhere carries no such proof.
type Marker struct {
	_ [0]func()
}

// New returns a valid token when called on the main goroutine, and ok=false
// anywhere else.
func New() (Marker, bool) {
	if !Is() {
		return Marker{}, false
	}
	return Marker{}, true
}

// Is reports whether the caller is executing on the main goroutine
func Is() bool {
	return mainGID != 0 && goid.Current() == mainGID
}
