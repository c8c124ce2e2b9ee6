// Package goid provides goroutine identity helpers for the serial queue
// machinery: a pprof-labeled goroutine spawner and a numeric goroutine ID
// used for queue-affinity checks.
package goid

import (
	"bytes"
	"context"
	"runtime"
	"runtime/pprof"
	"strconv"
)

// Go starts a goroutine labeled with a name visible in pprof profiles.
// Example usage:
//
//	goid.Go("queue/com.example.worker", func() {
//	    // work
//	})
func Go(name string, fn func()) {
	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(context.Background(), labels, func(context.Context) {
		fn()
	})
}

// Current returns the numeric goroutine ID of the caller (hacky, but the
// runtime offers no sanctioned accessor).
func Current() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	gid, _ := strconv.ParseUint(string(b[:i]), 10, 64)
	return gid
}
