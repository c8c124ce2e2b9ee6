package dispatchq

import (
	"runtime"
	"sync"

	"github.com/srg/dispatchq/mainthread"
)

// ----------------------------
// Main queue
// ----------------------------

var (
	mainQueueOnce sync.Once
	mainQueue     *SerialQueue
)

// Main returns the process-wide serial queue associated with the main
// thread. It is a manual queue: closures accumulate until RunMain drives
// them. The marker requirement keeps accidental off-main construction of
// main-thread state visible at call sites.
func Main(_ mainthread.Marker) *SerialQueue {
	mainQueueOnce.Do(func() {
		mainQueue = NewSerialQueue("dispatchq.main", &QueueOptions{Manual: true})
	})
	return mainQueue
}

// RunMain pins the calling goroutine to its OS thread and drives the main
// queue until it is shut down. This is the run loop for programs that have
// no platform-provided one; it never returns before Shutdown.
func RunMain(m mainthread.Marker) {
	q := Main(m)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		_ = q.RunUntilStalled()

		q.mu.Lock()
		done := q.down && q.work.Length() == 0
		q.mu.Unlock()
		if done {
			return
		}

		select {
		case <-q.wakeCh:
		case <-q.downCh:
		}
	}
}
