// Package dispatchq provides a cooperative task executor bound to a serial
// execution context, and a confinement wrapper that makes thread-affine
// values usable from many goroutines by funneling every access through that
// one context.
//
// This package implements the concurrency core needed by bindings to
// thread-affine native APIs (UI toolkits, device managers, single-threaded
// native objects) with support for:
//   - FIFO serial queues with enqueue-now and enqueue-after-delay semantics
//   - Cooperative tasks with suspension, coalescing wakes and cancellation
//   - Failure isolation: one task's panic never halts its siblings
//   - Queue-confined values accessed through scheduled closures (Handle)
//   - A main-thread capability token and a main-queue run loop
//
// Inter-queue coordination is deliberately left to the caller: one queue
// schedules a message onto another, never a shared mutable reference.
package dispatchq
