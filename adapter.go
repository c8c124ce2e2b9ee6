package dispatchq

// CallbackAdapter is the narrow seam between a foreign callback surface
// (native delegates, C callbacks, OS notifications) and the executor core.
// An inbound callback becomes either new work on the bound queue or a wake
// of a suspended task; the core never calls outward through it.
type CallbackAdapter interface {
	// Post runs fn on the bound queue. Returns ErrQueueShutdown when the
	// queue no longer accepts work.
	Post(fn func()) error

	// Wake re-polls the task behind w. Safe from any goroutine, idempotent.
	Wake(w *Waker)
}

type executorAdapter struct {
	exec *Executor
}

// NewCallbackAdapter returns a CallbackAdapter funneling callbacks onto the
// executor's queue.
func NewCallbackAdapter(e *Executor) CallbackAdapter {
	return &executorAdapter{exec: e}
}

func (a *executorAdapter) Post(fn func()) error {
	return a.exec.Queue().Enqueue(fn)
}

func (a *executorAdapter) Wake(w *Waker) {
	w.Wake()
}
