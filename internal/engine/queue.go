package engine

import (
	"context"
	"sync"
)

// Outcome is what a submitted call produced.
type Outcome struct {
	Result Result
	Err    error
}

// submission is one queued call and where to deliver its outcome.
type submission struct {
	ctx   context.Context
	req   Request
	reply chan Outcome // Buffered, size 1
}

// callQueue is a thread-safe FIFO queue of submitted calls.
//
// The queue is unbounded so Submit never blocks the caller. It uses a
// channel for signaling to enable context-aware waiting in the Run loop.
type callQueue struct {
	mu     sync.Mutex
	items  []submission
	closed bool
	signal chan struct{} // Signals availability (buffered, size 1)
}

func newCallQueue() *callQueue {
	return &callQueue{
		items:  make([]submission, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds s to the back of the queue.
// Returns false if the queue is closed.
func (q *callQueue) Enqueue(s submission) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, s)

	// Non-blocking: a buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front submission without blocking.
func (q *callQueue) TryDequeue() (submission, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return submission{}, false
	}
	s := q.items[0]
	q.items[0] = submission{} // Release references held by the backing array
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return s, true
}

// Wait returns a channel that signals when submissions may be available.
// It is closed when the queue is closed.
func (q *callQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *callQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting submissions and wakes the Run loop.
// It returns the submissions still queued.
func (q *callQueue) Close() []submission {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)

	rest := q.items
	q.items = nil
	return rest
}

// Submit queues req for the Run loop and returns a channel that receives
// exactly one Outcome. Safe from any goroutine.
//
// If the engine has been stopped the Outcome carries an ENGINE_STOPPED error.
func (e *Engine) Submit(ctx context.Context, req Request) <-chan Outcome {
	s := submission{ctx: ctx, req: req, reply: make(chan Outcome, 1)}
	if !e.queue.Enqueue(s) {
		s.reply <- Outcome{Err: &Error{Code: ErrCodeStopped, Message: "engine is not accepting calls", InstanceID: req.InstanceID}}
	}
	return s.reply
}

// Run processes submitted calls in FIFO order until ctx is cancelled or
// Stop is called. Must be called from exactly one goroutine.
//
// Submissions still queued when Run returns are answered with
// ENGINE_STOPPED; none is dropped silently.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		if s, ok := e.queue.TryDequeue(); ok {
			e.process(ctx, s)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.drain(e.queue.Close())
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed, which
			// fires this case immediately.
			if e.queue.Len() == 0 && e.stopped() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once it notices.
func (e *Engine) Stop() {
	e.drain(e.queue.Close())
}

func (e *Engine) stopped() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

func (e *Engine) process(ctx context.Context, s submission) {
	callCtx := s.ctx
	if callCtx == nil {
		callCtx = ctx
	}
	if err := callCtx.Err(); err != nil {
		s.reply <- Outcome{Err: err}
		return
	}
	res, err := e.Call(callCtx, s.req)
	s.reply <- Outcome{Result: res, Err: err}
}

func (e *Engine) drain(rest []submission) {
	for _, s := range rest {
		s.reply <- Outcome{Err: &Error{Code: ErrCodeStopped, Message: "engine stopped before the call ran", InstanceID: s.req.InstanceID}}
	}
}
