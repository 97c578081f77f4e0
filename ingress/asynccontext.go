package ingress

import (
	"sync"
	"sync/atomic"

	"github.com/eventmesh-go/httpingress/ingress/workerpool"
)

// AsyncContext bridges a route's worker-pool execution back to the
// connection writer. A processor either completes it inline during
// ProcessRequest or hands it to another goroutine (typically one submitted
// to Completer()) to complete later; either way OnComplete fires at most
// once and the response becomes immutable — callers only ever read it
// through Response, which returns a copy of the value recorded at
// OnComplete time.
type AsyncContext[T any] struct {
	Request T

	completer *workerpool.Pool
	once      sync.Once
	complete  atomic.Bool
	mu        sync.RWMutex
	response  T
	done      chan struct{}
}

// NewAsyncContext builds an AsyncContext around request. completer is the
// pool a processor may submit deferred completion work to; it may be nil
// if the caller doesn't support deferred completion.
func NewAsyncContext[T any](request T, completer *workerpool.Pool) *AsyncContext[T] {
	return &AsyncContext[T]{Request: request, completer: completer, done: make(chan struct{})}
}

// OnComplete sets the response and flips the completion flag. The first
// call wins; subsequent calls are no-ops, even under concurrent callers.
func (a *AsyncContext[T]) OnComplete(response T) {
	a.once.Do(func() {
		a.mu.Lock()
		a.response = response
		a.mu.Unlock()
		a.complete.Store(true)
		close(a.done)
	})
}

// IsComplete is a non-blocking read of the completion flag.
func (a *AsyncContext[T]) IsComplete() bool { return a.complete.Load() }

// Response returns the completed response. Its value is undefined before
// completion — callers must check IsComplete or wait on Done first.
func (a *AsyncContext[T]) Response() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.response
}

// Done returns a channel closed exactly once OnComplete has taken effect.
// The dispatcher blocks on this after submitting work: ownership of the
// response transfers from worker to writer at this point, whether
// OnComplete fired inline in the worker-pool task or later from the
// completer pool.
func (a *AsyncContext[T]) Done() <-chan struct{} { return a.done }

// Completer returns the pool a processor may schedule OnComplete on when it
// cannot complete inline.
func (a *AsyncContext[T]) Completer() *workerpool.Pool { return a.completer }
