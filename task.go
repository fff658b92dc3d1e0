package cryptvault

import (
	"fmt"
	"sync"
)

// Task runs one blocking vault operation on its own goroutine so a caller
// can keep a UI responsive. Tasks cannot be cancelled; the operation runs to
// completion or failure.
type Task[T any] struct {
	done chan struct{}

	mu      sync.Mutex
	percent int

	result T
	err    error
}

// Go starts fn on a new goroutine. fn receives a progress callback that
// records the latest percentage and forwards it to progress, which is
// invoked from the task's goroutine. A panic in fn is returned from Wait as
// an error.
func Go[T any](fn func(progress ProgressFunc) (T, error), progress ProgressFunc) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}

	report := func(percent int) {
		t.mu.Lock()
		t.percent = percent
		t.mu.Unlock()
		if progress != nil {
			progress(percent)
		}
	}

	go func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("panic in task: %v", r)
			}
		}()
		t.result, t.err = fn(report)
	}()
	return t
}

// Done is closed when the operation has finished
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Percent returns the last progress value reported
func (t *Task[T]) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

// Wait blocks until the operation finishes and returns its result
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	return t.result, t.err
}
