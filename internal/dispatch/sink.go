package dispatch

import (
	"sync"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/logging"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/router"
)

// Sink receives a worker's notifications. Every field is optional and every
// callback runs on the worker goroutine, so presentation layers must marshal
// onto their own thread if they need to.
type Sink struct {
	OnActivity func(active bool)
	OnResult   func(text string)
	OnError    func(message string)
	OnProgress func(percent int)
}

// callbacks wraps a Sink so a panicking callback cannot take the worker down.
type callbacks struct {
	sink Sink
	log  *logging.Logger
}

func (c callbacks) guard(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("%s callback panicked: %v", name, rec)
		}
	}()
	fn()
}

func (c callbacks) activity(active bool) {
	if c.sink.OnActivity != nil {
		c.guard("activity", func() { c.sink.OnActivity(active) })
	}
}

func (c callbacks) result(text string) {
	if c.sink.OnResult != nil {
		c.guard("result", func() { c.sink.OnResult(text) })
	}
}

func (c callbacks) error(message string) {
	if c.sink.OnError != nil {
		c.guard("error", func() { c.sink.OnError(message) })
	}
}

func (c callbacks) progress(percent int) {
	if c.sink.OnProgress != nil {
		c.guard("progress", func() { c.sink.OnProgress(percent) })
	}
}

// Task tracks one background worker.
type Task struct {
	ID string

	done chan struct{}

	mu     sync.Mutex
	result string
	label  router.CommandType
	err    string
}

func newTask(id string) *Task {
	return &Task{ID: id, done: make(chan struct{})}
}

// Done is closed when the worker has finished, after its last callback.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the worker finishes.
func (t *Task) Wait() {
	<-t.done
}

// Result returns the response text and label. It is only meaningful after Done.
func (t *Task) Result() (string, router.CommandType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.label
}

// Err returns the orchestration failure reported to OnError, if any.
func (t *Task) Err() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) setResult(text string, label router.CommandType) {
	t.mu.Lock()
	t.result, t.label = text, label
	t.mu.Unlock()
}

func (t *Task) setErr(msg string) {
	t.mu.Lock()
	t.err = msg
	t.mu.Unlock()
}
