package workers

import (
	"sync"
	"sync/atomic"
)

// StopFlag is the cancellation signal shared by a run's pools and stages.
// Setting it never blocks; it is checked between tasks, never mid-task.
type StopFlag struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewStopFlag returns an unset flag.
func NewStopFlag() *StopFlag {
	return &StopFlag{done: make(chan struct{})}
}

// Set raises the flag. Calling it more than once is safe.
func (s *StopFlag) Set() {
	s.set.Store(true)
	s.once.Do(func() { close(s.done) })
}

// IsSet reports whether the flag has been raised. A nil flag is never set.
func (s *StopFlag) IsSet() bool {
	return s != nil && s.set.Load()
}

// Done is closed when the flag is raised.
func (s *StopFlag) Done() <-chan struct{} {
	return s.done
}
