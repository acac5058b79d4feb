package shadow

import (
	"sync"
	"time"
)

// EventKind names an engine notification.
type EventKind string

const (
	KindInitialize EventKind = "initialize"
	KindCheckpoint EventKind = "checkpoint"
	KindRestore    EventKind = "restore"
	KindError      EventKind = "error"
)

// Event is a notification published by an Engine. The concrete type is one of
// InitializeEvent, CheckpointEvent, RestoreEvent or ErrorEvent.
type Event interface {
	Kind() EventKind
	isEvent()
}

// InitializeEvent is published after a successful Initialize.
type InitializeEvent struct {
	WorkspaceDir string
	BaseHash     string
	Created      bool
	Duration     time.Duration
}

// CheckpointEvent is published after a checkpoint commit.
type CheckpointEvent struct {
	FromHash        string
	ToHash          string
	Duration        time.Duration
	SuppressMessage bool
}

// RestoreEvent is published after the workspace was reset to a checkpoint.
type RestoreEvent struct {
	Hash     string
	Duration time.Duration
}

// ErrorEvent is published before a failing save or restore returns its error.
type ErrorEvent struct {
	Err error
}

func (InitializeEvent) Kind() EventKind { return KindInitialize }
func (CheckpointEvent) Kind() EventKind { return KindCheckpoint }
func (RestoreEvent) Kind() EventKind    { return KindRestore }
func (ErrorEvent) Kind() EventKind      { return KindError }

func (InitializeEvent) isEvent() {}
func (CheckpointEvent) isEvent() {}
func (RestoreEvent) isEvent()    {}
func (ErrorEvent) isEvent()      {}

// Listener receives engine events. Listeners run synchronously on the
// goroutine performing the operation and must not call back into the engine.
type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}

// subscribers keeps listeners in subscription order.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
}

func (s *subscribers) add(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscription{id: id, fn: l})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *subscribers) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = nil
}

func (s *subscribers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *subscribers) emit(e Event) {
	s.mu.Lock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(e)
	}
}
