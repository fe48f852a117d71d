package events

import (
	"fmt"
	"sync"
	"time"
)

// Kind enumerates the sync lifecycle events.
type Kind int

const (
	SyncStarted Kind = iota
	SyncCompleted
	SyncFailed
	SyncConflict
	RetryScheduled
	RetriesExhausted
	OutboxRejected
	SongQueued
	ConnectivityChanged
)

func (k Kind) String() string {
	switch k {
	case SyncStarted:
		return "sync_started"
	case SyncCompleted:
		return "sync_completed"
	case SyncFailed:
		return "sync_failed"
	case SyncConflict:
		return "sync_conflict"
	case RetryScheduled:
		return "retry_scheduled"
	case RetriesExhausted:
		return "retries_exhausted"
	case OutboxRejected:
		return "outbox_rejected"
	case SongQueued:
		return "song_queued"
	case ConnectivityChanged:
		return "connectivity_changed"
	default:
		return ""
	}
}

// Event is one notification.
//
// Fields beyond Kind and At are populated only where the kind calls for them.
type Event struct {
	Kind    Kind
	At      time.Time
	SongID  string        // SyncConflict, OutboxRejected, SongQueued
	Count   int           // SyncCompleted: changes applied; SyncConflict: conflicts in the pass
	Attempt int           // RetryScheduled, RetriesExhausted
	Delay   time.Duration // RetryScheduled
	Online  bool          // ConnectivityChanged
	Err     error         // SyncFailed, OutboxRejected
	Message string
}

func (e Event) String() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

// Publisher is implemented by [Bus]. Components accept it so tests can record events.
type Publisher interface {
	Publish(e Event)
}

// Bus fans events out to subscribers without blocking the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	now    func() time.Time
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event), now: time.Now}
}

// Subscribe registers a listener with the given channel buffer.
//
// The returned cancel func unregisters and closes the channel; calling it twice is safe.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers e to every subscriber that has room. Full subscribers skip the event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Recorder is a [Publisher] that keeps every event, for tests and the CLI's sync summary.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded kinds in order.
func (r *Recorder) Kinds() []Kind {
	events := r.Events()
	kinds := make([]Kind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Count returns how many events of kind k were recorded.
func (r *Recorder) Count(k Kind) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Multi publishes to several publishers in order, skipping nil entries.
type Multi []Publisher

func (m Multi) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}
