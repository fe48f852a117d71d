package tasks

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/salineros/internal/events"
)

// Signal reports whether the song API is believed reachable.
type Signal interface {
	Online() bool
}

// Connectivity is an explicit online/offline flag.
//
// It can be pushed with [Connectivity.SetOnline] or polled with [Connectivity.Watch].
// Listeners registered with [Connectivity.OnChange] run synchronously on every transition.
type Connectivity struct {
	online    atomic.Bool
	mu        sync.Mutex
	listeners []func(online bool)
	events    events.Publisher
	logger    *log.Logger
}

// NewConnectivity creates a signal with the given initial state. pub and logger may be nil.
func NewConnectivity(online bool, pub events.Publisher, logger *log.Logger) *Connectivity {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	c := &Connectivity{events: pub, logger: logger}
	c.online.Store(online)
	return c
}

func (c *Connectivity) Online() bool {
	return c.online.Load()
}

// SetOnline records the current state and notifies listeners if it changed.
func (c *Connectivity) SetOnline(online bool) {
	if c.online.Swap(online) == online {
		return
	}

	c.logger.Info("connectivity changed", "online", online)
	if c.events != nil {
		msg := "offline"
		if online {
			msg = "online"
		}
		c.events.Publish(events.Event{Kind: events.ConnectivityChanged, Online: online, Message: msg})
	}

	c.mu.Lock()
	listeners := make([]func(bool), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(online)
	}
}

// OnChange registers fn to be called on every transition.
func (c *Connectivity) OnChange(fn func(online bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Watch probes every interval until ctx is done, marking the signal online when probe succeeds.
func (c *Connectivity) Watch(ctx context.Context, probe func(ctx context.Context) error, interval time.Duration) {
	check := func() {
		err := probe(ctx)
		if err != nil && ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Debug("probe failed", "error", err)
		}
		c.SetOnline(err == nil)
	}

	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }
