// Package hotkey provides a global key listener using gohook.
// Each watched key reports its presses and releases, which is what the
// keyboard drive mode needs to track held direction keys.
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// Event is emitted on the channel returned by Events.
type Event struct {
	Key  string
	Down bool // false on release
}

// Listener watches a set of keys and emits press/release events.
type Listener struct {
	keys []string
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewListener creates a Listener for the given keys.
// keys should be lowercase gohook key names (e.g., ["w", "a", "space"]).
func NewListener(keys []string) *Listener {
	return &Listener{
		keys: keys,
		ch:   make(chan Event, 32),
		done: make(chan struct{}),
	}
}

// Events returns the channel that receives key events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for the keys.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	for _, key := range l.keys {
		key := key
		hook.Register(hook.KeyDown, []string{key}, func(hook.Event) {
			l.emit(Event{Key: key, Down: true})
		})
		hook.Register(hook.KeyUp, []string{key}, func(hook.Event) {
			l.emit(Event{Key: key, Down: false})
		})
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// emit never blocks the hook goroutine; events are dropped when the
// consumer falls behind.
func (l *Listener) emit(ev Event) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.ch <- ev:
	default:
	}
}

// Stop terminates the listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
