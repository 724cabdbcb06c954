package hotkey

import "testing"

func TestEmitDeliversInOrder(t *testing.T) {
	l := NewListener([]string{"w"})
	l.emit(Event{Key: "w", Down: true})
	l.emit(Event{Key: "w", Down: false})

	want := []Event{{Key: "w", Down: true}, {Key: "w", Down: false}}
	for i, w := range want {
		got := <-l.Events()
		if got != w {
			t.Errorf("event %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestEmitDropsWhenFull(t *testing.T) {
	l := NewListener([]string{"w"})
	for i := 0; i < cap(l.ch)+10; i++ {
		l.emit(Event{Key: "w", Down: true}) // must not block
	}
	if got := len(l.ch); got != cap(l.ch) {
		t.Errorf("queued events = %d, want %d", got, cap(l.ch))
	}
}

func TestEmitAfterStop(t *testing.T) {
	l := NewListener([]string{"w"})
	l.Stop()
	l.Stop() // idempotent

	l.emit(Event{Key: "w", Down: true})
	if got := len(l.ch); got != 0 {
		t.Errorf("queued events after Stop = %d, want 0", got)
	}
}
