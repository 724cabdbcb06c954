package ble

import "sync"

// Listener receives Manager events. All methods are called from a single
// delivery goroutine, in the order the events happened.
type Listener interface {
	DeviceDiscovered(desc Description)
	DeviceConnected(robot *Robot)
	ConnectFailed(desc Description, err error)
	DeviceDisconnected(robot *Robot)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are ignored.
type ListenerFuncs struct {
	Discovered   func(Description)
	Connected    func(*Robot)
	Failed       func(Description, error)
	Disconnected func(*Robot)
}

func (f ListenerFuncs) DeviceDiscovered(desc Description) {
	if f.Discovered != nil {
		f.Discovered(desc)
	}
}

func (f ListenerFuncs) DeviceConnected(robot *Robot) {
	if f.Connected != nil {
		f.Connected(robot)
	}
}

func (f ListenerFuncs) ConnectFailed(desc Description, err error) {
	if f.Failed != nil {
		f.Failed(desc, err)
	}
}

func (f ListenerFuncs) DeviceDisconnected(robot *Robot) {
	if f.Disconnected != nil {
		f.Disconnected(robot)
	}
}

type listenerEntry struct {
	id int
	l  Listener
}

// dispatcher delivers events to listeners on its own goroutine. emit never
// blocks, so the manager's serial loop is never held up by listener code.
type dispatcher struct {
	mu        sync.Mutex
	queue     []func(Listener)
	listeners []listenerEntry
	nextID    int

	wake   chan struct{}
	quit   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// add registers l and returns a func that removes it.
func (d *dispatcher) add(l Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.listeners = append(d.listeners, listenerEntry{id: id, l: l})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, e := range d.listeners {
			if e.id == id {
				d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

func (d *dispatcher) emit(ev func(Listener)) {
	d.mu.Lock()
	d.queue = append(d.queue, ev)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.exited)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			select {
			case <-d.wake:
				continue
			case <-d.quit:
				return
			}
		}
		ev := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.deliver(ev)
	}
}

// deliver calls ev for every listener registered at delivery time.
func (d *dispatcher) deliver(ev func(Listener)) {
	d.mu.Lock()
	ls := make([]listenerEntry, len(d.listeners))
	copy(ls, d.listeners)
	d.mu.Unlock()

	for _, e := range ls {
		select {
		case <-d.quit:
			return
		default:
		}
		ev(e.l)
	}
}

func (d *dispatcher) close() {
	d.once.Do(func() { close(d.quit) })
	<-d.exited
}
