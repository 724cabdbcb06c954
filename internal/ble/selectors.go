package ble

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Default selector timeouts.
const (
	DefaultNamedTimeout   = 15 * time.Second
	DefaultNearestTimeout = 5 * time.Second
)

type connectOutcome struct {
	id    string
	robot *Robot
	err   error
}

// claim is the robot ID a selector asked the manager to connect.
type claim struct {
	mu sync.Mutex
	id string
}

func (c *claim) set(id string) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

func (c *claim) is(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id != "" && c.id == id
}

// outcomeListener forwards the connect outcome for the claimed robot to the
// selector goroutine. Outcomes for other robots are dropped, and delivery
// never blocks the dispatcher.
func outcomeListener(outcomes chan<- connectOutcome, target *claim, discovered func(Description)) Listener {
	deliver := func(o connectOutcome) {
		if !target.is(o.id) {
			return
		}
		select {
		case outcomes <- o:
		default:
		}
	}
	return ListenerFuncs{
		Discovered: discovered,
		Connected:  func(r *Robot) { deliver(connectOutcome{id: r.ID(), robot: r}) },
		Failed:     func(d Description, err error) { deliver(connectOutcome{id: d.ID, err: err}) },
	}
}

// Named scans for a robot advertising name, connects to the first one seen
// and waits up to timeout overall. Scanning is stopped before returning.
func Named(ctx context.Context, m *Manager, name string, timeout time.Duration) (*Robot, error) {
	if timeout <= 0 {
		timeout = DefaultNamedTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sightings := make(chan Description, 1)
	outcomes := make(chan connectOutcome, 1)
	var target claim

	remove := m.AddListener(outcomeListener(outcomes, &target, func(d Description) {
		if d.Name != name {
			return
		}
		select {
		case sightings <- d:
		default:
		}
	}))
	defer remove()

	m.StartScanning()
	defer m.StopScanning()

	found := sightings // nil once a candidate was chosen
	var chosen string
	for {
		select {
		case d := <-found:
			found = nil
			target.set(d.ID)
			if err := m.Connect(d); err != nil {
				return nil, err
			}
			m.StopScanning()
			chosen = d.ID

		case o := <-outcomes:
			return o.robot, o.err

		case <-ctx.Done():
			if chosen == "" {
				return nil, fmt.Errorf("ble: robot named %q: %w", name, ErrNotFound)
			}
			m.abort(chosen)
			return nil, fmt.Errorf("ble: connect to %q: %w", name, ctx.Err())
		}
	}
}

// Nearest scans for timeout, then connects to the robot with the strongest
// signal, ignoring InvalidRSSI readings. If none qualify it returns
// ErrNotFound without connecting. The connect itself is bounded only by ctx.
func Nearest(ctx context.Context, m *Manager, timeout time.Duration) (*Robot, error) {
	if timeout <= 0 {
		timeout = DefaultNearestTimeout
	}

	var mu sync.Mutex
	seen := make(map[string]Description)

	outcomes := make(chan connectOutcome, 1)
	var target claim

	remove := m.AddListener(outcomeListener(outcomes, &target, func(d Description) {
		mu.Lock()
		seen[d.ID] = d
		mu.Unlock()
	}))
	defer remove()

	m.StartScanning()
	defer m.StopScanning()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	mu.Lock()
	candidates := make([]Description, 0, len(seen))
	for _, d := range seen {
		candidates = append(candidates, d)
	}
	mu.Unlock()

	best, ok := strongest(candidates)
	if !ok {
		m.StopScanning()
		return nil, fmt.Errorf("ble: nearest robot: %w", ErrNotFound)
	}
	target.set(best.ID)
	if err := m.Connect(best); err != nil {
		return nil, err
	}
	m.StopScanning()

	select {
	case o := <-outcomes:
		return o.robot, o.err
	case <-ctx.Done():
		m.abort(best.ID)
		return nil, ctx.Err()
	}
}

// strongest picks the description with the highest valid RSSI. Ties go to
// the lowest ID.
func strongest(descs []Description) (Description, bool) {
	var best Description
	ok := false
	for _, d := range descs {
		if d.RSSI == InvalidRSSI {
			continue
		}
		if !ok || d.RSSI > best.RSSI || (d.RSSI == best.RSSI && d.ID < best.ID) {
			best, ok = d, true
		}
	}
	return best, ok
}

// sortByRSSI orders descriptions strongest first, invalid readings last.
func sortByRSSI(descs []Description) {
	sort.Slice(descs, func(i, j int) bool {
		a, b := descs[i], descs[j]
		if (a.RSSI == InvalidRSSI) != (b.RSSI == InvalidRSSI) {
			return b.RSSI == InvalidRSSI
		}
		if a.RSSI != b.RSSI {
			return a.RSSI > b.RSSI
		}
		return a.ID < b.ID
	})
}
