package ble

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ManagerOptions configures the Manager behavior.
type ManagerOptions struct {
	Logger *slog.Logger
	// NegotiationTimeout bounds each handshake. Zero means no bound.
	NegotiationTimeout time.Duration
}

// DefaultManagerOptions returns sensible defaults.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{Logger: slog.Default()}
}

// attempt is a connection in progress: radio connect, then negotiation.
type attempt struct {
	id      ulid.ULID
	desc    Description
	cancel  context.CancelFunc
	conn    Connection
	neg     *negotiator
	dropped bool
}

// link is a negotiated connection.
type link struct {
	robot         *Robot
	conn          Connection
	disconnecting bool
}

// Manager owns scanning, connection attempts and connected robots for one
// adapter. Internal state is only touched from its serial loop goroutine;
// listener events are delivered on a separate goroutine.
type Manager struct {
	adapter Adapter
	opts    ManagerOptions
	log     *slog.Logger
	events  *dispatcher

	ops       chan func()
	quit      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once

	// Owned by the serial loop.
	radioOn    bool
	enabling   bool
	wantScan   bool
	scanning   bool
	stopping   bool
	entropy    *ulid.MonotonicEntropy
	discovered map[string]Description
	attempts   map[string]*attempt
	connected  map[string]*link
	closing    map[string]Connection // failed negotiations being torn down
}

// NewManager starts a Manager over adapter and begins powering on the
// radio in the background. Panics if adapter is nil (programmer error).
func NewManager(adapter Adapter, opts ManagerOptions) *Manager {
	if adapter == nil {
		panic("ble: NewManager called with nil adapter")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Manager{
		adapter:    adapter,
		opts:       opts,
		log:        opts.Logger,
		events:     newDispatcher(),
		ops:        make(chan func(), 64),
		quit:       make(chan struct{}),
		exited:     make(chan struct{}),
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		discovered: make(map[string]Description),
		attempts:   make(map[string]*attempt),
		connected:  make(map[string]*link),
		closing:    make(map[string]Connection),
	}

	go m.run()
	go m.events.run()

	if pn, ok := adapter.(PowerNotifier); ok {
		pn.OnPowerChange(func(on bool) {
			m.post(func() { m.setPower(on, nil) })
		})
	}
	m.post(m.enable)
	return m
}

// AddListener registers l for all future events and returns a func that
// unregisters it.
func (m *Manager) AddListener(l Listener) (remove func()) {
	return m.events.add(l)
}

func (m *Manager) run() {
	defer close(m.exited)
	for {
		select {
		case fn := <-m.ops:
			fn()
		case <-m.quit:
			return
		}
	}
}

// post schedules fn on the serial loop. It reports false once the manager
// is closed.
func (m *Manager) post(fn func()) bool {
	select {
	case <-m.quit:
		return false
	default:
	}
	select {
	case m.ops <- fn:
		return true
	case <-m.quit:
		return false
	}
}

// call runs fn on the serial loop and waits for its result.
func (m *Manager) call(fn func() error) error {
	reply := make(chan error, 1)
	if !m.post(func() { reply <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-m.quit:
		return ErrClosed
	}
}

// serial is the scheduling hook handed to negotiators.
func (m *Manager) serial(fn func()) { m.post(fn) }

func (m *Manager) enable() {
	if m.enabling || m.radioOn {
		return
	}
	m.enabling = true
	go func() {
		err := m.adapter.Enable()
		m.post(func() {
			m.enabling = false
			m.setPower(err == nil, err)
		})
	}()
}

func (m *Manager) setPower(on bool, err error) {
	m.radioOn = on
	if on {
		m.log.Info("[BLE] radio powered on")
	} else {
		if err == nil {
			err = ErrRadioUnavailable
		} else {
			err = fmt.Errorf("%w: %w", ErrRadioUnavailable, err)
		}
		m.log.Warn("[BLE] radio not available, scanning deferred", "error", err)
	}
	m.updateScan()
}

// StartScanning records the intent to scan. Scanning begins as soon as the
// radio is powered on. Idempotent.
func (m *Manager) StartScanning() {
	m.post(func() {
		m.wantScan = true
		if !m.radioOn {
			m.enable()
		}
		m.updateScan()
	})
}

// StopScanning clears the intent to scan and forgets discovered robots
// that were not claimed by Connect. Idempotent.
func (m *Manager) StopScanning() {
	m.post(func() {
		m.wantScan = false
		clear(m.discovered)
		m.updateScan()
	})
}

func (m *Manager) updateScan() {
	switch {
	case m.wantScan && m.radioOn && !m.scanning:
		m.scanning = true
		m.log.Debug("[BLE] scan started")
		go m.scan()
	case (!m.wantScan || !m.radioOn) && m.scanning && !m.stopping:
		m.stopping = true
		go func() {
			if err := m.adapter.StopScan(); err != nil {
				m.log.Warn("[BLE] stop scan failed", "error", err)
			}
		}()
	}
}

func (m *Manager) scan() {
	err := m.adapter.Scan(RobotControlServiceUUID, func(desc Description) {
		m.post(func() { m.deviceDiscovered(desc) })
	})
	m.post(func() { m.scanEnded(err) })
}

func (m *Manager) scanEnded(err error) {
	m.scanning = false
	m.stopping = false
	m.log.Debug("[BLE] scan ended")
	if err != nil {
		// Retried on the next StartScanning or power change.
		m.radioOn = false
		m.log.Warn("[BLE] scan failed", "error", err)
		return
	}
	m.updateScan()
}

func (m *Manager) deviceDiscovered(desc Description) {
	if !m.wantScan {
		return
	}
	if m.claimed(desc.ID) {
		return
	}
	m.discovered[desc.ID] = desc
	m.events.emit(func(l Listener) { l.DeviceDiscovered(desc) })
}

func (m *Manager) claimed(id string) bool {
	_, connecting := m.attempts[id]
	_, connected := m.connected[id]
	_, closing := m.closing[id]
	return connecting || connected || closing
}

// Discovered returns the robots seen since scanning started that have not
// been claimed.
func (m *Manager) Discovered() []Description {
	var out []Description
	_ = m.call(func() error {
		for _, d := range m.discovered {
			out = append(out, d)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Connect claims a discovered robot and starts connecting to it. The
// outcome is reported to listeners as DeviceConnected or ConnectFailed.
// Connecting to a robot that is already connecting or connected, or that
// was never discovered, returns an error wrapping ErrContractViolation.
func (m *Manager) Connect(desc Description) error {
	return m.call(func() error { return m.connect(desc) })
}

func (m *Manager) connect(desc Description) error {
	var err error
	switch {
	case m.attempts[desc.ID] != nil:
		err = contractViolation("connect to %s: a connection attempt is already in progress", desc.ID)
	case m.connected[desc.ID] != nil:
		err = contractViolation("connect to %s: already connected", desc.ID)
	default:
		if _, ok := m.discovered[desc.ID]; !ok {
			err = contractViolation("connect to %s: robot was not discovered or was already claimed", desc.ID)
		}
	}
	if err != nil {
		m.log.Error("[BLE] rejected connect", "id", desc.ID, "error", err)
		return err
	}
	delete(m.discovered, desc.ID)

	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{
		id:     ulid.MustNew(ulid.Now(), m.entropy),
		desc:   desc,
		cancel: cancel,
	}
	m.attempts[desc.ID] = a
	m.log.Info("[BLE] connecting", "id", desc.ID, "name", desc.Name, "rssi", desc.RSSI, "attempt", a.id)

	go func() {
		conn, err := m.adapter.Connect(ctx, desc.ID)
		m.post(func() { m.radioConnected(a, conn, err) })
	}()
	return nil
}

func (m *Manager) radioConnected(a *attempt, conn Connection, err error) {
	if m.attempts[a.desc.ID] != a {
		if conn != nil {
			go conn.Disconnect()
		}
		return
	}
	if err != nil {
		delete(m.attempts, a.desc.ID)
		a.cancel()
		err = fmt.Errorf("ble: connect to %s: %w", a.desc.ID, err)
		m.log.Warn("[BLE] connect failed", "id", a.desc.ID, "attempt", a.id, "error", err)
		m.events.emit(func(l Listener) { l.ConnectFailed(a.desc, err) })
		return
	}

	a.conn = conn
	id := a.desc.ID
	conn.OnDisconnect(func() {
		m.post(func() { m.linkDropped(id, conn) })
	})

	a.neg = newNegotiator(a.desc, conn, m.serial, m.log)
	a.neg.start(m.opts.NegotiationTimeout)
	done := a.neg.Done()
	go func() {
		select {
		case res := <-done:
			m.post(func() { m.negotiated(a, res) })
		case <-m.quit:
		}
	}()
}

func (m *Manager) negotiated(a *attempt, res negotiationResult) {
	if m.attempts[a.desc.ID] != a {
		return
	}
	delete(m.attempts, a.desc.ID)
	a.cancel()

	if res.err != nil {
		m.log.Warn("[BLE] negotiation failed", "id", a.desc.ID, "attempt", a.id, "error", res.err)
		if !a.dropped {
			m.closing[a.desc.ID] = a.conn
			go a.conn.Disconnect()
		}
		m.events.emit(func(l Listener) { l.ConnectFailed(a.desc, res.err) })
		return
	}
	if a.dropped {
		// The link went down after the handshake finished but before the
		// result reached the loop.
		res.robot.invalidate()
		err := fmt.Errorf("ble: connect to %s: %w", a.desc.ID, ErrLinkInvalidated)
		m.log.Warn("[BLE] link lost before connect completed", "id", a.desc.ID, "attempt", a.id)
		m.events.emit(func(l Listener) { l.ConnectFailed(a.desc, err) })
		return
	}

	m.connected[a.desc.ID] = &link{robot: res.robot, conn: a.conn}
	m.log.Info("[BLE] connected", "id", a.desc.ID, "name", a.desc.Name, "attempt", a.id)
	robot := res.robot
	m.events.emit(func(l Listener) { l.DeviceConnected(robot) })
}

func (m *Manager) linkDropped(id string, conn Connection) {
	if a := m.attempts[id]; a != nil && a.conn == conn {
		a.dropped = true
		a.neg.handle(linkLost{})
		return
	}
	if l := m.connected[id]; l != nil && l.conn == conn {
		delete(m.connected, id)
		l.robot.invalidate()
		m.log.Info("[BLE] disconnected", "id", id)
		robot := l.robot
		m.events.emit(func(l Listener) { l.DeviceDisconnected(robot) })
		return
	}
	if c, ok := m.closing[id]; ok && c == conn {
		delete(m.closing, id)
		return
	}
	m.log.Error("[BLE] contract violation: disconnect from untracked peripheral", "id", id)
}

// abort gives up on the connection a selector started for id. A pending
// attempt ends with a ConnectFailed event. A robot already promoted but not
// yet handed to the selector is disconnected, ending with
// DeviceDisconnected.
func (m *Manager) abort(id string) {
	m.post(func() {
		if a := m.attempts[id]; a != nil {
			a.cancel()
			if a.neg != nil {
				a.neg.handle(negotiationTimedOut{})
			}
			return
		}
		l := m.connected[id]
		if l == nil || l.disconnecting {
			return
		}
		l.disconnecting = true
		m.log.Info("[BLE] disconnecting unclaimed robot", "id", id)
		conn := l.conn
		go func() {
			if err := conn.Disconnect(); err != nil {
				m.log.Warn("[BLE] disconnect failed", "id", id, "error", err)
				m.post(func() {
					if m.connected[id] == l {
						l.disconnecting = false
					}
				})
			}
		}()
	})
}

// Disconnect tears down the link to robot and returns once the robot has
// been invalidated, or when ctx ends. Disconnecting a robot this manager
// does not track returns an error wrapping ErrContractViolation.
func (m *Manager) Disconnect(ctx context.Context, robot *Robot) error {
	failed := make(chan error, 1)
	err := m.call(func() error {
		l := m.connected[robot.ID()]
		if l == nil || l.robot != robot {
			return contractViolation("disconnect %s: robot is not connected", robot.ID())
		}
		if l.disconnecting {
			return contractViolation("disconnect %s: already disconnecting", robot.ID())
		}
		l.disconnecting = true
		conn := l.conn
		go func() {
			if err := conn.Disconnect(); err != nil {
				m.post(func() {
					if cur := m.connected[robot.ID()]; cur == l {
						l.disconnecting = false
					}
				})
				failed <- err
			}
		}()
		return nil
	})
	if err != nil {
		m.log.Error("[BLE] rejected disconnect", "id", robot.ID(), "error", err)
		return err
	}

	select {
	case <-robot.Done():
		return nil
	case err := <-failed:
		return fmt.Errorf("ble: disconnect %s: %w", robot.ID(), err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops scanning, invalidates and disconnects every robot, and stops
// the manager's goroutines. Must not be called from a Listener.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		_ = m.call(func() error {
			m.wantScan = false
			m.updateScan()
			for _, a := range m.attempts {
				a.cancel()
				if a.conn != nil {
					go a.conn.Disconnect()
				}
			}
			for _, l := range m.connected {
				l.robot.invalidate()
				go l.conn.Disconnect()
			}
			return nil
		})
		close(m.quit)
		<-m.exited
		m.events.close()
	})
	return nil
}
