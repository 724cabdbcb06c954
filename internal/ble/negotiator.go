package ble

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chaz8081/gosphero/internal/ble/protocol"
)

// NegotiationState is the handshake progress of one connection attempt.
// States only move forward; any BLE error jumps to Failed.
type NegotiationState int

const (
	AwaitingServices NegotiationState = iota
	AwaitingCharacteristics
	AwaitingUnlockAck
	AwaitingPowerAck
	AwaitingWakeAck
	AwaitingNotifyAck
	AwaitingPingEcho
	Ready
	Failed
)

var stateNames = [...]string{
	AwaitingServices:        "awaiting services",
	AwaitingCharacteristics: "awaiting characteristics",
	AwaitingUnlockAck:       "awaiting unlock ack",
	AwaitingPowerAck:        "awaiting power ack",
	AwaitingWakeAck:         "awaiting wake ack",
	AwaitingNotifyAck:       "awaiting notify ack",
	AwaitingPingEcho:        "awaiting ping echo",
	Ready:                   "ready",
	Failed:                  "failed",
}

func (s NegotiationState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("NegotiationState(%d)", int(s))
	}
	return stateNames[s]
}

// Handshake values written during negotiation.
var (
	unlockToken  = []byte("011i3")
	txPowerLevel = []byte{7}
	wakeValue    = []byte{1}
)

var requiredChars = []string{
	AntiDoSCharUUID, TXPowerCharUUID, WakeCharUUID, CommandsCharUUID, ResponseCharUUID,
}

// Events consumed by negotiator.handle. Each is the result of one BLE
// operation or an external condition.
type negotiationEvent interface{ negotiationEvent() }

type servicesDiscovered struct {
	services []Service
	err      error
}

type characteristicsDiscovered struct {
	service string
	chars   []Characteristic
	err     error
}

type writeAcked struct {
	uuid string
	err  error
}

type notifySubscribed struct{ err error }

type notified struct{ data []byte }

type linkLost struct{}

type negotiationTimedOut struct{}

func (servicesDiscovered) negotiationEvent()        {}
func (characteristicsDiscovered) negotiationEvent() {}
func (writeAcked) negotiationEvent()                {}
func (notifySubscribed) negotiationEvent()          {}
func (notified) negotiationEvent()                  {}
func (linkLost) negotiationEvent()                  {}
func (negotiationTimedOut) negotiationEvent()       {}

type negotiationResult struct {
	robot *Robot
	err   error
}

// negotiator turns a freshly connected peripheral into a Robot. All calls
// to handle must come from the single serial context passed as serial;
// blocking BLE calls run on their own goroutines and report back through it.
type negotiator struct {
	desc   Description
	conn   Connection
	serial func(func())
	log    *slog.Logger

	state   NegotiationState
	pending int // characteristic discoveries in flight
	chars   map[string]Characteristic
	timer   *time.Timer

	result chan<- negotiationResult // cleared on first use
	done   <-chan negotiationResult
}

func newNegotiator(desc Description, conn Connection, serial func(func()), log *slog.Logger) *negotiator {
	ch := make(chan negotiationResult, 1)
	return &negotiator{
		desc:   desc,
		conn:   conn,
		serial: serial,
		log:    log,
		chars:  make(map[string]Characteristic),
		result: ch,
		done:   ch,
	}
}

// Done delivers the single outcome of the negotiation.
func (n *negotiator) Done() <-chan negotiationResult { return n.done }

// State is only meaningful from the serial context.
func (n *negotiator) State() NegotiationState { return n.state }

// start begins service discovery. timeout <= 0 means no deadline.
func (n *negotiator) start(timeout time.Duration) {
	n.state = AwaitingServices
	if timeout > 0 {
		n.timer = time.AfterFunc(timeout, func() { n.post(negotiationTimedOut{}) })
	}
	conn := n.conn
	n.issue(func() negotiationEvent {
		svcs, err := conn.DiscoverServices([]string{SystemServiceUUID, RobotControlServiceUUID})
		return servicesDiscovered{services: svcs, err: err}
	})
}

// post hands ev to the serial context.
func (n *negotiator) post(ev negotiationEvent) {
	n.serial(func() { n.handle(ev) })
}

// issue runs a blocking BLE operation off the serial context.
func (n *negotiator) issue(op func() negotiationEvent) {
	go func() { n.post(op()) }()
}

// handle is the transition function.
func (n *negotiator) handle(ev negotiationEvent) {
	if n.state == Ready || n.state == Failed {
		return
	}

	switch ev := ev.(type) {
	case linkLost:
		n.fail(ErrLinkInvalidated)
	case negotiationTimedOut:
		n.fail(context.DeadlineExceeded)
	case servicesDiscovered:
		n.onServices(ev)
	case characteristicsDiscovered:
		n.onCharacteristics(ev)
	case writeAcked:
		n.onWrite(ev)
	case notifySubscribed:
		n.onSubscribed(ev)
	case notified:
		n.onNotification(ev)
	}
}

func (n *negotiator) onServices(ev servicesDiscovered) {
	if n.state != AwaitingServices {
		return
	}
	if ev.err != nil {
		n.fail(fmt.Errorf("discover services: %w", ev.err))
		return
	}

	byUUID := make(map[string]Service, len(ev.services))
	for _, svc := range ev.services {
		byUUID[strings.ToLower(svc.UUID())] = svc
	}
	system, okSystem := byUUID[SystemServiceUUID]
	control, okControl := byUUID[RobotControlServiceUUID]
	if !okSystem || !okControl {
		n.fail(fmt.Errorf("discover services: got %d of 2 required services", len(byUUID)))
		return
	}

	n.state = AwaitingCharacteristics
	n.pending = 2
	n.discover(system, WakeCharUUID, TXPowerCharUUID, AntiDoSCharUUID)
	n.discover(control, CommandsCharUUID, ResponseCharUUID)
}

func (n *negotiator) discover(svc Service, uuids ...string) {
	n.issue(func() negotiationEvent {
		chars, err := svc.DiscoverCharacteristics(uuids)
		return characteristicsDiscovered{service: svc.UUID(), chars: chars, err: err}
	})
}

func (n *negotiator) onCharacteristics(ev characteristicsDiscovered) {
	if n.state != AwaitingCharacteristics {
		return
	}
	if ev.err != nil {
		n.fail(fmt.Errorf("discover characteristics of %s: %w", ev.service, ev.err))
		return
	}
	n.pending--
	for _, c := range ev.chars {
		n.chars[strings.ToLower(c.UUID())] = c
	}

	var missing []string
	for _, uuid := range requiredChars {
		if n.chars[uuid] == nil {
			missing = append(missing, uuid)
		}
	}
	if len(missing) == 0 {
		n.state = AwaitingUnlockAck
		n.write(AntiDoSCharUUID, unlockToken)
		return
	}
	if n.pending == 0 {
		n.fail(fmt.Errorf("discover characteristics: missing %s", strings.Join(missing, ", ")))
	}
}

func (n *negotiator) write(uuid string, data []byte) {
	c := n.chars[uuid]
	n.issue(func() negotiationEvent {
		return writeAcked{uuid: uuid, err: c.Write(data)}
	})
}

func (n *negotiator) onWrite(ev writeAcked) {
	if ev.err != nil {
		n.fail(fmt.Errorf("write %s: %w", ev.uuid, ev.err))
		return
	}

	switch {
	case n.state == AwaitingUnlockAck && ev.uuid == AntiDoSCharUUID:
		n.state = AwaitingPowerAck
		n.write(TXPowerCharUUID, txPowerLevel)
	case n.state == AwaitingPowerAck && ev.uuid == TXPowerCharUUID:
		n.state = AwaitingWakeAck
		n.write(WakeCharUUID, wakeValue)
	case n.state == AwaitingWakeAck && ev.uuid == WakeCharUUID:
		n.state = AwaitingNotifyAck
		n.subscribe()
	}
	// Ping writes on the command characteristic need no transition.
}

func (n *negotiator) subscribe() {
	resp := n.chars[ResponseCharUUID]
	n.issue(func() negotiationEvent {
		err := resp.Subscribe(func(data []byte) {
			cp := make([]byte, len(data))
			copy(cp, data)
			n.post(notified{data: cp})
		})
		return notifySubscribed{err: err}
	})
}

func (n *negotiator) onSubscribed(ev notifySubscribed) {
	if n.state != AwaitingNotifyAck {
		return
	}
	if ev.err != nil {
		n.fail(fmt.Errorf("subscribe to responses: %w", ev.err))
		return
	}
	n.state = AwaitingPingEcho
	n.ping()
}

func (n *negotiator) ping() {
	n.write(CommandsCharUUID, protocol.Encode(protocol.Ping{}, 0))
}

func (n *negotiator) onNotification(ev notified) {
	if n.state != AwaitingPingEcho {
		return
	}
	if !bytes.Equal(ev.data, protocol.PingAcknowledgement(0)) {
		n.log.Debug("[BLE] unexpected response during negotiation, pinging again", "id", n.desc.ID, "data", fmt.Sprintf("% x", ev.data))
		n.ping()
		return
	}
	n.state = Ready
	n.finish(negotiationResult{robot: newRobot(n.desc, n.chars[CommandsCharUUID])})
}

func (n *negotiator) fail(err error) {
	state := n.state
	n.state = Failed
	n.finish(negotiationResult{err: &NegotiationError{State: state, Err: err}})
}

func (n *negotiator) finish(res negotiationResult) {
	if n.timer != nil {
		n.timer.Stop()
	}
	result := n.result
	n.result = nil
	if result == nil {
		n.log.Error("[BLE] contract violation: negotiation completed twice", "id", n.desc.ID)
		return
	}
	result <- res
}
