package ble

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// HostAdapter wraps tinygo-org/bluetooth's default adapter.
// On macOS, peripheral identifiers are CoreBluetooth UUIDs rather than MAC
// addresses; either form round-trips through Description.ID.
type HostAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*hostConnection // keyed by peripheral ID
}

// NewHostAdapter creates a BLE adapter over the host's default radio.
func NewHostAdapter() *HostAdapter {
	return &HostAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*hostConnection),
	}
}

func (a *HostAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	// tinygo/bluetooth reports peripheral disconnects (connected=false)
	// through the adapter-level connect handler.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[id]
		delete(a.connections, id)
		a.mu.Unlock()
		if ok {
			conn.dropped()
		}
	})

	return nil
}

// Scan reports every advertisement carrying serviceUUID, duplicates
// included, until StopScan is called.
func (a *HostAdapter) Scan(serviceUUID string, onResult func(Description)) error {
	uuid, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}

	err = a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.HasServiceUUID(uuid) {
			return
		}
		onResult(Description{
			ID:   result.Address.String(),
			Name: result.LocalName(),
			RSSI: int(result.RSSI),
		})
	})
	if err != nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	return nil
}

func (a *HostAdapter) StopScan() error {
	return a.adapter.StopScan()
}

func (a *HostAdapter) Connect(ctx context.Context, id string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(id)

	// tinygo/bluetooth's Connect blocks with its own timeout and cannot be
	// cancelled; a late success is disconnected straight away.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				r.device.Disconnect()
			}
		}()
		return nil, fmt.Errorf("ble: connect to %s: %w", id, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", id, result.err)
		}
		conn := &hostConnection{device: result.device}

		a.mu.Lock()
		a.connections[id] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

// Compile-time check that HostAdapter implements Adapter.
var _ Adapter = (*HostAdapter)(nil)

type hostConnection struct {
	device bluetooth.Device

	mu           sync.Mutex
	disconnectCb func()
	fired        bool
}

func (c *hostConnection) DiscoverServices(uuids []string) ([]Service, error) {
	filter, err := parseUUIDs(uuids)
	if err != nil {
		return nil, err
	}
	svcs, err := c.device.DiscoverServices(filter)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	out := make([]Service, len(svcs))
	for i := range svcs {
		out[i] = &hostService{svc: svcs[i]}
	}
	return out, nil
}

func (c *hostConnection) Disconnect() error {
	err := c.device.Disconnect()
	c.dropped()
	return err
}

func (c *hostConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// dropped fires the disconnect callback at most once, whichever of the
// platform handler or Disconnect gets there first.
func (c *hostConnection) dropped() {
	c.mu.Lock()
	cb := c.disconnectCb
	fire := !c.fired && cb != nil
	if fire {
		c.fired = true
	}
	c.mu.Unlock()
	if fire {
		cb()
	}
}

type hostService struct {
	svc bluetooth.DeviceService
}

func (s *hostService) UUID() string {
	return s.svc.UUID().String()
}

func (s *hostService) DiscoverCharacteristics(uuids []string) ([]Characteristic, error) {
	filter, err := parseUUIDs(uuids)
	if err != nil {
		return nil, err
	}
	chars, err := s.svc.DiscoverCharacteristics(filter)
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	out := make([]Characteristic, len(chars))
	for i := range chars {
		out[i] = &hostCharacteristic{char: chars[i]}
	}
	return out, nil
}

type hostCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *hostCharacteristic) UUID() string {
	return c.char.UUID().String()
}

func (c *hostCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(cb)
}

func parseUUIDs(uuids []string) ([]bluetooth.UUID, error) {
	out := make([]bluetooth.UUID, 0, len(uuids))
	for _, s := range uuids {
		u, err := bluetooth.ParseUUID(s)
		if err != nil {
			return nil, fmt.Errorf("ble: parse UUID %q: %w", s, err)
		}
		out = append(out, u)
	}
	return out, nil
}
