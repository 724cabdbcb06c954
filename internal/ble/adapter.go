// Package ble drives Sphero robots over Bluetooth Low Energy. It owns the
// scan/connect lifecycle, runs the unlock handshake that arms a robot's
// command channel, and hands out Robot handles for sending commands.
package ble

import "context"

// Sphero BLE UUIDs
const (
	SystemServiceUUID       = "22bb746f-2bb0-7554-2d6f-726568705327"
	RobotControlServiceUUID = "22bb746f-2ba0-7554-2d6f-726568705327"

	// system service
	WakeCharUUID    = "22bb746f-2bbf-7554-2d6f-726568705327"
	TXPowerCharUUID = "22bb746f-2bb2-7554-2d6f-726568705327"
	AntiDoSCharUUID = "22bb746f-2bbd-7554-2d6f-726568705327"

	// robot control service
	CommandsCharUUID = "22bb746f-2ba1-7554-2d6f-726568705327"
	ResponseCharUUID = "22bb746f-2ba6-7554-2d6f-726568705327"
)

// InvalidRSSI is reported by the platform when no signal strength reading
// is available for an advertisement.
const InvalidRSSI = 127

// Description identifies a discovered, not yet connected robot.
type Description struct {
	ID   string
	Name string // empty when the robot did not advertise one
	RSSI int
}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	UUID() string
	// Write sends data with response and returns once it is acknowledged.
	Write(data []byte) error
	// Subscribe enables notifications and returns once the peripheral
	// acknowledged the subscription.
	Subscribe(callback func(data []byte)) error
}

// Service represents a discovered GATT service.
type Service interface {
	UUID() string
	// DiscoverCharacteristics finds the characteristics with the given UUIDs.
	DiscoverCharacteristics(uuids []string) ([]Characteristic, error)
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverServices finds the services with the given UUIDs.
	DiscoverServices(uuids []string) ([]Service, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked once when the connection
	// drops, including after Disconnect.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter. It may block until the radio is
	// available.
	Enable() error
	// Scan reports every advertisement (duplicates included) from
	// peripherals advertising serviceUUID. It blocks until StopScan.
	Scan(serviceUUID string, onResult func(Description)) error
	// StopScan ends a running Scan.
	StopScan() error
	// Connect establishes a connection to the peripheral with the given ID.
	Connect(ctx context.Context, id string) (Connection, error)
}

// PowerNotifier is implemented by adapters that report radio power changes
// after Enable has returned.
type PowerNotifier interface {
	OnPowerChange(callback func(poweredOn bool))
}
