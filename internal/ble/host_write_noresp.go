//go:build !darwin && !windows

package ble

// Write sends without response; the BlueZ backend has no acknowledged
// write. A nil error means the write was queued, which the handshake
// treats as its acknowledgement. A dropped write surfaces as a missing
// ping echo instead.
func (c *hostCharacteristic) Write(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}
