//go:build darwin || windows

package ble

// Write uses write-with-response so the handshake sees each acknowledgement.
func (c *hostCharacteristic) Write(data []byte) error {
	_, err := c.char.Write(data)
	return err
}
