package ble

import "testing"

// Host types have to satisfy the interfaces on every platform the package
// builds for, whichever write variant the build selects.
func TestHostTypesImplementInterfaces(t *testing.T) {
	var _ Adapter = (*HostAdapter)(nil)
	var _ Connection = (*hostConnection)(nil)
	var _ Service = (*hostService)(nil)
	var _ Characteristic = (*hostCharacteristic)(nil)
}
