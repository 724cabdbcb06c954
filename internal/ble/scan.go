package ble

import (
	"context"
	"errors"
	"time"
)

// ScanForDevices scans for timeout and returns every robot seen, one entry
// per identifier with its latest reading, strongest signal first.
func ScanForDevices(ctx context.Context, m *Manager, timeout time.Duration) ([]Description, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seen := make(map[string]Description)
	updates := make(chan Description, 16)
	stop := make(chan struct{})
	defer close(stop)

	remove := m.AddListener(ListenerFuncs{
		Discovered: func(d Description) {
			select {
			case updates <- d:
			case <-stop:
			}
		},
	})
	defer remove()

	m.StartScanning()
	defer m.StopScanning()

	for {
		select {
		case d := <-updates:
			seen[d.ID] = d
		case <-ctx.Done():
			devices := make([]Description, 0, len(seen))
			for _, d := range seen {
				devices = append(devices, d)
			}
			sortByRSSI(devices)
			if err := ctx.Err(); !errors.Is(err, context.DeadlineExceeded) {
				return devices, err
			}
			return devices, nil
		}
	}
}
