package ble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// advertiseWhenScanning delivers descs once the adapter starts scanning.
func advertiseWhenScanning(adapter *mockAdapter, descs ...Description) {
	go func() {
		deadline := time.Now().Add(waitFor)
		for !adapter.Scanning() {
			if time.Now().After(deadline) {
				return
			}
			time.Sleep(tick)
		}
		for _, d := range descs {
			adapter.SimulateAdvertisement(d)
		}
	}()
}

func TestNearestPicksStrongestSignal(t *testing.T) {
	adapter := newMockAdapter()
	m, _ := newTestManager(t, adapter)
	advertiseWhenScanning(adapter,
		Description{ID: "A", Name: "BB-8", RSSI: -40},
		Description{ID: "B", Name: "SK-1", RSSI: -70},
		Description{ID: "C", Name: "2B-2", RSSI: InvalidRSSI},
	)

	robot, err := Nearest(context.Background(), m, 200*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, robot)
	assert.Equal(t, "A", robot.ID())
	assert.Equal(t, []string{"A"}, adapter.Connects())
	require.Eventually(t, func() bool { return !adapter.Scanning() }, waitFor, tick, "scanning left on")
}

func TestNearestIgnoresInvalidRSSI(t *testing.T) {
	adapter := newMockAdapter()
	m, _ := newTestManager(t, adapter)
	advertiseWhenScanning(adapter, Description{ID: "C", RSSI: InvalidRSSI})

	robot, err := Nearest(context.Background(), m, 150*time.Millisecond)
	assert.Nil(t, robot)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, adapter.Connects())
	require.Eventually(t, func() bool { return !adapter.Scanning() }, waitFor, tick)
}

func TestNearestNothingSeen(t *testing.T) {
	adapter := newMockAdapter()
	m, _ := newTestManager(t, adapter)

	_, err := Nearest(context.Background(), m, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, adapter.Connects())
}

func TestNearestConnectBoundedByContext(t *testing.T) {
	adapter := newMockAdapter()
	adapter.connectGate = make(chan struct{})
	m, rec := newTestManager(t, adapter)
	advertiseWhenScanning(adapter, Description{ID: "A", RSSI: -40})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := Nearest(ctx, m, 100*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned attempt is released.
	ev := rec.await(t, "failed", "A")
	assert.ErrorIs(t, ev.err, context.Canceled)
}

func TestNearestReportsConnectFailure(t *testing.T) {
	adapter := newMockAdapter()
	adapter.connectErr = mockErr("connect")
	m, _ := newTestManager(t, adapter)
	advertiseWhenScanning(adapter, Description{ID: "A", RSSI: -40})

	_, err := Nearest(context.Background(), m, 100*time.Millisecond)
	assert.ErrorIs(t, err, errMock)
}

func TestNamedConnectsToMatchingRobot(t *testing.T) {
	adapter := newMockAdapter()
	m, _ := newTestManager(t, adapter)
	advertiseWhenScanning(adapter,
		Description{ID: "A", Name: "SK-1", RSSI: -30},
		Description{ID: "B", Name: "BB-8", RSSI: -80},
		Description{ID: "B", Name: "BB-8", RSSI: -75},
	)

	robot, err := Named(context.Background(), m, "BB-8", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "B", robot.ID())
	assert.Equal(t, "BB-8", robot.Name())
	assert.Equal(t, []string{"B"}, adapter.Connects())
	require.Eventually(t, func() bool { return !adapter.Scanning() }, waitFor, tick)
}

func TestNamedNotFound(t *testing.T) {
	adapter := newMockAdapter()
	m, _ := newTestManager(t, adapter)
	advertiseWhenScanning(adapter, Description{ID: "A", Name: "SK-1", RSSI: -30})

	_, err := Named(context.Background(), m, "BB-8", 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, adapter.Connects())
	require.Eventually(t, func() bool { return !adapter.Scanning() }, waitFor, tick)
}

func TestNamedTimeoutCoversConnect(t *testing.T) {
	adapter := newMockAdapter()
	adapter.connectGate = make(chan struct{})
	m, _ := newTestManager(t, adapter)
	advertiseWhenScanning(adapter, Description{ID: "B", Name: "BB-8", RSSI: -50})

	_, err := Named(context.Background(), m, "BB-8", 150*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestNamedTimeoutDisconnectsUnclaimedRobot(t *testing.T) {
	adapter := newMockAdapter()
	m, rec := newTestManager(t, adapter)

	// Hold event delivery at DeviceConnected so the outcome reaches the
	// selector only after its deadline.
	gate := make(chan struct{})
	m.AddListener(ListenerFuncs{Connected: func(*Robot) { <-gate }})
	advertiseWhenScanning(adapter, Description{ID: "B", Name: "BB-8", RSSI: -50})

	robot, err := Named(context.Background(), m, "BB-8", 200*time.Millisecond)
	close(gate)
	assert.Nil(t, robot)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ev := rec.await(t, "disconnected", "B")
	assert.False(t, ev.robot.Valid())
	assert.Equal(t, 1, adapter.connection("B").Disconnects())
}

func TestNearestIgnoresOtherConnectOutcomes(t *testing.T) {
	adapter := newMockAdapter()
	m, rec := newTestManager(t, adapter)
	advertiseWhenScanning(adapter,
		Description{ID: "A", RSSI: -40},
		Description{ID: "X", RSSI: -80},
		Description{ID: "Y", RSSI: -85},
	)

	type result struct {
		robot *Robot
		err   error
	}
	done := make(chan result, 1)
	go func() {
		robot, err := Nearest(context.Background(), m, time.Second)
		done <- result{robot, err}
	}()

	// Another user of the manager connects two robots during the scan window.
	rec.await(t, "discovered", "Y")
	require.NoError(t, m.Connect(Description{ID: "X", RSSI: -80}))
	require.NoError(t, m.Connect(Description{ID: "Y", RSSI: -85}))
	rec.await(t, "connected", "X")
	rec.await(t, "connected", "Y")

	// Discoveries still flow while the selector is waiting.
	require.True(t, adapter.SimulateAdvertisement(Description{ID: "Z", RSSI: -90}))
	require.Eventually(t, func() bool {
		for _, ev := range rec.all("discovered") {
			if ev.id == "Z" {
				return true
			}
		}
		return false
	}, 300*time.Millisecond, tick, "event delivery stalled")

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, "A", res.robot.ID())
	case <-time.After(waitFor):
		t.Fatal("Nearest did not return")
	}
}

func TestStrongest(t *testing.T) {
	tests := []struct {
		name   string
		descs  []Description
		wantID string
		wantOK bool
	}{
		{"empty", nil, "", false},
		{"only invalid", []Description{{ID: "c", RSSI: InvalidRSSI}}, "", false},
		{"strongest wins", []Description{{ID: "b", RSSI: -70}, {ID: "a", RSSI: -40}, {ID: "c", RSSI: InvalidRSSI}}, "a", true},
		{"tie breaks on id", []Description{{ID: "y", RSSI: -50}, {ID: "x", RSSI: -50}}, "x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := strongest(tt.descs)
			if ok != tt.wantOK || got.ID != tt.wantID {
				t.Errorf("strongest() = (%q, %v), want (%q, %v)", got.ID, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestSortByRSSI(t *testing.T) {
	descs := []Description{
		{ID: "invalid", RSSI: InvalidRSSI},
		{ID: "far", RSSI: -90},
		{ID: "near", RSSI: -30},
	}
	sortByRSSI(descs)
	var ids []string
	for _, d := range descs {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"near", "far", "invalid"}, ids)
}
