package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wakewatch/internal/api"
	"github.com/banshee-data/wakewatch/internal/db"
	"github.com/banshee-data/wakewatch/internal/depth"
	"github.com/banshee-data/wakewatch/internal/motion"
	"github.com/banshee-data/wakewatch/internal/sensor"
	"github.com/banshee-data/wakewatch/internal/session"
)

var testRes = depth.Resolution{Width: 40, Height: 30}

func testApp(t *testing.T, src sensor.Options) *app {
	t.Helper()
	det := motion.DefaultDetectorConfig().
		WithResolution(testRes).
		WithPixelMatchThreshold(50).
		WithRequiredSuccessFrames(5)
	hub := api.NewHub(1024)
	t.Cleanup(hub.Close)
	return &app{
		detector:       *det,
		source:         src,
		recordProgress: true,
		tracker:        &session.Tracker{},
		hub:            hub,
	}
}

func syntheticOptions() sensor.Options {
	return sensor.Options{
		Kind: sensor.KindSynthetic,
		Scene: sensor.Scene{
			Resolution:      testRes,
			PersonWidth:     20,
			PersonHeight:    10,
			RiseAfterFrames: 3,
			JitterMM:        10,
			Seed:            7,
		},
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRunSession_SyntheticConfirms(t *testing.T) {
	a := testApp(t, syntheticOptions())
	store, err := db.NewDB(filepath.Join(t.TempDir(), "wake.db"))
	require.NoError(t, err)
	defer store.Close()
	a.store = store

	subID, events := a.hub.Subscribe()
	defer a.hub.Unsubscribe(subID)

	reason, err := a.runSession(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, session.ReasonConfirmed, reason)

	st, ok := a.tracker.Status()
	require.True(t, ok)
	assert.Equal(t, session.ReasonConfirmed, st.Outcome)

	recs, err := store.Sessions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, st.ID, recs[0].ID.String())

	var kinds []string
	for len(events) > 0 {
		kinds = append(kinds, (<-events).Kind)
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, "ended", kinds[len(kinds)-1])
	assert.Contains(t, kinds, "confirmed")
}

func TestRunSession_NoSensorWakesImmediately(t *testing.T) {
	a := testApp(t, sensor.Options{
		Kind: sensor.KindSerial,
		Path: "/dev/ttyACM0",
		Opener: func(string, sensor.PortOptions) (sensor.Porter, error) {
			return nil, errors.Join(sensor.ErrNoSensor, errors.New("no such device"))
		},
	})
	subID, events := a.hub.Subscribe()
	defer a.hub.Unsubscribe(subID)

	reason, err := a.runSession(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, session.ReasonConfirmed, reason)
	assert.Nil(t, a.tracker.Current(), "no session is tracked without a sensor")

	e := <-events
	assert.Equal(t, "confirmed", e.Kind)
	assert.Equal(t, 0.0, e.Volume)
}

func TestRunSession_SourceLost(t *testing.T) {
	opts := syntheticOptions()
	opts.Scene.RiseAfterFrames = 100
	opts.Scene.MaxFrames = 10
	a := testApp(t, opts)

	reason, err := a.runSession(testContext(t))
	assert.ErrorIs(t, err, sensor.ErrSourceLost)
	assert.Equal(t, session.ReasonSourceLost, reason)
}

func TestRunSession_Cancelled(t *testing.T) {
	opts := syntheticOptions()
	opts.Scene.RiseAfterFrames = 1 << 30
	a := testApp(t, opts)

	ctx, cancel := context.WithCancel(testContext(t))
	time.AfterFunc(50*time.Millisecond, cancel)
	reason, err := a.runSession(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, session.ReasonCancelled, reason)
}

func TestLogPresenter_LogsOncePerTenth(t *testing.T) {
	p := &logPresenter{id: "x"}
	p.OnProgress(0.11)
	assert.Equal(t, 1, p.step)
	p.OnProgress(0.19)
	assert.Equal(t, 1, p.step)
	p.OnProgress(0)
	assert.Equal(t, 0, p.step)
	assert.True(t, p.logged)
}

func TestRun_ReturnsExitCodes(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"version", []string{"-version"}, 0},
		{"unknown flag", []string{"-no-such-flag"}, 2},
		{"missing config", []string{"-version=false", "-config", filepath.Join(dir, "absent.json"), "-source", "synthetic"}, 1},
		{"unknown source", []string{"-version=false", "-config", "", "-source", "carrier-pigeon"}, 1},
		{"replay without file", []string{"-version=false", "-config", "", "-source", "replay", "-replay", ""}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(tt.args))
		})
	}
}
