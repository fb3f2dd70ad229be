package sensor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wakewatch/internal/timeutil"
)

func TestReplaySource_Unpaced(t *testing.T) {
	data := encodeFrames(t, bedFrame(1, 2000), bedFrame(2, 1500), bedFrame(3, 1200))
	src := NewReplaySource(bytes.NewReader(data), 0, nil)
	defer src.Close()

	ctx := testContext(t)
	for want := uint64(1); want <= 3; want++ {
		f, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, f.Seq)
	}

	_, err := src.Next(ctx)
	require.ErrorIs(t, err, ErrSourceLost)
	assert.Contains(t, err.Error(), "exhausted")
}

func TestReplaySource_PacedByClock(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC))
	data := encodeFrames(t, bedFrame(1, 2000), bedFrame(2, 2000))
	src := NewReplaySource(bytes.NewReader(data), 10, clock)
	defer src.Close()

	f, err := src.Next(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq, "first frame is served without waiting")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = src.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "second frame must wait for a tick")

	clock.Advance(100 * time.Millisecond)
	f, err = src.Next(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.Seq)
}

func TestReplaySource_CorruptIsLoss(t *testing.T) {
	data := append(encodeFrames(t, bedFrame(1, 2000)), []byte("DPTHgarbage")...)
	src := NewReplaySource(bytes.NewReader(data), 0, nil)

	_, err := src.Next(testContext(t))
	require.NoError(t, err)
	_, err = src.Next(testContext(t))
	assert.ErrorIs(t, err, ErrSourceLost)
}

func TestOpenReplay(t *testing.T) {
	_, err := OpenReplay(filepath.Join(t.TempDir(), "missing.dlog"), 0, nil)
	require.ErrorIs(t, err, ErrNoSensor)

	path := filepath.Join(t.TempDir(), "night.dlog")
	require.NoError(t, os.WriteFile(path, encodeFrames(t, bedFrame(9, 2000)), 0o644))

	src, err := OpenReplay(path, 0, nil)
	require.NoError(t, err)
	f, err := src.Next(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), f.Seq)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	_, err = src.Next(testContext(t))
	assert.ErrorIs(t, err, ErrClosed)
}
