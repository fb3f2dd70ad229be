package sensor

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wakewatch/internal/depth"
	"github.com/banshee-data/wakewatch/internal/motion"
	"github.com/banshee-data/wakewatch/internal/timeutil"
)

func testScene() Scene {
	return Scene{
		Resolution:      depth.Resolution{Width: 40, Height: 30},
		RiseAfterFrames: 3,
		JitterMM:        15,
		NoisyPixels:     20,
		UnknownPixels:   10,
		Seed:            42,
	}
}

func newTestSynthetic(t *testing.T, scene Scene) *SyntheticSource {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC))
	src, err := NewSyntheticSource(scene, clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func TestSyntheticSource_Defaults(t *testing.T) {
	src := newTestSynthetic(t, testScene())
	sc := src.Scene()
	assert.Equal(t, int32(2000), sc.BedDepthMM)
	assert.Equal(t, int32(1200), sc.PersonDepthMM)
	assert.Equal(t, 5, sc.PersonWidth)
	assert.Equal(t, 3, sc.PersonHeight)
}

func TestSyntheticSource_Deterministic(t *testing.T) {
	a := newTestSynthetic(t, testScene())
	b := newTestSynthetic(t, testScene())
	ctx := testContext(t)
	for i := 0; i < 6; i++ {
		fa, err := a.Next(ctx)
		require.NoError(t, err)
		fb, err := b.Next(ctx)
		require.NoError(t, err)
		if diff := cmp.Diff(fa.Samples, fb.Samples); diff != "" {
			t.Fatalf("frame %d differs between equal seeds (-a +b):\n%s", i+1, diff)
		}
	}
}

func TestSyntheticSource_PersonUp(t *testing.T) {
	scene := testScene()
	scene.LieDownAfterFrames = 4
	src := newTestSynthetic(t, scene)

	var got []bool
	for seq := uint64(1); seq <= 9; seq++ {
		got = append(got, src.PersonUp(seq))
	}
	want := []bool{false, false, false, true, true, true, true, false, false}
	assert.Equal(t, want, got)
}

func TestSyntheticSource_CentrePixelRises(t *testing.T) {
	scene := testScene()
	scene.NoisyPixels, scene.UnknownPixels = 0, 0
	src := newTestSynthetic(t, scene)
	ctx := testContext(t)

	centre := depth.NewFrame(scene.Resolution, 0, time.Time{}).Index(20, 15)
	for seq := 1; seq <= 4; seq++ {
		f, err := src.Next(ctx)
		require.NoError(t, err)
		s := f.Samples[centre]
		require.True(t, s.Known)
		if seq <= 3 {
			assert.InDelta(t, 2000, s.Depth, 15, "frame %d", seq)
		} else {
			assert.InDelta(t, 1200, s.Depth, 15, "frame %d", seq)
		}
	}
}

func TestSyntheticSource_MaxFramesIsLoss(t *testing.T) {
	scene := testScene()
	scene.MaxFrames = 2
	src := newTestSynthetic(t, scene)
	ctx := testContext(t)

	_, err := src.Next(ctx)
	require.NoError(t, err)
	_, err = src.Next(ctx)
	require.NoError(t, err)
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrSourceLost)
}

func TestSyntheticSource_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Scene)
	}{
		{"person too wide", func(s *Scene) { s.PersonWidth = 41 }},
		{"too much noise", func(s *Scene) { s.NoisyPixels = 1200 }},
		{"negative rise", func(s *Scene) { s.RiseAfterFrames = -1 }},
		{"negative jitter", func(s *Scene) { s.JitterMM = -3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scene := testScene()
			tt.mutate(&scene)
			_, err := NewSyntheticSource(scene, nil)
			assert.Error(t, err)
		})
	}
}

// The default scene must wake a detector tuned like production, scaled to
// the small test frame.
func TestSyntheticSource_DrivesDetectorToConfirmation(t *testing.T) {
	scene := testScene()
	src := newTestSynthetic(t, scene)

	cfg := motion.DefaultDetectorConfig().
		WithResolution(scene.Resolution).
		WithPixelMatchThreshold(8).
		WithRequiredSuccessFrames(5)
	d, err := motion.NewDetector(*cfg)
	require.NoError(t, err)

	ctx := testContext(t)
	confirmedAt := uint64(0)
	for i := 0; i < 20 && confirmedAt == 0; i++ {
		f, err := src.Next(ctx)
		require.NoError(t, err)
		out, err := d.OnFrame(f)
		require.NoError(t, err)
		if out.Confirmed {
			confirmedAt = f.Seq
		}
	}
	// Baseline at 1, empty bed at 2-3, person up from 4, five motion frames.
	assert.Equal(t, uint64(8), confirmedAt)
}
