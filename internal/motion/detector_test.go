package motion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wakewatch/internal/depth"
)

var testRes = depth.Resolution{Width: 40, Height: 30} // 1200 pixels

func testConfig() DetectorConfig {
	return DetectorConfig{
		DistanceDecreaseThreshold:  700,
		PixelMatchThreshold:        500,
		FluctuationChangeThreshold: 1000,
		MaxFluctuationTriggers:     30,
		RequiredSuccessFrames:      150,
		Resolution:                 testRes,
	}
}

func newTestDetector(t *testing.T, cfg DetectorConfig) *Detector {
	t.Helper()
	d, err := NewDetector(cfg)
	require.NoError(t, err)
	return d
}

// uniformFrame builds a frame where every pixel reads depthMM and is known.
func uniformFrame(seq uint64, depthMM int32) depth.Frame {
	f := depth.NewFrame(testRes, seq, time.Unix(0, int64(seq)))
	f.Fill(depthMM, true)
	return f
}

// motionFrame builds a 2000 mm scene with the first n pixels at 1200 mm.
func motionFrame(seq uint64, n int) depth.Frame {
	f := uniformFrame(seq, 2000)
	for i := 0; i < n; i++ {
		f.Samples[i].Depth = 1200
	}
	return f
}

func mustFrame(t *testing.T, d *Detector, f depth.Frame) Outcome {
	t.Helper()
	out, err := d.OnFrame(f)
	require.NoError(t, err)
	return out
}

func TestDetector_FirstFrameCapturesBaseline(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, testConfig())
	assert.Equal(t, StateBaselineCapturing, d.State())

	_, ok := d.Baseline(0)
	assert.False(t, ok, "no baseline before the first frame")

	out := mustFrame(t, d, uniformFrame(1, 2000))
	assert.Equal(t, OutcomeBaseline, out.Kind)
	assert.False(t, out.HasProgress(), "baseline frame emits no progress")
	assert.Equal(t, StateAccumulating, d.State())

	b, ok := d.Baseline(17)
	require.True(t, ok)
	assert.Equal(t, int32(2000), b)
	assert.Equal(t, uint64(0), d.Stats().FramesScored)
}

func TestDetector_BaselineIsFrozen(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, testConfig())
	first := uniformFrame(1, 2000)
	mustFrame(t, d, first)

	// Resubmitting the same frame scores it; the baseline stays put.
	out := mustFrame(t, d, first)
	assert.Equal(t, OutcomeScored, out.Kind)
	b, _ := d.Baseline(0)
	assert.Equal(t, int32(2000), b)

	// A later, different frame never overwrites the baseline either.
	mustFrame(t, d, uniformFrame(3, 1800))
	b, _ = d.Baseline(0)
	assert.Equal(t, int32(2000), b)
}

func TestDetector_ScenarioA_SingleMotionFrame(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, testConfig())
	mustFrame(t, d, uniformFrame(1, 2000))

	// 800 mm drop from baseline; the 800 mm frame-to-frame jump is under the
	// 1000 mm fluctuation bound.
	out := mustFrame(t, d, motionFrame(2, 500))
	assert.Equal(t, OutcomeScored, out.Kind)
	assert.True(t, out.Motion)
	assert.Equal(t, 500, out.QualifyingPixels)
	assert.Equal(t, 0, out.NoisyPixels)
	assert.Equal(t, 1, out.SuccessCount)
	assert.InDelta(t, 1.0/150.0, out.Progress, 1e-12)
	assert.False(t, out.Confirmed)
}

func TestDetector_BelowPixelMatchResets(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, testConfig())
	mustFrame(t, d, uniformFrame(1, 2000))
	mustFrame(t, d, motionFrame(2, 600))
	mustFrame(t, d, motionFrame(3, 600))
	assert.Equal(t, 2, d.Stats().SuccessCount)

	out := mustFrame(t, d, motionFrame(4, 499))
	assert.False(t, out.Motion)
	assert.Equal(t, 0, out.SuccessCount)
	assert.Equal(t, 0.0, out.Progress)
	assert.True(t, out.HasProgress(), "evidence lost still emits a zero progress")
}

func TestDetector_ExactDistanceThresholdQualifies(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, testConfig())
	mustFrame(t, d, uniformFrame(1, 2000))

	f := uniformFrame(2, 2000)
	for i := 0; i < 500; i++ {
		f.Samples[i].Depth = 1300 // exactly 700 closer
	}
	for i := 500; i < 1000; i++ {
		f.Samples[i].Depth = 1301 // 699 closer
	}
	out := mustFrame(t, d, f)
	assert.Equal(t, 500, out.QualifyingPixels)
	assert.True(t, out.Motion)
}

func TestDetector_FluctuationExcludesPixelFromFrame(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, testConfig())
	mustFrame(t, d, uniformFrame(1, 2000))

	// Pixel 0 jumps by exactly the fluctuation threshold while also being far
	// closer than baseline; it must not qualify.
	f := motionFrame(2, 0)
	f.Samples[0].Depth = 1000
	out := mustFrame(t, d, f)
	assert.Equal(t, 0, out.QualifyingPixels)
	assert.Equal(t, 1, out.NoisyPixels)
	assert.Equal(t, 1, d.FluctuationCount(0))

	// Unknown depth also counts as a fluctuation even with no jump.
	g := uniformFrame(3, 2000)
	g.Samples[5].Known = false
	out = mustFrame(t, d, g)
	assert.Equal(t, 2, out.NoisyPixels, "pixel 0 jumps back by 1000 and pixel 5 is unknown")
	assert.Equal(t, 1, d.FluctuationCount(5))
	assert.Equal(t, 2, d.FluctuationCount(0))
}

func TestDetector_NoisyPixelUpdatesLastDepth(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, testConfig())
	mustFrame(t, d, uniformFrame(1, 2000))

	f := uniformFrame(2, 2000)
	f.Samples[0].Depth = 800 // 1200 jump: noisy
	mustFrame(t, d, f)

	// Holding at 800 is now stable relative to the last frame and qualifies.
	g := uniformFrame(3, 2000)
	g.Samples[0].Depth = 800
	out := mustFrame(t, d, g)
	assert.Equal(t, 0, out.NoisyPixels)
	assert.Equal(t, 1, out.QualifyingPixels)
	assert.Equal(t, 1, d.FluctuationCount(0))
}

func TestDetector_ScenarioB_PermanentExclusion(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PixelMatchThreshold = 1
	d := newTestDetector(t, cfg)
	mustFrame(t, d, uniformFrame(1, 2000))

	// Pixel 0 oscillates by 1500 mm every frame for 31 frames.
	seq := uint64(2)
	var newlyExcluded int
	for k := 0; k < 31; k++ {
		f := uniformFrame(seq, 2000)
		if k%2 == 0 {
			f.Samples[0].Depth = 3500
		}
		out := mustFrame(t, d, f)
		newlyExcluded += out.NewlyExcluded
		seq++
	}
	assert.True(t, d.Excluded(0))
	assert.Equal(t, 30, d.FluctuationCount(0), "counter stops at the ceiling")
	assert.Equal(t, 1, newlyExcluded)
	assert.Equal(t, 1, d.Stats().ExcludedPixels)

	// The pixel stabilises and genuinely moves closer; it is never counted again.
	for k := 0; k < 5; k++ {
		f := uniformFrame(seq, 2000)
		f.Samples[0].Depth = 1000
		out := mustFrame(t, d, f)
		assert.Equal(t, 0, out.QualifyingPixels)
		assert.Equal(t, 0, out.NoisyPixels)
		assert.False(t, out.Motion)
		seq++
	}
	assert.Equal(t, 30, d.FluctuationCount(0))
}

func TestDetector_ExcludedPixelLastDepthFrozen(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxFluctuationTriggers = 1
	cfg.PixelMatchThreshold = 1
	d := newTestDetector(t, cfg)
	mustFrame(t, d, uniformFrame(1, 2000))

	f := uniformFrame(2, 2000)
	f.Samples[3].Known = false
	out := mustFrame(t, d, f)
	assert.Equal(t, 1, out.NewlyExcluded)
	assert.Equal(t, int32(2000), d.last[3])

	g := uniformFrame(3, 2000)
	g.Samples[3].Depth = 500
	mustFrame(t, d, g)
	assert.Equal(t, int32(2000), d.last[3], "excluded pixel keeps its last depth")
	assert.Equal(t, 1, d.FluctuationCount(3), "excluded pixel is not counted further")
}

func TestDetector_ScenarioC_ResetThenConfirm(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, testConfig())
	mustFrame(t, d, uniformFrame(1, 2000))

	seq := uint64(2)
	prev := 0
	for k := 0; k < 149; k++ {
		out := mustFrame(t, d, motionFrame(seq, 600))
		require.False(t, out.Confirmed)
		require.GreaterOrEqual(t, out.SuccessCount, prev, "success count is non-decreasing during motion")
		prev = out.SuccessCount
		seq++
	}
	assert.Equal(t, 149, d.Stats().SuccessCount)

	// The subject leaves the frame; stepping 800 mm back stays under the
	// fluctuation bound so no pixel is flagged.
	out := mustFrame(t, d, uniformFrame(seq, 2000))
	seq++
	assert.False(t, out.Motion)
	assert.Equal(t, 0, out.SuccessCount)
	assert.False(t, out.Confirmed)
	assert.Equal(t, StateAccumulating, d.State())

	confirmations := 0
	for k := 1; k <= 150; k++ {
		out := mustFrame(t, d, motionFrame(seq, 600))
		seq++
		if out.Confirmed {
			confirmations++
			assert.Equal(t, 150, k, "confirmation fires on the 150th consecutive motion frame")
			assert.Equal(t, 1.0, out.Progress)
			assert.Equal(t, 150, out.SuccessCount)
		}
	}
	assert.Equal(t, 1, confirmations)
	assert.Equal(t, StateConfirmed, d.State())
}

func TestDetector_ConfirmationFiresOnce(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RequiredSuccessFrames = 3
	d := newTestDetector(t, cfg)
	mustFrame(t, d, uniformFrame(1, 2000))

	var outs []Outcome
	for seq := uint64(2); seq < 10; seq++ {
		outs = append(outs, mustFrame(t, d, motionFrame(seq, 600)))
	}

	assert.InDelta(t, 1.0/3.0, outs[0].Progress, 1e-12)
	assert.InDelta(t, 2.0/3.0, outs[1].Progress, 1e-12)
	assert.True(t, outs[2].Confirmed)
	for _, o := range outs[3:] {
		assert.Equal(t, OutcomeIgnored, o.Kind)
		assert.False(t, o.Confirmed)
		assert.False(t, o.HasProgress())
	}

	st := d.Stats()
	assert.Equal(t, 3, st.SuccessCount)
	assert.Equal(t, 1.0, st.Progress)
	assert.Equal(t, uint64(3), st.FramesScored, "frames after confirmation are not scored")
}

func TestDetector_InvalidFrameLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, testConfig())

	short := depth.NewFrame(depth.Resolution{Width: 10, Height: 10}, 1, time.Time{})
	_, err := d.OnFrame(short)
	require.ErrorIs(t, err, ErrInvalidFrame)
	assert.Equal(t, StateBaselineCapturing, d.State(), "rejected frame must not become the baseline")

	mustFrame(t, d, uniformFrame(2, 2000))
	mustFrame(t, d, motionFrame(3, 600))
	before := d.Stats()

	_, err = d.OnFrame(short)
	require.ErrorIs(t, err, ErrInvalidFrame)
	assert.Equal(t, before, d.Stats())

	out := mustFrame(t, d, motionFrame(4, 600))
	assert.Equal(t, 2, out.SuccessCount, "caller may continue with the next well-formed frame")
}

func TestDetector_ResetAndRelease(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, testConfig())
	mustFrame(t, d, uniformFrame(1, 2000))
	mustFrame(t, d, motionFrame(2, 600))

	d.Reset()
	assert.Equal(t, StateBaselineCapturing, d.State())
	assert.Equal(t, Stats{State: StateBaselineCapturing, Required: 150}, d.Stats())

	out := mustFrame(t, d, uniformFrame(3, 1500))
	assert.Equal(t, OutcomeBaseline, out.Kind)
	b, _ := d.Baseline(0)
	assert.Equal(t, int32(1500), b)

	d.Release()
	assert.Equal(t, StateUninitialized, d.State())
	_, err := d.OnFrame(uniformFrame(4, 1500))
	assert.ErrorIs(t, err, ErrReleased)

	d.Reset()
	out = mustFrame(t, d, uniformFrame(5, 1500))
	assert.Equal(t, OutcomeBaseline, out.Kind)
}

func TestDetector_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RequiredSuccessFrames = 0
	_, err := NewDetector(cfg)
	assert.Error(t, err)
}

func TestStateStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "accumulating", StateAccumulating.String())
	assert.Equal(t, "confirmed", StateConfirmed.String())
	assert.Equal(t, "scored", OutcomeScored.String())
	assert.Equal(t, "state(9)", State(9).String())
}
