package sensor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/banshee-data/wakewatch/internal/depth"
	"github.com/banshee-data/wakewatch/internal/timeutil"
)

// Scene describes the synthetic bedroom a SyntheticSource renders. Zero
// depths and person dimensions fall back to DefaultScene.
type Scene struct {
	Resolution depth.Resolution `json:"resolution"`

	BedDepthMM    int32 `json:"bed_depth_mm"`
	PersonDepthMM int32 `json:"person_depth_mm"`
	JitterMM      int32 `json:"jitter_mm"`

	// The person occupies a centred PersonWidth x PersonHeight block once up.
	PersonWidth  int `json:"person_width"`
	PersonHeight int `json:"person_height"`

	// RiseAfterFrames frames of an empty bed precede the person getting up.
	RiseAfterFrames int `json:"rise_after_frames"`
	// LieDownAfterFrames, when positive, returns the person to bed that many
	// frames after rising.
	LieDownAfterFrames int `json:"lie_down_after_frames"`

	// NoisyPixels flicker by NoiseAmplitudeMM every frame.
	NoisyPixels      int   `json:"noisy_pixels"`
	NoiseAmplitudeMM int32 `json:"noise_amplitude_mm"`
	// UnknownPixels never resolve a depth.
	UnknownPixels int `json:"unknown_pixels"`

	// MaxFrames ends the stream as a lost source; 0 streams forever.
	MaxFrames int `json:"max_frames"`

	// FrameRate paces delivery in frames per second; 0 is unpaced.
	FrameRate float64 `json:"frame_rate"`
	Seed      int64   `json:"seed"`
}

// DefaultScene returns a 640x480 room with the bed two metres away and a
// person getting up after two seconds.
func DefaultScene() Scene {
	return Scene{
		Resolution:       depth.DefaultResolution,
		BedDepthMM:       2000,
		PersonDepthMM:    1200,
		JitterMM:         15,
		RiseAfterFrames:  60,
		NoisyPixels:      200,
		NoiseAmplitudeMM: 1500,
		UnknownPixels:    500,
		FrameRate:        depth.DefaultFrameRate,
		Seed:             1,
	}
}

func (sc Scene) withDefaults() Scene {
	def := DefaultScene()
	if sc.Resolution == (depth.Resolution{}) {
		sc.Resolution = def.Resolution
	}
	if sc.BedDepthMM == 0 {
		sc.BedDepthMM = def.BedDepthMM
	}
	if sc.PersonDepthMM == 0 {
		sc.PersonDepthMM = def.PersonDepthMM
	}
	if sc.NoiseAmplitudeMM == 0 {
		sc.NoiseAmplitudeMM = def.NoiseAmplitudeMM
	}
	if sc.PersonWidth == 0 {
		sc.PersonWidth = max(sc.Resolution.Width/8, 1)
	}
	if sc.PersonHeight == 0 {
		sc.PersonHeight = max(sc.Resolution.Height/8, 1)
	}
	return sc
}

// Validate checks the scene can be rendered.
func (sc Scene) Validate() error {
	if err := sc.Resolution.Validate(); err != nil {
		return err
	}
	if sc.PersonWidth > sc.Resolution.Width || sc.PersonHeight > sc.Resolution.Height {
		return fmt.Errorf("person %dx%d does not fit in %s", sc.PersonWidth, sc.PersonHeight, sc.Resolution)
	}
	if sc.NoisyPixels < 0 || sc.UnknownPixels < 0 || sc.NoisyPixels+sc.UnknownPixels > sc.Resolution.Pixels() {
		return fmt.Errorf("noisy (%d) and unknown (%d) pixels exceed the frame", sc.NoisyPixels, sc.UnknownPixels)
	}
	if sc.RiseAfterFrames < 0 || sc.LieDownAfterFrames < 0 || sc.MaxFrames < 0 {
		return fmt.Errorf("frame counts must not be negative")
	}
	if sc.JitterMM < 0 {
		return fmt.Errorf("jitter_mm must not be negative, got %d", sc.JitterMM)
	}
	return nil
}

type pixelRole uint8

const (
	roleBed pixelRole = iota
	rolePerson
	roleNoisy
	roleUnknown
)

// SyntheticSource renders a deterministic bedroom scene for development and
// demos without a sensor attached.
type SyntheticSource struct {
	scene  Scene
	clock  timeutil.Clock
	ticker timeutil.Ticker
	rng    *rand.Rand
	roles  []pixelRole
	seq    uint64
	closed bool
}

// NewSyntheticSource validates scene and prepares the generator.
func NewSyntheticSource(scene Scene, clock timeutil.Clock) (*SyntheticSource, error) {
	scene = scene.withDefaults()
	if err := scene.Validate(); err != nil {
		return nil, fmt.Errorf("synthetic scene: %w", err)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	s := &SyntheticSource{
		scene: scene,
		clock: clock,
		rng:   rand.New(rand.NewSource(scene.Seed)),
		roles: make([]pixelRole, scene.Resolution.Pixels()),
	}

	res := scene.Resolution
	x0 := (res.Width - scene.PersonWidth) / 2
	y0 := (res.Height - scene.PersonHeight) / 2
	for y := y0; y < y0+scene.PersonHeight; y++ {
		for x := x0; x < x0+scene.PersonWidth; x++ {
			s.roles[y*res.Width+x] = rolePerson
		}
	}
	// Noise is scattered over the whole frame, the person included.
	perm := s.rng.Perm(len(s.roles))
	for i, idx := range perm[:scene.NoisyPixels+scene.UnknownPixels] {
		if i < scene.NoisyPixels {
			s.roles[idx] = roleNoisy
		} else {
			s.roles[idx] = roleUnknown
		}
	}

	if scene.FrameRate > 0 {
		s.ticker = clock.NewTicker(time.Duration(float64(time.Second) / scene.FrameRate))
	}
	diagf("synthetic scene %s bed=%dmm person=%dx%d rise_after=%d",
		res, scene.BedDepthMM, scene.PersonWidth, scene.PersonHeight, scene.RiseAfterFrames)
	return s, nil
}

// Scene returns the effective scene, defaults applied.
func (s *SyntheticSource) Scene() Scene {
	return s.scene
}

// PersonUp reports whether the frame with the given sequence number shows the
// person out of bed.
func (s *SyntheticSource) PersonUp(seq uint64) bool {
	rise := uint64(s.scene.RiseAfterFrames)
	if seq <= rise {
		return false
	}
	if s.scene.LieDownAfterFrames > 0 && seq > rise+uint64(s.scene.LieDownAfterFrames) {
		return false
	}
	return true
}

// Next renders the next frame.
func (s *SyntheticSource) Next(ctx context.Context) (depth.Frame, error) {
	if s.closed {
		return depth.Frame{}, ErrClosed
	}
	if s.scene.MaxFrames > 0 && s.seq >= uint64(s.scene.MaxFrames) {
		return depth.Frame{}, fmt.Errorf("%w: synthetic stream ended after %d frames", ErrSourceLost, s.seq)
	}
	if s.ticker != nil && s.seq > 0 {
		select {
		case <-s.ticker.C():
		case <-ctx.Done():
			return depth.Frame{}, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return depth.Frame{}, err
	}

	s.seq++
	up := s.PersonUp(s.seq)
	f := depth.NewFrame(s.scene.Resolution, s.seq, s.clock.Now())
	for i, role := range s.roles {
		base := s.scene.BedDepthMM
		switch role {
		case rolePerson:
			if up {
				base = s.scene.PersonDepthMM
			}
		case roleNoisy:
			if s.seq%2 == 0 {
				base -= s.scene.NoiseAmplitudeMM
			}
		case roleUnknown:
			f.Samples[i] = depth.Sample{Depth: int32(depth.RawUnknown)}
			continue
		}
		f.Samples[i] = depth.Sample{Depth: base + s.jitter(), Known: true}
	}
	tracef("synthetic frame seq=%d person_up=%t", f.Seq, up)
	return f, nil
}

func (s *SyntheticSource) jitter() int32 {
	if s.scene.JitterMM == 0 {
		return 0
	}
	return int32(s.rng.Int63n(int64(2*s.scene.JitterMM+1))) - s.scene.JitterMM
}

// Close stops pacing.
func (s *SyntheticSource) Close() error {
	if !s.closed && s.ticker != nil {
		s.ticker.Stop()
	}
	s.closed = true
	return nil
}
