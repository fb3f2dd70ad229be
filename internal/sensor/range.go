package sensor

import (
	"context"
	"math"

	"github.com/banshee-data/wakewatch/internal/depth"
)

// rangeSource re-applies the raw range check to decoded frames.
type rangeSource struct {
	Source
	minMM, maxMM int32
}

func (r *rangeSource) Next(ctx context.Context) (depth.Frame, error) {
	f, err := r.Source.Next(ctx)
	if err != nil {
		return f, err
	}
	dropped := 0
	for i, s := range f.Samples {
		if !s.Known {
			continue
		}
		if s.Depth > math.MaxInt16 {
			f.Samples[i].Known = false
			dropped++
			continue
		}
		if f.Samples[i] = depth.FromRaw(int16(s.Depth), r.minMM, r.maxMM); !f.Samples[i].Known {
			dropped++
		}
	}
	if dropped > 0 {
		tracef("frame seq=%d: %d samples outside %d..%dmm", f.Seq, dropped, r.minMM, r.maxMM)
	}
	return f, nil
}
