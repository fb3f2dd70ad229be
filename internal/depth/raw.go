package depth

// Raw sensor sentinels. Structured-light sensors report these instead of a
// distance when a pixel cannot be resolved.
const (
	RawUnknown  int16 = 0
	RawTooNear  int16 = -1
	RawTooFar   int16 = -2
	RawNotValid int16 = -3
)

// DefaultMinDepthMM and DefaultMaxDepthMM bound the reliable range of the
// default sensor mode.
const (
	DefaultMinDepthMM = 800
	DefaultMaxDepthMM = 4000
)

// FromRaw converts a raw reading into a Sample. Sentinels, non-positive values
// and readings outside [minMM, maxMM] keep their raw depth but are marked unknown.
func FromRaw(raw int16, minMM, maxMM int32) Sample {
	d := int32(raw)
	if raw <= RawUnknown {
		return Sample{Depth: d, Known: false}
	}
	if d < minMM || d > maxMM {
		return Sample{Depth: d, Known: false}
	}
	return Sample{Depth: d, Known: true}
}

// FillFromRaw converts a raw row-major buffer into f's samples. It returns the
// number of known samples written. Extra raw values are ignored.
func (f Frame) FillFromRaw(raw []int16, minMM, maxMM int32) int {
	known := 0
	n := len(f.Samples)
	if len(raw) < n {
		n = len(raw)
	}
	for i := 0; i < n; i++ {
		s := FromRaw(raw[i], minMM, maxMM)
		if s.Known {
			known++
		}
		f.Samples[i] = s
	}
	return known
}
