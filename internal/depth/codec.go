package depth

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// Wire layout, all integers little-endian:
//
//	offset  size  field
//	0       4     magic "DPTH"
//	4       1     version
//	5       1     reserved (0)
//	6       2     width
//	8       2     height
//	10      8     sequence number
//	18      8     captured-at, unix nanoseconds
//	26      2N    depth samples, int16 millimetres
//	26+2N   N/8   validity bitmap, bit set means known (LSB first)
const (
	HeaderSize   = 26
	CodecVersion = 1

	// MaxPixels caps the frame size a decoder will allocate for.
	MaxPixels = 4096 * 4096
)

var frameMagic = [4]byte{'D', 'P', 'T', 'H'}

var (
	ErrBadMagic       = errors.New("depth: bad frame magic")
	ErrBadVersion     = errors.New("depth: unsupported codec version")
	ErrTruncated      = errors.New("depth: truncated frame")
	ErrFrameTooLarge  = errors.New("depth: frame exceeds maximum pixel count")
	ErrSampleMismatch = errors.New("depth: sample count does not match resolution")
)

// EncodedSize returns the number of bytes a frame of res occupies on the wire.
func EncodedSize(res Resolution) int {
	n := res.Pixels()
	return HeaderSize + 2*n + bitmapSize(n)
}

func bitmapSize(n int) int {
	return (n + 7) / 8
}

// clampInt16 saturates depths that do not fit the wire format.
func clampInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// MarshalFrame appends the wire encoding of f to dst.
func MarshalFrame(dst []byte, f Frame) ([]byte, error) {
	n := len(f.Samples)
	if n != f.Width*f.Height {
		return dst, fmt.Errorf("%w: %d samples for %dx%d", ErrSampleMismatch, n, f.Width, f.Height)
	}
	if err := f.Resolution().Validate(); err != nil {
		return dst, err
	}

	start := len(dst)
	size := EncodedSize(f.Resolution())
	if cap(dst)-start < size {
		grown := make([]byte, start, start+size)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:start+size]
	buf := dst[start:]

	copy(buf[0:4], frameMagic[:])
	buf[4] = CodecVersion
	buf[5] = 0
	binary.LittleEndian.PutUint16(buf[6:8], uint16(f.Width))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(f.Height))
	binary.LittleEndian.PutUint64(buf[10:18], f.Seq)
	var at int64
	if !f.CapturedAt.IsZero() {
		at = f.CapturedAt.UnixNano()
	}
	binary.LittleEndian.PutUint64(buf[18:26], uint64(at))

	samples := buf[HeaderSize : HeaderSize+2*n]
	bitmap := buf[HeaderSize+2*n:]
	for i := range bitmap {
		bitmap[i] = 0
	}
	for i, s := range f.Samples {
		binary.LittleEndian.PutUint16(samples[2*i:], uint16(clampInt16(s.Depth)))
		if s.Known {
			bitmap[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return dst, nil
}

// Encoder writes frames to an underlying stream.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one frame.
func (e *Encoder) Encode(f Frame) error {
	var err error
	e.buf, err = MarshalFrame(e.buf[:0], f)
	if err != nil {
		return err
	}
	_, err = e.w.Write(e.buf)
	return err
}

// Decoder reads frames from an underlying stream.
type Decoder struct {
	r      *bufio.Reader
	header [HeaderSize]byte
	body   []byte
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Decode reads the next frame. It returns io.EOF when the stream ends cleanly
// on a frame boundary and ErrTruncated when it ends mid-frame.
func (d *Decoder) Decode() (Frame, error) {
	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrTruncated
		}
		return Frame{}, err
	}

	h := d.header[:]
	if [4]byte(h[0:4]) != frameMagic {
		return Frame{}, ErrBadMagic
	}
	if h[4] != CodecVersion {
		return Frame{}, fmt.Errorf("%w: %d", ErrBadVersion, h[4])
	}
	width := int(binary.LittleEndian.Uint16(h[6:8]))
	height := int(binary.LittleEndian.Uint16(h[8:10]))
	n := width * height
	if n > MaxPixels {
		return Frame{}, fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, width, height)
	}
	seq := binary.LittleEndian.Uint64(h[10:18])
	at := int64(binary.LittleEndian.Uint64(h[18:26]))

	bodySize := 2*n + bitmapSize(n)
	if cap(d.body) < bodySize {
		d.body = make([]byte, bodySize)
	}
	body := d.body[:bodySize]
	if _, err := io.ReadFull(d.r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrTruncated
		}
		return Frame{}, err
	}

	f := Frame{
		Seq:     seq,
		Width:   width,
		Height:  height,
		Samples: make([]Sample, n),
	}
	if at != 0 {
		f.CapturedAt = time.Unix(0, at)
	}
	bitmap := body[2*n:]
	for i := range f.Samples {
		f.Samples[i] = Sample{
			Depth: int32(int16(binary.LittleEndian.Uint16(body[2*i:]))),
			Known: bitmap[i/8]&(1<<(uint(i)%8)) != 0,
		}
	}
	return f, nil
}
