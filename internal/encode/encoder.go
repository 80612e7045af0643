package encode

import (
	"encoding/binary"
	"log"
	"math"
)

// Frame is a fixed-duration chunk of signed 16-bit PCM samples, tagged with a
// monotonically increasing sequence number. Frames are immutable after creation.
type Frame struct {
	Seq     uint64
	Samples []int16
}

// Bytes returns the frame as little-endian 16-bit PCM, the wire format the
// streaming transcription service expects.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f.Samples)*2)
	for i, s := range f.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

type Config struct {
	SampleRate    int
	FrameDuration float64 // seconds of audio per emitted frame
}

func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		FrameDuration: 0.1,
	}
}

// Encoder converts float32 PCM blocks of arbitrary size into fixed-size 16-bit
// frames. Samples that don't fill a whole frame stay in the carry buffer until
// the next push, so every emitted frame has identical duration regardless of
// upstream chunking.
//
// Not safe for concurrent use; the capture pump is the only writer.
type Encoder struct {
	frameSamples int
	carry        []int16
	rawCarry     []byte
	seq          uint64
}

func New(cfg Config) *Encoder {
	n := int(float64(cfg.SampleRate) * cfg.FrameDuration)
	if n <= 0 {
		log.Printf("Encoder: invalid frame size %d, falling back to defaults", n)
		d := DefaultConfig()
		n = int(float64(d.SampleRate) * d.FrameDuration)
	}
	return &Encoder{
		frameSamples: n,
		carry:        make([]int16, 0, n*2),
	}
}

// FrameSamples returns the number of samples in every emitted frame.
func (e *Encoder) FrameSamples() int { return e.frameSamples }

// Pending returns how many converted samples are buffered awaiting a full frame.
func (e *Encoder) Pending() int { return len(e.carry) }

// Push converts a float block and returns every complete frame now available.
// Empty blocks are skipped; there is no error path in this stage.
func (e *Encoder) Push(block []float32) []Frame {
	if len(block) == 0 {
		return nil
	}

	for _, s := range block {
		e.carry = append(e.carry, ConvertSample(s))
	}

	var frames []Frame
	cut := 0
	for len(e.carry)-cut >= e.frameSamples {
		samples := make([]int16, e.frameSamples)
		copy(samples, e.carry[cut:cut+e.frameSamples])
		frames = append(frames, Frame{Seq: e.seq, Samples: samples})
		e.seq++
		cut += e.frameSamples
	}
	if cut > 0 {
		// Shift the remainder down so the backing array is reused instead of
		// reallocated on every callback.
		n := copy(e.carry, e.carry[cut:])
		e.carry = e.carry[:n]
	}
	return frames
}

// PushBytes decodes raw little-endian float32 PCM (the capture wire format)
// and feeds it through Push. Pipe reads can split a sample across blocks;
// trailing bytes short of a full sample are held back and reassembled with
// the next block, so decoding never slips off the 4-byte sample boundary.
func (e *Encoder) PushBytes(raw []byte) []Frame {
	if len(e.rawCarry) > 0 {
		combined := make([]byte, 0, len(e.rawCarry)+len(raw))
		combined = append(combined, e.rawCarry...)
		combined = append(combined, raw...)
		raw = combined
		e.rawCarry = e.rawCarry[:0]
	}

	n := len(raw) / 4
	if tail := raw[n*4:]; len(tail) > 0 {
		e.rawCarry = append(e.rawCarry, tail...)
	}
	if n == 0 {
		return nil
	}

	block := make([]float32, n)
	for i := range block {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		block[i] = math.Float32frombits(bits)
	}
	return e.Push(block)
}

// ConvertSample maps a float sample in [-1, 1] to signed 16-bit PCM using the
// standard asymmetric scaling: negative values by 0x8000, non-negative by
// 0x7fff. Out-of-range input is clamped first so the result cannot overflow.
func ConvertSample(s float32) int16 {
	if s < -1 {
		s = -1
	} else if s > 1 {
		s = 1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7fff)
}

// Resample converts a float block from one sample rate to another by linear
// interpolation. Used only when the capture graph cannot be opened at the
// target rate natively; the normal path is a pure format conversion.
func Resample(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(in) == 0 || fromRate <= 0 || toRate <= 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	ratio := float64(fromRate) / float64(toRate)
	n := int(float64(len(in)) / ratio)
	if n == 0 {
		n = 1
	}
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}
