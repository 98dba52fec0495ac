// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"

	"github.com/go-audio/audio"
	"gonum.org/v1/gonum/dsp/window"
)

// Resampler converts decoded buffers to the output device format.
type Resampler interface {
	// Resample converts in. The returned buffer is owned by the resampler
	// and is only valid until the next call.
	Resample(in *audio.IntBuffer) (*audio.IntBuffer, error)
	Close() error
}

const (
	// sincZeroCrossings is the number of kernel lobes on each side of the
	// interpolation point.
	sincZeroCrossings = 16
	// sincResolution is the number of table entries per input sample.
	sincResolution = 128
)

// sincResampler is a windowed-sinc sample rate converter that also remaps
// channel layouts. Input history is kept per channel so consecutive buffers
// join without discontinuities.
type sincResampler struct {
	in, out *audio.Format

	step   float64   // input samples advanced per output sample
	cutoff float64   // normalized low-pass cutoff, 1 when upsampling
	span   int       // taps on each side of the interpolation point
	table  []float64 // right half of the kernel, sincResolution entries per tap

	hist [][]float64 // per output channel input history
	pos  float64     // next output position, in hist sample units

	buf audio.IntBuffer
}

// NewResampler returns a resampler from in to out. Matching rates produce
// a pass-through converter that only remaps channels.
func NewResampler(in, out *audio.Format) (Resampler, error) {
	if in == nil || out == nil {
		return nil, fmt.Errorf("resampler formats must not be nil")
	}
	if in.SampleRate <= 0 || out.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", in.SampleRate, out.SampleRate)
	}
	if in.NumChannels <= 0 || out.NumChannels <= 0 {
		return nil, fmt.Errorf("invalid channel counts %d -> %d", in.NumChannels, out.NumChannels)
	}

	r := &sincResampler{
		in:   in,
		out:  out,
		step: float64(in.SampleRate) / float64(out.SampleRate),
		hist: make([][]float64, out.NumChannels),
	}
	r.buf.Format = out
	r.buf.SourceBitDepth = 16

	if in.SampleRate != out.SampleRate {
		r.cutoff = math.Min(1, float64(out.SampleRate)/float64(in.SampleRate))
		r.span = int(math.Ceil(sincZeroCrossings / r.cutoff))
		r.table = sincTable(sincZeroCrossings, sincResolution)
	}
	return r, nil
}

// sincTable returns sinc(x) multiplied by a Blackman window for x in
// [0, zeroCrossings], sampled resolution times per unit.
func sincTable(zeroCrossings, resolution int) []float64 {
	half := zeroCrossings * resolution
	win := make([]float64, 2*half+1)
	for i := range win {
		win[i] = 1
	}
	window.Blackman(win)

	table := make([]float64, half+1)
	for i := range table {
		x := float64(i) / float64(resolution)
		s := 1.0
		if i > 0 {
			s = math.Sin(math.Pi*x) / (math.Pi * x)
		}
		table[i] = s * win[half+i]
	}
	return table
}

// kernel evaluates the low-pass kernel at distance d input samples.
func (r *sincResampler) kernel(d float64) float64 {
	x := math.Abs(d) * r.cutoff * sincResolution
	i := int(x)
	if i >= len(r.table)-1 {
		return 0
	}
	frac := x - float64(i)
	return r.table[i] + frac*(r.table[i+1]-r.table[i])
}

// remap returns input channel samples for output channel ch at frame i.
// Mono input is duplicated, mono output averages, anything else maps
// channels modulo the input count.
func (r *sincResampler) remap(data []int, i, ch int) float64 {
	inCh := r.in.NumChannels
	frame := data[i*inCh : (i+1)*inCh]

	switch {
	case inCh == r.out.NumChannels:
		return float64(frame[ch])
	case inCh == 1:
		return float64(frame[0])
	case r.out.NumChannels == 1:
		sum := 0
		for _, s := range frame {
			sum += s
		}
		return float64(sum) / float64(inCh)
	default:
		return float64(frame[ch%inCh])
	}
}

func (r *sincResampler) Resample(in *audio.IntBuffer) (*audio.IntBuffer, error) {
	if r.hist == nil {
		return nil, fmt.Errorf("resample: resampler is closed")
	}
	if in == nil || in.Format == nil {
		return nil, fmt.Errorf("resample: buffer has no format")
	}
	if in.Format.NumChannels != r.in.NumChannels || in.Format.SampleRate != r.in.SampleRate {
		return nil, fmt.Errorf("resample: got %d Hz/%d ch, configured for %d Hz/%d ch",
			in.Format.SampleRate, in.Format.NumChannels, r.in.SampleRate, r.in.NumChannels)
	}
	if len(in.Data)%r.in.NumChannels != 0 {
		return nil, fmt.Errorf("resample: %d samples is not a whole number of frames", len(in.Data))
	}

	frames := len(in.Data) / r.in.NumChannels
	outCh := r.out.NumChannels

	if r.table == nil {
		r.buf.Data = growInts(r.buf.Data, frames*outCh)
		for i := 0; i < frames; i++ {
			for ch := 0; ch < outCh; ch++ {
				r.buf.Data[i*outCh+ch] = clampInt16(int(math.Round(r.remap(in.Data, i, ch))))
			}
		}
		return &r.buf, nil
	}

	for ch := 0; ch < outCh; ch++ {
		for i := 0; i < frames; i++ {
			r.hist[ch] = append(r.hist[ch], r.remap(in.Data, i, ch))
		}
	}

	avail := len(r.hist[0])
	r.buf.Data = r.buf.Data[:0]
	for r.pos+float64(r.span) < float64(avail) {
		center := int(r.pos)
		lo := max(center-r.span+1, 0)
		hi := min(center+r.span, avail-1)

		for ch := 0; ch < outCh; ch++ {
			h := r.hist[ch]
			var acc, norm float64
			for k := lo; k <= hi; k++ {
				w := r.kernel(r.pos - float64(k))
				acc += h[k] * w
				norm += w
			}
			if norm > 1e-9 {
				acc /= norm
			}
			r.buf.Data = append(r.buf.Data, clampInt16(int(math.Round(acc))))
		}
		r.pos += r.step
	}

	// Drop history no future output can reach.
	drop := int(r.pos) - r.span
	if drop > 0 {
		for ch := range r.hist {
			n := copy(r.hist[ch], r.hist[ch][drop:])
			r.hist[ch] = r.hist[ch][:n]
		}
		r.pos -= float64(drop)
	}

	return &r.buf, nil
}

func (r *sincResampler) Close() error {
	r.hist = nil
	r.buf.Data = nil
	return nil
}

func growInts(b []int, n int) []int {
	if cap(b) < n {
		return make([]int, n)
	}
	return b[:n]
}
