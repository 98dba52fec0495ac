// SPDX-License-Identifier: MIT
package fft

import (
	"errors"
	"fmt"
	"math/cmplx"
	"sync"

	"player/pkg/bitint"

	"github.com/go-audio/audio"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// ErrNoSpectrum is returned until the first full analysis window was played.
var ErrNoSpectrum = errors.New("no spectrum available")

// FFTWorkspace holds pre-allocated buffers for FFT calculations.
type FFTWorkspace struct {
	input     []float64    // ...for real input samples (windowed, scaled)
	fftOutput []complex128 // ...for FFT complex output
	magnitude []float64    // ...for raw magnitude output
	window    []float64    // ...for window function coefficients
}

// Processor is a spectrum monitor for the playback thread. It keeps the
// most recent fftSize mono samples that reached the device and, every hop
// samples, publishes their windowed magnitude spectrum together with the
// pts of the buffer that completed the window.
//
// Process is called from the playback thread and does not allocate.
// MagnitudesInto may be called from any goroutine.
type Processor struct {
	fftSize    int
	hop        int
	sampleRate float64
	workspace  FFTWorkspace
	fftObj     *fourier.FFT

	ring   []float64
	pos    int
	filled int
	since  int

	mu       sync.Mutex
	latest   []float64
	pts      int64
	analyses uint64
}

// NewProcessor creates a new FFT processor. It pre-allocates all buffers and
// the Hann window coefficients. fftSize must be a power of two.
func NewProcessor(fftSize int, sampleRate float64) (*Processor, error) {
	if fftSize < 2 || !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size %d must be a power of two", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %v", sampleRate)
	}

	coeffs := make([]float64, fftSize)
	for i := range coeffs {
		coeffs[i] = 1
	}
	window.Hann(coeffs)

	outputSize := fftSize/2 + 1

	return &Processor{
		fftSize:    fftSize,
		hop:        fftSize / 2,
		sampleRate: sampleRate,
		fftObj:     fourier.NewFFT(fftSize),
		ring:       make([]float64, fftSize),
		latest:     make([]float64, outputSize),

		workspace: FFTWorkspace{
			input:     make([]float64, fftSize),
			fftOutput: make([]complex128, outputSize),
			magnitude: make([]float64, outputSize),
			window:    coeffs,
		},
	}, nil
}

// Process folds buf to mono, appends it to the analysis window and runs a
// transform whenever hop new samples have arrived.
func (p *Processor) Process(pts int64, buf *audio.IntBuffer) {
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return
	}
	ch := buf.Format.NumChannels
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	scale := 1 / float64(int64(1)<<(depth-1))

	frames := len(buf.Data) / ch
	for f := range frames {
		var sum int
		for c := range ch {
			sum += buf.Data[f*ch+c]
		}
		p.ring[p.pos] = float64(sum) * scale / float64(ch)
		p.pos++
		if p.pos == p.fftSize {
			p.pos = 0
		}
		if p.filled < p.fftSize {
			p.filled++
		}
		p.since++
		if p.filled == p.fftSize && p.since >= p.hop {
			p.analyze(pts)
			p.since = 0
		}
	}
}

func (p *Processor) analyze(pts int64) {
	// Oldest sample sits at p.pos.
	n := copy(p.workspace.input, p.ring[p.pos:])
	copy(p.workspace.input[n:], p.ring[:p.pos])
	for i := range p.workspace.input {
		p.workspace.input[i] *= p.workspace.window[i]
	}

	_ = p.fftObj.Coefficients(p.workspace.fftOutput, p.workspace.input)
	norm := 2 / float64(p.fftSize)
	for i := range p.workspace.fftOutput {
		p.workspace.magnitude[i] = cmplx.Abs(p.workspace.fftOutput[i]) * norm
	}

	p.mu.Lock()
	copy(p.latest, p.workspace.magnitude)
	p.pts = pts
	p.analyses++
	p.mu.Unlock()
}

// MagnitudesInto copies the latest spectrum into dst and returns the pts it
// belongs to. dst must hold at least Bins values.
func (p *Processor) MagnitudesInto(dst []float64) (int64, error) {
	if len(dst) < len(p.latest) {
		return 0, fmt.Errorf("destination holds %d bins, need %d", len(dst), len(p.latest))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.analyses == 0 {
		return 0, ErrNoSpectrum
	}
	copy(dst, p.latest)
	return p.pts, nil
}

// Analyses returns how many spectra were computed so far.
func (p *Processor) Analyses() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.analyses
}

// Bins returns the number of magnitude values per spectrum.
func (p *Processor) Bins() int {
	return p.fftSize/2 + 1
}

// Size returns the analysis window length in samples.
func (p *Processor) Size() int {
	return p.fftSize
}

// FrequencyBin returns the frequency in Hz for a given FFT bin index.
func (p *Processor) FrequencyBin(i int) float64 {
	if i < 0 || i >= len(p.workspace.fftOutput) {
		return 0
	}
	return p.fftObj.Freq(i) * p.sampleRate
}
