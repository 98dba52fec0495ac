// Package utils holds signal generators and fakes shared by tests and the
// demo command.
package utils

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"player/internal/transport"
)

// MockTransport records clock updates instead of transmitting them.
type MockTransport struct {
	mu      sync.Mutex
	updates []*transport.ClockUpdate
	closed  bool
	// Err, when set, is returned by Send.
	Err error
}

// Send stores a copy of u for later inspection.
func (m *MockTransport) Send(u *transport.ClockUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("mock transport closed")
	}
	if m.Err != nil {
		return m.Err
	}
	m.updates = append(m.updates, u.Clone())
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Updates returns the recorded updates.
func (m *MockTransport) Updates() []*transport.ClockUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*transport.ClockUpdate(nil), m.updates...)
}

// Last returns the most recent update, or nil.
func (m *MockTransport) Last() *transport.ClockUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.updates) == 0 {
		return nil
	}
	return m.updates[len(m.updates)-1]
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ transport.Transport = (*MockTransport)(nil)

// GenerateComplexWave returns 16-bit samples of a 440Hz tone plus harmonics.
func GenerateComplexWave(size int, sampleRate float64) []int {
	buffer := make([]int, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2 // 440Hz fundamental + harmonics
		buffer[i] = int(signal * math.MaxInt16 * 0.9)
	}
	return buffer
}

// GenerateSineWave returns 16-bit samples of a sine at frequency.
func GenerateSineWave(size int, sampleRate, frequency float64) []int {
	buffer := make([]int, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = int(math.Sin(2*math.Pi*frequency*t) * math.MaxInt16 * 0.9)
	}
	return buffer
}

// Interleave repeats every mono sample channels times.
func Interleave(mono []int, channels int) []int {
	out := make([]int, 0, len(mono)*channels)
	for _, s := range mono {
		for range channels {
			out = append(out, s)
		}
	}
	return out
}

// PCMS16LE encodes samples as signed 16-bit little endian bytes, clamping
// out of range values.
func PCMS16LE(samples []int) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		s = min(max(s, math.MinInt16), math.MaxInt16)
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s)))
	}
	return out
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
