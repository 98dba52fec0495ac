// SPDX-License-Identifier: MIT
package transport

import (
	"player/internal/audio"
	applog "player/internal/log"
)

var log = applog.Logger("XPRT")

// Transport delivers clock updates to an outside observer.
// Implementations must be safe for concurrent use and must not retain u
// or its Spectrum after Send returns.
type Transport interface {
	Send(u *ClockUpdate) error
	Close() error
}

// Clock is the readout side of a player.
type Clock interface {
	CurrentPts() int64
	State() audio.State
	Stats() audio.Stats
}

// SpectrumSource provides the magnitudes of the most recently played audio.
type SpectrumSource interface {
	MagnitudesInto(dst []float64) (int64, error)
	Bins() int
}

// ClockUpdate is one sample of the playback clock.
type ClockUpdate struct {
	Seq         uint32      `json:"seq"`
	Timestamp   int64       `json:"timestamp"` // wall clock, ns since epoch
	PTS         int64       `json:"pts"`       // ms
	State       audio.State `json:"state"`
	QueueLen    int         `json:"queue_len"`
	Decoded     uint64      `json:"decoded"`
	SpectrumPTS int64       `json:"spectrum_pts,omitempty"`
	Spectrum    []float32   `json:"spectrum,omitempty"`
}

// Clone returns a deep copy of u.
func (u *ClockUpdate) Clone() *ClockUpdate {
	c := *u
	if u.Spectrum != nil {
		c.Spectrum = make([]float32, len(u.Spectrum))
		copy(c.Spectrum, u.Spectrum)
	}
	return &c
}
