package audio

import (
	"fmt"
	"time"

	"player/internal/config"

	"github.com/go-audio/audio"
)

// Device consumes resampled, interleaved 16-bit audio. Play blocks until
// the device accepted the whole buffer, which paces the playback thread.
type Device interface {
	Play(buf *audio.IntBuffer) error
	Close() error
}

// DelayReporter is implemented by devices that know how much submitted
// audio has not been heard yet.
type DelayReporter interface {
	Delay() time.Duration
}

// NewDevice opens the backend selected by cfg.Backend for format.
func NewDevice(cfg config.AudioConfig, format *audio.Format) (Device, error) {
	var (
		dev Device
		err error
	)
	switch cfg.Backend {
	case config.BackendPortAudio:
		dev, err = newPortAudioDevice(cfg, format)
	case config.BackendMalgo:
		dev, err = newMalgoDevice(format)
	case config.BackendWAV:
		dev, err = newWAVDevice(cfg.WAVPath, format)
	case config.BackendNull:
		dev = newNullDevice(format, true)
	default:
		err = fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return dev, nil
}
