package audio

import (
	"errors"
	"fmt"
	"time"

	"player/internal/config"

	"github.com/go-audio/audio"
)

// Factory builds the three stages of a playback session. Tests replace
// individual constructors to count allocations or inject failures.
type Factory struct {
	NewDecoder   func(params CodecParameters) (Decoder, error)
	NewResampler func(in, out *audio.Format) (Resampler, error)
	NewDevice    func(format *audio.Format) (Device, error)
}

// DefaultFactory returns the production constructors, with the output
// backend chosen by cfg.
func DefaultFactory(cfg config.AudioConfig) Factory {
	return Factory{
		NewDecoder:   NewDecoder,
		NewResampler: NewResampler,
		NewDevice: func(format *audio.Format) (Device, error) {
			return NewDevice(cfg, format)
		},
	}
}

// session owns a decoder, a resampler and a device. Either all three are
// open or none is.
type session struct {
	dec    Decoder
	res    Resampler
	dev    Device
	format *audio.Format // device format
}

// openSession builds decoder, resampler and device in that order. If a
// stage fails the stages already built are closed in reverse order.
func openSession(f Factory, params CodecParameters, sampleRate, channels int) (*session, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: invalid output format %d Hz, %d channels",
			ErrOpenDevice, sampleRate, channels)
	}

	dec, err := f.NewDecoder(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenDecoder, err)
	}

	out := &audio.Format{NumChannels: channels, SampleRate: sampleRate}
	res, err := f.NewResampler(dec.Format(), out)
	if err != nil {
		closeLogged("decoder", dec.Close)
		return nil, fmt.Errorf("%w: %w", ErrOpenResampler, err)
	}

	dev, err := f.NewDevice(out)
	if err != nil {
		closeLogged("resampler", res.Close)
		closeLogged("decoder", dec.Close)
		return nil, fmt.Errorf("%w: %w", ErrOpenDevice, err)
	}

	return &session{dec: dec, res: res, dev: dev, format: out}, nil
}

// play decodes pkt and submits it to the device. Decode failures are
// returned wrapped in ErrDecode and leave the session usable; any other
// error means the session can no longer play.
func (s *session) play(pkt *Packet) (*audio.IntBuffer, error) {
	decoded, err := s.dec.Decode(pkt)
	if err != nil {
		if !errors.Is(err, ErrDecode) {
			err = fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return nil, err
	}

	out, err := s.res.Resample(decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResample, err)
	}

	if err := s.dev.Play(out); err != nil {
		if !errors.Is(err, ErrDeviceLost) {
			err = fmt.Errorf("%w: %w", ErrDeviceLost, err)
		}
		return nil, err
	}
	return out, nil
}

// delay returns the device's unplayed audio, or zero when the device
// cannot tell.
func (s *session) delay() time.Duration {
	if dr, ok := s.dev.(DelayReporter); ok {
		return dr.Delay()
	}
	return 0
}

// close tears the stages down in reverse order. Every stage is closed even
// if an earlier one fails.
func (s *session) close() error {
	errs := []error{s.dev.Close(), s.res.Close(), s.dec.Close()}
	return errors.Join(errs...)
}

func closeLogged(what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warnf("Failed to close %s during rollback: %v", what, err)
	}
}
