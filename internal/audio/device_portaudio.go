package audio

import (
	"errors"
	"fmt"
	"time"

	"player/internal/config"

	"github.com/go-audio/audio"
	"github.com/gordonklaus/portaudio"
)

// paStream is the subset of *portaudio.Stream used by the output device.
type paStream interface {
	Start() error
	Write() error
	Stop() error
	Close() error
	Info() *portaudio.StreamInfo
}

var paOpenStream = func(p portaudio.StreamParameters, buf *[]int16) (paStream, error) {
	return portaudio.OpenStream(p, buf)
}

// portAudioDevice writes to a blocking PortAudio stream. Samples are
// gathered into buf and written one frames-per-buffer block at a time.
type portAudioDevice struct {
	stream   paStream
	buf      []int16
	fill     int
	channels int
	rate     int
	latency  time.Duration
}

// newPortAudioDevice opens the configured output device for format.
// Each device holds its own PortAudio reference: the library is
// initialized here and terminated by Close, so callers need not pair
// Initialize and Terminate around playback. PortAudio counts nested
// initializations.
func newPortAudioDevice(cfg config.AudioConfig, format *audio.Format) (d *portAudioDevice, err error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if terr := Terminate(); terr != nil {
				log.Warnf("%v", terr)
			}
		}
	}()

	dev, err := OutputDevice(cfg.OutputDevice)
	if err != nil {
		return nil, err
	}

	latency := dev.DefaultHighOutputLatency
	if cfg.LowLatency {
		latency = dev.DefaultLowOutputLatency
	}
	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = config.DefaultFramesPerBuffer
	}

	d = &portAudioDevice{
		buf:      make([]int16, frames*format.NumChannels),
		channels: format.NumChannels,
		rate:     format.SampleRate,
		latency:  latency,
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: format.NumChannels,
			Latency:  latency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: frames,
	}

	stream, err := paOpenStream(params, &d.buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start PortAudio stream: %w", err)
	}
	if info := stream.Info(); info != nil && info.OutputLatency > 0 {
		d.latency = info.OutputLatency
	}
	d.stream = stream

	log.Debugf("PortAudio output on %q: %d Hz, %d ch, %d frames, latency %s",
		dev.Name, format.SampleRate, format.NumChannels, frames, d.latency)
	return d, nil
}

func (d *portAudioDevice) Play(buf *audio.IntBuffer) error {
	for _, s := range buf.Data {
		d.buf[d.fill] = int16(clampInt16(s))
		d.fill++
		if d.fill == len(d.buf) {
			if err := d.write(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *portAudioDevice) write() error {
	d.fill = 0
	err := d.stream.Write()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, portaudio.OutputUnderflowed):
		log.Debugf("PortAudio output underflow")
		return nil
	default:
		return fmt.Errorf("%w: %w", ErrDeviceLost, err)
	}
}

// Delay is the stream's output latency plus the partially filled block.
func (d *portAudioDevice) Delay() time.Duration {
	frames := d.fill / d.channels
	return d.latency + time.Duration(frames)*time.Second/time.Duration(d.rate)
}

func (d *portAudioDevice) Close() error {
	var errs []error
	if err := d.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop PortAudio stream: %w", err))
	}
	if err := d.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close PortAudio stream: %w", err))
	}
	if err := Terminate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
