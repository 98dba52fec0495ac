package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavDevice writes everything it is given to a 16-bit PCM WAV file. It is
// used as an output backend and by the recording tap.
type wavDevice struct {
	file    *os.File
	encoder *wav.Encoder
}

func newWAVDevice(path string, format *audio.Format) (*wavDevice, error) {
	if path == "" {
		return nil, fmt.Errorf("wav output needs a file name")
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &wavDevice{
		file:    file,
		encoder: wav.NewEncoder(file, format.SampleRate, 16, format.NumChannels, 1),
	}, nil
}

func (d *wavDevice) Play(buf *audio.IntBuffer) error {
	if err := d.encoder.Write(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceLost, err)
	}
	return nil
}

func (d *wavDevice) Close() error {
	encErr := d.encoder.Close()
	if err := d.file.Close(); err != nil {
		return err
	}
	return encErr
}
