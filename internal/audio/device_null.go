package audio

import (
	"time"

	"github.com/go-audio/audio"
)

// nullDevice discards samples. With pace set it sleeps for the duration of
// each buffer so the playback clock still advances in real time.
type nullDevice struct {
	pace     bool
	channels int
	rate     int
	next     time.Time
}

func newNullDevice(format *audio.Format, pace bool) *nullDevice {
	return &nullDevice{pace: pace, channels: format.NumChannels, rate: format.SampleRate}
}

func (d *nullDevice) Play(buf *audio.IntBuffer) error {
	if !d.pace {
		return nil
	}
	now := time.Now()
	if d.next.Before(now) {
		d.next = now
	}
	frames := len(buf.Data) / d.channels
	d.next = d.next.Add(time.Duration(frames) * time.Second / time.Duration(d.rate))
	time.Sleep(time.Until(d.next))
	return nil
}

func (d *nullDevice) Close() error { return nil }
