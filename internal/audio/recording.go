package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
)

// recorder tees played buffers into a WAV file. active lets the playback
// thread skip the lock while nothing is being recorded.
type recorder struct {
	active atomic.Bool
	mtx    sync.Mutex
	dev    *wavDevice
}

func (r *recorder) start(filename string, format *audio.Format) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if r.dev != nil {
		return fmt.Errorf("already recording")
	}
	dev, err := newWAVDevice(filename, format)
	if err != nil {
		return err
	}
	r.dev = dev
	r.active.Store(true)
	return nil
}

func (r *recorder) write(buf *audio.IntBuffer) {
	if !r.active.Load() {
		return
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	if r.dev == nil {
		return
	}
	if err := r.dev.Play(buf); err != nil {
		log.Errorf("Recording stopped: %v", err)
		r.active.Store(false)
		if cerr := r.dev.Close(); cerr != nil {
			log.Warnf("Failed to close recording: %v", cerr)
		}
		r.dev = nil
	}
}

func (r *recorder) stop() error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.active.Store(false)
	if r.dev == nil {
		return nil
	}
	err := r.dev.Close()
	r.dev = nil
	return err
}

func (r *recorder) recording() bool {
	return r.active.Load()
}

// StartRecording writes everything played from now on to filename as a
// 16-bit WAV file in the device format. The player must be open.
func (p *Player) StartRecording(filename string) error {
	format := p.format.Load()
	if format == nil || p.queue.Load() == nil {
		return ErrNotOpen
	}
	if err := p.rec.start(filename, format); err != nil {
		return err
	}
	log.Infof("Recording to %s", filename)
	return nil
}

// StopRecording finishes the WAV file. It is a no-op when not recording.
func (p *Player) StopRecording() error {
	return p.rec.stop()
}

// IsRecording reports whether a recording is in progress.
func (p *Player) IsRecording() bool {
	return p.rec.recording()
}
