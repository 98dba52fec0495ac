package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/audio"
)

const (
	// malgoQueuedChunks bounds how many Play buffers wait for the callback.
	malgoQueuedChunks = 4
	// malgoStallTimeout is how long Play waits on a device that stopped
	// pulling samples before declaring it lost.
	malgoStallTimeout = 2 * time.Second
)

// malgoDevice feeds a miniaudio playback callback from a bounded channel of
// byte chunks. Play blocks while the channel is full.
type malgoDevice struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	chunks chan *[]byte
	cur    *[]byte
	off    int
	bufs   sync.Pool

	pending       atomic.Int64 // bytes accepted by Play, not yet pulled by the callback
	bytesPerFrame int
	rate          int
	stall         time.Duration

	stopped  chan struct{}
	stopOnce sync.Once
}

func newMalgoChunks(format *audio.Format) *malgoDevice {
	return &malgoDevice{
		chunks:        make(chan *[]byte, malgoQueuedChunks),
		bufs:          sync.Pool{New: func() interface{} { return new([]byte) }},
		bytesPerFrame: 2 * format.NumChannels,
		rate:          format.SampleRate,
		stall:         malgoStallTimeout,
		stopped:       make(chan struct{}),
	}
}

func newMalgoDevice(format *audio.Format) (*malgoDevice, error) {
	d := newMalgoChunks(format)

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init malgo context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.NumChannels)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: d.onSamples,
		Stop: d.onStop,
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to init malgo device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to start malgo device: %w", err)
	}

	d.ctx = ctx
	d.device = device
	log.Debugf("malgo output: %d Hz, %d ch", format.SampleRate, format.NumChannels)
	return d, nil
}

// onSamples runs on the miniaudio thread. Missing data is played as
// silence.
func (d *malgoDevice) onSamples(out, _ []byte, _ uint32) {
	n := 0
	for n < len(out) {
		if d.cur == nil || d.off == len(*d.cur) {
			if d.cur != nil {
				d.bufs.Put(d.cur)
				d.cur = nil
			}
			select {
			case b := <-d.chunks:
				d.cur, d.off = b, 0
			default:
				clear(out[n:])
				return
			}
		}
		c := copy(out[n:], (*d.cur)[d.off:])
		d.off += c
		n += c
		d.pending.Add(-int64(c))
	}
}

func (d *malgoDevice) onStop() {
	d.stopOnce.Do(func() { close(d.stopped) })
}

func (d *malgoDevice) Play(buf *audio.IntBuffer) error {
	bp := d.bufs.Get().(*[]byte)
	b := (*bp)[:0]
	for _, s := range buf.Data {
		b = binary.LittleEndian.AppendUint16(b, uint16(int16(clampInt16(s))))
	}
	*bp = b

	select {
	case <-d.stopped:
		return fmt.Errorf("%w: playback device stopped", ErrDeviceLost)
	default:
	}

	d.pending.Add(int64(len(b)))
	timer := time.NewTimer(d.stall)
	defer timer.Stop()

	select {
	case d.chunks <- bp:
		return nil
	case <-d.stopped:
		d.pending.Add(-int64(len(b)))
		return fmt.Errorf("%w: playback device stopped", ErrDeviceLost)
	case <-timer.C:
		d.pending.Add(-int64(len(b)))
		return fmt.Errorf("%w: playback device stalled for %s", ErrDeviceLost, d.stall)
	}
}

// Delay is the audio accepted by Play that the callback has not pulled yet.
func (d *malgoDevice) Delay() time.Duration {
	frames := d.pending.Load() / int64(d.bytesPerFrame)
	return time.Duration(frames) * time.Second / time.Duration(d.rate)
}

func (d *malgoDevice) Close() error {
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	d.onStop()
	if d.ctx != nil {
		err := d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
		if err != nil {
			return fmt.Errorf("failed to uninit malgo context: %w", err)
		}
	}
	return nil
}
