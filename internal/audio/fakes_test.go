package audio

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/audio"
)

const (
	testSampleRate = 8000
	testFrameSize  = 80 // 10ms at testSampleRate
)

var testParams = CodecParameters{
	Codec:      CodecPCMS16LE,
	SampleRate: testSampleRate,
	Channels:   1,
	FrameSize:  testFrameSize,
}

// stageCounts tracks how often a session stage was opened and closed.
type stageCounts struct {
	opened atomic.Int32
	closed atomic.Int32
}

func (c *stageCounts) live() int32 {
	return c.opened.Load() - c.closed.Load()
}

// fakeStages builds sessions from real PCM decoding and resampling wrapped
// in counters, and a fakeDevice.
type fakeStages struct {
	dec, res, dev stageCounts

	failStage string          // "decoder", "resampler" or "device"
	badPTS    map[int64]bool // packets that fail to decode
	device    *fakeDevice
}

func newFakeStages() *fakeStages {
	f := &fakeStages{}
	f.device = &fakeDevice{counts: &f.dev}
	return f
}

func (f *fakeStages) factory() Factory {
	return Factory{
		NewDecoder: func(params CodecParameters) (Decoder, error) {
			if f.failStage == "decoder" {
				return nil, errors.New("no decoder")
			}
			d, err := NewDecoder(params)
			if err != nil {
				return nil, err
			}
			f.dec.opened.Add(1)
			return &countingDecoder{Decoder: d, counts: &f.dec, bad: f.badPTS}, nil
		},
		NewResampler: func(in, out *audio.Format) (Resampler, error) {
			if f.failStage == "resampler" {
				return nil, errors.New("no resampler")
			}
			r, err := NewResampler(in, out)
			if err != nil {
				return nil, err
			}
			f.res.opened.Add(1)
			return &countingResampler{Resampler: r, counts: &f.res}, nil
		},
		NewDevice: func(format *audio.Format) (Device, error) {
			if f.failStage == "device" {
				return nil, errors.New("no device")
			}
			f.dev.opened.Add(1)
			return f.device, nil
		},
	}
}

func (f *fakeStages) assertAllClosed(t *testing.T) {
	t.Helper()
	for name, c := range map[string]*stageCounts{"decoder": &f.dec, "resampler": &f.res, "device": &f.dev} {
		if n := c.live(); n != 0 {
			t.Errorf("%s: %d instances still open", name, n)
		}
	}
}

type countingDecoder struct {
	Decoder
	counts *stageCounts
	bad    map[int64]bool
}

func (d *countingDecoder) Decode(pkt *Packet) (*audio.IntBuffer, error) {
	if d.bad[pkt.PTS] {
		return nil, errors.New("corrupt packet")
	}
	return d.Decoder.Decode(pkt)
}

func (d *countingDecoder) Close() error {
	d.counts.closed.Add(1)
	return d.Decoder.Close()
}

type countingResampler struct {
	Resampler
	counts *stageCounts
}

func (r *countingResampler) Close() error {
	r.counts.closed.Add(1)
	return r.Resampler.Close()
}

// fakeDevice records the first sample of every buffer it plays. When gate
// is set each Play announces itself on entered and waits for a token.
type fakeDevice struct {
	counts *stageCounts

	mtx    sync.Mutex
	firsts []int
	calls  int
	failAt int // 1-based Play call that fails, 0 for never

	gate    chan struct{}
	entered chan struct{}
	delay   time.Duration
}

func (d *fakeDevice) enableGate() {
	d.gate = make(chan struct{})
	d.entered = make(chan struct{}, 16)
}

func (d *fakeDevice) Play(buf *audio.IntBuffer) error {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.gate != nil {
		<-d.gate
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.calls++
	if d.failAt > 0 && d.calls >= d.failAt {
		return errors.New("device unplugged")
	}
	if len(buf.Data) > 0 {
		d.firsts = append(d.firsts, buf.Data[0])
	}
	return nil
}

func (d *fakeDevice) Delay() time.Duration { return d.delay }

func (d *fakeDevice) Close() error {
	d.counts.closed.Add(1)
	return nil
}

func (d *fakeDevice) played() []int {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return append([]int(nil), d.firsts...)
}

// pcmPacket returns a mono s16 packet of testFrameSize samples, all equal
// to value.
func pcmPacket(pool *PacketPool, value int16, pts int64) *Packet {
	data := make([]byte, testFrameSize*2)
	for i := 0; i < testFrameSize; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(value))
	}
	params := testParams
	return pool.Get(data, pts, &params)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
