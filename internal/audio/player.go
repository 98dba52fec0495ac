// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"player/internal/config"
	applog "player/internal/log"

	"github.com/go-audio/audio"
)

var log = applog.Logger("AUDIO")

// State is the lifecycle stage of a Player.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Tap observes every buffer submitted to the device together with the
// clock value it produced. It runs on the playback thread and must not
// retain buf.
type Tap interface {
	Process(pts int64, buf *audio.IntBuffer)
}

type tapHolder struct{ tap Tap }

// Stats are cumulative counters for the current player.
type Stats struct {
	Decoded       uint64 // packets decoded and played
	DecodeErrors  uint64 // packets dropped because they failed to decode
	SamplesPlayed uint64 // interleaved samples submitted to the device
	QueueLen      int
}

// Option customises a Player.
type Option func(*Player)

// WithFactory replaces the decoder, resampler and device constructors.
func WithFactory(f Factory) Option {
	return func(p *Player) { p.factory = f }
}

// Player owns a packet queue and a playback thread that decodes queued
// packets, resamples them to the device format and plays them. The
// playback clock is published through CurrentPts.
type Player struct {
	factory      Factory
	capacity     int
	pollInterval time.Duration

	// mtx serializes Open and Close and guards cancel and done.
	mtx    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	queue  atomic.Pointer[Queue]
	format atomic.Pointer[audio.Format]
	exit   atomic.Bool
	state  atomic.Int32
	pts    atomic.Int64
	tap    atomic.Pointer[tapHolder]

	errMtx sync.Mutex
	err    error

	decoded       atomic.Uint64
	decodeErrors  atomic.Uint64
	samplesPlayed atomic.Uint64

	rec recorder
}

// NewPlayer creates an idle player. Queue capacity and poll interval come
// from cfg; the output backend too unless WithFactory is given.
func NewPlayer(cfg config.AudioConfig, opts ...Option) *Player {
	p := &Player{
		factory:      DefaultFactory(cfg),
		capacity:     cfg.QueueCapacity,
		pollInterval: cfg.PollInterval,
	}
	if p.capacity < 1 {
		p.capacity = DefaultQueueCapacity
	}
	if p.pollInterval <= 0 {
		p.pollInterval = config.DefaultPollInterval
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open builds a decoder for params, a resampler to sampleRate/channels and
// an output device, then starts the playback thread. A player that is
// already running is stopped first. On error nothing stays allocated and
// the player is idle.
func (p *Player) Open(params CodecParameters, sampleRate, channels int) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.stopLocked()
	if err := p.rec.stop(); err != nil {
		log.Warnf("Failed to finish recording: %v", err)
	}

	s, err := openSession(p.factory, params, sampleRate, channels)
	if err != nil {
		p.state.Store(int32(StateIdle))
		log.Errorf("Open %s %d Hz/%d ch -> %d Hz/%d ch: %v",
			params.Codec, params.SampleRate, params.Channels, sampleRate, channels, err)
		return err
	}

	q := NewQueue(p.capacity)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.exit.Store(false)
	p.pts.Store(0)
	p.setErr(nil)
	p.queue.Store(q)
	p.format.Store(s.format)
	p.cancel = cancel
	p.done = done
	p.state.Store(int32(StateRunning))

	log.Infof("Playing %s %d Hz/%d ch as %d Hz/%d ch, queue capacity %d",
		params.Codec, params.SampleRate, params.Channels, sampleRate, channels, q.Cap())

	go p.run(ctx, q, s, done)
	return nil
}

// run is the playback thread. It is the only consumer of q and the only
// writer of pts.
func (p *Player) run(ctx context.Context, q *Queue, s *session, done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	var err error
	for !p.exit.Load() {
		pkt, ok := q.Pop()
		if !ok {
			q.Wait(ctx, p.pollInterval)
			continue
		}
		if err = p.playPacket(s, pkt); err != nil {
			break
		}
	}

	p.state.Store(int32(StateDraining))

	dropped := q.Close()
	for _, pkt := range dropped {
		pkt.Release()
	}
	if cerr := s.close(); cerr != nil {
		log.Warnf("Failed to close playback session: %v", cerr)
	}
	if err != nil {
		log.Errorf("Playback stopped: %v", err)
		p.setErr(err)
	} else {
		log.Debugf("Playback stopped, %d queued packets dropped", len(dropped))
	}

	p.state.Store(int32(StateStopped))
}

// playPacket decodes, plays and releases one packet. Only errors that end
// playback are returned.
func (p *Player) playPacket(s *session, pkt *Packet) error {
	defer pkt.Release()

	out, err := s.play(pkt)
	if err != nil {
		if errors.Is(err, ErrDecode) {
			p.decodeErrors.Add(1)
			log.Warnf("Dropping packet at %dms: %v", pkt.PTS, err)
			return nil
		}
		return err
	}

	pts := pkt.PTS - s.delay().Milliseconds()
	if pts < 0 {
		pts = 0
	}
	p.rec.write(out)
	if h := p.tap.Load(); h != nil {
		h.tap.Process(pts, out)
	}

	p.pts.Store(pts)
	p.samplesPlayed.Add(uint64(len(out.Data)))
	p.decoded.Add(1)
	return nil
}

// Push queues pkt for playback, waiting while the queue is full. The queue
// takes ownership of pkt only when Push returns nil.
func (p *Player) Push(ctx context.Context, pkt *Packet) error {
	q := p.queue.Load()
	if q == nil {
		return ErrNotOpen
	}
	return q.Push(ctx, pkt)
}

// TryPush is Push without waiting; it returns ErrQueueFull instead.
func (p *Player) TryPush(pkt *Packet) error {
	q := p.queue.Load()
	if q == nil {
		return ErrNotOpen
	}
	return q.TryPush(pkt)
}

// RequestStop asks the playback thread to exit after the packet it is
// currently playing. It does not wait; use Join for that.
func (p *Player) RequestStop() {
	p.exit.Store(true)

	p.mtx.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mtx.Unlock()
}

// Join waits for the playback thread to exit.
func (p *Player) Join() {
	p.mtx.Lock()
	done := p.done
	p.mtx.Unlock()

	if done != nil {
		<-done
	}
}

// Close stops the playback thread, releases queued packets and closes the
// session and any running recording.
func (p *Player) Close() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.stopLocked()
	return p.rec.stop()
}

func (p *Player) stopLocked() {
	if p.done == nil {
		return
	}
	p.exit.Store(true)
	p.cancel()
	<-p.done

	p.cancel = nil
	p.done = nil
	p.queue.Store(nil)
}

// CurrentPts returns the presentation time, in milliseconds, of the audio
// being heard now. It is safe to call from any goroutine.
func (p *Player) CurrentPts() int64 {
	return p.pts.Load()
}

// State returns the lifecycle state.
func (p *Player) State() State {
	return State(p.state.Load())
}

// Err returns the error that stopped playback, if any.
func (p *Player) Err() error {
	p.errMtx.Lock()
	defer p.errMtx.Unlock()
	return p.err
}

func (p *Player) setErr(err error) {
	p.errMtx.Lock()
	p.err = err
	p.errMtx.Unlock()
}

// Stats returns a snapshot of the player counters.
func (p *Player) Stats() Stats {
	st := Stats{
		Decoded:       p.decoded.Load(),
		DecodeErrors:  p.decodeErrors.Load(),
		SamplesPlayed: p.samplesPlayed.Load(),
	}
	if q := p.queue.Load(); q != nil {
		st.QueueLen = q.Len()
	}
	return st
}

// SetTap installs t to observe played buffers. A nil t removes the tap.
func (p *Player) SetTap(t Tap) {
	if t == nil {
		p.tap.Store(nil)
		return
	}
	p.tap.Store(&tapHolder{tap: t})
}
