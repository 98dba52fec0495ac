package cmd

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"player/internal/audio"
	"player/internal/config"
	"player/internal/fft"
	"player/internal/transport"
	"player/internal/transport/udp"
	"player/internal/video"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"golang.org/x/sync/errgroup"
)

// packetDuration is how much audio the demuxer puts in one packet.
const packetDuration = 20 * time.Millisecond

// videoFrameRate is the rate at which the pattern is re-rendered.
const videoFrameRate = 30

// wavSource demuxes a PCM WAV file into s16le packets.
type wavSource struct {
	f      *os.File
	dec    *wav.Decoder
	params audio.CodecParameters
	buf    *goaudio.IntBuffer
	pcm    []byte
	pool   *audio.PacketPool
	shift  uint
	frames int64
}

func openWAV(path string) (*wavSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s is not a valid WAV file", path)
	}
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if dec.WavAudioFormat != 1 {
		f.Close()
		return nil, fmt.Errorf("%w: WAV format tag %d", audio.ErrUnsupportedCodec, dec.WavAudioFormat)
	}

	var shift uint
	switch dec.BitDepth {
	case 16:
	case 24:
		shift = 8
	case 32:
		shift = 16
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %d-bit WAV", audio.ErrUnsupportedCodec, dec.BitDepth)
	}

	rate, channels := int(dec.SampleRate), int(dec.NumChans)
	frames := rate * int(packetDuration/time.Millisecond) / 1000
	src := &wavSource{
		f:   f,
		dec: dec,
		params: audio.CodecParameters{
			Codec:      audio.CodecPCMS16LE,
			SampleRate: rate,
			Channels:   channels,
			FrameSize:  frames,
		},
		buf: &goaudio.IntBuffer{
			Format:         dec.Format(),
			Data:           make([]int, frames*channels),
			SourceBitDepth: int(dec.BitDepth),
		},
		pcm:   make([]byte, 0, 2*frames*channels),
		pool:  audio.NewPacketPool(2 * frames * channels),
		shift: shift,
	}
	log.Infof("Opened %s: %d Hz, %d ch, %d-bit", path, rate, channels, dec.BitDepth)
	return src, nil
}

// next returns the following packet or io.EOF.
func (s *wavSource) next() (*audio.Packet, error) {
	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}
	n -= n % s.params.Channels
	if n == 0 {
		return nil, io.EOF
	}

	s.pcm = s.pcm[:2*n]
	for i, v := range s.buf.Data[:n] {
		binary.LittleEndian.PutUint16(s.pcm[2*i:], uint16(int16(v>>s.shift)))
	}
	pts := s.frames * 1000 / int64(s.params.SampleRate)
	s.frames += int64(n / s.params.Channels)
	return s.pool.Get(s.pcm, pts, &s.params), nil
}

func (s *wavSource) Close() error {
	return s.f.Close()
}

// newTransport opens the transport named by cfg, or returns nil when the
// clock should not be published.
func newTransport(cfg config.TransportConfig) (transport.Transport, error) {
	switch cfg.Kind {
	case config.TransportNone:
		return nil, nil
	case config.TransportLog:
		return transport.NewLoggingTransport(), nil
	case config.TransportWebSocket:
		t, err := transport.NewWebSocketTransport(cfg.WebSocketAddr, cfg.SendInterval/2)
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.TransportUDP:
		t, err := udp.NewTransport(cfg.UDPTargetAddress)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Kind)
	}
}

// runPlay plays path until it ends or ctx is cancelled. The demuxer, the
// pattern renderer and the clock publisher run as one errgroup; the first
// failure stops the others.
func runPlay(ctx context.Context, cfg *config.Config, path, snapshot string) error {
	src, err := openWAV(path)
	if err != nil {
		return err
	}
	defer src.Close()

	player := audio.NewPlayer(cfg.Audio)
	if err := player.Open(src.params, cfg.Audio.SampleRate, cfg.Audio.Channels); err != nil {
		return err
	}
	defer func() {
		if err := player.Close(); err != nil {
			log.Warnf("Failed to close player: %v", err)
		}
	}()

	if cfg.Recording.Enabled {
		if err := player.StartRecording(cfg.Recording.OutputFile); err != nil {
			return err
		}
		defer func() {
			if err := player.StopRecording(); err != nil {
				log.Errorf("Error stopping recording: %v", err)
				return
			}
			log.Infof("Recording saved to: %s", cfg.Recording.OutputFile)
		}()
	}

	var pub *transport.ClockPublisher
	t, err := newTransport(cfg.Transport)
	if err != nil {
		return err
	}
	if t != nil {
		var spectrum transport.SpectrumSource
		if cfg.Transport.FFTSize > 0 {
			proc, err := fft.NewProcessor(cfg.Transport.FFTSize, float64(cfg.Audio.SampleRate))
			if err != nil {
				t.Close()
				return err
			}
			player.SetTap(proc)
			spectrum = proc
		}
		pub, err = transport.NewClockPublisher(cfg.Transport.SendInterval, t, player, spectrum)
		if err != nil {
			t.Close()
			return err
		}
		defer pub.Close()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// End of file ends the whole group.
		defer cancel()
		return feed(gctx, player, src)
	})
	g.Go(func() error {
		return renderLoop(gctx, cfg.Video, player, snapshot)
	})
	if pub != nil {
		g.Go(func() error {
			return pub.Run(gctx)
		})
	}

	err = g.Wait()
	st := player.Stats()
	log.Infof("Played %d packets (%d dropped), %d samples, final pts %dms",
		st.Decoded, st.DecodeErrors, st.SamplesPlayed, player.CurrentPts())
	return err
}

// feed pushes every packet of src into the player and waits for the queue
// to drain.
func feed(ctx context.Context, player *audio.Player, src *wavSource) error {
	for {
		pkt, err := src.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := player.Push(ctx, pkt); err != nil {
			pkt.Release()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, audio.ErrQueueClosed) {
				player.Join()
				if perr := player.Err(); perr != nil {
					return fmt.Errorf("playback stopped: %w", perr)
				}
				return nil
			}
			return err
		}
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.Stats().QueueLen > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	player.RequestStop()
	player.Join()
	return player.Err()
}

// renderLoop re-renders the pattern at the current pts until ctx is done.
func renderLoop(ctx context.Context, cfg config.VideoConfig, clock *audio.Player, snapshot string) error {
	if cfg.Width == 0 || cfg.Height == 0 {
		<-ctx.Done()
		return nil
	}

	store := video.NewFrameStore(nil)
	gpu := video.NewSoftGPU(cfg.Width, cfg.Height)
	r := video.NewRenderer(store, gpu)
	defer r.Release()

	redraw := make(chan struct{}, 1)
	store.SetRedraw(func() {
		select {
		case redraw <- struct{}{}:
		default:
		}
	})
	if err := r.InitGL(); err != nil {
		return err
	}
	r.Resize(cfg.Width, cfg.Height)
	store.Init(cfg.Width, cfg.Height)

	src := video.NewPatternSource(cfg.Width, cfg.Height, 32)
	ticker := time.NewTicker(time.Second / videoFrameRate)
	defer ticker.Stop()

	last := int64(-1)
	for {
		select {
		case <-ctx.Done():
			st := store.Stats()
			log.Debugf("Video: %d frames shown, %d discarded", st.Accepted, st.Discarded)
			if snapshot != "" {
				return writePNG(snapshot, gpu)
			}
			return nil
		case <-ticker.C:
			pts := clock.CurrentPts()
			if pts == last {
				continue
			}
			last = pts
			frame := src.Frame(pts)
			store.CopyIn(frame)
			frame.Release()
		case <-redraw:
			r.Draw()
			gpu.ResetCalls()
		}
	}
}
