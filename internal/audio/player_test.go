// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"player/internal/config"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func testAudioConfig(capacity int) config.AudioConfig {
	return config.AudioConfig{
		Backend:       config.BackendNull,
		QueueCapacity: capacity,
		PollInterval:  time.Millisecond,
	}
}

func newTestPlayer(t *testing.T, capacity int, stages *fakeStages) *Player {
	t.Helper()
	p := NewPlayer(testAudioConfig(capacity), WithFactory(stages.factory()))
	t.Cleanup(func() {
		if stages.device.gate != nil {
			select {
			case <-stages.device.gate:
			default:
				close(stages.device.gate)
			}
		}
		p.Close()
	})
	return p
}

func TestOpenRollback(t *testing.T) {
	tests := []struct {
		stage   string
		wantErr error
		opened  [3]int32 // decoder, resampler, device
	}{
		{"decoder", ErrOpenDecoder, [3]int32{0, 0, 0}},
		{"resampler", ErrOpenResampler, [3]int32{1, 0, 0}},
		{"device", ErrOpenDevice, [3]int32{1, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			stages := newFakeStages()
			stages.failStage = tt.stage
			p := newTestPlayer(t, 1, stages)

			err := p.Open(testParams, testSampleRate, 1)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Open() = %v, want %v", err, tt.wantErr)
			}

			got := [3]int32{stages.dec.opened.Load(), stages.res.opened.Load(), stages.dev.opened.Load()}
			if got != tt.opened {
				t.Errorf("stages opened = %v, want %v", got, tt.opened)
			}
			stages.assertAllClosed(t)

			if p.State() != StateIdle {
				t.Errorf("State() = %v, want %v", p.State(), StateIdle)
			}
			pool := NewPacketPool(0)
			if err := p.Push(context.Background(), pcmPacket(pool, 1, 0)); !errors.Is(err, ErrNotOpen) {
				t.Errorf("Push after failed Open = %v, want %v", err, ErrNotOpen)
			}
		})
	}
}

func TestOpenUnsupportedCodec(t *testing.T) {
	p := NewPlayer(testAudioConfig(1))
	defer p.Close()

	params := testParams
	params.Codec = "mp3"
	err := p.Open(params, testSampleRate, 1)
	if !errors.Is(err, ErrOpenDecoder) || !errors.Is(err, ErrUnsupportedCodec) {
		t.Fatalf("Open() = %v, want ErrOpenDecoder wrapping ErrUnsupportedCodec", err)
	}
}

func TestPlayerPlaysInOrder(t *testing.T) {
	stages := newFakeStages()
	p := newTestPlayer(t, 4, stages)
	pool := NewPacketPool(testFrameSize * 2)

	if err := p.Open(testParams, testSampleRate, 1); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p.State() != StateRunning {
		t.Fatalf("State() = %v, want %v", p.State(), StateRunning)
	}

	for i := 0; i < 10; i++ {
		if err := p.Push(context.Background(), pcmPacket(pool, int16(i+1), int64(i*10))); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}
	waitFor(t, "all packets played", func() bool { return p.Stats().Decoded == 10 })

	played := stages.device.played()
	for i, v := range played {
		if v != i+1 {
			t.Fatalf("played order = %v", played)
		}
	}
	if p.CurrentPts() != 90 {
		t.Errorf("CurrentPts() = %d, want 90", p.CurrentPts())
	}
	if got := p.Stats().SamplesPlayed; got != 10*testFrameSize {
		t.Errorf("SamplesPlayed = %d, want %d", got, 10*testFrameSize)
	}
	if pool.Live() != 0 {
		t.Errorf("%d packets not released", pool.Live())
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.State() != StateStopped {
		t.Errorf("State() after Close = %v, want %v", p.State(), StateStopped)
	}
	stages.assertAllClosed(t)
}

func TestPlayerCapacityOneBackpressure(t *testing.T) {
	stages := newFakeStages()
	stages.device.enableGate()
	p := newTestPlayer(t, 1, stages)
	pool := NewPacketPool(testFrameSize * 2)

	if err := p.Open(testParams, testSampleRate, 1); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Keep the playback thread busy so the queue slot stays occupied.
	if err := p.Push(context.Background(), pcmPacket(pool, 1, 50)); err != nil {
		t.Fatalf("Push busy packet: %v", err)
	}
	<-stages.device.entered

	a := pcmPacket(pool, 2, 100)
	if err := p.Push(context.Background(), a); err != nil {
		t.Fatalf("Push A: %v", err)
	}

	b := pcmPacket(pool, 3, 200)
	if err := p.TryPush(b); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("TryPush B = %v, want %v", err, ErrQueueFull)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Push(ctx, b); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Push B = %v, want %v", err, context.DeadlineExceeded)
	}
	b.Release()

	stages.device.gate <- struct{}{}
	<-stages.device.entered
	if got := p.CurrentPts(); got != 50 {
		t.Errorf("CurrentPts() while A plays = %d, want 50", got)
	}

	stages.device.gate <- struct{}{}
	waitFor(t, "A played", func() bool { return p.Stats().Decoded == 2 })
	if got := p.CurrentPts(); got != 100 {
		t.Errorf("CurrentPts() after A = %d, want 100", got)
	}
	if played := stages.device.played(); len(played) != 2 || played[1] != 2 {
		t.Errorf("played = %v, want A second", played)
	}
}

func TestPlayerDecodeErrorIsSkipped(t *testing.T) {
	stages := newFakeStages()
	stages.badPTS = map[int64]bool{10: true}
	p := newTestPlayer(t, 4, stages)
	pool := NewPacketPool(testFrameSize * 2)

	if err := p.Open(testParams, testSampleRate, 1); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i, pts := range []int64{0, 10, 20} {
		if err := p.Push(context.Background(), pcmPacket(pool, int16(i+1), pts)); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	waitFor(t, "packets handled", func() bool {
		st := p.Stats()
		return st.Decoded+st.DecodeErrors == 3
	})

	st := p.Stats()
	if st.Decoded != 2 || st.DecodeErrors != 1 {
		t.Errorf("Stats() = %+v, want 2 decoded and 1 error", st)
	}
	if p.State() != StateRunning {
		t.Errorf("State() = %v, want %v", p.State(), StateRunning)
	}
	if p.CurrentPts() != 20 {
		t.Errorf("CurrentPts() = %d, want 20", p.CurrentPts())
	}
	if pool.Live() != 0 {
		t.Errorf("%d packets not released, a failed decode must still release", pool.Live())
	}
}

func TestPlayerTruncatedPacketIsSkipped(t *testing.T) {
	stages := newFakeStages()
	p := newTestPlayer(t, 2, stages)
	pool := NewPacketPool(0)

	if err := p.Open(testParams, testSampleRate, 1); err != nil {
		t.Fatalf("Open: %v", err)
	}
	params := testParams
	if err := p.Push(context.Background(), pool.Get([]byte{1, 2, 3}, 0, &params)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitFor(t, "decode error", func() bool { return p.Stats().DecodeErrors == 1 })
	if p.Err() != nil {
		t.Errorf("Err() = %v, want nil", p.Err())
	}
}

func TestPlayerDeviceLostStops(t *testing.T) {
	stages := newFakeStages()
	stages.device.failAt = 2
	p := newTestPlayer(t, 4, stages)
	pool := NewPacketPool(testFrameSize * 2)

	if err := p.Open(testParams, testSampleRate, 1); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := p.TryPush(pcmPacket(pool, int16(i+1), int64(i*10))); err != nil {
			t.Fatalf("TryPush %d: %v", i, err)
		}
	}

	waitFor(t, "player stopped", func() bool { return p.State() == StateStopped })
	p.Join()

	if !errors.Is(p.Err(), ErrDeviceLost) {
		t.Errorf("Err() = %v, want %v", p.Err(), ErrDeviceLost)
	}
	if p.CurrentPts() != 0 {
		t.Errorf("CurrentPts() = %d, want pts of the last played packet (0)", p.CurrentPts())
	}
	stages.assertAllClosed(t)
	if pool.Live() != 0 {
		t.Errorf("%d packets not released", pool.Live())
	}
	if err := p.Push(context.Background(), pcmPacket(pool, 9, 90)); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Push after device loss = %v, want %v", err, ErrQueueClosed)
	}
}

func TestPlayerRequestStopReleasesQueued(t *testing.T) {
	stages := newFakeStages()
	stages.device.enableGate()
	p := newTestPlayer(t, 2, stages)
	pool := NewPacketPool(testFrameSize * 2)

	if err := p.Open(testParams, testSampleRate, 1); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := p.Push(context.Background(), pcmPacket(pool, int16(i+1), int64(i*10))); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
		if i == 0 {
			<-stages.device.entered
		}
	}

	p.RequestStop()
	close(stages.device.gate)
	p.Join()

	if p.State() != StateStopped {
		t.Errorf("State() = %v, want %v", p.State(), StateStopped)
	}
	if p.Err() != nil {
		t.Errorf("Err() = %v, want nil after requested stop", p.Err())
	}
	if got := p.Stats().Decoded; got != 1 {
		t.Errorf("Decoded = %d, want only the in-flight packet", got)
	}
	if pool.Live() != 0 {
		t.Errorf("%d queued packets not released", pool.Live())
	}
	stages.assertAllClosed(t)
}

func TestPlayerPtsAccountsForDeviceDelay(t *testing.T) {
	stages := newFakeStages()
	stages.device.delay = 30 * time.Millisecond
	p := newTestPlayer(t, 2, stages)
	pool := NewPacketPool(testFrameSize * 2)

	if err := p.Open(testParams, testSampleRate, 1); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := p.Push(context.Background(), pcmPacket(pool, 1, 10)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitFor(t, "first packet", func() bool { return p.Stats().Decoded == 1 })
	if p.CurrentPts() != 0 {
		t.Errorf("CurrentPts() = %d, want clamp to 0", p.CurrentPts())
	}

	if err := p.Push(context.Background(), pcmPacket(pool, 1, 100)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	waitFor(t, "second packet", func() bool { return p.Stats().Decoded == 2 })
	if p.CurrentPts() != 70 {
		t.Errorf("CurrentPts() = %d, want 70", p.CurrentPts())
	}
}

func TestPlayerReopen(t *testing.T) {
	stages := newFakeStages()
	p := newTestPlayer(t, 1, stages)

	if err := p.Open(testParams, testSampleRate, 1); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := p.Open(testParams, testSampleRate, 2); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if stages.dec.opened.Load() != 2 || stages.dec.live() != 1 {
		t.Errorf("decoders opened=%d live=%d, want 2 and 1",
			stages.dec.opened.Load(), stages.dec.live())
	}
	if p.State() != StateRunning {
		t.Errorf("State() = %v, want %v", p.State(), StateRunning)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	stages.assertAllClosed(t)
}

type recordingTap struct {
	pts chan int64
}

func (r *recordingTap) Process(pts int64, buf *audio.IntBuffer) {
	r.pts <- pts
}

func TestPlayerTap(t *testing.T) {
	stages := newFakeStages()
	p := newTestPlayer(t, 2, stages)
	pool := NewPacketPool(testFrameSize * 2)
	tap := &recordingTap{pts: make(chan int64, 4)}
	p.SetTap(tap)

	if err := p.Open(testParams, testSampleRate, 1); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := p.Push(context.Background(), pcmPacket(pool, 5, 40)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	select {
	case pts := <-tap.pts:
		if pts != 40 {
			t.Errorf("tap pts = %d, want 40", pts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tap never called")
	}
}

func TestPlayerRecording(t *testing.T) {
	stages := newFakeStages()
	p := newTestPlayer(t, 4, stages)
	pool := NewPacketPool(testFrameSize * 2)
	filename := filepath.Join(t.TempDir(), "recording.wav")

	if err := p.StartRecording(filename); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("StartRecording before Open = %v, want %v", err, ErrNotOpen)
	}
	if err := p.Open(testParams, testSampleRate, 2); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := p.StartRecording(filename); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := p.StartRecording(filename); err == nil {
		t.Error("second StartRecording should fail")
	}
	if !p.IsRecording() {
		t.Error("IsRecording() = false")
	}

	for i := 0; i < 3; i++ {
		if err := p.Push(context.Background(), pcmPacket(pool, 1000, int64(i*10))); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	waitFor(t, "packets played", func() bool { return p.Stats().Decoded == 3 })

	if err := p.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if p.IsRecording() {
		t.Error("IsRecording() = true after stop")
	}

	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode recording: %v", err)
	}
	if buf.Format.NumChannels != 2 || buf.Format.SampleRate != testSampleRate {
		t.Errorf("recording format = %+v", buf.Format)
	}
	if len(buf.Data) != 3*testFrameSize*2 {
		t.Errorf("recorded %d samples, want %d", len(buf.Data), 3*testFrameSize*2)
	}
	if buf.Data[0] != 1000 {
		t.Errorf("first sample = %d, want 1000", buf.Data[0])
	}
}
