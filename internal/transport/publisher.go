// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultInterval is used when a publisher is created with a non-positive
// interval (~30Hz).
const DefaultInterval = 33 * time.Millisecond

// ClockPublisher periodically samples a Clock (and optionally a spectrum
// source) and sends the result through a Transport. It runs in its own
// goroutine, either managed by Start and Stop or driven by Run.
type ClockPublisher struct {
	transport Transport
	clock     Clock
	spectrum  SpectrumSource
	interval  time.Duration

	doneChan chan struct{}  // closed by Stop
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects doneChan during Start/Stop.

	// Only touched by the publishing goroutine.
	update  ClockUpdate
	magBuf  []float64
	sendErr int
}

// NewClockPublisher creates a publisher. spectrum may be nil.
func NewClockPublisher(interval time.Duration, t Transport, clock Clock, spectrum SpectrumSource) (*ClockPublisher, error) {
	if t == nil {
		return nil, errors.New("ClockPublisher: transport cannot be nil")
	}
	if clock == nil {
		return nil, errors.New("ClockPublisher: clock cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
		log.Warnf("ClockPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	p := &ClockPublisher{
		transport: t,
		clock:     clock,
		spectrum:  spectrum,
		interval:  interval,
	}
	if spectrum != nil {
		bins := spectrum.Bins()
		p.magBuf = make([]float64, bins)
		p.update.Spectrum = make([]float32, 0, bins)
	}
	log.Infof("ClockPublisher: Initializing (Interval: %s, Bins: %d)", interval, len(p.magBuf))
	return p, nil
}

// Start begins the periodic publishing process. Calling Start on a running
// publisher is a no-op.
func (p *ClockPublisher) Start() {
	p.mu.Lock()
	if p.doneChan != nil {
		p.mu.Unlock()
		log.Warnf("ClockPublisher: Start called but already running.")
		return
	}
	p.doneChan = make(chan struct{})
	done := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(done)
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to
// exit. It is safe to call Stop multiple times.
func (p *ClockPublisher) Stop() error {
	p.mu.Lock()
	if p.doneChan == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.doneChan)
	p.doneChan = nil
	p.mu.Unlock()

	p.wg.Wait()
	log.Debugf("ClockPublisher: Publisher goroutine finished.")
	return nil
}

// Run publishes until ctx is cancelled. It must not be combined with Start.
// Run sends one last update before returning so observers see the final
// clock value.
func (p *ClockPublisher) Run(ctx context.Context) error {
	p.loop(ctx.Done())
	return nil
}

func (p *ClockPublisher) loop(done <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Debugf("ClockPublisher: Publisher goroutine started (Interval: %s)", p.interval)
	for {
		select {
		case <-ticker.C:
			p.publish()
		case <-done:
			p.publish()
			return
		}
	}
}

// publish builds the next update and sends it.
func (p *ClockPublisher) publish() {
	st := p.clock.Stats()

	p.update.Seq++
	p.update.Timestamp = time.Now().UnixNano()
	p.update.PTS = p.clock.CurrentPts()
	p.update.State = p.clock.State()
	p.update.QueueLen = st.QueueLen
	p.update.Decoded = st.Decoded

	if p.spectrum != nil {
		p.update.Spectrum = p.update.Spectrum[:0]
		p.update.SpectrumPTS = 0
		if pts, err := p.spectrum.MagnitudesInto(p.magBuf); err == nil {
			p.update.SpectrumPTS = pts
			for _, v := range p.magBuf {
				p.update.Spectrum = append(p.update.Spectrum, float32(v))
			}
		}
	}

	if err := p.transport.Send(&p.update); err != nil {
		// Only the first failure of a streak is logged.
		if p.sendErr == 0 {
			log.Warnf("ClockPublisher: Send failed: %v", err)
		}
		p.sendErr++
		return
	}
	if p.sendErr > 0 {
		log.Infof("ClockPublisher: Send recovered after %d failures", p.sendErr)
		p.sendErr = 0
	}
}

// Close stops the publisher and closes its transport.
func (p *ClockPublisher) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	if err := p.transport.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// Ensure ClockPublisher satisfies the io.Closer interface at compile time.
var _ interface{ Close() error } = (*ClockPublisher)(nil)
