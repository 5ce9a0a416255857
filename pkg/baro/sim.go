package baro

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/lumenvr/go-lumen/internal/log"
)

// SimSource is a synthetic pressure source for demos and tests.
// It emits a base pressure with optional linear drift and noise.
type SimSource struct {
	base   float64
	drift  float64 // hPa per second
	noise  float64 // peak hPa jitter
	rate   int
	rng    *rand.Rand
	nowFn  func() time.Time
	tickFn func(time.Duration) *time.Ticker

	mu      sync.Mutex
	running bool
	stream  chan Sample
	done    chan struct{}
	started time.Time
}

// SimOption configures a SimSource.
type SimOption func(*SimSource)

// WithDrift adds a linear pressure drift in hPa per second. Negative
// drift simulates ascent.
func WithDrift(hpaPerSecond float64) SimOption {
	return func(s *SimSource) { s.drift = hpaPerSecond }
}

// WithNoise adds uniform jitter of up to peak hPa to each sample.
func WithNoise(peak float64, seed int64) SimOption {
	return func(s *SimSource) {
		s.noise = peak
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRate overrides the sample rate in samples per second.
func WithRate(rate int) SimOption {
	return func(s *SimSource) { s.rate = rate }
}

// NewSimSource creates a simulated barometer around the given base
// pressure in hPa.
func NewSimSource(baseHPa float64, opts ...SimOption) *SimSource {
	s := &SimSource{
		base:   baseHPa,
		rate:   DefaultSampleRate,
		nowFn:  time.Now,
		tickFn: time.NewTicker,
		stream: make(chan Sample, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins emitting samples.
func (s *SimSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	s.done = make(chan struct{})
	s.started = s.nowFn()
	go s.generate(ctx)

	log.Debug("sim barometer started", "base_hpa", s.base, "rate_hz", s.rate)
	return nil
}

func (s *SimSource) generate(ctx context.Context) {
	ticker := s.tickFn(time.Second / time.Duration(s.rate))
	defer ticker.Stop()
	defer close(s.stream)

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-s.done:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(s.started).Seconds()
			p := s.base + s.drift*elapsed
			if s.noise > 0 && s.rng != nil {
				p += (s.rng.Float64()*2 - 1) * s.noise
			}
			select {
			case s.stream <- Sample{PressureHPa: p, At: now}:
			default:
			}
		}
	}
}

// Stop halts emission and closes the stream channel.
func (s *SimSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.done)
	return nil
}

// Stream returns the sample channel.
func (s *SimSource) Stream() <-chan Sample {
	return s.stream
}

// Name returns the backend name.
func (s *SimSource) Name() string { return "sim" }
