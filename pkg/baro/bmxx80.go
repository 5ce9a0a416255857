package baro

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"github.com/lumenvr/go-lumen/internal/log"
)

// DefaultI2CAddr is the usual BMP280/BME280 bus address.
const DefaultI2CAddr = 0x76

// BMXSource reads pressure from a Bosch BMx280 sensor over I2C using
// the driver's continuous sensing mode.
type BMXSource struct {
	bus  string
	addr uint16
	rate int

	mu      sync.Mutex
	running bool
	dev     *bmxx80.Dev
	closer  func() error
	stream  chan Sample
	done    chan struct{}
}

// NewBMXSource prepares a sensor source on the named I2C bus. An empty
// bus name selects the first available bus. rate is samples per
// second; zero means DefaultSampleRate.
func NewBMXSource(bus string, addr uint16, rate int) *BMXSource {
	if addr == 0 {
		addr = DefaultI2CAddr
	}
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &BMXSource{
		bus:    bus,
		addr:   addr,
		rate:   rate,
		stream: make(chan Sample, 16),
	}
}

// Start opens the bus, probes the sensor and begins continuous
// sensing. The context bounds the pump goroutine's lifetime.
func (s *BMXSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("baro: periph host init: %w", err)
	}
	bus, err := i2creg.Open(s.bus)
	if err != nil {
		return fmt.Errorf("baro: open i2c bus %q: %w", s.bus, err)
	}
	dev, err := bmxx80.NewI2C(bus, s.addr, &bmxx80.DefaultOpts)
	if err != nil {
		bus.Close()
		return fmt.Errorf("baro: probe bmxx80 at %#x: %w", s.addr, err)
	}

	interval := time.Second / time.Duration(s.rate)
	envCh, err := dev.SenseContinuous(interval)
	if err != nil {
		dev.Halt()
		bus.Close()
		return fmt.Errorf("baro: start continuous sensing: %w", err)
	}

	s.dev = dev
	s.closer = bus.Close
	s.running = true
	s.done = make(chan struct{})
	go s.pump(ctx, envCh)

	log.Info("barometer started", "backend", s.Name(), "addr", fmt.Sprintf("%#x", s.addr), "rate_hz", s.rate)
	return nil
}

func (s *BMXSource) pump(ctx context.Context, envCh <-chan physic.Env) {
	defer close(s.stream)
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-s.done:
			return
		case e, ok := <-envCh:
			if !ok {
				return
			}
			pa := float64(e.Pressure) / float64(physic.Pascal)
			sample := Sample{PressureHPa: pa / 100.0, At: time.Now()}
			select {
			case s.stream <- sample:
			default:
				log.Debug("barometer stream full, dropping sample")
			}
		}
	}
}

// Stop halts sensing and releases the bus.
func (s *BMXSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.done)

	err := s.dev.Halt()
	if cerr := s.closer(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("baro: stop sensor: %w", err)
	}
	return nil
}

// Stream returns the sample channel.
func (s *BMXSource) Stream() <-chan Sample {
	return s.stream
}

// Name returns the backend name.
func (s *BMXSource) Name() string { return "bmxx80" }
