// Package altitude converts barometric pressure into height above a
// floor reference. The first sample after startup (or Reset) defines
// the floor; later samples report displacement from it.
package altitude

import (
	"math"
	"sync"

	"github.com/lumenvr/go-lumen/internal/log"
	"github.com/lumenvr/go-lumen/pkg/baro"
)

// SeaLevelPressureHPa is the ISA standard atmosphere reference.
const SeaLevelPressureHPa = 1013.25

const defaultQueueSize = 32

// pressureAltitude returns the standard-atmosphere altitude in meters
// for a station pressure in hPa.
func pressureAltitude(hpa float64) float64 {
	return 44330.0 * (1.0 - math.Pow(hpa/SeaLevelPressureHPa, 1.0/5.255))
}

// Stats is a diagnostic snapshot of the calibrator.
type Stats struct {
	Calibrated     bool    `json:"calibrated"`
	FloorAltitudeM float64 `json:"floor_altitude_m"`
	AltitudeM      float64 `json:"altitude_m"`
	PressureHPa    float64 `json:"pressure_hpa"`
	MinPressureHPa float64 `json:"min_pressure_hpa"`
	MaxPressureHPa float64 `json:"max_pressure_hpa"`
	Samples        uint64  `json:"samples"`
	Dropped        uint64  `json:"dropped"`
}

// Calibrator folds pressure samples into a floor-relative altitude.
// Samples enter through Offer, which never blocks; a consumer
// goroutine applies them. Readers see a consistent snapshot at all
// times.
type Calibrator struct {
	queue    chan baro.Sample
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	started    bool
	calibrated bool
	floorAlt   float64
	pressure   float64
	minP, maxP float64
	samples    uint64
	dropped    uint64
}

// New returns a calibrator with a bounded intake queue. queueSize of
// zero selects the default.
func New(queueSize int) *Calibrator {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Calibrator{
		queue:  make(chan baro.Sample, queueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the consumer goroutine. Calling Start twice is a
// no-op.
func (c *Calibrator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	go c.consume()
}

// Stop terminates the consumer. Pending queued samples are discarded.
func (c *Calibrator) Stop() {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return
	}
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

// Offer enqueues a sample without blocking. It reports false when the
// queue is full and the sample was dropped.
func (c *Calibrator) Offer(s baro.Sample) bool {
	select {
	case c.queue <- s:
		return true
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		return false
	}
}

func (c *Calibrator) consume() {
	defer close(c.doneCh)
	for {
		select {
		case <-c.stopCh:
			return
		case s := <-c.queue:
			c.fold(s)
		}
	}
}

func (c *Calibrator) fold(s baro.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples++
	c.pressure = s.PressureHPa
	if c.samples == 1 || s.PressureHPa < c.minP {
		c.minP = s.PressureHPa
	}
	if c.samples == 1 || s.PressureHPa > c.maxP {
		c.maxP = s.PressureHPa
	}
	if !c.calibrated {
		c.floorAlt = pressureAltitude(s.PressureHPa)
		c.calibrated = true
		log.Info("floor altitude calibrated",
			"pressure_hpa", s.PressureHPa,
			"floor_altitude_m", c.floorAlt,
		)
	}
}

// Altitude returns the height above the floor reference in meters.
// The second return is false until the first sample has been folded.
func (c *Calibrator) Altitude() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.calibrated {
		return 0, false
	}
	return pressureAltitude(c.pressure) - c.floorAlt, true
}

// Reset clears the floor reference. The next sample re-calibrates.
func (c *Calibrator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calibrated = false
	c.floorAlt = 0
	log.Info("floor altitude reset")
}

// Stats returns a diagnostic snapshot.
func (c *Calibrator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Stats{
		Calibrated:     c.calibrated,
		FloorAltitudeM: c.floorAlt,
		PressureHPa:    c.pressure,
		MinPressureHPa: c.minP,
		MaxPressureHPa: c.maxP,
		Samples:        c.samples,
		Dropped:        c.dropped,
	}
	if c.calibrated {
		st.AltitudeM = pressureAltitude(c.pressure) - c.floorAlt
	}
	return st
}
