// Package baro provides barometric pressure sample sources. A Source
// streams pressure readings that the altitude calibrator folds into a
// floor-relative height.
package baro

import (
	"context"
	"time"
)

// DefaultSampleRate is the sensor event rate the client requests, in
// samples per second.
const DefaultSampleRate = 10

// Sample is one barometric pressure reading.
type Sample struct {
	// PressureHPa is station pressure in hectopascals.
	PressureHPa float64

	// At is when the sensor produced the reading.
	At time.Time
}

// Source streams pressure samples from a sensor or simulation.
type Source interface {
	// Start begins sampling. After Start, samples arrive on Stream.
	Start(ctx context.Context) error

	// Stop halts sampling and closes the stream channel.
	// It is safe to call Stop multiple times.
	Stop() error

	// Stream returns the sample channel. Slow consumers miss
	// samples rather than stalling the sensor loop.
	Stream() <-chan Sample

	// Name returns the backend name (e.g., "bmxx80", "sim").
	Name() string
}
