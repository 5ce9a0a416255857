package pose

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lumenvr/go-lumen/internal/log"
)

// ErrNoRenderContext reports that a world-tracker operation ran on a
// thread without a bound rendering context. The caller violated a
// precondition; there is no fallback for this case.
var ErrNoRenderContext = errors.New("pose: no rendering context bound on calling thread")

// TrackingState is the quality of the world tracker's current track.
type TrackingState int

const (
	TrackingStopped TrackingState = iota
	TrackingPaused
	TrackingActive
)

func (s TrackingState) String() string {
	switch s {
	case TrackingActive:
		return "active"
	case TrackingPaused:
		return "paused"
	default:
		return "stopped"
	}
}

// OrientationTracker reports device orientation from inertial fusion.
// Samples are in the tracker's object frame and are inverted by the
// engine before use.
type OrientationTracker interface {
	// Orientation returns the device orientation predicted for target.
	Orientation(target time.Time) (Quaternion, error)
}

// PositionalTracker is the world-tracking session the engine advances
// to obtain camera-space position. Advance and CameraPose must be
// called with a rendering context bound on the current thread.
type PositionalTracker interface {
	Advance() error
	State() TrackingState
	CameraPose() (HeadPose, error)
}

// AltitudeSource reports calibrated height above the floor reference.
// The second return is false until calibration has happened.
type AltitudeSource interface {
	Altitude() (float64, bool)
}

// ContextProbe reports whether a rendering context is bound on the
// calling thread.
type ContextProbe interface {
	Bound() bool
}

// Config wires an Engine's collaborators. Orientation is required.
// Positional and Altitude are optional; a nil Positional disables
// world tracking, a nil Altitude disables barometric height.
type Config struct {
	Orientation OrientationTracker
	Positional  PositionalTracker
	Altitude    AltitudeSource
	Context     ContextProbe

	// UsePositionalOrientation takes orientation from the world
	// tracker's camera pose instead of inertial fusion.
	UsePositionalOrientation bool
	// UseBarometricAltitude overrides the vertical axis with the
	// calibrated barometric height once available.
	UseBarometricAltitude bool
}

// Engine fuses the configured trackers into a single head pose.
// It is safe for concurrent use; on transient tracker faults it falls
// back to the last pose it produced.
type Engine struct {
	cfg Config

	mu              sync.Mutex
	lastOrientation Quaternion
	lastPosition    Vec3
	fallbacks       uint64
}

// NewEngine validates cfg and returns a ready engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Orientation == nil {
		return nil, fmt.Errorf("pose: orientation tracker is required")
	}
	if cfg.Positional != nil && cfg.Context == nil {
		return nil, fmt.Errorf("pose: world tracking requires a context probe")
	}
	return &Engine{
		cfg:             cfg,
		lastOrientation: Identity(),
	}, nil
}

// Pose returns the fused head pose predicted for target.
//
// Transient tracker faults and lost tracking resolve to the last
// known pose and are logged, never returned. The only error is
// ErrNoRenderContext, raised when world tracking is enabled and the
// calling thread has no bound rendering context.
func (e *Engine) Pose(target time.Time) (HeadPose, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	orientation := e.lastOrientation
	position := e.lastPosition

	if e.cfg.Positional == nil || !e.cfg.UsePositionalOrientation {
		q, err := e.cfg.Orientation.Orientation(target)
		if err != nil {
			e.fallbacks++
			log.Warn("orientation tracker fault, keeping last pose", "error", err)
		} else {
			orientation = q.Inverse()
		}
	}

	if e.cfg.Positional != nil {
		if !e.cfg.Context.Bound() {
			return HeadPose{}, ErrNoRenderContext
		}
		orientation, position = e.worldTrack(orientation, position)
	}

	if e.cfg.UseBarometricAltitude && e.cfg.Altitude != nil {
		if alt, ok := e.cfg.Altitude.Altitude(); ok {
			position.Y = float32(alt)
		}
	}

	e.lastOrientation = orientation
	e.lastPosition = position
	return HeadPose{Orientation: orientation, Position: position}, nil
}

// worldTrack advances the world tracker and extracts the camera pose.
// Any fault keeps the passed-in last-known values.
func (e *Engine) worldTrack(orientation Quaternion, position Vec3) (Quaternion, Vec3) {
	if err := e.cfg.Positional.Advance(); err != nil {
		e.fallbacks++
		log.Warn("world tracker advance failed, keeping last pose", "error", err)
		return orientation, position
	}
	if state := e.cfg.Positional.State(); state != TrackingActive {
		e.fallbacks++
		log.Debug("world tracking degraded, keeping last pose", "state", state.String())
		return orientation, position
	}
	cam, err := e.cfg.Positional.CameraPose()
	if err != nil {
		e.fallbacks++
		log.Warn("camera pose unavailable, keeping last pose", "error", err)
		return orientation, position
	}
	if e.cfg.UsePositionalOrientation {
		orientation = cam.Orientation.Inverse()
	}
	return orientation, cam.Position
}

// Fallbacks returns how many times the engine served a last-known
// pose instead of fresh tracker data.
func (e *Engine) Fallbacks() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fallbacks
}

// LastPose returns the most recently produced pose without touching
// the trackers.
func (e *Engine) LastPose() HeadPose {
	e.mu.Lock()
	defer e.mu.Unlock()
	return HeadPose{Orientation: e.lastOrientation, Position: e.lastPosition}
}
