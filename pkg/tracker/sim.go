package tracker

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/lumenvr/go-lumen/pkg/pose"
)

// ErrSessionPaused reports an Advance on a paused tracking session.
var ErrSessionPaused = errors.New("tracker: session is paused")

// SimOrientation synthesizes a slow head sway for headless runs. The
// orientation is a pure function of the target time, so repeated
// queries for the same instant agree.
type SimOrientation struct {
	start  time.Time
	yawAmp float32
	period time.Duration

	mu     sync.Mutex
	manual *pose.Quaternion
	err    error
}

// NewSimOrientation returns a sway of about eight degrees with a
// twelve second period.
func NewSimOrientation() *SimOrientation {
	return &SimOrientation{
		start:  time.Now(),
		yawAmp: 0.14,
		period: 12 * time.Second,
	}
}

// Orientation returns the synthesized object-frame orientation.
func (s *SimOrientation) Orientation(target time.Time) (pose.Quaternion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return pose.Quaternion{}, s.err
	}
	if s.manual != nil {
		return *s.manual, nil
	}
	phase := target.Sub(s.start).Seconds() / s.period.Seconds()
	yaw := s.yawAmp * float32(math.Sin(2*math.Pi*phase))
	return pose.FromAxisAngle(pose.Vec3{Y: 1}, yaw), nil
}

// Set pins the reported orientation to q until cleared with a nil
// pointer.
func (s *SimOrientation) Set(q *pose.Quaternion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manual = q
}

// Fail makes subsequent reads return err. Passing nil recovers.
func (s *SimOrientation) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// SimPositional is a scripted world tracker. It walks the camera in a
// small circle and records the configuration calls the client makes.
type SimPositional struct {
	mu         sync.Mutex
	resumed    bool
	state      pose.TrackingState
	elapsed    time.Duration
	step       time.Duration
	radius     float32
	advances   int
	advanceErr error

	rotation      int
	width, height int
	cameraTex     uint32
}

// NewSimPositional returns a paused tracker walking a half-meter
// circle.
func NewSimPositional() *SimPositional {
	return &SimPositional{
		state:  pose.TrackingActive,
		step:   33 * time.Millisecond,
		radius: 0.5,
	}
}

// Resume starts the session.
func (s *SimPositional) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumed = true
	return nil
}

// Pause suspends the session.
func (s *SimPositional) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumed = false
}

// Advance steps the simulated walk.
func (s *SimPositional) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advanceErr != nil {
		return s.advanceErr
	}
	if !s.resumed {
		return ErrSessionPaused
	}
	s.advances++
	s.elapsed += s.step
	return nil
}

// State returns the scripted tracking state.
func (s *SimPositional) State() pose.TrackingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CameraPose returns the current point on the circular walk.
func (s *SimPositional) CameraPose() (pose.HeadPose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	angle := s.elapsed.Seconds() / 20 * 2 * math.Pi
	return pose.HeadPose{
		Orientation: pose.Identity(),
		Position: pose.Vec3{
			X: s.radius * float32(math.Cos(angle)),
			Z: s.radius * float32(math.Sin(angle)),
		},
	}, nil
}

// SetDisplayGeometry records the display configuration.
func (s *SimPositional) SetDisplayGeometry(rotation, width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotation = rotation
	s.width = width
	s.height = height
}

// SetCameraTexture records the camera target texture.
func (s *SimPositional) SetCameraTexture(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameraTex = id
}

// SetState scripts the tracking state.
func (s *SimPositional) SetState(state pose.TrackingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// FailAdvance makes Advance return err until cleared with nil.
func (s *SimPositional) FailAdvance(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceErr = err
}

// Geometry returns the last recorded display geometry.
func (s *SimPositional) Geometry() (rotation, width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotation, s.width, s.height
}

// CameraTexture returns the last recorded camera texture id.
func (s *SimPositional) CameraTexture() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraTex
}

// Advances returns how many times the session was stepped.
func (s *SimPositional) Advances() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advances
}
