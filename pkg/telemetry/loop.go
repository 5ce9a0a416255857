// Package telemetry runs the tracking upload loop: at three samples
// per display frame it fuses a predicted head pose, projects the eye
// views and sends them to the pipeline.
package telemetry

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumenvr/go-lumen/internal/log"
	"github.com/lumenvr/go-lumen/pkg/gpu"
	"github.com/lumenvr/go-lumen/pkg/pipeline"
	"github.com/lumenvr/go-lumen/pkg/pose"
	"github.com/lumenvr/go-lumen/pkg/views"
)

// State is the loop lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// SamplesPerFrame is how many tracking samples are produced per
// display refresh interval.
const SamplesPerFrame = 3

// Config wires a Loop. Engine, Projector and Pipeline are required;
// RefreshRate must be positive. When NeedsContext is set the loop
// binds its own offscreen rendering context, which world tracking
// requires.
type Config struct {
	Engine      *pose.Engine
	Projector   *views.Projector
	Pipeline    pipeline.Pipeline
	RefreshRate float32

	NeedsContext bool
	Contexts     gpu.ContextFactory
}

// Loop is the telemetry producer. Start and Stop are owned by the
// display thread; the loop goroutine owns nothing externally visible.
type Loop struct {
	cfg    Config
	period time.Duration

	nowFn   func() time.Time
	sleepFn func(deadline time.Time) bool

	iterations atomic.Uint64

	mu       sync.Mutex
	state    State
	stopping bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	err      error
	last     *pipeline.TrackingSample
}

// New validates cfg and returns an idle loop.
func New(cfg Config) (*Loop, error) {
	if cfg.Engine == nil || cfg.Projector == nil || cfg.Pipeline == nil {
		return nil, fmt.Errorf("telemetry: engine, projector and pipeline are required")
	}
	if cfg.RefreshRate <= 0 {
		return nil, fmt.Errorf("telemetry: refresh rate must be positive, got %v", cfg.RefreshRate)
	}
	if cfg.NeedsContext && cfg.Contexts == nil {
		return nil, fmt.Errorf("telemetry: context factory required when a context is needed")
	}
	l := &Loop{
		cfg:    cfg,
		period: time.Duration(float64(time.Second) / (SamplesPerFrame * float64(cfg.RefreshRate))),
		nowFn:  time.Now,
	}
	l.sleepFn = l.sleepUntil
	return l, nil
}

// Period returns the sampling interval.
func (l *Loop) Period() time.Duration {
	return l.period
}

// Start transitions Idle to Active and launches the loop goroutine.
// Starting an active loop is an error.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateActive {
		return fmt.Errorf("telemetry: loop already active")
	}
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.stopping = false
	l.err = nil
	l.state = StateActive
	go l.run()

	log.Info("telemetry loop started", "period", l.period)
	return nil
}

// Stop requests termination and joins the loop goroutine. It returns
// once the goroutine has exited. Stopping an idle loop is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.doneCh == nil {
		l.mu.Unlock()
		return
	}
	if l.state == StateActive && !l.stopping {
		l.stopping = true
		close(l.stopCh)
	}
	done := l.doneCh
	l.mu.Unlock()

	<-done
	log.Info("telemetry loop stopped", "samples", l.iterations.Load())
}

// State returns the lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the error that terminated the loop, if any.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Iterations returns how many samples the loop has produced.
func (l *Loop) Iterations() uint64 {
	return l.iterations.Load()
}

// LastSample returns the most recently produced tracking sample.
func (l *Loop) LastSample() (pipeline.TrackingSample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return pipeline.TrackingSample{}, false
	}
	return *l.last, true
}

func (l *Loop) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = err
	}
	log.Error("telemetry loop failed", "error", err)
}

func (l *Loop) run() {
	defer func() {
		l.mu.Lock()
		l.state = StateIdle
		close(l.doneCh)
		l.mu.Unlock()
	}()

	if l.cfg.NeedsContext {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		ctx, err := l.cfg.Contexts.NewOffscreen()
		if err != nil {
			l.setErr(fmt.Errorf("telemetry: offscreen context: %w", err))
			return
		}
		if err := ctx.MakeCurrent(); err != nil {
			l.setErr(fmt.Errorf("telemetry: bind context: %w", err))
			return
		}
		defer ctx.Release()
	}

	// Deadlines advance by exact periods from the start instant, so
	// a late wake does not shift the schedule.
	deadline := l.nowFn()
	var sendFailStreak int

	for {
		target := l.nowFn().Add(l.cfg.Pipeline.HeadPredictionOffset())
		head, err := l.cfg.Engine.Pose(target)
		if err != nil {
			l.setErr(fmt.Errorf("telemetry: pose: %w", err))
			return
		}

		sample := pipeline.TrackingSample{
			Target: target,
			Motion: pose.DeviceMotion{
				DeviceID:  pose.HeadID,
				Pose:      head,
				Timestamp: target,
			},
			Views: l.cfg.Projector.Project(head),
		}
		if err := l.cfg.Pipeline.SendTracking(sample); err != nil {
			sendFailStreak++
			if sendFailStreak == 1 {
				log.Warn("tracking upload failing", "error", err)
			}
		} else if sendFailStreak > 0 {
			log.Info("tracking upload recovered", "missed", sendFailStreak)
			sendFailStreak = 0
		}
		l.mu.Lock()
		l.last = &sample
		l.mu.Unlock()
		l.iterations.Add(1)

		deadline = deadline.Add(l.period)
		if !l.sleepFn(deadline) {
			return
		}
	}
}

// sleepUntil blocks until deadline or a stop request. It reports
// false when the loop should exit.
func (l *Loop) sleepUntil(deadline time.Time) bool {
	wait := time.Until(deadline)
	if wait <= 0 {
		// Missed the slot. Keep the absolute schedule but still
		// honor a pending stop.
		select {
		case <-l.stopCh:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-l.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
