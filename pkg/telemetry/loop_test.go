package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lumenvr/go-lumen/pkg/gpu"
	"github.com/lumenvr/go-lumen/pkg/pipeline"
	"github.com/lumenvr/go-lumen/pkg/pose"
	"github.com/lumenvr/go-lumen/pkg/views"
)

type fixedOrientation struct{}

func (fixedOrientation) Orientation(time.Time) (pose.Quaternion, error) {
	return pose.Identity(), nil
}

type capturingPipeline struct {
	*pipeline.Sim
	mu      sync.Mutex
	samples []pipeline.TrackingSample
}

func (c *capturingPipeline) SendTracking(s pipeline.TrackingSample) error {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
	return c.Sim.SendTracking(s)
}

func (c *capturingPipeline) captured() []pipeline.TrackingSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]pipeline.TrackingSample, len(c.samples))
	copy(out, c.samples)
	return out
}

func newTestEngine(t *testing.T) *pose.Engine {
	t.Helper()
	e, err := pose.NewEngine(pose.Config{Orientation: fixedOrientation{}})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestLoopPeriodIsThirdOfFrame(t *testing.T) {
	l, err := New(Config{
		Engine:      newTestEngine(t),
		Projector:   views.NewProjector(),
		Pipeline:    pipeline.NewSim(),
		RefreshRate: 60,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := time.Second / 180
	if got := l.Period(); got != want {
		t.Errorf("period: got %v, want %v", got, want)
	}
}

func TestLoopDeadlinesDoNotDrift(t *testing.T) {
	pipe := &capturingPipeline{Sim: pipeline.NewSim()}
	l, err := New(Config{
		Engine:      newTestEngine(t),
		Projector:   views.NewProjector(),
		Pipeline:    pipe,
		RefreshRate: 60,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Deterministic clock: every sleep wakes late, half a period
	// past the deadline. The absolute schedule must not stretch.
	start := time.Unix(1000, 0)
	now := start
	var deadlines []time.Time
	const iterations = 10

	l.nowFn = func() time.Time { return now }
	l.sleepFn = func(deadline time.Time) bool {
		deadlines = append(deadlines, deadline)
		now = deadline.Add(l.period / 2)
		return len(deadlines) < iterations
	}

	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	l.Stop()

	if len(deadlines) != iterations {
		t.Fatalf("deadlines: got %d, want %d", len(deadlines), iterations)
	}
	for i, d := range deadlines {
		want := start.Add(time.Duration(i+1) * l.period)
		if !d.Equal(want) {
			t.Errorf("deadline %d: got %v, want %v (schedule drifted)", i, d, want)
		}
	}

	samples := pipe.captured()
	if len(samples) != iterations {
		t.Fatalf("samples: got %d, want %d", len(samples), iterations)
	}
	for i := 1; i < len(samples); i++ {
		if !samples[i].Target.After(samples[i-1].Target) {
			t.Errorf("sample %d target %v not after %v", i, samples[i].Target, samples[i-1].Target)
		}
	}
}

func TestLoopSamplesCarryHeadMotion(t *testing.T) {
	pipe := &capturingPipeline{Sim: pipeline.NewSim()}
	pipe.SetPredictionOffset(40 * time.Millisecond)
	l, err := New(Config{
		Engine:      newTestEngine(t),
		Projector:   views.NewProjector(),
		Pipeline:    pipe,
		RefreshRate: 60,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Unix(2000, 0)
	now := start
	count := 0
	l.nowFn = func() time.Time { return now }
	l.sleepFn = func(deadline time.Time) bool {
		now = deadline
		count++
		return count < 3
	}

	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	l.Stop()

	samples := pipe.captured()
	if len(samples) == 0 {
		t.Fatal("no samples uploaded")
	}
	s := samples[0]
	if s.Motion.DeviceID != pose.HeadID {
		t.Errorf("device id: got %d, want head id %d", s.Motion.DeviceID, pose.HeadID)
	}
	if !s.Motion.Timestamp.Equal(s.Target) {
		t.Errorf("motion timestamp %v should equal target %v", s.Motion.Timestamp, s.Target)
	}
	if got := s.Target.Sub(start); got != 40*time.Millisecond {
		t.Errorf("prediction offset: got %v, want 40ms", got)
	}
	if s.Views[0].Pose.Position.Y != views.FloorHeight {
		t.Errorf("view height: got %v, want %v", s.Views[0].Pose.Position.Y, views.FloorHeight)
	}
}

func TestLoopStartStopLifecycle(t *testing.T) {
	l, err := New(Config{
		Engine:      newTestEngine(t),
		Projector:   views.NewProjector(),
		Pipeline:    pipeline.NewSim(),
		RefreshRate: 240,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := l.State(); got != StateIdle {
		t.Fatalf("initial state: got %v, want idle", got)
	}
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.Start(); err == nil {
		t.Error("second Start should fail while active")
	}
	if got := l.State(); got != StateActive {
		t.Errorf("state after Start: got %v, want active", got)
	}

	time.Sleep(20 * time.Millisecond)
	l.Stop()

	if got := l.State(); got != StateIdle {
		t.Errorf("state after Stop: got %v, want idle", got)
	}
	n := l.Iterations()
	if n == 0 {
		t.Error("loop produced no samples")
	}
	time.Sleep(10 * time.Millisecond)
	if got := l.Iterations(); got != n {
		t.Errorf("samples produced after Stop: %d then %d", n, got)
	}

	// A stopped loop can be started again.
	if err := l.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	l.Stop()
}

func TestLoopStopWhenIdleIsNoop(t *testing.T) {
	l, err := New(Config{
		Engine:      newTestEngine(t),
		Projector:   views.NewProjector(),
		Pipeline:    pipeline.NewSim(),
		RefreshRate: 60,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Stop()
	l.Stop()
}

func TestLoopBindsOffscreenContext(t *testing.T) {
	sim := gpu.NewSim()
	sim.SetBound(false)

	world := stubPositional{}
	engine, err := pose.NewEngine(pose.Config{
		Orientation: fixedOrientation{},
		Positional:  world,
		Context:     sim,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	l, err := New(Config{
		Engine:       engine,
		Projector:    views.NewProjector(),
		Pipeline:     pipeline.NewSim(),
		RefreshRate:  240,
		NeedsContext: true,
		Contexts:     sim,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(15 * time.Millisecond)
	l.Stop()

	if err := l.Err(); err != nil {
		t.Errorf("loop error: %v", err)
	}
	if l.Iterations() == 0 {
		t.Error("loop produced no samples with its own context")
	}
}

type stubPositional struct{}

func (stubPositional) Advance() error            { return nil }
func (stubPositional) State() pose.TrackingState { return pose.TrackingActive }
func (stubPositional) CameraPose() (pose.HeadPose, error) {
	return pose.HeadPose{Orientation: pose.Identity()}, nil
}

type failingContexts struct{}

func (failingContexts) NewOffscreen() (gpu.Context, error) {
	return nil, errors.New("no offscreen surface")
}

func TestLoopContextFailureIsFatal(t *testing.T) {
	l, err := New(Config{
		Engine:       newTestEngine(t),
		Projector:    views.NewProjector(),
		Pipeline:     pipeline.NewSim(),
		RefreshRate:  60,
		NeedsContext: true,
		Contexts:     failingContexts{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	l.Stop()

	if l.Err() == nil {
		t.Error("context failure should surface through Err")
	}
	if l.Iterations() != 0 {
		t.Error("loop should not sample without its context")
	}
}

func TestLoopMissingContextIsFatal(t *testing.T) {
	sim := gpu.NewSim()
	sim.SetBound(false)
	engine, err := pose.NewEngine(pose.Config{
		Orientation: fixedOrientation{},
		Positional:  stubPositional{},
		Context:     sim,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	l, err := New(Config{
		Engine:      engine,
		Projector:   views.NewProjector(),
		Pipeline:    pipeline.NewSim(),
		RefreshRate: 240,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for l.State() != StateIdle && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	l.Stop()

	if !errors.Is(l.Err(), pose.ErrNoRenderContext) {
		t.Errorf("error: got %v, want ErrNoRenderContext", l.Err())
	}
}

func TestLoopSurvivesSendFailures(t *testing.T) {
	sim := pipeline.NewSim()
	sim.FailSendTracking(errors.New("socket gone"))

	l, err := New(Config{
		Engine:      newTestEngine(t),
		Projector:   views.NewProjector(),
		Pipeline:    sim,
		RefreshRate: 240,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(15 * time.Millisecond)
	l.Stop()

	if l.Err() != nil {
		t.Errorf("send failures should not kill the loop: %v", l.Err())
	}
	if l.Iterations() == 0 {
		t.Error("loop stalled on send failures")
	}
}

func TestNewValidation(t *testing.T) {
	base := Config{
		Engine:      newTestEngine(t),
		Projector:   views.NewProjector(),
		Pipeline:    pipeline.NewSim(),
		RefreshRate: 60,
	}

	bad := base
	bad.Pipeline = nil
	if _, err := New(bad); err == nil {
		t.Error("expected error for missing pipeline")
	}

	bad = base
	bad.RefreshRate = 0
	if _, err := New(bad); err == nil {
		t.Error("expected error for zero refresh rate")
	}

	bad = base
	bad.NeedsContext = true
	if _, err := New(bad); err == nil {
		t.Error("expected error for missing context factory")
	}
}
