package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/lumenvr/go-lumen/pkg/gpu"
	"github.com/lumenvr/go-lumen/pkg/views"
)

// defaultSimSettings is a minimal valid session document.
const defaultSimSettings = `{"video":{"foveated_encoding":"Disabled"}}`

// BatteryReport is one recorded SendBattery call.
type BatteryReport struct {
	DeviceID uint64
	Level    float32
	Plugged  bool
}

// Sim is an in-process pipeline for the headless demo and tests.
// Events are scripted with PushEvent; every client call is recorded
// for inspection.
type Sim struct {
	mu sync.Mutex

	caps     *Capabilities
	resumed  bool
	shutdown bool

	predictionOffset time.Duration
	settings         []byte
	hud              string
	hudShown         string

	events []Event

	trackingCount int
	lastTracking  *TrackingSample
	sendErr       error

	battery []BatteryReport

	rendererActive bool
	rendererSize   [2]int
	lobbyRenders   int

	stream        *StreamConfig
	frameQueue    []Frame
	autoFrames    bool
	frameInterval time.Duration
	nextFrameID   uint64
	streamRenders int
	submitted     []time.Duration
}

// NewSim returns a sim with a 45 ms prediction offset and foveation
// disabled in its settings.
func NewSim() *Sim {
	return &Sim{
		predictionOffset: 45 * time.Millisecond,
		settings:         []byte(defaultSimSettings),
	}
}

// Initialize records the declared capabilities.
func (s *Sim) Initialize(caps Capabilities) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caps != nil {
		return fmt.Errorf("pipeline: already initialized")
	}
	c := caps
	s.caps = &c
	return nil
}

// Resume marks the pipeline foreground.
func (s *Sim) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumed = true
}

// Pause marks the pipeline background.
func (s *Sim) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumed = false
}

// Shutdown marks the pipeline dead.
func (s *Sim) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
}

// HeadPredictionOffset returns the configured prediction horizon.
func (s *Sim) HeadPredictionOffset() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.predictionOffset
}

// SendTracking records the sample.
func (s *Sim) SendTracking(sample TrackingSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.trackingCount++
	cp := sample
	s.lastTracking = &cp
	return nil
}

// SendBattery records the report.
func (s *Sim) SendBattery(deviceID uint64, level float32, plugged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.battery = append(s.battery, BatteryReport{DeviceID: deviceID, Level: level, Plugged: plugged})
}

// PollEvent pops the oldest scripted event.
func (s *Sim) PollEvent() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Event{}, false
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, true
}

// Settings returns the scripted session document.
func (s *Sim) Settings() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return nil, fmt.Errorf("pipeline: no settings available")
	}
	return s.settings, nil
}

// HudMessage returns the scripted HUD text.
func (s *Sim) HudMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hud
}

// UpdateHudMessage records the HUD text pushed to the lobby renderer.
func (s *Sim) UpdateHudMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hudShown = msg
}

// ResumeRenderer activates the lobby renderer.
func (s *Sim) ResumeRenderer(viewWidth, viewHeight int, targets [2]gpu.Texture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rendererActive = true
	s.rendererSize = [2]int{viewWidth, viewHeight}
	return nil
}

// PauseRenderer deactivates the lobby renderer.
func (s *Sim) PauseRenderer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rendererActive = false
}

// StartStream records the stream configuration.
func (s *Sim) StartStream(cfg StreamConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cfg
	s.stream = &cp
	return nil
}

// RenderLobby counts a lobby composition.
func (s *Sim) RenderLobby(eyes [2]views.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rendererActive {
		return fmt.Errorf("pipeline: lobby renderer not active")
	}
	s.lobbyRenders++
	return nil
}

// FetchFrame pops a queued frame, or synthesizes one when auto
// frames are on.
func (s *Sim) FetchFrame() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return Frame{}, false
	}
	if len(s.frameQueue) > 0 {
		f := s.frameQueue[0]
		s.frameQueue = s.frameQueue[1:]
		return f, true
	}
	if s.autoFrames {
		s.nextFrameID++
		return Frame{
			ID:        s.nextFrameID,
			Timestamp: time.Duration(s.nextFrameID) * s.frameInterval,
		}, true
	}
	return Frame{}, false
}

// RenderStream counts a stream composition.
func (s *Sim) RenderStream(frame Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return fmt.Errorf("pipeline: stream not started")
	}
	s.streamRenders++
	return nil
}

// ReportSubmitted records the submitted frame timestamp.
func (s *Sim) ReportSubmitted(frameTimestamp time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, frameTimestamp)
}

// PushEvent scripts an event for the next PollEvent.
func (s *Sim) PushEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// SetSettings replaces the session document. Passing nil makes
// Settings fail.
func (s *Sim) SetSettings(doc []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = doc
}

// SetHud replaces the HUD text.
func (s *Sim) SetHud(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hud = msg
}

// ShownHud returns the HUD text last pushed to the lobby renderer.
func (s *Sim) ShownHud() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hudShown
}

// SetPredictionOffset overrides the prediction horizon.
func (s *Sim) SetPredictionOffset(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictionOffset = d
}

// QueueFrame scripts one decoded frame.
func (s *Sim) QueueFrame(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameQueue = append(s.frameQueue, f)
}

// AutoFrames makes FetchFrame synthesize a frame per call, advancing
// the stream clock by interval each time.
func (s *Sim) AutoFrames(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoFrames = true
	s.frameInterval = interval
}

// FailSendTracking makes SendTracking return err until cleared.
func (s *Sim) FailSendTracking(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// Initialized returns the declared capabilities, if any.
func (s *Sim) Initialized() (Capabilities, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caps == nil {
		return Capabilities{}, false
	}
	return *s.caps, true
}

// Resumed reports the foreground state.
func (s *Sim) Resumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumed
}

// TrackingCount returns how many samples were uploaded.
func (s *Sim) TrackingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackingCount
}

// LastTracking returns the most recent uploaded sample.
func (s *Sim) LastTracking() (TrackingSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastTracking == nil {
		return TrackingSample{}, false
	}
	return *s.lastTracking, true
}

// Stream returns the recorded stream configuration.
func (s *Sim) Stream() (StreamConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return StreamConfig{}, false
	}
	return *s.stream, true
}

// RendererActive reports whether the lobby renderer is up.
func (s *Sim) RendererActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rendererActive
}

// LobbyRenders returns the lobby composition count.
func (s *Sim) LobbyRenders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lobbyRenders
}

// StreamRenders returns the stream composition count.
func (s *Sim) StreamRenders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamRenders
}

// Submitted returns the recorded submit timestamps.
func (s *Sim) Submitted() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.submitted))
	copy(out, s.submitted)
	return out
}

// BatteryReports returns the recorded battery reports.
func (s *Sim) BatteryReports() []BatteryReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BatteryReport, len(s.battery))
	copy(out, s.battery)
	return out
}
