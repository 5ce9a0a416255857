// Package pipeline defines the boundary to the remote streaming
// pipeline: capability negotiation, session events, tracking upload,
// and frame delivery. The client drives it; transport and codecs live
// behind the interface.
package pipeline

import (
	"time"

	"github.com/lumenvr/go-lumen/pkg/gpu"
	"github.com/lumenvr/go-lumen/pkg/lens"
	"github.com/lumenvr/go-lumen/pkg/pose"
	"github.com/lumenvr/go-lumen/pkg/views"
)

// EventKind discriminates pipeline events.
type EventKind int

const (
	// EventHudMessageUpdated signals new lobby HUD text.
	EventHudMessageUpdated EventKind = iota + 1

	// EventStreamingStarted signals a negotiated stream. ViewWidth
	// and ViewHeight carry the per-eye stream resolution.
	EventStreamingStarted

	// EventStreamingStopped signals the end of the stream.
	EventStreamingStopped
)

func (k EventKind) String() string {
	switch k {
	case EventHudMessageUpdated:
		return "hud_message_updated"
	case EventStreamingStarted:
		return "streaming_started"
	case EventStreamingStopped:
		return "streaming_stopped"
	default:
		return "unknown"
	}
}

// Event is one pipeline notification. Fields beyond Kind are only
// meaningful for the kinds that document them.
type Event struct {
	Kind       EventKind
	ViewWidth  int
	ViewHeight int
}

// Capabilities is what the client declares to the pipeline before
// streaming is negotiated.
type Capabilities struct {
	// DefaultViewWidth and DefaultViewHeight are the preferred
	// per-eye resolution.
	DefaultViewWidth  int
	DefaultViewHeight int

	// RefreshRates lists supported display rates in Hz.
	RefreshRates []float32

	FoveatedEncoding   bool
	EncoderHighProfile bool
	Encoder10Bits      bool
	EncoderAV1         bool
}

// TrackingSample is one telemetry upload: the fused head motion and
// both eye views, predicted for Target.
type TrackingSample struct {
	Target time.Time
	Motion pose.DeviceMotion
	Views  [2]views.Params
}

// StreamConfig is what the client hands the pipeline when a stream
// starts.
type StreamConfig struct {
	ViewWidth  int
	ViewHeight int

	// Targets are the swapchain textures decoded frames land in.
	Targets [2]gpu.Texture

	Fovs      [2]lens.Fov
	IPDMeters float32

	// Foveation is nil when foveated decoding is disabled.
	Foveation *FoveationSettings
}

// Frame is one decoded stream frame ready for composition.
type Frame struct {
	// ID identifies the decoded buffer.
	ID uint64

	// Timestamp is the frame's time on the stream clock.
	Timestamp time.Duration
}

// Pipeline is the remote streaming pipeline the client drives.
//
// PollEvent and FetchFrame are non-blocking; absence of work is a
// false return, not an error. SendTracking must not block the
// telemetry cadence.
type Pipeline interface {
	// Initialize declares capabilities. Called once before Resume.
	Initialize(caps Capabilities) error

	// Resume and Pause bracket the foreground lifetime.
	Resume()
	Pause()

	// Shutdown tears the pipeline down for good.
	Shutdown()

	// HeadPredictionOffset is how far ahead of now tracking samples
	// should be predicted.
	HeadPredictionOffset() time.Duration

	// SendTracking uploads one tracking sample.
	SendTracking(sample TrackingSample) error

	// SendBattery reports device battery state.
	SendBattery(deviceID uint64, level float32, plugged bool)

	// PollEvent pops the next pending event.
	PollEvent() (Event, bool)

	// Settings returns the active session settings document.
	Settings() ([]byte, error)

	// HudMessage returns the current lobby HUD text.
	HudMessage() string

	// UpdateHudMessage pushes HUD text into the lobby renderer.
	UpdateHudMessage(msg string)

	// ResumeRenderer (re)creates pipeline rendering resources for
	// the given lobby swapchain. PauseRenderer destroys them.
	ResumeRenderer(viewWidth, viewHeight int, targets [2]gpu.Texture) error
	PauseRenderer()

	// StartStream attaches the pipeline to the stream swapchain.
	StartStream(cfg StreamConfig) error

	// RenderLobby draws the lobby scene for the given eye views.
	RenderLobby(eyes [2]views.Params) error

	// FetchFrame returns the next decoded frame, if one is ready.
	FetchFrame() (Frame, bool)

	// RenderStream draws a fetched frame into the stream swapchain.
	RenderStream(frame Frame) error

	// ReportSubmitted tells the pipeline a frame hit the display.
	ReportSubmitted(frameTimestamp time.Duration)
}
