package pipeline

import (
	"testing"
	"time"

	"github.com/lumenvr/go-lumen/pkg/gpu"
	"github.com/lumenvr/go-lumen/pkg/views"
)

func TestSimEventsAreFIFO(t *testing.T) {
	s := NewSim()
	s.PushEvent(Event{Kind: EventHudMessageUpdated})
	s.PushEvent(Event{Kind: EventStreamingStarted, ViewWidth: 1024, ViewHeight: 1024})

	ev, ok := s.PollEvent()
	if !ok || ev.Kind != EventHudMessageUpdated {
		t.Fatalf("first event: got %+v ok=%v", ev, ok)
	}
	ev, ok = s.PollEvent()
	if !ok || ev.Kind != EventStreamingStarted || ev.ViewWidth != 1024 {
		t.Fatalf("second event: got %+v ok=%v", ev, ok)
	}
	if _, ok := s.PollEvent(); ok {
		t.Error("queue should be empty")
	}
}

func TestSimFramesRequireStream(t *testing.T) {
	s := NewSim()
	s.AutoFrames(16 * time.Millisecond)

	if _, ok := s.FetchFrame(); ok {
		t.Error("frames before StartStream")
	}
	if err := s.RenderStream(Frame{}); err == nil {
		t.Error("RenderStream before StartStream should error")
	}

	if err := s.StartStream(StreamConfig{ViewWidth: 1024, ViewHeight: 1024}); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	f1, ok := s.FetchFrame()
	if !ok {
		t.Fatal("no auto frame after StartStream")
	}
	f2, _ := s.FetchFrame()
	if f2.Timestamp <= f1.Timestamp {
		t.Errorf("stream clock not advancing: %v then %v", f1.Timestamp, f2.Timestamp)
	}
}

func TestSimQueuedFramesDrainFirst(t *testing.T) {
	s := NewSim()
	if err := s.StartStream(StreamConfig{}); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	s.QueueFrame(Frame{ID: 7, Timestamp: 70 * time.Millisecond})

	f, ok := s.FetchFrame()
	if !ok || f.ID != 7 {
		t.Fatalf("queued frame: got %+v ok=%v", f, ok)
	}
	if _, ok := s.FetchFrame(); ok {
		t.Error("no more frames expected without auto frames")
	}
}

func TestSimLobbyRenderNeedsActiveRenderer(t *testing.T) {
	s := NewSim()
	var eyes [2]views.Params

	if err := s.RenderLobby(eyes); err == nil {
		t.Error("RenderLobby before ResumeRenderer should error")
	}
	if err := s.ResumeRenderer(1280, 1440, [2]gpu.Texture{}); err != nil {
		t.Fatalf("ResumeRenderer: %v", err)
	}
	if err := s.RenderLobby(eyes); err != nil {
		t.Errorf("RenderLobby after ResumeRenderer: %v", err)
	}
	s.PauseRenderer()
	if s.RendererActive() {
		t.Error("renderer still active after PauseRenderer")
	}
}
