// Package client implements the streaming client's session state
// machine. It owns render resources, applies viewer and screen
// configuration, reacts to pipeline events and drives the telemetry
// loop across the stream lifecycle.
//
// All lifecycle entry points and RenderFrame belong to the display
// thread. Status and LatestMotion may be called from anywhere.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenvr/go-lumen/internal/log"
	"github.com/lumenvr/go-lumen/pkg/altitude"
	"github.com/lumenvr/go-lumen/pkg/baro"
	"github.com/lumenvr/go-lumen/pkg/gpu"
	"github.com/lumenvr/go-lumen/pkg/lens"
	"github.com/lumenvr/go-lumen/pkg/pipeline"
	"github.com/lumenvr/go-lumen/pkg/pose"
	"github.com/lumenvr/go-lumen/pkg/telemetry"
	"github.com/lumenvr/go-lumen/pkg/tracker"
	"github.com/lumenvr/go-lumen/pkg/views"
)

// VsyncQueueInterval is the lobby pose prediction horizon. The display
// stack cannot report an exact presentation time, so a fixed
// queue-ahead estimate stands in for it.
const VsyncQueueInterval = 50 * time.Millisecond

// ErrClosed reports use of a closed client.
var ErrClosed = errors.New("client: closed")

// State is the session state.
type State int

const (
	// StateUninitialized means render resources have not been built
	// yet; nothing can be presented.
	StateUninitialized State = iota

	// StateLobby means the local lobby scene is being presented.
	StateLobby

	// StateStreaming means remote frames are being presented and
	// telemetry is flowing.
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateLobby:
		return "lobby"
	case StateStreaming:
		return "streaming"
	default:
		return "uninitialized"
	}
}

// Config carries the client's static configuration.
type Config struct {
	ScreenWidth  int
	ScreenHeight int
	RefreshRate  float32
	Rotation     int

	// UsePositionalOrientation takes head orientation from the
	// world tracker instead of inertial fusion.
	UsePositionalOrientation bool

	// UseBarometricAltitude enables floor-relative barometric
	// height when a barometer source is wired.
	UseBarometricAltitude bool

	// RefreshRates declared to the pipeline; defaults to the
	// screen's rate.
	RefreshRates []float32

	EncoderHighProfile bool
	Encoder10Bits      bool
	EncoderAV1         bool

	// BaroQueueSize bounds the calibrator intake; zero selects the
	// default.
	BaroQueueSize int
}

// Deps are the collaborators the client drives. Pipeline,
// Orientation, Profiles, Lens, GPU and ContextState are required.
// Positional enables world tracking and requires Contexts for the
// telemetry loop's own rendering context. Barometer is optional.
type Deps struct {
	Pipeline     pipeline.Pipeline
	Orientation  pose.OrientationTracker
	Positional   tracker.Positional
	Barometer    baro.Source
	Profiles     lens.ProfileStore
	Lens         lens.Backend
	GPU          gpu.Allocator
	ContextState gpu.ContextState
	Contexts     gpu.ContextFactory
}

// Client is the session state machine. See the package comment for
// the threading contract.
type Client struct {
	cfg  Config
	deps Deps

	engine     *pose.Engine
	projector  *views.Projector
	calibrator *altitude.Calibrator
	loop       *telemetry.Loop
	baroCancel context.CancelFunc

	mu sync.RWMutex

	state            State
	closed           bool
	resumed          bool
	configChanged    bool
	contextRecreated bool

	screenW  int
	screenH  int
	rotation int

	distortion lens.Distortion
	renderer   lens.Renderer

	lobbyTextures  []gpu.Texture
	streamTextures []gpu.Texture
	cameraTexture  []gpu.Texture

	sessionID    string
	streamViewW  int
	streamViewH  int
	foveation    *pipeline.FoveationSettings
	hud          string
	baroDisabled bool

	lobbyMotion *pose.DeviceMotion
	nowFn       func() time.Time

	cycles    uint64
	abandoned uint64
}

// New wires the collaborators, declares capabilities to the pipeline
// and returns a client in the uninitialized state with a pending
// configuration change.
func New(cfg Config, deps Deps) (*Client, error) {
	if deps.Pipeline == nil || deps.Orientation == nil || deps.Profiles == nil ||
		deps.Lens == nil || deps.GPU == nil || deps.ContextState == nil {
		return nil, fmt.Errorf("client: pipeline, orientation, profiles, lens, gpu and context state are required")
	}
	if deps.Positional != nil && deps.Contexts == nil {
		return nil, fmt.Errorf("client: world tracking requires a context factory")
	}
	if cfg.ScreenWidth <= 0 || cfg.ScreenHeight <= 0 {
		return nil, fmt.Errorf("client: screen size %dx%d is invalid", cfg.ScreenWidth, cfg.ScreenHeight)
	}
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = 60
	}
	if len(cfg.RefreshRates) == 0 {
		cfg.RefreshRates = []float32{cfg.RefreshRate}
	}

	c := &Client{
		cfg:           cfg,
		deps:          deps,
		projector:     views.NewProjector(),
		state:         StateUninitialized,
		configChanged: true,
		screenW:       cfg.ScreenWidth,
		screenH:       cfg.ScreenHeight,
		rotation:      cfg.Rotation,
		nowFn:         time.Now,
	}

	c.startBarometer()

	engCfg := pose.Config{
		Orientation:              deps.Orientation,
		Context:                  deps.ContextState,
		UsePositionalOrientation: cfg.UsePositionalOrientation,
		UseBarometricAltitude:    cfg.UseBarometricAltitude,
	}
	if deps.Positional != nil {
		engCfg.Positional = deps.Positional
	}
	if c.calibrator != nil {
		engCfg.Altitude = c.calibrator
	}
	engine, err := pose.NewEngine(engCfg)
	if err != nil {
		return nil, err
	}
	c.engine = engine

	loop, err := telemetry.New(telemetry.Config{
		Engine:       engine,
		Projector:    c.projector,
		Pipeline:     deps.Pipeline,
		RefreshRate:  cfg.RefreshRate,
		NeedsContext: deps.Positional != nil,
		Contexts:     deps.Contexts,
	})
	if err != nil {
		return nil, err
	}
	c.loop = loop

	caps := pipeline.Capabilities{
		DefaultViewWidth:   max(cfg.ScreenWidth, cfg.ScreenHeight) / 2,
		DefaultViewHeight:  min(cfg.ScreenWidth, cfg.ScreenHeight),
		RefreshRates:       cfg.RefreshRates,
		FoveatedEncoding:   true,
		EncoderHighProfile: cfg.EncoderHighProfile,
		Encoder10Bits:      cfg.Encoder10Bits,
		EncoderAV1:         cfg.EncoderAV1,
	}
	if err := deps.Pipeline.Initialize(caps); err != nil {
		c.teardownBarometer()
		return nil, fmt.Errorf("client: initialize pipeline: %w", err)
	}

	log.Info("client initialized",
		"screen", fmt.Sprintf("%dx%d", cfg.ScreenWidth, cfg.ScreenHeight),
		"view", fmt.Sprintf("%dx%d", caps.DefaultViewWidth, caps.DefaultViewHeight),
		"world_tracking", deps.Positional != nil,
		"barometer", c.calibrator != nil,
	)
	return c, nil
}

// startBarometer brings up the pressure source and calibrator. A
// failure disables barometric altitude for this session instead of
// failing client construction.
func (c *Client) startBarometer() {
	if c.deps.Barometer == nil || !c.cfg.UseBarometricAltitude {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.deps.Barometer.Start(ctx); err != nil {
		cancel()
		c.baroDisabled = true
		log.Warn("barometer unavailable, altitude tracking disabled for this session",
			"backend", c.deps.Barometer.Name(), "error", err)
		return
	}
	c.baroCancel = cancel
	c.calibrator = altitude.New(c.cfg.BaroQueueSize)
	c.calibrator.Start()
	go func(stream <-chan baro.Sample, cal *altitude.Calibrator) {
		for s := range stream {
			cal.Offer(s)
		}
	}(c.deps.Barometer.Stream(), c.calibrator)
}

func (c *Client) teardownBarometer() {
	if c.baroCancel != nil {
		c.baroCancel()
		c.baroCancel = nil
	}
	if c.deps.Barometer != nil {
		if err := c.deps.Barometer.Stop(); err != nil {
			log.Warn("barometer stop", "error", err)
		}
	}
	if c.calibrator != nil {
		c.calibrator.Stop()
	}
}

// Resume brings the client to the foreground. With no saved viewer
// profile a scan is requested; the next render cycle re-reads the
// profile either way.
func (c *Client) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.resumed = true
	c.deps.Pipeline.Resume()
	if c.deps.Positional != nil {
		if err := c.deps.Positional.Resume(); err != nil {
			log.Warn("world tracker resume failed", "error", err)
		}
	}
	if _, ok := c.deps.Profiles.Saved(); !ok {
		c.deps.Profiles.RequestScan()
	}
	c.configChanged = true
	log.Info("client resumed")
}

// Pause sends the client to the background.
func (c *Client) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.resumed = false
	if c.deps.Positional != nil {
		c.deps.Positional.Pause()
	}
	c.deps.Pipeline.Pause()
	log.Info("client paused")
}

// SurfaceCreated marks the rendering context as freshly created. Any
// previously held GPU handles are treated as gone.
func (c *Client) SurfaceCreated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contextRecreated = true
	// Handles died with the old context; drop without deleting.
	c.lobbyTextures = nil
	c.streamTextures = nil
	c.cameraTexture = nil
}

// SetScreenResolution records a new screen size and schedules a
// configuration pass.
func (c *Client) SetScreenResolution(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.screenW = width
	c.screenH = height
	c.configChanged = true
}

// SetScreenRotation records a new display rotation and schedules a
// configuration pass.
func (c *Client) SetScreenRotation(rotation int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotation = rotation
	c.configChanged = true
}

// SwitchViewer requests a new viewer profile scan and schedules a
// configuration pass so the result is picked up.
func (c *Client) SwitchViewer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps.Profiles.RequestScan()
	c.configChanged = true
}

// ReportBattery forwards device battery state to the pipeline.
func (c *Client) ReportBattery(level float32, plugged bool) {
	c.deps.Pipeline.SendBattery(pose.HeadID, level, plugged)
}

// ResetFloorAltitude clears the barometric floor reference; the next
// pressure sample re-calibrates.
func (c *Client) ResetFloorAltitude() {
	if c.calibrator != nil {
		c.calibrator.Reset()
	}
}

// Close stops telemetry, releases render resources and shuts the
// pipeline down. The client cannot be used afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	c.loop.Stop()
	c.teardownBarometer()

	c.freeStreamTextures()
	c.freeLobbyTextures()
	if c.renderer != nil {
		c.renderer.Close()
		c.renderer = nil
	}
	if c.distortion != nil {
		c.distortion.Close()
		c.distortion = nil
	}
	c.deps.Pipeline.Shutdown()
	log.Info("client closed")
	return nil
}

func (c *Client) freeLobbyTextures() {
	if len(c.lobbyTextures) > 0 {
		c.deps.GPU.DeleteTextures(c.lobbyTextures)
		c.lobbyTextures = nil
	}
	if len(c.cameraTexture) > 0 {
		c.deps.GPU.DeleteTextures(c.cameraTexture)
		c.cameraTexture = nil
	}
}

func (c *Client) freeStreamTextures() {
	if len(c.streamTextures) > 0 {
		c.deps.GPU.DeleteTextures(c.streamTextures)
		c.streamTextures = nil
	}
}

// RenderFrame runs one display-synchronous cycle: it reconciles
// pending configuration changes, drains pipeline events and presents
// either the next decoded stream frame or the lobby scene.
//
// A non-nil error means the cycle was logged and abandoned; the client
// stays usable and the next cycle retries from scratch. A cycle that
// merely has nothing to present (deferred configuration, no decoded
// frame ready) returns nil.
func (c *Client) RenderFrame() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.cycles++
	if err := c.renderCycle(); err != nil {
		c.abandoned++
		log.Error("render cycle abandoned",
			"cycle", c.cycles,
			"state", c.state.String(),
			"error", err,
		)
		return err
	}
	return nil
}

// renderCycle is the per-frame dispatch. Caller holds c.mu.
func (c *Client) renderCycle() error {
	if c.configChanged {
		applied, err := c.applyRenderingParams()
		if err != nil {
			return err
		}
		if !applied {
			// No viewer profile yet; the flag stays set and a later
			// cycle picks the profile up.
			return nil
		}
	}

	// If the graphics context was recreated the old textures died with
	// it; only a surviving context needs an explicit release.
	if c.configChanged && !c.contextRecreated {
		log.Info("rendering params changed, releasing previous lobby textures")
		c.deps.Pipeline.PauseRenderer()
		c.freeLobbyTextures()
	}

	if c.configChanged || c.contextRecreated {
		if err := c.rebuildLobbySwapchain(); err != nil {
			return err
		}
		c.configChanged = false
		c.contextRecreated = false
		if c.state == StateUninitialized {
			c.state = StateLobby
			log.Info("client ready", "state", c.state.String())
		}
	}

	for {
		ev, ok := c.deps.Pipeline.PollEvent()
		if !ok {
			break
		}
		switch ev.Kind {
		case pipeline.EventHudMessageUpdated:
			c.handleHudMessage()
		case pipeline.EventStreamingStarted:
			if err := c.handleStreamingStarted(ev); err != nil {
				return err
			}
		case pipeline.EventStreamingStopped:
			c.handleStreamingStopped()
		default:
			log.Debug("ignoring pipeline event", "kind", ev.Kind.String())
		}
	}

	var eyes [2]gpu.Texture
	if c.state == StateStreaming {
		frame, ok := c.deps.Pipeline.FetchFrame()
		if !ok {
			// No decoded frame this cycle; skip the present.
			return nil
		}
		if err := c.deps.Pipeline.RenderStream(frame); err != nil {
			return fmt.Errorf("render stream frame: %w", err)
		}
		c.deps.Pipeline.ReportSubmitted(frame.Timestamp)
		eyes = [2]gpu.Texture{c.streamTextures[0], c.streamTextures[1]}
	} else {
		target := c.nowFn().Add(VsyncQueueInterval)
		head, err := c.engine.Pose(target)
		if err != nil {
			return fmt.Errorf("lobby pose: %w", err)
		}
		c.lobbyMotion = &pose.DeviceMotion{
			DeviceID:  pose.HeadID,
			Pose:      head,
			Timestamp: target,
		}
		if err := c.deps.Pipeline.RenderLobby(c.projector.Project(head)); err != nil {
			return fmt.Errorf("render lobby: %w", err)
		}
		eyes = [2]gpu.Texture{c.lobbyTextures[0], c.lobbyTextures[1]}
	}

	if err := c.renderer.RenderToDisplay(c.screenW, c.screenH, eyes); err != nil {
		return fmt.Errorf("render to display: %w", err)
	}
	return nil
}

// applyRenderingParams rebuilds the lens stack for the current viewer
// profile and screen geometry. It reports false when no profile is
// saved yet, which defers the whole configuration pass.
func (c *Client) applyRenderingParams() (bool, error) {
	profile, ok := c.deps.Profiles.Saved()
	if !ok {
		return false, nil
	}

	log.Info("rendering params changed, rebuilding lens stack",
		"viewer", profile.Model,
		"screen", fmt.Sprintf("%dx%d", c.screenW, c.screenH),
		"rotation", c.rotation,
	)

	if c.distortion != nil {
		c.distortion.Close()
		c.distortion = nil
	}
	distortion, err := c.deps.Lens.NewDistortion(profile, c.screenW, c.screenH)
	if err != nil {
		return false, fmt.Errorf("build distortion model: %w", err)
	}

	if c.renderer != nil {
		c.renderer.Close()
		c.renderer = nil
	}
	renderer, err := c.deps.Lens.NewRenderer(distortion)
	if err != nil {
		distortion.Close()
		return false, fmt.Errorf("build distortion renderer: %w", err)
	}

	c.distortion = distortion
	c.renderer = renderer
	c.projector.SetCalibration(distortion)

	if c.deps.Positional != nil {
		c.deps.Positional.SetDisplayGeometry(c.rotation, c.screenW, c.screenH)
	}
	return true, nil
}

// rebuildLobbySwapchain allocates the lobby eye textures, hands them
// to the pipeline renderer and refreshes the tracking camera target.
func (c *Client) rebuildLobbySwapchain() error {
	viewW, viewH := c.screenW/2, c.screenH

	textures, err := c.deps.GPU.CreateTextures(2, viewW, viewH)
	if err != nil {
		return fmt.Errorf("allocate lobby textures: %w", err)
	}
	c.lobbyTextures = textures

	targets := [2]gpu.Texture{textures[0], textures[1]}
	if err := c.deps.Pipeline.ResumeRenderer(viewW, viewH, targets); err != nil {
		return fmt.Errorf("resume pipeline renderer: %w", err)
	}

	if c.deps.Positional != nil {
		camera, err := c.deps.GPU.CreateTextures(1, c.screenW, c.screenH)
		if err != nil {
			return fmt.Errorf("allocate camera texture: %w", err)
		}
		c.cameraTexture = camera
		c.deps.Positional.SetCameraTexture(camera[0].ID)
	}

	log.Info("lobby swapchain rebuilt", "view", fmt.Sprintf("%dx%d", viewW, viewH))
	return nil
}

func (c *Client) handleHudMessage() {
	msg := c.deps.Pipeline.HudMessage()
	c.hud = msg
	log.Info("hud message updated", "message", msg)
	if msg != "" {
		c.deps.Pipeline.UpdateHudMessage(msg)
	}
}

// handleStreamingStarted negotiates the stream: it parses the session
// settings, allocates the stream swapchain, starts the pipeline stream
// and brings up the telemetry loop. The settings parse runs before any
// allocation so a malformed payload leaves nothing to unwind.
func (c *Client) handleStreamingStarted(ev pipeline.Event) error {
	if c.state == StateStreaming {
		log.Warn("duplicate streaming start ignored", "session", c.sessionID)
		return nil
	}

	doc, err := c.deps.Pipeline.Settings()
	if err != nil {
		return fmt.Errorf("fetch session settings: %w", err)
	}
	foveation, err := pipeline.ParseFoveation(doc)
	if err != nil {
		return fmt.Errorf("parse session settings: %w", err)
	}

	textures, err := c.deps.GPU.CreateTextures(2, ev.ViewWidth, ev.ViewHeight)
	if err != nil {
		return fmt.Errorf("allocate stream textures: %w", err)
	}

	if c.distortion != nil {
		c.projector.SetCalibration(c.distortion)
	}

	cfg := pipeline.StreamConfig{
		ViewWidth:  ev.ViewWidth,
		ViewHeight: ev.ViewHeight,
		Targets:    [2]gpu.Texture{textures[0], textures[1]},
		Fovs:       c.projector.Fovs(),
		IPDMeters:  c.projector.IPD(),
		Foveation:  foveation,
	}
	if err := c.deps.Pipeline.StartStream(cfg); err != nil {
		c.deps.GPU.DeleteTextures(textures)
		return fmt.Errorf("start stream: %w", err)
	}

	c.streamTextures = textures
	c.sessionID = uuid.NewString()
	c.streamViewW = ev.ViewWidth
	c.streamViewH = ev.ViewHeight
	c.foveation = foveation
	c.state = StateStreaming

	if err := c.loop.Start(); err != nil {
		return fmt.Errorf("start telemetry: %w", err)
	}

	log.Info("streaming started",
		"session", c.sessionID,
		"view", fmt.Sprintf("%dx%d", ev.ViewWidth, ev.ViewHeight),
		"foveation", foveation != nil,
	)
	return nil
}

func (c *Client) handleStreamingStopped() {
	log.Info("streaming stopped, joining telemetry loop", "session", c.sessionID)
	c.loop.Stop()
	c.freeStreamTextures()
	c.state = StateLobby
	c.sessionID = ""
	c.streamViewW = 0
	c.streamViewH = 0
	c.foveation = nil
}

// Status is a diagnostic snapshot of the client.
type Status struct {
	State     string `json:"state"`
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"session_id,omitempty"`

	ScreenWidth  int     `json:"screen_width"`
	ScreenHeight int     `json:"screen_height"`
	Rotation     int     `json:"rotation"`
	RefreshRate  float32 `json:"refresh_rate"`

	StreamViewWidth  int                         `json:"stream_view_width,omitempty"`
	StreamViewHeight int                         `json:"stream_view_height,omitempty"`
	Foveation        *pipeline.FoveationSettings `json:"foveation,omitempty"`
	HudMessage       string                      `json:"hud_message,omitempty"`

	WorldTracking    bool `json:"world_tracking"`
	BarometerEnabled bool `json:"barometer_enabled"`

	Altitude *altitude.Stats `json:"altitude,omitempty"`

	TelemetryState   string `json:"telemetry_state"`
	TelemetrySamples uint64 `json:"telemetry_samples"`
	PoseFallbacks    uint64 `json:"pose_fallbacks"`

	LobbyTextures  int `json:"lobby_textures"`
	StreamTextures int `json:"stream_textures"`

	Cycles          uint64 `json:"cycles"`
	CyclesAbandoned uint64 `json:"cycles_abandoned"`
}

// Status returns a diagnostic snapshot. Safe to call from any thread.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		State:            c.state.String(),
		Resumed:          c.resumed,
		SessionID:        c.sessionID,
		ScreenWidth:      c.screenW,
		ScreenHeight:     c.screenH,
		Rotation:         c.rotation,
		RefreshRate:      c.cfg.RefreshRate,
		StreamViewWidth:  c.streamViewW,
		StreamViewHeight: c.streamViewH,
		Foveation:        c.foveation,
		HudMessage:       c.hud,
		WorldTracking:    c.deps.Positional != nil,
		BarometerEnabled: c.calibrator != nil,
		TelemetryState:   c.loop.State().String(),
		TelemetrySamples: c.loop.Iterations(),
		PoseFallbacks:    c.engine.Fallbacks(),
		LobbyTextures:    len(c.lobbyTextures),
		StreamTextures:   len(c.streamTextures),
		Cycles:           c.cycles,
		CyclesAbandoned:  c.abandoned,
	}
	if c.calibrator != nil {
		stats := c.calibrator.Stats()
		st.Altitude = &stats
	}
	return st
}

// AltitudeStats returns the calibrator snapshot. The second return is
// false when barometric altitude is not wired or was disabled.
func (c *Client) AltitudeStats() (altitude.Stats, bool) {
	if c.calibrator == nil {
		return altitude.Stats{}, false
	}
	return c.calibrator.Stats(), true
}

// State returns the current session state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LatestMotion returns the freshest head motion sample: the telemetry
// loop's while streaming, otherwise the last lobby render pose. Safe
// to call from any thread.
func (c *Client) LatestMotion() (pose.DeviceMotion, bool) {
	if c.loop.State() == telemetry.StateActive {
		if sample, ok := c.loop.LastSample(); ok {
			return sample.Motion, true
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lobbyMotion == nil {
		return pose.DeviceMotion{}, false
	}
	return *c.lobbyMotion, true
}
