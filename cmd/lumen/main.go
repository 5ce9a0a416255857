// Command lumen runs the streaming client headlessly against
// simulated trackers and a scripted pipeline. It renders at the
// configured refresh rate, cycles between lobby and streaming, and
// serves diagnostics over the monitor endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumenvr/go-lumen/internal/config"
	"github.com/lumenvr/go-lumen/internal/log"
	"github.com/lumenvr/go-lumen/pkg/baro"
	"github.com/lumenvr/go-lumen/pkg/client"
	"github.com/lumenvr/go-lumen/pkg/gpu"
	"github.com/lumenvr/go-lumen/pkg/lens"
	"github.com/lumenvr/go-lumen/pkg/monitor"
	"github.com/lumenvr/go-lumen/pkg/pipeline"
	"github.com/lumenvr/go-lumen/pkg/tracker"
)

// demoSettings is the session document the scripted pipeline serves
// when streaming starts.
const demoSettings = `{"video":{"foveated_encoding":{"Enabled":{` +
	`"center_size_x":0.45,"center_size_y":0.4,` +
	`"center_shift_x":0.4,"center_shift_y":0.1,` +
	`"edge_ratio_x":4,"edge_ratio_y":5}}}}`

const (
	lobbyFor  = 5 * time.Second
	streamFor = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults apply when empty)")
	listen := flag.String("listen", "", "Monitor listen address override")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	log.Init(cfg.LogLevel)
	if *listen != "" {
		cfg.Monitor.Enabled = true
		cfg.Monitor.Listen = *listen
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pipe := pipeline.NewSim()
	framePeriod := time.Duration(float64(time.Second) / float64(cfg.Screen.RefreshRate))
	pipe.AutoFrames(framePeriod)

	sim := gpu.NewSim()
	deps := client.Deps{
		Pipeline:     pipe,
		Orientation:  tracker.NewSimOrientation(),
		Barometer:    newBarometer(cfg.Tracking),
		Profiles:     lens.NewMemoryStoreWith(lens.DefaultProfile),
		Lens:         lens.NewSimBackend(),
		GPU:          sim,
		ContextState: sim,
	}
	if cfg.Tracking.Positional {
		deps.Positional = tracker.NewSimPositional()
		deps.Contexts = sim
	}

	c, err := client.New(client.Config{
		ScreenWidth:              cfg.Screen.Width,
		ScreenHeight:             cfg.Screen.Height,
		RefreshRate:              cfg.Screen.RefreshRate,
		Rotation:                 cfg.Screen.Rotation,
		UsePositionalOrientation: cfg.Tracking.PositionalOrientation,
		UseBarometricAltitude:    cfg.Tracking.Barometer,
		RefreshRates:             cfg.Stream.RefreshRates,
		EncoderHighProfile:       cfg.Stream.EncoderHighProfile,
		Encoder10Bits:            cfg.Stream.Encoder10Bits,
		EncoderAV1:               cfg.Stream.EncoderAV1,
	}, deps)
	if err != nil {
		log.Error("build client", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	if cfg.Monitor.Enabled {
		mon := monitor.NewServer(cfg.Monitor.Listen, monitor.Sources{
			Status:   c.Status,
			Altitude: c.AltitudeStats,
			Motion:   c.LatestMotion,
		})
		mon.StartAsync()
		defer mon.Shutdown()
	}

	c.Resume()
	go scriptSession(ctx, pipe, cfg.Screen.Width, cfg.Screen.Height)

	frame := time.NewTicker(framePeriod)
	defer frame.Stop()
	battery := time.NewTicker(time.Minute)
	defer battery.Stop()
	level := float32(1.0)

	log.Info("lumen client running",
		"screen", fmt.Sprintf("%dx%d@%g", cfg.Screen.Width, cfg.Screen.Height, cfg.Screen.RefreshRate),
		"monitor", cfg.Monitor.Listen,
		"positional", cfg.Tracking.Positional,
		"barometer", cfg.Tracking.Barometer,
	)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-battery.C:
			if level > 0.05 {
				level -= 0.01
			}
			c.ReportBattery(level, false)
		case <-frame.C:
			// Abandoned cycles are logged by the client; the
			// cadence continues regardless.
			c.RenderFrame()
		}
	}
}

// newBarometer picks the pressure backend from the tracking config,
// or none when the barometer is disabled.
func newBarometer(cfg config.TrackingConfig) baro.Source {
	if !cfg.Barometer {
		return nil
	}
	if cfg.BarometerBackend == "bmxx80" {
		return baro.NewBMXSource(cfg.BarometerI2CBus, cfg.BarometerI2CAddr, cfg.BarometerRateHz)
	}
	opts := []baro.SimOption{
		baro.WithRate(cfg.BarometerRateHz),
		baro.WithNoise(0.02, time.Now().UnixNano()),
	}
	if cfg.SimPressureDriftHPa != 0 {
		opts = append(opts, baro.WithDrift(cfg.SimPressureDriftHPa))
	}
	return baro.NewSimSource(cfg.SimBasePressureHPa, opts...)
}

// scriptSession walks the simulated pipeline through an endless
// lobby/streaming cycle so every client surface gets exercised.
func scriptSession(ctx context.Context, pipe *pipeline.Sim, screenW, screenH int) {
	pipe.SetSettings([]byte(demoSettings))
	pipe.SetHud("welcome to the lobby")
	pipe.PushEvent(pipeline.Event{Kind: pipeline.EventHudMessageUpdated})

	viewW := max(screenW, screenH) / 2
	viewH := min(screenW, screenH)

	for {
		if !sleep(ctx, lobbyFor) {
			return
		}
		log.Info("demo: starting stream", "view", fmt.Sprintf("%dx%d", viewW, viewH))
		pipe.PushEvent(pipeline.Event{
			Kind:       pipeline.EventStreamingStarted,
			ViewWidth:  viewW,
			ViewHeight: viewH,
		})

		if !sleep(ctx, streamFor) {
			return
		}
		log.Info("demo: stopping stream")
		pipe.PushEvent(pipeline.Event{Kind: pipeline.EventStreamingStopped})
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
