// Package monitor exposes the client's diagnostics over HTTP: JSON
// snapshots of session state and altitude calibration, and a live
// websocket feed of fused head motion.
package monitor

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/lumenvr/go-lumen/internal/log"
	"github.com/lumenvr/go-lumen/pkg/altitude"
	"github.com/lumenvr/go-lumen/pkg/client"
	"github.com/lumenvr/go-lumen/pkg/pose"
)

// DefaultFeedInterval is the pose feed cadence.
const DefaultFeedInterval = 100 * time.Millisecond

// Sources supplies the data the monitor serves. Each field is a
// snapshot callback; a nil field disables its route.
type Sources struct {
	// Status returns the client's diagnostic snapshot.
	Status func() client.Status

	// Altitude returns the calibrator snapshot; false means
	// barometric altitude is not wired.
	Altitude func() (altitude.Stats, bool)

	// Motion returns the freshest head motion sample.
	Motion func() (pose.DeviceMotion, bool)
}

// PoseUpdate is one message on the pose feed.
type PoseUpdate struct {
	DeviceID    uint64     `json:"device_id"`
	Timestamp   time.Time  `json:"timestamp"`
	Orientation [4]float32 `json:"orientation"` // x, y, z, w
	Position    [3]float32 `json:"position"`
	State       string     `json:"state,omitempty"`
}

func poseUpdate(m pose.DeviceMotion, state string) PoseUpdate {
	return PoseUpdate{
		DeviceID:  m.DeviceID,
		Timestamp: m.Timestamp,
		Orientation: [4]float32{
			m.Pose.Orientation.X,
			m.Pose.Orientation.Y,
			m.Pose.Orientation.Z,
			m.Pose.Orientation.W,
		},
		Position: [3]float32{
			m.Pose.Position.X,
			m.Pose.Position.Y,
			m.Pose.Position.Z,
		},
		State: state,
	}
}

// Server is the diagnostics HTTP server.
type Server struct {
	app     *fiber.App
	addr    string
	sources Sources

	poseHub      *hub
	feedInterval time.Duration

	quit chan struct{}
	done chan struct{}
}

// NewServer builds a server listening on addr once started.
func NewServer(addr string, sources Sources) *Server {
	s := &Server{
		addr:         addr,
		sources:      sources,
		poseHub:      newHub("pose"),
		feedInterval: DefaultFeedInterval,
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Lumen Monitor",
		DisableStartupMessage: true,
	})

	// CORS for local tooling.
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/altitude", s.handleAltitude)
	api.Get("/motion", s.handleMotion)

	// WebSocket upgrade middleware.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/pose", websocket.New(s.handlePoseWS))

	s.app = app
	return s
}

// Start runs the feed and serves until Shutdown. It blocks.
func (s *Server) Start() error {
	go s.poseHub.run()
	go s.feedPoses()
	log.Info("monitor listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync runs Start in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("monitor server", "error", err)
		}
	}()
}

// Shutdown stops the feed, disconnects subscribers and closes the
// listener.
func (s *Server) Shutdown() error {
	close(s.quit)
	<-s.done
	s.poseHub.stop()
	return s.app.Shutdown()
}

// feedPoses pushes the freshest head motion to the pose feed on a
// fixed cadence.
func (s *Server) feedPoses() {
	defer close(s.done)
	if s.sources.Motion == nil {
		return
	}

	ticker := time.NewTicker(s.feedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			if s.poseHub.clientCount() == 0 {
				continue
			}
			m, ok := s.sources.Motion()
			if !ok {
				continue
			}
			var state string
			if s.sources.Status != nil {
				state = s.sources.Status().State
			}
			if err := s.poseHub.broadcastJSON(poseUpdate(m, state)); err != nil {
				log.Warn("pose feed encode", "error", err)
			}
		}
	}
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.sources.Status == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "status source not configured",
		})
	}
	return c.JSON(s.sources.Status())
}

// altitudeResponse wraps calibrator stats with an enablement flag.
type altitudeResponse struct {
	Enabled bool `json:"enabled"`
	altitude.Stats
}

func (s *Server) handleAltitude(c *fiber.Ctx) error {
	if s.sources.Altitude == nil {
		return c.JSON(altitudeResponse{Enabled: false})
	}
	stats, ok := s.sources.Altitude()
	if !ok {
		return c.JSON(altitudeResponse{Enabled: false})
	}
	return c.JSON(altitudeResponse{Enabled: true, Stats: stats})
}

func (s *Server) handleMotion(c *fiber.Ctx) error {
	if s.sources.Motion == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "motion source not configured",
		})
	}
	m, ok := s.sources.Motion()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no motion sample yet",
		})
	}
	var state string
	if s.sources.Status != nil {
		state = s.sources.Status().State
	}
	return c.JSON(poseUpdate(m, state))
}

// handlePoseWS subscribes a websocket connection to the pose feed.
func (s *Server) handlePoseWS(conn *websocket.Conn) {
	newWSClient(s.poseHub, conn).serve()
}
