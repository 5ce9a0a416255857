// Package tracker provides the tracking sources the client wires into
// the fusion engine: inertial orientation and an optional world
// tracker that supplies camera-space position.
package tracker

import (
	"github.com/lumenvr/go-lumen/pkg/pose"
)

// Positional is the client-facing surface of a world tracker. It
// extends the engine-facing tracking methods with the session
// lifecycle and display configuration the client drives.
type Positional interface {
	pose.PositionalTracker

	// Resume starts or restarts the tracking session.
	Resume() error

	// Pause suspends the session; Advance fails until Resume.
	Pause()

	// SetDisplayGeometry informs the tracker of the screen rotation
	// and size so camera images align with the display.
	SetDisplayGeometry(rotation, width, height int)

	// SetCameraTexture hands the tracker the texture that receives
	// camera frames.
	SetCameraTexture(id uint32)
}
