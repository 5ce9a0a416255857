// Package lens models viewer lens calibration: the saved viewer
// profile, the distortion model derived from it, and the renderer
// that maps eye textures onto the physical screen.
package lens

import (
	"github.com/lumenvr/go-lumen/pkg/gpu"
)

// Fov holds per-eye half-angles in radians using signed display
// conventions: angles toward the left and bottom are negative.
type Fov struct {
	Left  float32 `json:"left"`
	Right float32 `json:"right"`
	Up    float32 `json:"up"`
	Down  float32 `json:"down"`
}

// FovFromAngles converts positive max-FOV angles in radians, ordered
// left, right, bottom, top, into the signed convention.
func FovFromAngles(angles [4]float32) Fov {
	return Fov{
		Left:  -angles[0],
		Right: angles[1],
		Up:    angles[3],
		Down:  -angles[2],
	}
}

// Profile is a viewer's lens calibration, typically scanned from the
// viewer's setup code.
type Profile struct {
	Vendor string
	Model  string

	// InterLensDistanceM separates the two lens centers in meters.
	InterLensDistanceM float32

	// MaxFovDeg is the per-eye maximum field of view in degrees,
	// ordered left, right, bottom, top.
	MaxFovDeg [4]float32

	// DistortionK are the radial distortion coefficients.
	DistortionK []float32
}

// ProfileStore holds the saved viewer profile and can request a new
// scan when none is saved or the user switches viewers.
type ProfileStore interface {
	// Saved returns the stored profile, if any.
	Saved() (Profile, bool)

	// RequestScan asks the platform to (re)acquire a profile. The
	// result lands in the store asynchronously.
	RequestScan()
}

// Distortion is a lens distortion model built for one profile at one
// screen size.
type Distortion interface {
	// FieldOfView returns the signed half-angles for eye 0 (left)
	// or 1 (right).
	FieldOfView(eye int) Fov

	// EyeFromHeadOffset returns the lateral eye-from-head
	// translation in meters for the given eye. View positions are
	// obtained by subtracting the head-rotated offset.
	EyeFromHeadOffset(eye int) float32

	// Close releases the model.
	Close()
}

// Renderer composites the two eye textures onto the display with
// lens correction applied.
type Renderer interface {
	RenderToDisplay(screenW, screenH int, eyes [2]gpu.Texture) error
	Close()
}

// Backend builds distortion models and display renderers. The client
// rebuilds both whenever the profile or screen geometry changes.
type Backend interface {
	NewDistortion(p Profile, screenW, screenH int) (Distortion, error)
	NewRenderer(d Distortion) (Renderer, error)
}
