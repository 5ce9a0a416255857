// Package views derives the two per-eye render views from a fused
// head pose and the current lens calibration.
package views

import (
	"sync"

	"github.com/lumenvr/go-lumen/pkg/lens"
	"github.com/lumenvr/go-lumen/pkg/pose"
)

// FloorHeight lifts view positions to standing eye height above the
// floor, in meters.
const FloorHeight = 1.5

// Params is one eye's render view.
type Params struct {
	Pose pose.HeadPose `json:"pose"`
	Fov  lens.Fov      `json:"fov"`
}

// Projector caches per-eye calibration and turns head poses into eye
// views. Calibration changes come from the display thread while the
// telemetry goroutine projects, so access is synchronized.
type Projector struct {
	mu      sync.RWMutex
	offsets [2]float32
	fovs    [2]lens.Fov
}

// NewProjector returns a projector with zero calibration. Views
// coincide with the head until SetCalibration is called.
func NewProjector() *Projector {
	return &Projector{}
}

// SetCalibration pulls per-eye offsets and field of view from a
// freshly built distortion model.
func (p *Projector) SetCalibration(d lens.Distortion) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for eye := 0; eye < 2; eye++ {
		p.offsets[eye] = d.EyeFromHeadOffset(eye)
		p.fovs[eye] = d.FieldOfView(eye)
	}
}

// Fovs returns the per-eye field of view.
func (p *Projector) Fovs() [2]lens.Fov {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fovs
}

// IPD returns the inter-pupillary distance implied by the eye
// offsets.
func (p *Projector) IPD() float32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.offsets[0] - p.offsets[1]
}

// Project returns both eye views for the given head pose. The eye
// offset is rotated into world space and subtracted, then the view is
// lifted to standing height.
func (p *Projector) Project(head pose.HeadPose) [2]Params {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out [2]Params
	for eye := 0; eye < 2; eye++ {
		rotated := head.Orientation.RotateVec(pose.Vec3{X: p.offsets[eye]})
		position := head.Position.Sub(rotated)
		position.Y += FloorHeight

		out[eye] = Params{
			Pose: pose.HeadPose{
				Orientation: head.Orientation,
				Position:    position,
			},
			Fov: p.fovs[eye],
		}
	}
	return out
}
