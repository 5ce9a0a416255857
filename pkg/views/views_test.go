package views

import (
	"math"
	"testing"

	"github.com/lumenvr/go-lumen/pkg/lens"
	"github.com/lumenvr/go-lumen/pkg/pose"
)

const floatTolerance = 1e-5

func floatEquals(a, b float32) bool {
	return math.Abs(float64(a-b)) < floatTolerance
}

func vecEquals(a, b pose.Vec3) bool {
	return floatEquals(a.X, b.X) && floatEquals(a.Y, b.Y) && floatEquals(a.Z, b.Z)
}

type fixedDistortion struct {
	offsets [2]float32
	fovs    [2]lens.Fov
}

func (d *fixedDistortion) FieldOfView(eye int) lens.Fov { return d.fovs[eye] }

func (d *fixedDistortion) EyeFromHeadOffset(eye int) float32 { return d.offsets[eye] }

func (d *fixedDistortion) Close() {}

func calibrated(half float32) *Projector {
	p := NewProjector()
	p.SetCalibration(&fixedDistortion{
		offsets: [2]float32{half, -half},
		fovs: [2]lens.Fov{
			{Left: -0.7, Right: 0.8, Up: 0.8, Down: -0.7},
			{Left: -0.8, Right: 0.7, Up: 0.8, Down: -0.7},
		},
	})
	return p
}

func TestProjectIdentityOrientation(t *testing.T) {
	p := calibrated(0.032)
	head := pose.HeadPose{
		Orientation: pose.Identity(),
		Position:    pose.Vec3{X: 1, Y: 0.2, Z: -2},
	}

	views := p.Project(head)

	wantLeft := pose.Vec3{X: 1 - 0.032, Y: 0.2 + FloorHeight, Z: -2}
	wantRight := pose.Vec3{X: 1 + 0.032, Y: 0.2 + FloorHeight, Z: -2}
	if !vecEquals(views[0].Pose.Position, wantLeft) {
		t.Errorf("left eye: got %v, want %v", views[0].Pose.Position, wantLeft)
	}
	if !vecEquals(views[1].Pose.Position, wantRight) {
		t.Errorf("right eye: got %v, want %v", views[1].Pose.Position, wantRight)
	}
}

func TestProjectRotatedOffset(t *testing.T) {
	p := calibrated(0.032)
	// A quarter yaw turns the lateral eye baseline onto the z axis.
	head := pose.HeadPose{
		Orientation: pose.FromAxisAngle(pose.Vec3{Y: 1}, math.Pi/2),
	}

	views := p.Project(head)

	wantLeft := pose.Vec3{X: 0, Y: FloorHeight, Z: 0.032}
	if !vecEquals(views[0].Pose.Position, wantLeft) {
		t.Errorf("left eye: got %v, want %v", views[0].Pose.Position, wantLeft)
	}
	wantRight := pose.Vec3{X: 0, Y: FloorHeight, Z: -0.032}
	if !vecEquals(views[1].Pose.Position, wantRight) {
		t.Errorf("right eye: got %v, want %v", views[1].Pose.Position, wantRight)
	}
}

func TestProjectKeepsHeadOrientation(t *testing.T) {
	p := calibrated(0.03)
	q := pose.FromAxisAngle(pose.Vec3{X: 1}, 0.4)
	views := p.Project(pose.HeadPose{Orientation: q})

	for eye, v := range views {
		if v.Pose.Orientation != q {
			t.Errorf("eye %d orientation: got %v, want %v", eye, v.Pose.Orientation, q)
		}
	}
}

func TestProjectCarriesPerEyeFov(t *testing.T) {
	p := calibrated(0.03)
	views := p.Project(pose.HeadPose{Orientation: pose.Identity()})

	if views[0].Fov.Left != -0.7 || views[1].Fov.Left != -0.8 {
		t.Errorf("fov mixup: left eye %v, right eye %v", views[0].Fov, views[1].Fov)
	}
}

func TestProjectWithoutCalibration(t *testing.T) {
	p := NewProjector()
	head := pose.HeadPose{Orientation: pose.Identity(), Position: pose.Vec3{X: 0.5}}

	views := p.Project(head)
	want := pose.Vec3{X: 0.5, Y: FloorHeight}
	for eye, v := range views {
		if !vecEquals(v.Pose.Position, want) {
			t.Errorf("eye %d: got %v, want %v", eye, v.Pose.Position, want)
		}
	}
}

func TestIPD(t *testing.T) {
	p := calibrated(0.032)
	if got := p.IPD(); !floatEquals(got, 0.064) {
		t.Errorf("ipd: got %v, want 0.064", got)
	}
}
