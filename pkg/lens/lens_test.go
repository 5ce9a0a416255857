package lens

import (
	"math"
	"testing"
)

func TestFovFromAnglesSigns(t *testing.T) {
	got := FovFromAngles([4]float32{0.7, 0.8, 0.5, 0.6})
	want := Fov{Left: -0.7, Right: 0.8, Up: 0.6, Down: -0.5}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSimDistortionOffsetsAreSymmetric(t *testing.T) {
	b := NewSimBackend()
	d, err := b.NewDistortion(DefaultProfile, 2560, 1440)
	if err != nil {
		t.Fatalf("NewDistortion: %v", err)
	}
	defer d.Close()

	left := d.EyeFromHeadOffset(0)
	right := d.EyeFromHeadOffset(1)
	if left != -right {
		t.Errorf("offsets not symmetric: left %v right %v", left, right)
	}
	if left != DefaultProfile.InterLensDistanceM/2 {
		t.Errorf("left offset: got %v, want %v", left, DefaultProfile.InterLensDistanceM/2)
	}
}

func TestSimDistortionFovFromProfile(t *testing.T) {
	b := NewSimBackend()
	p := DefaultProfile
	p.MaxFovDeg = [4]float32{40, 50, 42, 48}
	d, err := b.NewDistortion(p, 2560, 1440)
	if err != nil {
		t.Fatalf("NewDistortion: %v", err)
	}
	defer d.Close()

	fov := d.FieldOfView(0)
	wantLeft := float32(-40 * math.Pi / 180)
	if math.Abs(float64(fov.Left-wantLeft)) > 1e-6 {
		t.Errorf("fov left: got %v, want %v", fov.Left, wantLeft)
	}
	if fov.Left >= 0 || fov.Down >= 0 {
		t.Error("left and down must be negative")
	}
	if fov.Right <= 0 || fov.Up <= 0 {
		t.Error("right and up must be positive")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	if _, ok := s.Saved(); ok {
		t.Error("empty store should have no profile")
	}

	s.RequestScan()
	s.Put(DefaultProfile)
	p, ok := s.Saved()
	if !ok {
		t.Fatal("profile missing after Put")
	}
	if p.Model != DefaultProfile.Model {
		t.Errorf("model: got %q, want %q", p.Model, DefaultProfile.Model)
	}
	if s.ScanRequests() != 1 {
		t.Errorf("scan requests: got %d, want 1", s.ScanRequests())
	}

	s.Clear()
	if _, ok := s.Saved(); ok {
		t.Error("profile survived Clear")
	}
}

func TestSimBackendCountsCloses(t *testing.T) {
	b := NewSimBackend()
	d, _ := b.NewDistortion(DefaultProfile, 1920, 1080)
	r, _ := b.NewRenderer(d)
	d.Close()
	r.Close()
	if got := b.Closes(); got != 2 {
		t.Errorf("closes: got %d, want 2", got)
	}
	if b.DistortionsBuilt() != 1 || b.RenderersBuilt() != 1 {
		t.Errorf("builds: got %d/%d, want 1/1", b.DistortionsBuilt(), b.RenderersBuilt())
	}
}
