package lens

import (
	"math"
	"sync"

	"github.com/lumenvr/go-lumen/pkg/gpu"
)

// DefaultProfile is a plausible mid-range viewer used by the demo.
var DefaultProfile = Profile{
	Vendor:             "lumen",
	Model:              "reference-viewer",
	InterLensDistanceM: 0.064,
	MaxFovDeg:          [4]float32{45, 45, 45, 45},
	DistortionK:        []float32{0.34, 0.55},
}

// SimBackend builds analytic distortion models without touching a
// real GPU. It counts build, render and close calls so resource
// reconciliation can be asserted on.
type SimBackend struct {
	mu               sync.Mutex
	distortionsBuilt int
	renderersBuilt   int
	renderCalls      int
	closes           int
}

// NewSimBackend returns an empty sim backend.
func NewSimBackend() *SimBackend {
	return &SimBackend{}
}

// NewDistortion derives per-eye FOV and offsets from the profile.
func (b *SimBackend) NewDistortion(p Profile, screenW, screenH int) (Distortion, error) {
	b.mu.Lock()
	b.distortionsBuilt++
	b.mu.Unlock()

	var angles [4]float32
	for i, deg := range p.MaxFovDeg {
		angles[i] = deg * math.Pi / 180
	}
	fov := FovFromAngles(angles)
	return &simDistortion{
		backend: b,
		fov:     [2]Fov{fov, fov},
		offsets: [2]float32{p.InterLensDistanceM / 2, -p.InterLensDistanceM / 2},
	}, nil
}

// NewRenderer returns a renderer that only counts calls.
func (b *SimBackend) NewRenderer(d Distortion) (Renderer, error) {
	b.mu.Lock()
	b.renderersBuilt++
	b.mu.Unlock()
	return &simRenderer{backend: b}, nil
}

// DistortionsBuilt returns how many distortion models were built.
func (b *SimBackend) DistortionsBuilt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.distortionsBuilt
}

// RenderersBuilt returns how many renderers were built.
func (b *SimBackend) RenderersBuilt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.renderersBuilt
}

// RenderCalls returns how many frames were composited.
func (b *SimBackend) RenderCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.renderCalls
}

// Closes returns how many models and renderers were closed.
func (b *SimBackend) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

type simDistortion struct {
	backend *SimBackend
	fov     [2]Fov
	offsets [2]float32
}

func (d *simDistortion) FieldOfView(eye int) Fov { return d.fov[eye] }

func (d *simDistortion) EyeFromHeadOffset(eye int) float32 { return d.offsets[eye] }

func (d *simDistortion) Close() {
	d.backend.mu.Lock()
	d.backend.closes++
	d.backend.mu.Unlock()
}

type simRenderer struct {
	backend *SimBackend
}

func (r *simRenderer) RenderToDisplay(screenW, screenH int, eyes [2]gpu.Texture) error {
	r.backend.mu.Lock()
	r.backend.renderCalls++
	r.backend.mu.Unlock()
	return nil
}

func (r *simRenderer) Close() {
	r.backend.mu.Lock()
	r.backend.closes++
	r.backend.mu.Unlock()
}
