package gpu

import (
	"fmt"
	"sync"
)

// Sim is an in-memory GPU used by the headless demo and tests. It
// tracks live texture handles and allocation counters so resource
// reconciliation can be asserted on.
type Sim struct {
	mu        sync.Mutex
	nextID    uint32
	live      map[uint32]Texture
	created   int
	deleted   int
	bound     bool
	createErr error
}

// NewSim returns a simulated GPU with a context already bound, which
// mirrors a display thread that has finished surface setup.
func NewSim() *Sim {
	return &Sim{
		nextID: 1,
		live:   make(map[uint32]Texture),
		bound:  true,
	}
}

// CreateTextures allocates n simulated textures.
func (s *Sim) CreateTextures(n, width, height int) ([]Texture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return nil, s.createErr
	}
	if !s.bound {
		return nil, fmt.Errorf("gpu: create textures without a bound context")
	}
	out := make([]Texture, 0, n)
	for i := 0; i < n; i++ {
		t := Texture{ID: s.nextID, Width: width, Height: height}
		s.nextID++
		s.live[t.ID] = t
		s.created++
		out = append(out, t)
	}
	return out, nil
}

// DeleteTextures releases the given handles. Unknown handles are
// ignored.
func (s *Sim) DeleteTextures(textures []Texture) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range textures {
		if _, ok := s.live[t.ID]; ok {
			delete(s.live, t.ID)
			s.deleted++
		}
	}
}

// Bound reports the simulated context-bound state.
func (s *Sim) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// SetBound overrides the context-bound state.
func (s *Sim) SetBound(bound bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bound = bound
}

// FailCreates makes subsequent CreateTextures calls return err.
// Passing nil restores normal allocation.
func (s *Sim) FailCreates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

// NewOffscreen returns a context whose MakeCurrent marks the sim as
// bound.
func (s *Sim) NewOffscreen() (Context, error) {
	return &simContext{owner: s}, nil
}

// Live returns the number of currently allocated textures.
func (s *Sim) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Created returns the total number of textures ever allocated.
func (s *Sim) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Deleted returns the total number of textures freed.
func (s *Sim) Deleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted
}

// Textures returns a copy of the live texture set.
func (s *Sim) Textures() []Texture {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Texture, 0, len(s.live))
	for _, t := range s.live {
		out = append(out, t)
	}
	return out
}

type simContext struct {
	owner *Sim
}

func (c *simContext) MakeCurrent() error {
	c.owner.SetBound(true)
	return nil
}

func (c *simContext) Release() {}
