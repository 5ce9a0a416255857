package gpu

import (
	"errors"
	"testing"
)

func TestSimAllocateAndFree(t *testing.T) {
	s := NewSim()

	texs, err := s.CreateTextures(2, 1024, 768)
	if err != nil {
		t.Fatalf("CreateTextures: %v", err)
	}
	if len(texs) != 2 {
		t.Fatalf("textures: got %d, want 2", len(texs))
	}
	if texs[0].ID == texs[1].ID {
		t.Error("texture handles should be distinct")
	}
	for _, tex := range texs {
		if tex.Width != 1024 || tex.Height != 768 {
			t.Errorf("texture size: got %dx%d, want 1024x768", tex.Width, tex.Height)
		}
	}
	if got := s.Live(); got != 2 {
		t.Errorf("live: got %d, want 2", got)
	}

	s.DeleteTextures(texs)
	if got := s.Live(); got != 0 {
		t.Errorf("live after delete: got %d, want 0", got)
	}
	if s.Created() != 2 || s.Deleted() != 2 {
		t.Errorf("counters: created %d deleted %d, want 2 and 2", s.Created(), s.Deleted())
	}
}

func TestSimDeleteIgnoresUnknownHandles(t *testing.T) {
	s := NewSim()
	s.DeleteTextures([]Texture{{ID: 99}})
	if s.Deleted() != 0 {
		t.Errorf("deleted: got %d, want 0", s.Deleted())
	}
}

func TestSimCreateRequiresBoundContext(t *testing.T) {
	s := NewSim()
	s.SetBound(false)
	if _, err := s.CreateTextures(1, 64, 64); err == nil {
		t.Error("expected error with no bound context")
	}
}

func TestSimFailCreates(t *testing.T) {
	s := NewSim()
	boom := errors.New("out of memory")
	s.FailCreates(boom)
	if _, err := s.CreateTextures(1, 64, 64); !errors.Is(err, boom) {
		t.Errorf("injected failure: got %v, want %v", err, boom)
	}
	s.FailCreates(nil)
	if _, err := s.CreateTextures(1, 64, 64); err != nil {
		t.Errorf("after clearing failure: %v", err)
	}
}

func TestSimOffscreenContextBinds(t *testing.T) {
	s := NewSim()
	s.SetBound(false)

	ctx, err := s.NewOffscreen()
	if err != nil {
		t.Fatalf("NewOffscreen: %v", err)
	}
	if err := ctx.MakeCurrent(); err != nil {
		t.Fatalf("MakeCurrent: %v", err)
	}
	if !s.Bound() {
		t.Error("context not bound after MakeCurrent")
	}
}
