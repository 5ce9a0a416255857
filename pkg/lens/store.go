package lens

import (
	"sync"

	"github.com/lumenvr/go-lumen/internal/log"
)

// MemoryStore is an in-memory ProfileStore. The demo preloads it; on
// a device the platform layer fills it after a viewer scan completes.
type MemoryStore struct {
	mu      sync.Mutex
	profile Profile
	saved   bool
	scans   int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWith returns a store preloaded with p.
func NewMemoryStoreWith(p Profile) *MemoryStore {
	return &MemoryStore{profile: p, saved: true}
}

// Saved returns the stored profile, if any.
func (s *MemoryStore) Saved() (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile, s.saved
}

// RequestScan records the scan request. A platform layer would kick
// off viewer-code acquisition here.
func (s *MemoryStore) RequestScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans++
	log.Info("viewer profile scan requested", "requests", s.scans)
}

// Put stores a scanned profile.
func (s *MemoryStore) Put(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
	s.saved = true
}

// Clear drops the stored profile.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = Profile{}
	s.saved = false
}

// ScanRequests returns how many scans have been requested.
func (s *MemoryStore) ScanRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans
}
