package contrast

import (
	"fmt"
	"sync"
	"time"
)

// ScreenStore manages screen persistence and retrieval for one project.
type ScreenStore interface {
	// Add a new screen
	Add(screen *Screen) error

	// Get a screen by ID
	Get(id string) (*Screen, error)

	// List all active screens
	ListActive() ([]*Screen, error)

	// Update an existing screen
	Update(screen *Screen) error

	// Delete a screen
	Delete(id string) error
}

// InMemoryScreenStore implements ScreenStore using an in-memory map.
// Thread-safe for concurrent access.
type InMemoryScreenStore struct {
	screens map[string]*Screen
	mu      sync.RWMutex
}

// NewInMemoryScreenStore creates a new in-memory screen store
func NewInMemoryScreenStore() *InMemoryScreenStore {
	return &InMemoryScreenStore{
		screens: make(map[string]*Screen),
	}
}

// Add adds a new screen to the store, enforcing unique IDs and setting
// both timestamps.
func (s *InMemoryScreenStore) Add(screen *Screen) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.screens[screen.ID]; exists {
		return fmt.Errorf("screen with ID %s already exists", screen.ID)
	}

	now := time.Now()
	screen.CreatedAt = now
	screen.UpdatedAt = now
	s.screens[screen.ID] = screen
	return nil
}

// Get retrieves a screen by ID
func (s *InMemoryScreenStore) Get(id string) (*Screen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	screen, exists := s.screens[id]
	if !exists {
		return nil, fmt.Errorf("screen with ID %s not found", id)
	}
	return screen, nil
}

// ListActive returns all active screens
func (s *InMemoryScreenStore) ListActive() ([]*Screen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Screen
	for _, screen := range s.screens {
		if screen.Active {
			active = append(active, screen)
		}
	}
	return active, nil
}

// Update updates an existing screen, preserving CreatedAt and refreshing
// UpdatedAt.
func (s *InMemoryScreenStore) Update(screen *Screen) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.screens[screen.ID]
	if !exists {
		return fmt.Errorf("screen with ID %s not found", screen.ID)
	}

	screen.CreatedAt = existing.CreatedAt
	screen.UpdatedAt = time.Now()
	s.screens[screen.ID] = screen
	return nil
}

// Delete removes a screen from the store
func (s *InMemoryScreenStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.screens[id]; !exists {
		return fmt.Errorf("screen with ID %s not found", id)
	}

	delete(s.screens, id)
	return nil
}
