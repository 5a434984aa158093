package contrast

import (
	"fmt"
	"sync"
	"time"
)

// SummaryStore manages fitted-model summary persistence for one project.
// Summaries are write-once: there is no Update because the comparator's
// contract is that a stored summary never changes.
type SummaryStore interface {
	// Add a new model summary
	Add(sum *ModelSummary) error

	// Get a summary by model ID
	Get(id string) (*ModelSummary, error)

	// List all summaries for the project
	List() ([]*ModelSummary, error)

	// Delete a summary
	Delete(id string) error
}

// InMemorySummaryStore implements SummaryStore using an in-memory map.
// Thread-safe for concurrent access.
type InMemorySummaryStore struct {
	summaries map[string]*ModelSummary
	mu        sync.RWMutex
}

// NewInMemorySummaryStore creates a new in-memory summary store
func NewInMemorySummaryStore() *InMemorySummaryStore {
	return &InMemorySummaryStore{
		summaries: make(map[string]*ModelSummary),
	}
}

// Add stores a new summary, enforcing unique model IDs.
func (s *InMemorySummaryStore) Add(sum *ModelSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.summaries[sum.ID]; exists {
		return fmt.Errorf("model with ID %s already exists", sum.ID)
	}

	now := time.Now()
	sum.CreatedAt = now
	sum.UpdatedAt = now
	s.summaries[sum.ID] = sum
	return nil
}

// Get retrieves a summary by model ID
func (s *InMemorySummaryStore) Get(id string) (*ModelSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, exists := s.summaries[id]
	if !exists {
		return nil, fmt.Errorf("model with ID %s not found", id)
	}
	return sum, nil
}

// List returns all stored summaries
func (s *InMemorySummaryStore) List() ([]*ModelSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*ModelSummary, 0, len(s.summaries))
	for _, sum := range s.summaries {
		all = append(all, sum)
	}
	return all, nil
}

// Delete removes a summary from the store
func (s *InMemorySummaryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.summaries[id]; !exists {
		return fmt.Errorf("model with ID %s not found", id)
	}

	delete(s.summaries, id)
	return nil
}
