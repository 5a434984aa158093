package multiprojectengine

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/modelkit/contrast/contrast"
)

// ProjectEngine wraps a contrast.Engine with project-specific metadata
type ProjectEngine struct {
	ProjectID string
	Engine    *contrast.Engine
}

// MultiProjectEngineManager manages screens engines for all projects
type MultiProjectEngineManager struct {
	engines map[string]*ProjectEngine
	db      *sql.DB
	mu      sync.RWMutex
}

// NewMultiProjectEngineManager creates a new manager instance
func NewMultiProjectEngineManager(db *sql.DB) *MultiProjectEngineManager {
	return &MultiProjectEngineManager{
		engines: make(map[string]*ProjectEngine),
		db:      db,
	}
}

// LoadAllProjects loads every project from the database and initializes its
// engine, compiling the project's active screens.
func (m *MultiProjectEngineManager) LoadAllProjects() error {
	rows, err := m.db.Query(`SELECT id FROM projects`)
	if err != nil {
		return fmt.Errorf("failed to fetch projects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var projectID string
		if err := rows.Scan(&projectID); err != nil {
			return fmt.Errorf("failed to scan project row: %w", err)
		}

		if err := m.CreateProject(projectID); err != nil {
			return fmt.Errorf("failed to initialize project %s: %w", projectID, err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating project rows: %w", err)
	}

	return nil
}

// CreateProject creates a new engine for the given project, backed by the
// project's screen store.
func (m *MultiProjectEngineManager) CreateProject(projectID string) error {
	store := contrast.NewPostgresScreenStore(m.db, projectID)

	engine, err := contrast.NewEngine(store)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	m.mu.Lock()
	m.engines[projectID] = &ProjectEngine{
		ProjectID: projectID,
		Engine:    engine,
	}
	m.mu.Unlock()

	return nil
}

// GetEngine retrieves the engine for a specific project
func (m *MultiProjectEngineManager) GetEngine(projectID string) (*contrast.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pe, exists := m.engines[projectID]
	if !exists {
		return nil, fmt.Errorf("project %s not found", projectID)
	}

	return pe.Engine, nil
}

// ReloadProject rebuilds a project's engine from the store and atomically
// swaps it in. Zero-downtime: requests keep hitting the old engine until
// the new one has compiled every active screen.
func (m *MultiProjectEngineManager) ReloadProject(projectID string) error {
	m.mu.RLock()
	_, exists := m.engines[projectID]
	m.mu.RUnlock()

	if !exists {
		return m.CreateProject(projectID)
	}

	store := contrast.NewPostgresScreenStore(m.db, projectID)
	newEngine, err := contrast.NewEngine(store)
	if err != nil {
		return fmt.Errorf("failed to create new engine: %w", err)
	}

	m.mu.Lock()
	m.engines[projectID] = &ProjectEngine{
		ProjectID: projectID,
		Engine:    newEngine,
	}
	m.mu.Unlock()

	return nil
}

// ListProjects returns all loaded project IDs
func (m *MultiProjectEngineManager) ListProjects() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	projects := make([]string, 0, len(m.engines))
	for projectID := range m.engines {
		projects = append(projects, projectID)
	}
	return projects
}

// DeleteProject removes a project's engine from the cache.
// Note: This does not delete the project from the database.
func (m *MultiProjectEngineManager) DeleteProject(projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[projectID]; !exists {
		return fmt.Errorf("project %s not found", projectID)
	}

	delete(m.engines, projectID)
	return nil
}
