package contrast

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresScreenStore implements ScreenStore backed by PostgreSQL
type PostgresScreenStore struct {
	db        *sql.DB
	projectID string
}

// NewPostgresScreenStore creates a new PostgreSQL-backed ScreenStore for a
// specific project
func NewPostgresScreenStore(db *sql.DB, projectID string) *PostgresScreenStore {
	return &PostgresScreenStore{
		db:        db,
		projectID: projectID,
	}
}

// Add inserts a new screen into the database
func (s *PostgresScreenStore) Add(screen *Screen) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM screens WHERE id = $1 AND project_id = $2)
	`, screen.ID, s.projectID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check screen existence: %w", err)
	}
	if exists {
		return fmt.Errorf("screen with ID %s already exists", screen.ID)
	}

	_, err = s.db.Exec(`
		INSERT INTO screens (id, project_id, name, expression, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, screen.ID, s.projectID, screen.Name, screen.Expression, screen.Active,
		screen.CreatedAt, screen.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert screen: %w", err)
	}

	return nil
}

// Get retrieves a screen by ID
func (s *PostgresScreenStore) Get(id string) (*Screen, error) {
	var screen Screen
	err := s.db.QueryRow(`
		SELECT id, name, expression, active, created_at, updated_at
		FROM screens
		WHERE id = $1 AND project_id = $2
	`, id, s.projectID).Scan(
		&screen.ID,
		&screen.Name,
		&screen.Expression,
		&screen.Active,
		&screen.CreatedAt,
		&screen.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("screen %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get screen: %w", err)
	}

	return &screen, nil
}

// ListActive returns all active screens for the project
func (s *PostgresScreenStore) ListActive() ([]*Screen, error) {
	rows, err := s.db.Query(`
		SELECT id, name, expression, active, created_at, updated_at
		FROM screens
		WHERE project_id = $1 AND active = true
		ORDER BY created_at ASC
	`, s.projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active screens: %w", err)
	}
	defer rows.Close()

	var screens []*Screen
	for rows.Next() {
		var sc Screen
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Expression, &sc.Active,
			&sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan screen: %w", err)
		}
		screens = append(screens, &sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating screens: %w", err)
	}

	return screens, nil
}

// Update modifies an existing screen
func (s *PostgresScreenStore) Update(screen *Screen) error {
	if _, err := s.Get(screen.ID); err != nil {
		return err
	}

	screen.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE screens
		SET name = $1, expression = $2, active = $3, updated_at = $4
		WHERE id = $5 AND project_id = $6
	`, screen.Name, screen.Expression, screen.Active, screen.UpdatedAt, screen.ID, s.projectID)

	if err != nil {
		return fmt.Errorf("failed to update screen: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("screen %s not found", screen.ID)
	}

	return nil
}

// Delete removes a screen from the database
func (s *PostgresScreenStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM screens
		WHERE id = $1 AND project_id = $2
	`, id, s.projectID)

	if err != nil {
		return fmt.Errorf("failed to delete screen: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("screen %s not found", id)
	}

	return nil
}
