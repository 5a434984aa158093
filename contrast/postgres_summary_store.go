package contrast

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresSummaryStore implements SummaryStore backed by PostgreSQL. A
// summary spans two tables: the models row and its coefficients rows,
// written in one transaction so a partially-stored summary is never
// visible.
type PostgresSummaryStore struct {
	db        *sql.DB
	projectID string
}

// NewPostgresSummaryStore creates a new PostgreSQL-backed SummaryStore for
// a specific project
func NewPostgresSummaryStore(db *sql.DB, projectID string) *PostgresSummaryStore {
	return &PostgresSummaryStore{
		db:        db,
		projectID: projectID,
	}
}

// Add inserts a model summary and all its coefficients transactionally
func (s *PostgresSummaryStore) Add(sum *ModelSummary) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM models WHERE id = $1 AND project_id = $2)
	`, sum.ID, s.projectID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check model existence: %w", err)
	}
	if exists {
		return fmt.Errorf("model with ID %s already exists", sum.ID)
	}

	now := time.Now()
	sum.CreatedAt = now
	sum.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO models (id, project_id, name, family, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sum.ID, s.projectID, sum.Name, sum.Family, sum.CreatedAt, sum.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert model: %w", err)
	}

	for i, c := range sum.Coefficients {
		_, err = tx.Exec(`
			INSERT INTO coefficients (model_id, name, estimate, std_err, ord)
			VALUES ($1, $2, $3, $4, $5)
		`, sum.ID, c.Name, c.Estimate, c.StdErr, i)
		if err != nil {
			return fmt.Errorf("failed to insert coefficient %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit model: %w", err)
	}

	return nil
}

// Get retrieves a model summary with its coefficient table
func (s *PostgresSummaryStore) Get(id string) (*ModelSummary, error) {
	var sum ModelSummary
	err := s.db.QueryRow(`
		SELECT id, project_id, name, family, created_at, updated_at
		FROM models
		WHERE id = $1 AND project_id = $2
	`, id, s.projectID).Scan(
		&sum.ID,
		&sum.ProjectID,
		&sum.Name,
		&sum.Family,
		&sum.CreatedAt,
		&sum.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("model %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	coeffs, err := s.coefficients(id)
	if err != nil {
		return nil, err
	}
	sum.Coefficients = coeffs

	return &sum, nil
}

// List returns all model summaries for the project, coefficients included
func (s *PostgresSummaryStore) List() ([]*ModelSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, name, family, created_at, updated_at
		FROM models
		WHERE project_id = $1
		ORDER BY created_at ASC
	`, s.projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var summaries []*ModelSummary
	for rows.Next() {
		var sum ModelSummary
		if err := rows.Scan(&sum.ID, &sum.ProjectID, &sum.Name, &sum.Family,
			&sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		summaries = append(summaries, &sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating models: %w", err)
	}

	for _, sum := range summaries {
		coeffs, err := s.coefficients(sum.ID)
		if err != nil {
			return nil, err
		}
		sum.Coefficients = coeffs
	}

	return summaries, nil
}

// Delete removes a model summary; coefficients go with it via ON DELETE
// CASCADE.
func (s *PostgresSummaryStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM models
		WHERE id = $1 AND project_id = $2
	`, id, s.projectID)

	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("model %s not found", id)
	}

	return nil
}

// coefficients loads the coefficient table for one model in stored order
func (s *PostgresSummaryStore) coefficients(modelID string) ([]Coefficient, error) {
	rows, err := s.db.Query(`
		SELECT name, estimate, std_err
		FROM coefficients
		WHERE model_id = $1
		ORDER BY ord ASC
	`, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list coefficients: %w", err)
	}
	defer rows.Close()

	var coeffs []Coefficient
	for rows.Next() {
		var c Coefficient
		if err := rows.Scan(&c.Name, &c.Estimate, &c.StdErr); err != nil {
			return nil, fmt.Errorf("failed to scan coefficient: %w", err)
		}
		coeffs = append(coeffs, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coefficients: %w", err)
	}

	return coeffs, nil
}
