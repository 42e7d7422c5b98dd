package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vestival/algorand-tracker/internal/models"
)

// SnapshotRepository persists computed portfolio snapshots as opaque JSON documents
type SnapshotRepository struct {
	db *PostgresDB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *PostgresDB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create stores a snapshot, assigning an id when empty
func (r *SnapshotRepository) Create(ctx context.Context, snapshot *models.StoredSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}

	query := `
		INSERT INTO portfolio_snapshots (id, user_id, method, computed_at, data)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		snapshot.ID,
		snapshot.UserID,
		snapshot.Method,
		snapshot.ComputedAt,
		[]byte(snapshot.Data),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the most recent snapshot for a user, or nil when there is none
func (r *SnapshotRepository) GetLatest(ctx context.Context, userID string) (*models.StoredSnapshot, error) {
	query := `
		SELECT id, user_id, method, computed_at, data
		FROM portfolio_snapshots
		WHERE user_id = $1
		ORDER BY computed_at DESC
		LIMIT 1
	`

	var s models.StoredSnapshot
	var data []byte
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&s.ID, &s.UserID, &s.Method, &s.ComputedAt, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	s.Data = data
	return &s, nil
}

// ListRecent returns up to limit snapshots for a user, newest first
func (r *SnapshotRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*models.StoredSnapshot, error) {
	query := `
		SELECT id, user_id, method, computed_at, data
		FROM portfolio_snapshots
		WHERE user_id = $1
		ORDER BY computed_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.StoredSnapshot
	for rows.Next() {
		var s models.StoredSnapshot
		var data []byte
		if err := rows.Scan(&s.ID, &s.UserID, &s.Method, &s.ComputedAt, &data); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		s.Data = data
		snapshots = append(snapshots, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return snapshots, nil
}
