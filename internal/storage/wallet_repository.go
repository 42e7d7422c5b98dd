package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vestival/algorand-tracker/internal/models"
)

// WalletRepository stores the wallets linked to each user
type WalletRepository struct {
	db *PostgresDB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *PostgresDB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Link upserts a linked wallet and writes the audit entry in the same transaction.
// Relinking keeps the original verification time and updates the label.
func (r *WalletRepository) Link(ctx context.Context, wallet *models.LinkedWallet, audit *models.AuditLog) error {
	now := time.Now().UTC()
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = now
	}
	if wallet.VerifiedAt == nil {
		wallet.VerifiedAt = &now
	}

	query := `
		INSERT INTO linked_wallets (user_id, address, label, verified_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, address) DO UPDATE SET
			label = EXCLUDED.label,
			verified_at = COALESCE(linked_wallets.verified_at, EXCLUDED.verified_at)
	`

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query,
			wallet.UserID,
			wallet.Address,
			wallet.Label,
			wallet.VerifiedAt,
			wallet.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to link wallet: %w", err)
		}
		if audit == nil {
			return nil
		}
		return insertAudit(ctx, tx, audit)
	})
}

// ListByUser returns every wallet linked to a user, newest first
func (r *WalletRepository) ListByUser(ctx context.Context, userID string) ([]*models.LinkedWallet, error) {
	return r.list(ctx, `
		SELECT user_id, address, label, verified_at, created_at
		FROM linked_wallets
		WHERE user_id = $1
		ORDER BY created_at DESC, address ASC
	`, userID)
}

// ListVerified returns the user's wallets with a verification time
func (r *WalletRepository) ListVerified(ctx context.Context, userID string) ([]*models.LinkedWallet, error) {
	return r.list(ctx, `
		SELECT user_id, address, label, verified_at, created_at
		FROM linked_wallets
		WHERE user_id = $1 AND verified_at IS NOT NULL
		ORDER BY created_at ASC, address ASC
	`, userID)
}

func (r *WalletRepository) list(ctx context.Context, query string, userID string) ([]*models.LinkedWallet, error) {
	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*models.LinkedWallet
	for rows.Next() {
		var w models.LinkedWallet
		if err := rows.Scan(&w.UserID, &w.Address, &w.Label, &w.VerifiedAt, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet row: %w", err)
		}
		wallets = append(wallets, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}
	return wallets, nil
}
