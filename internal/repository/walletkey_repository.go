package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/PhmVu/EBN-Besu/internal/models"
)

// WalletKeyRepository manages the key escrow table.
type WalletKeyRepository struct {
	db *sqlx.DB
}

// NewWalletKeyRepository constructs a WalletKeyRepository.
func NewWalletKeyRepository(db *sqlx.DB) *WalletKeyRepository {
	return &WalletKeyRepository{db: db}
}

// Create inserts an escrow entry. user_id is unique; one key per user.
func (r *WalletKeyRepository) Create(ctx context.Context, key *models.WalletKey) error {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO wallet_keys (id, user_id, encrypted_key, disclosed, created_at) VALUES (:id, :user_id, :encrypted_key, :disclosed, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("create wallet key: %w", err)
	}
	return nil
}

// FindByUserID fetches the escrow entry for a user.
func (r *WalletKeyRepository) FindByUserID(ctx context.Context, userID string) (*models.WalletKey, error) {
	const query = `SELECT id, user_id, encrypted_key, disclosed, disclosed_at, created_at FROM wallet_keys WHERE user_id = $1 LIMIT 1`
	var key models.WalletKey
	if err := r.db.GetContext(ctx, &key, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find wallet key: %w", err)
	}
	return &key, nil
}

// MarkDisclosed flips the disclosure flag exactly once. The WHERE clause
// on disclosed makes concurrent reveals race for a single winner; losers
// get false.
func (r *WalletKeyRepository) MarkDisclosed(ctx context.Context, id string, disclosedAt time.Time) (bool, error) {
	const query = `UPDATE wallet_keys SET disclosed = TRUE, disclosed_at = $2 WHERE id = $1 AND disclosed = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, disclosedAt)
	if err != nil {
		return false, fmt.Errorf("mark wallet key disclosed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark wallet key disclosed: %w", err)
	}
	return affected == 1, nil
}
