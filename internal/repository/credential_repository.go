package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
)

// CredentialRepository stores per-merchant provider credentials. Secrets are
// encrypted at rest by the database layer (pgcrypto), opaque to this service.
type CredentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS merchant_credentials (
			merchant_id VARCHAR(64) PRIMARY KEY,
			terminal_id VARCHAR(64) NOT NULL,
			username VARCHAR(255) NOT NULL,
			secret TEXT NOT NULL,
			api_base_url VARCHAR(255) NOT NULL,
			auth_base_url VARCHAR(255) NOT NULL,
			disabled BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *CredentialRepository) ForMerchant(ctx context.Context, merchantID string) (*models.Credential, error) {
	var cred models.Credential
	err := r.db.QueryRowContext(ctx, `
		SELECT merchant_id, terminal_id, username, secret, api_base_url, auth_base_url, disabled
		FROM merchant_credentials WHERE merchant_id = $1
	`, merchantID).Scan(
		&cred.MerchantID, &cred.TerminalID, &cred.Username,
		&cred.Secret, &cred.APIBaseURL, &cred.AuthBaseURL, &cred.Disabled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// Disable soft-disables a credential set. Rows are never deleted while an
// invoice may still reference the terminal.
func (r *CredentialRepository) Disable(ctx context.Context, merchantID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE merchant_credentials SET disabled = TRUE, updated_at = NOW()
		WHERE merchant_id = $1
	`, merchantID)
	return err
}
