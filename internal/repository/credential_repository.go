package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/locvowork/task_reconciler/internal/domain"
)

const credentialSchema = `CREATE TABLE IF NOT EXISTS user_credentials (
	user_id         TEXT PRIMARY KEY,
	access_token    TEXT NOT NULL DEFAULT '',
	refresh_token   TEXT NOT NULL DEFAULT '',
	token_type      TEXT NOT NULL DEFAULT '',
	expiry          TIMESTAMPTZ,
	sync_disabled   BOOLEAN NOT NULL DEFAULT FALSE,
	disabled_reason TEXT NOT NULL DEFAULT '',
	updated_at      TIMESTAMPTZ DEFAULT NOW()
)`

// CredentialRepository is the Postgres-backed domain.CredentialStore.
type CredentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) GetCredential(ctx context.Context, userID string) (*domain.Credential, error) {
	var (
		c      domain.Credential
		expiry sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, access_token, refresh_token, token_type, expiry, sync_disabled, disabled_reason, updated_at
		FROM user_credentials WHERE user_id = $1`, userID).
		Scan(&c.UserID, &c.AccessToken, &c.RefreshToken, &c.TokenType, &expiry, &c.SyncDisabled, &c.DisabledReason, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential for %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if expiry.Valid {
		c.Expiry = expiry.Time
	}
	return &c, nil
}

// SaveCredential upserts the token fields and re-enables sync.
func (r *CredentialRepository) SaveCredential(ctx context.Context, c *domain.Credential) error {
	var expiry sql.NullTime
	if !c.Expiry.IsZero() {
		expiry = sql.NullTime{Time: c.Expiry, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_credentials (user_id, access_token, refresh_token, token_type, expiry, sync_disabled, disabled_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, '', NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN user_credentials.refresh_token ELSE EXCLUDED.refresh_token END,
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			sync_disabled = FALSE,
			disabled_reason = '',
			updated_at = NOW()`,
		c.UserID, c.AccessToken, c.RefreshToken, c.TokenType, expiry)
	if err != nil {
		return fmt.Errorf("save credential: %w", translate(err))
	}
	return nil
}

func (r *CredentialRepository) DisableSync(ctx context.Context, userID, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_credentials SET sync_disabled = TRUE, disabled_reason = $2, updated_at = NOW()
		WHERE user_id = $1`, userID, reason)
	if err != nil {
		return fmt.Errorf("disable sync: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("credential for %s: %w", userID, domain.ErrNotFound)
	}
	return nil
}
