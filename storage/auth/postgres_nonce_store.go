package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"vietrank-backend/models"
)

// PostgresNonceStore persists nonces so logins survive process restarts.
// It shares the service's *sql.DB rather than opening its own pool.
type PostgresNonceStore struct {
	db     *sql.DB
	ttl    time.Duration
	issued uint64
}

// NewPostgresNonceStore ensures the auth_nonces table and returns the store.
func NewPostgresNonceStore(db *sql.DB, ttl time.Duration) (*PostgresNonceStore, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	schema := `
CREATE TABLE IF NOT EXISTS auth_nonces (
    nonce        TEXT PRIMARY KEY,
    address_hint TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL,
    consumed     BOOLEAN NOT NULL DEFAULT FALSE
);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to ensure auth_nonces table: %w", err)
	}
	return &PostgresNonceStore{db: db, ttl: ttl}, nil
}

func (s *PostgresNonceStore) Issue(addressHint string) (*models.AuthNonce, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	n := &models.AuthNonce{
		Nonce:       nonce,
		AddressHint: addressHint,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	_, err = s.db.Exec(`
INSERT INTO auth_nonces (nonce, address_hint, created_at, expires_at, consumed)
VALUES ($1, $2, $3, $4, FALSE)`,
		n.Nonce, n.AddressHint, n.CreatedAt, n.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert nonce: %w", err)
	}

	if atomic.AddUint64(&s.issued, 1)%cleanupEvery == 0 {
		s.CleanupExpired()
	}
	return n, nil
}

func (s *PostgresNonceStore) Validate(nonce string) error {
	var ok bool
	err := s.db.QueryRow(`
SELECT NOT consumed AND expires_at > now() FROM auth_nonces WHERE nonce = $1`, nonce).Scan(&ok)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNonceInvalid
	}
	if err != nil {
		return fmt.Errorf("failed to validate nonce: %w", err)
	}
	if !ok {
		return ErrNonceInvalid
	}
	return nil
}

// Consume is a guarded UPDATE; the WHERE clause makes the consume-if-valid
// check atomic against concurrent logins with the same nonce.
func (s *PostgresNonceStore) Consume(nonce string) error {
	res, err := s.db.Exec(`
UPDATE auth_nonces SET consumed = TRUE
WHERE nonce = $1 AND NOT consumed AND expires_at > now()`, nonce)
	if err != nil {
		return fmt.Errorf("failed to consume nonce: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNonceInvalid
	}
	return nil
}

func (s *PostgresNonceStore) CleanupExpired() (int, error) {
	res, err := s.db.Exec(`DELETE FROM auth_nonces WHERE consumed OR expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up nonces: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
