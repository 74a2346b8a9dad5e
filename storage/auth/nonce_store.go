package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"vietrank-backend/models"
)

// ErrNonceInvalid covers every rejection reason: unknown, expired or already
// consumed. Callers must not learn which, so a login attempt cannot distinguish
// a replayed nonce from a stale one.
var ErrNonceInvalid = errors.New("invalid or expired nonce")

// NonceStore issues and redeems single-use wallet login nonces.
type NonceStore interface {
	// Issue creates a fresh nonce bound to nothing but its TTL. The address
	// hint is stored for observability only and is never enforced.
	Issue(addressHint string) (*models.AuthNonce, error)
	// Validate reports whether the nonce exists, is unexpired and unconsumed,
	// without consuming it.
	Validate(nonce string) error
	// Consume atomically retires a valid nonce. A second Consume of the same
	// nonce fails even under concurrent callers.
	Consume(nonce string) error
	// CleanupExpired removes expired and consumed rows, returning how many.
	CleanupExpired() (int, error)
}

// cleanupEvery is the average number of Issue calls between opportunistic
// cleanup sweeps.
const cleanupEvery = 32

// MemoryNonceStore is the in-process NonceStore.
type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]*models.AuthNonce
	ttl    time.Duration
	issued uint64
}

// NewMemoryNonceStore builds a nonce store with the given TTL.
func NewMemoryNonceStore(ttl time.Duration) *MemoryNonceStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryNonceStore{
		nonces: make(map[string]*models.AuthNonce),
		ttl:    ttl,
	}
}

func generateNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *MemoryNonceStore) Issue(addressHint string) (*models.AuthNonce, error) {
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

	s.mu.Lock()
	s.nonces[nonce] = n
	s.issued++
	sweep := s.issued%cleanupEvery == 0
	s.mu.Unlock()

	if sweep {
		s.CleanupExpired()
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryNonceStore) Validate(nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nonces[nonce]
	if !ok || n.Consumed || !time.Now().Before(n.ExpiresAt) {
		return ErrNonceInvalid
	}
	return nil
}

func (s *MemoryNonceStore) Consume(nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nonces[nonce]
	if !ok || n.Consumed || !time.Now().Before(n.ExpiresAt) {
		return ErrNonceInvalid
	}
	n.Consumed = true
	return nil
}

func (s *MemoryNonceStore) CleanupExpired() (int, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, n := range s.nonces {
		if n.Consumed || !now.Before(n.ExpiresAt) {
			delete(s.nonces, key)
			removed++
		}
	}
	return removed, nil
}
