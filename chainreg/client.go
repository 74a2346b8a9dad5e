package chainreg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Record is the attestation registry's on-chain view of one asset. When the
// indexer omits tier/score the zero values are filled from the database row
// by the reconciler.
type Record struct {
	AssetID   common.Hash `json:"asset_id"`
	Active    bool        `json:"active"`
	Tier      string      `json:"tier,omitempty"`
	Score     float64     `json:"score,omitempty"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the record is active and not expired at the given
// instant. This is the chain-authoritative visibility gate.
func (r *Record) ActiveAt(now time.Time) bool {
	if !r.Active {
		return false
	}
	if r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
		return false
	}
	return true
}

// RegistryReader is the read-only oracle over the attestation registry
// contract. Implementations must never be load-bearing for availability:
// callers fall back to the database view on error.
type RegistryReader interface {
	GetRecord(ctx context.Context, assetID common.Hash) (*Record, error)
	Head(ctx context.Context) (uint64, error)
}

// HTTPRegistryClient reads the registry through its indexer REST API.
type HTTPRegistryClient struct {
	baseURL  string
	contract string
	client   *http.Client
}

// NewHTTPRegistryClient builds a registry reader against an indexer endpoint.
func NewHTTPRegistryClient(baseURL, contractAddress string) *HTTPRegistryClient {
	return &HTTPRegistryClient{
		baseURL:  baseURL,
		contract: contractAddress,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type registryRecordResponse struct {
	Active    bool    `json:"active"`
	Tier      string  `json:"tier"`
	Score     float64 `json:"score"`
	ExpiresAt int64   `json:"expires_at"` // unix seconds, 0 = no expiry
}

// GetRecord fetches one attestation by asset id. A 404 from the indexer means
// the asset was never attested on chain; that is (nil, nil), not an error.
func (c *HTTPRegistryClient) GetRecord(ctx context.Context, assetID common.Hash) (*Record, error) {
	url := fmt.Sprintf("%s/registry/%s/attestations/%s", c.baseURL, c.contract, assetID.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry read failed: %s", resp.Status)
	}
	var body registryRecordResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	rec := &Record{
		AssetID: assetID,
		Active:  body.Active,
		Tier:    body.Tier,
		Score:   body.Score,
	}
	if body.ExpiresAt > 0 {
		t := time.Unix(body.ExpiresAt, 0).UTC()
		rec.ExpiresAt = &t
	}
	return rec, nil
}

type headResponse struct {
	Height uint64 `json:"height"`
}

// Head returns the indexer's latest synced block height.
func (c *HTTPRegistryClient) Head(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/head", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("head read failed: %s", resp.Status)
	}
	var body headResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.Height, nil
}

// MockRegistry is an in-memory RegistryReader for tests and mock mode.
type MockRegistry struct {
	mu      sync.RWMutex
	records map[common.Hash]*Record
	head    uint64

	// Fail, when set, makes every read return an error. Used to exercise the
	// database-fallback path.
	Fail bool
}

// NewMockRegistry builds an empty mock registry.
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{records: make(map[common.Hash]*Record)}
}

// Put seeds a record.
func (m *MockRegistry) Put(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.AssetID] = &rec
	m.head++
}

func (m *MockRegistry) GetRecord(_ context.Context, assetID common.Hash) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Fail {
		return nil, fmt.Errorf("mock registry unavailable")
	}
	rec, ok := m.records[assetID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MockRegistry) Head(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Fail {
		return 0, fmt.Errorf("mock registry unavailable")
	}
	return m.head, nil
}
