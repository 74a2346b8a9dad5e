package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vietrank-backend/chainreg"
	"vietrank-backend/metrics"
	"vietrank-backend/models"
	"vietrank-backend/storage"
)

// MaxBatchSlugs caps one validity batch. Requests above the cap are rejected
// outright rather than truncated.
const MaxBatchSlugs = 100

// ErrBatchTooLarge is returned when a validity batch exceeds MaxBatchSlugs.
var ErrBatchTooLarge = fmt.Errorf("batch exceeds %d slugs", MaxBatchSlugs)

// AttestationService reconciles the database's verification records with the
// on-chain attestation registry. In mock mode the registry is never consulted
// and the database view is authoritative.
type AttestationService struct {
	store    storage.Store
	registry chainreg.RegistryReader
	mockMode bool
}

// NewAttestationService builds the reconciler. mockMode is fixed at
// construction; flipping it requires a restart.
func NewAttestationService(store storage.Store, registry chainreg.RegistryReader, mockMode bool) *AttestationService {
	return &AttestationService{store: store, registry: registry, mockMode: mockMode}
}

// MockMode reports whether the service runs without a live registry.
func (s *AttestationService) MockMode() bool { return s.mockMode }

// GetBySlug resolves a slug to its unified attestation view. A nil result
// with nil error means no attestation exists in either source.
func (s *AttestationService) GetBySlug(ctx context.Context, slug string) (*models.Attestation, error) {
	if slug == "" {
		return nil, fmt.Errorf("empty slug")
	}
	return s.get(ctx, slug, chainreg.AssetIDForSlug(slug).Hex())
}

// GetByAssetID resolves a canonical asset id. The slug is recovered from the
// mapping table when known.
func (s *AttestationService) GetByAssetID(ctx context.Context, assetIDHex string) (*models.Attestation, error) {
	id, err := chainreg.ParseAssetID(assetIDHex)
	if err != nil {
		return nil, err
	}
	slug, err := s.store.SlugForAssetID(id.Hex())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return s.get(ctx, slug, id.Hex())
}

func (s *AttestationService) get(ctx context.Context, slug, assetIDHex string) (*models.Attestation, error) {
	dbRec, err := s.store.GetVerificationRecord(assetIDHex)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	var att *models.Attestation
	if dbRec != nil {
		att = &models.Attestation{
			Slug:      dbRec.Slug,
			AssetID:   assetIDHex,
			Tier:      dbRec.Tier,
			Score:     dbRec.Score,
			Active:    dbRec.Active && notExpired(dbRec.ExpiresAt, time.Now()),
			ExpiresAt: dbRec.ExpiresAt,
		}
	}

	if s.mockMode || s.registry == nil {
		return att, nil
	}

	id, err := chainreg.ParseAssetID(assetIDHex)
	if err != nil {
		return nil, err
	}
	chainRec, err := s.registry.GetRecord(ctx, id)
	if err != nil {
		// Registry unavailable: degrade to the database view rather than
		// failing the lookup.
		metrics.RegistryReads.WithLabelValues("error").Inc()
		log.Printf("registry read failed for %s, using database view: %v", assetIDHex, err)
		return att, nil
	}
	if chainRec == nil {
		metrics.RegistryReads.WithLabelValues("miss").Inc()
		return att, nil
	}
	metrics.RegistryReads.WithLabelValues("ok").Inc()

	// The chain decides active and expiry; the database fills display fields.
	if att == nil {
		att = &models.Attestation{Slug: slug, AssetID: assetIDHex, Tier: models.Tier(chainRec.Tier), Score: chainRec.Score}
	}
	att.OnChain = true
	att.Active = chainRec.ActiveAt(time.Now())
	att.ExpiresAt = chainRec.ExpiresAt
	return att, nil
}

func notExpired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt == nil || now.Before(*expiresAt)
}

// BatchCheckValidity resolves up to MaxBatchSlugs slugs to a validity flag
// each. Any per-slug failure maps that slug to false; the batch itself fails
// only on malformed input.
func (s *AttestationService) BatchCheckValidity(ctx context.Context, slugs []string) (map[string]bool, error) {
	if len(slugs) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	if len(slugs) > MaxBatchSlugs {
		return nil, ErrBatchTooLarge
	}

	results := make(map[string]bool, len(slugs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, slug := range slugs {
		slug := slug
		g.Go(func() error {
			valid := false
			if slug != "" {
				att, err := s.get(gctx, slug, chainreg.AssetIDForSlug(slug).Hex())
				if err == nil && att != nil {
					valid = att.Active
				}
			}
			mu.Lock()
			results[slug] = valid
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Stats aggregates database counts plus, outside mock mode, the registry's
// synced head. A registry failure leaves the head at zero.
func (s *AttestationService) Stats(ctx context.Context) (*models.RegistryStats, error) {
	total, active, err := s.store.VerificationCounts()
	if err != nil {
		return nil, err
	}
	stats := &models.RegistryStats{TotalRecords: total, ActiveRecords: active}
	if !s.mockMode && s.registry != nil {
		if head, err := s.registry.Head(ctx); err == nil {
			stats.ChainHead = head
		} else {
			log.Printf("registry head read failed: %v", err)
		}
	}
	return stats, nil
}
