package storage

import (
	"sort"
	"strings"
	"sync"
	"time"

	"vietrank-backend/models"
)

// MemoryStore is the in-memory Store used for development and tests.
// Sufficient for a single process; the Postgres twin carries production.
type MemoryStore struct {
	mu sync.RWMutex

	projects      map[string]*models.Project
	slugToAsset   map[string]string
	assetToSlug   map[string]string
	verifications map[string]*models.VerificationRecord
	auctions      map[string]*models.SponsoredAuction
	bids          map[string]*models.SponsoredBid
	watchlists    map[string]map[string]time.Time // address -> slug -> added at
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:      make(map[string]*models.Project),
		slugToAsset:   make(map[string]string),
		assetToSlug:   make(map[string]string),
		verifications: make(map[string]*models.VerificationRecord),
		auctions:      make(map[string]*models.SponsoredAuction),
		bids:          make(map[string]*models.SponsoredBid),
		watchlists:    make(map[string]map[string]time.Time),
	}
}

func (s *MemoryStore) CreateProject(p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.Slug]; ok {
		return ErrDuplicate
	}
	cp := *p
	s.projects[p.Slug] = &cp
	return nil
}

func (s *MemoryStore) GetProject(slug string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[slug]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListProjects() ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier.Rank() != out[j].Tier.Rank() {
			return out[i].Tier.Rank() < out[j].Tier.Rank()
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Slug < out[j].Slug
	})
	return out, nil
}

func (s *MemoryStore) SetProjectSponsorship(slug string, sponsored bool, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[slug]
	if !ok {
		return ErrNotFound
	}
	p.Sponsored = sponsored
	if expiresAt != nil {
		t := *expiresAt
		p.SponsorExpiresAt = &t
	} else {
		p.SponsorExpiresAt = nil
	}
	return nil
}

func (s *MemoryStore) PutAssetID(slug, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	assetID = strings.ToLower(assetID)
	s.slugToAsset[slug] = assetID
	s.assetToSlug[assetID] = slug
	return nil
}

func (s *MemoryStore) SlugForAssetID(assetID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slug, ok := s.assetToSlug[strings.ToLower(assetID)]
	if !ok {
		return "", ErrNotFound
	}
	return slug, nil
}

func (s *MemoryStore) PutVerificationRecord(rec *models.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.AssetID = strings.ToLower(cp.AssetID)
	s.verifications[cp.AssetID] = &cp
	return nil
}

func (s *MemoryStore) GetVerificationRecord(assetID string) (*models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.verifications[strings.ToLower(assetID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) VerificationCounts() (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.verifications)
	active := 0
	now := time.Now()
	for _, rec := range s.verifications {
		if rec.Active && (rec.ExpiresAt == nil || now.Before(*rec.ExpiresAt)) {
			active++
		}
	}
	return total, active, nil
}

func (s *MemoryStore) CreateAuction(a *models.SponsoredAuction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auctions[a.ID]; ok {
		return ErrDuplicate
	}
	cp := *a
	s.auctions[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAuction(id string) (*models.SponsoredAuction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAuctions() ([]models.SponsoredAuction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SponsoredAuction, 0, len(s.auctions))
	for _, a := range s.auctions {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

func (s *MemoryStore) SetAuctionStatus(id string, status models.AuctionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

func (s *MemoryStore) SetAuctionWinner(id string, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return ErrNotFound
	}
	a.WinningProjectID = projectID
	return nil
}

func (s *MemoryStore) CreateBid(b *models.SponsoredBid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bids[b.ID]; ok {
		return ErrDuplicate
	}
	cp := *b
	s.bids[b.ID] = &cp
	return nil
}

func (s *MemoryStore) BidsByAuction(auctionID string) ([]models.SponsoredBid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SponsoredBid
	for _, b := range s.bids {
		if b.AuctionID == auctionID {
			out = append(out, *b)
		}
	}
	sortBidsByAmountDesc(out)
	return out, nil
}

func (s *MemoryStore) BidsBySession(sessionID string) ([]models.SponsoredBid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SponsoredBid
	for _, b := range s.bids {
		if b.CheckoutSessionID == sessionID {
			out = append(out, *b)
		}
	}
	return out, nil
}

// ConfirmBidsBySession promotes PENDING bids of the session to CONFIRMED and
// records the transaction id. Bids already in a terminal state are left as
// they are, which makes replayed webhook deliveries no-ops. Returns every bid
// of the session in its post-update state plus the number of rows that
// actually transitioned.
func (s *MemoryStore) ConfirmBidsBySession(sessionID, transactionID string, at time.Time) ([]models.SponsoredBid, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SponsoredBid
	transitioned := 0
	for _, b := range s.bids {
		if b.CheckoutSessionID != sessionID {
			continue
		}
		if b.Status == models.BidPending {
			b.Status = models.BidConfirmed
			b.TransactionID = transactionID
			t := at
			b.ConfirmedAt = &t
			transitioned++
		}
		out = append(out, *b)
	}
	return out, transitioned, nil
}

func (s *MemoryStore) ExpireBidsBySession(sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bids {
		if b.CheckoutSessionID == sessionID && b.Status == models.BidPending {
			b.Status = models.BidExpired
			n++
		}
	}
	return n, nil
}

// FailBid marks PENDING bids as FAILED, matching by recorded transaction id
// first and falling back to the checkout session id (a failed payment may
// arrive before any transaction id was recorded on the bid).
func (s *MemoryStore) FailBid(transactionID, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bids {
		matched := (transactionID != "" && b.TransactionID == transactionID) ||
			(sessionID != "" && b.CheckoutSessionID == sessionID)
		if matched && b.Status == models.BidPending {
			b.Status = models.BidFailed
			if transactionID != "" {
				b.TransactionID = transactionID
			}
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ConfirmedBidsByAuction(auctionID string) ([]models.SponsoredBid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SponsoredBid
	for _, b := range s.bids {
		if b.AuctionID == auctionID && b.Status == models.BidConfirmed {
			out = append(out, *b)
		}
	}
	sortBidsByAmountDesc(out)
	return out, nil
}

func (s *MemoryStore) AddWatchlistEntry(address, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	address = strings.ToLower(address)
	entries, ok := s.watchlists[address]
	if !ok {
		entries = make(map[string]time.Time)
		s.watchlists[address] = entries
	}
	if _, ok := entries[slug]; ok {
		return ErrDuplicate
	}
	entries[slug] = time.Now()
	return nil
}

func (s *MemoryStore) RemoveWatchlistEntry(address, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.watchlists[strings.ToLower(address)]
	if !ok {
		return ErrNotFound
	}
	if _, ok := entries[slug]; !ok {
		return ErrNotFound
	}
	delete(entries, slug)
	return nil
}

func (s *MemoryStore) ListWatchlist(address string) ([]models.WatchlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	address = strings.ToLower(address)
	var out []models.WatchlistEntry
	for slug, at := range s.watchlists[address] {
		out = append(out, models.WatchlistEntry{Address: address, ProjectSlug: slug, CreatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// sortBidsByAmountDesc orders highest first; equal amounts put the most
// recently confirmed first so listings match the winner election policy.
func sortBidsByAmountDesc(bids []models.SponsoredBid) {
	sort.Slice(bids, func(i, j int) bool {
		if bids[i].Amount != bids[j].Amount {
			return bids[i].Amount > bids[j].Amount
		}
		ti, tj := bids[i].CreatedAt, bids[j].CreatedAt
		if bids[i].ConfirmedAt != nil {
			ti = *bids[i].ConfirmedAt
		}
		if bids[j].ConfirmedAt != nil {
			tj = *bids[j].ConfirmedAt
		}
		return ti.After(tj)
	})
}
