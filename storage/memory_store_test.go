package storage

import (
	"errors"
	"testing"
	"time"

	"vietrank-backend/models"
)

func newTestProject(slug string, tier models.Tier, score float64) *models.Project {
	return &models.Project{
		Slug:      slug,
		Name:      "Test " + slug,
		Tier:      tier,
		Score:     score,
		CreatedAt: time.Now(),
	}
}

func TestProjectCRUD(t *testing.T) {
	s := NewMemoryStore()

	if err := s.CreateProject(newTestProject("vinhomes-grand-park", models.TierS, 88)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateProject(newTestProject("vinhomes-grand-park", models.TierA, 70)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate slug should fail, got %v", err)
	}

	p, err := s.GetProject("vinhomes-grand-park")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Tier != models.TierS {
		t.Fatalf("duplicate create overwrote the original row")
	}

	if _, err := s.GetProject("khong-ton-tai"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListProjectsOrderedByTierThenScore(t *testing.T) {
	s := NewMemoryStore()
	s.CreateProject(newTestProject("b-project", models.TierA, 60))
	s.CreateProject(newTestProject("a-project", models.TierSSS, 95))
	s.CreateProject(newTestProject("c-project", models.TierA, 80))

	out, err := s.ListProjects()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"a-project", "c-project", "b-project"}
	for i, slug := range want {
		if out[i].Slug != slug {
			t.Fatalf("position %d: got %s, want %s", i, out[i].Slug, slug)
		}
	}
}

func TestSetProjectSponsorship(t *testing.T) {
	s := NewMemoryStore()
	s.CreateProject(newTestProject("masteri-thao-dien", models.TierS, 85))

	until := time.Now().Add(48 * time.Hour)
	if err := s.SetProjectSponsorship("masteri-thao-dien", true, &until); err != nil {
		t.Fatalf("set sponsorship: %v", err)
	}
	p, _ := s.GetProject("masteri-thao-dien")
	if !p.Sponsored || p.SponsorExpiresAt == nil {
		t.Fatalf("sponsorship not applied: %+v", p)
	}

	if err := s.SetProjectSponsorship("missing", true, &until); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAssetIDMappingIsCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	if err := s.PutAssetID("eco-green-saigon", "0xABCDEF0123"); err != nil {
		t.Fatalf("put: %v", err)
	}
	slug, err := s.SlugForAssetID("0xabcdef0123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if slug != "eco-green-saigon" {
		t.Fatalf("got %q", slug)
	}
}

func seedAuctionWithBid(t *testing.T, s *MemoryStore, sessionID string) *models.SponsoredBid {
	t.Helper()
	a := &models.SponsoredAuction{
		ID:        "auc-1",
		SlotName:  "homepage-hero",
		MinBid:    50_000_000,
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
		Status:    models.AuctionActive,
		CreatedAt: time.Now(),
	}
	if err := s.CreateAuction(a); err != nil && !errors.Is(err, ErrDuplicate) {
		t.Fatalf("create auction: %v", err)
	}
	b := &models.SponsoredBid{
		ID:                "bid-" + sessionID,
		AuctionID:         a.ID,
		ProjectID:         "vinhomes-grand-park",
		Amount:            51_000_000,
		Status:            models.BidPending,
		CheckoutSessionID: sessionID,
		CreatedAt:         time.Now(),
	}
	if err := s.CreateBid(b); err != nil {
		t.Fatalf("create bid: %v", err)
	}
	return b
}

func TestConfirmBidsBySessionIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	seedAuctionWithBid(t, s, "sess-1")

	first, n, err := s.ConfirmBidsBySession("sess-1", "txn-1", time.Now())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if n != 1 {
		t.Fatalf("first confirm transitioned %d rows, want 1", n)
	}
	if len(first) != 1 || first[0].Status != models.BidConfirmed || first[0].TransactionID != "txn-1" {
		t.Fatalf("unexpected first confirm result: %+v", first)
	}
	confirmedAt := *first[0].ConfirmedAt

	// Replay with a different transaction id must not touch the row.
	second, n, err := s.ConfirmBidsBySession("sess-1", "txn-2", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("replay confirm: %v", err)
	}
	if n != 0 {
		t.Fatalf("replay transitioned %d rows, want 0", n)
	}
	if second[0].TransactionID != "txn-1" || !second[0].ConfirmedAt.Equal(confirmedAt) {
		t.Fatalf("replay mutated a confirmed bid: %+v", second[0])
	}
}

func TestExpireLeavesConfirmedBidsAlone(t *testing.T) {
	s := NewMemoryStore()
	seedAuctionWithBid(t, s, "sess-2")

	if _, _, err := s.ConfirmBidsBySession("sess-2", "txn-9", time.Now()); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	n, err := s.ExpireBidsBySession("sess-2")
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 0 {
		t.Fatalf("expire touched %d confirmed bids", n)
	}
}

func TestFailBidMatchesByTransactionThenSession(t *testing.T) {
	s := NewMemoryStore()
	seedAuctionWithBid(t, s, "sess-3")

	// No transaction id recorded yet, so the session fallback applies.
	n, err := s.FailBid("txn-unknown", "sess-3")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 failed bid, got %d", n)
	}
	bids, _ := s.BidsBySession("sess-3")
	if bids[0].Status != models.BidFailed {
		t.Fatalf("bid not failed: %+v", bids[0])
	}
}

func TestConfirmedBidsByAuctionFiltersAndSorts(t *testing.T) {
	s := NewMemoryStore()
	seedAuctionWithBid(t, s, "sess-a")
	seedAuctionWithBid(t, s, "sess-b")

	s.ConfirmBidsBySession("sess-a", "t1", time.Now())
	confirmed, err := s.ConfirmedBidsByAuction("auc-1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(confirmed) != 1 {
		t.Fatalf("pending bid leaked into confirmed set: %d", len(confirmed))
	}
	if confirmed[0].CheckoutSessionID != "sess-a" {
		t.Fatalf("wrong bid: %+v", confirmed[0])
	}
}

func TestWatchlistDuplicateAndRemoval(t *testing.T) {
	s := NewMemoryStore()
	addr := "0xAbC0000000000000000000000000000000000001"

	if err := s.AddWatchlistEntry(addr, "eco-green-saigon"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddWatchlistEntry(addr, "eco-green-saigon"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	entries, err := s.ListWatchlist("0xabc0000000000000000000000000000000000001")
	if err != nil || len(entries) != 1 {
		t.Fatalf("list: %v, %d entries", err, len(entries))
	}

	if err := s.RemoveWatchlistEntry(addr, "eco-green-saigon"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveWatchlistEntry(addr, "eco-green-saigon"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
