package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"vietrank-backend/metrics"
	"vietrank-backend/models"
	"vietrank-backend/payments"
	"vietrank-backend/storage"
)

// ErrAuctionNotActive is returned for bids against auctions that are pending,
// ended, completed or cancelled.
var ErrAuctionNotActive = errors.New("auction is not active")

// BidTooLowError reports the minimum acceptable next bid alongside the
// current highest so clients can self-correct without a second round trip.
type BidTooLowError struct {
	MinBid     int64
	CurrentBid int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid below minimum: next bid must be at least %d (current highest %d)", e.MinBid, e.CurrentBid)
}

// PlaceBidResult is the outcome of an accepted bid: a PENDING row plus the
// gateway checkout the bidder must complete.
type PlaceBidResult struct {
	Bid         models.SponsoredBid `json:"bid"`
	SessionID   string              `json:"session_id"`
	CheckoutURL string              `json:"checkout_url"`
}

// AuctionService coordinates sponsored-slot auctions, bids and the payment
// webhook transitions that settle them.
type AuctionService struct {
	store       storage.Store
	checkout    payments.CheckoutClient
	increment   int64
	callbackURL string
}

// NewAuctionService builds the coordinator. increment is the step every new
// bid must clear above the current highest.
func NewAuctionService(store storage.Store, checkout payments.CheckoutClient, increment int64, callbackURL string) *AuctionService {
	if increment <= 0 {
		increment = 1_000_000
	}
	return &AuctionService{
		store:       store,
		checkout:    checkout,
		increment:   increment,
		callbackURL: callbackURL,
	}
}

// CreateAuction opens a new slot sale. The stored status reflects the clock
// at creation time; the effective status keeps tracking it afterwards.
func (s *AuctionService) CreateAuction(slotName string, minBid int64, start, end time.Time) (*models.SponsoredAuction, error) {
	if slotName == "" {
		return nil, fmt.Errorf("slot name is required")
	}
	if minBid <= 0 {
		return nil, fmt.Errorf("minimum bid must be positive")
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end time must be after start time")
	}

	now := time.Now()
	status := models.AuctionPending
	if !now.Before(start) && now.Before(end) {
		status = models.AuctionActive
	}
	a := &models.SponsoredAuction{
		ID:        uuid.NewString(),
		SlotName:  slotName,
		MinBid:    minBid,
		StartTime: start,
		EndTime:   end,
		Status:    status,
		CreatedAt: now,
	}
	if err := s.store.CreateAuction(a); err != nil {
		return nil, err
	}
	return a, nil
}

// CancelAuction marks an auction CANCELLED. Completed auctions stay completed.
func (s *AuctionService) CancelAuction(id string) error {
	a, err := s.store.GetAuction(id)
	if err != nil {
		return err
	}
	if a.Status == models.AuctionCompleted {
		return fmt.Errorf("auction %s is already completed", id)
	}
	return s.store.SetAuctionStatus(id, models.AuctionCancelled)
}

// ListAuctions returns all auctions with the clock-derived status resolved.
func (s *AuctionService) ListAuctions() ([]models.SponsoredAuction, error) {
	auctions, err := s.store.ListAuctions()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range auctions {
		auctions[i].Status = auctions[i].EffectiveStatus(now)
	}
	return auctions, nil
}

// GetAuction returns one auction with its effective status.
func (s *AuctionService) GetAuction(id string) (*models.SponsoredAuction, error) {
	a, err := s.store.GetAuction(id)
	if err != nil {
		return nil, err
	}
	a.Status = a.EffectiveStatus(time.Now())
	return a, nil
}

// MinNextBid computes the lowest acceptable bid for an auction: the current
// highest bid still in flight or confirmed (or the floor when there is none)
// plus the increment. Returns the threshold and the current highest.
func (s *AuctionService) MinNextBid(auctionID string) (int64, int64, error) {
	a, err := s.store.GetAuction(auctionID)
	if err != nil {
		return 0, 0, err
	}
	bids, err := s.store.BidsByAuction(auctionID)
	if err != nil {
		return 0, 0, err
	}
	var highest int64
	for _, b := range bids {
		// PENDING bids count toward the floor so two bidders cannot buy the
		// same price level while a checkout is in flight.
		if (b.Status == models.BidPending || b.Status == models.BidConfirmed) && b.Amount > highest {
			highest = b.Amount
		}
	}
	base := a.MinBid
	if highest > base {
		base = highest
	}
	return base + s.increment, highest, nil
}

// PlaceBid validates a bid against the auction state and price floor, opens a
// checkout session, and records the bid as PENDING. The bid confirms only
// when the gateway's webhook arrives.
func (s *AuctionService) PlaceBid(ctx context.Context, auctionID, projectSlug string, amount int64) (*PlaceBidResult, error) {
	a, err := s.store.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if a.EffectiveStatus(time.Now()) != models.AuctionActive {
		return nil, ErrAuctionNotActive
	}

	if _, err := s.store.GetProject(projectSlug); err != nil {
		return nil, err
	}

	minNext, highest, err := s.MinNextBid(auctionID)
	if err != nil {
		return nil, err
	}
	if amount < minNext {
		return nil, &BidTooLowError{MinBid: minNext, CurrentBid: highest}
	}

	session, err := s.checkout.CreateSession(ctx, payments.SessionParams{
		Amount:      amount,
		Description: fmt.Sprintf("Đấu giá vị trí %s", a.SlotName),
		CallbackURL: s.callbackURL,
		Metadata: map[string]string{
			"auction_id": a.ID,
			"project_id": projectSlug,
			"amount":     strconv.FormatInt(amount, 10),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkout session: %w", err)
	}

	bid := &models.SponsoredBid{
		ID:                uuid.NewString(),
		AuctionID:         a.ID,
		ProjectID:         projectSlug,
		Amount:            amount,
		Status:            models.BidPending,
		CheckoutSessionID: session.SessionID,
		CreatedAt:         time.Now(),
	}
	if err := s.store.CreateBid(bid); err != nil {
		return nil, err
	}
	metrics.BidsPlaced.Inc()

	return &PlaceBidResult{
		Bid:         *bid,
		SessionID:   session.SessionID,
		CheckoutURL: session.CheckoutURL,
	}, nil
}

// ListBids returns the auction's confirmed bids enriched with project display
// fields. Bids whose project has been deleted keep their row under a
// placeholder name.
func (s *AuctionService) ListBids(auctionID string) ([]models.BidView, error) {
	if _, err := s.store.GetAuction(auctionID); err != nil {
		return nil, err
	}
	bids, err := s.store.ConfirmedBidsByAuction(auctionID)
	if err != nil {
		return nil, err
	}
	views := make([]models.BidView, 0, len(bids))
	for _, b := range bids {
		view := models.BidView{SponsoredBid: b}
		if p, err := s.store.GetProject(b.ProjectID); err == nil {
			view.ProjectName = p.Name
			view.ProjectTier = p.Tier
		} else {
			view.ProjectName = models.DeletedProjectPlaceholder
		}
		views = append(views, view)
	}
	return views, nil
}

// ApplyCheckoutCompleted settles a paid checkout: PENDING bids of the session
// become CONFIRMED, the auction's winner is re-elected from all confirmed
// bids, and an auction past its end time is finalized.
func (s *AuctionService) ApplyCheckoutCompleted(sessionID, transactionID string, at time.Time) error {
	bids, transitioned, err := s.store.ConfirmBidsBySession(sessionID, transactionID, at)
	if err != nil {
		return err
	}
	if len(bids) == 0 {
		// Unknown session: the gateway may deliver events for checkouts this
		// service never opened. Acknowledge and move on.
		log.Printf("checkout completed for unknown session %s", sessionID)
		return nil
	}
	// Count only rows the store actually promoted; a replayed delivery
	// transitions nothing and must not move the counter.
	metrics.BidsConfirmed.Add(float64(transitioned))

	seen := make(map[string]bool)
	for _, b := range bids {
		if seen[b.AuctionID] {
			continue
		}
		seen[b.AuctionID] = true
		if err := s.settleAuction(b.AuctionID, at); err != nil {
			return err
		}
	}
	return nil
}

// settleAuction re-elects the winner from confirmed bids and, when the
// auction has ended, flips sponsorship and finalizes the status.
func (s *AuctionService) settleAuction(auctionID string, at time.Time) error {
	a, err := s.store.GetAuction(auctionID)
	if err != nil {
		return err
	}
	if a.Status == models.AuctionCancelled || a.Status == models.AuctionCompleted {
		return nil
	}

	confirmed, err := s.store.ConfirmedBidsByAuction(auctionID)
	if err != nil {
		return err
	}
	winner := electWinner(confirmed)
	if winner == nil {
		return nil
	}
	if err := s.store.SetAuctionWinner(auctionID, winner.ProjectID); err != nil {
		return err
	}

	// Sponsorship flips only once the auction window has closed. Late webhook
	// deliveries after the end time still settle correctly.
	if at.Before(a.EndTime) {
		return nil
	}
	duration := a.EndTime.Sub(a.StartTime)
	expires := at.Add(duration)
	if err := s.store.SetProjectSponsorship(winner.ProjectID, true, &expires); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Winner's project was deleted mid-auction; finalize anyway.
			log.Printf("auction %s winner %s no longer exists", auctionID, winner.ProjectID)
		} else {
			return err
		}
	}
	return s.store.SetAuctionStatus(auctionID, models.AuctionCompleted)
}

// electWinner picks the highest confirmed bid; among equal amounts the most
// recently confirmed wins.
func electWinner(confirmed []models.SponsoredBid) *models.SponsoredBid {
	var best *models.SponsoredBid
	for i := range confirmed {
		b := &confirmed[i]
		if best == nil || b.Amount > best.Amount ||
			(b.Amount == best.Amount && confirmedAfter(b, best)) {
			best = b
		}
	}
	return best
}

func confirmedAfter(a, b *models.SponsoredBid) bool {
	at, bt := a.CreatedAt, b.CreatedAt
	if a.ConfirmedAt != nil {
		at = *a.ConfirmedAt
	}
	if b.ConfirmedAt != nil {
		bt = *b.ConfirmedAt
	}
	if at.Equal(bt) {
		// Same confirmation instant (one webhook batch): fall back to the
		// later-created bid.
		return a.CreatedAt.After(b.CreatedAt)
	}
	return at.After(bt)
}

// ApplyCheckoutExpired abandons the session's pending bids.
func (s *AuctionService) ApplyCheckoutExpired(sessionID string) error {
	n, err := s.store.ExpireBidsBySession(sessionID)
	if err != nil {
		return err
	}
	if n == 0 {
		log.Printf("checkout expired for session %s with no pending bids", sessionID)
	}
	return nil
}

// ApplyPaymentFailed marks the matching pending bids FAILED.
func (s *AuctionService) ApplyPaymentFailed(transactionID, sessionID string) error {
	n, err := s.store.FailBid(transactionID, sessionID)
	if err != nil {
		return err
	}
	if n == 0 {
		log.Printf("payment failure for txn=%q session=%q matched no pending bids", transactionID, sessionID)
	}
	return nil
}
