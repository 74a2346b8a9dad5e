package models

import "time"

// Tier is the ordered ranking band assigned to a project or developer.
type Tier string

const (
	TierSSS   Tier = "SSS"
	TierSPlus Tier = "S+"
	TierS     Tier = "S"
	TierA     Tier = "A"
	TierB     Tier = "B"
	TierC     Tier = "C"
	TierD     Tier = "D"
	TierF     Tier = "F"
)

var tierOrder = map[Tier]int{
	TierSSS: 0, TierSPlus: 1, TierS: 2, TierA: 3,
	TierB: 4, TierC: 5, TierD: 6, TierF: 7,
}

// Rank returns the sort position of a tier, best first. Unknown tiers sort last.
func (t Tier) Rank() int {
	if r, ok := tierOrder[t]; ok {
		return r
	}
	return len(tierOrder)
}

// Valid reports whether the tier is one of the known bands.
func (t Tier) Valid() bool {
	_, ok := tierOrder[t]
	return ok
}

// Project is a real-estate development listed on the platform.
// The slug is immutable once created; sponsorship fields are mutated only by
// the auction flow.
type Project struct {
	Slug             string     `json:"slug"`
	Name             string     `json:"name"`
	Developer        string     `json:"developer,omitempty"`
	Tier             Tier       `json:"tier"`
	Score            float64    `json:"score"`
	Sponsored        bool       `json:"sponsored"`
	SponsorExpiresAt *time.Time `json:"sponsor_expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// IsSponsoredAt reports the derived sponsorship state: the flag counts only
// while the expiry is set and in the future. No deactivation step is needed.
func (p *Project) IsSponsoredAt(now time.Time) bool {
	return p.Sponsored && p.SponsorExpiresAt != nil && now.Before(*p.SponsorExpiresAt)
}

// AuctionStatus is the persisted auction state. "Ended" is derived from the
// clock, not stored; see SponsoredAuction.EffectiveStatus.
type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "PENDING"
	AuctionActive    AuctionStatus = "ACTIVE"
	AuctionCompleted AuctionStatus = "COMPLETED"
	AuctionCancelled AuctionStatus = "CANCELLED"

	// AuctionEnded is a view-only status for auctions past their end time
	// that have not been finalized to COMPLETED yet.
	AuctionEnded AuctionStatus = "ENDED"
)

// SponsoredAuction is one sale of a promotional slot. WinningProjectID is a
// soft reference: a plain slug, tolerated to dangle if the project is deleted.
type SponsoredAuction struct {
	ID               string        `json:"id"`
	SlotName         string        `json:"slot_name"`
	MinBid           int64         `json:"min_bid"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          time.Time     `json:"end_time"`
	Status           AuctionStatus `json:"status"`
	WinningProjectID string        `json:"winning_project_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// EffectiveStatus resolves the time-derived view of the auction state.
func (a *SponsoredAuction) EffectiveStatus(now time.Time) AuctionStatus {
	switch a.Status {
	case AuctionCompleted, AuctionCancelled:
		return a.Status
	}
	if !now.Before(a.EndTime) {
		return AuctionEnded
	}
	if now.Before(a.StartTime) {
		return AuctionPending
	}
	return AuctionActive
}

// BidStatus is the payment-driven bid state. CONFIRMED, EXPIRED and FAILED
// are terminal; transitions out of them are never applied.
type BidStatus string

const (
	BidPending   BidStatus = "PENDING"
	BidConfirmed BidStatus = "CONFIRMED"
	BidExpired   BidStatus = "EXPIRED"
	BidFailed    BidStatus = "FAILED"
)

// Terminal reports whether a bid status can still change.
func (s BidStatus) Terminal() bool {
	return s == BidConfirmed || s == BidExpired || s == BidFailed
}

// SponsoredBid is one bid attempt tied to one auction and one project.
// ProjectID is a soft reference (slug only).
type SponsoredBid struct {
	ID                string     `json:"id"`
	AuctionID         string     `json:"auction_id"`
	ProjectID         string     `json:"project_id"`
	Amount            int64      `json:"amount"`
	Status            BidStatus  `json:"status"`
	CheckoutSessionID string     `json:"checkout_session_id"`
	TransactionID     string     `json:"transaction_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
}

// BidView is a confirmed bid enriched with project display fields. When the
// referenced project has been deleted the placeholder name is substituted.
type BidView struct {
	SponsoredBid
	ProjectName string `json:"project_name"`
	ProjectTier Tier   `json:"project_tier,omitempty"`
}

// DeletedProjectPlaceholder is shown for bids whose project no longer exists.
const DeletedProjectPlaceholder = "(dự án đã xoá)"

// AuthNonce is a single-use wallet login token. AddressHint is advisory only.
type AuthNonce struct {
	Nonce       string    `json:"nonce"`
	AddressHint string    `json:"address_hint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Consumed    bool      `json:"consumed"`
}

// VerificationRecord is the database half of an attestation, keyed by the
// derived asset identifier.
type VerificationRecord struct {
	AssetID   string     `json:"asset_id"`
	Slug      string     `json:"slug"`
	Tier      Tier       `json:"tier"`
	Score     float64    `json:"score"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Attestation is the unified database/chain view returned to clients. It is
// computed, never stored.
type Attestation struct {
	Slug      string     `json:"slug"`
	AssetID   string     `json:"asset_id"`
	Tier      Tier       `json:"tier"`
	Score     float64    `json:"score"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	OnChain   bool       `json:"on_chain"`
}

// RegistryStats aggregates attestation counts for the stats endpoint.
type RegistryStats struct {
	TotalRecords  int    `json:"total_records"`
	ActiveRecords int    `json:"active_records"`
	ChainHead     uint64 `json:"chain_head,omitempty"`
}

// WatchlistEntry pins a project to a wallet's watchlist.
type WatchlistEntry struct {
	Address     string    `json:"address"`
	ProjectSlug string    `json:"project_slug"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionUser is the identity established by a verified wallet signature.
type SessionUser struct {
	Address string `json:"address"`
	ChainID int64  `json:"chain_id"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse represents API error response
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message,omitempty"`
	Code      int                    `json:"code,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// APIResponse represents a generic API response
type APIResponse struct {
	Success bool                   `json:"success"`
	Data    interface{}            `json:"data,omitempty"`
	Error   *ErrorResponse         `json:"error,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) *APIResponse {
	return &APIResponse{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(error string, code int) *APIResponse {
	return &APIResponse{
		Success: false,
		Error: &ErrorResponse{
			Error:     error,
			Message:   error,
			Code:      code,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// NewErrorResponseWithDetail creates an error response carrying machine
// readable fields the client can use to self-correct (e.g. min_bid).
func NewErrorResponseWithDetail(error string, code int, detail map[string]interface{}) *APIResponse {
	resp := NewErrorResponse(error, code)
	if resp != nil && resp.Error != nil {
		resp.Error.Detail = detail
	}
	return resp
}

// NewSuccessResponseWithMeta creates a success response with metadata
func NewSuccessResponseWithMeta(data interface{}, meta map[string]interface{}) *APIResponse {
	return &APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	}
}
