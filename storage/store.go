package storage

import (
	"errors"
	"time"

	"vietrank-backend/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint would be violated
// (existing project slug, repeated watchlist entry).
var ErrDuplicate = errors.New("already exists")

// Store is the single source of truth for all platform state. Every method
// is safe for concurrent use; cross-request coordination happens only here.
type Store interface {
	// Projects
	CreateProject(p *models.Project) error
	GetProject(slug string) (*models.Project, error)
	ListProjects() ([]models.Project, error)
	SetProjectSponsorship(slug string, sponsored bool, expiresAt *time.Time) error

	// Slug <-> asset id mapping, written at project creation time so reverse
	// lookup is a query rather than a hash inversion.
	PutAssetID(slug, assetID string) error
	SlugForAssetID(assetID string) (string, error)

	// Database-held attestation records
	PutVerificationRecord(rec *models.VerificationRecord) error
	GetVerificationRecord(assetID string) (*models.VerificationRecord, error)
	VerificationCounts() (total int, active int, err error)

	// Sponsored auctions
	CreateAuction(a *models.SponsoredAuction) error
	GetAuction(id string) (*models.SponsoredAuction, error)
	ListAuctions() ([]models.SponsoredAuction, error)
	SetAuctionStatus(id string, status models.AuctionStatus) error
	SetAuctionWinner(id string, projectID string) error

	// Sponsored bids. The mutation helpers are atomic and one-way: rows
	// already in a terminal state are never touched, which is what makes
	// webhook replays safe.
	CreateBid(b *models.SponsoredBid) error
	BidsByAuction(auctionID string) ([]models.SponsoredBid, error)
	BidsBySession(sessionID string) ([]models.SponsoredBid, error)
	// ConfirmBidsBySession promotes the session's PENDING bids and reports how
	// many rows actually transitioned, so a replayed delivery counts as zero.
	ConfirmBidsBySession(sessionID, transactionID string, at time.Time) ([]models.SponsoredBid, int, error)
	ExpireBidsBySession(sessionID string) (int, error)
	FailBid(transactionID, sessionID string) (int, error)
	ConfirmedBidsByAuction(auctionID string) ([]models.SponsoredBid, error)

	// Watchlists
	AddWatchlistEntry(address, slug string) error
	RemoveWatchlistEntry(address, slug string) error
	ListWatchlist(address string) ([]models.WatchlistEntry, error)

	Close() error
}
