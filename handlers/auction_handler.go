package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"vietrank-backend/middleware"
	"vietrank-backend/models"
	"vietrank-backend/services"
	"vietrank-backend/storage"
)

// AuctionHandler serves the sponsored-slot auction API.
type AuctionHandler struct {
	*BaseHandler
	auctions *services.AuctionService
	adminKey string
}

// NewAuctionHandler creates a new auction handler
func NewAuctionHandler(auctions *services.AuctionService, adminKey string) *AuctionHandler {
	return &AuctionHandler{BaseHandler: NewBaseHandler(), auctions: auctions, adminKey: adminKey}
}

func (h *AuctionHandler) isAdmin(r *http.Request) bool {
	if h.adminKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), []byte(h.adminKey)) == 1
}

// HandleAuctions routes /api/auctions: GET lists, POST creates (admin).
func (h *AuctionHandler) HandleAuctions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		auctions, err := h.auctions.ListAuctions()
		if err != nil {
			h.sendError(w, http.StatusInternalServerError, "Failed to list auctions")
			return
		}
		h.sendSuccess(w, auctions)
	case http.MethodPost:
		h.handleCreate(w, r)
	default:
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

type createAuctionRequest struct {
	SlotName  string    `json:"slot_name"`
	MinBid    int64     `json:"min_bid"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (h *AuctionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		h.sendError(w, http.StatusForbidden, "Admin API key required")
		return
	}
	var req createAuctionRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	a, err := h.auctions.CreateAuction(req.SlotName, req.MinBid, req.StartTime, req.EndTime)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.sendJSON(w, http.StatusCreated, models.NewSuccessResponse(a))
}

// HandleAuctionSubpath routes /api/auctions/{id}[/bids|/cancel].
func (h *AuctionHandler) HandleAuctionSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/auctions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.handleGetAuction(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "bids":
		h.handleBids(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "cancel":
		h.handleCancel(w, r, parts[0])
	default:
		h.sendError(w, http.StatusNotFound, "Unknown auction path")
	}
}

func (h *AuctionHandler) handleGetAuction(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	a, err := h.auctions.GetAuction(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.sendError(w, http.StatusNotFound, "Auction not found")
			return
		}
		h.sendError(w, http.StatusInternalServerError, "Failed to load auction")
		return
	}
	minNext, current, err := h.auctions.MinNextBid(id)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to compute bid floor")
		return
	}
	h.sendJSON(w, http.StatusOK, models.NewSuccessResponseWithMeta(a, map[string]interface{}{
		"min_next_bid": minNext,
		"current_bid":  current,
	}))
}

type placeBidRequest struct {
	ProjectSlug string `json:"project_slug"`
	Amount      int64  `json:"amount"`
}

func (h *AuctionHandler) handleBids(w http.ResponseWriter, r *http.Request, auctionID string) {
	switch r.Method {
	case http.MethodGet:
		views, err := h.auctions.ListBids(auctionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				h.sendError(w, http.StatusNotFound, "Auction not found")
				return
			}
			h.sendError(w, http.StatusInternalServerError, "Failed to list bids")
			return
		}
		h.sendSuccess(w, views)

	case http.MethodPost:
		if _, ok := middleware.SessionUserFrom(r.Context()); !ok {
			h.sendError(w, http.StatusUnauthorized, "Sign in with your wallet first")
			return
		}
		var req placeBidRequest
		if err := h.parseJSON(r, &req); err != nil || req.ProjectSlug == "" || req.Amount <= 0 {
			h.sendError(w, http.StatusBadRequest, "project_slug and a positive amount are required")
			return
		}

		result, err := h.auctions.PlaceBid(r.Context(), auctionID, req.ProjectSlug, req.Amount)
		if err != nil {
			var tooLow *services.BidTooLowError
			switch {
			case errors.As(err, &tooLow):
				h.sendErrorWithDetail(w, http.StatusBadRequest, tooLow.Error(), map[string]interface{}{
					"min_bid":     tooLow.MinBid,
					"current_bid": tooLow.CurrentBid,
				})
			case errors.Is(err, services.ErrAuctionNotActive):
				h.sendError(w, http.StatusBadRequest, "Auction is not accepting bids")
			case errors.Is(err, storage.ErrNotFound):
				h.sendError(w, http.StatusNotFound, "Auction or project not found")
			default:
				h.sendError(w, http.StatusBadGateway, "Failed to open checkout session")
			}
			return
		}
		h.sendJSON(w, http.StatusCreated, models.NewSuccessResponse(map[string]interface{}{
			"bid":          result.Bid,
			"session_id":   result.SessionID,
			"checkout_url": result.CheckoutURL,
		}))

	default:
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *AuctionHandler) handleCancel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !h.isAdmin(r) {
		h.sendError(w, http.StatusForbidden, "Admin API key required")
		return
	}
	if err := h.auctions.CancelAuction(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.sendError(w, http.StatusNotFound, "Auction not found")
			return
		}
		h.sendError(w, http.StatusConflict, err.Error())
		return
	}
	h.sendSuccess(w, map[string]string{"cancelled": id})
}
