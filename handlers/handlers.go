package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"vietrank-backend/chainreg"
	"vietrank-backend/middleware"
	"vietrank-backend/models"
	"vietrank-backend/storage"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	*BaseHandler
}

// NewHealthHandler creates a new health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{BaseHandler: NewBaseHandler()}
}

// HandleHealth handles health check requests
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	h.sendSuccess(w, models.HealthResponse{
		Status:    "healthy",
		Message:   "vietrank backend is running",
		Timestamp: time.Now().Unix(),
	})
}

// ProjectHandler serves project listings and admin project upserts.
type ProjectHandler struct {
	*BaseHandler
	store    storage.Store
	adminKey string
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(store storage.Store, adminKey string) *ProjectHandler {
	return &ProjectHandler{BaseHandler: NewBaseHandler(), store: store, adminKey: adminKey}
}

// HandleProjects routes /api/projects: GET lists, POST creates (admin).
func (h *ProjectHandler) HandleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleCreate(w, r)
	default:
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *ProjectHandler) handleList(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects()
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}
	now := time.Now()
	for i := range projects {
		// The derived flag is what clients render; the raw flag may lag.
		projects[i].Sponsored = projects[i].IsSponsoredAt(now)
	}
	h.sendSuccess(w, projects)
}

type createProjectRequest struct {
	Slug      string      `json:"slug"`
	Name      string      `json:"name"`
	Developer string      `json:"developer"`
	Tier      models.Tier `json:"tier"`
	Score     float64     `json:"score"`
}

func (h *ProjectHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if h.adminKey == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), []byte(h.adminKey)) != 1 {
		h.sendError(w, http.StatusForbidden, "Admin API key required")
		return
	}
	var req createProjectRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Slug = strings.TrimSpace(req.Slug)
	if req.Slug == "" || req.Name == "" {
		h.sendError(w, http.StatusBadRequest, "slug and name are required")
		return
	}
	if !req.Tier.Valid() {
		h.sendError(w, http.StatusBadRequest, "unknown tier")
		return
	}

	p := &models.Project{
		Slug:      req.Slug,
		Name:      req.Name,
		Developer: req.Developer,
		Tier:      req.Tier,
		Score:     req.Score,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateProject(p); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			h.sendError(w, http.StatusConflict, "Project already exists")
			return
		}
		h.sendError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	// Every project gets its asset id mapping at birth so reverse lookups
	// never need to invert the hash.
	assetID := chainreg.AssetIDForSlug(p.Slug).Hex()
	if err := h.store.PutAssetID(p.Slug, assetID); err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to record asset id")
		return
	}

	h.sendJSON(w, http.StatusCreated, models.NewSuccessResponseWithMeta(p, map[string]interface{}{
		"asset_id": assetID,
	}))
}

// HandleProjectBySlug serves GET /api/projects/{slug}.
func (h *ProjectHandler) HandleProjectBySlug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	slug := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	if slug == "" || strings.Contains(slug, "/") {
		h.sendError(w, http.StatusBadRequest, "Invalid project slug")
		return
	}

	p, err := h.store.GetProject(slug)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.sendError(w, http.StatusNotFound, "Project not found")
			return
		}
		h.sendError(w, http.StatusInternalServerError, "Failed to load project")
		return
	}
	p.Sponsored = p.IsSponsoredAt(time.Now())
	h.sendSuccess(w, p)
}

// WatchlistHandler manages the signed-in wallet's project watchlist.
type WatchlistHandler struct {
	*BaseHandler
	store storage.Store
}

// NewWatchlistHandler creates a new watchlist handler
func NewWatchlistHandler(store storage.Store) *WatchlistHandler {
	return &WatchlistHandler{BaseHandler: NewBaseHandler(), store: store}
}

type watchlistRequest struct {
	ProjectSlug string `json:"project_slug"`
}

// HandleWatchlist routes /api/watchlist for the authenticated wallet.
func (h *WatchlistHandler) HandleWatchlist(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.SessionUserFrom(r.Context())
	if !ok {
		h.sendError(w, http.StatusUnauthorized, "Sign in with your wallet first")
		return
	}

	switch r.Method {
	case http.MethodGet:
		entries, err := h.store.ListWatchlist(user.Address)
		if err != nil {
			h.sendError(w, http.StatusInternalServerError, "Failed to load watchlist")
			return
		}
		h.sendSuccess(w, entries)

	case http.MethodPost:
		var req watchlistRequest
		if err := h.parseJSON(r, &req); err != nil || req.ProjectSlug == "" {
			h.sendError(w, http.StatusBadRequest, "project_slug is required")
			return
		}
		if _, err := h.store.GetProject(req.ProjectSlug); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				h.sendError(w, http.StatusNotFound, "Project not found")
				return
			}
			h.sendError(w, http.StatusInternalServerError, "Failed to load project")
			return
		}
		if err := h.store.AddWatchlistEntry(user.Address, req.ProjectSlug); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				h.sendError(w, http.StatusConflict, "Project already on watchlist")
				return
			}
			h.sendError(w, http.StatusInternalServerError, "Failed to add watchlist entry")
			return
		}
		h.sendJSON(w, http.StatusCreated, models.NewSuccessResponse(map[string]string{
			"project_slug": req.ProjectSlug,
		}))

	case http.MethodDelete:
		var req watchlistRequest
		if err := h.parseJSON(r, &req); err != nil || req.ProjectSlug == "" {
			h.sendError(w, http.StatusBadRequest, "project_slug is required")
			return
		}
		if err := h.store.RemoveWatchlistEntry(user.Address, req.ProjectSlug); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				h.sendError(w, http.StatusNotFound, "Watchlist entry not found")
				return
			}
			h.sendError(w, http.StatusInternalServerError, "Failed to remove watchlist entry")
			return
		}
		h.sendSuccess(w, map[string]string{"removed": req.ProjectSlug})

	default:
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// QRHandler renders a checkout URL as a PNG QR code for mobile payment apps.
type QRHandler struct {
	*BaseHandler
}

// NewQRHandler creates a new QR handler
func NewQRHandler() *QRHandler {
	return &QRHandler{BaseHandler: NewBaseHandler()}
}

// HandleCheckoutQR serves GET /api/checkout-qr?url=...
func (h *QRHandler) HandleCheckoutQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	target := r.URL.Query().Get("url")
	if target == "" {
		h.sendError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	if !strings.HasPrefix(target, "https://") {
		h.sendError(w, http.StatusBadRequest, "only https checkout URLs are allowed")
		return
	}

	png, err := qrcode.Encode(target, qrcode.Medium, 256)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
