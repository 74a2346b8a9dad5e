package handlers

import (
	"errors"
	"net/http"
	"strings"

	"vietrank-backend/chainreg"
	"vietrank-backend/models"
	"vietrank-backend/services"
)

// AttestationHandler exposes the reconciled attestation view.
type AttestationHandler struct {
	*BaseHandler
	attestations *services.AttestationService
}

// NewAttestationHandler creates a new attestation handler
func NewAttestationHandler(attestations *services.AttestationService) *AttestationHandler {
	return &AttestationHandler{BaseHandler: NewBaseHandler(), attestations: attestations}
}

// HandleAttestations serves GET /api/attestations with one of:
//
//	?slug=vinhomes-grand-park
//	?assetId=0x...
//	?slugs=a,b,c            (batch validity, capped)
func (h *AttestationHandler) HandleAttestations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	switch {
	case q.Get("slugs") != "":
		h.handleBatch(w, r, q.Get("slugs"))
	case q.Get("slug") != "":
		att, err := h.attestations.GetBySlug(r.Context(), q.Get("slug"))
		if err != nil {
			h.sendError(w, http.StatusInternalServerError, "Failed to resolve attestation")
			return
		}
		h.respondSingle(w, att)
	case q.Get("assetId") != "":
		att, err := h.attestations.GetByAssetID(r.Context(), q.Get("assetId"))
		if err != nil {
			if errors.Is(err, chainreg.ErrInvalidAssetID) {
				h.sendError(w, http.StatusBadRequest, "Malformed asset id")
				return
			}
			h.sendError(w, http.StatusInternalServerError, "Failed to resolve attestation")
			return
		}
		h.respondSingle(w, att)
	default:
		h.sendError(w, http.StatusBadRequest, "Provide slug, assetId or slugs")
	}
}

func (h *AttestationHandler) respondSingle(w http.ResponseWriter, att *models.Attestation) {
	if att == nil {
		h.sendError(w, http.StatusNotFound, "No attestation found")
		return
	}
	h.sendJSON(w, http.StatusOK, h.successWithMockFlag(att))
}

// successWithMockFlag tags every attestation response with the registry mode
// so clients can tell a mock deployment from a live one.
func (h *AttestationHandler) successWithMockFlag(data interface{}) *models.APIResponse {
	return models.NewSuccessResponseWithMeta(data, map[string]interface{}{
		"mock_mode": h.attestations.MockMode(),
	})
}

func (h *AttestationHandler) handleBatch(w http.ResponseWriter, r *http.Request, raw string) {
	parts := strings.Split(raw, ",")
	slugs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			slugs = append(slugs, p)
		}
	}
	if len(slugs) == 0 {
		h.sendError(w, http.StatusBadRequest, "Empty slug batch")
		return
	}
	if len(slugs) > services.MaxBatchSlugs {
		h.sendError(w, http.StatusBadRequest, "Batch exceeds the 100 slug limit")
		return
	}

	results, err := h.attestations.BatchCheckValidity(r.Context(), slugs)
	if err != nil {
		if errors.Is(err, services.ErrBatchTooLarge) {
			h.sendError(w, http.StatusBadRequest, "Batch exceeds the 100 slug limit")
			return
		}
		h.sendError(w, http.StatusInternalServerError, "Failed to check batch")
		return
	}
	h.sendJSON(w, http.StatusOK, h.successWithMockFlag(results))
}

// HandleStats serves GET /api/attestations/stats.
func (h *AttestationHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stats, err := h.attestations.Stats(r.Context())
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to collect stats")
		return
	}
	h.sendJSON(w, http.StatusOK, h.successWithMockFlag(stats))
}
