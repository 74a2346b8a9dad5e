package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"vietrank-backend/metrics"
	"vietrank-backend/payments"
	"vietrank-backend/services"
)

// maxWebhookBody bounds webhook payloads; the gateway sends small JSON.
const maxWebhookBody = 1 << 20

// eventKind is the closed set of gateway events this service handles.
type eventKind string

const (
	eventCheckoutCompleted eventKind = "checkout.completed"
	eventCheckoutExpired   eventKind = "checkout.expired"
	eventPaymentFailed     eventKind = "payment.failed"
)

func parseEventKind(raw string) (eventKind, bool) {
	switch k := eventKind(raw); k {
	case eventCheckoutCompleted, eventCheckoutExpired, eventPaymentFailed:
		return k, true
	}
	return "", false
}

type webhookPayload struct {
	Event         string            `json:"event"`
	SessionID     string            `json:"session_id"`
	TransactionID string            `json:"transaction_id"`
	OccurredAt    int64             `json:"occurred_at"` // unix seconds
	Metadata      map[string]string `json:"metadata"`
}

// WebhookHandler receives payment gateway deliveries. The HMAC signature is
// verified against the raw body before any parsing happens.
type WebhookHandler struct {
	*BaseHandler
	auctions *services.AuctionService
	secret   string
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(auctions *services.AuctionService, secret string) *WebhookHandler {
	return &WebhookHandler{BaseHandler: NewBaseHandler(), auctions: auctions, secret: secret}
}

// HandleWebhook serves POST /api/webhooks/payment.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if h.secret == "" {
		// Deliveries cannot be authenticated; refusing is the only safe answer.
		metrics.WebhookEvents.WithLabelValues("unknown", "unconfigured").Inc()
		h.sendError(w, http.StatusInternalServerError, "Webhook secret is not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Webhook-Signature")
	if !payments.VerifySignature(body, signature, h.secret) {
		metrics.WebhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		h.sendError(w, http.StatusBadRequest, "Missing or invalid webhook signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	kind, ok := parseEventKind(payload.Event)
	if !ok {
		// The gateway sends kinds this service never handles (refunds,
		// disputes). Acknowledge so the provider does not retry or disable
		// the endpoint.
		log.Printf("ignoring webhook event kind %q", payload.Event)
		metrics.WebhookEvents.WithLabelValues(payload.Event, "ignored").Inc()
		h.sendJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if payload.SessionID == "" && payload.TransactionID == "" {
		h.sendError(w, http.StatusBadRequest, "Event names no session or transaction")
		return
	}

	at := time.Now()
	if payload.OccurredAt > 0 {
		at = time.Unix(payload.OccurredAt, 0)
	}

	switch kind {
	case eventCheckoutCompleted:
		err = h.auctions.ApplyCheckoutCompleted(payload.SessionID, payload.TransactionID, at)
	case eventCheckoutExpired:
		err = h.auctions.ApplyCheckoutExpired(payload.SessionID)
	case eventPaymentFailed:
		err = h.auctions.ApplyPaymentFailed(payload.TransactionID, payload.SessionID)
	}
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(string(kind), "error").Inc()
		h.sendError(w, http.StatusInternalServerError, "Failed to process event")
		return
	}

	metrics.WebhookEvents.WithLabelValues(string(kind), "ok").Inc()
	h.sendJSON(w, http.StatusOK, map[string]bool{"received": true})
}
