package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vietrank-backend/middleware"
	"vietrank-backend/models"
	"vietrank-backend/payments"
	"vietrank-backend/services"
	"vietrank-backend/storage"
)

const testAdminKey = "admin-key-test"

func newAuctionHandlerFixture(t *testing.T) (*AuctionHandler, *services.AuctionService, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	svc := services.NewAuctionService(store, &payments.MockCheckoutClient{}, 1_000_000, "https://vietrank.vn/cb")
	if err := store.CreateProject(&models.Project{Slug: "du-an-a", Name: "Dự án A", Tier: models.TierA, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return NewAuctionHandler(svc, testAdminKey), svc, store
}

func withSession(r *http.Request) *http.Request {
	user := &models.SessionUser{Address: "0xabc0000000000000000000000000000000000001", ChainID: 1}
	return r.WithContext(context.WithValue(r.Context(), middleware.SessionUserKey, user))
}

func postBid(t *testing.T, h *AuctionHandler, auctionID string, body map[string]interface{}, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/auctions/"+auctionID+"/bids", bytes.NewReader(raw))
	if authed {
		req = withSession(req)
	}
	rec := httptest.NewRecorder()
	h.HandleAuctionSubpath(rec, req)
	return rec
}

func TestCreateAuctionRequiresAdminKey(t *testing.T) {
	h, _, _ := newAuctionHandlerFixture(t)
	body, _ := json.Marshal(map[string]interface{}{
		"slot_name": "homepage-hero", "min_bid": 50_000_000,
		"start_time": time.Now(), "end_time": time.Now().Add(time.Hour),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auctions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleAuctions(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unauthenticated create status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auctions", bytes.NewReader(body))
	req.Header.Set("X-API-Key", testAdminKey)
	rec = httptest.NewRecorder()
	h.HandleAuctions(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPlaceBidRequiresSession(t *testing.T) {
	h, svc, _ := newAuctionHandlerFixture(t)
	a, _ := svc.CreateAuction("slot", 50_000_000, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	rec := postBid(t, h, a.ID, map[string]interface{}{"project_slug": "du-an-a", "amount": 55_000_000}, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous bid status %d", rec.Code)
	}
}

func TestPlaceBidReturnsCheckoutHandle(t *testing.T) {
	h, svc, _ := newAuctionHandlerFixture(t)
	a, _ := svc.CreateAuction("slot", 50_000_000, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	rec := postBid(t, h, a.ID, map[string]interface{}{"project_slug": "du-an-a", "amount": 55_000_000}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("bid status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			SessionID   string `json:"session_id"`
			CheckoutURL string `json:"checkout_url"`
		} `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Data.SessionID == "" || resp.Data.CheckoutURL == "" {
		t.Fatalf("checkout handle missing: %s", rec.Body.String())
	}
}

func TestPlaceBidTooLowReturnsThresholds(t *testing.T) {
	h, svc, _ := newAuctionHandlerFixture(t)
	a, _ := svc.CreateAuction("slot", 50_000_000, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	rec := postBid(t, h, a.ID, map[string]interface{}{"project_slug": "du-an-a", "amount": 50_000_001}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("low bid status %d", rec.Code)
	}
	var resp struct {
		Error struct {
			Detail map[string]interface{} `json:"detail"`
		} `json:"error"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error.Detail["min_bid"] != float64(51_000_000) {
		t.Fatalf("min_bid detail missing: %v", resp.Error.Detail)
	}
}

func TestPlaceBidOnEndedAuctionIsRejected(t *testing.T) {
	h, _, store := newAuctionHandlerFixture(t)
	a := &models.SponsoredAuction{
		ID: "ended", SlotName: "slot", MinBid: 10_000_000,
		StartTime: time.Now().Add(-2 * time.Hour), EndTime: time.Now().Add(-time.Hour),
		Status: models.AuctionActive, CreatedAt: time.Now(),
	}
	store.CreateAuction(a)

	rec := postBid(t, h, a.ID, map[string]interface{}{"project_slug": "du-an-a", "amount": 20_000_000}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ended auction bid status %d, want 400", rec.Code)
	}
}

func TestGetAuctionIncludesBidFloorMeta(t *testing.T) {
	h, svc, _ := newAuctionHandlerFixture(t)
	a, _ := svc.CreateAuction("slot", 50_000_000, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/auctions/"+a.ID, nil)
	rec := httptest.NewRecorder()
	h.HandleAuctionSubpath(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	var resp struct {
		Meta map[string]interface{} `json:"meta"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Meta["min_next_bid"] != float64(51_000_000) {
		t.Fatalf("min_next_bid meta: %v", resp.Meta)
	}
}

func TestListBidsUnknownAuction(t *testing.T) {
	h, _, _ := newAuctionHandlerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/auctions/missing/bids", nil)
	rec := httptest.NewRecorder()
	h.HandleAuctionSubpath(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown auction status %d", rec.Code)
	}
}

func TestCancelAuctionAdminOnly(t *testing.T) {
	h, svc, store := newAuctionHandlerFixture(t)
	a, _ := svc.CreateAuction("slot", 50_000_000, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodPost, "/api/auctions/"+a.ID+"/cancel", nil)
	rec := httptest.NewRecorder()
	h.HandleAuctionSubpath(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous cancel status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auctions/"+a.ID+"/cancel", nil)
	req.Header.Set("X-API-Key", testAdminKey)
	rec = httptest.NewRecorder()
	h.HandleAuctionSubpath(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin cancel status %d: %s", rec.Code, rec.Body.String())
	}
	got, _ := store.GetAuction(a.ID)
	if got.Status != models.AuctionCancelled {
		t.Fatalf("auction not cancelled: %s", got.Status)
	}
}
