package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vietrank-backend/chainreg"
	"vietrank-backend/middleware"
	"vietrank-backend/models"
	"vietrank-backend/storage"
)

func TestCreateProjectRecordsAssetID(t *testing.T) {
	store := storage.NewMemoryStore()
	h := NewProjectHandler(store, testAdminKey)

	body, _ := json.Marshal(map[string]interface{}{
		"slug": "vinhomes-grand-park", "name": "Vinhomes Grand Park",
		"developer": "Vinhomes", "tier": "S", "score": 88.5,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewReader(body))
	req.Header.Set("X-API-Key", testAdminKey)
	rec := httptest.NewRecorder()
	h.HandleProjects(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Meta map[string]interface{} `json:"meta"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	wantID := chainreg.AssetIDForSlug("vinhomes-grand-park").Hex()
	if resp.Meta["asset_id"] != wantID {
		t.Fatalf("asset_id meta %v, want %s", resp.Meta["asset_id"], wantID)
	}

	slug, err := store.SlugForAssetID(wantID)
	if err != nil || slug != "vinhomes-grand-park" {
		t.Fatalf("reverse mapping missing: %q %v", slug, err)
	}
}

func TestCreateProjectRequiresAdminKey(t *testing.T) {
	h := NewProjectHandler(storage.NewMemoryStore(), testAdminKey)
	body, _ := json.Marshal(map[string]interface{}{"slug": "x", "name": "X", "tier": "A"})
	req := httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleProjects(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unauthenticated create status %d", rec.Code)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	h := NewProjectHandler(storage.NewMemoryStore(), testAdminKey)

	cases := []map[string]interface{}{
		{"slug": "", "name": "X", "tier": "A"},
		{"slug": "x", "name": "", "tier": "A"},
		{"slug": "x", "name": "X", "tier": "Z"},
	}
	for _, c := range cases {
		body, _ := json.Marshal(c)
		req := httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewReader(body))
		req.Header.Set("X-API-Key", testAdminKey)
		rec := httptest.NewRecorder()
		h.HandleProjects(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("case %v status %d", c, rec.Code)
		}
	}
}

func TestGetProjectDerivesSponsorship(t *testing.T) {
	store := storage.NewMemoryStore()
	h := NewProjectHandler(store, testAdminKey)

	past := time.Now().Add(-time.Hour)
	store.CreateProject(&models.Project{
		Slug: "het-han", Name: "Hết hạn", Tier: models.TierB,
		Sponsored: true, SponsorExpiresAt: &past, CreatedAt: time.Now(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/projects/het-han", nil)
	rec := httptest.NewRecorder()
	h.HandleProjectBySlug(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	var resp struct {
		Data models.Project `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	// The stored flag is stale; the response reflects the expired window.
	if resp.Data.Sponsored {
		t.Fatalf("expired sponsorship still shown")
	}
}

func TestGetProjectNotFound(t *testing.T) {
	h := NewProjectHandler(storage.NewMemoryStore(), testAdminKey)
	req := httptest.NewRequest(http.MethodGet, "/api/projects/khong-co", nil)
	rec := httptest.NewRecorder()
	h.HandleProjectBySlug(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing project status %d", rec.Code)
	}
}

func sessionContext(r *http.Request, address string) *http.Request {
	user := &models.SessionUser{Address: address, ChainID: 1}
	return r.WithContext(context.WithValue(r.Context(), middleware.SessionUserKey, user))
}

func TestWatchlistFlow(t *testing.T) {
	store := storage.NewMemoryStore()
	store.CreateProject(&models.Project{Slug: "du-an-x", Name: "Dự án X", Tier: models.TierA, CreatedAt: time.Now()})
	h := NewWatchlistHandler(store)
	addr := "0xabc0000000000000000000000000000000000001"

	add := func() *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"project_slug": "du-an-x"})
		req := sessionContext(httptest.NewRequest(http.MethodPost, "/api/watchlist", bytes.NewReader(body)), addr)
		rec := httptest.NewRecorder()
		h.HandleWatchlist(rec, req)
		return rec
	}

	if rec := add(); rec.Code != http.StatusCreated {
		t.Fatalf("add status %d: %s", rec.Code, rec.Body.String())
	}
	if rec := add(); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate add status %d", rec.Code)
	}

	req := sessionContext(httptest.NewRequest(http.MethodGet, "/api/watchlist", nil), addr)
	rec := httptest.NewRecorder()
	h.HandleWatchlist(rec, req)
	var resp struct {
		Data []models.WatchlistEntry `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Data) != 1 {
		t.Fatalf("watchlist size %d", len(resp.Data))
	}

	body, _ := json.Marshal(map[string]string{"project_slug": "du-an-x"})
	req = sessionContext(httptest.NewRequest(http.MethodDelete, "/api/watchlist", bytes.NewReader(body)), addr)
	rec = httptest.NewRecorder()
	h.HandleWatchlist(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status %d", rec.Code)
	}
}

func TestWatchlistUnknownProject(t *testing.T) {
	h := NewWatchlistHandler(storage.NewMemoryStore())
	body, _ := json.Marshal(map[string]string{"project_slug": "khong-co"})
	req := sessionContext(httptest.NewRequest(http.MethodPost, "/api/watchlist", bytes.NewReader(body)), "0xabc")
	rec := httptest.NewRecorder()
	h.HandleWatchlist(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown project status %d", rec.Code)
	}
}

func TestCheckoutQR(t *testing.T) {
	h := NewQRHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/checkout-qr?url=https://pay.example.vn/c/cs_1", nil)
	rec := httptest.NewRecorder()
	h.HandleCheckoutQR(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("qr status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %s", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("empty png body")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/checkout-qr?url=http://insecure.example", nil)
	rec = httptest.NewRecorder()
	h.HandleCheckoutQR(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("insecure url status %d", rec.Code)
	}
}
