package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// SessionParams describes one checkout to open at the gateway. The metadata
// is echoed back verbatim in webhook events and is the only link between a
// gateway session and the bid it pays for.
type SessionParams struct {
	Amount      int64             `json:"amount"`
	Description string            `json:"description"`
	CallbackURL string            `json:"callback_url"`
	Metadata    map[string]string `json:"metadata"`
}

// CheckoutSession is the gateway's handle for an opened payment.
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CheckoutClient opens hosted checkout sessions at the payment gateway.
type CheckoutClient interface {
	CreateSession(ctx context.Context, params SessionParams) (*CheckoutSession, error)
}

// HTTPCheckoutClient talks to the gateway's REST API.
type HTTPCheckoutClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPCheckoutClient builds a gateway client.
func NewHTTPCheckoutClient(baseURL, apiKey string) *HTTPCheckoutClient {
	return &HTTPCheckoutClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPCheckoutClient) CreateSession(ctx context.Context, params SessionParams) (*CheckoutSession, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("checkout amount must be positive")
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach payment gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payment gateway rejected session: %s", resp.Status)
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if session.SessionID == "" || session.CheckoutURL == "" {
		return nil, fmt.Errorf("gateway returned incomplete session")
	}
	return &session, nil
}

// MockCheckoutClient records created sessions in memory. Used in tests and
// when no gateway credentials are configured.
type MockCheckoutClient struct {
	mu       sync.Mutex
	counter  int
	Sessions []SessionParams

	// Fail, when set, makes CreateSession return an error.
	Fail bool
}

func (m *MockCheckoutClient) CreateSession(_ context.Context, params SessionParams) (*CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return nil, fmt.Errorf("mock gateway unavailable")
	}
	m.counter++
	m.Sessions = append(m.Sessions, params)
	id := fmt.Sprintf("cs_mock_%04d", m.counter)
	return &CheckoutSession{
		SessionID:   id,
		CheckoutURL: "https://pay.example.vn/c/" + id,
	}, nil
}
