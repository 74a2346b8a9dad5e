package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries every runtime knob the service reads. Values come from the
// environment once at startup; nothing reads os.Getenv after LoadConfig.
type Config struct {
	Port        string
	StoreDriver string // memory | postgres
	PGDSN       string

	// Wallet login
	NonceTTL      time.Duration
	SessionSecret string
	SessionTTL    time.Duration

	// Attestation registry
	MockMode        bool
	RegistryAPIBase string
	RegistryAddress string

	// Sponsored auctions
	BidMinIncrement int64

	// Payment gateway
	GatewayAPIBase   string
	GatewayAPIKey    string
	WebhookSecret    string
	CheckoutCallback string

	// Admin actions (auction creation, project upserts)
	AdminAPIKey string
}

// LoadConfig assembles configuration from environment variables with defaults.
func LoadConfig() Config {
	nonceTTL := 5 * time.Minute
	if raw := os.Getenv("AUTH_NONCE_TTL_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			nonceTTL = time.Duration(v) * time.Second
		}
	}

	sessionTTL := 24 * time.Hour
	if raw := os.Getenv("SESSION_TTL_HOURS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			sessionTTL = time.Duration(v) * time.Hour
		}
	}

	increment := int64(1_000_000)
	if raw := os.Getenv("BID_MIN_INCREMENT"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			increment = v
		}
	}

	mockMode := true
	if raw := os.Getenv("REGISTRY_MOCK_MODE"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			mockMode = v
		}
	} else if os.Getenv("REGISTRY_API_BASE") != "" {
		// A configured registry endpoint implies real mode unless overridden.
		mockMode = false
	}

	return Config{
		Port:             envDefault("PORT", "8090"),
		StoreDriver:      envDefault("STORE_DRIVER", "memory"),
		PGDSN:            os.Getenv("PG_DSN"),
		NonceTTL:         nonceTTL,
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		SessionTTL:       sessionTTL,
		MockMode:         mockMode,
		RegistryAPIBase:  os.Getenv("REGISTRY_API_BASE"),
		RegistryAddress:  os.Getenv("REGISTRY_CONTRACT_ADDRESS"),
		BidMinIncrement:  increment,
		GatewayAPIBase:   envDefault("PAYMENT_API_BASE", "https://api.payos.vn/v2"),
		GatewayAPIKey:    os.Getenv("PAYMENT_API_KEY"),
		WebhookSecret:    os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		CheckoutCallback: envDefault("CHECKOUT_CALLBACK_URL", "https://vietrank.vn/thanh-toan/ket-qua"),
		AdminAPIKey:      os.Getenv("ADMIN_API_KEY"),
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
