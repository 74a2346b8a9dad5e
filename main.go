package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"vietrank-backend/chainreg"
	"vietrank-backend/config"
	"vietrank-backend/handlers"
	"vietrank-backend/middleware"
	"vietrank-backend/payments"
	"vietrank-backend/services"
	"vietrank-backend/storage"
	auth "vietrank-backend/storage/auth"
)

func main() {
	cfg := config.LoadConfig()

	var store storage.Store
	var nonces auth.NonceStore
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.PGDSN == "" {
			log.Fatal("PG_DSN required when STORE_DRIVER=postgres")
		}
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			log.Fatalf("failed to init Postgres store: %v", err)
		}
		store = pg
		nonces, err = auth.NewPostgresNonceStore(pg.DB(), cfg.NonceTTL)
		if err != nil {
			log.Fatalf("failed to init nonce store: %v", err)
		}
	default:
		store = storage.NewMemoryStore()
		nonces = auth.NewMemoryNonceStore(cfg.NonceTTL)
	}
	defer store.Close()

	var registry chainreg.RegistryReader
	if !cfg.MockMode {
		if cfg.RegistryAPIBase == "" {
			log.Fatal("REGISTRY_API_BASE required outside mock mode")
		}
		registry = chainreg.NewHTTPRegistryClient(cfg.RegistryAPIBase, cfg.RegistryAddress)
	}

	var checkout payments.CheckoutClient
	if cfg.GatewayAPIKey != "" {
		checkout = payments.NewHTTPCheckoutClient(cfg.GatewayAPIBase, cfg.GatewayAPIKey)
	} else {
		log.Printf("no payment gateway credentials, using mock checkout client")
		checkout = &payments.MockCheckoutClient{}
	}

	attestations := services.NewAttestationService(store, registry, cfg.MockMode)
	auctions := services.NewAuctionService(store, checkout, cfg.BidMinIncrement, cfg.CheckoutCallback)

	healthHandler := handlers.NewHealthHandler()
	projectHandler := handlers.NewProjectHandler(store, cfg.AdminAPIKey)
	watchlistHandler := handlers.NewWatchlistHandler(store)
	qrHandler := handlers.NewQRHandler()
	authHandler := handlers.NewAuthHandler(nonces, cfg.SessionSecret, cfg.SessionTTL)
	attestationHandler := handlers.NewAttestationHandler(attestations)
	auctionHandler := handlers.NewAuctionHandler(auctions, cfg.AdminAPIKey)
	webhookHandler := handlers.NewWebhookHandler(auctions, cfg.WebhookSecret)

	sessionRequired := middleware.SessionAuth(cfg.SessionSecret)
	sessionOptional := middleware.SessionAuthOptional(cfg.SessionSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", healthHandler.HandleHealth)
	mux.HandleFunc("/api/auth/nonce", authHandler.HandleNonce)
	mux.HandleFunc("/api/auth/verify", authHandler.HandleVerify)
	mux.HandleFunc("/api/projects", projectHandler.HandleProjects)
	mux.HandleFunc("/api/projects/", projectHandler.HandleProjectBySlug)
	mux.HandleFunc("/api/attestations", attestationHandler.HandleAttestations)
	mux.HandleFunc("/api/attestations/stats", attestationHandler.HandleStats)
	mux.HandleFunc("/api/auctions", auctionHandler.HandleAuctions)
	mux.Handle("/api/auctions/", sessionOptional(http.HandlerFunc(auctionHandler.HandleAuctionSubpath)))
	mux.Handle("/api/watchlist", sessionRequired(http.HandlerFunc(watchlistHandler.HandleWatchlist)))
	mux.HandleFunc("/api/webhooks/payment", webhookHandler.HandleWebhook)
	mux.HandleFunc("/api/checkout-qr", qrHandler.HandleCheckoutQR)
	mux.Handle("/metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = middleware.Timeout(30 * time.Second)(handler)
	handler = middleware.RateLimit(rate.Limit(20), 40)(handler)
	handler = middleware.Logging(handler)
	handler = middleware.CORS(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.Recovery(handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("vietrank backend listening on :%s (driver=%s mock=%v)", cfg.Port, cfg.StoreDriver, cfg.MockMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
