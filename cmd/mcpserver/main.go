package main

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"vietrank-backend/chainreg"
	"vietrank-backend/config"
	"vietrank-backend/mcp"
	"vietrank-backend/payments"
	"vietrank-backend/services"
	"vietrank-backend/storage"
)

func main() {
	cfg := config.LoadConfig()

	var store storage.Store
	var err error
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.PGDSN == "" {
			log.Fatal("PG_DSN required when STORE_DRIVER=postgres")
		}
		store, err = storage.NewPostgresStore(cfg.PGDSN)
	default:
		store = storage.NewMemoryStore()
	}
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer store.Close()

	var registry chainreg.RegistryReader
	if !cfg.MockMode && cfg.RegistryAPIBase != "" {
		registry = chainreg.NewHTTPRegistryClient(cfg.RegistryAPIBase, cfg.RegistryAddress)
	}
	attestations := services.NewAttestationService(store, registry, cfg.MockMode)
	auctions := services.NewAuctionService(store, &payments.MockCheckoutClient{}, cfg.BidMinIncrement, cfg.CheckoutCallback)

	mcpServer := mcp.NewMCPServer(store, attestations, auctions)

	log.Printf("VietRank MCP server starting (driver=%s mock=%v)", cfg.StoreDriver, cfg.MockMode)

	if err := server.ServeStdio(mcpServer.GetMCPServer()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
