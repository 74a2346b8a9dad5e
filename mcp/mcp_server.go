package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"vietrank-backend/chainreg"
	"vietrank-backend/models"
	"vietrank-backend/services"
	"vietrank-backend/storage"
)

// MCPServer wraps the mcp-go server with read-only platform tools so agents
// can browse projects, attestations and auctions over stdio.
type MCPServer struct {
	mcpServer    *server.MCPServer
	store        storage.Store
	attestations *services.AttestationService
	auctions     *services.AuctionService
}

// NewMCPServer creates a new MCP server using the mcp-go library
func NewMCPServer(store storage.Store, attestations *services.AttestationService, auctions *services.AuctionService) *MCPServer {
	mcpServer := server.NewMCPServer(
		"VietRank MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		mcpServer:    mcpServer,
		store:        store,
		attestations: attestations,
		auctions:     auctions,
	}

	s.registerTools()

	return s
}

// GetMCPServer returns the underlying MCP server for transport setup
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *MCPServer) registerTools() {
	s.registerListProjectsTool()
	s.registerGetProjectTool()
	s.registerGetAttestationTool()
	s.registerRegistryStatsTool()
	s.registerListAuctionsTool()
	s.registerListBidsTool()
}

func toolJSON(v interface{}) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *MCPServer) registerListProjectsTool() {
	tool := mcp.NewTool("list_projects",
		mcp.WithDescription("List ranked real-estate projects, best tier first"),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projects, err := s.store.ListProjects()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list projects: %v", err)), nil
		}
		return toolJSON(map[string]interface{}{
			"projects":    projects,
			"total_count": len(projects),
		})
	})
}

func (s *MCPServer) registerGetProjectTool() {
	tool := mcp.NewTool("get_project",
		mcp.WithDescription("Get one project by its slug"),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Project slug")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slug, ok := request.GetArguments()["slug"].(string)
		if !ok || slug == "" {
			return mcp.NewToolResultError("slug is required"), nil
		}
		p, err := s.store.GetProject(slug)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get project: %v", err)), nil
		}
		return toolJSON(p)
	})
}

func (s *MCPServer) registerGetAttestationTool() {
	tool := mcp.NewTool("get_attestation",
		mcp.WithDescription("Get the reconciled attestation for a project slug or 0x asset id"),
		mcp.WithString("key", mcp.Required(), mcp.Description("Project slug or canonical asset id")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, ok := request.GetArguments()["key"].(string)
		if !ok || key == "" {
			return mcp.NewToolResultError("key is required"), nil
		}
		var att *models.Attestation
		var err error
		if chainreg.LooksLikeAssetID(key) {
			att, err = s.attestations.GetByAssetID(ctx, key)
		} else {
			att, err = s.attestations.GetBySlug(ctx, key)
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve attestation: %v", err)), nil
		}
		if att == nil {
			return mcp.NewToolResultText("No attestation found for " + key), nil
		}
		return toolJSON(att)
	})
}

func (s *MCPServer) registerRegistryStatsTool() {
	tool := mcp.NewTool("registry_stats",
		mcp.WithDescription("Aggregate attestation registry statistics"),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := s.attestations.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to collect stats: %v", err)), nil
		}
		return toolJSON(stats)
	})
}

func (s *MCPServer) registerListAuctionsTool() {
	tool := mcp.NewTool("list_auctions",
		mcp.WithDescription("List sponsored-slot auctions with their effective status"),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		auctions, err := s.auctions.ListAuctions()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list auctions: %v", err)), nil
		}
		return toolJSON(map[string]interface{}{
			"auctions":    auctions,
			"total_count": len(auctions),
		})
	})
}

func (s *MCPServer) registerListBidsTool() {
	tool := mcp.NewTool("list_bids",
		mcp.WithDescription("List confirmed bids for one auction"),
		mcp.WithString("auction_id", mcp.Required(), mcp.Description("Auction id")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := request.GetArguments()["auction_id"].(string)
		if !ok || id == "" {
			return mcp.NewToolResultError("auction_id is required"), nil
		}
		views, err := s.auctions.ListBids(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list bids: %v", err)), nil
		}
		return toolJSON(map[string]interface{}{
			"bids":        views,
			"total_count": len(views),
		})
	})
}
