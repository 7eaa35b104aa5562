// Package mcpserver exposes the broker as an MCP (Model Context Protocol)
// server over stdio. Tools return sanitized JSON; secret values only appear
// after an explicit unlock, and tool failures are reported as tool results
// rather than protocol errors so callers can read them.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/mlinzi/internal/opcli"
	"github.com/jkaninda/mlinzi/internal/vault"
)

// Broker is the surface the MCP tools call. *vault.Broker satisfies it.
type Broker interface {
	Vaults(ctx context.Context) ([]vault.Vault, error)
	Items(ctx context.Context, vaultID string) ([]vault.SafeItem, error)
	ItemsByTag(ctx context.Context, tag, vaultID string) ([]vault.SafeItem, error)
	Item(ctx context.Context, titleOrID, vaultID string) (vault.SafeItemDetails, error)
	Unlock(ctx context.Context, rawURL string) (vault.UnlockReceipt, error)
	CreateLogin(ctx context.Context, p vault.CreateLoginParams) (vault.Created, error)
	CreateSecureNote(ctx context.Context, p vault.CreateSecureNoteParams) (vault.Created, error)
}

// Server is the MCP stdio server fronting the broker.
type Server struct {
	broker Broker
	logger *slog.Logger
	mcp    *server.MCPServer
}

// New creates the MCP server and registers all tools.
func New(broker Broker, version string, logger *slog.Logger) *Server {
	s := &Server{
		broker: broker,
		logger: logger,
		mcp: server.NewMCPServer("mlinzi", version,
			server.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	return s
}

// Serve runs the stdio transport until stdin closes or an error occurs.
func (s *Server) Serve() error {
	s.logger.Info("mcp server starting on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("list_vaults",
		mcp.WithDescription("List the 1Password vaults available to this service account."),
	), s.handleListVaults)

	s.mcp.AddTool(mcp.NewTool("list_items",
		mcp.WithDescription("List items (titles, categories, vault names, tags only). No secret values and no item IDs are included."),
		mcp.WithString("vault", mcp.Description("Vault name or ID to restrict the listing to.")),
	), s.handleListItems)

	s.mcp.AddTool(mcp.NewTool("list_items_by_tag",
		mcp.WithDescription("List items carrying a given tag (titles, categories, vault names, tags only)."),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag to filter by.")),
		mcp.WithString("vault", mcp.Description("Vault name or ID to restrict the listing to.")),
	), s.handleListItemsByTag)

	s.mcp.AddTool(mcp.NewTool("get_item",
		mcp.WithDescription("Fetch one item by title. Sensitive field values stay redacted until the item is unlocked with unlock_item."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Item title as shown by list_items.")),
		mcp.WithString("vault", mcp.Description("Vault name or ID the item lives in.")),
	), s.handleGetItem)

	s.mcp.AddTool(mcp.NewTool("unlock_item",
		mcp.WithDescription("Unlock one item for the rest of this session using an open-item link copied from the 1Password app (Share > Copy Private Link). This is the consent step that reveals the item's secret values to get_item."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Open-item URL containing v= and i= query parameters.")),
	), s.handleUnlockItem)

	s.mcp.AddTool(mcp.NewTool("create_login",
		mcp.WithDescription("Create a new login item."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title for the new item.")),
		mcp.WithString("username", mcp.Required(), mcp.Description("Login username.")),
		mcp.WithString("password", mcp.Required(), mcp.Description("Login password.")),
		mcp.WithString("url", mcp.Description("Website the login belongs to.")),
		mcp.WithString("vault", mcp.Description("Vault name or ID to create the item in.")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags.")),
	), s.handleCreateLogin)

	s.mcp.AddTool(mcp.NewTool("create_secure_note",
		mcp.WithDescription("Create a new secure note item."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title for the new note.")),
		mcp.WithString("note", mcp.Required(), mcp.Description("Note body.")),
		mcp.WithString("vault", mcp.Description("Vault name or ID to create the note in.")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags.")),
	), s.handleCreateSecureNote)
}

// --- Handlers ---

func (s *Server) handleListVaults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaults, err := s.broker.Vaults(ctx)
	if err != nil {
		return s.toolError("list_vaults", err), nil
	}
	return jsonResult(vaults)
}

func (s *Server) handleListItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.broker.Items(ctx, req.GetString("vault", ""))
	if err != nil {
		return s.toolError("list_items", err), nil
	}
	return jsonResult(items)
}

func (s *Server) handleListItemsByTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := req.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.broker.ItemsByTag(ctx, tag, req.GetString("vault", ""))
	if err != nil {
		return s.toolError("list_items_by_tag", err), nil
	}
	return jsonResult(items)
}

func (s *Server) handleGetItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	details, err := s.broker.Item(ctx, title, req.GetString("vault", ""))
	if err != nil {
		return s.toolError("get_item", err), nil
	}
	return jsonResult(details)
}

func (s *Server) handleUnlockItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	receipt, err := s.broker.Unlock(ctx, rawURL)
	if err != nil {
		return s.toolError("unlock_item", err), nil
	}
	return mcp.NewToolResultText(unlockMessage(receipt)), nil
}

func (s *Server) handleCreateLogin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	username, err := req.RequireString("username")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	password, err := req.RequireString("password")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	created, err := s.broker.CreateLogin(ctx, vault.CreateLoginParams{
		Title:    title,
		Username: username,
		Password: password,
		URL:      req.GetString("url", ""),
		VaultID:  req.GetString("vault", ""),
		Tags:     splitTags(req.GetString("tags", "")),
	})
	if err != nil {
		return s.toolError("create_login", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created login item %q.", created.Title)), nil
}

func (s *Server) handleCreateSecureNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := req.RequireString("note")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	created, err := s.broker.CreateSecureNote(ctx, vault.CreateSecureNoteParams{
		Title:   title,
		Note:    note,
		VaultID: req.GetString("vault", ""),
		Tags:    splitTags(req.GetString("tags", "")),
	})
	if err != nil {
		return s.toolError("create_secure_note", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created secure note %q.", created.Title)), nil
}

// --- Rendering ---

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("encoding result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// unlockMessage phrases the consent confirmation. The only difference for
// a repeated unlock is the wording.
func unlockMessage(r vault.UnlockReceipt) string {
	name := "the item"
	if r.Title != "" {
		name = fmt.Sprintf("%q", r.Title)
	}
	if r.AlreadyUnlocked {
		return fmt.Sprintf("%s was already unlocked this session. %d item(s) unlocked.", name, r.SessionUnlocks)
	}
	return fmt.Sprintf("Unlocked %s for the rest of this session. get_item will now return its secret values. %d item(s) unlocked.", name, r.SessionUnlocks)
}

// toolError translates broker errors into caller-facing tool results with
// a hint where one helps.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("tool failed",
		slog.String("tool", tool),
		slog.String("error", err.Error()),
	)

	var notFound *opcli.NotFoundError
	if errors.As(err, &notFound) {
		return mcp.NewToolResultError(err.Error() + " Check the title with list_items.")
	}
	var auth *opcli.AuthenticationError
	if errors.As(err, &auth) {
		return mcp.NewToolResultError(err.Error() + " The service-account token may be expired or revoked.")
	}
	return mcp.NewToolResultError(err.Error())
}

// splitTags splits a comma-separated tag string, trimming whitespace and
// dropping empties.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

var _ Broker = (*vault.Broker)(nil)
