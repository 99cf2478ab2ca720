// Package mcpserver exposes triage over the Model Context Protocol so an
// assistant can triage text, evaluate fact sets and check rule documents.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/steveyegge/triage/internal/cache"
	"github.com/steveyegge/triage/internal/rules"
	"github.com/steveyegge/triage/internal/triage"
	"github.com/steveyegge/triage/internal/types"
)

// Version is reported to MCP clients
const Version = "0.1.0"

// Processor runs one item through the pipeline
type Processor interface {
	Process(ctx context.Context, item *types.Item) *triage.Outcome
}

// Server is the MCP server for triage
type Server struct {
	mcpServer *server.MCPServer
	processor Processor
	engine    *rules.Engine
	store     cache.Store
}

// NewServer creates a server. processor may be nil when no model is
// configured; triage_text then reports an error. store may be nil.
func NewServer(processor Processor, engine *rules.Engine, store cache.Store) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("rule engine cannot be nil")
	}
	s := server.NewMCPServer(
		"triage",
		Version,
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: s,
		processor: processor,
		engine:    engine,
		store:     store,
	}
	srv.registerTools()
	return srv, nil
}

func (s *Server) registerTools() {
	triageTool := mcp.NewTool("triage_text",
		mcp.WithDescription("Triage an issue given its title and body. Returns the full outcome: extracted facts, the duplicate verdict and the priority/label decision."),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Issue title"),
		),
		mcp.WithString("body",
			mcp.Description("Issue body (markdown)"),
		),
		mcp.WithString("repo",
			mcp.Description("owner/name of the repository, enables the duplicate check"),
		),
		mcp.WithNumber("number",
			mcp.Description("Issue number, excluded from its own duplicate candidates"),
		),
	)

	evaluateTool := mcp.NewTool("evaluate_facts",
		mcp.WithDescription("Run the loaded rules against a fact set without calling a model. Returns the decision and the name of the rule that fired."),
		mcp.WithString("facts",
			mcp.Required(),
			mcp.Description("Fact set as a JSON object"),
		),
	)

	validateTool := mcp.NewTool("validate_rules",
		mcp.WithDescription("Check a rule document and list its rules in evaluation order"),
		mcp.WithString("document",
			mcp.Required(),
			mcp.Description("Rule document, YAML or JSON"),
		),
	)

	lookupTool := mcp.NewTool("lookup_cache",
		mcp.WithDescription("Fetch a cached triage result by content hash"),
		mcp.WithString("hash",
			mcp.Required(),
			mcp.Description("64 character hex content hash"),
		),
	)

	s.mcpServer.AddTool(triageTool, s.handleTriageText)
	s.mcpServer.AddTool(evaluateTool, s.handleEvaluateFacts)
	s.mcpServer.AddTool(validateTool, s.handleValidateRules)
	s.mcpServer.AddTool(lookupTool, s.handleLookupCache)
}

// Run serves on stdio until the client disconnects
func (s *Server) Run() error {
	log.Printf("[MCP] Serving triage %s on stdio (%d rules)", Version, s.engine.Len())
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) handleTriageText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.processor == nil {
		return mcp.NewToolResultError("triage_text is unavailable: no model is configured (set ANTHROPIC_API_KEY)"), nil
	}
	title := request.GetString("title", "")
	if strings.TrimSpace(title) == "" {
		return mcp.NewToolResultError("title parameter is required"), nil
	}
	item := &types.Item{
		Title:  title,
		Body:   request.GetString("body", ""),
		Repo:   request.GetString("repo", ""),
		Number: request.GetInt("number", 0),
		State:  types.StateOpen,
	}
	if err := item.Validate(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid item: %v", err)), nil
	}

	out := s.processor.Process(ctx, item)
	if out.Failed() {
		return mcp.NewToolResultError(fmt.Sprintf("triage failed: %s", out.Reason)), nil
	}
	return jsonResult(out)
}

// evaluation is the evaluate_facts response
type evaluation struct {
	Action   types.TriageAction `json:"action"`
	RuleName string             `json:"rule_name,omitempty"`
	Fallback bool               `json:"fallback_rules,omitempty"`
}

func (s *Server) handleEvaluateFacts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := request.GetString("facts", "")
	if raw == "" {
		return mcp.NewToolResultError("facts parameter is required"), nil
	}
	facts, err := types.DecodeFactSet([]byte(raw))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, name := s.engine.EvaluateMatch(facts)
	return jsonResult(evaluation{Action: action, RuleName: name, Fallback: s.engine.IsFallback()})
}

// ruleSummary is one entry of the validate_rules response
type ruleSummary struct {
	Name          string   `json:"name"`
	Condition     string   `json:"condition"`
	PriorityScore int      `json:"priority_score"`
	Labels        []string `json:"labels"`
}

func (s *Server) handleValidateRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc := request.GetString("document", "")
	if doc == "" {
		return mcp.NewToolResultError("document parameter is required"), nil
	}
	rs, err := rules.Parse([]byte(doc))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summaries := make([]ruleSummary, 0, len(rs))
	for _, r := range rs {
		summaries = append(summaries, ruleSummary{
			Name:          r.Name,
			Condition:     r.Condition.String(),
			PriorityScore: r.Action.PriorityScore,
			Labels:        r.Action.Labels,
		})
	}
	return jsonResult(summaries)
}

func (s *Server) handleLookupCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no cache is configured"), nil
	}
	h, err := cache.ParseHash(request.GetString("hash", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.store.Lookup(ctx, h)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cache lookup failed: %v", err)), nil
	}
	if entry == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no cache entry for %s", h.Short())), nil
	}
	return jsonResult(entry)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
