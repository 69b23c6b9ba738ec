// Package mcp implements the Model Context Protocol server for lia.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ajitpratap0/lia/internal/knowledge"
	"github.com/ajitpratap0/lia/internal/models"
	"github.com/ajitpratap0/lia/internal/review"
	"github.com/ajitpratap0/lia/internal/store"
)

// Server wraps an MCPServer with lia dependencies.
type Server struct {
	mcp       *mcpserver.MCPServer
	engine    *knowledge.Engine
	scheduler *review.Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

// NewServer creates a new MCP server. If engine or scheduler are nil, the
// corresponding tool calls return an error response instead of panicking.
func NewServer(engine *knowledge.Engine, scheduler *review.Scheduler, version string, logger *slog.Logger) *Server {
	s := &Server{
		engine:    engine,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"lia",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildAskTool(), s.handleAsk)
	mcpSrv.AddTool(buildListTopicsTool(), s.handleListTopics)
	mcpSrv.AddTool(buildShowTopicTool(), s.handleShowTopic)
	mcpSrv.AddTool(buildGetRecordTool(), s.handleGetRecord)
	mcpSrv.AddTool(buildListReviewGroupsTool(), s.handleListReviewGroups)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleAsk is the exported handler for the "ask" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleAsk(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleAsk(ctx, req)
}

// HandleListTopics is the exported handler for the "list_topics" tool.
func (s *Server) HandleListTopics(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleListTopics(ctx, req)
}

// HandleShowTopic is the exported handler for the "show_topic" tool.
func (s *Server) HandleShowTopic(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleShowTopic(ctx, req)
}

// HandleGetRecord is the exported handler for the "get_record" tool.
func (s *Server) HandleGetRecord(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleGetRecord(ctx, req)
}

// HandleListReviewGroups is the exported handler for the "list_review_groups" tool.
func (s *Server) HandleListReviewGroups(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleListReviewGroups(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// --- tool definitions ---

func buildAskTool() mcpgo.Tool {
	return mcpgo.NewTool("ask",
		mcpgo.WithDescription("Answer a question from the knowledge base. Returns the closest record headings with similarity scores and, when the best one is relevant, its body."),
		mcpgo.WithString("query",
			mcpgo.Required(),
			mcpgo.Description("The question, in natural language. Naming a topic (e.g. bash) narrows the search to it."),
		),
	)
}

func buildListTopicsTool() mcpgo.Tool {
	return mcpgo.NewTool("list_topics",
		mcpgo.WithDescription("List every knowledge base topic."),
	)
}

func buildShowTopicTool() mcpgo.Tool {
	return mcpgo.NewTool("show_topic",
		mcpgo.WithDescription("List the record headings of a topic, sorted alphabetically."),
		mcpgo.WithString("topic",
			mcpgo.Required(),
			mcpgo.Description("Topic name"),
		),
	)
}

func buildGetRecordTool() mcpgo.Tool {
	return mcpgo.NewTool("get_record",
		mcpgo.WithDescription("Get a record of a topic by its 0-based position in the topic file."),
		mcpgo.WithString("topic",
			mcpgo.Required(),
			mcpgo.Description("Topic name"),
		),
		mcpgo.WithNumber("index",
			mcpgo.Required(),
			mcpgo.Description("0-based record index; sibling headings count as one record"),
		),
	)
}

func buildListReviewGroupsTool() mcpgo.Tool {
	return mcpgo.NewTool("list_review_groups",
		mcpgo.WithDescription("List spaced-repetition review groups, most urgent first, or the groups of one topic in order."),
		mcpgo.WithString("topic",
			mcpgo.Description("Restrict to one topic (optional)"),
		),
	)
}

// --- tool handlers ---

// matchView is one ranked heading as returned by the ask tool.
type matchView struct {
	Topic string           `json:"topic"`
	ID    int              `json:"id"`
	Text  string           `json:"text"`
	Tags  []string         `json:"tags,omitempty"`
	Score float64          `json:"score"`
	Band  models.ScoreBand `json:"band"`
}

// handleAsk runs a query through the match engine.
func (s *Server) handleAsk(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.engine == nil {
		return mcpgo.NewToolResultError("knowledge base is unavailable"), nil
	}

	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcpgo.NewToolResultError("query is required and must not be empty"), nil
	}

	answer, err := s.engine.Ask(ctx, query)
	if err != nil {
		return mcpgo.NewToolResultErrorf("ask failed: %s", err.Error()), nil
	}

	matches := make([]matchView, 0, len(answer.Matches))
	for _, m := range answer.Matches {
		matches = append(matches, matchView{
			Topic: m.Heading.Topic,
			ID:    m.Heading.ID,
			Text:  m.Heading.Text,
			Tags:  m.Heading.Tags,
			Score: m.Score,
			Band:  m.Band(),
		})
	}

	s.logger.Info("mcp: ask answered", "matches", len(matches), "relevant", answer.Relevant)

	result := map[string]any{
		"matches":  matches,
		"relevant": answer.Relevant,
		"body":     answer.Body,
	}
	return toolResultJSON(result)
}

// handleListTopics returns every topic.
func (s *Server) handleListTopics(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.engine == nil {
		return mcpgo.NewToolResultError("knowledge base is unavailable"), nil
	}

	topics, err := s.engine.ListTopics(ctx)
	if err != nil {
		return mcpgo.NewToolResultErrorf("listing topics failed: %s", err.Error()), nil
	}
	return toolResultJSON(map[string]any{"topics": topics})
}

// handleShowTopic returns the sorted headings of a topic.
func (s *Server) handleShowTopic(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.engine == nil {
		return mcpgo.NewToolResultError("knowledge base is unavailable"), nil
	}

	topic := req.GetString("topic", "")
	if strings.TrimSpace(topic) == "" {
		return mcpgo.NewToolResultError("topic is required and must not be empty"), nil
	}

	headings, err := s.engine.ListHeadingsForTopic(ctx, topic)
	if errors.Is(err, store.ErrTopicNotFound) {
		return mcpgo.NewToolResultErrorf("topic %q does not exist", topic), nil
	}
	if err != nil {
		return mcpgo.NewToolResultErrorf("reading topic failed: %s", err.Error()), nil
	}

	result := map[string]any{
		"topic":    topic,
		"headings": headings,
	}
	return toolResultJSON(result)
}

// handleGetRecord returns one record of a topic.
func (s *Server) handleGetRecord(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.engine == nil {
		return mcpgo.NewToolResultError("knowledge base is unavailable"), nil
	}

	topic := req.GetString("topic", "")
	if strings.TrimSpace(topic) == "" {
		return mcpgo.NewToolResultError("topic is required and must not be empty"), nil
	}
	index := req.GetInt("index", -1)
	if index < 0 {
		return mcpgo.NewToolResultError("index is required and must be >= 0"), nil
	}

	record, err := s.engine.RecordByIndex(ctx, topic, index)
	switch {
	case errors.Is(err, store.ErrTopicNotFound):
		return mcpgo.NewToolResultErrorf("topic %q does not exist", topic), nil
	case errors.Is(err, store.ErrNotFound):
		return mcpgo.NewToolResultErrorf("topic %q has no record %d", topic, index), nil
	case err != nil:
		return mcpgo.NewToolResultErrorf("reading record failed: %s", err.Error()), nil
	}
	return toolResultJSON(record)
}

// groupView is a review group plus whether it is due today.
type groupView struct {
	models.ReviewGroup
	Due bool `json:"due"`
}

// handleListReviewGroups lists review groups.
func (s *Server) handleListReviewGroups(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.scheduler == nil {
		return mcpgo.NewToolResultError("review store is unavailable"), nil
	}

	var (
		groups []models.ReviewGroup
		err    error
	)
	if topic := strings.TrimSpace(req.GetString("topic", "")); topic != "" {
		groups, err = s.scheduler.FetchGroupsForTopic(ctx, topic)
		if errors.Is(err, store.ErrTopicNotFound) {
			return mcpgo.NewToolResultErrorf("topic %q does not exist", topic), nil
		}
	} else {
		groups, err = s.scheduler.FetchGroupsToReview(ctx)
	}
	if err != nil {
		return mcpgo.NewToolResultErrorf("listing review groups failed: %s", err.Error()), nil
	}

	now := s.now()
	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, groupView{ReviewGroup: g, Due: g.IsDue(now)})
	}
	return toolResultJSON(map[string]any{"groups": views})
}
