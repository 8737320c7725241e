package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/oltdash/internal/config"
	"github.com/hpungsan/oltdash/internal/errors"
	"github.com/hpungsan/oltdash/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	pipeline *ops.Pipeline
	rowLimit int
	log      *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(p *ops.Pipeline, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{pipeline: p, rowLimit: cfg.RowLimit, log: logger}
}

// RecordsRequest represents the arguments for dashboard_records.
type RecordsRequest struct {
	Query  string `json:"query,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// SummaryRequest represents the arguments for dashboard_summary.
type SummaryRequest struct {
	Query string `json:"query,omitempty"`
}

// StatusRequest represents the arguments for dashboard_status.
type StatusRequest struct {
	Refresh bool `json:"refresh,omitempty"`
}

// HandleRecords handles the dashboard_records tool call.
func (h *Handlers) HandleRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RecordsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Limit == 0 {
		input.Limit = h.rowLimit
	}

	result, err := h.pipeline.Records(ctx, ops.RecordsInput{
		Query:  input.Query,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return h.errorResult(err), nil
	}

	return successResult(result)
}

// HandleSummary handles the dashboard_summary tool call.
func (h *Handlers) HandleSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SummaryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.pipeline.Summary(ctx, ops.SummaryInput{Query: input.Query})
	if err != nil {
		return h.errorResult(err), nil
	}

	return successResult(result)
}

// HandleStatus handles the dashboard_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StatusRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.pipeline.Status(ctx, ops.StatusInput{Refresh: input.Refresh})
	if err != nil {
		return h.errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult logs unexpected errors before converting them.
func (h *Handlers) errorResult(err error) *mcp.CallToolResult {
	if !errors.Is(err, errors.ErrInvalidRequest) {
		h.log.Warn("tool call failed", "error", err)
	}
	return errorResult(err)
}

// errorResult creates an MCP error result from any error.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var dErr *errors.DashError
	if stderrors.As(err, &dErr) && dErr.Code != errors.ErrInternal {
		errorObj := map[string]any{
			"code":    dErr.Code,
			"message": dErr.Message,
			"status":  dErr.Status,
		}
		if dErr.Details != nil {
			errorObj["details"] = dErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
