// Package mcpserver exposes the engine's public API as MCP tools,
// mirroring the operations one-to-one per the external-interfaces wire
// format: JSON, RFC-3339 UTC dates, decimal/UUID as strings, BLOB as
// base64, errors as {error: {code, message, category, retryable}}.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	mcpserversdk "github.com/ThinkInAIXYZ/go-mcp/server"

	"github.com/pwilkin/grizabella/internal/engine"
	"github.com/pwilkin/grizabella/internal/grizerr"
)

const errParseArgs = "failed to parse arguments: %w"

// ToolManager adapts *engine.Engine onto the MCP tool protocol.
type ToolManager struct {
	engine *engine.Engine
}

// NewToolManager builds a tool manager over eng.
func NewToolManager(eng *engine.Engine) *ToolManager {
	return &ToolManager{engine: eng}
}

type handlerFunc func(context.Context, *protocol.CallToolRequest) (*protocol.CallToolResult, error)

// RegisterTools registers every Grizabella tool with srv.
func (tm *ToolManager) RegisterTools(srv *mcpserversdk.Server) error {
	reg := func(name string, tool *protocol.Tool, handler handlerFunc) error {
		if tool == nil {
			return fmt.Errorf("tool %s creation returned nil", name)
		}
		srv.RegisterTool(tool, handler)
		return nil
	}

	if err := tm.registerSchemaTools(reg); err != nil {
		return err
	}
	if err := tm.registerInstanceTools(reg); err != nil {
		return err
	}
	if err := tm.registerRelationTools(reg); err != nil {
		return err
	}
	if err := tm.registerQueryTools(reg); err != nil {
		return err
	}

	slog.Info("registered all grizabella MCP tools")
	return nil
}

// textResult wraps a single JSON-encoded payload as a text content block,
// the shape every tool handler below returns on success.
func textResult(v interface{}) (*protocol.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return protocol.NewCallToolResult([]protocol.Content{
		&protocol.TextContent{Type: "text", Text: string(body)},
	}, false), nil
}

// errorResult renders err as the wire error envelope and marks the call
// result as an error, per the external-interfaces error format.
func errorResult(err error) (*protocol.CallToolResult, error) {
	code := "internal_error"
	category := "internal"
	retryable := false
	message := err.Error()

	if ge, ok := grizerr.As(err); ok {
		code = string(ge.Kind)
		category = string(ge.Kind)
		retryable = ge.Retryable()
		message = ge.Message
	}

	body, marshalErr := json.Marshal(map[string]interface{}{
		"error": map[string]interface{}{
			"code":      code,
			"message":   message,
			"category":  category,
			"retryable": retryable,
		},
	})
	if marshalErr != nil {
		return nil, marshalErr
	}
	return protocol.NewCallToolResult([]protocol.Content{
		&protocol.TextContent{Type: "text", Text: string(body)},
	}, true), nil
}
