package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
)

func (tm *ToolManager) registerInstanceTools(reg func(string, *protocol.Tool, handlerFunc) error) error {
	if err := reg("grizabella_upsert_object", tm.upsertObjectTool(), tm.upsertObjectHandler); err != nil {
		return err
	}
	if err := reg("grizabella_get_object_by_id", tm.getObjectByIDTool(), tm.getObjectByIDHandler); err != nil {
		return err
	}
	if err := reg("grizabella_delete_object", tm.deleteObjectTool(), tm.deleteObjectHandler); err != nil {
		return err
	}
	if err := reg("grizabella_find_objects", tm.findObjectsTool(), tm.findObjectsHandler); err != nil {
		return err
	}
	return nil
}

func (tm *ToolManager) upsertObjectTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_upsert_object", `Create or update an object instance.

Explanation: Idempotent by id (a server-generated id is assigned when omitted). Triggers embedding recomputation for any stale embedded property and mirrors the object into the graph store.

When to call: Whenever a client needs to persist or update a single object.
`, UpsertObjectInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_upsert_object", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) upsertObjectHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input UpsertObjectInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	objType, err := tm.engine.GetObjectType(input.Object.ObjectTypeName)
	if err != nil {
		return errorResult(err)
	}
	obj, err := objectInstanceFromWire(input.Object, objType)
	if err != nil {
		return errorResult(err)
	}
	saved, embedErrs, err := tm.engine.UpsertObject(ctx, obj)
	if err != nil {
		return errorResult(err)
	}
	warnings := make([]string, len(embedErrs))
	for i, e := range embedErrs {
		warnings[i] = e.Error()
	}
	return textResult(map[string]interface{}{
		"object":              objectInstanceToWire(saved),
		"embedding_warnings": warnings,
	})
}

func (tm *ToolManager) getObjectByIDTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_get_object_by_id", `Fetch a single object instance by type and id.`, GetObjectByIDInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_get_object_by_id", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) getObjectByIDHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input GetObjectByIDInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return errorResult(fmt.Errorf("invalid id %q: %w", input.ID, err))
	}
	obj, err := tm.engine.GetObjectByID(ctx, input.ObjectType, id)
	if err != nil {
		return errorResult(err)
	}
	if obj == nil {
		return textResult(map[string]interface{}{"object": nil})
	}
	return textResult(map[string]interface{}{"object": objectInstanceToWire(*obj)})
}

func (tm *ToolManager) deleteObjectTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_delete_object", `Delete an object instance by type and id.

Explanation: Also removes its relations, vectors, and graph mirror node. The graph mirror node is deleted before the relational row; if that graph delete fails, the call returns an error and the relational row is kept.
`, DeleteObjectInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_delete_object", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) deleteObjectHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input DeleteObjectInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return errorResult(fmt.Errorf("invalid id %q: %w", input.ID, err))
	}
	deleted, err := tm.engine.DeleteObject(ctx, input.ObjectType, id)
	if err != nil {
		return errorResult(err)
	}
	return textResult(map[string]bool{"deleted": deleted})
}

func (tm *ToolManager) findObjectsTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_find_objects", `Find object instances of a type matching property filters.`, FindObjectsInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_find_objects", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) findObjectsHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input FindObjectsInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	objs, err := tm.engine.FindObjects(ctx, input.ObjectType, filtersFromWire(input.Filters), input.Limit)
	if err != nil {
		return errorResult(err)
	}
	out := make([]ObjectInstanceWire, len(objs))
	for i, o := range objs {
		out[i] = objectInstanceToWire(o)
	}
	return textResult(out)
}
