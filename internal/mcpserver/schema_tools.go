package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
)

func (tm *ToolManager) registerSchemaTools(reg func(string, *protocol.Tool, handlerFunc) error) error {
	if err := reg("grizabella_create_object_type", tm.createObjectTypeTool(), tm.createObjectTypeHandler); err != nil {
		return err
	}
	if err := reg("grizabella_get_object_type", tm.getObjectTypeTool(), tm.getObjectTypeHandler); err != nil {
		return err
	}
	if err := reg("grizabella_list_object_types", tm.listObjectTypesTool(), tm.listObjectTypesHandler); err != nil {
		return err
	}
	if err := reg("grizabella_delete_object_type", tm.deleteObjectTypeTool(), tm.deleteObjectTypeHandler); err != nil {
		return err
	}
	if err := reg("grizabella_create_relation_type", tm.createRelationTypeTool(), tm.createRelationTypeHandler); err != nil {
		return err
	}
	if err := reg("grizabella_get_relation_type", tm.getRelationTypeTool(), tm.getRelationTypeHandler); err != nil {
		return err
	}
	if err := reg("grizabella_list_relation_types", tm.listRelationTypesTool(), tm.listRelationTypesHandler); err != nil {
		return err
	}
	if err := reg("grizabella_delete_relation_type", tm.deleteRelationTypeTool(), tm.deleteRelationTypeHandler); err != nil {
		return err
	}
	if err := reg("grizabella_create_embedding_definition", tm.createEmbeddingDefinitionTool(), tm.createEmbeddingDefinitionHandler); err != nil {
		return err
	}
	if err := reg("grizabella_get_embedding_definition", tm.getEmbeddingDefinitionTool(), tm.getEmbeddingDefinitionHandler); err != nil {
		return err
	}
	if err := reg("grizabella_list_embedding_definitions", tm.listEmbeddingDefinitionsTool(), tm.listEmbeddingDefinitionsHandler); err != nil {
		return err
	}
	if err := reg("grizabella_delete_embedding_definition", tm.deleteEmbeddingDefinitionTool(), tm.deleteEmbeddingDefinitionHandler); err != nil {
		return err
	}
	return nil
}

// --- object types ---

func (tm *ToolManager) createObjectTypeTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_create_object_type", `Declare a new object type.

Explanation: Registers a named object type with its property set (name, data type, and PK/nullable/indexed/unique flags per property). At most one primary-key property is allowed.

When to call: Before upserting any instance of a type that does not exist yet.
`, CreateObjectTypeInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_create_object_type", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) createObjectTypeHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input CreateObjectTypeInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	if err := tm.engine.CreateObjectType(ctx, input.toDomain()); err != nil {
		return errorResult(err)
	}
	return textResult(map[string]string{"status": "created", "name": input.Name})
}

func (tm *ToolManager) getObjectTypeTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_get_object_type", `Fetch a declared object type's definition by name.`, GetObjectTypeInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_get_object_type", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) getObjectTypeHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input GetObjectTypeInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	def, err := tm.engine.GetObjectType(input.Name)
	if err != nil {
		return errorResult(err)
	}
	return textResult(objectTypeToWire(def))
}

func (tm *ToolManager) listObjectTypesTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_list_object_types", `List every declared object type.`, ListObjectTypesInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_list_object_types", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) listObjectTypesHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	defs := tm.engine.ListObjectTypes()
	out := make([]CreateObjectTypeInput, len(defs))
	for i, d := range defs {
		out[i] = objectTypeToWire(d)
	}
	return textResult(out)
}

func (tm *ToolManager) deleteObjectTypeTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_delete_object_type", `Delete a declared object type.

Explanation: Fails with SchemaConflict if any instance of the type still exists. Relation types that name it as a source or target type are not checked.
`, DeleteObjectTypeInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_delete_object_type", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) deleteObjectTypeHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input DeleteObjectTypeInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	if err := tm.engine.DeleteObjectType(ctx, input.Name); err != nil {
		return errorResult(err)
	}
	return textResult(map[string]string{"status": "deleted", "name": input.Name})
}

// --- relation types ---

func (tm *ToolManager) createRelationTypeTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_create_relation_type", `Declare a new relation type.

Explanation: Registers a named, directed relation type between one or more source object types and one or more target object types, with an optional property set.
`, CreateRelationTypeInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_create_relation_type", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) createRelationTypeHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input CreateRelationTypeInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	if err := tm.engine.CreateRelationType(ctx, input.toDomain()); err != nil {
		return errorResult(err)
	}
	return textResult(map[string]string{"status": "created", "name": input.Name})
}

func (tm *ToolManager) getRelationTypeTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_get_relation_type", `Fetch a declared relation type's definition by name.`, GetRelationTypeInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_get_relation_type", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) getRelationTypeHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input GetRelationTypeInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	def, err := tm.engine.GetRelationType(input.Name)
	if err != nil {
		return errorResult(err)
	}
	return textResult(relationTypeToWire(def))
}

func (tm *ToolManager) listRelationTypesTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_list_relation_types", `List every declared relation type.`, ListRelationTypesInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_list_relation_types", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) listRelationTypesHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	defs := tm.engine.ListRelationTypes()
	out := make([]CreateRelationTypeInput, len(defs))
	for i, d := range defs {
		out[i] = relationTypeToWire(d)
	}
	return textResult(out)
}

func (tm *ToolManager) deleteRelationTypeTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_delete_relation_type", `Delete a declared relation type.

Explanation: Fails with SchemaConflict if any instance of the type still exists.
`, DeleteRelationTypeInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_delete_relation_type", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) deleteRelationTypeHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input DeleteRelationTypeInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	if err := tm.engine.DeleteRelationType(ctx, input.Name); err != nil {
		return errorResult(err)
	}
	return textResult(map[string]string{"status": "deleted", "name": input.Name})
}

// --- embedding definitions ---

func (tm *ToolManager) createEmbeddingDefinitionTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_create_embedding_definition", `Declare an automatic embedding over a TEXT property.

Explanation: Registers a named embedding definition sourced from one TEXT property of an object type and a model id. Triggers a synchronous backfill over every existing instance.
`, CreateEmbeddingDefinitionInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_create_embedding_definition", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) createEmbeddingDefinitionHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input CreateEmbeddingDefinitionInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	if err := tm.engine.CreateEmbeddingDefinition(ctx, input.toDomain()); err != nil {
		return errorResult(err)
	}
	return textResult(map[string]string{"status": "created", "name": input.Name})
}

func (tm *ToolManager) getEmbeddingDefinitionTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_get_embedding_definition", `Fetch a declared embedding definition by name.`, GetEmbeddingDefinitionInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_get_embedding_definition", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) getEmbeddingDefinitionHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input GetEmbeddingDefinitionInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	def, err := tm.engine.GetEmbeddingDefinition(input.Name)
	if err != nil {
		return errorResult(err)
	}
	return textResult(embeddingDefinitionToWire(def))
}

func (tm *ToolManager) listEmbeddingDefinitionsTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_list_embedding_definitions", `List every declared embedding definition.`, ListEmbeddingDefinitionsInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_list_embedding_definitions", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) listEmbeddingDefinitionsHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	defs := tm.engine.ListEmbeddingDefinitions()
	out := make([]CreateEmbeddingDefinitionInput, len(defs))
	for i, d := range defs {
		out[i] = embeddingDefinitionToWire(d)
	}
	return textResult(out)
}

func (tm *ToolManager) deleteEmbeddingDefinitionTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_delete_embedding_definition", `Delete a declared embedding definition. Only the definition is removed; vectors already stored for it are not deleted.`, DeleteEmbeddingDefinitionInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_delete_embedding_definition", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) deleteEmbeddingDefinitionHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input DeleteEmbeddingDefinitionInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	if err := tm.engine.DeleteEmbeddingDefinition(ctx, input.Name); err != nil {
		return errorResult(err)
	}
	return textResult(map[string]string{"status": "deleted", "name": input.Name})
}
