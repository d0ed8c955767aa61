package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
)

func (tm *ToolManager) registerRelationTools(reg func(string, *protocol.Tool, handlerFunc) error) error {
	if err := reg("grizabella_add_relation", tm.addRelationTool(), tm.addRelationHandler); err != nil {
		return err
	}
	if err := reg("grizabella_get_relation", tm.getRelationTool(), tm.getRelationHandler); err != nil {
		return err
	}
	if err := reg("grizabella_delete_relation", tm.deleteRelationTool(), tm.deleteRelationHandler); err != nil {
		return err
	}
	if err := reg("grizabella_get_outgoing_relations", tm.getOutgoingRelationsTool(), tm.getOutgoingRelationsHandler); err != nil {
		return err
	}
	if err := reg("grizabella_get_incoming_relations", tm.getIncomingRelationsTool(), tm.getIncomingRelationsHandler); err != nil {
		return err
	}
	if err := reg("grizabella_query_relations", tm.queryRelationsTool(), tm.queryRelationsHandler); err != nil {
		return err
	}
	return nil
}

func (tm *ToolManager) addRelationTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_add_relation", `Create a directed relation between two existing objects.

Explanation: source_type/target_type must each be allowed endpoints of relation_type. Mirrors the edge into the graph store; if that graph write fails, the relational row is rolled back, and a PartialWrite with a pending coherence repair is returned only when the rollback also fails.
`, AddRelationInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_add_relation", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) addRelationHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input AddRelationInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	relType, err := tm.engine.GetRelationType(input.Relation.RelationTypeName)
	if err != nil {
		return errorResult(err)
	}
	rel, err := relationInstanceFromWire(input.Relation, relType)
	if err != nil {
		return errorResult(err)
	}
	saved, err := tm.engine.AddRelation(ctx, rel, input.SourceType, input.TargetType)
	if err != nil {
		return errorResult(err)
	}
	return textResult(relationInstanceToWire(saved))
}

func (tm *ToolManager) getRelationTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_get_relation", `Fetch relations of a given type between two specific objects.`, GetRelationInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_get_relation", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) getRelationHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input GetRelationInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	sourceID, err := uuid.Parse(input.SourceID)
	if err != nil {
		return errorResult(fmt.Errorf("invalid source_id %q: %w", input.SourceID, err))
	}
	targetID, err := uuid.Parse(input.TargetID)
	if err != nil {
		return errorResult(fmt.Errorf("invalid target_id %q: %w", input.TargetID, err))
	}
	rels, err := tm.engine.GetRelation(ctx, sourceID, targetID, input.RelationType)
	if err != nil {
		return errorResult(err)
	}
	return textResult(relationsToWire(rels))
}

func (tm *ToolManager) deleteRelationTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_delete_relation", `Delete a relation instance by type and id.`, DeleteRelationInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_delete_relation", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) deleteRelationHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input DeleteRelationInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return errorResult(fmt.Errorf("invalid id %q: %w", input.ID, err))
	}
	deleted, err := tm.engine.DeleteRelation(ctx, input.RelationType, id)
	if err != nil {
		return errorResult(err)
	}
	return textResult(map[string]bool{"deleted": deleted})
}

func (tm *ToolManager) getOutgoingRelationsTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_get_outgoing_relations", `List relations where the given object is the source, optionally narrowed by relation_type.`, GetOutgoingRelationsInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_get_outgoing_relations", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) getOutgoingRelationsHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input GetOutgoingRelationsInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return errorResult(fmt.Errorf("invalid id %q: %w", input.ID, err))
	}
	rels, err := tm.engine.GetOutgoingRelations(ctx, id, input.ObjectType, input.RelationType)
	if err != nil {
		return errorResult(err)
	}
	return textResult(relationsToWire(rels))
}

func (tm *ToolManager) getIncomingRelationsTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_get_incoming_relations", `List relations where the given object is the target, optionally narrowed by relation_type.`, GetIncomingRelationsInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_get_incoming_relations", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) getIncomingRelationsHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input GetIncomingRelationsInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return errorResult(fmt.Errorf("invalid id %q: %w", input.ID, err))
	}
	rels, err := tm.engine.GetIncomingRelations(ctx, id, input.ObjectType, input.RelationType)
	if err != nil {
		return errorResult(err)
	}
	return textResult(relationsToWire(rels))
}

func (tm *ToolManager) queryRelationsTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_query_relations", `Query relations by type, endpoints, and/or property filters.`, QueryRelationsInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_query_relations", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) queryRelationsHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input QueryRelationsInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	q, err := input.toDomain()
	if err != nil {
		return errorResult(err)
	}
	rels, err := tm.engine.QueryRelations(ctx, q)
	if err != nil {
		return errorResult(err)
	}
	return textResult(relationsToWire(rels))
}
