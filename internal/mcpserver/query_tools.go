package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"github.com/pwilkin/grizabella/internal/engine"
	"github.com/pwilkin/grizabella/internal/query"
)

func (tm *ToolManager) registerQueryTools(reg func(string, *protocol.Tool, handlerFunc) error) error {
	if err := reg("grizabella_search_similar_objects", tm.searchSimilarObjectsTool(), tm.searchSimilarObjectsHandler); err != nil {
		return err
	}
	if err := reg("grizabella_find_similar", tm.findSimilarTool(), tm.findSimilarHandler); err != nil {
		return err
	}
	if err := reg("grizabella_get_embedding_vector_for_text", tm.getEmbeddingVectorForTextTool(), tm.getEmbeddingVectorForTextHandler); err != nil {
		return err
	}
	if err := reg("grizabella_execute_complex_query", tm.executeComplexQueryTool(), tm.executeComplexQueryHandler); err != nil {
		return err
	}
	return nil
}

func (tm *ToolManager) searchSimilarObjectsTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_search_similar_objects", `Find the n nearest neighbors of an existing object's own embedding(s).

Explanation: search_properties, if given, restricts the search to embedding definitions sourced from those properties; otherwise every embedding definition on the object's type is tried and results are merged by score, best first.
`, SearchSimilarObjectsInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_search_similar_objects", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) searchSimilarObjectsHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input SearchSimilarObjectsInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return errorResult(fmt.Errorf("invalid id %q: %w", input.ID, err))
	}
	results, err := tm.engine.SearchSimilarObjects(ctx, input.ObjectType, id, input.N, input.SearchProperties)
	if err != nil {
		return errorResult(err)
	}
	return textResult(scoredObjectsToWire(results))
}

func (tm *ToolManager) findSimilarTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_find_similar", `Embed free text and return the nearest objects of an embedding definition's object type, optionally narrowed by a relational filter.`, FindSimilarInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_find_similar", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) findSimilarHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input FindSimilarInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	results, err := tm.engine.FindSimilar(ctx, input.EmbeddingDefName, input.QueryText, input.Limit, filtersFromWire(input.Filter))
	if err != nil {
		return errorResult(err)
	}
	return textResult(scoredObjectsToWire(results))
}

func (tm *ToolManager) getEmbeddingVectorForTextTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_get_embedding_vector_for_text", `Compute the raw vector text would produce under an embedding definition's model, without storing anything.`, GetEmbeddingVectorForTextInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_get_embedding_vector_for_text", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) getEmbeddingVectorForTextHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input GetEmbeddingVectorForTextInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	vec, err := tm.engine.GetEmbeddingVectorForText(ctx, input.Text, input.EmbeddingDefName)
	if err != nil {
		return errorResult(err)
	}
	return textResult(map[string]interface{}{"vector": vec})
}

func (tm *ToolManager) executeComplexQueryTool() *protocol.Tool {
	tool, err := protocol.NewTool("grizabella_execute_complex_query", `Evaluate a boolean query tree of relational filters, embedding searches, and graph traversals.

Explanation: query is a tagged node, one of {"and": [...]}, {"or": [...]}, {"not": node}, or {"component": {...}}. Not is only permitted directly below a top-level and; a free-standing not is a QueryError. A graph traversal whose target_type matches the component's object_type replaces the running candidate set with the traversal's targets; a traversal to a different target_type acts as an existence filter.
`, ExecuteComplexQueryInput{})
	if err != nil {
		slog.Error("failed to create tool", "name", "grizabella_execute_complex_query", "err", err)
		return nil
	}
	return tool
}

func (tm *ToolManager) executeComplexQueryHandler(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input ExecuteComplexQueryInput
	if err := json.Unmarshal(request.RawArguments, &input); err != nil {
		return nil, fmt.Errorf(errParseArgs, err)
	}
	root, err := clauseFromWire(input.Query)
	if err != nil {
		return errorResult(err)
	}
	result, err := tm.engine.ExecuteComplexQuery(ctx, query.Query{Root: root}, input.Limit)
	if err != nil {
		return errorResult(err)
	}
	out := make([]ObjectInstanceWire, len(result.Instances))
	for i, o := range result.Instances {
		out[i] = objectInstanceToWire(o)
	}
	return textResult(map[string]interface{}{
		"instances": out,
		"errors":    result.Errors,
	})
}

func scoredObjectsToWire(results []engine.ScoredObject) []ScoredObjectWire {
	out := make([]ScoredObjectWire, len(results))
	for i, r := range results {
		out[i] = ScoredObjectWire{Object: objectInstanceToWire(r.Object), Score: r.Score}
	}
	return out
}
