// Package falkordbstore is an alternate store.GraphStore backed by
// FalkorDB (a Redis-protocol graph database), for deployments that need a
// shared, queryable graph store instead of the embedded sqlitestore
// default's edge table.
package falkordbstore

import (
	"context"
	"fmt"

	"github.com/falkordb/falkordb-go"
	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
)

// Store implements store.GraphStore against one named FalkorDB graph.
type Store struct {
	client *falkordb.FalkorDB
	graph  *falkordb.Graph
}

// Open connects to a FalkorDB instance at addr ("host:port") and selects
// graphName, creating it implicitly on first query per FalkorDB's
// semantics.
func Open(ctx context.Context, addr, graphName string) (*Store, error) {
	client, err := falkordb.FalkorDBNew(&falkordb.ConnectionOption{Addr: addr})
	if err != nil {
		return nil, fmt.Errorf("falkordbstore: connect %q: %w", addr, err)
	}
	graph := client.SelectGraph(graphName)
	return &Store{client: client, graph: graph}, nil
}

func (s *Store) Close() error {
	s.client.Close()
	return nil
}

func nodeAlias(ref store.NodeRef) string {
	return "n_" + ref.Type + "_" + ref.ID.String()
}

func (s *Store) UpsertNode(ctx context.Context, objectType string, id uuid.UUID) error {
	q := fmt.Sprintf(`MERGE (n:%s {grz_id: $id})`, cypherLabel(objectType))
	_, err := s.graph.Query(q, map[string]interface{}{"id": id.String()}, nil)
	if err != nil {
		return fmt.Errorf("falkordbstore: upsert node %s/%s: %w", objectType, id, err)
	}
	return nil
}

func (s *Store) DeleteNode(ctx context.Context, objectType string, id uuid.UUID) error {
	q := fmt.Sprintf(`MATCH (n:%s {grz_id: $id}) DETACH DELETE n`, cypherLabel(objectType))
	_, err := s.graph.Query(q, map[string]interface{}{"id": id.String()}, nil)
	if err != nil {
		return fmt.Errorf("falkordbstore: delete node %s/%s: %w", objectType, id, err)
	}
	return nil
}

func (s *Store) UpsertEdge(ctx context.Context, relationType string, source, target store.NodeRef, id uuid.UUID, properties map[string]types.Value) error {
	q := fmt.Sprintf(
		`MATCH (a:%s {grz_id: $source_id}), (b:%s {grz_id: $target_id})
		 MERGE (a)-[r:%s {grz_id: $id}]->(b)`,
		cypherLabel(source.Type), cypherLabel(target.Type), cypherLabel(relationType))
	params := map[string]interface{}{
		"source_id": source.ID.String(),
		"target_id": target.ID.String(),
		"id":        id.String(),
	}
	_, err := s.graph.Query(q, params, nil)
	if err != nil {
		return fmt.Errorf("falkordbstore: upsert edge %s/%s: %w", relationType, id, err)
	}
	return nil
}

func (s *Store) DeleteEdge(ctx context.Context, relationType string, id uuid.UUID) error {
	q := fmt.Sprintf(`MATCH ()-[r:%s {grz_id: $id}]->() DELETE r`, cypherLabel(relationType))
	_, err := s.graph.Query(q, map[string]interface{}{"id": id.String()}, nil)
	if err != nil {
		return fmt.Errorf("falkordbstore: delete edge %s/%s: %w", relationType, id, err)
	}
	return nil
}

func (s *Store) Neighbors(ctx context.Context, anchors []store.NodeRef, relationType string, direction store.Direction, targetType string, targetID *uuid.UUID, targetFilters []store.Filter, limit int) ([]uuid.UUID, error) {
	anchorIDs := make([]string, len(anchors))
	for i, a := range anchors {
		anchorIDs[i] = a.ID.String()
	}

	pattern := "(a)-[r:%s]->(b:%s)"
	if direction == store.DirectionIncoming {
		pattern = "(a)<-[r:%s]-(b:%s)"
	}
	matchClause := fmt.Sprintf("MATCH "+pattern, cypherLabel(relationType), cypherLabel(targetType))

	where := []string{}
	params := map[string]interface{}{}
	if len(anchorIDs) > 0 {
		where = append(where, "a.grz_id IN $anchor_ids")
		params["anchor_ids"] = anchorIDs
	}
	if targetID != nil {
		where = append(where, "b.grz_id = $target_id")
		params["target_id"] = targetID.String()
	}
	for i, f := range targetFilters {
		paramName := fmt.Sprintf("filter_%d", i)
		clause, err := cypherFilter("b", f, paramName)
		if err != nil {
			return nil, fmt.Errorf("falkordbstore: neighbors %q: %w", relationType, err)
		}
		where = append(where, clause)
		params[paramName] = f.Value
	}

	q := matchClause
	if len(where) > 0 {
		q += " WHERE "
		for i, w := range where {
			if i > 0 {
				q += " AND "
			}
			q += w
		}
	}
	q += " RETURN DISTINCT b.grz_id"
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}

	result, err := s.graph.Query(q, params, nil)
	if err != nil {
		return nil, fmt.Errorf("falkordbstore: neighbors %q: %w", relationType, err)
	}

	var ids []uuid.UUID
	for result.Next() {
		record := result.Record()
		raw, ok := record.GetByIndex(0).(string)
		if !ok {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// cypherLabel returns a schema type/relation name unchanged for use as a
// Cypher label. The schema registry does not restrict the characters of
// names and this function does not quote or escape them, so a name that is
// not a valid bare Cypher identifier yields an invalid query.
func cypherLabel(name string) string {
	return name
}

func cypherFilter(alias string, f store.Filter, paramName string) (string, error) {
	col := alias + "." + f.Property
	switch f.Operator {
	case store.OpEqual:
		return col + " = $" + paramName, nil
	case store.OpNotEqual:
		return col + " <> $" + paramName, nil
	case store.OpGreater:
		return col + " > $" + paramName, nil
	case store.OpGreaterEqual:
		return col + " >= $" + paramName, nil
	case store.OpLess:
		return col + " < $" + paramName, nil
	case store.OpLessEqual:
		return col + " <= $" + paramName, nil
	case store.OpIn:
		return col + " IN $" + paramName, nil
	case store.OpContains:
		return col + " CONTAINS $" + paramName, nil
	default:
		return "", fmt.Errorf("unsupported operator %q for graph target filter", f.Operator)
	}
}
