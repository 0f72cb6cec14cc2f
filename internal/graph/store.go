package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNodeNotFound marks a graph query against an unknown entity name.
var ErrNodeNotFound = domain.ErrNotFound

// MaxDepth bounds explore and path traversals.
const MaxDepth = 5

// Store maintains the entity and relationship tables keyed by memory id.
// Nodes are shared across memories; memory_entity_links is the only way to
// get from a memory to its entities.
type Store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

const graphSchema = `
CREATE TABLE IF NOT EXISTS entities (
    id               UUID PRIMARY KEY,
    entity_name      TEXT NOT NULL UNIQUE,
    entity_type      TEXT NOT NULL,
    importance_score REAL NOT NULL DEFAULT 0.5,
    mention_count    INTEGER NOT NULL DEFAULT 1,
    properties       JSONB NOT NULL DEFAULT '{}',
    first_seen       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_seen        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS relationships (
    id                UUID PRIMARY KEY,
    from_node_id      UUID NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    to_node_id        UUID NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    relationship_type TEXT NOT NULL,
    strength          REAL NOT NULL DEFAULT 0.5,
    confidence        REAL NOT NULL DEFAULT 0.5,
    occurrence_count  INTEGER NOT NULL DEFAULT 1,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT relationships_no_self CHECK (from_node_id <> to_node_id),
    CONSTRAINT relationships_unique UNIQUE (from_node_id, to_node_id, relationship_type)
);

CREATE TABLE IF NOT EXISTS memory_entity_links (
    memory_id UUID NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    entity_id UUID NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    PRIMARY KEY (memory_id, entity_id)
);

CREATE INDEX IF NOT EXISTS relationships_from_idx ON relationships (from_node_id);
CREATE INDEX IF NOT EXISTS relationships_to_idx ON relationships (to_node_id);
CREATE INDEX IF NOT EXISTS memory_entity_links_entity_idx ON memory_entity_links (entity_id);
`

// NewStore creates the graph tables synchronously; the store is ready when
// the constructor returns. The pool is shared with the primary provider so
// links can reference the memories table.
func NewStore(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger) (*Store, error) {
	if _, err := db.Exec(ctx, graphSchema); err != nil {
		return nil, fmt.Errorf("create graph schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

const nodeColumns = `id, entity_name, entity_type, importance_score, mention_count, properties, first_seen, last_seen`
const edgeColumns = `id, from_node_id, to_node_id, relationship_type, strength, confidence, occurrence_count, created_at`

// UpsertEntity inserts a node by canonical name or, on conflict, increments
// mention_count, refreshes last_seen, and keeps the max importance. The
// unique constraint serializes concurrent upserts of the same name.
func (s *Store) UpsertEntity(ctx context.Context, name string, typ domain.EntityType, importance float32) (*domain.GraphNode, error) {
	n := &domain.GraphNode{}
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO entities (id, entity_name, entity_type, importance_score)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (entity_name) DO UPDATE
		 SET mention_count = entities.mention_count + 1,
		     last_seen = NOW(),
		     importance_score = GREATEST(entities.importance_score, EXCLUDED.importance_score)
		 RETURNING %s`, nodeColumns),
		uuid.New(), name, typ, importance,
	).Scan(&n.ID, &n.EntityName, &n.EntityType, &n.ImportanceScore,
		&n.MentionCount, &n.Properties, &n.FirstSeen, &n.LastSeen)
	if err != nil {
		return nil, fmt.Errorf("upsert entity %q: %w", name, err)
	}
	return n, nil
}

// UpsertRelationship inserts an edge or, on conflict of (from, to, type),
// increments occurrence_count and folds the new strength into a running
// weighted average.
func (s *Store) UpsertRelationship(ctx context.Context, from, to uuid.UUID, typ domain.RelationshipType, strength, confidence float32) (*domain.GraphRelationship, error) {
	if from == to {
		return nil, fmt.Errorf("%w: self relationship", domain.ErrInvalidRequest)
	}

	r := &domain.GraphRelationship{}
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO relationships (id, from_node_id, to_node_id, relationship_type, strength, confidence)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (from_node_id, to_node_id, relationship_type) DO UPDATE
		 SET strength = (relationships.strength * relationships.occurrence_count + EXCLUDED.strength)
		                / (relationships.occurrence_count + 1),
		     occurrence_count = relationships.occurrence_count + 1,
		     confidence = GREATEST(relationships.confidence, EXCLUDED.confidence)
		 RETURNING %s`, edgeColumns),
		uuid.New(), from, to, typ, strength, confidence,
	).Scan(&r.ID, &r.FromNodeID, &r.ToNodeID, &r.RelationshipType,
		&r.Strength, &r.Confidence, &r.OccurrenceCount, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert relationship: %w", err)
	}
	return r, nil
}

// LinkMemory records that a memory mentions an entity.
func (s *Store) LinkMemory(ctx context.Context, memoryID, entityID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO memory_entity_links (memory_id, entity_id)
		 VALUES ($1, $2)
		 ON CONFLICT (memory_id, entity_id) DO NOTHING`,
		memoryID, entityID,
	)
	if err != nil {
		return fmt.Errorf("link memory to entity: %w", err)
	}
	return nil
}

// UnlinkMemory removes all entity links for a memory. The FK cascade covers
// the same ground on memory delete; this is for providers that manage links
// explicitly.
func (s *Store) UnlinkMemory(ctx context.Context, memoryID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM memory_entity_links WHERE memory_id = $1`, memoryID)
	return err
}

func (s *Store) GetNodeByName(ctx context.Context, name string) (*domain.GraphNode, error) {
	n := &domain.GraphNode{}
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM entities WHERE entity_name = $1`, nodeColumns),
		Canonicalize(name),
	).Scan(&n.ID, &n.EntityName, &n.EntityType, &n.ImportanceScore,
		&n.MentionCount, &n.Properties, &n.FirstSeen, &n.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

// EntitySearch returns nodes whose normalized name contains the pattern,
// most important first.
func (s *Store) EntitySearch(ctx context.Context, pattern string, entityType domain.EntityType, limit int) ([]domain.GraphNode, error) {
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(`SELECT %s FROM entities WHERE entity_name LIKE '%%' || $1 || '%%'`, nodeColumns)
	args := []any{Normalize(pattern)}
	if entityType != "" {
		query += ` AND entity_type = $2`
		args = append(args, entityType)
	}
	query += fmt.Sprintf(` ORDER BY importance_score DESC, mention_count DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("entity search: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// Neighbors returns the direct neighborhood of an entity, strongest edges
// first.
func (s *Store) Neighbors(ctx context.Context, entityName string, limit int, minStrength float32) (*domain.GraphNeighborhood, error) {
	node, err := s.GetNodeByName(ctx, entityName)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM relationships
		 WHERE (from_node_id = $1 OR to_node_id = $1) AND strength >= $2
		 ORDER BY strength DESC
		 LIMIT $3`, edgeColumns),
		node.ID, minStrength, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("neighbors: %w", err)
	}
	defer rows.Close()

	edges, err := scanEdges(rows)
	if err != nil {
		return nil, err
	}

	ids := map[uuid.UUID]bool{node.ID: true}
	for _, e := range edges {
		ids[e.FromNodeID] = true
		ids[e.ToNodeID] = true
	}
	nodes, err := s.nodesByID(ctx, keys(ids))
	if err != nil {
		return nil, err
	}
	return &domain.GraphNeighborhood{Nodes: nodes, Edges: edges}, nil
}

// Explore walks the graph breadth-first from an entity, returning every
// node and edge within depth hops. Nodes are ordered by decreasing
// strength * importance (strength being the strongest incident edge seen
// during the walk).
func (s *Store) Explore(ctx context.Context, entityName string, depth int) (*domain.GraphNeighborhood, error) {
	if depth <= 0 || depth > MaxDepth {
		depth = MaxDepth
	}

	root, err := s.GetNodeByName(ctx, entityName)
	if err != nil {
		return nil, err
	}

	visited := map[uuid.UUID]bool{root.ID: true}
	bestStrength := map[uuid.UUID]float32{root.ID: 1}
	var allEdges []domain.GraphRelationship
	seenEdges := map[uuid.UUID]bool{}
	frontier := []uuid.UUID{root.ID}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		edges, err := s.edgesTouching(ctx, frontier)
		if err != nil {
			return nil, err
		}

		var next []uuid.UUID
		for _, e := range edges {
			if !seenEdges[e.ID] {
				seenEdges[e.ID] = true
				allEdges = append(allEdges, e)
			}
			for _, id := range []uuid.UUID{e.FromNodeID, e.ToNodeID} {
				if e.Strength > bestStrength[id] {
					bestStrength[id] = e.Strength
				}
				if !visited[id] {
					visited[id] = true
					next = append(next, id)
				}
			}
		}
		frontier = next
	}

	nodes, err := s.nodesByID(ctx, keys(visited))
	if err != nil {
		return nil, err
	}
	sort.Slice(nodes, func(i, j int) bool {
		return bestStrength[nodes[i].ID]*nodes[i].ImportanceScore >
			bestStrength[nodes[j].ID]*nodes[j].ImportanceScore
	})
	sort.Slice(allEdges, func(i, j int) bool { return allEdges[i].Strength > allEdges[j].Strength })

	return &domain.GraphNeighborhood{Nodes: nodes, Edges: allEdges}, nil
}

// Path finds the shortest path by hop count between two entities, breaking
// ties by the higher sum of edge strengths. Returns path_found=false when
// no path exists within maxDepth.
func (s *Store) Path(ctx context.Context, fromName, toName string, maxDepth int) (*domain.GraphPath, error) {
	if maxDepth <= 0 || maxDepth > MaxDepth {
		maxDepth = MaxDepth
	}

	from, err := s.GetNodeByName(ctx, fromName)
	if err != nil {
		return nil, err
	}
	to, err := s.GetNodeByName(ctx, toName)
	if err != nil {
		return nil, err
	}
	if from.ID == to.ID {
		return &domain.GraphPath{PathFound: true, Nodes: []domain.GraphNode{*from}}, nil
	}

	type visit struct {
		dist     int
		strength float32
		parent   uuid.UUID
	}
	visits := map[uuid.UUID]visit{from.ID: {dist: 0, strength: 0}}
	frontier := []uuid.UUID{from.ID}

	for hop := 1; hop <= maxDepth && len(frontier) > 0; hop++ {
		edges, err := s.edgesTouching(ctx, frontier)
		if err != nil {
			return nil, err
		}

		nextSet := map[uuid.UUID]bool{}
		for _, e := range edges {
			for _, pair := range [][2]uuid.UUID{{e.FromNodeID, e.ToNodeID}, {e.ToNodeID, e.FromNodeID}} {
				src, dst := pair[0], pair[1]
				sv, ok := visits[src]
				if !ok || sv.dist != hop-1 {
					continue
				}
				cand := visit{dist: hop, strength: sv.strength + e.Strength, parent: src}
				if cur, seen := visits[dst]; !seen {
					visits[dst] = cand
					nextSet[dst] = true
				} else if cur.dist == hop && cand.strength > cur.strength {
					visits[dst] = cand
				}
			}
		}

		if _, found := visits[to.ID]; found {
			break
		}
		frontier = keys(nextSet)
	}

	final, found := visits[to.ID]
	if !found {
		return &domain.GraphPath{PathFound: false}, nil
	}

	// Walk parents back to the root.
	var ids []uuid.UUID
	for cur := to.ID; ; {
		ids = append([]uuid.UUID{cur}, ids...)
		if cur == from.ID {
			break
		}
		cur = visits[cur].parent
	}
	nodes, err := s.nodesByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := map[uuid.UUID]domain.GraphNode{}
	for _, n := range nodes {
		byID[n.ID] = n
	}
	ordered := make([]domain.GraphNode, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, byID[id])
	}

	return &domain.GraphPath{
		PathFound: true,
		Nodes:     ordered,
		Hops:      final.dist,
		Strength:  final.strength,
	}, nil
}

// Insights returns the entities linked to a memory and each entity's top-K
// neighbors by edge strength.
func (s *Store) Insights(ctx context.Context, memoryID uuid.UUID, topK int) (*domain.GraphNeighborhood, error) {
	if topK <= 0 {
		topK = 5
	}

	linked, err := s.EntitiesForMemory(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if len(linked) == 0 {
		return &domain.GraphNeighborhood{}, nil
	}

	ids := make([]uuid.UUID, len(linked))
	idSet := map[uuid.UUID]bool{}
	for i, n := range linked {
		ids[i] = n.ID
		idSet[n.ID] = true
	}

	edges, err := s.edgesTouching(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Strength > edges[j].Strength })

	// Keep at most topK edges per linked entity.
	perEntity := map[uuid.UUID]int{}
	var kept []domain.GraphRelationship
	for _, e := range edges {
		anchor := e.FromNodeID
		if !idSet[anchor] {
			anchor = e.ToNodeID
		}
		if perEntity[anchor] >= topK {
			continue
		}
		perEntity[anchor]++
		kept = append(kept, e)
	}

	nodeSet := map[uuid.UUID]bool{}
	for _, n := range linked {
		nodeSet[n.ID] = true
	}
	for _, e := range kept {
		nodeSet[e.FromNodeID] = true
		nodeSet[e.ToNodeID] = true
	}
	nodes, err := s.nodesByID(ctx, keys(nodeSet))
	if err != nil {
		return nil, err
	}

	return &domain.GraphNeighborhood{Nodes: nodes, Edges: kept}, nil
}

// EntitiesForMemory returns the nodes linked to a memory.
func (s *Store) EntitiesForMemory(ctx context.Context, memoryID uuid.UUID) ([]domain.GraphNode, error) {
	rows, err := s.db.Query(ctx,
		`SELECT e.id, e.entity_name, e.entity_type, e.importance_score,
		        e.mention_count, e.properties, e.first_seen, e.last_seen
		 FROM entities e
		 INNER JOIN memory_entity_links l ON l.entity_id = e.id
		 WHERE l.memory_id = $1
		 ORDER BY e.importance_score DESC`,
		memoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("entities for memory: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

func (s *Store) Stats(ctx context.Context) (*domain.GraphStats, error) {
	stats := &domain.GraphStats{TypeDistribution: map[string]int64{}}

	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM entities`).Scan(&stats.NodeCount); err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM relationships`).Scan(&stats.RelationshipCount); err != nil {
		return nil, fmt.Errorf("count relationships: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT entity_type, COUNT(*) FROM entities GROUP BY entity_type`)
	if err != nil {
		return nil, fmt.Errorf("type distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int64
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, err
		}
		stats.TypeDistribution[typ] = count
	}
	return stats, rows.Err()
}

func (s *Store) edgesTouching(ctx context.Context, ids []uuid.UUID) ([]domain.GraphRelationship, error) {
	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM relationships
		 WHERE from_node_id = ANY($1) OR to_node_id = ANY($1)`, edgeColumns),
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("edges touching: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

func (s *Store) nodesByID(ctx context.Context, ids []uuid.UUID) ([]domain.GraphNode, error) {
	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM entities WHERE id = ANY($1)`, nodeColumns), ids)
	if err != nil {
		return nil, fmt.Errorf("nodes by id: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

func scanNodes(rows pgx.Rows) ([]domain.GraphNode, error) {
	var nodes []domain.GraphNode
	for rows.Next() {
		var n domain.GraphNode
		if err := rows.Scan(&n.ID, &n.EntityName, &n.EntityType, &n.ImportanceScore,
			&n.MentionCount, &n.Properties, &n.FirstSeen, &n.LastSeen); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func scanEdges(rows pgx.Rows) ([]domain.GraphRelationship, error) {
	var edges []domain.GraphRelationship
	for rows.Next() {
		var e domain.GraphRelationship
		if err := rows.Scan(&e.ID, &e.FromNodeID, &e.ToNodeID, &e.RelationshipType,
			&e.Strength, &e.Confidence, &e.OccurrenceCount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func keys(set map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
