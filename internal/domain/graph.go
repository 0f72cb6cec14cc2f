package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityProduct      EntityType = "product"
	EntityTechnology   EntityType = "technology"
	EntityConcept      EntityType = "concept"
	EntityEvent        EntityType = "event"
	EntityOther        EntityType = "other"
)

func ValidEntityType(t string) bool {
	switch EntityType(t) {
	case EntityPerson, EntityOrganization, EntityLocation, EntityProduct,
		EntityTechnology, EntityConcept, EntityEvent, EntityOther:
		return true
	}
	return false
}

type RelationshipType string

const (
	RelRelatesTo      RelationshipType = "relates_to"
	RelMentions       RelationshipType = "mentions"
	RelCausedBy       RelationshipType = "caused_by"
	RelPartOf         RelationshipType = "part_of"
	RelWorksWith      RelationshipType = "works_with"
	RelLocatedIn      RelationshipType = "located_in"
	RelCreatedBy      RelationshipType = "created_by"
	RelUsedBy         RelationshipType = "used_by"
	RelSimilarTo      RelationshipType = "similar_to"
	RelPrecedes       RelationshipType = "precedes"
	RelFollows        RelationshipType = "follows"
	RelWorksAt        RelationshipType = "works_at"
	RelDevelops       RelationshipType = "develops"
	RelLeads          RelationshipType = "leads"
	RelUses           RelationshipType = "uses"
	RelAffiliatedWith RelationshipType = "affiliated_with"
	RelInvestsIn      RelationshipType = "invests_in"
	RelCompetesWith   RelationshipType = "competes_with"
	RelOwns           RelationshipType = "owns"
)

func ValidRelationshipType(t string) bool {
	switch RelationshipType(t) {
	case RelRelatesTo, RelMentions, RelCausedBy, RelPartOf, RelWorksWith,
		RelLocatedIn, RelCreatedBy, RelUsedBy, RelSimilarTo, RelPrecedes,
		RelFollows, RelWorksAt, RelDevelops, RelLeads, RelUses,
		RelAffiliatedWith, RelInvestsIn, RelCompetesWith, RelOwns:
		return true
	}
	return false
}

// GraphNode is an entity in the knowledge graph. EntityName is the
// case-normalized canonical form and is unique across the graph; a node is
// shared by every memory that mentions it.
type GraphNode struct {
	ID              uuid.UUID      `json:"id"`
	EntityName      string         `json:"entity_name"`
	EntityType      EntityType     `json:"entity_type"`
	ImportanceScore float32        `json:"importance_score"`
	MentionCount    int            `json:"mention_count"`
	Properties      map[string]any `json:"properties,omitempty"`
	FirstSeen       time.Time      `json:"first_seen"`
	LastSeen        time.Time      `json:"last_seen"`
}

// GraphRelationship is a typed edge. (from, to, type) is unique; duplicate
// inserts collapse into occurrence_count.
type GraphRelationship struct {
	ID               uuid.UUID        `json:"id"`
	FromNodeID       uuid.UUID        `json:"from_node_id"`
	ToNodeID         uuid.UUID        `json:"to_node_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Strength         float32          `json:"strength"`
	Confidence       float32          `json:"confidence"`
	OccurrenceCount  int              `json:"occurrence_count"`
	CreatedAt        time.Time        `json:"created_at"`
}

// GraphStats summarizes the graph for /graph/stats.
type GraphStats struct {
	NodeCount         int64            `json:"node_count"`
	RelationshipCount int64            `json:"relationship_count"`
	TypeDistribution  map[string]int64 `json:"type_distribution"`
}

// GraphNeighborhood is the result of an explore or insights query.
type GraphNeighborhood struct {
	Nodes []GraphNode         `json:"nodes"`
	Edges []GraphRelationship `json:"edges"`
}

// GraphPath is the result of a shortest-path query.
type GraphPath struct {
	PathFound bool        `json:"path_found"`
	Nodes     []GraphNode `json:"nodes,omitempty"`
	Hops      int         `json:"hops,omitempty"`
	Strength  float32     `json:"strength,omitempty"`
}
