// Package model defines the shared value types exchanged between the index,
// cache, consistency and facade layers.
package model

import "time"

// Node is a stored vector with its user-visible identity and metadata.
// Nodes are owned by exactly one partition at a time.
type Node struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Content  string         `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Edge is a typed, weighted relationship between two nodes. Edges are
// orthogonal to the proximity graph used for search.
type Edge struct {
	ID       string         `json:"id"`
	SourceID string         `json:"sourceId"`
	TargetID string         `json:"targetId"`
	Verb     string         `json:"verb"`
	Weight   float32        `json:"weight"`
	Vector   []float32      `json:"vector,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResult is a single ranked hit.
type SearchResult struct {
	ID       string         `json:"id"`
	Distance float32        `json:"distance"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Operation enumerates mutation kinds recorded in the change log.
type Operation string

const (
	OpAdd    Operation = "add"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// EntityType distinguishes node and edge mutations in the change log.
type EntityType string

const (
	EntityNode EntityType = "node"
	EntityEdge EntityType = "edge"
)

// ChangeEntry is one append-only change-log record. Entries are ordered by
// Timestamp and tagged with the instance that produced them so followers can
// skip their own writes during replay.
type ChangeEntry struct {
	Timestamp  time.Time  `json:"timestamp"`
	Operation  Operation  `json:"operation"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	InstanceID string     `json:"instanceId"`
}
