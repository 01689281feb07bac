package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/soulcraft-research/brainy-sub005/blobstore"
	"github.com/soulcraft-research/brainy-sub005/model"
)

// ErrEdgeNotFound is returned for unknown edge ids.
var ErrEdgeNotFound = errors.New("graph: edge not found")

const edgePrefix = "edges/"

// Store holds the typed edges between nodes, indexed by source and by
// target so traversal works in both directions. When constructed with a
// backing store every mutation is mirrored there, one object per edge.
type Store struct {
	mu       sync.RWMutex
	edges    map[string]*model.Edge
	bySource map[string]map[string][]string // source -> verb -> edge ids
	byTarget map[string]map[string][]string
	backing  blobstore.Store
}

// NewStore creates an edge store. backing may be nil for a purely
// in-memory graph.
func NewStore(backing blobstore.Store) *Store {
	return &Store{
		edges:    make(map[string]*model.Edge),
		bySource: make(map[string]map[string][]string),
		byTarget: make(map[string]map[string][]string),
		backing:  backing,
	}
}

// Load restores the edge set from the backing store.
func (s *Store) Load(ctx context.Context) error {
	if s.backing == nil {
		return nil
	}

	keys, err := s.backing.List(ctx, edgePrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		data, err := s.backing.Get(ctx, key)
		if errors.Is(err, blobstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		var edge model.Edge
		if err := json.Unmarshal(data, &edge); err != nil {
			return fmt.Errorf("decode edge %s: %w", key, err)
		}
		s.mu.Lock()
		s.indexLocked(&edge)
		s.mu.Unlock()
	}
	return nil
}

// RelateOptions configures a new edge.
type RelateOptions struct {
	Weight   float32
	Vector   []float32
	Metadata map[string]any
}

// Relate creates a directed edge source-[verb]->target. Relating an
// already-related pair under the same verb updates the edge in place
// instead of duplicating it.
func (s *Store) Relate(ctx context.Context, source, target, verb string, optFns ...func(o *RelateOptions)) (*model.Edge, error) {
	if source == "" || target == "" || verb == "" {
		return nil, errors.New("graph: source, target and verb are required")
	}

	opts := RelateOptions{Weight: 1}
	for _, fn := range optFns {
		fn(&opts)
	}

	s.mu.Lock()
	edge := s.findLocked(source, target, verb)
	if edge == nil {
		edge = &model.Edge{
			ID:       uuid.NewString(),
			SourceID: source,
			TargetID: target,
			Verb:     verb,
		}
		s.indexLocked(edge)
	}
	edge.Weight = opts.Weight
	edge.Vector = opts.Vector
	edge.Metadata = opts.Metadata
	snapshot := *edge
	s.mu.Unlock()

	if err := s.persist(ctx, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Upsert installs an edge under its existing id, replacing any edge
// with the same id or the same source/target/verb triple. Change-log
// replay uses this so followers keep the originating instance's ids.
func (s *Store) Upsert(ctx context.Context, e *model.Edge) error {
	if e.ID == "" || e.SourceID == "" || e.TargetID == "" || e.Verb == "" {
		return errors.New("graph: id, source, target and verb are required")
	}

	var stale string
	s.mu.Lock()
	if prev, ok := s.edges[e.ID]; ok {
		s.unindexLocked(prev)
	} else if prev := s.findLocked(e.SourceID, e.TargetID, e.Verb); prev != nil {
		s.unindexLocked(prev)
		stale = prev.ID
	}
	clone := *e
	s.indexLocked(&clone)
	s.mu.Unlock()

	if stale != "" {
		if err := s.unpersist(ctx, stale); err != nil {
			return err
		}
	}
	return s.persist(ctx, e)
}

// Unrelate removes the edge source-[verb]->target. Returns
// ErrEdgeNotFound if no such edge exists.
func (s *Store) Unrelate(ctx context.Context, source, target, verb string) error {
	s.mu.Lock()
	edge := s.findLocked(source, target, verb)
	if edge == nil {
		s.mu.Unlock()
		return ErrEdgeNotFound
	}
	s.unindexLocked(edge)
	s.mu.Unlock()

	return s.unpersist(ctx, edge.ID)
}

// DropEdge removes an edge by id.
func (s *Store) DropEdge(ctx context.Context, edgeID string) error {
	s.mu.Lock()
	edge, ok := s.edges[edgeID]
	if !ok {
		s.mu.Unlock()
		return ErrEdgeNotFound
	}
	s.unindexLocked(edge)
	s.mu.Unlock()

	return s.unpersist(ctx, edgeID)
}

// DropNode removes every edge touching nodeID, in either direction.
// Returns the number of removed edges.
func (s *Store) DropNode(ctx context.Context, nodeID string) (int, error) {
	s.mu.Lock()
	var doomed []*model.Edge
	for _, ids := range s.bySource[nodeID] {
		for _, id := range ids {
			doomed = append(doomed, s.edges[id])
		}
	}
	for _, ids := range s.byTarget[nodeID] {
		for _, id := range ids {
			if e := s.edges[id]; e != nil && e.SourceID != nodeID {
				doomed = append(doomed, e)
			}
		}
	}
	for _, e := range doomed {
		s.unindexLocked(e)
	}
	s.mu.Unlock()

	for _, e := range doomed {
		if err := s.unpersist(ctx, e.ID); err != nil {
			return 0, err
		}
	}
	return len(doomed), nil
}

// Edge returns the edge with the given id.
func (s *Store) Edge(edgeID string) (*model.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, ok := s.edges[edgeID]
	if !ok {
		return nil, ErrEdgeNotFound
	}
	clone := *edge
	return &clone, nil
}

// From returns edges leaving source. An empty verb matches every verb.
func (s *Store) From(source, verb string) []*model.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(s.bySource[source], verb)
}

// To returns edges arriving at target. An empty verb matches every verb.
func (s *Store) To(target, verb string) []*model.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(s.byTarget[target], verb)
}

// Verbs returns the sorted set of verbs on edges leaving source.
func (s *Store) Verbs(source string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	verbs := make([]string, 0, len(s.bySource[source]))
	for verb, ids := range s.bySource[source] {
		if len(ids) > 0 {
			verbs = append(verbs, verb)
		}
	}
	sort.Strings(verbs)
	return verbs
}

// Neighbors returns the target ids reachable from source via verb,
// sorted. An empty verb matches every verb.
func (s *Store) Neighbors(source, verb string) []string {
	edges := s.From(source, verb)
	seen := make(map[string]bool, len(edges))
	var out []string
	for _, e := range edges {
		if !seen[e.TargetID] {
			seen[e.TargetID] = true
			out = append(out, e.TargetID)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of edges.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// All returns every edge, sorted by id, for snapshots.
func (s *Store) All() []*model.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		clone := *e
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Replace swaps in a full edge set, used by snapshot restore.
func (s *Store) Replace(ctx context.Context, edges []*model.Edge) error {
	s.mu.Lock()
	s.edges = make(map[string]*model.Edge, len(edges))
	s.bySource = make(map[string]map[string][]string)
	s.byTarget = make(map[string]map[string][]string)
	for _, e := range edges {
		clone := *e
		s.indexLocked(&clone)
	}
	s.mu.Unlock()

	if s.backing == nil {
		return nil
	}
	for _, e := range edges {
		if err := s.persist(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) findLocked(source, target, verb string) *model.Edge {
	for _, id := range s.bySource[source][verb] {
		if e := s.edges[id]; e != nil && e.TargetID == target {
			return e
		}
	}
	return nil
}

func (s *Store) collectLocked(byVerb map[string][]string, verb string) []*model.Edge {
	var out []*model.Edge
	appendIDs := func(ids []string) {
		for _, id := range ids {
			if e, ok := s.edges[id]; ok {
				clone := *e
				out = append(out, &clone)
			}
		}
	}

	if verb != "" {
		appendIDs(byVerb[verb])
	} else {
		verbs := make([]string, 0, len(byVerb))
		for v := range byVerb {
			verbs = append(verbs, v)
		}
		sort.Strings(verbs)
		for _, v := range verbs {
			appendIDs(byVerb[v])
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Verb != out[j].Verb {
			return out[i].Verb < out[j].Verb
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) indexLocked(e *model.Edge) {
	s.edges[e.ID] = e
	if s.bySource[e.SourceID] == nil {
		s.bySource[e.SourceID] = make(map[string][]string)
	}
	s.bySource[e.SourceID][e.Verb] = append(s.bySource[e.SourceID][e.Verb], e.ID)
	if s.byTarget[e.TargetID] == nil {
		s.byTarget[e.TargetID] = make(map[string][]string)
	}
	s.byTarget[e.TargetID][e.Verb] = append(s.byTarget[e.TargetID][e.Verb], e.ID)
}

func (s *Store) unindexLocked(e *model.Edge) {
	delete(s.edges, e.ID)
	s.bySource[e.SourceID][e.Verb] = remove(s.bySource[e.SourceID][e.Verb], e.ID)
	s.byTarget[e.TargetID][e.Verb] = remove(s.byTarget[e.TargetID][e.Verb], e.ID)
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func (s *Store) persist(ctx context.Context, e *model.Edge) error {
	if s.backing == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.backing.Put(ctx, edgeKey(e.ID), data)
}

func (s *Store) unpersist(ctx context.Context, edgeID string) error {
	if s.backing == nil {
		return nil
	}
	return s.backing.Delete(ctx, edgeKey(edgeID))
}

func edgeKey(id string) string {
	return edgePrefix + strings.TrimPrefix(id, edgePrefix)
}

// EdgeKey returns the blob store key an edge is persisted under.
// Change-log followers use it to fetch remote edges by id.
func EdgeKey(id string) string { return edgeKey(id) }
