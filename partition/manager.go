package partition

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/soulcraft-research/brainy-sub005/distance"
	"github.com/soulcraft-research/brainy-sub005/hnsw"
)

// Strategy selects how writes are routed to partitions.
type Strategy uint8

const (
	// StrategyHash scatters ids uniformly over a fixed partition set.
	// Every partition must be searched for every query.
	StrategyHash Strategy = iota
	// StrategySemantic clusters vectors around streaming centroids so
	// reads can probe only the partitions nearest the query.
	StrategySemantic
	// StrategyAuto keeps everything in one partition while the store is
	// small, then switches to semantic routing once it crosses
	// AutoThreshold nodes. Small stores skip the clustering overhead
	// entirely.
	StrategyAuto
)

// autoSemanticThreshold is the node count at which StrategyAuto starts
// routing semantically. Below it a single partition answers every query
// faster than any probe selection could.
const autoSemanticThreshold = 25_000

// Options configures a Manager.
type Options struct {
	// Dimension is the vector dimensionality, required.
	Dimension int
	// Strategy selects hash or semantic routing.
	Strategy Strategy
	// InitialPartitions is the fixed partition count for hash routing
	// and the seeding target for semantic routing.
	InitialPartitions int
	// MaxPartitions caps how far splitting can grow the partition set.
	MaxPartitions int
	// MaxNodesPerPartition bounds partition size: a split is triggered
	// whenever the total node count exceeds this times the partition
	// count. Zero disables splitting.
	MaxNodesPerPartition int
	// AutoThreshold overrides the node count at which StrategyAuto
	// switches to semantic routing. Zero means autoSemanticThreshold.
	AutoThreshold int
	// RandomSeed makes routing and splits reproducible in tests.
	RandomSeed *int64
	// IndexOptions is applied to every per-partition index.
	IndexOptions []func(o *hnsw.Options)
}

// DefaultOptions holds the default Manager configuration.
var DefaultOptions = Options{
	Strategy:             StrategyAuto,
	InitialPartitions:    4,
	MaxPartitions:        32,
	MaxNodesPerPartition: 100_000,
}

// Partition owns one slice of the store: an index plus, for semantic
// routing, the streaming centroid of everything inserted into it.
type Partition struct {
	id    string
	index *hnsw.Index

	// mu serializes structural maintenance (split, compaction) so the
	// two never interleave on the same partition.
	mu       sync.Mutex
	centroid []float32
	inserts  int64
}

// ID returns the stable partition identifier.
func (p *Partition) ID() string { return p.id }

// Index returns the partition's graph index.
func (p *Partition) Index() *hnsw.Index { return p.index }

// Len returns the number of live nodes in the partition.
func (p *Partition) Len() int { return p.index.Len() }

// Centroid returns a copy of the partition centroid, or nil for hash
// partitions.
func (p *Partition) Centroid() []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.centroid)
}

func (p *Partition) observe(v []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.centroid == nil {
		p.centroid = slices.Clone(v)
		p.inserts = 1
		return
	}
	p.inserts++
	inv := 1 / float32(p.inserts)
	for d, x := range v {
		p.centroid[d] += (x - p.centroid[d]) * inv
	}
}

func (p *Partition) centroidDistance(q []float32) float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.centroid == nil {
		return 0
	}
	return distance.SquaredL2(q, p.centroid)
}

// Manager routes nodes to partitions, splits overgrown partitions and
// selects read targets per query.
type Manager struct {
	mu         sync.RWMutex
	opts       Options
	partitions []*Partition
	byNode     map[uint64]*Partition
	rng        *rand.Rand
	rngMu      sync.Mutex
	seq        int
}

// NewManager creates a partition manager.
func NewManager(optFns ...func(o *Options)) (*Manager, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("partition: invalid dimension %d", opts.Dimension)
	}
	if opts.InitialPartitions < 1 {
		opts.InitialPartitions = 1
	}
	if opts.MaxPartitions < opts.InitialPartitions {
		opts.MaxPartitions = opts.InitialPartitions
	}

	var rng *rand.Rand
	if opts.RandomSeed != nil {
		rng = rand.New(rand.NewSource(*opts.RandomSeed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	m := &Manager{
		opts:   opts,
		byNode: make(map[uint64]*Partition),
		rng:    rng,
	}

	// Hash routing needs its full partition set up front; the routing
	// function is positional. Semantic partitions are seeded lazily by
	// the first inserts so centroids start from real data.
	if opts.Strategy == StrategyHash {
		for i := 0; i < opts.InitialPartitions; i++ {
			p, err := m.newPartition()
			if err != nil {
				return nil, err
			}
			m.partitions = append(m.partitions, p)
		}
	}
	return m, nil
}

func (m *Manager) newPartition() (*Partition, error) {
	fns := append([]func(o *hnsw.Options){func(o *hnsw.Options) {
		o.Dimension = m.opts.Dimension
		o.RandomSeed = m.opts.RandomSeed
	}}, m.opts.IndexOptions...)
	idx, err := hnsw.New(fns...)
	if err != nil {
		return nil, err
	}
	p := &Partition{id: fmt.Sprintf("p%04d", m.seq), index: idx}
	m.seq++
	return p, nil
}

// splitmix64 finalizer; sequential ids must not map to sequential
// partitions.
func mix(id uint64) uint64 {
	id ^= id >> 30
	id *= 0xbf58476d1ce4e5b9
	id ^= id >> 27
	id *= 0x94d049bb133111eb
	id ^= id >> 31
	return id
}

// Insert routes the vector to a partition and adds it to that
// partition's index. Re-inserting a known id stays in its partition so
// the id never moves under a concurrent reader.
func (m *Manager) Insert(ctx context.Context, id uint64, v []float32) error {
	m.mu.Lock()
	p, ok := m.byNode[id]
	if !ok {
		var err error
		p, err = m.routeForWriteLocked(id, v)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		m.byNode[id] = p
	}
	m.mu.Unlock()

	if err := p.index.Insert(ctx, id, v); err != nil {
		m.mu.Lock()
		if !ok {
			delete(m.byNode, id)
		}
		m.mu.Unlock()
		return err
	}

	// Centroids are kept for every non-hash strategy so routing and
	// read-side ranking stay informed after an auto switchover.
	if m.opts.Strategy != StrategyHash {
		p.observe(v)
	}
	return m.maybeSplit(ctx)
}

func (m *Manager) routeForWriteLocked(id uint64, v []float32) (*Partition, error) {
	switch m.opts.Strategy {
	case StrategyHash:
		return m.partitions[mix(id)%uint64(len(m.partitions))], nil
	case StrategyAuto:
		threshold := m.opts.AutoThreshold
		if threshold <= 0 {
			threshold = autoSemanticThreshold
		}
		if len(m.byNode) < threshold {
			if len(m.partitions) == 0 {
				p, err := m.newPartition()
				if err != nil {
					return nil, err
				}
				m.partitions = append(m.partitions, p)
			}
			return m.partitions[0], nil
		}
		return m.routeSemanticLocked(v)
	default:
		return m.routeSemanticLocked(v)
	}
}

// routeSemanticLocked seeds the first InitialPartitions partitions from
// incoming data, then routes to the nearest centroid.
func (m *Manager) routeSemanticLocked(v []float32) (*Partition, error) {
	if len(m.partitions) < m.opts.InitialPartitions {
		p, err := m.newPartition()
		if err != nil {
			return nil, err
		}
		m.partitions = append(m.partitions, p)
		return p, nil
	}

	best := m.partitions[0]
	bestDist := best.centroidDistance(v)
	for _, p := range m.partitions[1:] {
		if d := p.centroidDistance(v); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best, nil
}

// Delete removes id from its partition. Returns false for unknown ids.
func (m *Manager) Delete(ctx context.Context, id uint64) bool {
	m.mu.Lock()
	p, ok := m.byNode[id]
	if ok {
		delete(m.byNode, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	return p.index.Delete(ctx, id)
}

// PartitionFor returns the partition holding id.
func (m *Manager) PartitionFor(id uint64) (*Partition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byNode[id]
	return p, ok
}

// Partitions returns a snapshot of the current partition set.
func (m *Manager) Partitions() []*Partition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.partitions)
}

// Len returns the number of live nodes across all partitions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byNode)
}

// RouteForRead returns the partitions a query should probe, best first.
// Hash partitioning always returns everything; semantic partitioning
// ranks by centroid distance and keeps at most maxPartitions when the
// bound is positive.
func (m *Manager) RouteForRead(q []float32, maxPartitions int) []*Partition {
	parts := m.Partitions()
	if m.opts.Strategy == StrategyHash {
		return parts
	}

	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].centroidDistance(q) < parts[j].centroidDistance(q)
	})
	if maxPartitions > 0 && len(parts) > maxPartitions {
		parts = parts[:maxPartitions]
	}
	return parts
}

// maybeSplit splits the largest partition when the store has outgrown
// its aggregate capacity, keeping the partition count at
// ceil(total / MaxNodesPerPartition) until MaxPartitions is reached.
func (m *Manager) maybeSplit(ctx context.Context) error {
	if m.opts.MaxNodesPerPartition <= 0 {
		return nil
	}

	m.mu.RLock()
	over := len(m.byNode) > m.opts.MaxNodesPerPartition*len(m.partitions)
	full := len(m.partitions) >= m.opts.MaxPartitions
	var largest *Partition
	for _, p := range m.partitions {
		if largest == nil || p.index.Len() > largest.index.Len() {
			largest = p
		}
	}
	m.mu.RUnlock()

	if !over || full || largest == nil {
		return nil
	}
	_, err := m.Split(ctx, largest)
	return err
}

// Split divides p into two partitions along its principal 2-means
// boundary. Every id keeps its value; only partition membership moves.
func (m *Manager) Split(ctx context.Context, p *Partition) ([]*Partition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := p.index.IDs()
	if len(ids) < 2 {
		return []*Partition{p}, nil
	}

	vectors := make([][]float32, 0, len(ids))
	kept := make([]uint64, 0, len(ids))
	for _, id := range ids {
		v, err := p.index.Vector(id)
		if err != nil {
			continue
		}
		vectors = append(vectors, v)
		kept = append(kept, id)
	}

	m.rngMu.Lock()
	assign, centroids := kmeans2(vectors, m.rng)
	m.rngMu.Unlock()

	m.mu.Lock()
	left, err := m.newPartition()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	right, err := m.newPartition()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	halves := [2]*Partition{left, right}
	for i, id := range kept {
		half := halves[assign[i]]
		if err := half.index.Insert(ctx, id, vectors[i]); err != nil {
			return nil, err
		}
	}
	for c, half := range halves {
		half.centroid = slices.Clone(centroids[c])
		half.inserts = int64(half.index.Len())
	}

	m.mu.Lock()
	for i, id := range kept {
		m.byNode[id] = halves[assign[i]]
	}
	for i, existing := range m.partitions {
		if existing == p {
			m.partitions = append(m.partitions[:i], m.partitions[i+1:]...)
			break
		}
	}
	m.partitions = append(m.partitions, left, right)
	m.mu.Unlock()

	return []*Partition{left, right}, nil
}

// Compact runs tombstone compaction on every partition, serialized with
// splits through the partition lock. Returns total removed nodes.
func (m *Manager) Compact(ctx context.Context) int {
	removed := 0
	for _, p := range m.Partitions() {
		p.mu.Lock()
		removed += p.index.Compact(ctx)
		p.mu.Unlock()
	}
	return removed
}

// Stats describes one partition for introspection.
type Stats struct {
	ID       string
	Len      int
	Centroid []float32
}

// Stats returns per-partition statistics.
func (m *Manager) Stats() []Stats {
	parts := m.Partitions()
	out := make([]Stats, len(parts))
	for i, p := range parts {
		out[i] = Stats{ID: p.ID(), Len: p.Len(), Centroid: p.Centroid()}
	}
	return out
}

// NodeSnapshot is one node captured for a backup.
type NodeSnapshot struct {
	ID     uint64    `json:"id"`
	Vector []float32 `json:"vector"`
}

// PartitionSnapshot captures one partition's identity and contents.
// EntryPoint and MaxLevel are informational; Restore rebuilds the
// proximity graph from the node list.
type PartitionSnapshot struct {
	ID         string         `json:"id"`
	Centroid   []float32      `json:"centroid,omitempty"`
	EntryPoint uint64         `json:"entryPoint"`
	MaxLevel   int            `json:"maxLevel"`
	Nodes      []NodeSnapshot `json:"nodes"`
}

// Snapshot captures every partition for backup. Node order inside a
// partition is sorted by id so restores are deterministic.
func (m *Manager) Snapshot() []PartitionSnapshot {
	parts := m.Partitions()
	out := make([]PartitionSnapshot, 0, len(parts))
	for _, p := range parts {
		p.mu.Lock()
		ids := p.index.IDs()
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		stats := p.index.Stats()
		snap := PartitionSnapshot{
			ID:         p.id,
			Centroid:   slices.Clone(p.centroid),
			EntryPoint: stats.EntryPoint,
			MaxLevel:   stats.MaxLevel,
			Nodes:      make([]NodeSnapshot, 0, len(ids)),
		}
		for _, id := range ids {
			v, err := p.index.Vector(id)
			if err != nil {
				continue
			}
			snap.Nodes = append(snap.Nodes, NodeSnapshot{ID: id, Vector: v})
		}
		p.mu.Unlock()
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore replaces the manager's contents with the given snapshots.
// Partition ids and centroids are carried over so semantic routing
// behaves the same as before the backup.
func (m *Manager) Restore(ctx context.Context, snaps []PartitionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.partitions = nil
	m.byNode = make(map[uint64]*Partition)

	maxSeq := 0
	for _, snap := range snaps {
		fns := append([]func(o *hnsw.Options){func(o *hnsw.Options) {
			o.Dimension = m.opts.Dimension
			o.RandomSeed = m.opts.RandomSeed
		}}, m.opts.IndexOptions...)
		idx, err := hnsw.New(fns...)
		if err != nil {
			return err
		}
		p := &Partition{id: snap.ID, index: idx, centroid: slices.Clone(snap.Centroid)}
		for _, n := range snap.Nodes {
			if err := idx.Insert(ctx, n.ID, n.Vector); err != nil {
				return fmt.Errorf("partition %s: restore node %d: %w", snap.ID, n.ID, err)
			}
			m.byNode[n.ID] = p
		}
		p.inserts = int64(len(snap.Nodes))
		m.partitions = append(m.partitions, p)

		var seq int
		if _, err := fmt.Sscanf(snap.ID, "p%04d", &seq); err == nil && seq >= maxSeq {
			maxSeq = seq + 1
		}
	}
	if maxSeq > m.seq {
		m.seq = maxSeq
	}
	return nil
}
