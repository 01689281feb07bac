// Package hnsw implements the Hierarchical Navigable Small World graph for
// approximate nearest neighbor search over a single partition.
package hnsw

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/soulcraft-research/brainy-sub005/distance"
	"github.com/soulcraft-research/brainy-sub005/internal/bitset"
	"github.com/soulcraft-research/brainy-sub005/internal/queue"
	"github.com/soulcraft-research/brainy-sub005/internal/visited"
	"github.com/soulcraft-research/brainy-sub005/quantization"
)

const (
	// mmax0Multiplier is the multiplier for maximum connections at layer 0.
	mmax0Multiplier = 2

	// minimumM is the minimum valid value for M.
	minimumM = 2

	// DefaultM is the default number of bidirectional links.
	DefaultM = 16

	// DefaultEFConstruction is the default beam width during insertion.
	DefaultEFConstruction = 200

	// DefaultEFSearch is the default beam width during search.
	DefaultEFSearch = 50
)

// Options represents the options for configuring the index.
type Options struct {
	// Dimension is the vector dimensionality. Required.
	Dimension int

	// M is the number of established connections per node per layer.
	M int

	// EFConstruction is the size of the dynamic candidate list during insert.
	EFConstruction int

	// EFSearch is the default size of the dynamic candidate list during
	// search. Raising it trades latency for recall; it is clamped to >= k.
	EFSearch int

	// Heuristic selects the diversity-aware neighbor selection rule.
	// When disabled, plain nearest-M selection is used.
	Heuristic bool

	// Metric is the distance metric for vector comparison.
	Metric distance.Metric

	// LevelMultiplier overrides the level-sampling normalization factor.
	// Zero means 1/ln(M).
	LevelMultiplier float64

	// Quantizer, when set, stores vectors in quantized form and scores
	// candidates in quantized space.
	Quantizer quantization.Quantizer

	// RerankFinal keeps full-precision vectors alongside the quantized
	// codes and re-scores the ef candidate set with the exact metric
	// before the final top-k cut. Costs the full vector in memory per
	// node; ignored without a quantizer.
	RerankFinal bool

	// RandomSeed fixes the level-sampling RNG for reproducible graphs.
	RandomSeed *int64
}

// DefaultOptions holds the default index configuration.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	EFSearch:       DefaultEFSearch,
	Heuristic:      true,
	Metric:         distance.MetricL2,
}

// SearchResult is a single ranked hit from one partition index.
type SearchResult struct {
	ID       uint64
	Distance float32
}

type node struct {
	vector []float32 // full precision; nil when a quantizer is configured
	code   []byte    // quantized form; nil without a quantizer
	level  int
	// conns[l] holds the neighbor ids at layer l, 0 <= l <= level.
	conns [][]uint64
}

// Index is an HNSW graph over caller-allocated uint64 ids.
// All methods are safe for concurrent use.
type Index struct {
	mu sync.RWMutex

	nodes      map[uint64]*node
	entryPoint uint64
	hasEntry   bool
	maxLevel   int

	tombstones *bitset.BitSet
	tombstoned int

	distFunc        distance.Func
	levelMultiplier float64
	maxConns        int
	maxConns0       int

	rng   *rand.Rand
	rngMu sync.Mutex

	minQueuePool *sync.Pool
	maxQueuePool *sync.Pool
	visitedPool  *sync.Pool

	opts Options
}

// New creates a new index.
func New(optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, &ErrInvalidDimension{Dimension: opts.Dimension}
	}
	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = DefaultEFConstruction
	}
	if opts.EFSearch <= 0 {
		opts.EFSearch = DefaultEFSearch
	}

	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	ml := opts.LevelMultiplier
	if ml == 0 {
		ml = 1 / math.Log(float64(opts.M))
	}

	var rng *rand.Rand
	if opts.RandomSeed != nil {
		rng = rand.New(rand.NewSource(*opts.RandomSeed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Index{
		nodes:           make(map[uint64]*node),
		tombstones:      bitset.New(1024),
		distFunc:        distFunc,
		levelMultiplier: ml,
		maxConns:        opts.M,
		maxConns0:       mmax0Multiplier * opts.M,
		rng:             rng,
		minQueuePool: &sync.Pool{
			New: func() any { return queue.NewMin(opts.EFConstruction) },
		},
		maxQueuePool: &sync.Pool{
			New: func() any { return queue.NewMax(opts.EFConstruction) },
		},
		visitedPool: &sync.Pool{
			New: func() any { return visited.New(1024) },
		},
		opts: opts,
	}, nil
}

// Dimension returns the configured vector dimensionality.
func (h *Index) Dimension() int { return h.opts.Dimension }

// Len returns the number of live (non-tombstoned) nodes.
func (h *Index) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes) - h.tombstoned
}

// Contains reports whether id is live in the index.
func (h *Index) Contains(id uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.nodes[id]
	return ok && !h.tombstones.Test(id)
}

// Vector returns the stored vector for id. With a quantizer configured the
// returned vector is the decoded approximation.
func (h *Index) Vector(id uint64) ([]float32, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n, ok := h.nodes[id]
	if !ok || h.tombstones.Test(id) {
		return nil, &ErrNodeNotFound{ID: id}
	}
	if n.vector != nil {
		return slices.Clone(n.vector), nil
	}
	return h.opts.Quantizer.Decode(n.code)
}

// Neighbors returns the neighbor ids of id per layer, for prefetch hints and
// snapshots. Layer 0 is first.
func (h *Index) Neighbors(id uint64) [][]uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n, ok := h.nodes[id]
	if !ok {
		return nil
	}
	out := make([][]uint64, len(n.conns))
	for i, conns := range n.conns {
		out[i] = slices.Clone(conns)
	}
	return out
}

// Insert adds the vector under the given id. Re-inserting a live id with the
// same vector is a no-op; with a different vector the node is replaced.
func (h *Index) Insert(ctx context.Context, id uint64, v []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(v) == 0 {
		return ErrEmptyVector
	}
	if len(v) != h.opts.Dimension {
		return &ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(v)}
	}

	vec := slices.Clone(v)
	if h.opts.Metric == distance.MetricCosine {
		// Normalized copies keep cosine distances stable under repeated
		// insert/delete cycles.
		distance.NormalizeL2InPlace(vec)
	}

	var code []byte
	if h.opts.Quantizer != nil {
		encoded, err := h.opts.Quantizer.Encode(vec)
		if err != nil {
			return err
		}
		code = encoded
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.nodes[id]; ok && !h.tombstones.Test(id) {
		if sameVector(existing, vec, code) {
			return nil
		}
		h.removeLocked(id)
	} else if ok {
		// Tombstoned id being re-used: drop the stale node first.
		h.removeLocked(id)
	}

	level := h.sampleLevel()
	n := &node{level: level, conns: make([][]uint64, level+1)}
	if code != nil {
		n.code = code
		if h.opts.RerankFinal {
			n.vector = vec
		}
	} else {
		n.vector = vec
	}

	if !h.hasEntry {
		h.nodes[id] = n
		h.entryPoint = id
		h.hasEntry = true
		h.maxLevel = level
		return nil
	}

	h.nodes[id] = n
	h.linkLocked(id, n, vec)

	if level > h.maxLevel {
		h.maxLevel = level
		h.entryPoint = id
	}
	return nil
}

// Search returns up to k live candidates nearest to q, ordered by
// non-decreasing distance. An empty index returns nil, not an error.
// ef <= 0 uses the configured default; ef is clamped to >= k.
func (h *Index) Search(ctx context.Context, q []float32, k, ef int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(q) != h.opts.Dimension {
		return nil, &ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(q)}
	}

	query := q
	if h.opts.Metric == distance.MetricCosine {
		query = slices.Clone(q)
		distance.NormalizeL2InPlace(query)
	}

	if ef <= 0 {
		ef = h.opts.EFSearch
	}
	if ef < k {
		ef = k
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.hasEntry {
		return nil, nil
	}

	score := h.scorer(query)

	currID := h.entryPoint
	currDist := score(currID)
	for level := h.maxLevel; level > 0; level-- {
		currID, currDist = h.greedyStepLocked(score, currID, currDist, level)
	}

	results := h.searchLayerLocked(score, currID, currDist, 0, ef)
	defer func() {
		results.Reset()
		h.maxQueuePool.Put(results)
	}()

	if h.opts.RerankFinal && h.opts.Quantizer != nil {
		return h.rerankLocked(query, results, k), nil
	}

	for results.Len() > k {
		results.Pop()
	}

	out := make([]SearchResult, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		item, _ := results.Pop()
		out[i] = SearchResult{ID: item.Node, Distance: item.Distance}
	}
	return out, nil
}

// Delete tombstones the node. The node stays in the graph to preserve
// connectivity until Compact physically removes it. Returns false when the id
// is unknown or already deleted.
func (h *Index) Delete(ctx context.Context, id uint64) bool {
	if ctx.Err() != nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.nodes[id]; !ok || h.tombstones.Test(id) {
		return false
	}
	h.tombstones.Set(id)
	h.tombstoned++
	return true
}

// Compact physically removes tombstoned nodes, relinking their neighbors to
// bypass them. Unmitigated tombstones degrade recall over time, so callers
// should run this periodically. Returns the number of nodes removed.
//
// Compaction and partition splits must not overlap on the same partition;
// the partition manager serializes both behind the partition lock.
func (h *Index) Compact(ctx context.Context) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	var dead []uint64
	for id := range h.nodes {
		if h.tombstones.Test(id) {
			dead = append(dead, id)
		}
	}
	if len(dead) == 0 {
		return 0
	}

	for _, id := range dead {
		if ctx.Err() != nil {
			break
		}
		h.removeLocked(id)
	}
	return len(dead)
}

// Stats describes the current index shape.
type Stats struct {
	Live       int
	Tombstoned int
	MaxLevel   int
	EntryPoint uint64
}

// Stats returns a snapshot of index statistics.
func (h *Index) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Live:       len(h.nodes) - h.tombstoned,
		Tombstoned: h.tombstoned,
		MaxLevel:   h.maxLevel,
		EntryPoint: h.entryPoint,
	}
}

// IDs returns all live node ids.
func (h *Index) IDs() []uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]uint64, 0, len(h.nodes)-h.tombstoned)
	for id := range h.nodes {
		if !h.tombstones.Test(id) {
			out = append(out, id)
		}
	}
	return out
}

// scorer returns a distance function from the fixed query to stored nodes,
// dispatching on the configured quantizer.
// rerankLocked re-scores every surviving candidate with the exact
// metric and returns the k nearest. Quantized distances decided which
// candidates were kept; the final ordering comes from full-precision
// vectors. Entries whose full vector is gone keep their quantized
// distance via Decode.
func (h *Index) rerankLocked(query []float32, results *queue.PriorityQueue, k int) []SearchResult {
	out := make([]SearchResult, 0, results.Len())
	for results.Len() > 0 {
		item, _ := results.Pop()
		n, ok := h.nodes[item.Node]
		if !ok {
			continue
		}
		d := item.Distance
		if n.vector != nil {
			d = h.distFunc(query, n.vector)
		} else if dec, err := h.opts.Quantizer.Decode(n.code); err == nil {
			d = h.distFunc(query, dec)
		}
		out = append(out, SearchResult{ID: item.Node, Distance: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func (h *Index) scorer(query []float32) func(id uint64) float32 {
	if h.opts.Quantizer == nil {
		return func(id uint64) float32 {
			n, ok := h.nodes[id]
			if !ok {
				return math.MaxFloat32
			}
			return h.distFunc(query, n.vector)
		}
	}

	switch qz := h.opts.Quantizer.(type) {
	case *quantization.ProductQuantizer:
		return func(id uint64) float32 {
			n, ok := h.nodes[id]
			if !ok {
				return math.MaxFloat32
			}
			return qz.AsymmetricDistance(query, n.code)
		}
	case *quantization.ScalarQuantizer:
		qcode, err := qz.Encode(query)
		if err != nil {
			return func(uint64) float32 { return math.MaxFloat32 }
		}
		return func(id uint64) float32 {
			n, ok := h.nodes[id]
			if !ok {
				return math.MaxFloat32
			}
			return qz.DistanceSquared(qcode, n.code)
		}
	case *quantization.BinaryQuantizer:
		qcode, err := qz.Encode(query)
		if err != nil {
			return func(uint64) float32 { return math.MaxFloat32 }
		}
		return func(id uint64) float32 {
			n, ok := h.nodes[id]
			if !ok {
				return math.MaxFloat32
			}
			return qz.Distance(qcode, n.code)
		}
	default:
		return func(id uint64) float32 {
			n, ok := h.nodes[id]
			if !ok {
				return math.MaxFloat32
			}
			decoded, err := h.opts.Quantizer.Decode(n.code)
			if err != nil {
				return math.MaxFloat32
			}
			return h.distFunc(query, decoded)
		}
	}
}

func (h *Index) sampleLevel() int {
	h.rngMu.Lock()
	r := h.rng.Float64()
	h.rngMu.Unlock()
	if r == 0 {
		r = math.SmallestNonzeroFloat64
	}
	return int(math.Floor(-math.Log(r) * h.levelMultiplier))
}

// linkLocked wires a freshly added node into the graph. Caller holds mu.
func (h *Index) linkLocked(id uint64, n *node, vec []float32) {
	score := h.scorerForVector(vec, n.code)

	currID := h.entryPoint
	currDist := score(currID)

	for level := h.maxLevel; level > n.level; level-- {
		currID, currDist = h.greedyStepLocked(score, currID, currDist, level)
	}

	for level := min(n.level, h.maxLevel); level >= 0; level-- {
		candidates := h.searchLayerLocked(score, currID, currDist, level, h.opts.EFConstruction)

		if best, ok := candidates.Min(); ok {
			currID = best.Node
			currDist = best.Distance
		}

		maxConns := h.maxConns
		if level == 0 {
			maxConns = h.maxConns0
		}

		neighbors := h.selectNeighbors(candidates, maxConns)
		candidates.Reset()
		h.maxQueuePool.Put(candidates)

		n.conns[level] = neighbors
		for _, neighborID := range neighbors {
			h.addConnectionLocked(neighborID, id, level)
		}
	}
}

// scorerForVector is like scorer but usable during insert, where the incoming
// vector is full precision even when the index stores codes.
func (h *Index) scorerForVector(vec []float32, code []byte) func(id uint64) float32 {
	if h.opts.Quantizer == nil {
		return h.scorer(vec)
	}
	// Quantized index: score in quantized space for symmetry with search.
	switch qz := h.opts.Quantizer.(type) {
	case *quantization.ProductQuantizer:
		return h.scorer(vec)
	case *quantization.ScalarQuantizer:
		return func(id uint64) float32 {
			n, ok := h.nodes[id]
			if !ok {
				return math.MaxFloat32
			}
			return qz.DistanceSquared(code, n.code)
		}
	case *quantization.BinaryQuantizer:
		return func(id uint64) float32 {
			n, ok := h.nodes[id]
			if !ok {
				return math.MaxFloat32
			}
			return qz.Distance(code, n.code)
		}
	default:
		return h.scorer(vec)
	}
}

// greedyStepLocked performs the single-best-first descent at one level.
func (h *Index) greedyStepLocked(score func(uint64) float32, currID uint64, currDist float32, level int) (uint64, float32) {
	for changed := true; changed; {
		changed = false
		n, ok := h.nodes[currID]
		if !ok || level >= len(n.conns) {
			break
		}
		for _, nextID := range n.conns[level] {
			if nextDist := score(nextID); nextDist < currDist {
				currID = nextID
				currDist = nextDist
				changed = true
			}
		}
	}
	return currID, currDist
}

// searchLayerLocked runs a beam search of width ef at one level. The returned
// max-queue holds up to ef best candidates; the caller must Reset and return
// it to maxQueuePool. Tombstoned nodes are traversed but never returned.
func (h *Index) searchLayerLocked(score func(uint64) float32, epID uint64, epDist float32, level, ef int) *queue.PriorityQueue {
	visitedSet := h.visitedPool.Get().(*visited.Set)
	visitedSet.Reset()
	defer h.visitedPool.Put(visitedSet)

	candidates := h.minQueuePool.Get().(*queue.PriorityQueue)
	candidates.Reset()
	defer func() {
		candidates.Reset()
		h.minQueuePool.Put(candidates)
	}()

	results := h.maxQueuePool.Get().(*queue.PriorityQueue)
	results.Reset()

	visitedSet.Visit(epID)
	candidates.Push(queue.Item{Node: epID, Distance: epDist})
	if !h.tombstones.Test(epID) {
		results.Push(queue.Item{Node: epID, Distance: epDist})
	}

	for candidates.Len() > 0 {
		curr, _ := candidates.Pop()

		if results.Len() >= ef {
			if worst, ok := results.Top(); ok && curr.Distance > worst.Distance {
				break
			}
		}

		n, ok := h.nodes[curr.Node]
		if !ok || level >= len(n.conns) {
			continue
		}

		for _, nextID := range n.conns[level] {
			if visitedSet.Visited(nextID) {
				continue
			}
			visitedSet.Visit(nextID)

			nextDist := score(nextID)

			if results.Len() >= ef {
				if worst, ok := results.Top(); ok && nextDist > worst.Distance {
					continue
				}
			}

			candidates.Push(queue.Item{Node: nextID, Distance: nextDist})
			if !h.tombstones.Test(nextID) {
				results.Push(queue.Item{Node: nextID, Distance: nextDist})
				if results.Len() > ef {
					results.Pop()
				}
			}
		}
	}

	return results
}

// selectNeighbors picks up to m neighbors from the candidate max-queue.
func (h *Index) selectNeighbors(candidates *queue.PriorityQueue, m int) []uint64 {
	if h.opts.Heuristic && candidates.Len() > m {
		return h.selectNeighborsHeuristic(candidates, m)
	}
	return h.selectNeighborsSimple(candidates, m)
}

func (h *Index) selectNeighborsSimple(candidates *queue.PriorityQueue, m int) []uint64 {
	for candidates.Len() > m {
		candidates.Pop()
	}
	out := make([]uint64, candidates.Len())
	for i := candidates.Len() - 1; i >= 0; i-- {
		item, _ := candidates.Pop()
		out[i] = item.Node
	}
	return out
}

// selectNeighborsHeuristic applies the diversity rule: a candidate is kept
// only if it is closer to the new node than to every already-kept candidate.
// This preserves the long-range edges logarithmic search depends on.
func (h *Index) selectNeighborsHeuristic(candidates *queue.PriorityQueue, m int) []uint64 {
	ordered := make([]queue.Item, candidates.Len())
	for i := len(ordered) - 1; i >= 0; i-- {
		ordered[i], _ = candidates.Pop()
	}

	kept := make([]uint64, 0, m)
	for _, cand := range ordered {
		if len(kept) >= m {
			break
		}
		good := true
		for _, keptID := range kept {
			if h.nodeDistLocked(cand.Node, keptID) < cand.Distance {
				good = false
				break
			}
		}
		if good {
			kept = append(kept, cand.Node)
		}
	}

	// Pad with the nearest skipped candidates when diversity left slots open.
	if len(kept) < m {
		for _, cand := range ordered {
			if len(kept) >= m {
				break
			}
			if !slices.Contains(kept, cand.Node) {
				kept = append(kept, cand.Node)
			}
		}
	}

	return kept
}

// nodeDistLocked computes the distance between two stored nodes.
func (h *Index) nodeDistLocked(a, b uint64) float32 {
	na, okA := h.nodes[a]
	nb, okB := h.nodes[b]
	if !okA || !okB {
		return math.MaxFloat32
	}

	if h.opts.Quantizer == nil {
		return h.distFunc(na.vector, nb.vector)
	}

	switch qz := h.opts.Quantizer.(type) {
	case *quantization.ScalarQuantizer:
		return qz.DistanceSquared(na.code, nb.code)
	case *quantization.BinaryQuantizer:
		return qz.Distance(na.code, nb.code)
	default:
		va, errA := h.opts.Quantizer.Decode(na.code)
		vb, errB := h.opts.Quantizer.Decode(nb.code)
		if errA != nil || errB != nil {
			return math.MaxFloat32
		}
		return h.distFunc(va, vb)
	}
}

// addConnectionLocked adds target to source's neighbor list at level,
// pruning back to the connection cap with the diversity rule.
func (h *Index) addConnectionLocked(sourceID, targetID uint64, level int) {
	source, ok := h.nodes[sourceID]
	if !ok || level >= len(source.conns) {
		return
	}

	conns := source.conns[level]
	if slices.Contains(conns, targetID) {
		return
	}

	maxConns := h.maxConns
	if level == 0 {
		maxConns = h.maxConns0
	}

	if len(conns) < maxConns {
		source.conns[level] = append(conns, targetID)
		return
	}

	candidates := h.maxQueuePool.Get().(*queue.PriorityQueue)
	candidates.Reset()
	defer func() {
		candidates.Reset()
		h.maxQueuePool.Put(candidates)
	}()

	for _, c := range conns {
		candidates.Push(queue.Item{Node: c, Distance: h.nodeDistLocked(sourceID, c)})
	}
	candidates.Push(queue.Item{Node: targetID, Distance: h.nodeDistLocked(sourceID, targetID)})

	source.conns[level] = h.selectNeighbors(candidates, maxConns)
}

// removeLocked physically removes a node, splicing its neighbors together so
// the graph stays connected. Caller holds mu.
func (h *Index) removeLocked(id uint64) {
	n, ok := h.nodes[id]
	if !ok {
		return
	}

	for level := len(n.conns) - 1; level >= 0; level-- {
		neighbors := n.conns[level]

		// Detach the dead node from each neighbor.
		for _, neighborID := range neighbors {
			h.removeLink(neighborID, id, level)
		}

		// Bypass: connect surviving neighbor pairs so the region does not
		// fragment when a hub node disappears.
		for i, a := range neighbors {
			if _, ok := h.nodes[a]; !ok || a == id {
				continue
			}
			for _, b := range neighbors[i+1:] {
				if _, ok := h.nodes[b]; !ok || b == id || a == b {
					continue
				}
				h.addConnectionLocked(a, b, level)
				h.addConnectionLocked(b, a, level)
			}
		}
	}

	delete(h.nodes, id)
	if h.tombstones.Test(id) {
		h.tombstones.Unset(id)
		h.tombstoned--
	}

	if h.entryPoint == id {
		h.electEntryPointLocked()
	}
}

func (h *Index) removeLink(id, neighborID uint64, level int) {
	n, ok := h.nodes[id]
	if !ok || level >= len(n.conns) {
		return
	}
	conns := n.conns[level]
	for i, c := range conns {
		if c == neighborID {
			conns[i] = conns[len(conns)-1]
			n.conns[level] = conns[:len(conns)-1]
			return
		}
	}
}

// electEntryPointLocked picks the highest-level surviving node as the new
// entry point after the current one was removed.
func (h *Index) electEntryPointLocked() {
	h.hasEntry = false
	h.maxLevel = 0
	for id, n := range h.nodes {
		if !h.hasEntry || n.level > h.maxLevel {
			h.entryPoint = id
			h.maxLevel = n.level
			h.hasEntry = true
		}
	}
}

func sameVector(n *node, vec []float32, code []byte) bool {
	if n.vector != nil {
		return slices.Equal(n.vector, vec)
	}
	return bytes.Equal(n.code, code)
}
