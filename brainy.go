// Package brainy is an embedded multi-dimensional data store for Go.
//
// It combines approximate nearest neighbor search over partitioned
// HNSW indexes with a typed property graph and metadata facets. A DB
// can run purely in memory, or attach a shared blob store (local
// filesystem, S3, MinIO) so several instances converge on the same
// data through an append-only change log.
//
// Quick start:
//
//	ctx := context.Background()
//	db, err := brainy.New(ctx,
//	    brainy.WithDimension(128),
//	    brainy.WithMetric(distance.MetricCosine),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	defer db.Close()
//
//	id, err := db.Add(ctx, vector, map[string]any{"category": "tech"})
//
//	results, err := db.Search(ctx, query, 10,
//	    brainy.WithFilter(map[string]any{"category": "tech"}),
//	)
//
// Nodes can be related through verbs, forming a property graph that is
// orthogonal to vector proximity:
//
//	db.Relate(ctx, id, other, "cites")
//	verbs := db.Verbs(id)
package brainy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"

	"github.com/soulcraft-research/brainy-sub005/blobstore"
	"github.com/soulcraft-research/brainy-sub005/cache"
	"github.com/soulcraft-research/brainy-sub005/consistency"
	"github.com/soulcraft-research/brainy-sub005/coordinator"
	"github.com/soulcraft-research/brainy-sub005/distance"
	"github.com/soulcraft-research/brainy-sub005/facet"
	"github.com/soulcraft-research/brainy-sub005/graph"
	"github.com/soulcraft-research/brainy-sub005/hnsw"
	"github.com/soulcraft-research/brainy-sub005/model"
	"github.com/soulcraft-research/brainy-sub005/partition"
	"github.com/soulcraft-research/brainy-sub005/plugin"
	"github.com/soulcraft-research/brainy-sub005/quantization"
)

const nodePrefix = "nodes/"

func nodeKey(id string) string { return nodePrefix + id }

// DB is a multi-dimensional data store instance. All methods are safe
// for concurrent use.
type DB struct {
	opts    options
	logger  *Logger
	metrics MetricsCollector

	mu     sync.RWMutex
	closed bool

	manager *partition.Manager
	coord   *coordinator.Coordinator
	edges   *graph.Store
	facets  *facet.Index
	tiers   *cache.TierManager
	plugins *plugin.Registry

	store   blobstore.Store
	changes *consistency.ChangeLog
	locks   *consistency.LockManager
	shared  *consistency.StatsManager

	// External string ids map to dense internal keys used by the
	// partition indexes, the cache tiers and the facet bitmaps.
	nodes  map[string]*model.Node
	pks    map[string]uint64
	ids    map[uint64]string
	nextPK uint64

	quantizer      quantization.Quantizer
	quantizerReady bool

	watermark time.Time
}

// New creates a DB. WithDimension is required; everything else has
// defaults. When a blob store is attached, existing nodes and edges in
// it are loaded before New returns.
func New(ctx context.Context, optFns ...Option) (*DB, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.dimension <= 0 {
		return nil, &ErrInvalidDimension{Dimension: opts.dimension}
	}
	if opts.instanceID == "" {
		opts.instanceID = uuid.NewString()
	}
	if opts.logger == nil {
		opts.logger = NoopLogger()
	}

	db := &DB{
		opts:    opts,
		logger:  opts.logger.WithInstance(opts.instanceID),
		metrics: opts.metrics,
		store:   opts.store,
		nodes:   make(map[string]*model.Node),
		pks:     make(map[string]uint64),
		ids:     make(map[uint64]string),
		plugins: plugin.NewRegistry(),
	}

	// The binary quantizer needs no training; trained modes stay full
	// precision until enough vectors have arrived.
	if opts.quantization == QuantizationBinary {
		db.quantizer = quantization.NewBinaryQuantizer(opts.dimension)
		db.quantizerReady = true
	}

	manager, err := partition.NewManager(func(o *partition.Options) {
		o.Dimension = opts.dimension
		o.Strategy = opts.partitionStrategy
		o.InitialPartitions = opts.initialPartitions
		o.MaxPartitions = opts.maxPartitions
		o.MaxNodesPerPartition = opts.maxNodesPerPartition
		o.RandomSeed = opts.randomSeed
		o.IndexOptions = []func(o *hnsw.Options){db.indexOptions}
	})
	if err != nil {
		return nil, translateError(err)
	}
	db.manager = manager

	db.coord = coordinator.New(manager, func(o *coordinator.Options) {
		o.Strategy = opts.searchStrategy
		if opts.efSearch > 0 {
			o.EFSearch = opts.efSearch
		}
	})

	db.edges = graph.NewStore(opts.store)
	db.facets = facet.NewIndex()
	db.tiers = db.newTierManager()

	for _, a := range opts.augmenters {
		if err := db.plugins.Register(a); err != nil {
			return nil, err
		}
	}

	if opts.store != nil {
		db.locks = consistency.NewLockManager(opts.store, opts.instanceID)
		db.shared = consistency.NewStatsManager(opts.store, db.locks)
		db.changes, err = consistency.NewChangeLog(opts.store, opts.instanceID)
		if err != nil {
			return nil, err
		}
		if err := db.bootstrap(ctx); err != nil {
			return nil, err
		}
		db.watermark = time.Now()
	}

	db.logger.InfoContext(ctx, "database opened",
		"dimension", opts.dimension,
		"nodes", len(db.nodes),
		"shared", opts.store != nil,
	)
	return db, nil
}

// indexOptions configures every per-partition index. It is consulted
// each time a partition is created, so indexes built after quantizer
// training come up compressed.
func (db *DB) indexOptions(o *hnsw.Options) {
	o.Metric = db.opts.metric
	if db.opts.efSearch > 0 {
		o.EFSearch = db.opts.efSearch
	}
	if db.quantizerReady {
		o.Quantizer = db.quantizer
		o.RerankFinal = db.opts.rerankFinal
	}
}

func (db *DB) newTierManager() *cache.TierManager {
	hot := db.opts.hotCacheSize
	if hot <= 0 {
		hot = cache.DeriveHotCapacity(db.opts.dimension)
	}
	return cache.NewTierManager(db.loadEntry, func(o *cache.Options) {
		o.HotCapacity = hot
		o.WarmCapacity = db.opts.warmCacheSize
		o.PrefetchNeighbors = db.prefetchNeighbors
	})
}

// prefetchNeighbors feeds the cache's cold-hit prefetch with the
// layer-0 proximity neighbors of the loaded node.
func (db *DB) prefetchNeighbors(pk uint64) []uint64 {
	p, ok := db.manager.PartitionFor(pk)
	if !ok {
		return nil
	}
	layers := p.Index().Neighbors(pk)
	if len(layers) == 0 {
		return nil
	}
	return layers[0]
}

// ResizeCache changes the hot and warm cache tier bounds at runtime.
// Non-positive values leave that tier unchanged.
func (db *DB) ResizeCache(hot, warm int) {
	db.tiers.Resize(hot, warm)
}

// loadEntry is the cold-tier loader: in-memory node first, then the
// blob store.
func (db *DB) loadEntry(ctx context.Context, pk uint64) (*cache.Entry, error) {
	db.mu.RLock()
	id, ok := db.ids[pk]
	var node *model.Node
	if ok {
		node = db.nodes[id]
	}
	db.mu.RUnlock()

	if !ok {
		return nil, cache.ErrNotFound
	}
	if node != nil {
		return &cache.Entry{Vector: node.Vector, Metadata: node.Metadata}, nil
	}
	if db.store == nil {
		return nil, cache.ErrNotFound
	}

	raw, err := db.store.Get(ctx, nodeKey(id))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var n model.Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("decode node %s: %w", id, err)
	}
	return &cache.Entry{Vector: n.Vector, Metadata: n.Metadata}, nil
}

// bootstrap replays the shared store's persisted nodes and edges into
// this instance.
func (db *DB) bootstrap(ctx context.Context) error {
	if err := db.edges.Load(ctx); err != nil {
		return err
	}

	keys, err := db.store.List(ctx, nodePrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		raw, err := db.store.Get(ctx, key)
		if errors.Is(err, blobstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		var n model.Node
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("bootstrap: decode %s: %w", key, err)
		}
		if err := db.upsertLocal(ctx, &n); err != nil {
			return err
		}
	}
	return nil
}

// Add stores a vector with optional metadata and returns the assigned
// node id.
func (db *DB) Add(ctx context.Context, vector []float32, metadata map[string]any) (string, error) {
	start := time.Now()
	id, err := db.add(ctx, "", vector, metadata)
	db.metrics.RecordAdd(time.Since(start), err)
	db.logger.LogAdd(ctx, id, len(vector), err)
	return id, err
}

// AddContent embeds content through the configured embedder and stores
// the resulting vector together with the content and metadata.
func (db *DB) AddContent(ctx context.Context, content string, metadata map[string]any) (string, error) {
	start := time.Now()
	id, err := db.addContent(ctx, content, metadata)
	db.metrics.RecordAdd(time.Since(start), err)
	db.logger.LogAdd(ctx, id, db.opts.dimension, err)
	return id, err
}

func (db *DB) addContent(ctx context.Context, content string, metadata map[string]any) (string, error) {
	if db.opts.embedder == nil {
		return "", ErrNoEmbedder
	}
	if got := db.opts.embedder.Dimension(); got != db.opts.dimension {
		return "", &ErrDimensionMismatch{Expected: db.opts.dimension, Actual: got}
	}
	vector, err := db.opts.embedder.Embed(ctx, content)
	if err != nil {
		return "", err
	}
	return db.add(ctx, content, vector, metadata)
}

func (db *DB) add(ctx context.Context, content string, vector []float32, metadata map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(vector) != db.opts.dimension {
		return "", &ErrDimensionMismatch{Expected: db.opts.dimension, Actual: len(vector)}
	}

	node := &model.Node{
		ID:       uuid.NewString(),
		Vector:   slices.Clone(vector),
		Content:  content,
		Metadata: metadata,
	}
	if err := db.plugins.Run(ctx, node); err != nil {
		return "", err
	}
	if len(node.Vector) != db.opts.dimension {
		return "", &ErrDimensionMismatch{Expected: db.opts.dimension, Actual: len(node.Vector)}
	}

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return "", ErrClosed
	}
	pk := db.nextPK
	db.nextPK++
	if err := db.manager.Insert(ctx, pk, node.Vector); err != nil {
		db.mu.Unlock()
		return "", translateError(err)
	}
	db.nodes[node.ID] = node
	db.pks[node.ID] = pk
	db.ids[pk] = node.ID
	db.facets.Add(pk, node.Metadata)
	if err := db.maybeTrainQuantizerLocked(ctx); err != nil {
		// Training failure keeps the store full precision.
		db.logger.WarnContext(ctx, "quantizer training failed", "error", err)
		db.opts.quantization = QuantizationNone
	}
	db.mu.Unlock()

	db.tiers.Put(pk, &cache.Entry{Vector: node.Vector, Metadata: node.Metadata})

	if db.store != nil {
		if err := db.persistNode(ctx, node); err != nil {
			return "", err
		}
		if err := db.appendChange(ctx, model.OpAdd, model.EntityNode, node.ID); err != nil {
			return "", err
		}
	}
	return node.ID, nil
}

// maybeTrainQuantizerLocked trains the configured quantizer once enough
// vectors have arrived and rebuilds the partition indexes compressed.
// Callers hold db.mu.
func (db *DB) maybeTrainQuantizerLocked(ctx context.Context) error {
	if db.quantizerReady || db.opts.quantization == QuantizationNone || db.opts.quantization == QuantizationBinary {
		return nil
	}
	if len(db.nodes) < db.opts.trainingThreshold {
		return nil
	}

	sample := make([][]float32, 0, len(db.nodes))
	for _, n := range db.nodes {
		v := n.Vector
		if db.opts.metric == distance.MetricCosine {
			if nv, ok := distance.NormalizeL2Copy(v); ok {
				v = nv
			}
		}
		sample = append(sample, v)
	}

	var q quantization.Quantizer
	switch db.opts.quantization {
	case QuantizationScalar:
		q = quantization.NewScalarQuantizer(db.opts.dimension)
	case QuantizationProduct:
		pq, err := quantization.NewProductQuantizer(db.opts.dimension, productSubvectors(db.opts.dimension), 16)
		if err != nil {
			return err
		}
		q = pq
	default:
		return nil
	}
	if err := q.Train(sample); err != nil {
		return err
	}
	db.quantizer = q
	db.quantizerReady = true

	// Rebuild in place so existing nodes move to compressed storage.
	return db.manager.Restore(ctx, db.manager.Snapshot())
}

func productSubvectors(dimension int) int {
	for _, sub := range []int{8, 4, 2} {
		if dimension%sub == 0 {
			return sub
		}
	}
	return 1
}

// Search returns up to k nodes nearest to query, ordered by
// non-decreasing distance.
func (db *DB) Search(ctx context.Context, query []float32, k int, optFns ...SearchOption) ([]model.SearchResult, error) {
	start := time.Now()
	results, report, err := db.search(ctx, query, k, optFns...)
	db.metrics.RecordSearch(k, len(report.Degraded), time.Since(start), err)
	db.logger.LogSearch(ctx, k, len(results), len(report.Degraded), err)
	return results, err
}

func (db *DB) search(ctx context.Context, query []float32, k int, optFns ...SearchOption) ([]model.SearchResult, coordinator.Report, error) {
	var report coordinator.Report
	if db.isClosed() {
		return nil, report, ErrClosed
	}
	if k <= 0 {
		return nil, report, ErrInvalidK
	}
	if len(query) != db.opts.dimension {
		return nil, report, &ErrDimensionMismatch{Expected: db.opts.dimension, Actual: len(query)}
	}

	var so searchOptions
	for _, fn := range optFns {
		fn(&so)
	}

	if db.opts.searchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.opts.searchTimeout)
		defer cancel()
	}

	// Facet filters are applied after the ANN pass, so over-fetch to
	// leave room for filtered-out candidates.
	var allowed *roaring64.Bitmap
	fetchK := k
	if so.filter != nil {
		db.mu.RLock()
		allowed = db.facets.Filter(so.filter)
		db.mu.RUnlock()
		if allowed != nil {
			if allowed.IsEmpty() {
				return nil, report, nil
			}
			fetchK = k * 4
		}
	}

	hits, report, err := db.coord.Search(ctx, query, fetchK)
	if err != nil {
		return nil, report, translateError(err)
	}

	// Over-fetched candidates the caller never sees are still the ids
	// similar follow-up queries will ask for; warm them in the
	// background.
	if len(hits) > k {
		spare := make([]uint64, 0, len(hits)-k)
		for _, h := range hits[k:] {
			spare = append(spare, h.ID)
		}
		go func() { _ = db.tiers.Prefetch(context.Background(), spare) }()
	}

	out := make([]model.SearchResult, 0, min(k, len(hits)))
	db.mu.RLock()
	for _, h := range hits {
		if allowed != nil && !allowed.Contains(h.ID) {
			continue
		}
		id, ok := db.ids[h.ID]
		if !ok {
			continue
		}
		res := model.SearchResult{ID: id, Distance: h.Distance}
		if n := db.nodes[id]; n != nil {
			res.Metadata = n.Metadata
		}
		out = append(out, res)
		if len(out) == k {
			break
		}
	}
	db.mu.RUnlock()
	return out, report, nil
}

// Delete removes a node and every edge touching it. Returns false when
// the id is unknown.
func (db *DB) Delete(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	removed, err := db.delete(ctx, id)
	db.metrics.RecordDelete(time.Since(start), err)
	db.logger.LogDelete(ctx, id, err)
	return removed, err
}

func (db *DB) delete(ctx context.Context, id string) (bool, error) {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return false, ErrClosed
	}
	pk, ok := db.pks[id]
	if !ok {
		db.mu.Unlock()
		return false, nil
	}
	node := db.nodes[id]
	db.manager.Delete(ctx, pk)
	if node != nil {
		db.facets.Remove(pk, node.Metadata)
	}
	delete(db.nodes, id)
	delete(db.pks, id)
	delete(db.ids, pk)
	db.mu.Unlock()

	db.tiers.Delete(pk)
	if _, err := db.edges.DropNode(ctx, id); err != nil {
		return true, err
	}

	if db.store != nil {
		if err := db.store.Delete(ctx, nodeKey(id)); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			return true, err
		}
		if err := db.appendChange(ctx, model.OpDelete, model.EntityNode, id); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Get returns the stored node by id.
func (db *DB) Get(ctx context.Context, id string) (*model.Node, error) {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return nil, ErrClosed
	}
	pk, ok := db.pks[id]
	db.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	entry, err := db.tiers.Get(ctx, pk)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	node := &model.Node{ID: id, Vector: entry.Vector, Metadata: entry.Metadata}
	db.mu.RLock()
	if n := db.nodes[id]; n != nil {
		node.Content = n.Content
	}
	db.mu.RUnlock()
	return node, nil
}

// Relate creates or updates the edge source-[verb]->target. Both nodes
// must exist.
func (db *DB) Relate(ctx context.Context, source, target, verb string, optFns ...func(o *graph.RelateOptions)) (*model.Edge, error) {
	start := time.Now()
	edge, err := db.relate(ctx, source, target, verb, optFns...)
	db.metrics.RecordRelate(time.Since(start), err)
	return edge, err
}

func (db *DB) relate(ctx context.Context, source, target, verb string, optFns ...func(o *graph.RelateOptions)) (*model.Edge, error) {
	if db.isClosed() {
		return nil, ErrClosed
	}
	db.mu.RLock()
	_, srcOK := db.pks[source]
	_, dstOK := db.pks[target]
	db.mu.RUnlock()
	if !srcOK || !dstOK {
		return nil, fmt.Errorf("%w: relate %s-[%s]->%s", ErrNotFound, source, verb, target)
	}

	edge, err := db.edges.Relate(ctx, source, target, verb, optFns...)
	if err != nil {
		return nil, translateError(err)
	}
	if db.store != nil {
		if err := db.appendChange(ctx, model.OpAdd, model.EntityEdge, edge.ID); err != nil {
			return nil, err
		}
	}
	return edge, nil
}

// Unrelate removes the edge source-[verb]->target.
func (db *DB) Unrelate(ctx context.Context, source, target, verb string) error {
	start := time.Now()
	err := db.unrelate(ctx, source, target, verb)
	db.metrics.RecordRelate(time.Since(start), err)
	return err
}

func (db *DB) unrelate(ctx context.Context, source, target, verb string) error {
	if db.isClosed() {
		return ErrClosed
	}

	var edgeID string
	for _, e := range db.edges.From(source, verb) {
		if e.TargetID == target {
			edgeID = e.ID
			break
		}
	}
	if err := db.edges.Unrelate(ctx, source, target, verb); err != nil {
		return translateError(err)
	}
	if db.store != nil && edgeID != "" {
		return db.appendChange(ctx, model.OpDelete, model.EntityEdge, edgeID)
	}
	return nil
}

// Verbs returns the sorted verbs on edges leaving the given node.
func (db *DB) Verbs(id string) []string {
	return db.edges.Verbs(id)
}

// Neighbors returns the ids reachable from source over the given verb.
// An empty verb matches all verbs.
func (db *DB) Neighbors(source, verb string) []string {
	return db.edges.Neighbors(source, verb)
}

// Edges returns the edges leaving source over the given verb. An empty
// verb matches all verbs.
func (db *DB) Edges(source, verb string) []*model.Edge {
	return db.edges.From(source, verb)
}

// Sync polls the shared change log and replays other instances' writes
// into this one. Returns the number of entries applied.
func (db *DB) Sync(ctx context.Context) (int, error) {
	start := time.Now()
	applied, err := db.sync(ctx)
	db.metrics.RecordSync(applied, time.Since(start), err)
	db.logger.LogSync(ctx, applied, err)
	return applied, err
}

func (db *DB) sync(ctx context.Context) (int, error) {
	if db.isClosed() {
		return 0, ErrClosed
	}
	if db.changes == nil {
		return 0, ErrNoSharedStore
	}

	db.mu.RLock()
	since := db.watermark
	db.mu.RUnlock()

	entries, watermark, err := db.changes.Poll(ctx, since)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, entry := range entries {
		if err := db.applyRemote(ctx, entry); err != nil {
			return applied, err
		}
		applied++
	}

	db.mu.Lock()
	if watermark.After(db.watermark) {
		db.watermark = watermark
	}
	nodeCount := len(db.nodes)
	db.mu.Unlock()

	// Best effort: another instance holding the stats lock is fine.
	if db.shared != nil {
		if _, err := db.shared.Update(ctx, func(stats *consistency.SharedStats) {
			stats.NodeCount = int64(nodeCount)
			stats.EdgeCount = int64(db.edges.Len())
			sizes := make(map[string]int64)
			for _, ps := range db.manager.Stats() {
				sizes[ps.ID] = int64(ps.Len)
			}
			stats.PartitionSizes = sizes
		}); err != nil {
			db.logger.WarnContext(ctx, "shared stats update failed", "error", err)
		}
	}
	return applied, nil
}

func (db *DB) applyRemote(ctx context.Context, entry model.ChangeEntry) error {
	switch entry.EntityType {
	case model.EntityNode:
		if entry.Operation == model.OpDelete {
			return db.removeLocal(ctx, entry.EntityID)
		}
		raw, err := db.store.Get(ctx, nodeKey(entry.EntityID))
		if errors.Is(err, blobstore.ErrNotFound) {
			// Added and deleted before we polled.
			return nil
		}
		if err != nil {
			return err
		}
		var n model.Node
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("sync: decode node %s: %w", entry.EntityID, err)
		}
		return db.upsertLocal(ctx, &n)

	case model.EntityEdge:
		if entry.Operation == model.OpDelete {
			err := db.edges.DropEdge(ctx, entry.EntityID)
			if errors.Is(err, graph.ErrEdgeNotFound) {
				return nil
			}
			return err
		}
		raw, err := db.store.Get(ctx, graph.EdgeKey(entry.EntityID))
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var e model.Edge
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("sync: decode edge %s: %w", entry.EntityID, err)
		}
		return db.edges.Upsert(ctx, &e)
	}
	return nil
}

// upsertLocal installs a node received from the shared store without
// re-announcing it on the change log.
func (db *DB) upsertLocal(ctx context.Context, n *model.Node) error {
	if len(n.Vector) != db.opts.dimension {
		return &ErrDimensionMismatch{Expected: db.opts.dimension, Actual: len(n.Vector)}
	}

	db.mu.Lock()
	pk, known := db.pks[n.ID]
	if !known {
		pk = db.nextPK
		db.nextPK++
	}
	if err := db.manager.Insert(ctx, pk, n.Vector); err != nil {
		db.mu.Unlock()
		return translateError(err)
	}
	if known {
		if prev := db.nodes[n.ID]; prev != nil {
			db.facets.Update(pk, prev.Metadata, n.Metadata)
		} else {
			db.facets.Add(pk, n.Metadata)
		}
	} else {
		db.facets.Add(pk, n.Metadata)
	}
	db.nodes[n.ID] = n
	db.pks[n.ID] = pk
	db.ids[pk] = n.ID
	db.mu.Unlock()

	db.tiers.Put(pk, &cache.Entry{Vector: n.Vector, Metadata: n.Metadata})
	return nil
}

// removeLocal deletes a node without touching the shared store or the
// change log.
func (db *DB) removeLocal(ctx context.Context, id string) error {
	db.mu.Lock()
	pk, ok := db.pks[id]
	if !ok {
		db.mu.Unlock()
		return nil
	}
	node := db.nodes[id]
	db.manager.Delete(ctx, pk)
	if node != nil {
		db.facets.Remove(pk, node.Metadata)
	}
	delete(db.nodes, id)
	delete(db.pks, id)
	delete(db.ids, pk)
	db.mu.Unlock()

	db.tiers.Delete(pk)
	_, err := db.edges.DropNode(ctx, id)
	return err
}

// Compact removes tombstoned nodes from every partition index. When a
// shared store is attached the pass is serialized across instances
// through an advisory lock. Returns the number of nodes removed.
func (db *DB) Compact(ctx context.Context) (int, error) {
	if db.isClosed() {
		return 0, ErrClosed
	}
	if db.locks == nil {
		return db.manager.Compact(ctx), nil
	}

	var removed int
	err := db.locks.WithLock(ctx, "compaction", func(ctx context.Context) error {
		removed = db.manager.Compact(ctx)
		return nil
	})
	return removed, err
}

// Len returns the number of live nodes.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.nodes)
}

// PartitionStats returns per-partition statistics.
func (db *DB) PartitionStats() []partition.Stats {
	return db.manager.Stats()
}

// CacheStats returns cache tier statistics.
func (db *DB) CacheStats() cache.Stats {
	return db.tiers.Stats()
}

func (db *DB) persistNode(ctx context.Context, n *model.Node) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return db.store.Put(ctx, nodeKey(n.ID), raw)
}

func (db *DB) appendChange(ctx context.Context, op model.Operation, et model.EntityType, id string) error {
	return db.changes.Append(ctx, []model.ChangeEntry{{
		Operation:  op,
		EntityType: et,
		EntityID:   id,
	}})
}

func (db *DB) isClosed() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.closed
}

// Close releases the coordinator's worker pool and marks the DB
// closed. Safe to call more than once.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	db.coord.Close()
	return nil
}
