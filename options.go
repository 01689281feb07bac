package brainy

import (
	"time"

	"github.com/soulcraft-research/brainy-sub005/blobstore"
	"github.com/soulcraft-research/brainy-sub005/coordinator"
	"github.com/soulcraft-research/brainy-sub005/distance"
	"github.com/soulcraft-research/brainy-sub005/embedding"
	"github.com/soulcraft-research/brainy-sub005/partition"
	"github.com/soulcraft-research/brainy-sub005/plugin"
)

// QuantizationMode selects how vectors are compressed inside the
// partition indexes. All modes except QuantizationNone are trained on
// the first vectors written; until then search runs full precision.
type QuantizationMode uint8

const (
	// QuantizationNone stores full-precision float32 vectors.
	QuantizationNone QuantizationMode = iota
	// QuantizationScalar maps each dimension to 8 bits (4x smaller).
	QuantizationScalar
	// QuantizationProduct encodes subvectors against trained codebooks.
	QuantizationProduct
	// QuantizationBinary keeps one sign bit per dimension (32x smaller).
	QuantizationBinary
)

type options struct {
	dimension         int
	metric            distance.Metric
	quantization      QuantizationMode
	trainingThreshold int
	rerankFinal       bool

	partitionStrategy    partition.Strategy
	initialPartitions    int
	maxPartitions        int
	maxNodesPerPartition int

	searchStrategy coordinator.SearchStrategy
	searchTimeout  time.Duration
	efSearch       int

	hotCacheSize  int
	warmCacheSize int

	store      blobstore.Store
	embedder   embedding.Embedder
	augmenters []plugin.Augmenter

	instanceID string
	logger     *Logger
	metrics    MetricsCollector
	randomSeed *int64
}

// Option configures DB construction.
type Option func(*options)

func defaultOptions() options {
	return options{
		metric:               distance.MetricCosine,
		trainingThreshold:    256,
		partitionStrategy:    partition.StrategyAuto,
		initialPartitions:    4,
		maxPartitions:        32,
		maxNodesPerPartition: 100_000,
		searchStrategy:       coordinator.StrategyAdaptive,
		warmCacheSize:        65536,
		metrics:              NoopMetricsCollector{},
	}
}

// WithDimension sets the vector dimensionality. Required.
func WithDimension(dimension int) Option {
	return func(o *options) { o.dimension = dimension }
}

// WithMetric sets the distance metric. Defaults to cosine.
func WithMetric(metric distance.Metric) Option {
	return func(o *options) { o.metric = metric }
}

// WithQuantization selects vector compression. Scalar and product
// quantizers train on the first vectors written; threshold tunes the
// sample size via WithQuantizationTraining.
func WithQuantization(mode QuantizationMode) Option {
	return func(o *options) { o.quantization = mode }
}

// WithQuantizationTraining sets how many vectors are collected before
// the quantizer is trained and the indexes switch to compressed
// storage.
func WithQuantizationTraining(vectors int) Option {
	return func(o *options) { o.trainingThreshold = vectors }
}

// WithRerankFinal keeps full-precision vectors next to the quantized
// codes and re-scores each query's candidate set with the exact metric
// before the top-k cut. Restores exact ordering at full-vector memory
// cost; no effect without quantization.
func WithRerankFinal() Option {
	return func(o *options) { o.rerankFinal = true }
}

// WithPartitionStrategy selects write routing: hash, semantic, or auto.
// Auto is the default; it runs a single partition until the store is
// large enough for semantic clustering to pay for itself.
func WithPartitionStrategy(strategy partition.Strategy) Option {
	return func(o *options) { o.partitionStrategy = strategy }
}

// WithPartitionLimits tunes partition sizing: the initial partition
// count, the cap on how far splitting can grow the set, and the node
// count that triggers a split. Zero keeps the default for that field.
func WithPartitionLimits(initial, maxPartitions, maxNodesPerPartition int) Option {
	return func(o *options) {
		if initial > 0 {
			o.initialPartitions = initial
		}
		if maxPartitions > 0 {
			o.maxPartitions = maxPartitions
		}
		if maxNodesPerPartition > 0 {
			o.maxNodesPerPartition = maxNodesPerPartition
		}
	}
}

// WithSearchStrategy selects the partition fan-out policy.
func WithSearchStrategy(strategy coordinator.SearchStrategy) Option {
	return func(o *options) { o.searchStrategy = strategy }
}

// WithSearchTimeout bounds every Search call. Zero disables the bound.
func WithSearchTimeout(timeout time.Duration) Option {
	return func(o *options) { o.searchTimeout = timeout }
}

// WithEFSearch sets the per-partition candidate list width. Higher
// values trade latency for recall.
func WithEFSearch(ef int) Option {
	return func(o *options) { o.efSearch = ef }
}

// WithCacheSizes tunes the hot (pinned LRU) and warm (TTL) cache tiers.
// A zero hot size derives the capacity from the process memory limit.
func WithCacheSizes(hot, warm int) Option {
	return func(o *options) {
		if hot > 0 {
			o.hotCacheSize = hot
		}
		if warm > 0 {
			o.warmCacheSize = warm
		}
	}
}

// WithBlobStore attaches a shared blob store. Nodes and edges are
// persisted to it, and multiple instances pointed at the same store
// converge through the change log.
func WithBlobStore(store blobstore.Store) Option {
	return func(o *options) { o.store = store }
}

// WithEmbedder attaches an embedding model, enabling AddContent.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithAugmenter registers an augmenter that runs on every node write.
func WithAugmenter(a plugin.Augmenter) Option {
	return func(o *options) { o.augmenters = append(o.augmenters, a) }
}

// WithInstanceID fixes this instance's identity in the change log.
// Defaults to a random UUID.
func WithInstanceID(id string) Option {
	return func(o *options) { o.instanceID = id }
}

// WithLogger sets the logger. Defaults to a noop logger.
func WithLogger(l *Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetricsCollector sets the metrics collector. Defaults to noop.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) { o.metrics = m }
}

// WithRandomSeed fixes the index and routing RNGs for reproducible
// graphs in tests.
func WithRandomSeed(seed int64) Option {
	return func(o *options) { o.randomSeed = &seed }
}

// SearchOption configures a single Search call.
type SearchOption func(*searchOptions)

type searchOptions struct {
	filter map[string]any
}

// WithFilter restricts results to nodes whose metadata matches every
// given field=value pair exactly.
func WithFilter(equals map[string]any) SearchOption {
	return func(o *searchOptions) { o.filter = equals }
}
