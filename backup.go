package brainy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/soulcraft-research/brainy-sub005/cache"
	"github.com/soulcraft-research/brainy-sub005/distance"
	"github.com/soulcraft-research/brainy-sub005/facet"
	"github.com/soulcraft-research/brainy-sub005/model"
	"github.com/soulcraft-research/brainy-sub005/partition"
	"github.com/soulcraft-research/brainy-sub005/persistence"
	"github.com/soulcraft-research/brainy-sub005/quantization"
)

const backupVersion = 1

// partitionDescriptor captures one partition's identity for the backup
// manifest. Vectors live in the nodes section; the descriptor carries
// routing state so a restore rebuilds the same partition layout.
type partitionDescriptor struct {
	ID         string    `json:"id"`
	Centroid   []float32 `json:"centroid,omitempty"`
	EntryPoint uint64    `json:"entryPoint"`
	MaxLevel   int       `json:"maxLevel"`
	Nodes      int       `json:"nodes"`
}

type backupManifest struct {
	Version      int                   `json:"version"`
	CreatedAt    time.Time             `json:"createdAt"`
	Dimension    int                   `json:"dimension"`
	Metric       distance.Metric       `json:"metric"`
	Quantization QuantizationMode      `json:"quantization"`
	InstanceID   string                `json:"instanceId"`
	NextPK       uint64                `json:"nextPk"`
	Partitions   []partitionDescriptor `json:"partitions"`
}

type backupNode struct {
	PK        uint64     `json:"pk"`
	Partition string     `json:"partition"`
	Node      model.Node `json:"node"`
}

// Backup writes a compressed snapshot of every node, edge and
// partition descriptor to w. The snapshot restores into an equivalent
// store: same ids, same partition layout, same search results.
func (db *DB) Backup(ctx context.Context, w io.Writer) error {
	err := db.backup(ctx, w)
	db.logger.LogBackup(ctx, "backup", db.Len(), db.edges.Len(), err)
	return err
}

func (db *DB) backup(ctx context.Context, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if db.isClosed() {
		return ErrClosed
	}

	db.mu.RLock()
	snaps := db.manager.Snapshot()
	byPK := make(map[uint64]string)
	manifest := backupManifest{
		Version:      backupVersion,
		CreatedAt:    time.Now().UTC(),
		Dimension:    db.opts.dimension,
		Metric:       db.opts.metric,
		Quantization: db.opts.quantization,
		InstanceID:   db.opts.instanceID,
		NextPK:       db.nextPK,
	}
	if !db.quantizerReady {
		// Until the quantizer trains the indexes hold full-precision
		// vectors, so the snapshot is effectively unquantized.
		manifest.Quantization = QuantizationNone
	}
	for _, snap := range snaps {
		manifest.Partitions = append(manifest.Partitions, partitionDescriptor{
			ID:         snap.ID,
			Centroid:   snap.Centroid,
			EntryPoint: snap.EntryPoint,
			MaxLevel:   snap.MaxLevel,
			Nodes:      len(snap.Nodes),
		})
		for _, n := range snap.Nodes {
			byPK[n.ID] = snap.ID
		}
	}

	nodes := make([]backupNode, 0, len(db.nodes))
	for id, node := range db.nodes {
		pk := db.pks[id]
		nodes = append(nodes, backupNode{PK: pk, Partition: byPK[pk], Node: *node})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].PK < nodes[j].PK })

	var quantizerState []byte
	var quantizerErr error
	if db.quantizerReady {
		if m, ok := db.quantizer.(interface{ MarshalBinary() ([]byte, error) }); ok {
			quantizerState, quantizerErr = m.MarshalBinary()
		}
	}
	db.mu.RUnlock()
	if quantizerErr != nil {
		return quantizerErr
	}

	edges := db.edges.All()

	writer, err := persistence.NewWriter(w, persistence.CodecZstd)
	if err != nil {
		return err
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	if err := writer.WriteSection(persistence.SectionManifest, manifestJSON); err != nil {
		return err
	}

	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return err
	}
	if err := writer.WriteSection(persistence.SectionNodes, nodesJSON); err != nil {
		return err
	}

	edgesJSON, err := json.Marshal(edges)
	if err != nil {
		return err
	}
	if err := writer.WriteSection(persistence.SectionEdges, edgesJSON); err != nil {
		return err
	}

	if quantizerState != nil {
		if err := writer.WriteSection(persistence.SectionQuantizer, quantizerState); err != nil {
			return err
		}
	}
	return writer.Close()
}

// Restore replaces the store's contents with a snapshot previously
// written by Backup. The snapshot's dimension must match this DB's.
func (db *DB) Restore(ctx context.Context, r io.Reader) error {
	err := db.restore(ctx, r)
	db.logger.LogBackup(ctx, "restore", db.Len(), db.edges.Len(), err)
	return err
}

func (db *DB) restore(ctx context.Context, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if db.isClosed() {
		return ErrClosed
	}

	reader, err := persistence.NewReader(r)
	if err != nil {
		return err
	}
	sections, err := reader.ReadAll()
	if err != nil {
		return err
	}

	var manifest backupManifest
	if err := json.Unmarshal(sections[persistence.SectionManifest], &manifest); err != nil {
		return fmt.Errorf("restore: decode manifest: %w", err)
	}
	if manifest.Dimension != db.opts.dimension {
		return &ErrDimensionMismatch{Expected: db.opts.dimension, Actual: manifest.Dimension}
	}

	var nodes []backupNode
	if err := json.Unmarshal(sections[persistence.SectionNodes], &nodes); err != nil {
		return fmt.Errorf("restore: decode nodes: %w", err)
	}
	var edges []*model.Edge
	if raw, ok := sections[persistence.SectionEdges]; ok {
		if err := json.Unmarshal(raw, &edges); err != nil {
			return fmt.Errorf("restore: decode edges: %w", err)
		}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	// Quantizer state has to be in place before the partition indexes
	// are rebuilt, otherwise the nodes come back full precision.
	if manifest.Quantization != QuantizationNone {
		state, ok := sections[persistence.SectionQuantizer]
		if !ok {
			return fmt.Errorf("restore: snapshot quantization mode %d has no quantizer section", manifest.Quantization)
		}
		switch manifest.Quantization {
		case QuantizationScalar:
			sq := quantization.NewScalarQuantizer(db.opts.dimension)
			if err := sq.UnmarshalBinary(state); err != nil {
				return fmt.Errorf("restore: decode quantizer: %w", err)
			}
			db.quantizer = sq
		case QuantizationProduct:
			pq, err := quantization.NewProductQuantizer(db.opts.dimension, productSubvectors(db.opts.dimension), 16)
			if err != nil {
				return fmt.Errorf("restore: rebuild quantizer: %w", err)
			}
			if err := pq.UnmarshalBinary(state); err != nil {
				return fmt.Errorf("restore: decode quantizer: %w", err)
			}
			db.quantizer = pq
		case QuantizationBinary:
			bq := quantization.NewBinaryQuantizer(db.opts.dimension)
			if err := bq.UnmarshalBinary(state); err != nil {
				return fmt.Errorf("restore: decode quantizer: %w", err)
			}
			db.quantizer = bq
		default:
			return fmt.Errorf("restore: unknown quantization mode %d", manifest.Quantization)
		}
		db.quantizerReady = true
	}

	grouped := make(map[string][]partition.NodeSnapshot)
	for _, bn := range nodes {
		grouped[bn.Partition] = append(grouped[bn.Partition], partition.NodeSnapshot{
			ID:     bn.PK,
			Vector: bn.Node.Vector,
		})
	}
	snaps := make([]partition.PartitionSnapshot, 0, len(manifest.Partitions))
	for _, desc := range manifest.Partitions {
		snaps = append(snaps, partition.PartitionSnapshot{
			ID:       desc.ID,
			Centroid: desc.Centroid,
			Nodes:    grouped[desc.ID],
		})
	}
	if err := db.manager.Restore(ctx, snaps); err != nil {
		return translateError(err)
	}

	db.nodes = make(map[string]*model.Node, len(nodes))
	db.pks = make(map[string]uint64, len(nodes))
	db.ids = make(map[uint64]string, len(nodes))
	db.facets = newFacetIndexFrom(nodes)
	db.nextPK = manifest.NextPK
	for _, bn := range nodes {
		node := bn.Node
		db.nodes[node.ID] = &node
		db.pks[node.ID] = bn.PK
		db.ids[bn.PK] = node.ID
		if bn.PK >= db.nextPK {
			db.nextPK = bn.PK + 1
		}
	}
	db.tiers = db.newTierManager()
	for _, bn := range nodes {
		db.tiers.Put(bn.PK, &cache.Entry{Vector: bn.Node.Vector, Metadata: bn.Node.Metadata})
	}

	if err := db.edges.Replace(ctx, edges); err != nil {
		return err
	}

	// Republish restored nodes so cold cache loads and late-joining
	// instances see them. The change log is left alone; followers
	// bootstrap from the node blobs.
	if db.store != nil {
		for _, bn := range nodes {
			if err := db.persistNode(ctx, db.nodes[bn.Node.ID]); err != nil {
				return err
			}
		}
	}
	return nil
}

func newFacetIndexFrom(nodes []backupNode) *facet.Index {
	idx := facet.NewIndex()
	for _, bn := range nodes {
		idx.Add(bn.PK, bn.Node.Metadata)
	}
	return idx
}
