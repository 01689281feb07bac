package consistency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/soulcraft-research/brainy-sub005/blobstore"
	"github.com/soulcraft-research/brainy-sub005/model"
)

const (
	changePrefix = "changes"
	// bucketGranularity groups change objects into time buckets so a
	// poll lists only the buckets that can contain new entries instead
	// of the whole history.
	bucketGranularity = time.Minute
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// ChangeLog is an append-only, shared operation journal. Each append
// writes an immutable object into a time bucket; peers discover remote
// mutations by polling buckets newer than their watermark.
type ChangeLog struct {
	store      blobstore.Store
	instanceID string
	compress   bool
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder
	now        func() time.Time
}

// NewChangeLog creates a ChangeLog writing entries as instanceID.
func NewChangeLog(store blobstore.Store, instanceID string, optFns ...func(l *ChangeLog)) (*ChangeLog, error) {
	l := &ChangeLog{
		store:      store,
		instanceID: instanceID,
		compress:   true,
		now:        time.Now,
	}
	for _, fn := range optFns {
		fn(l)
	}

	var err error
	if l.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest)); err != nil {
		return nil, err
	}
	if l.decoder, err = zstd.NewReader(nil); err != nil {
		return nil, err
	}
	return l, nil
}

// WithoutCompression disables zstd framing of change objects.
func WithoutCompression() func(l *ChangeLog) {
	return func(l *ChangeLog) { l.compress = false }
}

func bucketKey(ts time.Time) string {
	return fmt.Sprintf("%s/%012d", changePrefix, ts.Truncate(bucketGranularity).Unix())
}

// Append journals the given entries as one immutable object. The
// entries are stamped with this instance's id and the current time.
func (l *ChangeLog) Append(ctx context.Context, entries []model.ChangeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ts := l.now()
	for i := range entries {
		entries[i].InstanceID = l.instanceID
		if entries[i].Timestamp.IsZero() {
			entries[i].Timestamp = ts
		}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if l.compress {
		data = l.encoder.EncodeAll(data, nil)
	}

	key := fmt.Sprintf("%s/%020d-%s", bucketKey(ts), ts.UnixNano(), uuid.NewString())
	return l.store.Put(ctx, key, data)
}

// Poll returns all entries written by other instances since the given
// watermark, oldest first, together with the new watermark. The cost is
// proportional to the polled window, not to the full history.
func (l *ChangeLog) Poll(ctx context.Context, since time.Time) ([]model.ChangeEntry, time.Time, error) {
	now := l.now()
	if since.IsZero() {
		since = now.Add(-24 * time.Hour)
	}

	var out []model.ChangeEntry
	for bucket := since.Truncate(bucketGranularity); !bucket.After(now); bucket = bucket.Add(bucketGranularity) {
		keys, err := l.store.List(ctx, bucketKey(bucket)+"/")
		if err != nil {
			return nil, since, err
		}
		for _, key := range keys {
			entries, err := l.read(ctx, key)
			if errors.Is(err, blobstore.ErrNotFound) {
				continue // pruned concurrently
			}
			if err != nil {
				return nil, since, err
			}
			for _, e := range entries {
				if e.InstanceID == l.instanceID || !e.Timestamp.After(since) {
					continue
				}
				out = append(out, e)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, now, nil
}

func (l *ChangeLog) read(ctx context.Context, key string) ([]model.ChangeEntry, error) {
	data, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, zstdMagic) {
		if data, err = l.decoder.DecodeAll(data, nil); err != nil {
			return nil, err
		}
	}

	var entries []model.ChangeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Prune deletes change objects in buckets older than keep. Run it
// under the maintenance lock so peers do not poll half-deleted buckets.
func (l *ChangeLog) Prune(ctx context.Context, keep time.Duration) (int, error) {
	cutoff := l.now().Add(-keep).Truncate(bucketGranularity)

	keys, err := l.store.List(ctx, changePrefix+"/")
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, key := range keys {
		var bucketUnix int64
		if _, err := fmt.Sscanf(key, changePrefix+"/%d/", &bucketUnix); err != nil {
			continue
		}
		if time.Unix(bucketUnix, 0).Before(cutoff) {
			if err := l.store.Delete(ctx, key); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}
