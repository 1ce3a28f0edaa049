package store

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/RuiFG/teleport/log"
	"github.com/pkg/errors"
	"github.com/xujiajun/nutsdb"
)

type NutsDBOptions struct {
	Dir         string
	Bucket      string
	SegmentSize int64
}

var DefaultNutsDBOptions = NutsDBOptions{
	Dir:         "./data",
	Bucket:      "teleport",
	SegmentSize: 8 * nutsdb.MB,
}

// nutsKV keeps every unit in one bptree bucket, units are told apart by key prefix.
// nutsdb's Merge does not exclude concurrent transactions, so every transaction
// holds merging for reading and Compact holds it for writing.
type nutsKV struct {
	logger  log.Logger
	db      *nutsdb.DB
	bucket  string
	closed  atomic.Bool
	merging sync.RWMutex
}

func OpenNutsDB(logger log.Logger, options NutsDBOptions) (KV, error) {
	if options.Bucket == "" {
		return nil, errors.New("nutsdb bucket can't be empty")
	}
	if err := os.MkdirAll(options.Dir, 0o755); err != nil {
		return nil, errors.WithMessagef(err, "failed to create %s", options.Dir)
	}
	opts := nutsdb.DefaultOptions
	opts.Dir = options.Dir
	if options.SegmentSize > 0 {
		opts.SegmentSize = options.SegmentSize
	}
	db, err := nutsdb.Open(opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to open nutsdb at %s", options.Dir)
	}
	logger.Infow("nutsdb opened.", "dir", options.Dir, "bucket", options.Bucket)
	return &nutsKV{logger: logger, db: db, bucket: options.Bucket}, nil
}

// missing reports whether err only means the key or the bucket does not exist.
func missing(err error) bool {
	return nutsdb.IsKeyNotFound(err) || nutsdb.IsBucketNotFound(err) ||
		errors.Is(err, nutsdb.ErrNotFoundKey)
}

func (r *nutsKV) view(fn func(tx *nutsdb.Tx) error) error {
	if r.closed.Load() {
		return ErrClosed
	}
	r.merging.RLock()
	defer r.merging.RUnlock()
	return r.db.View(fn)
}

func (r *nutsKV) Get(key []byte) (value []byte, found bool, err error) {
	err = r.view(func(tx *nutsdb.Tx) error {
		entry, err := tx.Get(r.bucket, key)
		if err != nil {
			if missing(err) {
				return nil
			}
			return errors.WithMessagef(err, "failed to get %q", key)
		}
		value, found = bytes.Clone(entry.Value), true
		return nil
	})
	return value, found, err
}

func (r *nutsKV) Put(key, value []byte) error {
	return r.Update(func(batch Batch) error {
		return batch.Put(key, value)
	})
}

func (r *nutsKV) Delete(key []byte) error {
	return r.Update(func(batch Batch) error {
		return batch.Delete(key)
	})
}

func (r *nutsKV) Scan(prefix []byte, fn func(key, value []byte) bool) error {
	var matched nutsdb.Entries
	if err := r.view(func(tx *nutsdb.Tx) error {
		entries, _, err := tx.PrefixScan(r.bucket, prefix, 0, nutsdb.ScanNoLimit)
		if err != nil {
			//no match and an unknown bucket are both reported as ErrPrefixScan
			if nutsdb.IsPrefixScan(err) {
				return nil
			}
			return err
		}
		for _, entry := range entries {
			matched = append(matched, &nutsdb.Entry{Key: bytes.Clone(entry.Key), Value: bytes.Clone(entry.Value)})
		}
		return nil
	}); err != nil {
		return errors.WithMessagef(err, "failed to scan prefix %q", prefix)
	}
	for _, entry := range matched {
		if !fn(entry.Key, entry.Value) {
			return nil
		}
	}
	return nil
}

func (r *nutsKV) Update(fn func(batch Batch) error) error {
	if r.closed.Load() {
		return ErrClosed
	}
	r.merging.RLock()
	defer r.merging.RUnlock()
	return r.db.Update(func(tx *nutsdb.Tx) error {
		return fn(&nutsBatch{tx: tx, bucket: r.bucket, pending: map[string]bool{}})
	})
}

func (r *nutsKV) Compact() error {
	if r.closed.Load() {
		return ErrClosed
	}
	r.merging.Lock()
	defer r.merging.Unlock()
	if err := r.db.Merge(); err != nil {
		if strings.Contains(err.Error(), "waiting to be merged") {
			return ErrNothingToCompact
		}
		return errors.WithMessage(err, "failed to merge nutsdb")
	}
	return nil
}

func (r *nutsKV) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.merging.Lock()
	defer r.merging.Unlock()
	r.logger.Info("closing nutsdb.")
	return r.db.Close()
}

// nutsBatch remembers what it wrote, uncommitted writes are invisible to tx.Get.
type nutsBatch struct {
	tx      *nutsdb.Tx
	bucket  string
	pending map[string]bool
}

func (b *nutsBatch) exists(key []byte) (bool, error) {
	if present, ok := b.pending[string(key)]; ok {
		return present, nil
	}
	if _, err := b.tx.Get(b.bucket, key); err != nil {
		if missing(err) {
			return false, nil
		}
		return false, errors.WithMessagef(err, "failed to get %q", key)
	}
	return true, nil
}

func (b *nutsBatch) Put(key, value []byte) error {
	if err := b.tx.Put(b.bucket, key, value, 0); err != nil {
		return errors.WithMessagef(err, "failed to put %q", key)
	}
	b.pending[string(key)] = true
	return nil
}

func (b *nutsBatch) Delete(key []byte) error {
	present, err := b.exists(key)
	if err != nil || !present {
		return err
	}
	if err := b.tx.Delete(b.bucket, key); err != nil {
		return errors.WithMessagef(err, "failed to delete %q", key)
	}
	b.pending[string(key)] = false
	return nil
}
