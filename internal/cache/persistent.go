// internal/cache/persistent.go
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const snapshotPrefix = "snapshot:"

// snapshotRecord is the stored form of an Entry.
type snapshotRecord struct {
	Ref        string    `json:"ref"`
	Path       string    `json:"path"`
	Body       []byte    `json:"body"`
	Size       int       `json:"size"`
	Compressed bool      `json:"compressed"`
	StoredAt   time.Time `json:"stored_at"`
}

// Persistent keeps snapshots in badger so they outlive a single CLI
// process. Entries carry a badger TTL and are also checked against their
// stored timestamp on read. Storage failures are logged and behave as
// misses.
type Persistent struct {
	db     *badger.DB
	ttl    time.Duration
	now    func() time.Time
	codec  *compressionManager
	logger *zap.Logger
}

var _ tier = (*Persistent)(nil)

// NewPersistent creates a badger-backed cache.
func NewPersistent(db *badger.DB, ttl time.Duration, logger *zap.Logger, opts ...Option) (*Persistent, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	codec, err := newCompressionManager(DefaultCompressionOptions())
	if err != nil {
		return nil, fmt.Errorf("initializing compression: %w", err)
	}

	o := buildOptions(opts)
	return &Persistent{
		db:     db,
		ttl:    ttl,
		now:    o.now,
		codec:  codec,
		logger: logger,
	}, nil
}

func (p *Persistent) Get(ref, path string) (string, bool) {
	e, ok := p.lookup(Key{Ref: ref, Path: path})
	if !ok {
		return "", false
	}
	return e.Content, true
}

func (p *Persistent) Put(ref, path, content string) {
	p.store(Key{Ref: ref, Path: path}, Entry{Content: content, StoredAt: p.now()})
}

func (p *Persistent) InvalidateAll() {
	if err := p.db.DropPrefix([]byte(snapshotPrefix)); err != nil {
		p.logger.Error("dropping cached snapshots", zap.Error(err))
	}
}

// Close releases the compression codec. The database belongs to the caller.
func (p *Persistent) Close() {
	p.codec.close()
}

func (p *Persistent) lookup(k Key) (Entry, bool) {
	var rec snapshotRecord

	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(k))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			p.logger.Warn("reading cached snapshot", zap.String("key", k.String()), zap.Error(err))
		}
		return Entry{}, false
	}

	if !fresh(rec.StoredAt, p.now(), p.ttl) {
		return Entry{}, false
	}

	body := rec.Body
	if rec.Compressed {
		body, err = p.codec.decompress(body)
		if err != nil {
			p.logger.Warn("decoding cached snapshot", zap.String("key", k.String()), zap.Error(err))
			return Entry{}, false
		}
	}

	return Entry{Content: string(body), StoredAt: rec.StoredAt}, true
}

func (p *Persistent) store(k Key, e Entry) {
	body, compressed := p.codec.compress(k.Path, []byte(e.Content))

	data, err := json.Marshal(snapshotRecord{
		Ref:        k.Ref,
		Path:       k.Path,
		Body:       body,
		Size:       len(e.Content),
		Compressed: compressed,
		StoredAt:   e.StoredAt,
	})
	if err != nil {
		p.logger.Error("marshaling snapshot", zap.String("key", k.String()), zap.Error(err))
		return
	}

	remaining := p.ttl - p.now().Sub(e.StoredAt)
	if remaining <= 0 {
		return
	}

	err = p.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(snapshotKey(k), data).WithTTL(remaining))
	})
	if err != nil {
		p.logger.Error("storing snapshot", zap.String("key", k.String()), zap.Error(err))
	}
}

func snapshotKey(k Key) []byte {
	return []byte(snapshotPrefix + k.Ref + "\x00" + k.Path)
}
