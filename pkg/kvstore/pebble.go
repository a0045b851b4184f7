// Package kvstore provides the ordered key-value store contract spec.md §6
// requires of the core's external collaborator, backed by
// github.com/cockroachdb/pebble — the same LSM store the teacher
// (progressdb) uses, generalized here from its thread/message key scheme to
// arbitrary fixed-layout composite keys supplied by pkg/keys.
package kvstore

import (
	"bytes"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"fts/pkg/logger"
)

// Iterator is a scoped, forward-ordered cursor over a snapshot of the
// store. Two independent iterators (enumeration and verification) are
// opened per search operation per spec.md §9.
type Iterator interface {
	// SeekGE positions the iterator at the first key >= target and reports
	// whether such a key exists.
	SeekGE(key []byte) bool
	// Valid reports whether the iterator currently sits on a key.
	Valid() bool
	Key() []byte
	Value() []byte
	// Next advances to the next key and reports whether it exists.
	Next() bool
	Close() error
}

// Store is the ordered KV store contract the positional index consumes.
type Store interface {
	// Upsert inserts or overwrites key with value.
	Upsert(key, value []byte) error
	// TryAdd inserts key with value only if it is not already present,
	// reporting whether the insert happened.
	TryAdd(key, value []byte) (inserted bool, err error)
	// ForceDelete physically removes key from the store (a pebble-level
	// delete, which itself becomes an LSM tombstone) regardless of whether
	// the caller's own logical tombstone convention already marked it.
	ForceDelete(key []byte) error
	// TryGet fetches the value for key, reporting whether it was found.
	TryGet(key []byte) (value []byte, found bool, err error)
	// NewIter opens a new ordered iterator snapshot.
	NewIter() (Iterator, error)

	// EvictToDisk flushes in-memory state to durable storage.
	EvictToDisk() error
	// TryCancelBackgroundThreads signals the store's background
	// maintenance goroutines to stop; safe to call more than once.
	TryCancelBackgroundThreads()
	// WaitForBackgroundThreads blocks until background goroutines started
	// by this store have exited.
	WaitForBackgroundThreads()
	// Drop closes the store and destroys its on-disk tree. Terminal.
	Drop() error
	// Close releases the store's handle without destroying its data.
	Close() error
}

// Options configures a pebble-backed Store.
type Options struct {
	// DataPath is the directory the store persists to.
	DataPath string
	// BlockCacheSize bounds pebble's shared block cache, in bytes.
	BlockCacheSize int64
	// BlockCacheLifetime, when positive, is the interval at which a
	// background goroutine flushes the memtable and lets pebble reclaim
	// inactive block-cache entries.
	BlockCacheLifetime time.Duration
}

// PebbleStore adapts *pebble.DB to the Store interface, mirroring the
// teacher's pkg/store/pebble.go package-level handle, generalized to an
// instance so multiple indexes (primary/secondary) can each own one.
type PebbleStore struct {
	db   *pebble.DB
	path string

	cancelOnce sync.Once
	cancelCh   chan struct{}
	wg         sync.WaitGroup
}

// Open opens or creates a pebble store at opts.DataPath.
func Open(opts Options) (*PebbleStore, error) {
	pebbleOpts := &pebble.Options{}
	if opts.BlockCacheSize > 0 {
		pebbleOpts.Cache = pebble.NewCache(opts.BlockCacheSize)
	}
	db, err := pebble.Open(opts.DataPath, pebbleOpts)
	if err != nil {
		logger.Error("kvstore_open_failed", "path", opts.DataPath, "error", err)
		return nil, err
	}
	s := &PebbleStore{db: db, path: opts.DataPath}
	if opts.BlockCacheLifetime > 0 {
		s.startMaintainer(opts.BlockCacheLifetime)
	}
	return s, nil
}

func (s *PebbleStore) startMaintainer(lifetime time.Duration) {
	s.cancelCh = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(lifetime)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := s.EvictToDisk(); err != nil {
					logger.Warn("kvstore_evict_failed", "path", s.path, "error", err)
				}
			case <-s.cancelCh:
				return
			}
		}
	}()
}

// Upsert implements Store.
func (s *PebbleStore) Upsert(key, value []byte) error {
	return s.db.Set(key, value, pebble.NoSync)
}

// TryAdd implements Store. Pebble has no native check-and-set; callers
// (the index's per-record lock) are relied on to serialize concurrent
// TryAdd calls against the same key, same as the teacher's getThreadLock
// discipline around read-modify-write sequences.
func (s *PebbleStore) TryAdd(key, value []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if err == nil {
		closer.Close()
		return false, nil
	}
	if err != pebble.ErrNotFound {
		return false, err
	}
	if err := s.db.Set(key, value, pebble.NoSync); err != nil {
		return false, err
	}
	return true, nil
}

// ForceDelete implements Store.
func (s *PebbleStore) ForceDelete(key []byte) error {
	return s.db.Delete(key, pebble.NoSync)
}

// TryGet implements Store.
func (s *PebbleStore) TryGet(key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, true, nil
}

// NewIter implements Store.
func (s *PebbleStore) NewIter() (Iterator, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	return &pebbleIterator{it: it}, nil
}

// EvictToDisk implements Store via a memtable flush, forcing pebble to
// write durable sstables and let the block cache drop entries for data no
// longer in the active write path.
func (s *PebbleStore) EvictToDisk() error {
	return s.db.Flush()
}

// TryCancelBackgroundThreads implements Store.
func (s *PebbleStore) TryCancelBackgroundThreads() {
	s.cancelOnce.Do(func() {
		if s.cancelCh != nil {
			close(s.cancelCh)
		}
	})
}

// WaitForBackgroundThreads implements Store.
func (s *PebbleStore) WaitForBackgroundThreads() {
	s.wg.Wait()
}

// Drop implements Store: closes the handle and removes the data directory.
func (s *PebbleStore) Drop() error {
	s.TryCancelBackgroundThreads()
	s.wg.Wait()
	if err := s.db.Close(); err != nil {
		return err
	}
	return os.RemoveAll(s.path)
}

// Close implements Store.
func (s *PebbleStore) Close() error {
	s.TryCancelBackgroundThreads()
	s.wg.Wait()
	return s.db.Close()
}

// IsNotFound reports whether err originates from pebble's not-found
// sentinel, mirroring the teacher's store.IsNotFound helper.
func IsNotFound(err error) bool {
	return err == pebble.ErrNotFound
}

type pebbleIterator struct {
	it *pebble.Iterator
}

func (p *pebbleIterator) SeekGE(key []byte) bool { return p.it.SeekGE(key) }
func (p *pebbleIterator) Valid() bool            { return p.it.Valid() }
func (p *pebbleIterator) Key() []byte            { return p.it.Key() }
func (p *pebbleIterator) Value() []byte          { return p.it.Value() }
func (p *pebbleIterator) Next() bool             { return p.it.Next() }
func (p *pebbleIterator) Close() error           { return p.it.Close() }

// HasPrefix is a small convenience re-exported for callers that already
// import kvstore but not bytes, matching the teacher's own
// bytes.HasPrefix(iter.Key(), prefix) idiom used throughout pebble.go.
func HasPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}
