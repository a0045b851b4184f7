// Package index implements the positional inverted index from spec.md §3,
// §4.2: durable storage of (token, record, previous_token) triples over an
// ordered kvstore.Store, with an optional reverse (record, token) mirror
// for O(document-size) record deletion. Per-record locking follows the
// teacher's getThreadLock pattern in pkg/store/pebble.go, generalized from
// per-thread to per-record.
package index

import (
	"sync"
	"time"

	"fts/pkg/ftserrors"
	"fts/pkg/keys"
	"fts/pkg/kvstore"
)

// state is the index lifecycle from spec.md §3: open, read-only, dropped.
type state int32

const (
	stateOpen state = iota
	stateReadOnly
	stateDropped
)

// Config configures an Index.
type Config struct {
	DataPath           string
	UseSecondaryIndex  bool
	BlockCacheSize     int64
	BlockCacheLifetime time.Duration
	SecondaryDataPath  string // defaults to DataPath + "/index2" if empty
}

// Index is the positional index over records of type R and tokens of type
// T (typically uint64), generic so callers can inject fixed-size
// comparators per spec.md §3.
type Index[T comparable, R comparable] struct {
	layout    keys.Layout[T, R]
	primary   kvstore.Store
	secondary kvstore.Store // nil when UseSecondaryIndex is false

	mu    sync.RWMutex
	st    state
	locks recordLocks[R]
}

// Open constructs a new Index rooted at cfg.DataPath, mirroring the
// teacher's Open(path) but scoped to an instance instead of a package
// global, since a search engine may own more than one index.
func Open[T comparable, R comparable](cfg Config, layout keys.Layout[T, R]) (*Index[T, R], error) {
	primary, err := kvstore.Open(kvstore.Options{
		DataPath:           cfg.DataPath + "/index1",
		BlockCacheSize:     cfg.BlockCacheSize,
		BlockCacheLifetime: cfg.BlockCacheLifetime,
	})
	if err != nil {
		return nil, err
	}
	idx := &Index[T, R]{
		layout:  layout,
		primary: primary,
		locks:   newRecordLocks[R](),
	}
	if cfg.UseSecondaryIndex {
		secPath := cfg.SecondaryDataPath
		if secPath == "" {
			secPath = cfg.DataPath + "/index2"
		}
		secondary, err := kvstore.Open(kvstore.Options{
			DataPath:           secPath,
			BlockCacheSize:     cfg.BlockCacheSize,
			BlockCacheLifetime: cfg.BlockCacheLifetime,
		})
		if err != nil {
			_ = primary.Close()
			return nil, err
		}
		idx.secondary = secondary
	}
	return idx, nil
}

func (ix *Index[T, R]) checkWritable(op string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	switch ix.st {
	case stateDropped:
		return ftserrors.IndexDropped(op)
	case stateReadOnly:
		return ftserrors.ReadOnly(op)
	default:
		return nil
	}
}

// CheckReadable returns IndexDropped if the index has been dropped; reads
// are otherwise permitted in both the open and read-only states.
func (ix *Index[T, R]) CheckReadable(op string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.st == stateDropped {
		return ftserrors.IndexDropped(op)
	}
	return nil
}

// IsReadOnly implements the §6 query flag.
func (ix *Index[T, R]) IsReadOnly() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.st == stateReadOnly
}

// IsIndexDropped implements the §6 query flag.
func (ix *Index[T, R]) IsIndexDropped() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.st == stateDropped
}

// SetReadOnly flips the read/write flag atomically across both the primary
// and (if present) secondary stores, from the caller's point of view.
func (ix *Index[T, R]) SetReadOnly(readOnly bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.st == stateDropped {
		return
	}
	if readOnly {
		ix.st = stateReadOnly
	} else {
		ix.st = stateOpen
	}
}

// Upsert inserts or overwrites the triple (token, record, prev), mirroring
// to the secondary index if enabled.
func (ix *Index[T, R]) Upsert(token T, record R, prev T) error {
	if err := ix.checkWritable("Upsert"); err != nil {
		return err
	}
	unlock := ix.locks.lock(record)
	defer unlock()

	key := ix.layout.Positional(token, record, prev)
	if err := ix.primary.Upsert(key, []byte{keys.Live}); err != nil {
		return err
	}
	if ix.secondary != nil {
		rk := ix.layout.Reverse(record, token)
		if _, err := ix.secondary.TryAdd(rk, []byte{keys.Live}); err != nil {
			return err
		}
	}
	return nil
}

// Delete writes a tombstone for the triple (token, record, prev), mirroring
// to the secondary index: the reverse (record, token) entry is removed once
// no live (token, record, *) triple remains.
func (ix *Index[T, R]) Delete(token T, record R, prev T) error {
	if err := ix.checkWritable("Delete"); err != nil {
		return err
	}
	unlock := ix.locks.lock(record)
	defer unlock()
	return ix.deleteLocked(token, record, prev)
}

func (ix *Index[T, R]) deleteLocked(token T, record R, prev T) error {
	key := ix.layout.Positional(token, record, prev)
	if err := ix.primary.Upsert(key, []byte{keys.Deleted}); err != nil {
		return err
	}
	if ix.secondary != nil {
		it, err := ix.primary.NewIter()
		if err != nil {
			return err
		}
		prefix := ix.layout.TokenRecordPrefix(token, record)
		stillLive := false
		for ok := it.SeekGE(prefix); ok && kvstore.HasPrefix(it.Key(), prefix); ok = it.Next() {
			if it.Value()[0] != keys.Deleted {
				stillLive = true
				break
			}
		}
		if err := it.Close(); err != nil {
			return err
		}
		if stillLive {
			return nil
		}
		rk := ix.layout.Reverse(record, token)
		if err := ix.secondary.ForceDelete(rk); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRecord removes every triple whose record component equals record,
// returning the number of triples removed. Uses the secondary-assisted
// path when the secondary index is enabled, otherwise a full primary scan,
// per spec.md §4.2.
func (ix *Index[T, R]) DeleteRecord(record R) (int, error) {
	if err := ix.checkWritable("DeleteRecord"); err != nil {
		return 0, err
	}
	unlock := ix.locks.lock(record)
	defer unlock()

	if ix.secondary != nil {
		return ix.deleteRecordWithSecondary(record)
	}
	return ix.deleteRecordFullScan(record)
}

func (ix *Index[T, R]) deleteRecordFullScan(record R) (int, error) {
	it, err := ix.primary.NewIter()
	if err != nil {
		return 0, err
	}
	defer it.Close()

	count := 0
	var toDelete [][]byte
	for ok := it.SeekGE(nil); ok; ok = it.Next() {
		tok, rec, prev := ix.layout.DecodePositional(it.Key())
		if rec != record {
			continue
		}
		if it.Value()[0] == keys.Deleted {
			continue
		}
		toDelete = append(toDelete, ix.layout.Positional(tok, rec, prev))
	}
	if err := it.Close(); err != nil {
		return 0, err
	}
	for _, k := range toDelete {
		if err := ix.primary.Upsert(k, []byte{keys.Deleted}); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (ix *Index[T, R]) deleteRecordWithSecondary(record R) (int, error) {
	sit, err := ix.secondary.NewIter()
	if err != nil {
		return 0, err
	}
	defer sit.Close()

	prefix := ix.layout.RecordPrefix(record)
	count := 0
	var tokens []T
	for ok := sit.SeekGE(prefix); ok; ok = sit.Next() {
		if !kvstore.HasPrefix(sit.Key(), prefix) {
			break
		}
		_, tok := ix.layout.DecodeReverse(sit.Key())
		tokens = append(tokens, tok)
	}
	if err := sit.Close(); err != nil {
		return 0, err
	}

	pit, err := ix.primary.NewIter()
	if err != nil {
		return 0, err
	}
	defer pit.Close()

	for _, tok := range tokens {
		tokRecPrefix := ix.layout.TokenRecordPrefix(tok, record)
		var toDelete [][]byte
		for ok := pit.SeekGE(tokRecPrefix); ok; ok = pit.Next() {
			if !kvstore.HasPrefix(pit.Key(), tokRecPrefix) {
				break
			}
			if pit.Value()[0] == keys.Deleted {
				continue
			}
			toDelete = append(toDelete, append([]byte(nil), pit.Key()...))
		}
		for _, k := range toDelete {
			if err := ix.primary.Upsert(k, []byte{keys.Deleted}); err != nil {
				return count, err
			}
			count++
		}
		rk := ix.layout.Reverse(record, tok)
		if err := ix.secondary.ForceDelete(rk); err != nil {
			return count, err
		}
	}
	return count, nil
}

// EvictToDisk flushes both stores to durable storage.
func (ix *Index[T, R]) EvictToDisk() error {
	if err := ix.primary.EvictToDisk(); err != nil {
		return err
	}
	if ix.secondary != nil {
		return ix.secondary.EvictToDisk()
	}
	return nil
}

// WaitForBackgroundThreads blocks until both stores' maintenance
// goroutines exit.
func (ix *Index[T, R]) WaitForBackgroundThreads() {
	ix.primary.WaitForBackgroundThreads()
	if ix.secondary != nil {
		ix.secondary.WaitForBackgroundThreads()
	}
}

// TryCancelBackgroundThreads signals both stores' maintenance goroutines
// to stop.
func (ix *Index[T, R]) TryCancelBackgroundThreads() {
	ix.primary.TryCancelBackgroundThreads()
	if ix.secondary != nil {
		ix.secondary.TryCancelBackgroundThreads()
	}
}

// Drop is the terminal one-way latch from spec.md §5: flip to dropped,
// cancel background threads, wait for them, destroy both on-disk trees.
func (ix *Index[T, R]) Drop() error {
	ix.mu.Lock()
	if ix.st == stateDropped {
		ix.mu.Unlock()
		return nil
	}
	ix.st = stateDropped
	ix.mu.Unlock()

	ix.TryCancelBackgroundThreads()
	ix.WaitForBackgroundThreads()

	if err := ix.primary.Drop(); err != nil {
		return err
	}
	if ix.secondary != nil {
		return ix.secondary.Drop()
	}
	return nil
}

// Dispose closes both stores' handles without destroying their data,
// distinct from Drop which is destructive. On a dropped index it returns
// IndexDropped, since Drop has already closed both stores.
func (ix *Index[T, R]) Dispose() error {
	if err := ix.CheckReadable("Dispose"); err != nil {
		return err
	}
	ix.TryCancelBackgroundThreads()
	ix.WaitForBackgroundThreads()
	if err := ix.primary.Close(); err != nil {
		return err
	}
	if ix.secondary != nil {
		return ix.secondary.Close()
	}
	return nil
}

// Layout exposes the key layout for callers (e.g. search executors) that
// must build the same keys the index wrote.
func (ix *Index[T, R]) Layout() keys.Layout[T, R] { return ix.layout }

// Primary exposes the underlying primary store for the search executors'
// own iterator pairs, per spec.md §9 ("two independent iterators ...
// essential").
func (ix *Index[T, R]) Primary() kvstore.Store { return ix.primary }

// HasSecondary reports whether the reverse mirror is enabled.
func (ix *Index[T, R]) HasSecondary() bool { return ix.secondary != nil }

// recordLocks provides per-record mutexes, generalizing the teacher's
// getThreadLock (string-keyed) to any comparable record type.
type recordLocks[R comparable] struct {
	mu    sync.Mutex
	locks map[R]*sync.Mutex
}

func newRecordLocks[R comparable]() recordLocks[R] {
	return recordLocks[R]{locks: make(map[R]*sync.Mutex)}
}

func (rl *recordLocks[R]) lock(r R) (unlock func()) {
	rl.mu.Lock()
	l, ok := rl.locks[r]
	if !ok {
		l = &sync.Mutex{}
		rl.locks[r] = l
	}
	rl.mu.Unlock()
	l.Lock()
	return l.Unlock
}
