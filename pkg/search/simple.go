// Package search implements the probe-and-verify seek-and-intersect
// executors from spec.md §4.3 (simple) and §4.7 (advanced), each opening a
// pair of independent ordered iterators over the positional index: one to
// enumerate a probe token's postings, one to verify candidates against the
// remaining constraints, per spec.md §9.
package search

import (
	"fts/pkg/keys"
	"fts/pkg/kvstore"
)

// Cancel is a cooperative cancellation flag, checked at the outer
// enumeration loop between iterator steps per spec.md §5.
type Cancel func() bool

// SimpleParams are the inputs to SimpleSearch per spec.md §4.3.
type SimpleParams[T comparable] struct {
	Tokens            []T
	FirstLookAt       *T
	RespectTokenOrder bool
	Facets            []T
	Skip              int
	Limit             int
	Cancel            Cancel
}

// Executor runs searches over a primary index store using a fixed key
// layout. It holds no per-search mutable state, so one Executor can run
// concurrent searches safely (each call opens its own iterators).
type Executor[T comparable, R comparable] struct {
	Primary kvstore.Store
	Layout  keys.Layout[T, R]
	Zero    T // the "no previous token" sentinel, typically the zero value
}

// New returns an Executor.
func New[T comparable, R comparable](primary kvstore.Store, layout keys.Layout[T, R], zero T) Executor[T, R] {
	return Executor[T, R]{Primary: primary, Layout: layout, Zero: zero}
}

// SimpleSearch implements spec.md §4.3's empty-input contract and
// probe-and-verify algorithm.
func (ex Executor[T, R]) SimpleSearch(p SimpleParams[T]) ([]R, error) {
	if len(p.Tokens) == 0 && len(p.Facets) == 0 {
		return nil, nil
	}

	facetOnly := len(p.Tokens) == 0
	var probe T
	if p.FirstLookAt != nil {
		probe = *p.FirstLookAt
	} else if !facetOnly {
		probe = p.Tokens[0]
	} else {
		probe = p.Facets[0]
	}

	enum, err := ex.Primary.NewIter()
	if err != nil {
		return nil, err
	}
	defer enum.Close()
	verify, err := ex.Primary.NewIter()
	if err != nil {
		return nil, err
	}
	defer verify.Close()

	var (
		results    []R
		seen       = make(map[R]struct{})
		skipRecord R
		haveSkip   bool
		off        int
	)

	prefix := ex.Layout.TokenPrefix(probe)
	for ok := enum.SeekGE(prefix); ok; ok = enum.Next() {
		if p.Cancel != nil && p.Cancel() {
			break
		}
		if !kvstore.HasPrefix(enum.Key(), prefix) {
			break
		}
		tok, record, prev := ex.Layout.DecodePositional(enum.Key())
		if tok != probe {
			break
		}
		if enum.Value()[0] == keys.Deleted {
			continue
		}
		if haveSkip && record == skipRecord {
			continue
		}
		if _, dup := seen[record]; dup {
			continue
		}

		if facetOnly {
			if prev != probe {
				continue
			}
		} else {
			if !ex.containsAll(verify, p.Tokens, record, p.RespectTokenOrder) {
				continue
			}
			if len(p.Facets) > 0 && !ex.containsAny(verify, p.Facets, record) {
				continue
			}
		}

		if off >= p.Skip {
			results = append(results, record)
			seen[record] = struct{}{}
		} else {
			skipRecord = record
			haveSkip = true
		}
		off++
		if p.Limit > 0 && off == p.Skip+p.Limit {
			break
		}
	}

	return results, nil
}

// hasLiveWithinPrefix seeks to key and scans forward while the iterator's
// key still matches prefix, skipping tombstoned entries, to find a live
// entry the seek key may have landed on without knowing its exact suffix.
func (ex Executor[T, R]) hasLiveWithinPrefix(verify kvstore.Iterator, key, prefix []byte) bool {
	for ok := verify.SeekGE(key); ok && kvstore.HasPrefix(verify.Key(), prefix); ok = verify.Next() {
		if verify.Value()[0] != keys.Deleted {
			return true
		}
	}
	return false
}

// containsAll implements spec.md §4.3's ContainsAll. When respectOrder
// requires an exact predecessor, the (token, record, prev) triple being
// sought is unique, so a tombstone there is conclusive. Otherwise (the
// first token of an ordered phrase, or any token of an unordered match)
// any live triple for (token, record) suffices, so a tombstone at the seek
// position must not end the search before later prevs are checked.
func (ex Executor[T, R]) containsAll(verify kvstore.Iterator, tokens []T, record R, respectOrder bool) bool {
	var prev T
	havePrev := false
	for _, tok := range tokens {
		seekPrev := ex.Zero
		if havePrev {
			seekPrev = prev
		}
		key := ex.Layout.Positional(tok, record, seekPrev)

		if respectOrder && havePrev {
			if !verify.SeekGE(key) || !verify.Valid() {
				return false
			}
			gotTok, gotRecord, gotPrev := ex.Layout.DecodePositional(verify.Key())
			if gotTok != tok || gotRecord != record || gotPrev != seekPrev || verify.Value()[0] == keys.Deleted {
				return false
			}
		} else {
			prefix := ex.Layout.TokenRecordPrefix(tok, record)
			if !ex.hasLiveWithinPrefix(verify, key, prefix) {
				return false
			}
		}

		if respectOrder {
			prev = tok
			havePrev = true
		}
	}
	return true
}

// containsAny implements spec.md §4.3's ContainsAny (facet self-reference
// exact match). The self-reference key (f, record, f) is sought directly,
// but a tombstone there isn't conclusive on its own: scan forward within
// (f, record, *) for a live self-reference before giving up on the facet.
func (ex Executor[T, R]) containsAny(verify kvstore.Iterator, facets []T, record R) bool {
	for _, f := range facets {
		prefix := ex.Layout.TokenRecordPrefix(f, record)
		key := ex.Layout.Positional(f, record, f)
		for ok := verify.SeekGE(key); ok && kvstore.HasPrefix(verify.Key(), prefix); ok = verify.Next() {
			if verify.Value()[0] == keys.Deleted {
				continue
			}
			gotTok, gotRecord, gotPrev := ex.Layout.DecodePositional(verify.Key())
			if gotTok == f && gotRecord == record && gotPrev == f {
				return true
			}
		}
	}
	return false
}
