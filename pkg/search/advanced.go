package search

import (
	"fts/pkg/keys"
	"fts/pkg/kvstore"
	"fts/pkg/query"
)

// probe pairs a probe token with whether it should be verified as a facet
// self-reference.
type probe[T comparable] struct {
	token   T
	isFacet bool
}

// FindProbeTokens implements spec.md §4.7's probe-token selection.
func FindProbeTokens[T comparable](n *query.Node[T]) []probe[T] {
	if n == nil || n.IsEmpty() {
		return nil
	}
	switch n.Kind {
	case query.Not:
		return nil
	case query.And:
		if n.IsLeaf() {
			if n.FirstLookAt != nil {
				return []probe[T]{{token: *n.FirstLookAt, isFacet: n.IsFacet}}
			}
			return []probe[T]{{token: n.Tokens[0], isFacet: n.IsFacet}}
		}
		var best []probe[T]
		for _, c := range n.Children {
			cp := FindProbeTokens(c)
			if len(cp) == 0 {
				continue
			}
			if best == nil || len(cp) < len(best) {
				best = cp
			}
		}
		return best
	default: // Or
		if n.IsLeaf() {
			out := make([]probe[T], len(n.Tokens))
			for i, t := range n.Tokens {
				out[i] = probe[T]{token: t, isFacet: n.IsFacet}
			}
			return out
		}
		for _, c := range n.Children {
			if c.Kind == query.Not {
				return nil
			}
		}
		var out []probe[T]
		for _, c := range n.Children {
			out = append(out, FindProbeTokens(c)...)
		}
		return out
	}
}

// AdvancedParams are the inputs to Search per spec.md §4.7.
type AdvancedParams[T comparable] struct {
	Query  *query.SearchQuery[T]
	Cancel Cancel
}

// Search implements spec.md §4.7's advanced executor: dispatches on
// HasAnyPositiveCriteria, enumerates by probe token(s), and applies Matches
// to verify each candidate.
func (ex Executor[T, R]) Search(p AdvancedParams[T]) ([]R, error) {
	root := p.Query.Root
	skip, limit := p.Query.Skip, p.Query.Limit

	if !query.HasAnyPositiveCriteria(root) {
		return ex.fullScan(root, skip, limit, p.Cancel)
	}

	probes := FindProbeTokens(root)
	if len(probes) == 0 {
		return nil, nil
	}

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

	for _, pr := range probes {
		if p.Cancel != nil && p.Cancel() {
			break
		}
		enum, err := ex.Primary.NewIter()
		if err != nil {
			return results, err
		}
		prefix := ex.Layout.TokenPrefix(pr.token)
		for ok := enum.SeekGE(prefix); ok; ok = enum.Next() {
			if p.Cancel != nil && p.Cancel() {
				break
			}
			if !kvstore.HasPrefix(enum.Key(), prefix) {
				break
			}
			tok, record, prev := ex.Layout.DecodePositional(enum.Key())
			if tok != pr.token {
				break
			}
			if enum.Value()[0] == keys.Deleted {
				continue
			}
			if pr.isFacet && prev != pr.token {
				continue
			}
			if haveSkip && record == skipRecord {
				continue
			}
			if _, dup := seen[record]; dup {
				continue
			}
			if !ex.Matches(verify, root, record) {
				continue
			}

			if off >= skip {
				results = append(results, record)
				seen[record] = struct{}{}
			} else {
				skipRecord = record
				haveSkip = true
			}
			off++
			if limit > 0 && off == skip+limit {
				enum.Close()
				return results, nil
			}
		}
		enum.Close()
	}
	return results, nil
}

func (ex Executor[T, R]) fullScan(root *query.Node[T], skip, limit int, cancel Cancel) ([]R, error) {
	it, err := ex.Primary.NewIter()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	verify, err := ex.Primary.NewIter()
	if err != nil {
		return nil, err
	}
	defer verify.Close()

	var (
		results []R
		seen    = make(map[R]struct{})
		off     int
	)
	for ok := it.SeekGE(nil); ok; ok = it.Next() {
		if cancel != nil && cancel() {
			break
		}
		if it.Value()[0] == keys.Deleted {
			continue
		}
		_, record, _ := ex.Layout.DecodePositional(it.Key())
		if _, dup := seen[record]; dup {
			continue
		}
		if !ex.Matches(verify, root, record) {
			continue
		}
		seen[record] = struct{}{}
		if off >= skip {
			results = append(results, record)
		}
		off++
		if limit > 0 && off == skip+limit {
			break
		}
	}
	return results, nil
}

// Matches implements spec.md §4.7's Matches dispatch.
func (ex Executor[T, R]) Matches(verify kvstore.Iterator, n *query.Node[T], record R) bool {
	if n == nil || n.IsEmpty() {
		return false
	}
	switch n.Kind {
	case query.And:
		if n.IsLeaf() {
			if n.IsFacet {
				return ex.containsAllFacet(verify, n.Tokens, record)
			}
			return ex.containsAll(verify, n.Tokens, record, n.RespectTokenOrder)
		}
		for _, c := range n.Children {
			if !ex.Matches(verify, c, record) {
				return false
			}
		}
		return true
	case query.Or:
		if n.IsLeaf() {
			if n.IsFacet {
				return ex.containsAny(verify, n.Tokens, record)
			}
			for _, t := range n.Tokens {
				if ex.containsAll(verify, []T{t}, record, false) {
					return true
				}
			}
			return false
		}
		for _, c := range n.Children {
			if ex.Matches(verify, c, record) {
				return true
			}
		}
		return false
	case query.Not:
		if n.IsLeaf() {
			if n.IsFacet {
				return !ex.containsAny(verify, n.Tokens, record)
			}
			if n.RespectTokenOrder {
				return !ex.containsAll(verify, n.Tokens, record, true)
			}
			for _, t := range n.Tokens {
				if ex.containsAll(verify, []T{t}, record, false) {
					return false
				}
			}
			return true
		}
		for _, c := range n.Children {
			if ex.Matches(verify, c, record) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// containsAllFacet verifies every facet token is present on record via its
// self-reference triple, the facet analogue of containsAll. As in
// containsAny, a tombstone at the seek key isn't conclusive: scan forward
// within (f, record, *) for a live self-reference before giving up.
func (ex Executor[T, R]) containsAllFacet(verify kvstore.Iterator, facets []T, record R) bool {
	for _, f := range facets {
		prefix := ex.Layout.TokenRecordPrefix(f, record)
		key := ex.Layout.Positional(f, record, f)
		found := false
		for ok := verify.SeekGE(key); ok && kvstore.HasPrefix(verify.Key(), prefix); ok = verify.Next() {
			if verify.Value()[0] == keys.Deleted {
				continue
			}
			gotTok, gotRecord, gotPrev := ex.Layout.DecodePositional(verify.Key())
			if gotTok == f && gotRecord == record && gotPrev == f {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
