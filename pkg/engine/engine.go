// Package engine is the facade spec.md §6 describes: it ties the tokenizer,
// hash generator, positional index, and search executors together behind
// the small surface a caller actually needs (AddRecord, UpdateRecord,
// DeleteRecord, facets, SimpleSearch, Search), the way the teacher's
// internal/threads package sits in front of its own pkg/store.
package engine

import (
	"context"
	"time"

	"fts/pkg/config"
	"fts/pkg/hashing"
	"fts/pkg/index"
	"fts/pkg/keys"
	"fts/pkg/logger"
	"fts/pkg/lowering"
	"fts/pkg/maintenance"
	"fts/pkg/query"
	"fts/pkg/querylang"
	"fts/pkg/search"
	"fts/pkg/telemetry"
	"fts/pkg/tokenizer"
)

// Cancel is the cooperative cancellation flag threaded through to the
// search executors.
type Cancel = search.Cancel

// Engine is a full-text search index over records of type R, with tokens
// always hashed to uint64. R's on-disk encoding is supplied by the caller
// via a keys.Codec, from which Open builds the keys.Layout that Index and
// Executor take.
type Engine[R comparable] struct {
	idx     *index.Index[uint64, R]
	exec    search.Executor[uint64, R]
	tok     *tokenizer.Tokenizer
	hasher  hashing.Generator
	lower   lowering.Lowerer
	metrics *telemetry.Metrics
	maint   *maintenance.Scheduler
}

// Open builds an Engine rooted at cfg.Index.DataPath, using recordCodec to
// encode/decode the record component of index keys.
func Open[R comparable](cfg config.Config, recordCodec keys.Codec[R]) (*Engine[R], error) {
	hasher := buildHasher(cfg.Tokenizer)
	tok, err := tokenizer.New(tokenizer.Config{
		MinLength:     cfg.Tokenizer.MinLength,
		IncludeDigits: cfg.Tokenizer.IncludeDigits,
		StopWords:     tokenizer.NewStopWords(hasher, cfg.Tokenizer.StopWords),
		HashGenerator: hasher,
	})
	if err != nil {
		return nil, err
	}

	layout := keys.NewLayout[uint64, R](keys.Uint64Codec{}, recordCodec)
	idx, err := index.Open[uint64, R](index.Config{
		DataPath:           cfg.Index.DataPath,
		UseSecondaryIndex:  cfg.Index.UseSecondaryIndex,
		BlockCacheSize:     cfg.Index.BlockCacheSize.Int64(),
		BlockCacheLifetime: cfg.Index.BlockCacheLifetime.Duration(),
	}, layout)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewMetrics("fts")
	eng := &Engine[R]{
		idx:     idx,
		exec:    search.New[uint64, R](idx.Primary(), layout, 0),
		tok:     tok,
		hasher:  hasher,
		lower:   lowering.New(tok, hasher),
		metrics: metrics,
	}
	eng.maint = maintenance.New(idx, cfg.Maintainer, metrics)
	return eng, nil
}

func buildHasher(cfg config.TokenizerConfig) hashing.Generator {
	if !cfg.FoldDiacritics && cfg.CaseFold {
		return hashing.Default{}
	}
	if !cfg.FoldDiacritics && !cfg.CaseFold {
		return hashing.Default{CaseSensitive: true}
	}
	return hashing.NewNormalizing(cfg.FoldDiacritics, cfg.CaseFold)
}

// Metrics exposes the engine's Prometheus collectors for the caller to
// register with its own registry or scrape endpoint.
func (e *Engine[R]) Metrics() *telemetry.Metrics { return e.metrics }

// StartMaintenance launches the cron-scheduled background maintainer.
func (e *Engine[R]) StartMaintenance(ctx context.Context) (context.CancelFunc, error) {
	return e.maint.Start(ctx)
}

// tokenPairs tokenizes text and returns the hashed (token, prev) pairs in
// document order, skipping any token that hashes to the "no previous
// token" sentinel 0.
func (e *Engine[R]) tokenPairs(text string) []tokenPair {
	var pairs []tokenPair
	var prev uint64
	for _, sl := range e.tok.Tokenize(text).All() {
		h := e.hasher.Hash(sl.Text(text))
		if h == 0 {
			continue
		}
		pairs = append(pairs, tokenPair{token: h, prev: prev})
		prev = h
	}
	return pairs
}

type tokenPair struct {
	token uint64
	prev  uint64
}

// AddRecord tokenizes text and upserts one positional triple per token,
// chaining each to its predecessor, per spec.md §4.1/§4.2.
func (e *Engine[R]) AddRecord(record R, text string) error {
	for _, p := range e.tokenPairs(text) {
		if err := e.idx.Upsert(p.token, record, p.prev); err != nil {
			return err
		}
		e.metrics.TriplesUpserted.Inc()
	}
	e.metrics.DocumentsIndexed.Inc()
	return nil
}

// UpdateRecord leaves the index in the state AddRecord(R, old) then
// DeleteTokens(R, old) then AddRecord(R, new) would, but writes only the
// symmetric difference of (token, prev) pairs between old and new, per
// testable property 5.
func (e *Engine[R]) UpdateRecord(record R, oldText, newText string) error {
	oldPairs := e.tokenPairs(oldText)
	newPairs := e.tokenPairs(newText)

	oldSet := make(map[tokenPair]struct{}, len(oldPairs))
	for _, p := range oldPairs {
		oldSet[p] = struct{}{}
	}
	newSet := make(map[tokenPair]struct{}, len(newPairs))
	for _, p := range newPairs {
		newSet[p] = struct{}{}
	}

	for _, p := range oldPairs {
		if _, keep := newSet[p]; keep {
			continue
		}
		if err := e.idx.Delete(p.token, record, p.prev); err != nil {
			return err
		}
		e.metrics.TriplesTombstoned.Inc()
	}
	for _, p := range newPairs {
		if _, already := oldSet[p]; already {
			continue
		}
		if err := e.idx.Upsert(p.token, record, p.prev); err != nil {
			return err
		}
		e.metrics.TriplesUpserted.Inc()
	}
	e.metrics.DocumentsIndexed.Inc()
	return nil
}

// DeleteTokens tombstones the triples text would have produced for record
// (as AddRecord would have written them), returning the count removed.
func (e *Engine[R]) DeleteTokens(record R, text string) (int, error) {
	count := 0
	for _, p := range e.tokenPairs(text) {
		if err := e.idx.Delete(p.token, record, p.prev); err != nil {
			return count, err
		}
		count++
		e.metrics.TriplesTombstoned.Inc()
	}
	return count, nil
}

// DeleteRecord removes every triple belonging to record.
func (e *Engine[R]) DeleteRecord(record R) (int, error) {
	return e.idx.DeleteRecord(record)
}

// facetToken hashes a facet's "name:value" representation the same way
// querylang/lowering produce facet tokens from a parsed facet_expr.
func (e *Engine[R]) facetToken(name, value string) uint64 {
	return e.hasher.Hash(name + ":" + value)
}

// AddFacet upserts a self-referential (h, record, h) triple for the facet
// "name:value", per spec.md §3's facet convention.
func (e *Engine[R]) AddFacet(record R, name, value string) error {
	h := e.facetToken(name, value)
	if err := e.idx.Upsert(h, record, h); err != nil {
		return err
	}
	e.metrics.TriplesUpserted.Inc()
	return nil
}

// DeleteFacet tombstones the facet's self-referential triple.
func (e *Engine[R]) DeleteFacet(record R, name, value string) error {
	h := e.facetToken(name, value)
	if err := e.idx.Delete(h, record, h); err != nil {
		return err
	}
	e.metrics.TriplesTombstoned.Inc()
	return nil
}

// Facet is a name/value pair used by SimpleSearch's optional facet filter.
type Facet struct {
	Name  string
	Value string
}

// SimpleSearch tokenizes searchText and finds records containing every
// resulting token (in order if respectOrder is set) and, if facets is
// non-empty, at least one of the given facets, per spec.md §4.3.
func (e *Engine[R]) SimpleSearch(searchText string, facets []Facet, respectOrder bool, skip, limit int, cancel Cancel) ([]R, error) {
	ctx, end := telemetry.StartOp(context.Background(), "engine.simple_search")
	defer end()
	start := time.Now()
	defer func() { e.metrics.SearchLatency.WithLabelValues("simple").Observe(time.Since(start).Seconds()) }()

	var tokens []uint64
	for _, sl := range e.tok.Tokenize(searchText).All() {
		h := e.hasher.Hash(sl.Text(searchText))
		if h == 0 {
			continue
		}
		tokens = append(tokens, h)
	}
	facetTokens := make([]uint64, len(facets))
	for i, f := range facets {
		facetTokens[i] = e.facetToken(f.Name, f.Value)
	}

	telemetry.SetSpanData(ctx, "token_count", len(tokens))
	e.metrics.SearchTotal.WithLabelValues("simple").Inc()
	timer := telemetry.StartSpan(ctx, "simple_search.execute")
	defer timer()

	return e.exec.SimpleSearch(search.SimpleParams[uint64]{
		Tokens:            tokens,
		RespectTokenOrder: respectOrder,
		Facets:            facetTokens,
		Skip:              skip,
		Limit:             limit,
		Cancel:            cancel,
	})
}

// Search parses queryText with querylang, lowers the result, and runs it
// through the advanced executor, per spec.md §4.4-§4.7.
func (e *Engine[R]) Search(queryText string, skip, limit int, cancel Cancel) ([]R, error) {
	ast, err := querylang.Parse(queryText)
	if err != nil {
		return nil, err
	}
	return e.SearchAST(ast, skip, limit, cancel)
}

// SearchAST runs a caller-built string-leaved AST (e.g. assembled
// programmatically rather than parsed from text) through lowering and the
// advanced executor.
func (e *Engine[R]) SearchAST(ast *query.Node[string], skip, limit int, cancel Cancel) ([]R, error) {
	ctx, end := telemetry.StartOp(context.Background(), "engine.search")
	defer end()
	start := time.Now()
	defer func() { e.metrics.SearchLatency.WithLabelValues("advanced").Observe(time.Since(start).Seconds()) }()

	hashed := e.lower.Lower(ast)
	e.metrics.SearchTotal.WithLabelValues("advanced").Inc()
	if !query.HasAnyPositiveCriteria(hashed) {
		e.metrics.FullScanFallbacks.Inc()
		logger.Debug("search_full_scan_fallback")
	}
	timer := telemetry.StartSpan(ctx, "search.execute")
	defer timer()

	return e.exec.Search(search.AdvancedParams[uint64]{
		Query:  &query.SearchQuery[uint64]{Root: hashed, Skip: skip, Limit: limit},
		Cancel: cancel,
	})
}

// IsReadOnly, SetReadOnly, IsIndexDropped, EvictToDisk, Drop, and Dispose
// forward to the underlying index per spec.md §6's lifecycle contract.
func (e *Engine[R]) IsReadOnly() bool     { return e.idx.IsReadOnly() }
func (e *Engine[R]) SetReadOnly(ro bool)  { e.idx.SetReadOnly(ro) }
func (e *Engine[R]) IsIndexDropped() bool { return e.idx.IsIndexDropped() }
func (e *Engine[R]) EvictToDisk() error   { return e.idx.EvictToDisk() }
func (e *Engine[R]) Drop() error          { return e.idx.Drop() }
func (e *Engine[R]) Dispose() error       { return e.idx.Dispose() }
