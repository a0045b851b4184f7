package search

import (
	"path/filepath"
	"testing"

	"fts/pkg/hashing"
	"fts/pkg/keys"
	"fts/pkg/kvstore"
	"fts/pkg/lowering"
	"fts/pkg/query"
	"fts/pkg/querylang"
	"fts/pkg/tokenizer"
)

// buildTestIndex indexes the literal scenario from spec.md §8:
// {1:"fox", 2:"fox cow cat", 3:"fox cat cow"} plus facet (3, category, red).
func buildTestIndex(t *testing.T) (Executor[uint64, uint64], hashing.Generator, *tokenizer.Tokenizer) {
	t.Helper()
	dir := t.TempDir()
	store, err := kvstore.Open(kvstore.Options{DataPath: filepath.Join(dir, "idx")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	layout := keys.NewLayout[uint64, uint64](keys.Uint64Codec{}, keys.Uint64Codec{})
	hasher := hashing.Default{}
	tok, err := tokenizer.New(tokenizer.Config{MinLength: 1})
	if err != nil {
		t.Fatal(err)
	}

	docs := map[uint64]string{1: "fox", 2: "fox cow cat", 3: "fox cat cow"}
	for record, text := range docs {
		var prev uint64
		for _, sl := range tok.Tokenize(text).All() {
			h := hasher.Hash(sl.Text(text))
			key := layout.Positional(h, record, prev)
			if err := store.Upsert(key, []byte{keys.Live}); err != nil {
				t.Fatal(err)
			}
			prev = h
		}
	}
	facetHash := hasher.Hash("category:red")
	key := layout.Positional(facetHash, 3, facetHash)
	if err := store.Upsert(key, []byte{keys.Live}); err != nil {
		t.Fatal(err)
	}

	ex := New[uint64, uint64](store, layout, 0)
	return ex, hasher, tok
}

func TestSimpleSearchSingleToken(t *testing.T) {
	ex, hasher, _ := buildTestIndex(t)
	fox := hasher.Hash("fox")
	got, err := ex.SimpleSearch(SimpleParams[uint64]{Tokens: []uint64{fox}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected all 3 records to contain fox, got %v", got)
	}
}

func TestSimpleSearchFacetOnly(t *testing.T) {
	ex, hasher, _ := buildTestIndex(t)
	red := hasher.Hash("category:red")
	got, err := ex.SimpleSearch(SimpleParams[uint64]{Facets: []uint64{red}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected only record 3, got %v", got)
	}
}

func TestSimpleSearchRespectOrder(t *testing.T) {
	ex, hasher, _ := buildTestIndex(t)
	cat := hasher.Hash("cat")
	cow := hasher.Hash("cow")
	// record 2 is "fox cow cat" (cow before cat), record 3 is "fox cat cow"
	// (cat before cow). Ordered search for [cat, cow] should match only 3.
	got, err := ex.SimpleSearch(SimpleParams[uint64]{
		Tokens:            []uint64{cat, cow},
		RespectTokenOrder: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected only record 3 for ordered [cat,cow], got %v", got)
	}
}

func buildAdvancedIndex(t *testing.T) (Executor[uint64, uint64], lowering.Lowerer) {
	t.Helper()
	ex, hasher, tok := buildTestIndex(t)
	return ex, lowering.New(tok, hasher)
}

func runQuery(t *testing.T, ex Executor[uint64, uint64], lo lowering.Lowerer, q string) []uint64 {
	t.Helper()
	ast, err := querylang.Parse(q)
	if err != nil {
		t.Fatalf("parse %q: %v", q, err)
	}
	hashed := lo.Lower(ast)
	got, err := ex.Search(AdvancedParams[uint64]{Query: &query.SearchQuery[uint64]{Root: hashed}})
	if err != nil {
		t.Fatalf("search %q: %v", q, err)
	}
	return got
}

func TestAdvancedSearchFacetNegation(t *testing.T) {
	ex, lo := buildAdvancedIndex(t)
	got := runQuery(t, ex, lo, "(cat OR cow) AND NOT category:tear")
	assertRecordSet(t, got, []uint64{2, 3})
}

func TestAdvancedSearchOrderedPhraseExcludingFacet(t *testing.T) {
	ex, lo := buildAdvancedIndex(t)
	got := runQuery(t, ex, lo, "cat cow AND NOT category:red")
	assertRecordSet(t, got, []uint64{2})
}

func TestAdvancedSearchQuotedPhraseExcludingFacet(t *testing.T) {
	ex, lo := buildAdvancedIndex(t)
	got := runQuery(t, ex, lo, "'cat cow' AND NOT category:red")
	assertRecordSet(t, got, []uint64{})
}

func TestAdvancedSearchQuotedPhraseExcludingOtherFacet(t *testing.T) {
	ex, lo := buildAdvancedIndex(t)
	got := runQuery(t, ex, lo, "'cat cow' AND NOT category:blue")
	assertRecordSet(t, got, []uint64{3})
}

// TestContainsAllSkipsTombstoneWithinPrefix reproduces the state
// UpdateRecord can leave behind: a (token, record, *) prefix holding a
// tombstoned low-prev entry and a live higher-prev entry for the same
// token/record, as would happen when a token's predecessor changes across
// an update. containsAll must not give up at the first (tombstoned) entry.
func TestContainsAllSkipsTombstoneWithinPrefix(t *testing.T) {
	dir := t.TempDir()
	store, err := kvstore.Open(kvstore.Options{DataPath: filepath.Join(dir, "idx")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	layout := keys.NewLayout[uint64, uint64](keys.Uint64Codec{}, keys.Uint64Codec{})
	const tok, record uint64 = 42, 1

	// A tombstoned entry at the lowest possible prev (0) sorts first within
	// the (tok, record, *) prefix...
	if err := store.Upsert(layout.Positional(tok, record, 0), []byte{keys.Deleted}); err != nil {
		t.Fatal(err)
	}
	// ...but a live entry with a larger prev also exists.
	if err := store.Upsert(layout.Positional(tok, record, 99), []byte{keys.Live}); err != nil {
		t.Fatal(err)
	}

	ex := New[uint64, uint64](store, layout, 0)
	verify, err := store.NewIter()
	if err != nil {
		t.Fatal(err)
	}
	defer verify.Close()

	if !ex.containsAll(verify, []uint64{tok}, record, false) {
		t.Fatal("expected containsAll to find the live entry past the tombstone")
	}
}

func assertRecordSet(t *testing.T, got []uint64, want []uint64) {
	t.Helper()
	gotSet := make(map[uint64]bool)
	for _, g := range got {
		gotSet[g] = true
	}
	if len(gotSet) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for _, w := range want {
		if !gotSet[w] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
