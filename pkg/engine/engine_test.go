package engine

import (
	"encoding/hex"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	uuid "github.com/hashicorp/go-uuid"

	"fts/pkg/config"
	"fts/pkg/keys"
)

// parseUUID turns a canonical hyphenated UUID string into the fixed [16]byte
// array keys.UUIDCodec stores, the same shape hashicorp/go-uuid.GenerateUUID
// produces.
func parseUUID(t *testing.T, s string) [16]byte {
	t.Helper()
	raw, err := hex.DecodeString(strings.ReplaceAll(s, "-", ""))
	if err != nil || len(raw) != 16 {
		t.Fatalf("malformed uuid %q: %v", s, err)
	}
	var out [16]byte
	copy(out[:], raw)
	return out
}

func newTestEngine(t *testing.T, minLength int) *Engine[uint64] {
	t.Helper()
	cfg := config.Default()
	cfg.Index.DataPath = filepath.Join(t.TempDir(), "idx")
	cfg.Tokenizer.MinLength = minLength
	eng, err := Open[uint64](cfg, keys.Uint64Codec{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Dispose() })
	return eng
}

func sorted(got []uint64) []uint64 {
	out := append([]uint64(nil), got...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func assertIDs(t *testing.T, got, want []uint64) {
	t.Helper()
	got = sorted(got)
	want = sorted(want)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// TestQuotedAndOrderedPhraseScenarios reproduces the first four literal
// scenario rows from spec.md §8 end to end through the facade.
func TestQuotedAndOrderedPhraseScenarios(t *testing.T) {
	eng := newTestEngine(t, 1)
	docs := map[uint64]string{1: "fox", 2: "fox cow cat", 3: "fox cat cow"}
	for id, text := range docs {
		if err := eng.AddRecord(id, text); err != nil {
			t.Fatal(err)
		}
	}
	if err := eng.AddFacet(3, "category", "red"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		query string
		want  []uint64
	}{
		{"(cat OR cow) AND NOT category:tear", []uint64{2, 3}},
		{"cat cow AND NOT category:red", []uint64{2}},
		{"'cat cow' AND NOT category:red", []uint64{}},
		{"'cat cow' AND NOT category:blue", []uint64{3}},
	}
	for _, c := range cases {
		got, err := eng.Search(c.query, 0, 0, nil)
		if err != nil {
			t.Fatalf("query %q: %v", c.query, err)
		}
		assertIDs(t, got, c.want)
	}
}

// TestBooleanPrecedenceScenario reproduces "cat AND dog OR fox" and
// "(cat OR dog) AND NOT (fox OR dog)" over the six-record set.
func TestBooleanPrecedenceScenario(t *testing.T) {
	eng := newTestEngine(t, 1)
	docs := map[uint64]string{
		1: "cat dog fox",
		2: "cat fox",
		3: "dog fox",
		4: "dog",
		5: "fox",
		6: "cat",
	}
	for id, text := range docs {
		if err := eng.AddRecord(id, text); err != nil {
			t.Fatal(err)
		}
	}

	got, err := eng.Search("cat AND dog OR fox", 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, got, []uint64{1, 2, 3, 5})

	got, err = eng.Search("(cat OR dog) AND NOT (fox OR dog)", 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, got, []uint64{6})
}

// TestFacetInScenario reproduces "category IN [...]" over three records
// with facets, one of which matches neither value.
func TestFacetInScenario(t *testing.T) {
	eng := newTestEngine(t, 1)
	for _, id := range []uint64{1, 2, 3} {
		if err := eng.AddRecord(id, "placeholder text"); err != nil {
			t.Fatal(err)
		}
	}
	if err := eng.AddFacet(1, "category", "books"); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddFacet(2, "category", "electronics"); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddFacet(3, "category", "garden"); err != nil {
		t.Fatal(err)
	}

	got, err := eng.Search(`category IN ["books","electronics"]`, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, got, []uint64{1, 2})
}

// TestUnicodeScenario reproduces spec.md §8's Unicode example with
// min-length 1.
func TestUnicodeScenario(t *testing.T) {
	eng := newTestEngine(t, 1)
	if err := eng.AddRecord(1, "こんにちは 世界"); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddRecord(3, "你好 世界"); err != nil {
		t.Fatal(err)
	}

	got, err := eng.SimpleSearch("世界", nil, false, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, got, []uint64{1, 3})

	got, err = eng.SimpleSearch("こんにちは", nil, false, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, got, []uint64{1})
}

// TestFacetAddDeleteRoundTrip is testable property 3: AddFacet then
// DeleteFacet returns SimpleSearch to its pre-add state.
func TestFacetAddDeleteRoundTrip(t *testing.T) {
	eng := newTestEngine(t, 1)
	if err := eng.AddRecord(1, "widget"); err != nil {
		t.Fatal(err)
	}

	before, err := eng.SimpleSearch("", []Facet{{Name: "category", Value: "red"}}, false, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := eng.AddFacet(1, "category", "red"); err != nil {
		t.Fatal(err)
	}
	during, err := eng.SimpleSearch("", []Facet{{Name: "category", Value: "red"}}, false, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, during, []uint64{1})

	if err := eng.DeleteFacet(1, "category", "red"); err != nil {
		t.Fatal(err)
	}

	after, err := eng.SimpleSearch("", []Facet{{Name: "category", Value: "red"}}, false, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, after, before)
}

// TestDeleteRecordRemovesEverything is testable property 4.
func TestDeleteRecordRemovesEverything(t *testing.T) {
	eng := newTestEngine(t, 1)
	if err := eng.AddRecord(7, "alpha beta gamma"); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddFacet(7, "category", "red"); err != nil {
		t.Fatal(err)
	}

	if _, err := eng.DeleteRecord(7); err != nil {
		t.Fatal(err)
	}

	got, err := eng.Search("alpha", 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, got, []uint64{})
}

// TestUpdateRecordMatchesDeleteThenAdd is testable property 5's observable
// half: UpdateRecord leaves the index queryable exactly as delete-then-add
// would, for both removed and added tokens.
func TestUpdateRecordMatchesDeleteThenAdd(t *testing.T) {
	eng := newTestEngine(t, 1)
	if err := eng.AddRecord(1, "red apple"); err != nil {
		t.Fatal(err)
	}
	if err := eng.UpdateRecord(1, "red apple", "green apple"); err != nil {
		t.Fatal(err)
	}

	got, err := eng.Search("red", 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, got, []uint64{})

	got, err = eng.Search("green", 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, got, []uint64{1})

	got, err = eng.Search("apple", 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, got, []uint64{1})
}

// TestUUIDKeyedRecords exercises Engine with record IDs of a caller-supplied
// type other than uint64: keys.UUIDCodec over randomly generated UUIDs, the
// way a caller storing external entity IDs rather than internal counters
// would configure it.
func TestUUIDKeyedRecords(t *testing.T) {
	cfg := config.Default()
	cfg.Index.DataPath = filepath.Join(t.TempDir(), "idx")
	cfg.Tokenizer.MinLength = 1
	eng, err := Open[[16]byte](cfg, keys.UUIDCodec{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Dispose() })

	idStr, err := uuid.GenerateUUID()
	if err != nil {
		t.Fatal(err)
	}
	other, err := uuid.GenerateUUID()
	if err != nil {
		t.Fatal(err)
	}
	id := parseUUID(t, idStr)
	otherID := parseUUID(t, other)

	if err := eng.AddRecord(id, "moonlight sonata"); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddRecord(otherID, "clair de lune"); err != nil {
		t.Fatal(err)
	}

	got, err := eng.Search("sonata", 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != id {
		t.Fatalf("got %v, want [%v]", got, id)
	}

	if _, err := eng.DeleteRecord(id); err != nil {
		t.Fatal(err)
	}
	got, err = eng.Search("sonata", 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want none", got)
	}
}
