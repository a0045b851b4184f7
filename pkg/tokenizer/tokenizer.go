// Package tokenizer implements the word-tokenizer contract from spec.md
// §4.1: a finite, non-restartable lazy sequence of slices over a text
// buffer, splitting on runs of "word" characters separated by anything
// else, with configurable minimum length, digit inclusion, and hashed
// stop-word filtering.
package tokenizer

import (
	"unicode"
	"unicode/utf8"

	"fts/pkg/ftserrors"
	"fts/pkg/hashing"
)

// Slice identifies a token's extent within the original text by byte
// offset and byte length (offsets fall on rune boundaries since the
// tokenizer walks runes, not bytes).
type Slice struct {
	Offset int
	Length int
}

// Text returns the substring the slice denotes.
func (s Slice) Text(source string) string {
	return source[s.Offset : s.Offset+s.Length]
}

// StopWords is a hashed set of words to drop during tokenization. Words are
// stored as hashes, not raw strings, per spec.md §4.1.
type StopWords struct {
	hashes map[uint64]struct{}
}

// NewStopWords hashes each word with gen and returns the resulting set.
func NewStopWords(gen hashing.Generator, words []string) StopWords {
	sw := StopWords{hashes: make(map[uint64]struct{}, len(words))}
	for _, w := range words {
		if h := gen.Hash(w); h != 0 {
			sw.hashes[h] = struct{}{}
		}
	}
	return sw
}

func (sw StopWords) contains(h uint64) bool {
	if sw.hashes == nil {
		return false
	}
	_, ok := sw.hashes[h]
	return ok
}

// Config configures a Tokenizer.
type Config struct {
	// MinLength rejects tokens shorter than this many runes. Defaults to 3
	// when zero. Negative values are rejected by New.
	MinLength int
	// IncludeDigits makes digits count as word characters, so "a1b2"
	// tokenizes as one token instead of splitting on the digits.
	IncludeDigits bool
	// StopWords, if set, drops any token whose hash (computed with
	// HashGenerator) is present in the set.
	StopWords StopWords
	// HashGenerator is used only to test candidate tokens against
	// StopWords; it does not affect the slices the tokenizer yields.
	// Defaults to a case-insensitive hashing.Default.
	HashGenerator hashing.Generator
}

// Tokenizer splits text into word-character runs.
type Tokenizer struct {
	cfg Config
}

// New validates cfg and returns a Tokenizer. A negative MinLength is an
// InvalidConfiguration error.
func New(cfg Config) (*Tokenizer, error) {
	if cfg.MinLength < 0 {
		return nil, ftserrors.InvalidConfiguration("tokenizer: min length must not be negative")
	}
	if cfg.MinLength == 0 {
		cfg.MinLength = 3
	}
	if cfg.HashGenerator == nil {
		cfg.HashGenerator = hashing.Default{}
	}
	return &Tokenizer{cfg: cfg}, nil
}

// Tokenize returns a lazy, non-restartable iterator over text. Each call to
// Next advances the iterator; it cannot be reset or shared across
// goroutines.
func (t *Tokenizer) Tokenize(text string) *Iterator {
	return &Iterator{text: text, cfg: t.cfg}
}

// Iterator is the lazy, forward-only token sequence produced by Tokenize.
type Iterator struct {
	text string
	cfg  Config
	pos  int // byte offset of the next rune to examine
	done bool
}

// Next advances to the next token satisfying min-length and stop-word
// constraints, or returns false when the sequence is exhausted.
func (it *Iterator) Next() (Slice, bool) {
	if it.done {
		return Slice{}, false
	}
	for it.pos < len(it.text) {
		start := it.pos
		r, size := utf8.DecodeRuneInString(it.text[it.pos:])
		if !isWordRune(r, it.cfg.IncludeDigits) {
			it.pos += size
			continue
		}
		// consume a run of word runes
		end := start
		runeCount := 0
		for end < len(it.text) {
			r2, size2 := utf8.DecodeRuneInString(it.text[end:])
			if !isWordRune(r2, it.cfg.IncludeDigits) {
				break
			}
			end += size2
			runeCount++
		}
		it.pos = end
		if runeCount < it.cfg.MinLength {
			continue
		}
		slice := Slice{Offset: start, Length: end - start}
		if it.cfg.StopWords.contains(it.cfg.HashGenerator.Hash(slice.Text(it.text))) {
			continue
		}
		return slice, true
	}
	it.done = true
	return Slice{}, false
}

// All drains the iterator into a slice, for callers that don't need
// streaming behavior (most tests, small documents).
func (it *Iterator) All() []Slice {
	var out []Slice
	for {
		s, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, s)
	}
}

func isWordRune(r rune, includeDigits bool) bool {
	if unicode.IsLetter(r) {
		return true
	}
	if includeDigits && unicode.IsDigit(r) {
		return true
	}
	return false
}
