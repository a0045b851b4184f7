// Package hashing provides the hash-generator contract the positional index
// uses to turn token text into the u64 tokens it stores, plus a normalizing
// variant that folds case and strips diacritics before hashing (spec.md
// §4.1).
package hashing

import (
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Generator maps a character sequence to a u64 token. Implementations must
// be deterministic and collision-resistant enough for search use; a
// whitespace-only input must yield 0 (the "no previous token" sentinel).
type Generator interface {
	Hash(s string) uint64
}

// Default is the default, case-insensitive hash generator. It lower-cases
// the input before hashing with xxhash, the same hash family pebble already
// pulls in for its own SSTable block checksums — reusing it here avoids
// adding a second hashing dependency for a job xxhash is already good at.
type Default struct {
	// CaseSensitive disables the default case folding when true.
	CaseSensitive bool
}

// Hash implements Generator.
func (d Default) Hash(s string) uint64 {
	if isBlank(s) {
		return 0
	}
	if !d.CaseSensitive {
		s = strings.ToLower(s)
	}
	return xxhash.Sum64String(s)
}

// Normalizing wraps a base Generator with a per-character mapping applied
// before hashing: diacritic stripping (e.g. "café" -> "cafe") and optional
// case folding, so that text differing only by accents or case hashes to
// the same token.
type Normalizing struct {
	Base           Generator
	FoldDiacritics bool
	CaseFold       bool
}

// NewNormalizing builds a Normalizing hasher over the default xxhash-based
// generator.
func NewNormalizing(foldDiacritics, caseFold bool) Normalizing {
	return Normalizing{
		Base:           Default{CaseSensitive: true}, // case folding handled here, not double-applied
		FoldDiacritics: foldDiacritics,
		CaseFold:       caseFold,
	}
}

// Hash implements Generator.
func (n Normalizing) Hash(s string) uint64 {
	if isBlank(s) {
		return 0
	}
	if n.FoldDiacritics {
		if stripped, err := stripDiacritics(s); err == nil {
			s = stripped
		}
	}
	if n.CaseFold {
		s = strings.ToLower(s)
	}
	base := n.Base
	if base == nil {
		base = Default{CaseSensitive: true}
	}
	return base.Hash(s)
}

func isBlank(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// stripDiacritics removes combining marks (accents, diaereses, etc.) left
// behind after Unicode NFD decomposition, then recomposes to NFC. This is
// the per-character normalizer mapping spec.md §4.1 calls for.
func stripDiacritics(s string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s, err
	}
	return out, nil
}
