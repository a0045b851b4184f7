// Package lowering implements the string-to-hashed AST transformation from
// spec.md §4.6: applies the tokenizer and hash generator to each string
// leaf of a query.Node[string] and restructures the tree into the shape
// the search executors expect.
package lowering

import (
	"fts/pkg/hashing"
	"fts/pkg/query"
	"fts/pkg/tokenizer"
)

// Lowerer owns the tokenizer and hash generator applied to string leaves.
type Lowerer struct {
	Tokenizer *tokenizer.Tokenizer
	Hasher    hashing.Generator
}

// New builds a Lowerer.
func New(tok *tokenizer.Tokenizer, hasher hashing.Generator) Lowerer {
	return Lowerer{Tokenizer: tok, Hasher: hasher}
}

// Lower transforms a string-leaved AST into a hashed-token AST.
func (lo Lowerer) Lower(n *query.Node[string]) *query.Node[uint64] {
	if n == nil {
		return nil
	}
	if n.IsLeaf() {
		return lo.lowerLeaf(n)
	}
	children := make([]*query.Node[uint64], 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, lo.Lower(c))
	}
	return &query.Node[uint64]{
		Kind:              n.Kind,
		Children:          children,
		RespectTokenOrder: n.RespectTokenOrder,
		IsFacet:           n.IsFacet,
		FirstLookAt:       lowerFirstLookAt(lo, n),
	}
}

func lowerFirstLookAt(lo Lowerer, n *query.Node[string]) *uint64 {
	if n.FirstLookAt == nil {
		return nil
	}
	h := lo.Hasher.Hash(*n.FirstLookAt)
	return &h
}

// lowerLeaf applies spec.md §4.6's rules 1-3 to a leaf node.
func (lo Lowerer) lowerLeaf(n *query.Node[string]) *query.Node[uint64] {
	if n.IsFacet {
		tokens := make([]uint64, len(n.Tokens))
		for i, s := range n.Tokens {
			tokens[i] = lo.Hasher.Hash(s)
		}
		return &query.Node[uint64]{
			Kind:              n.Kind,
			Tokens:            tokens,
			RespectTokenOrder: n.RespectTokenOrder,
			IsFacet:           true,
		}
	}

	// word-tokenize each source string into its own hashed sequence
	perString := make([][]uint64, len(n.Tokens))
	for i, s := range n.Tokens {
		perString[i] = lo.wordTokenize(s)
	}

	switch n.Kind {
	case query.And, query.Not:
		if n.RespectTokenOrder || singleOrNoMultiWord(perString) {
			return &query.Node[uint64]{
				Kind:              n.Kind,
				Tokens:            flatten(perString),
				RespectTokenOrder: n.RespectTokenOrder,
			}
		}
		children := make([]*query.Node[uint64], 0, len(perString))
		for _, toks := range perString {
			if len(toks) == 0 {
				continue
			}
			children = append(children, &query.Node[uint64]{Kind: n.Kind, Tokens: toks, RespectTokenOrder: true})
		}
		if len(children) <= 1 {
			// A single surviving per-string child: its tokens came from one
			// multi-word string, so order within it must be respected even
			// though the outer leaf itself was unordered.
			return &query.Node[uint64]{Kind: n.Kind, Tokens: flatten(perString), RespectTokenOrder: true}
		}
		return &query.Node[uint64]{Kind: n.Kind, Children: children}
	default: // Or
		if singleOrNoMultiWord(perString) {
			return &query.Node[uint64]{Kind: query.Or, Tokens: flatten(perString)}
		}
		children := make([]*query.Node[uint64], 0, len(perString))
		for _, toks := range perString {
			if len(toks) == 0 {
				continue
			}
			children = append(children, &query.Node[uint64]{Kind: query.And, Tokens: toks, RespectTokenOrder: true})
		}
		if len(children) <= 1 {
			return &query.Node[uint64]{Kind: query.And, Tokens: flatten(perString), RespectTokenOrder: true}
		}
		return &query.Node[uint64]{Kind: query.Or, Children: children}
	}
}

func (lo Lowerer) wordTokenize(s string) []uint64 {
	slices := lo.Tokenizer.Tokenize(s).All()
	out := make([]uint64, 0, len(slices))
	for _, sl := range slices {
		h := lo.Hasher.Hash(sl.Text(s))
		if h == 0 {
			continue
		}
		out = append(out, h)
	}
	return out
}

func singleOrNoMultiWord(perString [][]uint64) bool {
	multi := 0
	for _, toks := range perString {
		if len(toks) > 1 {
			multi++
		}
	}
	return multi == 0
}

func flatten(perString [][]uint64) []uint64 {
	var out []uint64
	for _, toks := range perString {
		out = append(out, toks...)
	}
	return out
}
