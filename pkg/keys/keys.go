// Package keys implements the composite-key model from spec.md §3: fixed
// width, order-preserving encodings for the positional triple
// (token, record, previous_token) and its optional reverse triple
// (record, token), generalizing the teacher's hand-rolled key-prefixing
// scheme in pkg/store/pebble.go to caller-supplied record and token types.
package keys

import "encoding/binary"

// Codec encodes a value of type T into a fixed-width, order-preserving byte
// slice (two values compare the same way as their encodings, byte for
// byte) and decodes it back. Implementations must always produce Width()
// bytes.
type Codec[T any] interface {
	Encode(v T) []byte
	Decode(b []byte) T
	Width() int
}

// Uint64Codec is the default Token/Record codec: big-endian fixed 8 bytes,
// which is order-preserving for unsigned integers and matches the "default
// u64" token type spec.md §3 calls out.
type Uint64Codec struct{}

// Width implements Codec.
func (Uint64Codec) Width() int { return 8 }

// Encode implements Codec.
func (Uint64Codec) Encode(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Decode implements Codec.
func (Uint64Codec) Decode(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// UUIDCodec encodes a 16-byte UUID verbatim, order-preserving the same way
// Uint64Codec is: raw bytes already compare lexicographically in RFC 4122's
// own byte order, so no transformation is needed beyond a fixed width.
type UUIDCodec struct{}

// Width implements Codec.
func (UUIDCodec) Width() int { return 16 }

// Encode implements Codec.
func (UUIDCodec) Encode(v [16]byte) []byte {
	b := make([]byte, 16)
	copy(b, v[:])
	return b
}

// Decode implements Codec.
func (UUIDCodec) Decode(b []byte) [16]byte {
	var v [16]byte
	copy(v[:], b)
	return v
}

// Tombstone byte values carried in the value of every positional/reverse
// key, per spec.md §3: "a value of 1 means deleted".
const (
	Live    byte = 0x00
	Deleted byte = 0x01
)

// Layout builds and parses positional and reverse keys for a given
// record/token codec pair. Instantiate once per index; it holds no mutable
// state.
type Layout[T comparable, R comparable] struct {
	Token  Codec[T]
	Record Codec[R]
}

// NewLayout returns a Layout using the given codecs.
func NewLayout[T comparable, R comparable](token Codec[T], record Codec[R]) Layout[T, R] {
	return Layout[T, R]{Token: token, Record: record}
}

// Positional encodes the primary index key (token, record, previous_token).
func (l Layout[T, R]) Positional(token T, record R, prev T) []byte {
	tw, rw := l.Token.Width(), l.Record.Width()
	out := make([]byte, 0, tw+rw+tw)
	out = append(out, l.Token.Encode(token)...)
	out = append(out, l.Record.Encode(record)...)
	out = append(out, l.Token.Encode(prev)...)
	return out
}

// TokenPrefix encodes the prefix (token, *, *) used to seek the first
// posting for a probe token.
func (l Layout[T, R]) TokenPrefix(token T) []byte {
	return l.Token.Encode(token)
}

// TokenRecordPrefix encodes the prefix (token, record, *) used to seek and
// verify a candidate record's postings for a given token.
func (l Layout[T, R]) TokenRecordPrefix(token T, record R) []byte {
	out := make([]byte, 0, l.Token.Width()+l.Record.Width())
	out = append(out, l.Token.Encode(token)...)
	out = append(out, l.Record.Encode(record)...)
	return out
}

// DecodePositional parses a full positional key back into its components.
func (l Layout[T, R]) DecodePositional(key []byte) (token T, record R, prev T) {
	tw, rw := l.Token.Width(), l.Record.Width()
	token = l.Token.Decode(key[:tw])
	record = l.Record.Decode(key[tw : tw+rw])
	prev = l.Token.Decode(key[tw+rw : tw+rw+tw])
	return
}

// Reverse encodes the secondary index key (record, token).
func (l Layout[T, R]) Reverse(record R, token T) []byte {
	out := make([]byte, 0, l.Record.Width()+l.Token.Width())
	out = append(out, l.Record.Encode(record)...)
	out = append(out, l.Token.Encode(token)...)
	return out
}

// RecordPrefix encodes the prefix (record, *) used to enumerate every
// distinct token a record has, for secondary-index-assisted deletion.
func (l Layout[T, R]) RecordPrefix(record R) []byte {
	return l.Record.Encode(record)
}

// DecodeReverse parses a full reverse key back into its components.
func (l Layout[T, R]) DecodeReverse(key []byte) (record R, token T) {
	rw := l.Record.Width()
	record = l.Record.Decode(key[:rw])
	token = l.Token.Decode(key[rw:])
	return
}

// PositionalWidth returns the fixed byte length of a positional key.
func (l Layout[T, R]) PositionalWidth() int {
	return l.Token.Width()*2 + l.Record.Width()
}

// ReverseWidth returns the fixed byte length of a reverse key.
func (l Layout[T, R]) ReverseWidth() int {
	return l.Record.Width() + l.Token.Width()
}
