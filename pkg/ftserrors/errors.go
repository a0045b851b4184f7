// Package ftserrors defines the error taxonomy shared by the index, search,
// and query packages. It builds on cockroachdb/errors so callers get stack
// traces and %+v formatting for free, the same way the store layer already
// depends on that package transitively through pebble.
package ftserrors

import (
	"github.com/cockroachdb/errors"
)

// Sentinel errors. Use errors.Is against these; wrapped instances still
// carry the original stack trace of the call site that produced them.
var (
	// ErrIndexDropped is returned by any operation attempted after Drop.
	ErrIndexDropped = errors.New("ftserrors: index dropped")

	// ErrReadOnly is returned by a mutation attempted while the index is
	// read-only.
	ErrReadOnly = errors.New("ftserrors: index is read-only")

	// ErrUnexpectedToken is returned by the lexer/parser when a query
	// string violates the grammar at a non-tolerated site.
	ErrUnexpectedToken = errors.New("ftserrors: unexpected token in query")

	// ErrInvalidConfiguration is returned by constructors given an invalid
	// configuration value (e.g. a negative minimum token length).
	ErrInvalidConfiguration = errors.New("ftserrors: invalid configuration")
)

// IndexDropped wraps ErrIndexDropped with the operation name that was
// attempted, preserving errors.Is(err, ErrIndexDropped).
func IndexDropped(op string) error {
	return errors.Wrapf(ErrIndexDropped, "operation %q", op)
}

// ReadOnly wraps ErrReadOnly with the operation name that was attempted.
func ReadOnly(op string) error {
	return errors.Wrapf(ErrReadOnly, "operation %q", op)
}

// UnexpectedToken wraps ErrUnexpectedToken with a human-readable message
// describing what was found and where.
func UnexpectedToken(msg string) error {
	return errors.Wrapf(ErrUnexpectedToken, "%s", msg)
}

// InvalidConfiguration wraps ErrInvalidConfiguration with a human-readable
// message describing the offending field.
func InvalidConfiguration(msg string) error {
	return errors.Wrapf(ErrInvalidConfiguration, "%s", msg)
}

// IsIndexDropped reports whether err (or any error it wraps) is ErrIndexDropped.
func IsIndexDropped(err error) bool { return errors.Is(err, ErrIndexDropped) }

// IsReadOnly reports whether err (or any error it wraps) is ErrReadOnly.
func IsReadOnly(err error) bool { return errors.Is(err, ErrReadOnly) }

// IsUnexpectedToken reports whether err (or any error it wraps) is ErrUnexpectedToken.
func IsUnexpectedToken(err error) bool { return errors.Is(err, ErrUnexpectedToken) }

// IsInvalidConfiguration reports whether err (or any error it wraps) is ErrInvalidConfiguration.
func IsInvalidConfiguration(err error) bool { return errors.Is(err, ErrInvalidConfiguration) }
