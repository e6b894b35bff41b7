package errs

import (
	"github.com/cockroachdb/errors"
)

// Kind classifies why a request was aborted.
type Kind uint8

const (
	// KindUnknown is any error not produced by this taxonomy (I/O, encoding, panics).
	KindUnknown Kind = iota

	// KindAuthority means the caller or a derived authority does not match the required signer.
	KindAuthority

	// KindInvariant means a custody or supply invariant would be broken.
	KindInvariant

	// KindNotFound means a referenced account or record does not exist.
	KindNotFound

	// KindMalformed means inputs are invalid or resolve to an incompatible account shape.
	KindMalformed
)

// Reference errors used as marks. Compare with Is or KindOf, not with ==.
var (
	ErrAuthority = errors.New("authority error")
	ErrInvariant = errors.New("invariant violation")
	ErrNotFound  = errors.New("not found")
	ErrMalformed = errors.New("malformed input")
)

// String returns the stable name reported in receipts and API responses.
func (k Kind) String() string {
	switch k {
	case KindAuthority:
		return "AuthorityError"
	case KindInvariant:
		return "InvariantViolation"
	case KindNotFound:
		return "NotFound"
	case KindMalformed:
		return "MalformedInput"
	default:
		return "Unknown"
	}
}

// Authority creates an error marked as KindAuthority.
func Authority(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrAuthority)
}

// Invariant creates an error marked as KindInvariant.
func Invariant(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvariant)
}

// NotFound creates an error marked as KindNotFound.
func NotFound(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// Malformed creates an error marked as KindMalformed.
func Malformed(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformed)
}

// KindOf returns the kind of err, looking through any wrapping.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrAuthority):
		return KindAuthority
	case errors.Is(err, ErrInvariant):
		return KindInvariant
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	default:
		return KindUnknown
	}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
