// Package zvterr defines the closed error taxonomy shared by the length,
// encoding and packet layers. It has no dependencies on them so that all
// three can import it without creating a cycle.
package zvterr

import (
	"fmt"
	"sort"
)

// Kind enumerates the possible codec failures. The set is closed: any new
// failure mode must map onto one of these.
type Kind int

const (
	// IncompleteData means the input ended before a required field could
	// be read.
	IncompleteData Kind = iota
	// WrongTag means a specific tag was expected but another was read.
	WrongTag
	// DuplicateTag means the same tag appeared twice where it is not
	// repeatable.
	DuplicateTag
	// MissingRequiredTags means one or more required tagged fields were
	// never seen before the input ran out.
	MissingRequiredTags
	// NonImplemented means the bytes use a length or encoding form this
	// codec does not implement.
	NonImplemented
	// Aborted means the PT replied with an Abort carrying an error code
	// from chapter 10.
	Aborted
)

func (k Kind) String() string {
	switch k {
	case IncompleteData:
		return "IncompleteData"
	case WrongTag:
		return "WrongTag"
	case DuplicateTag:
		return "DuplicateTag"
	case MissingRequiredTags:
		return "MissingRequiredTags"
	case NonImplemented:
		return "NonImplemented"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Error is the single error type produced by length, encoding and packet
// decoding/encoding. Which fields are populated depends on Kind.
type Error struct {
	Kind Kind
	Tag  uint16   // WrongTag, DuplicateTag
	Tags []uint16 // MissingRequiredTags, sorted ascending
	Code uint8    // Aborted
}

func (e *Error) Error() string {
	switch e.Kind {
	case WrongTag:
		return fmt.Sprintf("zvt: unexpected tag: 0x%x", e.Tag)
	case DuplicateTag:
		return fmt.Sprintf("zvt: duplicate tag: 0x%x", e.Tag)
	case MissingRequiredTags:
		return fmt.Sprintf("zvt: missing required tags: %#v", e.Tags)
	case Aborted:
		return fmt.Sprintf("zvt: received an abort: 0x%x", e.Code)
	case NonImplemented:
		return "zvt: not implemented"
	default:
		return "zvt: incomplete data"
	}
}

// Is reports whether target shares this error's Kind, so callers can use
// errors.Is(err, zvterr.New(zvterr.IncompleteData)) without caring about
// the payload fields.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New builds a bare error of the given kind, for Kinds that carry no
// payload (IncompleteData, NonImplemented).
func New(kind Kind) *Error { return &Error{Kind: kind} }

// NewWrongTag builds a WrongTag error for the given observed tag.
func NewWrongTag(tag uint16) *Error { return &Error{Kind: WrongTag, Tag: tag} }

// NewDuplicateTag builds a DuplicateTag error for the given repeated tag.
func NewDuplicateTag(tag uint16) *Error { return &Error{Kind: DuplicateTag, Tag: tag} }

// NewMissingRequiredTags builds a MissingRequiredTags error. tags is
// sorted ascending in place.
func NewMissingRequiredTags(tags []uint16) *Error {
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return &Error{Kind: MissingRequiredTags, Tags: tags}
}

// NewAborted builds an Aborted error carrying the PT's error code.
func NewAborted(code uint8) *Error { return &Error{Kind: Aborted, Code: code} }
