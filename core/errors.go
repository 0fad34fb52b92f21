package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDelimiterCollision matches any *DelimiterCollisionError.
	ErrDelimiterCollision = errors.New("field contains a reserved delimiter")
	// ErrDecode matches any *DecodeError.
	ErrDecode = errors.New("malformed record")
	// ErrAmbiguousActor is returned when an entity type id would read back as
	// a player id or as the null sentinel.
	ErrAmbiguousActor = errors.New("entity type id is indistinguishable from a player id")
	// ErrAmbiguousStructure is returned when a structure id equals the null
	// sentinel and would read back as absent.
	ErrAmbiguousStructure = errors.New("structure id is indistinguishable from no structure")
)

// DelimiterCollisionError reports a field whose string form contains the
// separator of the record it is being written into.
type DelimiterCollisionError struct {
	Field     string // e.g., "dimension", "block_type_id"
	Value     string
	Delimiter string
}

func (e *DelimiterCollisionError) Error() string {
	return fmt.Sprintf("delimiter collision in %s '%s': contains %q", e.Field, e.Value, e.Delimiter)
}

func (e *DelimiterCollisionError) Is(target error) bool {
	return target == ErrDelimiterCollision
}

// DecodeError is returned when a stored key or value cannot be parsed back.
type DecodeError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode error for %s '%s': %s: %v", e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("decode error for %s '%s': %s", e.Field, e.Value, e.Message)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDelimiterCollision checks if an error is a DelimiterCollisionError.
func IsDelimiterCollision(err error) bool {
	var collision *DelimiterCollisionError
	return errors.As(err, &collision)
}

// IsDecodeError checks if an error is a DecodeError.
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}

// IsCorruption reports whether err means the stored data or the data about to
// be stored cannot be represented faithfully. Such errors are fatal for the
// operation that produced them.
func IsCorruption(err error) bool {
	return IsDelimiterCollision(err) || IsDecodeError(err) || errors.Is(err, ErrAmbiguousActor) || errors.Is(err, ErrAmbiguousStructure)
}
