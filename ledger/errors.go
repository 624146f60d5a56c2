package ledger

import "fmt"

// ObjectNotFoundError is returned when an object id resolves to nothing. It
// can be used in comparison as it complies with the xerrors.Is requirement.
type ObjectNotFoundError struct {
	id ObjectID
}

// NewObjectNotFoundError returns a new instance of the error.
func NewObjectNotFoundError(id ObjectID) ObjectNotFoundError {
	return ObjectNotFoundError{id: id}
}

func (err ObjectNotFoundError) Error() string {
	return fmt.Sprintf("object %v not found", err.id)
}

// Is returns true when both errors are equal, otherwise it returns false.
func (err ObjectNotFoundError) Is(other error) bool {
	otherErr, ok := other.(ObjectNotFoundError)
	return ok && otherErr.id == err.id
}

// FieldAbsentError is returned when a keyed lookup resolves to no entry.
// Absence is a defined state for approval lookups, so callers are expected
// to test for this error.
type FieldAbsentError struct {
	parent ObjectID
	key    string
}

// NewFieldAbsentError returns a new instance of the error.
func NewFieldAbsentError(parent ObjectID, key []byte) FieldAbsentError {
	return FieldAbsentError{parent: parent, key: fmt.Sprintf("%x", key)}
}

func (err FieldAbsentError) Error() string {
	return fmt.Sprintf("no entry '%s' under %v", err.key, err.parent)
}

// Is returns true when both errors are equal, otherwise it returns false.
func (err FieldAbsentError) Is(other error) bool {
	otherErr, ok := other.(FieldAbsentError)
	return ok && otherErr == err
}

// InvalidIdentityError is returned when a provided identity is not a
// well-formed address.
type InvalidIdentityError struct {
	text string
}

// NewInvalidIdentityError returns a new instance of the error.
func NewInvalidIdentityError(text string) InvalidIdentityError {
	return InvalidIdentityError{text: text}
}

func (err InvalidIdentityError) Error() string {
	return fmt.Sprintf("invalid identity '%s'", err.text)
}

// Is returns true when both errors are equal, otherwise it returns false.
func (err InvalidIdentityError) Is(other error) bool {
	otherErr, ok := other.(InvalidIdentityError)
	return ok && otherErr == err
}
