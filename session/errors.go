package session

import "fmt"

// AlreadySignedError is returned when a signature is attached to a session
// key that already carries one. A session key is signed exactly once.
type AlreadySignedError struct{}

// NewAlreadySignedError returns a new instance of the error.
func NewAlreadySignedError() AlreadySignedError {
	return AlreadySignedError{}
}

func (err AlreadySignedError) Error() string {
	return "session key is already signed"
}

// Is returns true when the other error has the same type.
func (err AlreadySignedError) Is(other error) bool {
	_, ok := other.(AlreadySignedError)
	return ok
}

// MalformedError is returned when a session key does not hold together
// structurally, for instance after importing corrupted data.
type MalformedError struct {
	reason string
}

// NewMalformedError returns a new instance of the error.
func NewMalformedError(reason string) MalformedError {
	return MalformedError{reason: reason}
}

func (err MalformedError) Error() string {
	return fmt.Sprintf("malformed session key: %s", err.reason)
}

// Is returns true when the other error has the same type.
func (err MalformedError) Is(other error) bool {
	_, ok := other.(MalformedError)
	return ok
}

// ExpiredError is returned when a session key is used at or after the end of
// its lifetime.
type ExpiredError struct{}

// NewExpiredError returns a new instance of the error.
func NewExpiredError() ExpiredError {
	return ExpiredError{}
}

func (err ExpiredError) Error() string {
	return "session key is expired"
}

// Is returns true when the other error has the same type.
func (err ExpiredError) Is(other error) bool {
	_, ok := other.(ExpiredError)
	return ok
}

// UnsignedError is returned when a session key without a valid wallet
// signature is used where a signed one is required.
type UnsignedError struct {
	reason string
}

// NewUnsignedError returns a new instance of the error.
func NewUnsignedError(reason string) UnsignedError {
	return UnsignedError{reason: reason}
}

func (err UnsignedError) Error() string {
	return fmt.Sprintf("session key is not signed: %s", err.reason)
}

// Is returns true when the other error has the same type.
func (err UnsignedError) Is(other error) bool {
	_, ok := other.(UnsignedError)
	return ok
}
