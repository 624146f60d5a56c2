package allowlist

import (
	"fmt"

	"go.signet.dev/signet/ledger"
)

// UnauthorizedError is returned when a mutation is attempted without
// possession of the capability of the list, or by an identity that the
// command does not accept.
type UnauthorizedError struct {
	reason string
}

// NewUnauthorizedError returns a new instance of the error.
func NewUnauthorizedError(reason string) UnauthorizedError {
	return UnauthorizedError{reason: reason}
}

func (err UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %s", err.reason)
}

// Is returns true when the other error has the same type.
func (err UnauthorizedError) Is(other error) bool {
	_, ok := other.(UnauthorizedError)
	return ok
}

// AlreadyMemberError is returned when an identity is added to a list it
// already belongs to. The rejection is explicit so that approval lookups
// never face duplicate entries.
type AlreadyMemberError struct {
	member ledger.Address
}

// NewAlreadyMemberError returns a new instance of the error.
func NewAlreadyMemberError(member ledger.Address) AlreadyMemberError {
	return AlreadyMemberError{member: member}
}

func (err AlreadyMemberError) Error() string {
	return fmt.Sprintf("identity %v is already a member", err.member)
}

// Is returns true when the other error has the same type.
func (err AlreadyMemberError) Is(other error) bool {
	_, ok := other.(AlreadyMemberError)
	return ok
}

// HasApprovedError is returned when a member that has recorded its approval
// is removed from the list. Removal is forbidden to keep the approval record
// auditable.
type HasApprovedError struct {
	member ledger.Address
}

// NewHasApprovedError returns a new instance of the error.
func NewHasApprovedError(member ledger.Address) HasApprovedError {
	return HasApprovedError{member: member}
}

func (err HasApprovedError) Error() string {
	return fmt.Sprintf("identity %v has approved the list", err.member)
}

// Is returns true when the other error has the same type.
func (err HasApprovedError) Is(other error) bool {
	_, ok := other.(HasApprovedError)
	return ok
}

// PolicyRefusedError is returned by the APPROVE predicate when the
// requesting identity has no right to the document under the list policy.
type PolicyRefusedError struct {
	reason string
}

// NewPolicyRefusedError returns a new instance of the error.
func NewPolicyRefusedError(reason string) PolicyRefusedError {
	return PolicyRefusedError{reason: reason}
}

func (err PolicyRefusedError) Error() string {
	return fmt.Sprintf("policy refused: %s", err.reason)
}

// Is returns true when the other error has the same type.
func (err PolicyRefusedError) Is(other error) bool {
	_, ok := other.(PolicyRefusedError)
	return ok
}
