package shared

import "errors"

// Error categories. Every domain error wraps exactly one of these so
// transport code can map an error without enumerating each sentinel.
var (
	// ErrAuthorization indicates the wrong caller for a privileged operation.
	ErrAuthorization = errors.New("authorization denied")
	// ErrPolicy indicates a call that is not explicitly allowed.
	ErrPolicy = errors.New("policy violation")
	// ErrState indicates an operation against the wrong lifecycle state.
	ErrState = errors.New("invalid state")
	// ErrIntent indicates a malformed or unredeemable signed intent.
	ErrIntent = errors.New("invalid intent")
	// ErrIntegrity indicates a post-operation invariant did not hold.
	ErrIntegrity = errors.New("integrity violation")
)

type categoryError struct {
	msg  string
	kind error
}

func (e *categoryError) Error() string { return e.msg }
func (e *categoryError) Unwrap() error { return e.kind }

// Authorization builds a sentinel in the authorization category.
func Authorization(msg string) error { return &categoryError{msg: msg, kind: ErrAuthorization} }

// Policy builds a sentinel in the policy-violation category.
func Policy(msg string) error { return &categoryError{msg: msg, kind: ErrPolicy} }

// State builds a sentinel in the state-error category.
func State(msg string) error { return &categoryError{msg: msg, kind: ErrState} }

// Intent builds a sentinel in the intent-error category.
func Intent(msg string) error { return &categoryError{msg: msg, kind: ErrIntent} }

// Integrity builds a sentinel in the integrity category.
func Integrity(msg string) error { return &categoryError{msg: msg, kind: ErrIntegrity} }
