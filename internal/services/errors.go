// internal/services/errors.go
package services

import (
	"errors"
	"fmt"
)

// Sentinel errors for the catalog/payment surface. Handlers map these to
// HTTP statuses; the webhook path additionally distinguishes "processed"
// from "retry me" via PersistenceError / ErrCustomerUnmatched.
var (
	ErrProductNotFound     = errors.New("product not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrSellerNotOnboarded  = errors.New("seller has not set up their payment account")
	ErrEntitlementRequired = errors.New("product has not been purchased")
	ErrCustomerUnmatched   = errors.New("paying customer does not match any user")
	ErrFreeProduct         = errors.New("free products do not go through checkout")
	ErrGroupFull           = errors.New("group has reached its member limit")
	ErrNotGroupMember      = errors.New("user is not a member of this group")
)

// UpstreamError wraps a payment-processor or network failure. Safe to
// retry with backoff.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed database write. On the webhook path this
// must produce a non-200 response so the processor redelivers.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SignatureInvalidError means the webhook body failed signature
// verification. Reject, do not retry, log as potential tampering.
type SignatureInvalidError struct {
	Err error
}

func (e *SignatureInvalidError) Error() string {
	return fmt.Sprintf("webhook signature verification failed: %v", e.Err)
}

func (e *SignatureInvalidError) Unwrap() error { return e.Err }

func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func IsSignatureInvalid(err error) bool {
	var se *SignatureInvalidError
	return errors.As(err, &se)
}
