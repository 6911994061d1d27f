// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxIdentityLen = 64

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

// Identity is the caller-supplied name a participant logs in with.
// Unique among live connections, not over time.
type Identity string

// Role is an opaque participant-role tag (e.g. "doctor", "patient").
type Role string

func ValidateIdentity(id Identity) error {
	if len(id) == 0 {
		return ErrIdentityEmpty
	}
	if len(id) > MaxIdentityLen {
		return ErrIdentityTooLong
	}
	return nil
}
