// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"

	"github.com/google/uuid"
)

// MemberID is connection-scoped: every new signaling connection gets a fresh one.
type MemberID string

// Fingerprint is an opaque durable client token. It is supplied by the client
// and never verified.
type Fingerprint string

// NewMemberID avoids raw uuid calls in adapters and keeps construction obvious.
func NewMemberID() MemberID {
	return MemberID(uuid.NewString())
}

// Short returns the first six characters of the id, used for default display names.
func (id MemberID) Short() string {
	s := string(id)
	if len(s) > 6 {
		return s[:6]
	}
	return s
}

const tokenPrefix = "ct:"

// TokenFingerprint derives the fallback fingerprint from a session cookie
// token. It lives in its own namespace so it only ever matches a room that
// was created with the same fallback.
func TokenFingerprint(token string) Fingerprint {
	if token == "" {
		return ""
	}
	return Fingerprint(tokenPrefix + token)
}

// Explicit reports whether fp may be accepted as a client supplied
// fingerprint. Values in the fallback namespace are not.
func (fp Fingerprint) Explicit() bool {
	return fp != "" && !strings.HasPrefix(string(fp), tokenPrefix)
}
