// Package identity implements the LinkHub identity provider.
//
// It provides:
//   - Service       : Google OAuth 2.0 sign-in, identity records and session handles
//   - Auth          : one browser client's view of the provider, with change notifications
//   - TokenIssuer   : issues and verifies RS256 session handles and OAuth state
//   - Repository    : identity records (Postgres or memory)
//   - Error         : provider failures carrying a closed set of codes
package identity

import (
	"context"
	"time"

	"github.com/jmerrifield20/LinkHub/internal/account"
)

// Provider is the identity provider as seen by one browser client.
type Provider interface {
	// SignIn completes a sign-in with the credential returned by the provider.
	SignIn(ctx context.Context, cred Credential) (*Handle, error)
	// SignOut ends the current session.
	SignOut(ctx context.Context) error
	// DeleteAccount deletes the identity record the handle belongs to.
	DeleteAccount(ctx context.Context, h *Handle) error
	// Current returns the signed-in handle or nil.
	Current() *Handle
	// Subscribe registers fn for session changes. fn is called once with the
	// current session before Subscribe returns.
	Subscribe(fn func(*account.Session)) (unsubscribe func())
	// Available reports whether the provider is configured.
	Available() bool
}

// Credential is what the OAuth callback hands back to the server.
type Credential struct {
	Code  string
	State string
	Error string // OAuth "error" query parameter, e.g. access_denied
}

// Handle is a signed-in session. Token is the signed session handle stored
// in the client cookie.
type Handle struct {
	Session  account.Session
	Token    string
	AuthTime time.Time
}

// Record is a persisted identity.
type Record struct {
	UID          string    `json:"uid"`
	Provider     string    `json:"provider"`
	Subject      string    `json:"subject"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PhotoURL     string    `json:"photo_url"`
	CreatedAt    time.Time `json:"created_at"`
	LastSignInAt time.Time `json:"last_sign_in_at"`
}

// Session projects the record into the read-only session view.
func (r *Record) Session() account.Session {
	return account.Session{
		UID:            r.UID,
		DisplayName:    r.DisplayName,
		PhotoURL:       r.PhotoURL,
		CreationTime:   r.CreatedAt,
		LastSignInTime: r.LastSignInAt,
	}
}

// UserInfo is the provider's view of the user after a code exchange.
type UserInfo struct {
	Subject     string
	Email       string
	DisplayName string
	PhotoURL    string
}
