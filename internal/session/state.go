package session

import (
	"errors"
	"time"

	"github.com/jmerrifield20/LinkHub/internal/account"
)

var (
	// ErrBusy is returned when a different explicit transition is in flight.
	ErrBusy = errors.New("another session operation is in progress")
	// ErrNoSession is returned when an operation needs a signed-in user.
	ErrNoSession = errors.New("not signed in")
	// ErrUnavailable is returned when the identity provider is not configured.
	ErrUnavailable = errors.New("identity provider unavailable")
	// ErrClosed is returned after the reconciler has been closed.
	ErrClosed = errors.New("session closed")
)

// State is the session state machine.
type State int

const (
	StateUnknown State = iota
	StateSignedOut
	StateSignedIn
	StateSigningIn
	StateSigningOut
	StateDeleting
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateSignedOut:
		return "signed-out"
	case StateSignedIn:
		return "signed-in"
	case StateSigningIn:
		return "signing-in"
	case StateSigningOut:
		return "signing-out"
	case StateDeleting:
		return "deleting"
	default:
		return "invalid"
	}
}

// stable reports whether no explicit transition is in flight.
func (s State) stable() bool {
	return s == StateUnknown || s == StateSignedIn || s == StateSignedOut
}

// Snapshot is an immutable copy of the reconciler state for rendering.
type Snapshot struct {
	State       State            `json:"-"`
	StateName   string           `json:"state"`
	User        *account.Session `json:"user"`
	Profile     account.Profile  `json:"profile"`
	Links       []account.Link   `json:"links"`
	StoreError  string           `json:"storeError,omitempty"`
	IsSaving    bool             `json:"isSaving"`
	IsLoading   bool             `json:"isLoading"`
	AuthLoading bool             `json:"authLoading"`
	IsDeleting  bool             `json:"isDeleting"`
	ShareURL    string           `json:"shareUrl"`
	Notices     []Notice         `json:"notices,omitempty"`
	Deletion    *DeletionReport  `json:"deletion,omitempty"`
}

// SignedIn reports whether a user is present and no transition is running.
func (s Snapshot) SignedIn() bool {
	return s.State == StateSignedIn && s.User != nil
}

// Variant is a notice style.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notice is a user-facing message, shown once.
type Notice struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Variant     Variant   `json:"variant"`
	At          time.Time `json:"at"`
}
