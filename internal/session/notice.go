package session

import (
	"fmt"

	"github.com/jmerrifield20/LinkHub/internal/identity"
)

func info(title, description string) Notice {
	return Notice{Title: title, Description: description, Variant: VariantDefault}
}

func destructive(title, description string) Notice {
	return Notice{Title: title, Description: description, Variant: VariantDestructive}
}

var (
	noticeSignedIn    = info("Signed In", "Successfully signed in with Google.")
	noticeSignedOut   = info("Signed Out", "Successfully signed out.")
	noticeSignOutFail = destructive("Sign Out Failed", "Could not sign out. Please try again.")
	noticeNotSignedIn = destructive("Not Signed In", "Please sign in to save changes.")
	noticeUnavailable = destructive("Sign-In Unavailable", "The sign-in service is not available right now. Please try again later.")
	noticeSaved       = info("Changes Saved!", "Your LinkHub profile and links have been saved.")
	noticeLinkAdded   = info("Link Added!", "Your new link has been successfully added.")
	noticeMissing     = destructive("Missing Fields", "Please provide both a title and a URL.")
	noticeTimedOut    = destructive("Sign-In Timed Out", "The sign-in window did not finish. Please try again.")
	noticeDeleted     = info("Account Deleted", "Your account and all of its data have been permanently deleted.")
)

// signInFailure maps a provider error to its notice.
func signInFailure(err error) Notice {
	switch identity.CodeOf(err) {
	case identity.CodePopupBlocked:
		return destructive("Popup Blocked", "Your browser blocked the sign-in window. Allow popups for this site and try again.")
	case identity.CodePopupClosedByUser, identity.CodeCancelledPopupRequest:
		return destructive("Sign In Cancelled", "The sign-in window was closed before sign-in finished.")
	case identity.CodeInvalidAPIKey:
		return destructive("Configuration Error", "Sign-in is misconfigured (invalid API key). Please contact the site owner.")
	case identity.CodeUnauthorizedDomain:
		return destructive("Domain Not Authorized", "This domain is not authorized for Google sign-in.")
	default:
		return destructive("Sign In Failed", "Could not sign in with Google. Please try again.")
	}
}

func loadFailure(err error) Notice {
	return destructive("Database Error", fmt.Sprintf("Could not load your profile: %v", err))
}

func saveFailure(err error) Notice {
	return destructive("Save Failed", fmt.Sprintf("Could not save your changes: %v", err))
}

func deleteDataFailure(err error) Notice {
	return destructive("Database Error", fmt.Sprintf("Could not delete your account data: %v. Your account has not been deleted.", err))
}

func deleteIdentityFailure(err error) Notice {
	if identity.CodeOf(err) == identity.CodeRequiresRecentLogin {
		return destructive("Sign In Again to Finish",
			"Your data was deleted, but removing your sign-in record requires a recent login. Sign in again and retry to finish deleting your account.")
	}
	return destructive("Account Partially Deleted",
		"Your data was deleted, but your sign-in record remains. Sign in again and retry to finish deleting your account.")
}
