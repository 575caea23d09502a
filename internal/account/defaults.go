package account

// Default profile values shown before a user has saved anything.
const (
	DefaultUsername  = "yourname"
	DefaultBio       = "Your awesome bio goes here!"
	DefaultAvatarURL = "https://placehold.co/150x150.png"
)

// DefaultProfile returns the initial editor profile.
func DefaultProfile() Profile {
	return Profile{
		Username:  DefaultUsername,
		Bio:       DefaultBio,
		AvatarURL: DefaultAvatarURL,
	}
}

// PlaceholderLinks returns the two links every new account starts with.
func PlaceholderLinks() []Link {
	return []Link{
		{ID: "1", Title: "My Portfolio", URL: "https://example.com/portfolio"},
		{ID: "2", Title: "Follow me on X", URL: "https://x.com/yourprofile"},
	}
}

// ProviderDefaults derives a starting document from the signed-in session:
// the display name becomes the slug and the provider photo the avatar.
func ProviderDefaults(s *Session) Document {
	p := DefaultProfile()
	if s != nil {
		if s.DisplayName != "" {
			p.Username = Slugify(s.DisplayName)
		}
		if s.PhotoURL != "" {
			p.AvatarURL = s.PhotoURL
		}
	}
	return Document{Profile: p, Links: PlaceholderLinks()}
}

// InitialDocument is what gets written for a brand-new account.
func InitialDocument(s *Session) Document {
	d := ProviderDefaults(s)
	d.Profile.Username = Slugify(d.Profile.Username)
	return d
}
