// Package account holds the LinkHub account document: a profile plus an
// ordered list of outbound links, stored as one document per identity uid.
package account

import "time"

// Collection is the document-store collection holding account documents.
const Collection = "users"

// UsernameField is the dotted document path of the stored profile slug.
const UsernameField = "profile.username"

// Profile is the public-facing part of an account.
// Username is always kept in slug form once persisted.
type Profile struct {
	Username  string `json:"username"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatarUrl"`
}

// Link is a single outbound link. Position in the slice is its order.
type Link struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Document is the unit of persistence for one account.
type Document struct {
	Profile Profile `json:"profile"`
	Links   []Link  `json:"links"`
}

// Session is the read-only projection of an identity-provider session.
type Session struct {
	UID            string    `json:"uid"`
	DisplayName    string    `json:"displayName"`
	PhotoURL       string    `json:"photoUrl"`
	CreationTime   time.Time `json:"creationTime"`
	LastSignInTime time.Time `json:"lastSignInTime"`
}

// IsNew reports whether the session looks like a first sign-in: the account
// was created within window of the latest sign-in.
func (s *Session) IsNew(window time.Duration) bool {
	if s == nil {
		return false
	}
	gap := s.LastSignInTime.Sub(s.CreationTime)
	if gap < 0 {
		gap = -gap
	}
	return gap <= window
}

// ToMap converts the document to the generic map form used by the store.
func (d Document) ToMap() map[string]any {
	links := make([]any, 0, len(d.Links))
	for _, l := range d.Links {
		links = append(links, map[string]any{
			"id":    l.ID,
			"title": l.Title,
			"url":   l.URL,
		})
	}
	return map[string]any{
		"profile": map[string]any{
			"username":  d.Profile.Username,
			"bio":       d.Profile.Bio,
			"avatarUrl": d.Profile.AvatarURL,
		},
		"links": links,
	}
}

// FromMap decodes a generic store document. Missing or mistyped fields are
// left at their zero values.
func FromMap(m map[string]any) Document {
	var d Document
	if p, ok := m["profile"].(map[string]any); ok {
		d.Profile.Username, _ = p["username"].(string)
		d.Profile.Bio, _ = p["bio"].(string)
		d.Profile.AvatarURL, _ = p["avatarUrl"].(string)
	}
	switch raw := m["links"].(type) {
	case []any:
		for _, item := range raw {
			lm, ok := item.(map[string]any)
			if !ok {
				continue
			}
			var l Link
			l.ID, _ = lm["id"].(string)
			l.Title, _ = lm["title"].(string)
			l.URL, _ = lm["url"].(string)
			d.Links = append(d.Links, l)
		}
	case []map[string]any:
		for _, lm := range raw {
			var l Link
			l.ID, _ = lm["id"].(string)
			l.Title, _ = lm["title"].(string)
			l.URL, _ = lm["url"].(string)
			d.Links = append(d.Links, l)
		}
	}
	if d.Links == nil {
		d.Links = []Link{}
	}
	return d
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := Document{Profile: d.Profile, Links: make([]Link, len(d.Links))}
	copy(out.Links, d.Links)
	return out
}
