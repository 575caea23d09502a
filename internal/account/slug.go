package account

import (
	"strings"
	"unicode"
)

// FallbackSlug is used when a username normalizes to nothing.
const FallbackSlug = "myprofile"

// Slugify normalizes a display name into the URL-safe form stored in
// profile.username: lowercase, whitespace runs become a single hyphen,
// anything outside [a-z0-9-] is dropped, hyphen runs collapse and edge
// hyphens are trimmed. An empty result yields FallbackSlug.
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastHyphen := false
	inSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace {
			inSpace = false
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == '-':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return FallbackSlug
	}
	return slug
}

// IsSlug reports whether s is already in canonical slug form.
func IsSlug(s string) bool {
	return s != "" && Slugify(s) == s
}
