package account

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrMissingFields is returned when a link is added without a title or URL.
var ErrMissingFields = errors.New("please provide both a title and a URL")

// ErrLinkNotFound is returned when no link has the requested id.
var ErrLinkNotFound = errors.New("link not found")

// NewLinkID returns a timestamp-derived id that does not collide with any id
// already present in links.
func NewLinkID(now time.Time, links []Link) string {
	ms := now.UnixMilli()
	for {
		id := strconv.FormatInt(ms, 10)
		if indexOf(links, id) < 0 {
			return id
		}
		ms++
	}
}

// AddLink appends a new link and returns the updated slice plus the new link.
func AddLink(links []Link, title, url string, now time.Time) ([]Link, Link, error) {
	title = strings.TrimSpace(title)
	url = strings.TrimSpace(url)
	if title == "" || url == "" {
		return links, Link{}, ErrMissingFields
	}
	l := Link{ID: NewLinkID(now, links), Title: title, URL: url}
	out := make([]Link, len(links), len(links)+1)
	copy(out, links)
	return append(out, l), l, nil
}

// UpdateLink replaces the title and URL of the link with the given id in place.
func UpdateLink(links []Link, id, title, url string) ([]Link, error) {
	i := indexOf(links, id)
	if i < 0 {
		return links, ErrLinkNotFound
	}
	out := make([]Link, len(links))
	copy(out, links)
	out[i].Title = title
	out[i].URL = url
	return out, nil
}

// RemoveLink filters out the link with the given id, preserving the order of
// the remaining links.
func RemoveLink(links []Link, id string) ([]Link, error) {
	if indexOf(links, id) < 0 {
		return links, ErrLinkNotFound
	}
	out := make([]Link, 0, len(links)-1)
	for _, l := range links {
		if l.ID != id {
			out = append(out, l)
		}
	}
	return out, nil
}

func indexOf(links []Link, id string) int {
	for i, l := range links {
		if l.ID == id {
			return i
		}
	}
	return -1
}
