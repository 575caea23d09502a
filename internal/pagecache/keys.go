package pagecache

// KeyPrefixPage is the prefix for cached public pages.
const KeyPrefixPage = "linkhub:page:"

// PageKey returns the Redis key for a slug.
func PageKey(slug string) string {
	return KeyPrefixPage + slug
}
