// Package client is the LinkHub Go SDK for reading public link pages and
// asking a LinkHub server for link title suggestions.
//
// # Fetching a page
//
//	c, err := client.New("https://linkhub.example",
//	    client.WithCacheTTL(60*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	page, err := c.GetPage(ctx, "ada-lovelace")
//	if errors.Is(err, client.ErrNotFound) {
//	    // no account has that username
//	}
//
// Slugs are normalised with Slugify before the request, so display names
// like "Ada Lovelace" resolve to the same page as "ada-lovelace".
//
// # Share URLs
//
// PageURL returns the browser URL of a page:
//
//	c.PageURL("Ada Lovelace") // https://linkhub.example/u/ada-lovelace
package client
