// Package scraper provides HTTP fetching and HTML parsing for the Studentenwerk
// München private accommodation offers page.
//
// A Fetcher returns the raw page markup, either with a plain HTTP GET (retried
// with exponential backoff) or by rendering the page in headless Chrome.
// ParseOffers walks the first table body of the page and turns every row into an
// offer.Offer. By default any structural mismatch aborts the parse; lenient mode
// skips malformed rows and reports them instead.
package scraper
