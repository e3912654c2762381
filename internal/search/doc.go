// Package search answers ad-hoc web queries through the DuckDuckGo instant
// answer API. No API key is required.
package search
