// Package cache provides a file-based cache for LLM analysis responses.
//
// Cache entries are keyed by a SHA-256 hash of the provider name, model, and
// redacted diff content. Each entry stores the raw response string along
// with a creation timestamp and a TTL (in seconds). Expired entries are
// skipped and removed on read.
//
// The default cache directory is $XDG_CACHE_HOME/prwatch (or the
// OS-appropriate equivalent). All payloads stored in the cache have already
// been through secret redaction.
package cache
