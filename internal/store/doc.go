// Package store is the durable state layer for prwatch, backed by SQLite
// (modernc.org/sqlite, pure Go).
//
// It owns the bytes of two kinds of state that must survive restarts: review
// records (which pull request head was last reviewed, keyed by repo and PR
// number) and named conversation sessions. Everything else in the service is
// transient.
package store
