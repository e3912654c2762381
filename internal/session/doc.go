// Package session manages named, persisted conversation histories, distinct
// from the live in-memory conversation held by the chat router. Saves are
// last-write-wins; operations on the same name are serialized.
package session
