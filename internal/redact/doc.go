// Package redact removes secrets from diff content before it is sent to any
// LLM provider.
//
// Detection uses regex heuristics covering common secret shapes: API keys,
// JWTs, private keys, AWS access key IDs and secret access keys, bearer
// tokens, and provider-specific tokens (GitHub, Telegram, Google, Slack).
// A pull request diff that adds a credential should never reach a
// third-party API verbatim.
package redact
