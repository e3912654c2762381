// Package cli wires configuration, storage, the GitHub and Telegram
// clients, the analysis engine, and the scheduler into the prwatch
// commands: serve (long-running service), check (one-shot scan), and
// version.
package cli
