// Package output renders verdicts and GitHub context as Telegram-flavored
// Markdown messages. Rendering is pure string building; delivery and the
// plain-text fallback on Markdown rejection belong to the bot transport.
package output
