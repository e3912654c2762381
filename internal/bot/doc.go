// Package bot is the Telegram surface of the service: a thin Bot API
// client for long-polled updates and Markdown delivery, and a router that
// turns inbound messages into commands, session operations, and free-form
// Q&A against the analysis backend.
package bot
