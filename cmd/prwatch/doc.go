// Prwatch watches GitHub repositories for new pull request revisions,
// reviews each diff with an LLM, and delivers structured verdicts to a
// Telegram chat.
//
// The chat doubles as a control and Q&A surface: scans can be triggered on
// demand, conversations can be saved and restored by name, and free-form
// questions are answered with repository and web context.
//
// Usage:
//
//	prwatch serve          # run the scheduler and chat listener
//	prwatch check          # scan once, print a summary, exit
//	prwatch version        # print the version
//
// Credentials come from GITHUB_TOKEN, TELEGRAM_TOKEN, TELEGRAM_CHAT_ID,
// and the provider API key (GEMINI_API_KEY or GOOGLE_API_KEY).
package main
