// Package config loads and merges prwatch configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. Environment variables (GITHUB_TOKEN, TELEGRAM_TOKEN, TELEGRAM_CHAT_ID,
//     INCLUDE_PRIVATE, TARGET_REPOS, PRWATCH_PROVIDER, PRWATCH_MODEL,
//     PRWATCH_SCHEDULE, PRWATCH_DB)
//  2. Config file ($XDG_CONFIG_HOME/prwatch/config.json)
//  3. Built-in defaults
//
// Credentials come from the environment only; the config file holds
// non-secret settings such as the schedule, target repository list, and
// cache options.
package config
