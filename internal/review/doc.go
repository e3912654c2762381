// Package review contains the core types and engine for LLM-based pull
// request review.
//
// It defines the Verdict, Finding, and Severity types, assembles prompts
// from diffs and linked-issue context, and parses the provider's JSON
// response. A malformed response is repaired at most once by echoing it back
// to the provider; a second failure surfaces as ErrAnalysisUnavailable so
// the proposal is retried on a later scan rather than silently dropped.
package review
