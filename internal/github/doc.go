// Package github provides a minimal GitHub REST API client for the scan
// pipeline: enumerating owned repositories, listing open pull requests,
// fetching PR diffs, and reading linked issues for review context.
//
// Failures are classified into [ErrNotFound] for missing resources and
// [ErrUnavailable] for transport errors and server-side failures, so callers
// can decide between reporting and retrying next cycle.
package github
