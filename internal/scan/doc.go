// Package scan drives the review cycle: it enumerates target repositories,
// lists their open pull requests, and pushes each new head revision through
// analysis, notification, and the review ledger. Failures stay local to the
// repository or pull request that raised them.
package scan
