// Package ledger implements the review dedup policy: each (repo, PR number,
// head SHA) triple is reviewed and announced at most once, enforced with a
// per-PR mutex held across the read-check-write span and a durable record
// written only after a successful review.
package ledger
