package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/prwatch/internal/github"
	"github.com/dshills/prwatch/internal/ledger"
	"github.com/dshills/prwatch/internal/output"
	"github.com/dshills/prwatch/internal/redact"
	"github.com/dshills/prwatch/internal/review"
)

// repoConcurrency bounds how many repositories are scanned at once.
const repoConcurrency = 4

// Fetcher is the source-control query capability the pipeline consumes.
type Fetcher interface {
	ListOwnedRepos(ctx context.Context, includePrivate bool) ([]github.Repo, error)
	GetRepo(ctx context.Context, fullName string) (github.Repo, error)
	ListOpenPulls(ctx context.Context, repo string) ([]github.Pull, error)
	GetPullDiff(ctx context.Context, repo string, number int) (string, error)
	GetIssue(ctx context.Context, repo string, number int) (github.Issue, error)
}

// Analyzer is the reasoning capability the pipeline consumes.
type Analyzer interface {
	Analyze(ctx context.Context, in review.Input) (review.Verdict, error)
}

// Notifier delivers outbound messages on the conversational channel.
type Notifier interface {
	Deliver(ctx context.Context, text string) error
}

// Dedup is the review-ledger contract the pipeline consumes.
type Dedup interface {
	Lock(repo string, number int) func()
	ShouldReview(ctx context.Context, repo string, number int, headSHA string) (bool, error)
	RecordReviewed(ctx context.Context, repo string, number int, headSHA string, at time.Time) error
}

// Config holds the per-runner settings resolved from configuration.
type Config struct {
	TargetRepos    []string
	IncludePrivate bool
	MaxDiffBytes   int
	RedactSecrets  bool
}

// Report summarizes one scan cycle.
type Report struct {
	CycleID      string
	Started      time.Time
	Finished     time.Time
	ReposScanned int
	Reviewed     int
	Skipped      int
	Failures     []string
}

// Runner executes scan cycles: enumerate targets, fetch open PRs, dedup,
// analyze, notify, record.
type Runner struct {
	cfg      Config
	fetcher  Fetcher
	dedup    Dedup
	analyzer Analyzer
	notifier Notifier
	log      *log.Logger

	mu   sync.Mutex // guards report mutation and the seen set during a cycle
	seen map[string]bool
	rep  *Report
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, fetcher Fetcher, dedup Dedup, analyzer Analyzer, notifier Notifier, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		cfg:      cfg,
		fetcher:  fetcher,
		dedup:    dedup,
		analyzer: analyzer,
		notifier: notifier,
		log:      logger,
	}
}

// Run executes one full scan cycle. Per-repository and per-PR failures are
// isolated: they are collected into the Report, never aborting sibling work.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	r.mu.Lock()
	r.seen = make(map[string]bool)
	r.rep = &Report{CycleID: uuid.NewString(), Started: time.Now()}
	r.mu.Unlock()

	r.log.Printf("scan %s: starting", r.shortID())

	targets, err := r.resolveTargets(ctx)
	if err != nil {
		rep := r.finish()
		return rep, err
	}

	var g errgroup.Group
	g.SetLimit(repoConcurrency)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			r.scanRepo(ctx, target)
			return nil
		})
	}
	g.Wait()

	rep := r.finish()
	r.log.Printf("scan %s: finished repos=%d reviewed=%d skipped=%d failures=%d",
		rep.CycleID[:8], rep.ReposScanned, rep.Reviewed, rep.Skipped, len(rep.Failures))
	return rep, nil
}

func (r *Runner) shortID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rep.CycleID[:8]
}

func (r *Runner) finish() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rep.Finished = time.Now()
	rep := *r.rep
	r.seen = nil
	return rep
}

// resolveTargets computes the working set for this cycle. Explicit targets
// are validated individually; unknown entries are warned about and skipped.
func (r *Runner) resolveTargets(ctx context.Context) ([]string, error) {
	if len(r.cfg.TargetRepos) > 0 {
		var targets []string
		for _, name := range r.cfg.TargetRepos {
			repo, err := r.fetcher.GetRepo(ctx, name)
			if err != nil {
				r.log.Printf("scan: cannot access %s: %v", name, err)
				r.addFailure(fmt.Sprintf("target %s: %v", name, err))
				continue
			}
			targets = append(targets, repo.FullName)
		}
		return targets, nil
	}

	repos, err := r.fetcher.ListOwnedRepos(ctx, r.cfg.IncludePrivate)
	if err != nil {
		r.addFailure(fmt.Sprintf("listing owned repositories: %v", err))
		return nil, fmt.Errorf("listing owned repositories: %w", err)
	}
	targets := make([]string, 0, len(repos))
	for _, repo := range repos {
		targets = append(targets, repo.FullName)
	}
	return targets, nil
}

func (r *Runner) scanRepo(ctx context.Context, repo string) {
	r.mu.Lock()
	r.rep.ReposScanned++
	r.mu.Unlock()

	pulls, err := r.fetcher.ListOpenPulls(ctx, repo)
	if err != nil {
		r.log.Printf("scan: listing pulls for %s: %v", repo, err)
		r.addFailure(fmt.Sprintf("%s: %v", repo, err))
		return
	}

	for _, pull := range pulls {
		if !r.markSeen(repo, pull.Number) {
			continue
		}
		if err := r.processPull(ctx, repo, pull); err != nil {
			if errors.Is(err, ledger.ErrStorageUnavailable) {
				// Storage trouble taints every dedup decision for this
				// repository; leave the rest of it for the next cycle.
				r.log.Printf("scan: aborting %s: %v", repo, err)
				r.addFailure(fmt.Sprintf("%s: %v", repo, err))
				return
			}
			r.addFailure(fmt.Sprintf("%s#%d: %v", repo, pull.Number, err))
		}
	}
}

// processPull runs the review pipeline for one PR while holding its key
// lock, so the check-analyze-notify-record span is atomic with respect to
// any concurrent scan or command accessing the same record.
func (r *Runner) processPull(ctx context.Context, repo string, pull github.Pull) error {
	unlock := r.dedup.Lock(repo, pull.Number)
	defer unlock()

	needed, err := r.dedup.ShouldReview(ctx, repo, pull.Number, pull.Head.SHA)
	if err != nil {
		return err
	}
	if !needed {
		r.mu.Lock()
		r.rep.Skipped++
		r.mu.Unlock()
		return nil
	}

	if err := r.notifier.Deliver(ctx, output.AnalyzingNotice(repo, pull.Number)); err != nil {
		r.log.Printf("scan: analyzing notice for %s#%d not delivered: %v", repo, pull.Number, err)
	}

	diff, err := r.fetcher.GetPullDiff(ctx, repo, pull.Number)
	if err != nil {
		return fmt.Errorf("fetching diff: %w", err)
	}
	if r.cfg.RedactSecrets {
		diff = redact.Secrets(diff)
	}
	diff = review.TruncateDiff(diff, r.cfg.MaxDiffBytes)

	verdict, err := r.analyzer.Analyze(ctx, review.Input{
		Repo:         repo,
		Number:       pull.Number,
		Title:        pull.Title,
		Diff:         diff,
		IssueContext: r.issueContext(ctx, repo, pull),
	})
	if err != nil {
		return err
	}

	msg := output.VerdictMessage(repo, pull.Number, pull.Title, pull.HTMLURL, verdict)
	if err := r.notifier.Deliver(ctx, msg); err != nil {
		// At-most-once delivery: the review itself succeeded, so the record
		// is still written below and this verdict is not re-announced.
		r.log.Printf("scan: verdict for %s#%d not delivered: %v", repo, pull.Number, err)
	}

	if err := r.dedup.RecordReviewed(ctx, repo, pull.Number, pull.Head.SHA, time.Now()); err != nil {
		return err
	}

	r.mu.Lock()
	r.rep.Reviewed++
	r.mu.Unlock()
	return nil
}

// issueContext fetches the linked issue's text, if the PR references one.
// Absence of a link, and fetch failures, both yield empty context.
func (r *Runner) issueContext(ctx context.Context, repo string, pull github.Pull) string {
	number, ok := github.LinkedIssueNumber(pull.Title, pull.Body)
	if !ok {
		return ""
	}
	issue, err := r.fetcher.GetIssue(ctx, repo, number)
	if err != nil {
		r.log.Printf("scan: linked issue %s#%d unavailable: %v", repo, number, err)
		return ""
	}
	return output.IssueContext(repo, issue.Number, issue.Title, issue.Body)
}

// markSeen records (repo, number) for this cycle, returning false if the
// pair was already visited (duplicate target entries in the working set).
func (r *Runner) markSeen(repo string, number int) bool {
	key := fmt.Sprintf("%s#%d", repo, number)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[key] {
		return false
	}
	r.seen[key] = true
	return true
}

func (r *Runner) addFailure(note string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rep.Failures = append(r.rep.Failures, note)
}
