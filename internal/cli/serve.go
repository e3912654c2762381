package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/prwatch/internal/bot"
	"github.com/dshills/prwatch/internal/cache"
	"github.com/dshills/prwatch/internal/config"
	"github.com/dshills/prwatch/internal/github"
	"github.com/dshills/prwatch/internal/ledger"
	"github.com/dshills/prwatch/internal/providers"
	"github.com/dshills/prwatch/internal/review"
	"github.com/dshills/prwatch/internal/scan"
	"github.com/dshills/prwatch/internal/sched"
	"github.com/dshills/prwatch/internal/search"
	"github.com/dshills/prwatch/internal/session"
	"github.com/dshills/prwatch/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the watcher service",
	Long: "Starts the scheduler and the Telegram listener, scanning for new " +
		"pull request revisions at the configured times and answering chat " +
		"commands until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
		}
		return nil
	},
}

// app holds the wired service components shared by serve and check.
type app struct {
	cfg    config.Config
	st     *store.Store
	runner *scan.Runner
	logger *log.Logger

	telegram *bot.Client
	sessions *session.Manager
	gh       *github.Client
	engine   *review.Engine
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.New(os.Stderr, "prwatch ", log.LstdFlags)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	gh, err := github.NewClient(cfg.GitHubToken)
	if err != nil {
		st.Close()
		return nil, err
	}

	gen, err := providers.New(cfg.Provider, cfg.Model)
	if err != nil {
		st.Close()
		return nil, err
	}

	respCache, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("initializing response cache: %w", err)
	}

	engine := review.NewEngine(gen, cfg.Model, respCache)

	telegram, err := bot.NewClient(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		st.Close()
		return nil, err
	}

	runner := scan.NewRunner(scan.Config{
		TargetRepos:    cfg.TargetRepos,
		IncludePrivate: cfg.IncludePrivate,
		MaxDiffBytes:   cfg.MaxDiffBytes,
		RedactSecrets:  cfg.RedactSecrets,
	}, gh, ledger.New(st), engine, telegram, logger)

	return &app{
		cfg:      cfg,
		st:       st,
		runner:   runner,
		logger:   logger,
		telegram: telegram,
		sessions: session.New(st),
		gh:       gh,
		engine:   engine,
	}, nil
}

func (a *app) close() {
	if err := a.st.Close(); err != nil {
		a.logger.Printf("closing state database: %v", err)
	}
}

// scanControl bridges the scheduler and the last cycle report to the chat
// router.
type scanControl struct {
	sched *sched.Scheduler

	mu   sync.Mutex
	last *scan.Report
}

func (s *scanControl) Trigger() bool { return s.sched.Trigger() }
func (s *scanControl) Running() bool { return s.sched.Running() }

func (s *scanControl) LastReport() (scan.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return scan.Report{}, false
	}
	return *s.last, true
}

func (s *scanControl) record(rep scan.Report) {
	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()
}

func runServe() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	times, err := sched.ParseTimes(strings.Join(a.cfg.Schedule, ","))
	if err != nil {
		return fmt.Errorf("parsing schedule: %w", err)
	}

	ctl := &scanControl{}
	scheduler := sched.New(times, func(ctx context.Context) {
		rep, err := a.runner.Run(ctx)
		if err != nil {
			a.logger.Printf("scan cycle: %v", err)
		}
		ctl.record(rep)
		if rep.Reviewed == 0 && len(rep.Failures) == 0 {
			if err := a.telegram.Deliver(ctx, "No new PR updates found."); err != nil {
				a.logger.Printf("no-updates notice not delivered: %v", err)
			}
		}
	}, a.logger)
	ctl.sched = scheduler

	router := bot.NewRouter(a.telegram, a.engine, a.sessions, a.gh, search.NewClient(), ctl, a.cfg.TargetRepos, a.cfg.Schedule, a.logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Printf("service starting, schedule %v", a.cfg.Schedule)
	router.Announce(ctx)

	var g errgroup.Group
	g.Go(func() error {
		scheduler.Start(ctx)
		return nil
	})
	g.Go(func() error {
		if err := router.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	err = g.Wait()
	a.logger.Printf("service stopped")
	return err
}
