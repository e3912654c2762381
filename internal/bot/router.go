package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/dshills/prwatch/internal/github"
	"github.com/dshills/prwatch/internal/output"
	"github.com/dshills/prwatch/internal/review"
	"github.com/dshills/prwatch/internal/scan"
	"github.com/dshills/prwatch/internal/search"
	"github.com/dshills/prwatch/internal/session"
	"github.com/dshills/prwatch/internal/store"
)

// maxHistoryTurns caps the in-memory conversation carried into each chat
// prompt.
const maxHistoryTurns = 40

const issueContextLimit = 10

var repoPattern = regexp.MustCompile(`\b([A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+)\b`)

// Sender is the outbound half of the chat transport.
type Sender interface {
	SendMessage(ctx context.Context, text string) (int, error)
	DeleteMessage(ctx context.Context, messageID int) error
	GetUpdates(ctx context.Context, offset int) ([]Update, error)
}

// Chatter answers free-form questions with optional context.
type Chatter interface {
	Chat(ctx context.Context, history []review.ChatTurn, contextInfo string) (string, error)
}

// Sessions persists named conversation histories.
type Sessions interface {
	Save(ctx context.Context, name string, history []store.Message) error
	Load(ctx context.Context, name string) ([]store.Message, error)
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, name string) error
}

// IssueSource provides open-issue listings for chat context.
type IssueSource interface {
	ListOpenIssues(ctx context.Context, repo string, limit int) ([]github.Issue, error)
}

// Searcher answers web queries.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// ScanControl exposes the scan scheduler to chat commands.
type ScanControl interface {
	Trigger() bool
	Running() bool
	LastReport() (scan.Report, bool)
}

type command int

const (
	cmdChat command = iota
	cmdStart
	cmdStatus
	cmdCheck
	cmdClear
	cmdSearch
	cmdSessionSave
	cmdSessionLoad
	cmdSessionList
	cmdSessionRemove
	cmdUnknown
)

// parseCommand classifies one inbound message. Anything that is not a
// recognized slash command is chat.
func parseCommand(text string) (command, string) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return cmdChat, trimmed
	}
	word, rest, _ := strings.Cut(trimmed, " ")
	rest = strings.TrimSpace(rest)

	// Telegram suffixes commands with @botname in group chats.
	word, _, _ = strings.Cut(word, "@")

	switch word {
	case "/start":
		return cmdStart, ""
	case "/status":
		return cmdStatus, ""
	case "/check":
		return cmdCheck, ""
	case "/clear":
		return cmdClear, ""
	case "/search":
		return cmdSearch, rest
	case "/session":
		sub, arg, _ := strings.Cut(rest, " ")
		arg = strings.TrimSpace(arg)
		switch sub {
		case "save":
			return cmdSessionSave, arg
		case "load":
			return cmdSessionLoad, arg
		case "list":
			return cmdSessionList, ""
		case "remove", "rm":
			return cmdSessionRemove, arg
		}
		return cmdUnknown, trimmed
	}
	return cmdUnknown, trimmed
}

// Router reads inbound chat messages and dispatches commands, Q&A, and
// session operations. The conversation history is owned by the Run loop
// goroutine.
type Router struct {
	sender   Sender
	chatter  Chatter
	sessions Sessions
	issues   IssueSource
	searcher Searcher
	scans    ScanControl
	repos    []string
	schedule []string
	log      *log.Logger

	history []store.Message
}

// NewRouter creates a Router. repos is the configured target list, used to
// pick a default repository for issue-context chat; schedule is the HH:MM
// scan times shown in command replies.
func NewRouter(sender Sender, chatter Chatter, sessions Sessions, issues IssueSource, searcher Searcher, scans ScanControl, repos, schedule []string, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{
		sender:   sender,
		chatter:  chatter,
		sessions: sessions,
		issues:   issues,
		searcher: searcher,
		scans:    scans,
		repos:    repos,
		schedule: schedule,
		log:      logger,
	}
}

// Announce posts the startup notice and removes it shortly after, so the
// chat shows the service came online without leaving clutter behind.
func (r *Router) Announce(ctx context.Context) {
	id, err := r.sender.SendMessage(ctx, "Service is online!")
	if err != nil {
		r.log.Printf("bot: startup notice not delivered: %v", err)
		return
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := r.sender.DeleteMessage(dctx, id); err != nil {
				r.log.Printf("bot: deleting startup notice: %v", err)
			}
		}
	}()
}

// Run long-polls for updates and handles them until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	offset := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, err := r.sender.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Printf("bot: polling updates: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			r.Handle(ctx, u.Message.Text)
		}
	}
}

// Handle processes one inbound message and sends the reply.
func (r *Router) Handle(ctx context.Context, text string) {
	cmd, arg := parseCommand(text)

	var reply string
	switch cmd {
	case cmdStart:
		reply = "Hello! I watch your repositories for new pull requests and review them. " +
			"Use /check to scan now, /status for the last cycle, or just ask me anything." +
			r.scheduleLine()
	case cmdStatus:
		reply = r.statusReply()
	case cmdCheck:
		reply = r.checkReply()
	case cmdClear:
		r.history = nil
		reply = "Conversation cleared."
	case cmdSearch:
		reply = r.searchReply(ctx, arg)
	case cmdSessionSave:
		reply = r.sessionSaveReply(ctx, arg)
	case cmdSessionLoad:
		reply = r.sessionLoadReply(ctx, arg)
	case cmdSessionList:
		reply = r.sessionListReply(ctx)
	case cmdSessionRemove:
		reply = r.sessionRemoveReply(ctx, arg)
	case cmdUnknown:
		reply = "Unknown command. Available: /start /status /check /clear /search /session"
	case cmdChat:
		reply = r.chatReply(ctx, arg)
	}

	if reply == "" {
		return
	}
	if _, err := r.sender.SendMessage(ctx, reply); err != nil {
		r.log.Printf("bot: sending reply: %v", err)
	}
}

// scheduleLine renders the configured scan times as a reply suffix.
func (r *Router) scheduleLine() string {
	if len(r.schedule) == 0 {
		return ""
	}
	return "\nScheduled scans: " + strings.Join(r.schedule, ", ")
}

func (r *Router) statusReply() string {
	if r.scans.Running() {
		return "A scan is running right now."
	}
	rep, ok := r.scans.LastReport()
	if !ok {
		return "No scan has completed yet." + r.scheduleLine()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Last scan:* %s\n", rep.Finished.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Repositories scanned: %d\n", rep.ReposScanned)
	fmt.Fprintf(&b, "Reviews delivered: %d\n", rep.Reviewed)
	fmt.Fprintf(&b, "Already reviewed: %d\n", rep.Skipped)
	if len(rep.Failures) > 0 {
		fmt.Fprintf(&b, "Failures: %d\n", len(rep.Failures))
		for _, f := range rep.Failures {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if rep.Reviewed == 0 {
		b.WriteString("No new PR updates.")
	}
	return strings.TrimRight(b.String(), "\n") + r.scheduleLine()
}

func (r *Router) checkReply() string {
	if r.scans.Trigger() {
		return "Checking for new PR updates..."
	}
	return "A scan is already in progress; your request was dropped."
}

func (r *Router) searchReply(ctx context.Context, query string) string {
	if query == "" {
		return "Usage: /search <query>"
	}
	results, err := r.searcher.Search(ctx, query)
	if err != nil {
		r.log.Printf("bot: search %q: %v", query, err)
		return "Search is unavailable right now."
	}
	return search.FormatResults(query, results)
}

func (r *Router) sessionSaveReply(ctx context.Context, name string) string {
	if name == "" {
		return "Usage: /session save <name>"
	}
	if len(r.history) == 0 {
		return "Nothing to save; the conversation is empty."
	}
	if err := r.sessions.Save(ctx, name, r.history); err != nil {
		return fmt.Sprintf("Could not save session: %v", err)
	}
	return fmt.Sprintf("Session %q saved (%d messages).", name, len(r.history))
}

func (r *Router) sessionLoadReply(ctx context.Context, name string) string {
	if name == "" {
		return "Usage: /session load <name>"
	}
	history, err := r.sessions.Load(ctx, name)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return fmt.Sprintf("No session named %q.", name)
		}
		return fmt.Sprintf("Could not load session: %v", err)
	}
	// The live conversation is only replaced once the load has succeeded.
	r.history = history
	return fmt.Sprintf("Session %q loaded (%d messages).", name, len(history))
}

func (r *Router) sessionListReply(ctx context.Context) string {
	names, err := r.sessions.List(ctx)
	if err != nil {
		return fmt.Sprintf("Could not list sessions: %v", err)
	}
	if len(names) == 0 {
		return "No saved sessions."
	}
	var b strings.Builder
	b.WriteString("*Saved sessions:*\n")
	for _, n := range names {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Router) sessionRemoveReply(ctx context.Context, name string) string {
	if name == "" {
		return "Usage: /session remove <name>"
	}
	if err := r.sessions.Remove(ctx, name); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return fmt.Sprintf("No session named %q.", name)
		}
		return fmt.Sprintf("Could not remove session: %v", err)
	}
	return fmt.Sprintf("Session %q removed.", name)
}

func (r *Router) chatReply(ctx context.Context, text string) string {
	if text == "" {
		return ""
	}
	now := time.Now()
	r.history = append(r.history, store.Message{Role: "user", Content: text, CreatedAt: now})
	r.trimHistory()

	answer, err := r.chatter.Chat(ctx, r.chatTurns(), r.issueContext(ctx, text))
	if err != nil {
		r.log.Printf("bot: chat: %v", err)
		// The failed turn stays in history so a retry has the question.
		return "I couldn't reach the analysis backend; try again in a moment."
	}

	r.history = append(r.history, store.Message{Role: "assistant", Content: answer, CreatedAt: time.Now()})
	r.trimHistory()
	return answer
}

func (r *Router) chatTurns() []review.ChatTurn {
	turns := make([]review.ChatTurn, 0, len(r.history))
	for _, m := range r.history {
		turns = append(turns, review.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}

func (r *Router) trimHistory() {
	if len(r.history) > maxHistoryTurns {
		r.history = r.history[len(r.history)-maxHistoryTurns:]
	}
}

// issueContext pulls open issues into the chat prompt when the user is
// asking about issues and a repository can be determined from the message
// or the configured target list.
func (r *Router) issueContext(ctx context.Context, text string) string {
	if !strings.Contains(strings.ToLower(text), "issue") {
		return ""
	}
	repo := r.detectRepo(text)
	if repo == "" {
		return ""
	}
	issues, err := r.issues.ListOpenIssues(ctx, repo, issueContextLimit)
	if err != nil {
		r.log.Printf("bot: listing issues for %s: %v", repo, err)
		return ""
	}
	summaries := make([]output.IssueSummary, 0, len(issues))
	for _, is := range issues {
		s := output.IssueSummary{Number: is.Number, Title: is.Title}
		if is.Assignee != nil {
			s.Assignee = is.Assignee.Login
		}
		summaries = append(summaries, s)
	}
	return output.IssueList(repo, summaries)
}

func (r *Router) detectRepo(text string) string {
	if m := repoPattern.FindString(text); m != "" {
		return m
	}
	if len(r.repos) == 1 {
		return r.repos[0]
	}
	return ""
}
