package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/prwatch/internal/review"
)

func verdictLabel(c review.Classification) string {
	if c == review.ClassificationGood {
		return "Good Push \u2705"
	}
	return "Bad Push \u26a0\ufe0f"
}

func severityIcon(s review.Severity) string {
	switch s {
	case review.SeverityHigh:
		return "\U0001f534"
	case review.SeverityMedium:
		return "\U0001f7e1"
	default:
		return "\U0001f7e2"
	}
}

// VerdictMessage renders one verdict as a Telegram Markdown message.
func VerdictMessage(repo string, number int, title, url string, v review.Verdict) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*PR Analysis: %s*\n", repo)
	fmt.Fprintf(&b, "[#%d: %s](%s)\n\n", number, title, url)
	fmt.Fprintf(&b, "*Verdict:* %s\n\n", verdictLabel(v.Classification))
	fmt.Fprintf(&b, "*Summary:* %s\n", v.Summary)

	if len(v.Findings) == 0 {
		b.WriteString("\nNo issues found.\n")
		return b.String()
	}

	// Most severe first
	findings := make([]review.Finding, len(v.Findings))
	copy(findings, v.Findings)
	sort.SliceStable(findings, func(i, j int) bool {
		return review.SeverityRank(findings[i].Severity) > review.SeverityRank(findings[j].Severity)
	})

	b.WriteString("\n*Critique:*\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "%s %s\n", severityIcon(f.Severity), f.Description)
	}
	return b.String()
}

// AnalyzingNotice renders the short heads-up sent before a review starts.
func AnalyzingNotice(repo string, number int) string {
	return fmt.Sprintf("\U0001f50e Analyzing new changes in *%s* PR #%d...", repo, number)
}

// IssueContext renders an issue as review or chat context text.
func IssueContext(repo string, number int, title, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue %s#%d: %s\n", repo, number, title)
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	return b.String()
}

// IssueList renders up to a screenful of open issues for chat context.
func IssueList(repo string, issues []IssueSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Open issues in %s:\n", repo)
	for _, is := range issues {
		assignee := is.Assignee
		if assignee == "" {
			assignee = "none"
		}
		fmt.Fprintf(&b, "- #%d: %s (assigned: %s)\n", is.Number, is.Title, assignee)
	}
	return b.String()
}

// IssueSummary is the slice of an issue needed for list rendering.
type IssueSummary struct {
	Number   int
	Title    string
	Assignee string
}
