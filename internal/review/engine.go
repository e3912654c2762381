package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/prwatch/internal/providers"
)

// ErrAnalysisUnavailable indicates the reasoning capability failed, or
// returned malformed output twice in a row. The proposal stays unreviewed
// and is retried on the next cycle.
var ErrAnalysisUnavailable = errors.New("analysis unavailable")

// ResponseCache stores raw LLM responses keyed by request material, letting
// a repeated analysis of the same diff skip the provider call.
type ResponseCache interface {
	Get(key string) (string, bool)
	Put(key, response string) error
}

// Engine turns (diff, context) into a structured Verdict via an LLM.
type Engine struct {
	gen   providers.Generator
	model string
	cache ResponseCache
}

// NewEngine creates an Engine. cache may be nil to disable caching.
func NewEngine(gen providers.Generator, model string, cache ResponseCache) *Engine {
	return &Engine{gen: gen, model: model, cache: cache}
}

// Analyze reviews one pull request and returns its Verdict.
//
// Malformed provider output triggers exactly one repair request echoing the
// bad response; a second failure surfaces ErrAnalysisUnavailable.
func (e *Engine) Analyze(ctx context.Context, in Input) (Verdict, error) {
	cacheKey := fmt.Sprintf("%s:%s:%s", e.gen.Name(), e.model, in.Diff)
	if e.cache != nil {
		if cached, ok := e.cache.Get(cacheKey); ok {
			if verdict, err := parseVerdict(cached); err == nil {
				return verdict, nil
			}
			// Corrupt cache entry: fall through to a fresh call.
		}
	}

	req := providers.Request{
		System:    SystemPrompt(),
		Prompt:    BuildReviewPrompt(in),
		MaxTokens: 8192,
	}
	resp, err := e.gen.Generate(ctx, req)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}

	verdict, parseErr := parseVerdict(resp.Content)
	if parseErr != nil {
		repairReq := providers.Request{
			System: SystemPrompt(),
			Prompt: fmt.Sprintf(
				"Your previous response was not a valid verdict object. The error was: %s\n\nPlease fix it and respond with ONLY the JSON object described in the system prompt.\n\nYour previous response was:\n%s",
				parseErr.Error(), resp.Content,
			),
			MaxTokens: 8192,
		}
		resp2, err2 := e.gen.Generate(ctx, repairReq)
		if err2 != nil {
			return Verdict{}, fmt.Errorf("%w: repair pass failed: %v (original error: %v)", ErrAnalysisUnavailable, err2, parseErr)
		}
		verdict, parseErr = parseVerdict(resp2.Content)
		if parseErr != nil {
			return Verdict{}, fmt.Errorf("%w: response validation failed after repair: %v", ErrAnalysisUnavailable, parseErr)
		}
		resp = resp2
	}

	if e.cache != nil {
		if err := e.cache.Put(cacheKey, resp.Content); err != nil {
			// Cache write failures never fail the review.
			_ = err
		}
	}
	return verdict, nil
}

// Chat answers a free-form conversation turn. Output is plain text; no
// structure is enforced.
func (e *Engine) Chat(ctx context.Context, history []ChatTurn, contextInfo string) (string, error) {
	req := providers.Request{
		System:    ChatSystemPrompt(),
		Prompt:    BuildChatPrompt(history, contextInfo),
		MaxTokens: 4096,
	}
	resp, err := e.gen.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}
	return resp.Content, nil
}

// rawVerdict is the JSON structure returned by the LLM.
type rawVerdict struct {
	Verdict  string `json:"verdict"`
	Summary  string `json:"summary"`
	Findings []struct {
		Severity    string `json:"severity"`
		Description string `json:"description"`
	} `json:"findings"`
}

func parseVerdict(content string) (Verdict, error) {
	content = strings.TrimSpace(content)

	// Strip markdown code fences if present
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 2 {
			start := 1
			end := len(lines)
			if strings.TrimSpace(lines[end-1]) == "```" {
				end = end - 1
			}
			content = strings.Join(lines[start:end], "\n")
		}
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Verdict{}, fmt.Errorf("invalid JSON object: %w", err)
	}

	c := Classification(raw.Verdict)
	if c != ClassificationGood && c != ClassificationBad {
		return Verdict{}, fmt.Errorf("verdict must be %q or %q, got %q", ClassificationGood, ClassificationBad, raw.Verdict)
	}

	v := Verdict{
		Classification: c,
		Summary:        raw.Summary,
		Findings:       make([]Finding, 0, len(raw.Findings)),
	}
	for _, f := range raw.Findings {
		sev := Severity(f.Severity)
		if SeverityRank(sev) == 0 {
			sev = SeverityMedium
		}
		v.Findings = append(v.Findings, Finding{Severity: sev, Description: f.Description})
	}
	return v, nil
}

// TruncateDiff caps a diff at maxBytes, appending a truncation marker when
// anything was cut. Zero or negative maxBytes means no cap.
func TruncateDiff(diff string, maxBytes int) string {
	if maxBytes <= 0 || len(diff) <= maxBytes {
		return diff
	}
	return diff[:maxBytes] + "\n... (diff truncated)\n"
}
