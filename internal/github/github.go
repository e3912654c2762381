package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.github.com"

const perPage = 100

// ErrNotFound indicates the requested repository, PR, or issue does not
// exist or is not visible to the token.
var ErrNotFound = errors.New("not found")

// ErrUnavailable indicates a transport failure or a server-side error;
// the resource may exist and should be retried next cycle.
var ErrUnavailable = errors.New("github unavailable")

// Repo is a repository visible to the authenticated user.
type Repo struct {
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
}

// Pull is an open pull request.
type Pull struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	Head    struct {
		SHA string `json:"sha"`
	} `json:"head"`
}

// Issue is an issue referenced from a pull request or listed for chat context.
type Issue struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	State    string `json:"state"`
	Assignee *struct {
		Login string `json:"login"`
	} `json:"assignee"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// Client provides access to the GitHub REST API.
type Client struct {
	token   string
	apiURL  string
	httpCli *http.Client
}

// NewClient creates a GitHub client with the given token. The API base URL
// can be overridden with GITHUB_API_URL (for GitHub Enterprise or tests).
func NewClient(token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is empty")
	}
	apiURL := os.Getenv("GITHUB_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		token:   token,
		apiURL:  strings.TrimRight(apiURL, "/"),
		httpCli: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", accept)

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == 200:
		return body, nil
	case resp.StatusCode == 404:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return nil, fmt.Errorf("authentication failed (status %d): %s", resp.StatusCode, string(body))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	default:
		return nil, fmt.Errorf("GitHub API error (status %d): %s", resp.StatusCode, string(body))
	}
}

// ListOwnedRepos enumerates all repositories owned by the authenticated user,
// most recently updated first. Private repositories are included only when
// includePrivate is set.
func (c *Client) ListOwnedRepos(ctx context.Context, includePrivate bool) ([]Repo, error) {
	var all []Repo
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/user/repos?affiliation=owner&sort=updated&direction=desc&per_page=%d&page=%d",
			c.apiURL, perPage, page)
		body, err := c.get(ctx, url, "application/vnd.github.v3+json")
		if err != nil {
			return nil, fmt.Errorf("listing repositories: %w", err)
		}
		var repos []Repo
		if err := json.Unmarshal(body, &repos); err != nil {
			return nil, fmt.Errorf("parsing repository list: %w", err)
		}
		for _, r := range repos {
			if r.Private && !includePrivate {
				continue
			}
			all = append(all, r)
		}
		if len(repos) < perPage {
			return all, nil
		}
	}
}

// GetRepo fetches a single repository by full name (owner/name), validating
// that it exists and is accessible.
func (c *Client) GetRepo(ctx context.Context, fullName string) (Repo, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/repos/%s", c.apiURL, fullName), "application/vnd.github.v3+json")
	if err != nil {
		return Repo{}, fmt.Errorf("getting repository %s: %w", fullName, err)
	}
	var repo Repo
	if err := json.Unmarshal(body, &repo); err != nil {
		return Repo{}, fmt.Errorf("parsing repository: %w", err)
	}
	return repo, nil
}

// ListOpenPulls lists the open pull requests for a repository.
func (c *Client) ListOpenPulls(ctx context.Context, repo string) ([]Pull, error) {
	var all []Pull
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/pulls?state=open&per_page=%d&page=%d", c.apiURL, repo, perPage, page)
		body, err := c.get(ctx, url, "application/vnd.github.v3+json")
		if err != nil {
			return nil, fmt.Errorf("listing pulls for %s: %w", repo, err)
		}
		var pulls []Pull
		if err := json.Unmarshal(body, &pulls); err != nil {
			return nil, fmt.Errorf("parsing pull list: %w", err)
		}
		all = append(all, pulls...)
		if len(pulls) < perPage {
			return all, nil
		}
	}
}

// GetPullDiff fetches the unified diff for a pull request.
func (c *Client) GetPullDiff(ctx context.Context, repo string, number int) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/pulls/%d", c.apiURL, repo, number)
	body, err := c.get(ctx, url, "application/vnd.github.v3.diff")
	if err != nil {
		return "", fmt.Errorf("fetching diff for %s#%d: %w", repo, number, err)
	}
	return string(body), nil
}

// GetIssue fetches a single issue by number.
func (c *Client) GetIssue(ctx context.Context, repo string, number int) (Issue, error) {
	url := fmt.Sprintf("%s/repos/%s/issues/%d", c.apiURL, repo, number)
	body, err := c.get(ctx, url, "application/vnd.github.v3+json")
	if err != nil {
		return Issue{}, fmt.Errorf("fetching issue %s#%d: %w", repo, number, err)
	}
	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return Issue{}, fmt.Errorf("parsing issue: %w", err)
	}
	return issue, nil
}

// ListOpenIssues lists up to limit open issues for a repository, excluding
// pull requests (the issues endpoint returns both).
func (c *Client) ListOpenIssues(ctx context.Context, repo string, limit int) ([]Issue, error) {
	url := fmt.Sprintf("%s/repos/%s/issues?state=open&per_page=%d", c.apiURL, repo, perPage)
	body, err := c.get(ctx, url, "application/vnd.github.v3+json")
	if err != nil {
		return nil, fmt.Errorf("listing issues for %s: %w", repo, err)
	}
	var raw []Issue
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing issue list: %w", err)
	}
	var issues []Issue
	for _, is := range raw {
		if is.PullRequest != nil {
			continue
		}
		issues = append(issues, is)
		if limit > 0 && len(issues) >= limit {
			break
		}
	}
	return issues, nil
}

var issueRefRe = regexp.MustCompile(`#(\d+)`)

// LinkedIssueNumber scans a PR title and body for the first #N issue
// reference. The heuristic is intentionally loose; a missing link just means
// the review runs without issue context.
func LinkedIssueNumber(title, body string) (int, bool) {
	for _, text := range []string{title, body} {
		if m := issueRefRe.FindStringSubmatch(text); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}
