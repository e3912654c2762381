package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.duckduckgo.com"

// maxResults caps how many results a query returns.
const maxResults = 5

// Result is a single search hit.
type Result struct {
	Title   string
	Snippet string
	URL     string
}

// Client queries the DuckDuckGo instant answer API.
type Client struct {
	baseURL string
	httpCli *http.Client
}

// NewClient creates a search client. DDG_API_URL overrides the endpoint,
// mainly for tests.
func NewClient() *Client {
	base := defaultBaseURL
	if v := os.Getenv("DDG_API_URL"); v != "" {
		base = strings.TrimSuffix(v, "/")
	}
	return &Client{
		baseURL: base,
		httpCli: &http.Client{Timeout: 15 * time.Second},
	}
}

type apiResponse struct {
	AbstractText   string `json:"AbstractText"`
	AbstractSource string `json:"AbstractSource"`
	AbstractURL    string `json:"AbstractURL"`
	RelatedTopics  []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Search runs a query and returns up to five results. The abstract, when
// present, is always the first result.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	endpoint := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1",
		c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}

	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	var results []Result
	if api.AbstractText != "" {
		results = append(results, Result{
			Title:   api.AbstractSource,
			Snippet: api.AbstractText,
			URL:     api.AbstractURL,
		})
	}
	for _, topic := range api.RelatedTopics {
		if len(results) >= maxResults {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		results = append(results, Result{
			Title:   topicTitle(topic.Text),
			Snippet: topic.Text,
			URL:     topic.FirstURL,
		})
	}
	return results, nil
}

// topicTitle trims a related-topic text to a short title. DDG formats these
// as "Title - description".
func topicTitle(text string) string {
	if title, _, ok := strings.Cut(text, " - "); ok {
		return title
	}
	if len(text) > 80 {
		return text[:80]
	}
	return text
}

// FormatResults renders results as a Telegram Markdown message.
func FormatResults(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for: %s", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Search results for:* %s\n\n", query)
	for _, r := range results {
		fmt.Fprintf(&b, "[%s](%s)\n%s\n\n", r.Title, r.URL, r.Snippet)
	}
	return strings.TrimRight(b.String(), "\n")
}
