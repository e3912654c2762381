package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &Client{
		token:   "test-token",
		apiURL:  server.URL,
		httpCli: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestListOpenPulls(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widgets/pulls" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Error("missing bearer token")
		}
		fmt.Fprint(w, `[
			{"number": 4, "title": "Add widgets", "body": "fixes #12", "html_url": "https://github.com/acme/widgets/pull/4", "head": {"sha": "abc123"}},
			{"number": 7, "title": "Refactor", "body": "", "html_url": "https://github.com/acme/widgets/pull/7", "head": {"sha": "def456"}}
		]`)
	}))

	pulls, err := c.ListOpenPulls(context.Background(), "acme/widgets")
	if err != nil {
		t.Fatalf("ListOpenPulls error: %v", err)
	}
	if len(pulls) != 2 {
		t.Fatalf("got %d pulls, want 2", len(pulls))
	}
	if pulls[0].Number != 4 || pulls[0].Head.SHA != "abc123" {
		t.Errorf("pulls[0] = %+v", pulls[0])
	}
}

func TestGetPullDiff(t *testing.T) {
	const diff = "diff --git a/main.go b/main.go\n+func main() {}\n"
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/vnd.github.v3.diff" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		fmt.Fprint(w, diff)
	}))

	got, err := c.GetPullDiff(context.Background(), "acme/widgets", 4)
	if err != nil {
		t.Fatalf("GetPullDiff error: %v", err)
	}
	if got != diff {
		t.Errorf("diff = %q", got)
	}
}

func TestGetRepo_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Not Found"}`, http.StatusNotFound)
	}))

	_, err := c.GetRepo(context.Background(), "acme/missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_ServerErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusBadGateway)
	}))

	_, err := c.ListOpenPulls(context.Background(), "acme/widgets")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestListOwnedRepos_FiltersPrivate(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"full_name": "acme/public", "private": false},
			{"full_name": "acme/secret", "private": true}
		]`)
	}))

	repos, err := c.ListOwnedRepos(context.Background(), false)
	if err != nil {
		t.Fatalf("ListOwnedRepos error: %v", err)
	}
	if len(repos) != 1 || repos[0].FullName != "acme/public" {
		t.Errorf("repos = %+v", repos)
	}

	repos, err = c.ListOwnedRepos(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 2 {
		t.Errorf("with private: got %d repos, want 2", len(repos))
	}
}

func TestListOpenIssues_ExcludesPulls(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"number": 1, "title": "real issue", "state": "open"},
			{"number": 2, "title": "actually a PR", "state": "open", "pull_request": {}},
			{"number": 3, "title": "another issue", "state": "open"}
		]`)
	}))

	issues, err := c.ListOpenIssues(context.Background(), "acme/widgets", 10)
	if err != nil {
		t.Fatalf("ListOpenIssues error: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("got %d issues, want 2", len(issues))
	}
	if issues[0].Number != 1 || issues[1].Number != 3 {
		t.Errorf("issues = %+v", issues)
	}
}

func TestLinkedIssueNumber(t *testing.T) {
	tests := []struct {
		title, body string
		want        int
		ok          bool
	}{
		{"Fix crash", "fixes #12", 12, true},
		{"Implement #7", "", 7, true},
		{"No reference", "plain description", 0, false},
		{"", "", 0, false},
		{"Closes #3 and #9", "", 3, true},
	}
	for _, tt := range tests {
		got, ok := LinkedIssueNumber(tt.title, tt.body)
		if got != tt.want || ok != tt.ok {
			t.Errorf("LinkedIssueNumber(%q, %q) = (%d, %v), want (%d, %v)",
				tt.title, tt.body, got, ok, tt.want, tt.ok)
		}
	}
}
