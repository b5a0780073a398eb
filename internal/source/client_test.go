package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient points a Client at a fake GitHub API served by mux.
func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c, srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding fake response: %v", err)
	}
}

func repoPage(start, n int) []map[string]any {
	page := make([]map[string]any, 0, n)
	for i := start; i < start+n; i++ {
		page = append(page, map[string]any{
			"id":                i,
			"name":              fmt.Sprintf("repo-%d", i),
			"full_name":         fmt.Sprintf("octo/repo-%d", i),
			"html_url":          fmt.Sprintf("https://github.com/octo/repo-%d", i),
			"stargazers_count":  i,
			"forks_count":       1,
			"watchers_count":    2,
			"open_issues_count": 3,
			"size":              10,
			"default_branch":    "main",
			"pushed_at":         "2026-09-01T12:00:00Z",
		})
	}
	return page
}

func TestFetchProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octo", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"id": 583231, "login": "octo", "avatar_url": "https://avatars/octo",
			"html_url": "https://github.com/octo", "followers": 10, "following": 2, "public_repos": 8,
		})
	})
	c, _ := newTestClient(t, mux)

	p, err := c.FetchProfile(context.Background(), "octo")
	require.NoError(t, err)
	assert.Equal(t, int64(583231), p.ID)
	assert.Equal(t, "octo", p.Login)
	assert.Equal(t, "https://avatars/octo", p.AvatarURL)
	assert.Equal(t, 10, p.Followers)
	assert.Equal(t, 2, p.Following)
	assert.Equal(t, 8, p.PublicRepos)
}

func TestFetchProfile_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/ghost", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(t, w, map[string]any{"message": "Not Found"})
	})
	c, _ := newTestClient(t, mux)

	_, err := c.FetchProfile(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestFetchProfile_RateLimited(t *testing.T) {
	reset := time.Date(2026, 10, 18, 13, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		w.WriteHeader(http.StatusForbidden)
		writeJSON(t, w, map[string]any{"message": "API rate limit exceeded"})
	})
	c, _ := newTestClient(t, mux)

	_, err := c.FetchProfile(context.Background(), "octo")
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))

	got, ok := ResetAt(err)
	require.True(t, ok)
	assert.True(t, reset.Equal(got), "reset = %v, want %v", got, reset)
}

func TestFetchProfile_ForbiddenWithQuotaLeft(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "12")
		w.WriteHeader(http.StatusForbidden)
		writeJSON(t, w, map[string]any{"message": "Forbidden"})
	})
	c, _ := newTestClient(t, mux)

	_, err := c.FetchProfile(context.Background(), "octo")
	require.Error(t, err)
	assert.Equal(t, KindSourceError, KindOf(err))
}

func TestFetchProfile_SecondaryRateLimit(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		remaining string
	}{
		{"403 with quota left", http.StatusForbidden, "42"},
		{"429 with quota exhausted", http.StatusTooManyRequests, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/users/octo", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-RateLimit-Remaining", tt.remaining)
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(tt.status)
				writeJSON(t, w, map[string]any{
					"message":           "You have exceeded a secondary rate limit.",
					"documentation_url": "https://docs.github.com/rest/overview/rate-limits-for-the-rest-api#about-secondary-rate-limits",
				})
			})
			c, _ := newTestClient(t, mux)

			_, err := c.FetchProfile(context.Background(), "octo")
			require.Error(t, err)
			assert.Equal(t, KindSourceError, KindOf(err))
			_, ok := ResetAt(err)
			assert.False(t, ok)
		})
	}
}

func TestFetchProfile_ServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.FetchProfile(context.Background(), "octo")
	require.Error(t, err)
	assert.Equal(t, KindSourceError, KindOf(err))
	assert.Contains(t, err.Error(), "502")
}

func TestFetchProfile_Timeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octo", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.FetchProfile(context.Background(), "octo")
	require.Error(t, err)
	assert.Equal(t, KindSourceError, KindOf(err))
}

func TestFetchRepositories_Pagination(t *testing.T) {
	tests := []struct {
		name      string
		pages     []int // items served per page
		wantCalls int
		wantCount int
	}{
		{name: "single short page", pages: []int{5}, wantCalls: 1, wantCount: 5},
		{name: "stops on short second page", pages: []int{100, 40}, wantCalls: 2, wantCount: 140},
		{name: "stops on empty page", pages: []int{100, 0}, wantCalls: 2, wantCount: 100},
		{name: "caps at three pages", pages: []int{100, 100, 100, 100}, wantCalls: 3, wantCount: 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			mux := http.NewServeMux()
			mux.HandleFunc("/users/octo/repos", func(w http.ResponseWriter, r *http.Request) {
				calls++
				q := r.URL.Query()
				assert.Equal(t, "owner", q.Get("type"))
				assert.Equal(t, "updated", q.Get("sort"))
				assert.Equal(t, "100", q.Get("per_page"))

				page, _ := strconv.Atoi(q.Get("page"))
				n := 0
				if page >= 1 && page <= len(tt.pages) {
					n = tt.pages[page-1]
				}
				writeJSON(t, w, repoPage((page-1)*100, n))
			})
			c, _ := newTestClient(t, mux)

			repos, err := c.FetchRepositories(context.Background(), "octo")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, calls)
			assert.Len(t, repos, tt.wantCount)
		})
	}
}

func TestFetchRepositories_MapsFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octo/repos", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{{
			"id": 7, "name": "hello", "full_name": "octo/hello", "html_url": "https://github.com/octo/hello",
			"description": nil, "language": "Go", "stargazers_count": 12, "forks_count": 3,
			"watchers_count": 4, "open_issues_count": 1, "size": 99, "fork": true,
			"default_branch": "trunk", "pushed_at": "2026-09-01T12:00:00Z",
		}})
	})
	c, _ := newTestClient(t, mux)

	repos, err := c.FetchRepositories(context.Background(), "octo")
	require.NoError(t, err)
	require.Len(t, repos, 1)

	r := repos[0]
	assert.Equal(t, int64(7), r.ID)
	assert.Equal(t, "octo/hello", r.FullName)
	assert.Equal(t, "", r.Description)
	assert.Equal(t, "Go", r.Language)
	assert.Equal(t, 12, r.Stars)
	assert.Equal(t, 3, r.Forks)
	assert.Equal(t, 4, r.Watchers)
	assert.Equal(t, 1, r.OpenIssues)
	assert.Equal(t, 99, r.Size)
	assert.True(t, r.Fork)
	assert.Equal(t, "trunk", r.DefaultBranch)
	require.NotNil(t, r.PushedAt)
	assert.True(t, time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC).Equal(*r.PushedAt))
}

func TestFetchLanguageBreakdown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/languages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]int{"Go": 1200, "Shell": 40})
	})
	c, _ := newTestClient(t, mux)

	langs, err := c.FetchLanguageBreakdown(context.Background(), "octo", "hello")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Go": 1200, "Shell": 40}, langs)
}

func TestFetchCommitCount30d(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	t.Run("reads last page from link header", func(t *testing.T) {
		mux := http.NewServeMux()
		var srvURL string
		mux.HandleFunc("/repos/octo/hello/commits", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "trunk", q.Get("sha"))
			assert.Equal(t, "1", q.Get("per_page"))
			since, err := time.Parse(time.RFC3339, q.Get("since"))
			assert.NoError(t, err)
			assert.True(t, now.Add(-30*24*time.Hour).Equal(since), "since = %v", since)

			w.Header().Set("Link", fmt.Sprintf(
				`<%s/repos/octo/hello/commits?per_page=1&page=2>; rel="next", <%s/repos/octo/hello/commits?per_page=1&page=57>; rel="last"`,
				srvURL, srvURL))
			writeJSON(t, w, []map[string]any{{"sha": "abc"}})
		})
		c, srv := newTestClient(t, mux)
		srvURL = srv.URL
		c.now = func() time.Time { return now }

		n, err := c.FetchCommitCount30d(context.Background(), "octo", "hello", "trunk")
		require.NoError(t, err)
		assert.Equal(t, 57, n)
	})

	t.Run("counts array without link header", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/octo/hello/commits", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, []map[string]any{{"sha": "abc"}})
		})
		c, _ := newTestClient(t, mux)

		n, err := c.FetchCommitCount30d(context.Background(), "octo", "hello", "main")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("no commits", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/octo/hello/commits", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, []map[string]any{})
		})
		c, _ := newTestClient(t, mux)

		n, err := c.FetchCommitCount30d(context.Background(), "octo", "hello", "main")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("empty repository conflict", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/octo/hello/commits", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			writeJSON(t, w, map[string]any{"message": "Git Repository is empty."})
		})
		c, _ := newTestClient(t, mux)

		_, err := c.FetchCommitCount30d(context.Background(), "octo", "hello", "main")
		require.Error(t, err)
		assert.Equal(t, KindSourceError, KindOf(err))
	})
}

func TestNew_TokenIsSentAsBearer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		writeJSON(t, w, map[string]any{"id": 1, "login": "octo"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Token: "s3cret"})
	require.NoError(t, err)

	_, err = c.FetchProfile(context.Background(), "octo")
	require.NoError(t, err)
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, KindSourceError, KindOf(fmt.Errorf("boom")))
	_, ok := ResetAt(fmt.Errorf("boom"))
	assert.False(t, ok)
}
