// Package source fetches profiles and repositories from the GitHub REST API.
//
// Every failure is returned as a *source.Error whose Kind tells the caller
// what to do about it: a missing user (KindNotFound), an exhausted quota
// (KindRateLimited, with the reset time) or anything else (KindSourceError).
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"

	"github.com/sakif/profileworld/internal/model"
)

const (
	reposPerPage  = 100
	maxRepoPages  = 3
	commitsWindow = 30 * 24 * time.Hour

	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "profileworld"
)

// Config configures a Client.
type Config struct {
	// BaseURL overrides https://api.github.com/, mostly for tests.
	BaseURL string
	// Token is an optional access token sent as a bearer token.
	Token string
	// Timeout bounds every single upstream request.
	Timeout   time.Duration
	UserAgent string
}

// Client is safe for concurrent use.
type Client struct {
	gh  *github.Client
	now func() time.Time
}

// New builds a Client. The underlying HTTP client carries a fixed timeout,
// so no upstream call can block indefinitely.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.Token != "" {
		httpClient.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   http.DefaultTransport,
		}
	}

	gh := github.NewClient(httpClient)
	gh.UserAgent = cfg.UserAgent
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("source: parsing base URL %q: %w", cfg.BaseURL, err)
		}
		gh.BaseURL = u
	}

	return &Client{gh: gh, now: time.Now}, nil
}

// FetchProfile returns the public profile of username.
func (c *Client) FetchProfile(ctx context.Context, username string) (*model.Profile, error) {
	user, _, err := c.gh.Users.Get(ctx, username)
	if err != nil {
		return nil, c.classify(err)
	}
	return &model.Profile{
		ID:          user.GetID(),
		Login:       user.GetLogin(),
		AvatarURL:   user.GetAvatarURL(),
		HTMLURL:     user.GetHTMLURL(),
		Followers:   user.GetFollowers(),
		Following:   user.GetFollowing(),
		PublicRepos: user.GetPublicRepos(),
	}, nil
}

// FetchRepositories lists the repositories owned by username, most recently
// updated first. It reads at most three pages of 100, stopping early on an
// empty or short page.
func (c *Client) FetchRepositories(ctx context.Context, username string) ([]model.Repo, error) {
	var repos []model.Repo
	for page := 1; page <= maxRepoPages; page++ {
		batch, _, err := c.gh.Repositories.ListByUser(ctx, username, &github.RepositoryListByUserOptions{
			Type:        "owner",
			Sort:        "updated",
			ListOptions: github.ListOptions{Page: page, PerPage: reposPerPage},
		})
		if err != nil {
			return nil, c.classify(err)
		}
		for _, r := range batch {
			repos = append(repos, toRepo(r))
		}
		if len(batch) < reposPerPage {
			break
		}
	}
	return repos, nil
}

// FetchLanguageBreakdown returns bytes of code per language for owner/repo.
func (c *Client) FetchLanguageBreakdown(ctx context.Context, owner, repo string) (map[string]int, error) {
	langs, _, err := c.gh.Repositories.ListLanguages(ctx, owner, repo)
	if err != nil {
		return nil, c.classify(err)
	}
	if langs == nil {
		langs = map[string]int{}
	}
	return langs, nil
}

// FetchCommitCount30d counts commits on branch over the last 30 days.
// It asks for one commit per page and reads the total from the last-page
// link; without pagination links the returned array is counted instead.
func (c *Client) FetchCommitCount30d(ctx context.Context, owner, repo, branch string) (int, error) {
	commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, repo, &github.CommitsListOptions{
		SHA:         branch,
		Since:       c.now().Add(-commitsWindow),
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return 0, c.classify(err)
	}
	if resp != nil && resp.LastPage > 0 {
		return resp.LastPage, nil
	}
	return len(commits), nil
}

func toRepo(r *github.Repository) model.Repo {
	repo := model.Repo{
		ID:            r.GetID(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		HTMLURL:       r.GetHTMLURL(),
		Description:   r.GetDescription(),
		Language:      r.GetLanguage(),
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		Watchers:      r.GetWatchersCount(),
		OpenIssues:    r.GetOpenIssuesCount(),
		Size:          r.GetSize(),
		Fork:          r.GetFork(),
		DefaultBranch: r.GetDefaultBranch(),
	}
	if r.PushedAt != nil {
		pushed := r.PushedAt.Time.UTC()
		repo.PushedAt = &pushed
	}
	return repo
}

// classify maps a go-github error onto a Kind:
// 404 is KindNotFound, 403 with an exhausted quota is KindRateLimited,
// everything else (other statuses, secondary limits, timeouts, transport)
// is KindSourceError.
func (c *Client) classify(err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && (rateErr.Response == nil || rateErr.Response.StatusCode == http.StatusForbidden) {
		return &Error{
			Kind:    KindRateLimited,
			Message: "GitHub API rate limit reached",
			ResetAt: rateErr.Rate.Reset.Time.UTC(),
			Err:     err,
		}
	}

	if resp := errorResponse(err); resp != nil {
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return &Error{Kind: KindNotFound, Message: "GitHub user or resource not found", Err: err}
		case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
			return &Error{
				Kind:    KindRateLimited,
				Message: "GitHub API rate limit reached",
				ResetAt: parseReset(resp.Header.Get("X-RateLimit-Reset")),
				Err:     err,
			}
		default:
			return &Error{Kind: KindSourceError, Message: fmt.Sprintf("GitHub API error: %d", resp.StatusCode), Err: err}
		}
	}

	return &Error{Kind: KindSourceError, Message: "GitHub API request failed", Err: err}
}

// errorResponse digs the upstream HTTP response out of the go-github error
// types that carry one. Secondary rate limits come back as
// AbuseRateLimitError and are classified by status like any other error.
func errorResponse(err error) *http.Response {
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.Response != nil {
		return abuseErr.Response
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		return rateErr.Response
	}
	return nil
}

func parseReset(v string) time.Time {
	epoch, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Unix(0, 0).UTC()
	}
	return time.Unix(epoch, 0).UTC()
}
