package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/sakif/profileworld/internal/model"
	"github.com/sakif/profileworld/internal/payload"
)

// enrich fills Commits30d and LanguageBreakdown for the first EnrichLimit
// repos, at most EnrichConcurrency at a time. Results land at the repo's own
// index, so completion order does not matter. Failures leave the defaults
// in place and never abort the World.
func (s *WorldService) enrich(ctx context.Context, username string, out []model.RepoSnapshot, repos []payload.Repo) {
	n := min(s.opts.EnrichLimit, len(repos), len(out))
	if n <= 0 {
		return
	}

	slots := make(chan struct{}, s.opts.EnrichConcurrency)
	var wg sync.WaitGroup

loop:
	for i := range n {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			break loop
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			out[i].Commits30d, out[i].LanguageBreakdown = s.enrichRepo(ctx, username, repos[i])
		}()
	}
	wg.Wait()
}

func (s *WorldService) enrichRepo(ctx context.Context, username string, r payload.Repo) (int, map[string]int) {
	owner, name := splitFullName(r.FullName, username, r.Name)

	commits, err := s.source.FetchCommitCount30d(ctx, owner, name, r.DefaultBranch)
	if err != nil {
		s.enrichFailed("commits", owner, name, err)
		commits = 0
	}

	langs, err := s.source.FetchLanguageBreakdown(ctx, owner, name)
	if err != nil || langs == nil {
		if err != nil {
			s.enrichFailed("languages", owner, name, err)
		}
		langs = map[string]int{}
	}
	return commits, langs
}

func (s *WorldService) enrichFailed(call, owner, name string, err error) {
	s.metrics.EnrichmentFailed(call)
	s.logger.Debug("enrichment call failed",
		slog.String("call", call),
		slog.String("repo", owner+"/"+name),
		slog.String("error", err.Error()),
	)
}

// splitFullName splits "owner/name". Without a slash the requesting user
// is taken as the owner.
func splitFullName(fullName, username, name string) (string, string) {
	if owner, repo, ok := strings.Cut(fullName, "/"); ok && owner != "" && repo != "" {
		return owner, repo
	}
	if name == "" {
		name = fullName
	}
	return username, name
}
