// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → resolves caches, calls GitHub, builds Worlds
//	Repository (Data layer)  → reads/writes to the database
//
// WorldService depends on interfaces only: a Source for GitHub, a
// repository.WorldRepository for storage and a cache.LatestIndex for the
// latest-id side index. main.go wires the concrete implementations.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/profileworld/internal/apperror"
	"github.com/sakif/profileworld/internal/cache"
	"github.com/sakif/profileworld/internal/metrics"
	"github.com/sakif/profileworld/internal/model"
	"github.com/sakif/profileworld/internal/payload"
	"github.com/sakif/profileworld/internal/repository"
	"github.com/sakif/profileworld/internal/source"
)

const (
	DefaultTTL               = 24 * time.Hour
	DefaultEnrichLimit       = 12
	DefaultEnrichConcurrency = 4

	// StaleRetrySeconds is the eta handed out with a stale fallback.
	StaleRetrySeconds = 900

	seedModulus = 100000
	seedOffset  = 7

	shareTokenBytes = 16
)

// Source is the subset of the GitHub client the service needs.
// *source.Client implements it.
type Source interface {
	FetchProfile(ctx context.Context, username string) (*model.Profile, error)
	FetchRepositories(ctx context.Context, username string) ([]model.Repo, error)
	FetchLanguageBreakdown(ctx context.Context, owner, repo string) (map[string]int, error)
	FetchCommitCount30d(ctx context.Context, owner, repo, branch string) (int, error)
}

// Outcome is the terminal state of a generation request.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeCacheHit      Outcome = "cache_hit"
	OutcomeStaleFallback Outcome = "stale_fallback"
	OutcomeInvalidInput  Outcome = "invalid_input"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeRateLimited   Outcome = "rate_limited"
	OutcomeUpstreamError Outcome = "upstream_error"
)

type GenerateRequest struct {
	GitHubURL string
	Username  string
}

// GenerateResult describes what Generate did. WorldID is set for created,
// cache_hit and stale_fallback; Detail for every other outcome.
type GenerateResult struct {
	Outcome    Outcome
	WorldID    string
	Status     model.Status
	Cached     bool
	Stale      bool
	ETASeconds int
	// RateLimitedUntil is the upstream quota reset, for rate_limited and stale_fallback.
	RateLimitedUntil *time.Time
	Detail           string
}

type Options struct {
	TTL time.Duration
	// EnrichLimit is how many leading repos get the deep fetch. Zero turns
	// enrichment off; a negative value selects DefaultEnrichLimit.
	EnrichLimit       int
	EnrichConcurrency int
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.EnrichLimit < 0 {
		o.EnrichLimit = DefaultEnrichLimit
	}
	if o.EnrichConcurrency < 1 {
		o.EnrichConcurrency = DefaultEnrichConcurrency
	}
	return o
}

// WorldService generates, caches and serves Worlds.
type WorldService struct {
	source  Source
	repo    repository.WorldRepository
	index   cache.LatestIndex
	metrics *metrics.Metrics
	logger  *slog.Logger
	opts    Options

	now      func() time.Time
	newToken func() (string, error)
}

// NewWorldService wires the service. index and m may be nil.
func NewWorldService(src Source, repo repository.WorldRepository, index cache.LatestIndex, m *metrics.Metrics, logger *slog.Logger, opts Options) *WorldService {
	return &WorldService{
		source:   src,
		repo:     repo,
		index:    index,
		metrics:  m,
		logger:   logger,
		opts:     opts.withDefaults(),
		now:      time.Now,
		newToken: newShareToken,
	}
}

// Generate resolves a cached World or builds a new one from GitHub.
//
// Upstream failures and bad input are reported as outcomes, not errors.
// The returned error is non-nil only for internal failures such as a
// failed commit, in which case nothing was persisted.
func (s *WorldService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	res, err := s.generate(ctx, req)
	if err != nil {
		s.metrics.ObserveGeneration("internal_error")
		return nil, err
	}
	s.metrics.ObserveGeneration(string(res.Outcome))
	return res, nil
}

func (s *WorldService) generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if strings.TrimSpace(req.GitHubURL) == "" && strings.TrimSpace(req.Username) == "" {
		return &GenerateResult{
			Outcome: OutcomeInvalidInput,
			Detail:  "Provide either githubUrl or username.",
		}, nil
	}

	username, err := source.ParseUsername(req.GitHubURL, req.Username)
	if err != nil {
		return &GenerateResult{Outcome: OutcomeInvalidInput, Detail: detailOf(err)}, nil
	}

	// resolve cache. The stale candidate is looked up on every request,
	// hit or miss, before anything goes upstream.
	active, err := s.findActive(ctx, username)
	if err != nil {
		return nil, err
	}
	stale, err := s.findStale(ctx, username)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return &GenerateResult{
			Outcome: OutcomeCacheHit,
			WorldID: active.ID,
			Status:  active.Status,
			Cached:  true,
		}, nil
	}

	// fetch
	profile, repos, err := s.fetch(ctx, username)
	if err != nil {
		return s.upstreamFailure(username, stale, err), nil
	}

	// enrich + commit
	start := s.now()
	p := payload.Build(*profile, repos)
	w := s.assemble(username, profile, p)
	s.enrich(ctx, username, w.Repos, p.Repos)

	token, err := s.newToken()
	if err != nil {
		return nil, err
	}
	w.ShareToken = &model.ShareToken{Token: token, IsPublic: true, CreatedAt: w.CreatedAt}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generating world for %s: %w", username, err)
	}
	w.Status = model.StatusReady
	if err := s.repo.CreateWorld(ctx, w); err != nil {
		s.logger.Error("failed to store world",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("storing world for %s: %w", username, err)
	}
	s.metrics.ObserveBuild(s.now().Sub(start))

	s.remember(ctx, username, w.ID)

	s.logger.Info("world created",
		slog.String("id", w.ID),
		slog.String("username", username),
		slog.Int("repos", len(w.Repos)),
	)

	return &GenerateResult{
		Outcome: OutcomeCreated,
		WorldID: w.ID,
		Status:  w.Status,
	}, nil
}

// findActive consults the latest-id index first and re-validates any hit
// against the store, falling back to a store query. It returns nil, nil
// when there is no active World.
func (s *WorldService) findActive(ctx context.Context, username string) (*model.World, error) {
	now := s.now()

	if s.index != nil {
		id, err := s.index.Get(ctx, username)
		switch {
		case err == nil:
			w, gerr := s.repo.GetWorldSummary(ctx, id)
			if gerr == nil && w.IsActive(now) && strings.EqualFold(w.Username, username) {
				return w, nil
			}
			if gerr != nil && !apperror.IsNotFound(gerr) {
				s.logger.Warn("latest index points at unreadable world",
					slog.String("id", id),
					slog.String("error", gerr.Error()),
				)
			}
		case !errors.Is(err, cache.ErrMiss):
			s.logger.Warn("latest index lookup failed",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
		}
	}

	w, err := s.repo.FindActive(ctx, username, now)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding active world for %s: %w", username, err)
	}
	return w, nil
}

// findStale returns the most recent ready World for username regardless of
// expiry, or nil when there is none.
func (s *WorldService) findStale(ctx context.Context, username string) (*model.World, error) {
	w, err := s.repo.FindLatestReady(ctx, username)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding stale world for %s: %w", username, err)
	}
	return w, nil
}

func (s *WorldService) fetch(ctx context.Context, username string) (*model.Profile, []model.Repo, error) {
	profile, err := s.source.FetchProfile(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	repos, err := s.source.FetchRepositories(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	return profile, repos, nil
}

func (s *WorldService) upstreamFailure(username string, stale *model.World, err error) *GenerateResult {
	kind := source.KindOf(err)
	s.logger.Warn("github fetch failed",
		slog.String("username", username),
		slog.String("kind", kind.String()),
		slog.String("error", err.Error()),
	)

	switch kind {
	case source.KindNotFound:
		return &GenerateResult{Outcome: OutcomeNotFound, Detail: detailOf(err)}

	case source.KindRateLimited:
		var until *time.Time
		if reset, ok := source.ResetAt(err); ok && !reset.IsZero() {
			reset = reset.UTC()
			until = &reset
		}
		if stale != nil {
			return &GenerateResult{
				Outcome:          OutcomeStaleFallback,
				WorldID:          stale.ID,
				Status:           stale.Status,
				Cached:           true,
				Stale:            true,
				ETASeconds:       StaleRetrySeconds,
				RateLimitedUntil: until,
			}
		}
		return &GenerateResult{
			Outcome:          OutcomeRateLimited,
			RateLimitedUntil: until,
			Detail:           "GitHub API rate limit reached. Try again later.",
		}

	case source.KindInvalidInput:
		return &GenerateResult{Outcome: OutcomeInvalidInput, Detail: detailOf(err)}

	default:
		return &GenerateResult{Outcome: OutcomeUpstreamError, Detail: detailOf(err)}
	}
}

// assemble builds the in-memory World from the Payload. It is never
// stored in the processing state.
func (s *WorldService) assemble(username string, profile *model.Profile, p payload.Payload) *model.World {
	now := s.now().UTC()

	snapshots := make([]model.RepoSnapshot, len(p.Repos))
	for i, r := range p.Repos {
		snapshots[i] = r.RepoSnapshot
	}

	return &model.World{
		Username:    username,
		GitHubURL:   profile.HTMLURL,
		AvatarURL:   profile.AvatarURL,
		Followers:   profile.Followers,
		Following:   profile.Following,
		PublicRepos: profile.PublicRepos,
		Totals:      p.Totals,
		SourceHash:  p.SourceHash,
		Status:      model.StatusProcessing,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.opts.TTL),
		Repos:       snapshots,
		Languages:   p.Languages,
		RenderConfig: &model.RenderConfig{
			Seed:            renderSeed(profile.ID),
			LayoutVersion:   "v1",
			DensityLevel:    1.0,
			LightingProfile: "neo_city",
			EnableParticles: true,
		},
	}
}

func (s *WorldService) remember(ctx context.Context, username, id string) {
	if s.index == nil {
		return
	}
	if err := s.index.Set(ctx, username, id, s.opts.TTL); err != nil {
		s.logger.Warn("failed to update latest index",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns the full World graph.
func (s *WorldService) Get(ctx context.Context, id string) (*model.World, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "world ID is required")
	}
	return s.repo.GetWorld(ctx, id)
}

// GetShared returns the World graph if its share token is valid, and
// apperror.ErrForbidden otherwise.
func (s *WorldService) GetShared(ctx context.Context, id string) (*model.World, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !w.ShareToken.Valid(s.now()) {
		return nil, apperror.Forbidden("Share link is not active.")
	}
	return w, nil
}

// Delete removes a World and drops it from the latest index.
func (s *WorldService) Delete(ctx context.Context, id string) error {
	w, err := s.repo.GetWorldSummary(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteWorld(ctx, id); err != nil {
		return err
	}
	if s.index != nil {
		if cur, err := s.index.Get(ctx, w.Username); err == nil && cur == id {
			if err := s.index.Delete(ctx, w.Username); err != nil {
				s.logger.Warn("failed to drop latest index entry",
					slog.String("username", w.Username),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	s.logger.Info("world deleted", slog.String("id", id))
	return nil
}

// PurgeExpired deletes Worlds that expired more than retention ago. Newer
// expired Worlds are kept so they can still serve as stale fallbacks.
func (s *WorldService) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention < 0 {
		retention = 0
	}
	n, err := s.repo.PurgeExpired(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purging expired worlds: %w", err)
	}
	s.metrics.Purged(n)
	if n > 0 {
		s.logger.Info("purged expired worlds", slog.Int64("count", n))
	}
	return n, nil
}

func (s *WorldService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func renderSeed(profileID int64) int64 {
	return profileID%seedModulus + seedOffset
}

// newShareToken returns 16 random bytes as unpadded URL-safe base64.
func newShareToken() (string, error) {
	b := make([]byte, shareTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// detailOf returns the human-readable message of a source error.
func detailOf(err error) string {
	var serr *source.Error
	if errors.As(err, &serr) && serr.Message != "" {
		return serr.Message
	}
	return err.Error()
}
