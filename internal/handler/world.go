package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/profileworld/internal/model"
	"github.com/sakif/profileworld/internal/service"
)

const maxBodyBytes = 1 << 20

// WorldService is what the handlers need from the service layer.
// *service.WorldService implements it.
type WorldService interface {
	Generate(ctx context.Context, req service.GenerateRequest) (*service.GenerateResult, error)
	Get(ctx context.Context, id string) (*model.World, error)
	GetShared(ctx context.Context, id string) (*model.World, error)
	Ping(ctx context.Context) error
}

type WorldHandler struct {
	svc    WorldService
	logger *slog.Logger
	now    func() time.Time
}

func NewWorldHandler(svc WorldService, logger *slog.Logger) *WorldHandler {
	return &WorldHandler{svc: svc, logger: logger, now: time.Now}
}

type generateRequest struct {
	GitHubURL string `json:"githubUrl"`
	Username  string `json:"username"`
}

// GenerateResponse is returned for created, cache_hit and stale_fallback.
type GenerateResponse struct {
	WorldID          string       `json:"worldId"`
	Status           model.Status `json:"status"`
	Cached           bool         `json:"cached"`
	Stale            bool         `json:"stale,omitempty"`
	ETASeconds       int          `json:"etaSeconds"`
	RateLimitedUntil *time.Time   `json:"rateLimitedUntil,omitempty"`
}

// ShareResponse is the World graph plus its share token.
type ShareResponse struct {
	*model.World
	ShareToken string `json:"shareToken"`
}

// HandleGenerate creates a World for a GitHub profile or returns a cached one.
//
// HTTP: POST /api/world/generate
// REQUEST BODY: {"githubUrl": "https://github.com/octocat"} or {"username": "octocat"}
//
//	200  cache hit or stale fallback
//	201  new World created
//	400  bad input
//	404  GitHub user not found
//	429  rate limited, with Retry-After
//	502  GitHub failed
func (h *WorldHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid generate JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid JSON body",
		})
		return
	}

	res, err := h.svc.Generate(r.Context(), service.GenerateRequest{
		GitHubURL: req.GitHubURL,
		Username:  req.Username,
	})
	if err != nil {
		h.logger.Error("world generation failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	switch res.Outcome {
	case service.OutcomeCreated:
		writeJSON(w, http.StatusCreated, generateResponse(res))

	case service.OutcomeCacheHit:
		writeJSON(w, http.StatusOK, generateResponse(res))

	case service.OutcomeStaleFallback:
		if res.RateLimitedUntil != nil {
			setRetryAfter(w, *res.RateLimitedUntil, h.now())
		}
		writeJSON(w, http.StatusOK, generateResponse(res))

	case service.OutcomeRateLimited:
		if res.RateLimitedUntil != nil {
			setRetryAfter(w, *res.RateLimitedUntil, h.now())
		}
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error:            "rate_limited",
			Message:          res.Detail,
			RateLimitedUntil: res.RateLimitedUntil,
		})

	case service.OutcomeInvalidInput:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: res.Detail})

	case service.OutcomeNotFound:
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: res.Detail})

	case service.OutcomeUpstreamError:
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "upstream_error", Message: res.Detail})

	default:
		h.logger.Error("unknown generation outcome", slog.String("outcome", string(res.Outcome)))
		writeError(w, nil)
	}
}

func generateResponse(res *service.GenerateResult) GenerateResponse {
	return GenerateResponse{
		WorldID:          res.WorldID,
		Status:           res.Status,
		Cached:           res.Cached,
		Stale:            res.Stale,
		ETASeconds:       res.ETASeconds,
		RateLimitedUntil: res.RateLimitedUntil,
	}
}

// HandleGet returns the full World graph.
//
// HTTP: GET /api/world/{id}
func (h *WorldHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	world, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, world)
}

// HandleShare returns the World graph with its share token, or 403 when
// the token is missing, private or expired.
//
// HTTP: GET /api/world/{id}/share
func (h *WorldHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	world, err := h.svc.GetShared(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ShareResponse{World: world, ShareToken: world.ShareToken.Token})
}

// HandleHealth reports whether the store is reachable.
//
// HTTP: GET /healthz
func (h *WorldHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
