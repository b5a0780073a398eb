// Package repository declares the storage contract for Worlds.
// The service layer depends on this interface only; internal/repository/sqlite
// is the production implementation.
package repository

import (
	"context"
	"time"

	"github.com/sakif/profileworld/internal/model"
)

type WorldRepository interface {
	// CreateWorld persists w together with its repos, language stats,
	// render config and share token in a single transaction. It assigns
	// w.ID and the timestamps. Either the whole graph is stored or nothing is.
	CreateWorld(ctx context.Context, w *model.World) error

	// GetWorld returns the full graph, including the share token.
	GetWorld(ctx context.Context, id string) (*model.World, error)

	// GetWorldSummary returns the World row without its children.
	GetWorldSummary(ctx context.Context, id string) (*model.World, error)

	// FindActive returns the most recent ready World for username
	// (case-insensitive) that expires after now.
	FindActive(ctx context.Context, username string, now time.Time) (*model.World, error)

	// FindLatestReady returns the most recent ready World for username,
	// expired or not.
	FindLatestReady(ctx context.Context, username string) (*model.World, error)

	// DeleteWorld removes a World and all of its children.
	DeleteWorld(ctx context.Context, id string) error

	// PurgeExpired deletes every World that expired before the cutoff and
	// returns how many were removed.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)

	Ping(ctx context.Context) error
}
