package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/profileworld/internal/apperror"
	"github.com/sakif/profileworld/internal/model"
	"github.com/sakif/profileworld/internal/repository"
)

var _ repository.WorldRepository = (*DB)(nil)

const worldColumns = `id, username, github_url, avatar_url, followers, following, public_repos,
	total_stars, total_forks, total_watchers, repo_count, source_hash,
	generation_status, error_message, created_at, updated_at, expires_at`

// CreateWorld inserts the World row and every child row inside one
// transaction. Any failure rolls the whole graph back.
func (db *DB) CreateWorld(ctx context.Context, w *model.World) error {
	if w.ID == "" {
		w.ID = xid.New().String()
	}
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	w.CreatedAt = w.CreatedAt.UTC()
	w.ExpiresAt = w.ExpiresAt.UTC()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning world tx: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO worlds (`+worldColumns+`, username_lower)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Username, w.GitHubURL, w.AvatarURL, w.Followers, w.Following, w.PublicRepos,
		w.Totals.TotalStars, w.Totals.TotalForks, w.Totals.TotalWatchers, w.Totals.RepoCount, w.SourceHash,
		string(w.Status), w.ErrorMessage, w.CreatedAt, w.UpdatedAt, w.ExpiresAt,
		strings.ToLower(w.Username),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("world", w.ID)
		}
		return fmt.Errorf("sqlite: inserting world: %w", err)
	}

	if err := insertRepos(ctx, tx, w.ID, w.Repos); err != nil {
		return err
	}
	if err := insertLanguages(ctx, tx, w.ID, w.Languages); err != nil {
		return err
	}

	if rc := w.RenderConfig; rc != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO render_configs (world_id, seed, layout_version, density_level, lighting_profile, enable_particles)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			w.ID, rc.Seed, rc.LayoutVersion, rc.DensityLevel, rc.LightingProfile, rc.EnableParticles,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting render config: %w", err)
		}
	}

	if st := w.ShareToken; st != nil {
		if st.CreatedAt.IsZero() {
			st.CreatedAt = now
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO share_tokens (world_id, token, is_public, poster_url, created_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			w.ID, st.Token, st.IsPublic, st.PosterURL, st.CreatedAt.UTC(), nullTime(st.ExpiresAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("share token for world", w.ID)
			}
			return fmt.Errorf("sqlite: inserting share token: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing world %s: %w", w.ID, err)
	}
	return nil
}

func insertRepos(ctx context.Context, tx *sql.Tx, worldID string, repos []model.RepoSnapshot) error {
	if len(repos) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO repo_snapshots (world_id, position, repo_id, name, full_name, html_url, description,
			primary_language, language_breakdown, stars, forks, open_issues, watchers, size_kb,
			commits_30d, activity_score, last_activity_at, is_fork, pos_x, pos_y, pos_z)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: preparing repo insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range repos {
		breakdown := r.LanguageBreakdown
		if breakdown == nil {
			breakdown = map[string]int{}
		}
		encoded, err := json.Marshal(breakdown)
		if err != nil {
			return fmt.Errorf("sqlite: encoding language breakdown of %s: %w", r.FullName, err)
		}
		_, err = stmt.ExecContext(ctx,
			worldID, i, r.RepoID, r.Name, r.FullName, r.HTMLURL, r.Description,
			r.PrimaryLanguage, string(encoded), r.Stars, r.Forks, r.OpenIssues, r.Watchers, r.SizeKB,
			r.Commits30d, r.ActivityScore, nullTime(r.LastActivityAt), r.IsFork, r.PosX, r.PosY, r.PosZ,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting repo %s: %w", r.FullName, err)
		}
	}
	return nil
}

func insertLanguages(ctx context.Context, tx *sql.Tx, worldID string, langs []model.LanguageStats) error {
	for i, l := range langs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO language_stats (world_id, position, language, percent, color_token)
			 VALUES (?, ?, ?, ?, ?)`,
			worldID, i, l.Language, l.Percent, l.ColorToken,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting language %s: %w", l.Language, err)
		}
	}
	return nil
}

// GetWorld loads the World and all of its children. Repos come back by
// activity score, then stars; languages by percentage.
func (db *DB) GetWorld(ctx context.Context, id string) (*model.World, error) {
	w, err := db.GetWorldSummary(ctx, id)
	if err != nil {
		return nil, err
	}

	if w.Repos, err = db.listRepos(ctx, id); err != nil {
		return nil, err
	}
	if w.Languages, err = db.listLanguages(ctx, id); err != nil {
		return nil, err
	}
	if w.RenderConfig, err = db.getRenderConfig(ctx, id); err != nil {
		return nil, err
	}
	if w.ShareToken, err = db.getShareToken(ctx, id); err != nil {
		return nil, err
	}
	return w, nil
}

func (db *DB) GetWorldSummary(ctx context.Context, id string) (*model.World, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+worldColumns+` FROM worlds WHERE id = ?`, id)
	w, err := scanWorld(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("world", id)
		}
		return nil, fmt.Errorf("sqlite: getting world %s: %w", id, err)
	}
	return w, nil
}

func (db *DB) FindActive(ctx context.Context, username string, now time.Time) (*model.World, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+worldColumns+` FROM worlds
		 WHERE username_lower = ? AND generation_status = ? AND expires_at > ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		strings.ToLower(username), string(model.StatusReady), now.UTC(),
	)
	w, err := scanWorld(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("active world for", username)
		}
		return nil, fmt.Errorf("sqlite: finding active world for %s: %w", username, err)
	}
	return w, nil
}

func (db *DB) FindLatestReady(ctx context.Context, username string) (*model.World, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+worldColumns+` FROM worlds
		 WHERE username_lower = ? AND generation_status = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		strings.ToLower(username), string(model.StatusReady),
	)
	w, err := scanWorld(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("ready world for", username)
		}
		return nil, fmt.Errorf("sqlite: finding latest world for %s: %w", username, err)
	}
	return w, nil
}

// DeleteWorld removes the children explicitly as well, so the cascade does
// not depend on the foreign_keys pragma being set on this connection.
func (db *DB) DeleteWorld(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning delete tx: %w", err)
	}
	defer tx.Rollback()

	n, err := deleteWorlds(ctx, tx, `id = ?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("world", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing delete of world %s: %w", id, err)
	}
	return nil
}

func (db *DB) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: beginning purge tx: %w", err)
	}
	defer tx.Rollback()

	n, err := deleteWorlds(ctx, tx, `expires_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: committing purge: %w", err)
	}
	return n, nil
}

// deleteWorlds deletes the worlds matching where, children first.
func deleteWorlds(ctx context.Context, tx *sql.Tx, where string, args ...any) (int64, error) {
	for _, table := range []string{"repo_snapshots", "language_stats", "render_configs", "share_tokens"} {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE world_id IN (SELECT id FROM worlds WHERE `+where+`)`, args...)
		if err != nil {
			return 0, fmt.Errorf("sqlite: deleting from %s: %w", table, err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM worlds WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting worlds: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

func (db *DB) listRepos(ctx context.Context, worldID string) ([]model.RepoSnapshot, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT repo_id, name, full_name, html_url, description, primary_language, language_breakdown,
			stars, forks, open_issues, watchers, size_kb, commits_30d, activity_score,
			last_activity_at, is_fork, pos_x, pos_y, pos_z
		 FROM repo_snapshots
		 WHERE world_id = ?
		 ORDER BY activity_score DESC, stars DESC, position ASC`,
		worldID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing repos of world %s: %w", worldID, err)
	}
	defer rows.Close()

	repos := []model.RepoSnapshot{}
	for rows.Next() {
		var (
			r         model.RepoSnapshot
			breakdown string
			lastAct   sql.NullTime
		)
		if err := rows.Scan(
			&r.RepoID, &r.Name, &r.FullName, &r.HTMLURL, &r.Description, &r.PrimaryLanguage, &breakdown,
			&r.Stars, &r.Forks, &r.OpenIssues, &r.Watchers, &r.SizeKB, &r.Commits30d, &r.ActivityScore,
			&lastAct, &r.IsFork, &r.PosX, &r.PosY, &r.PosZ,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning repo row: %w", err)
		}
		r.LanguageBreakdown = map[string]int{}
		if breakdown != "" {
			if err := json.Unmarshal([]byte(breakdown), &r.LanguageBreakdown); err != nil {
				return nil, fmt.Errorf("sqlite: decoding language breakdown of %s: %w", r.FullName, err)
			}
		}
		if lastAct.Valid {
			t := lastAct.Time.UTC()
			r.LastActivityAt = &t
		}
		repos = append(repos, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating repos: %w", err)
	}
	return repos, nil
}

func (db *DB) listLanguages(ctx context.Context, worldID string) ([]model.LanguageStats, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT language, percent, color_token
		 FROM language_stats
		 WHERE world_id = ?
		 ORDER BY percent DESC, position ASC`,
		worldID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing languages of world %s: %w", worldID, err)
	}
	defer rows.Close()

	langs := []model.LanguageStats{}
	for rows.Next() {
		var l model.LanguageStats
		if err := rows.Scan(&l.Language, &l.Percent, &l.ColorToken); err != nil {
			return nil, fmt.Errorf("sqlite: scanning language row: %w", err)
		}
		langs = append(langs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating languages: %w", err)
	}
	return langs, nil
}

func (db *DB) getRenderConfig(ctx context.Context, worldID string) (*model.RenderConfig, error) {
	var rc model.RenderConfig
	err := db.conn.QueryRowContext(ctx,
		`SELECT seed, layout_version, density_level, lighting_profile, enable_particles
		 FROM render_configs WHERE world_id = ?`,
		worldID,
	).Scan(&rc.Seed, &rc.LayoutVersion, &rc.DensityLevel, &rc.LightingProfile, &rc.EnableParticles)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: getting render config of world %s: %w", worldID, err)
	}
	return &rc, nil
}

func (db *DB) getShareToken(ctx context.Context, worldID string) (*model.ShareToken, error) {
	var (
		st      model.ShareToken
		expires sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT token, is_public, poster_url, created_at, expires_at
		 FROM share_tokens WHERE world_id = ?`,
		worldID,
	).Scan(&st.Token, &st.IsPublic, &st.PosterURL, &st.CreatedAt, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: getting share token of world %s: %w", worldID, err)
	}
	st.CreatedAt = st.CreatedAt.UTC()
	if expires.Valid {
		t := expires.Time.UTC()
		st.ExpiresAt = &t
	}
	return &st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorld(row rowScanner) (*model.World, error) {
	var (
		w      model.World
		status string
	)
	err := row.Scan(
		&w.ID, &w.Username, &w.GitHubURL, &w.AvatarURL, &w.Followers, &w.Following, &w.PublicRepos,
		&w.Totals.TotalStars, &w.Totals.TotalForks, &w.Totals.TotalWatchers, &w.Totals.RepoCount, &w.SourceHash,
		&status, &w.ErrorMessage, &w.CreatedAt, &w.UpdatedAt, &w.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	w.Status = model.Status(status)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	w.ExpiresAt = w.ExpiresAt.UTC()
	return &w, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
