// Package model defines the data structures used throughout the application.
//
// A World is the unit of persistence: a point-in-time capture of a GitHub
// profile with one RepoSnapshot per repository, per-language statistics,
// a RenderConfig and a ShareToken. The children only ever exist together
// with their World.
package model

import "time"

// Status is the generation status of a World.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Totals are the profile-wide sums captured at fetch time.
type Totals struct {
	TotalStars    int `json:"totalStars"`
	TotalForks    int `json:"totalForks"`
	TotalWatchers int `json:"totalWatchers"`
	RepoCount     int `json:"repoCount"`
}

type World struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	GitHubURL    string    `json:"githubUrl"`
	AvatarURL    string    `json:"avatarUrl"`
	Followers    int       `json:"followers"`
	Following    int       `json:"following"`
	PublicRepos  int       `json:"publicRepos"`
	Totals       Totals    `json:"totals"`
	SourceHash   string    `json:"sourceHash"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`

	Repos        []RepoSnapshot  `json:"repos"`
	Languages    []LanguageStats `json:"languages"`
	RenderConfig *RenderConfig   `json:"renderConfig"`

	// ShareToken is loaded with the graph but only exposed through the share view.
	ShareToken *ShareToken `json:"-"`
}

// IsActive reports whether w can be served as a cache hit at now.
func (w *World) IsActive(now time.Time) bool {
	return w.Status == StatusReady && w.ExpiresAt.After(now)
}

// RepoSnapshot is one repository as captured for a World.
// Commits30d and LanguageBreakdown are only filled for enriched repos.
type RepoSnapshot struct {
	RepoID            int64          `json:"repoId"`
	Name              string         `json:"name"`
	FullName          string         `json:"fullName"`
	HTMLURL           string         `json:"htmlUrl"`
	Description       string         `json:"description"`
	PrimaryLanguage   string         `json:"primaryLanguage"`
	LanguageBreakdown map[string]int `json:"languageBreakdown"`
	Stars             int            `json:"stars"`
	Forks             int            `json:"forks"`
	OpenIssues        int            `json:"openIssues"`
	Watchers          int            `json:"watchers"`
	SizeKB            int            `json:"sizeKb"`
	Commits30d        int            `json:"commits30d"`
	ActivityScore     float64        `json:"activityScore"`
	LastActivityAt    *time.Time     `json:"lastActivityAt"`
	IsFork            bool           `json:"isFork"`
	PosX              float64        `json:"posX"`
	PosY              float64        `json:"posY"`
	PosZ              float64        `json:"posZ"`
}

// LanguageStats is the share of repositories using Language as their primary language.
type LanguageStats struct {
	Language   string  `json:"language"`
	Percent    float64 `json:"percent"`
	ColorToken string  `json:"colorToken"`
}

// RenderConfig holds the scene parameters a renderer uses to lay out a World.
type RenderConfig struct {
	Seed            int64   `json:"seed"`
	LayoutVersion   string  `json:"layoutVersion"`
	DensityLevel    float64 `json:"densityLevel"`
	LightingProfile string  `json:"lightingProfile"`
	EnableParticles bool    `json:"enableParticles"`
}

type ShareToken struct {
	Token     string     `json:"token"`
	IsPublic  bool       `json:"isPublic"`
	PosterURL string     `json:"posterUrl"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// Valid reports whether the token grants access at now: it must be public
// and either never expire or expire after now.
func (t *ShareToken) Valid(now time.Time) bool {
	if t == nil || !t.IsPublic {
		return false
	}
	return t.ExpiresAt == nil || t.ExpiresAt.After(now)
}
