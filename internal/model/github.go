package model

import "time"

// Profile is the portion of a GitHub user profile a World is built from.
type Profile struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	AvatarURL   string `json:"avatarUrl"`
	HTMLURL     string `json:"htmlUrl"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	PublicRepos int    `json:"publicRepos"`
}

// Repo is a repository as listed by the upstream API. Optional upstream
// fields arrive as their zero value.
type Repo struct {
	ID            int64
	Name          string
	FullName      string
	HTMLURL       string
	Description   string
	Language      string
	Stars         int
	Forks         int
	Watchers      int
	OpenIssues    int
	Size          int
	Fork          bool
	DefaultBranch string
	PushedAt      *time.Time
}
