// Package payload turns a fetched profile and its repositories into the
// numbers a World is made of: totals, per-language shares, per-repository
// activity scores and 3D positions, and a fingerprint of the input.
//
// Build is pure. The same inputs always produce the same Payload, which
// is what makes the fingerprint meaningful and the layout reproducible.
package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/sakif/profileworld/internal/model"
)

// Layout constants. Repositories sit on concentric rings of RingSize,
// RingSpacing units apart, each successive repo AngleStep radians further round.
const (
	AngleStep   = 0.45
	BaseRadius  = 8.0
	RingSpacing = 4.0
	RingSize    = 8

	MinHeight = 1.2
	MaxHeight = 20.0

	DefaultBranch = "main"
)

// Repo is a repository with its derived fields. DefaultBranch is not
// persisted; the enrichment step needs it to count recent commits.
type Repo struct {
	model.RepoSnapshot
	DefaultBranch string
}

type Payload struct {
	SourceHash string
	Totals     model.Totals
	Languages  []model.LanguageStats
	Repos      []Repo
}

// Build computes the Payload for profile and repos. Repos keep their input
// order; the index in that order drives the layout.
func Build(profile model.Profile, repos []model.Repo) Payload {
	var totals model.Totals
	for _, r := range repos {
		totals.TotalStars += r.Stars
		totals.TotalForks += r.Forks
		totals.TotalWatchers += r.Watchers
	}
	totals.RepoCount = len(repos)

	out := make([]Repo, 0, len(repos))
	for i, r := range repos {
		out = append(out, buildRepo(i, r))
	}

	return Payload{
		SourceHash: Fingerprint(profile.ID, totals.TotalStars, totals.RepoCount, profile.Followers),
		Totals:     totals,
		Languages:  languageStats(repos),
		Repos:      out,
	}
}

// languageStats counts primary languages in first-seen order. Repos
// without a language are left out of both the counts and the total.
func languageStats(repos []model.Repo) []model.LanguageStats {
	counts := make(map[string]int)
	var order []string
	for _, r := range repos {
		if r.Language == "" {
			continue
		}
		if counts[r.Language] == 0 {
			order = append(order, r.Language)
		}
		counts[r.Language]++
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		total = 1
	}

	stats := make([]model.LanguageStats, 0, len(order))
	for _, lang := range order {
		stats = append(stats, model.LanguageStats{
			Language:   lang,
			Percent:    round2(float64(counts[lang]) / float64(total) * 100),
			ColorToken: ColorToken(lang),
		})
	}
	return stats
}

func buildRepo(index int, r model.Repo) Repo {
	x, y, z := Position(index, r.Stars)

	branch := r.DefaultBranch
	if branch == "" {
		branch = DefaultBranch
	}

	return Repo{
		RepoSnapshot: model.RepoSnapshot{
			RepoID:            r.ID,
			Name:              r.Name,
			FullName:          r.FullName,
			HTMLURL:           r.HTMLURL,
			Description:       r.Description,
			PrimaryLanguage:   r.Language,
			LanguageBreakdown: map[string]int{},
			Stars:             r.Stars,
			Forks:             r.Forks,
			OpenIssues:        r.OpenIssues,
			Watchers:          r.Watchers,
			SizeKB:            r.Size,
			ActivityScore:     ActivityScore(r.Stars, r.Forks, r.Watchers),
			LastActivityAt:    r.PushedAt,
			IsFork:            r.Fork,
			PosX:              x,
			PosY:              y,
			PosZ:              z,
		},
		DefaultBranch: branch,
	}
}

// ActivityScore weights stars, forks and watchers into a single number,
// rounded to two decimals.
func ActivityScore(stars, forks, watchers int) float64 {
	return round2(float64(stars)*1.7 + float64(forks)*1.3 + float64(watchers)*1.1)
}

// Position returns the (x, y, z) of the repo at index. x and z place it on
// its ring; y is its height, square-root damped by stars and clamped to
// [MinHeight, MaxHeight].
func Position(index, stars int) (x, y, z float64) {
	angle := float64(index) * AngleStep
	radius := RingRadius(index)

	x = round2(math.Cos(angle) * radius)
	z = round2(math.Sin(angle) * radius)
	y = MinHeight + math.Sqrt(float64(stars)+1)*2.1
	y = math.Max(MinHeight, math.Min(MaxHeight, y))
	return x, y, z
}

// RingRadius is the radius of the ring the repo at index sits on.
func RingRadius(index int) float64 {
	return BaseRadius + float64(index/RingSize)*RingSpacing
}

// Fingerprint hashes the four coarse metrics that decide whether a profile
// changed. It is a change signal, not an integrity check.
func Fingerprint(profileID int64, totalStars, repoCount, followers int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d:%d:%d", profileID, totalStars, repoCount, followers)))
	return hex.EncodeToString(sum[:])
}

// round2 rounds to two decimals, ties to even.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
