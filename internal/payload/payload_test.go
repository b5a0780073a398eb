package payload

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/profileworld/internal/model"
)

func sampleRepos() []model.Repo {
	pushed := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	return []model.Repo{
		{ID: 1, Name: "alpha", FullName: "octo/alpha", Language: "Go", Stars: 10, Forks: 2, Watchers: 5, DefaultBranch: "trunk", PushedAt: &pushed},
		{ID: 2, Name: "beta", FullName: "octo/beta"},
		{ID: 3, Name: "gamma", FullName: "octo/gamma", Language: "Python", Stars: 100, Forks: 50, Watchers: 20, Description: "big"},
	}
}

func TestBuild_ExampleProfile(t *testing.T) {
	p := Build(model.Profile{ID: 42, Followers: 7}, sampleRepos())

	assert.Equal(t, model.Totals{TotalStars: 110, TotalForks: 52, TotalWatchers: 25, RepoCount: 3}, p.Totals)

	require.Len(t, p.Repos, 3)
	assert.InDelta(t, 25.1, p.Repos[0].ActivityScore, 1e-9)
	assert.InDelta(t, 0.0, p.Repos[1].ActivityScore, 1e-9)
	assert.InDelta(t, 257.0, p.Repos[2].ActivityScore, 1e-9)

	assert.Equal(t, 8.0, p.Repos[0].PosX)
	assert.Equal(t, 0.0, p.Repos[0].PosZ)
	assert.InDelta(t, 1.2+math.Sqrt(11)*2.1, p.Repos[0].PosY, 1e-9)
}

func TestBuild_CarriesRepoFields(t *testing.T) {
	p := Build(model.Profile{ID: 1}, sampleRepos())

	first := p.Repos[0]
	assert.Equal(t, int64(1), first.RepoID)
	assert.Equal(t, "octo/alpha", first.FullName)
	assert.Equal(t, "Go", first.PrimaryLanguage)
	assert.Equal(t, "trunk", first.DefaultBranch)
	require.NotNil(t, first.LastActivityAt)

	second := p.Repos[1]
	assert.Equal(t, "", second.Description)
	assert.Equal(t, "", second.PrimaryLanguage)
	assert.Equal(t, DefaultBranch, second.DefaultBranch)
	assert.Nil(t, second.LastActivityAt)
	assert.Equal(t, 0, second.Commits30d)
	assert.Empty(t, second.LanguageBreakdown)
}

func TestBuild_LanguageStats(t *testing.T) {
	repos := []model.Repo{
		{Language: "Go"}, {Language: "Rust"}, {Language: "Go"}, {}, {Language: "Haskell"},
	}
	p := Build(model.Profile{}, repos)

	require.Len(t, p.Languages, 3)
	assert.Equal(t, model.LanguageStats{Language: "Go", Percent: 50, ColorToken: "accent-amber"}, p.Languages[0])
	assert.Equal(t, model.LanguageStats{Language: "Rust", Percent: 25, ColorToken: "text-100"}, p.Languages[1])
	assert.Equal(t, model.LanguageStats{Language: "Haskell", Percent: 25, ColorToken: DefaultColorToken}, p.Languages[2])
}

func TestBuild_LanguageStats_TiesRoundToEven(t *testing.T) {
	repos := []model.Repo{{Language: "Go"}}
	for range 31 {
		repos = append(repos, model.Repo{Language: "Python"})
	}
	p := Build(model.Profile{}, repos)

	require.Len(t, p.Languages, 2)
	// 1/32 = 3.125 and 31/32 = 96.875, both exact ties
	assert.Equal(t, 3.12, p.Languages[0].Percent)
	assert.Equal(t, 96.88, p.Languages[1].Percent)
	assert.InDelta(t, 100.0, p.Languages[0].Percent+p.Languages[1].Percent, 1e-9)
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{3.125, 3.12},
		{96.875, 96.88},
		{0.375, 0.38},
		{25.1, 25.1},
		{-1.125, -1.12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, round2(tt.in), "round2(%v)", tt.in)
	}
}

func TestBuild_NoLanguages(t *testing.T) {
	p := Build(model.Profile{}, []model.Repo{{Name: "a"}, {Name: "b"}})
	assert.Empty(t, p.Languages)

	p = Build(model.Profile{}, nil)
	assert.Empty(t, p.Languages)
	assert.Empty(t, p.Repos)
	assert.Equal(t, 0, p.Totals.RepoCount)
}

func TestBuild_PercentagesSumToHundred(t *testing.T) {
	langs := []string{"Go", "Rust", "Python", "JavaScript", "TypeScript", "C", "Zig", ""}
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(60)
		repos := make([]model.Repo, n)
		declared := false
		for i := range repos {
			repos[i].Language = langs[rng.Intn(len(langs))]
			if repos[i].Language != "" {
				declared = true
			}
		}

		p := Build(model.Profile{}, repos)
		if !declared {
			assert.Empty(t, p.Languages)
			continue
		}
		sum := 0.0
		for _, l := range p.Languages {
			sum += l.Percent
		}
		assert.InDelta(t, 100.0, sum, 0.1, "round %d", round)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	profile := model.Profile{ID: 99, Followers: 3}
	a := Build(profile, sampleRepos())
	b := Build(profile, sampleRepos())
	assert.Equal(t, a, b)
}

func TestPosition_Rings(t *testing.T) {
	for i := 0; i < 40; i++ {
		x, y, z := Position(i, i*13)
		want := BaseRadius + float64(i/RingSize)*RingSpacing
		assert.Equal(t, want, RingRadius(i))
		// x and z are rounded to 2 decimals, so allow for that on the radius
		assert.InDelta(t, want, math.Hypot(x, z), 0.01, "index %d", i)
		assert.GreaterOrEqual(t, y, MinHeight)
		assert.LessOrEqual(t, y, MaxHeight)
	}

	assert.Equal(t, 8.0, RingRadius(7))
	assert.Equal(t, 12.0, RingRadius(8))
	assert.Equal(t, 12.0, RingRadius(15))
	assert.Equal(t, 16.0, RingRadius(16))
}

func TestPosition_HeightClamp(t *testing.T) {
	_, y, _ := Position(0, 0)
	assert.InDelta(t, 3.3, y, 1e-9)

	_, y, _ = Position(0, 1_000_000)
	assert.Equal(t, MaxHeight, y)

	_, y, _ = Position(0, -1)
	assert.Equal(t, MinHeight, y)
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint(1, 10, 3, 5)
	assert.Len(t, base, 64)
	assert.Equal(t, base, Fingerprint(1, 10, 3, 5))

	assert.NotEqual(t, base, Fingerprint(2, 10, 3, 5))
	assert.NotEqual(t, base, Fingerprint(1, 11, 3, 5))
	assert.NotEqual(t, base, Fingerprint(1, 10, 4, 5))
	assert.NotEqual(t, base, Fingerprint(1, 10, 3, 6))
}

func TestBuild_FingerprintFromTotals(t *testing.T) {
	p := Build(model.Profile{ID: 42, Followers: 7}, sampleRepos())
	assert.Equal(t, Fingerprint(42, 110, 3, 7), p.SourceHash)
}

func TestColorToken(t *testing.T) {
	tests := map[string]string{
		"JavaScript": "primary-cyan",
		"TypeScript": "primary-blue",
		"Python":     "accent-lime",
		"Go":         "accent-amber",
		"Rust":       "text-100",
		"COBOL":      "text-300",
		"":           "text-300",
	}
	for lang, want := range tests {
		assert.Equal(t, want, ColorToken(lang), lang)
	}
}
