package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShareTokenValid(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name  string
		token *ShareToken
		want  bool
	}{
		{"nil token", nil, false},
		{"public without expiry", &ShareToken{IsPublic: true}, true},
		{"public with future expiry", &ShareToken{IsPublic: true, ExpiresAt: &future}, true},
		{"public with past expiry", &ShareToken{IsPublic: true, ExpiresAt: &past}, false},
		{"expiry exactly now", &ShareToken{IsPublic: true, ExpiresAt: &now}, false},
		{"private", &ShareToken{IsPublic: false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.token.Valid(now))
		})
	}
}

func TestWorldIsActive(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.True(t, (&World{Status: StatusReady, ExpiresAt: now.Add(time.Hour)}).IsActive(now))
	assert.False(t, (&World{Status: StatusReady, ExpiresAt: now.Add(-time.Hour)}).IsActive(now))
	assert.False(t, (&World{Status: StatusProcessing, ExpiresAt: now.Add(time.Hour)}).IsActive(now))
	assert.False(t, (&World{Status: StatusFailed, ExpiresAt: now.Add(time.Hour)}).IsActive(now))
}
