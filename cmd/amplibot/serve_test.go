package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/amplibot/internal/config"
)

func TestApplyServeFlags(t *testing.T) {
	cfg := &config.Config{
		Query:            "#alxafrica",
		MaxResults:       10,
		PerformRetweet:   true,
		PerformLike:      true,
		PerformFollow:    true,
		TargetLanguages:  []string{"en"},
		NegativeKeywords: []string{"buy now"},
		UserBlocklist:    []string{"spamuser1"},
	}

	require.NoError(t, serveCmd.ParseFlags([]string{
		"--query", "#golang",
		"--max-results", "25",
		"--follow=false",
		"--languages", "en, fr",
		"--blocklist", "-",
	}))
	applyServeFlags(serveCmd, cfg)

	assert.Equal(t, "#golang", cfg.Query)
	assert.Equal(t, 25, cfg.MaxResults)
	assert.True(t, cfg.PerformRetweet)
	assert.True(t, cfg.PerformLike)
	assert.False(t, cfg.PerformFollow)
	assert.Equal(t, []string{"en", "fr"}, cfg.TargetLanguages)
	assert.Equal(t, []string{"buy now"}, cfg.NegativeKeywords, "unset flag keeps config")
	assert.Nil(t, cfg.UserBlocklist)
}
