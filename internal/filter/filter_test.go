package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Check(t *testing.T) {
	f := New(Config{
		Languages:        []string{"en", "ES"},
		NegativeKeywords: []string{"Buy Now", "crypto scam"},
		BlockedUsers:     []string{"@SpamUser1", " anotherbot "},
	})

	tests := []struct {
		name     string
		text     string
		username string
		lang     string
		wantSkip bool
		wantRule string
	}{
		{"passes clean post", "hello #alxafrica", "alice", "en", false, ""},
		{"allowed language is case-insensitive", "hola", "alice", "es", false, ""},
		{"unknown language passes", "hello", "alice", "", false, ""},
		{"other language skipped", "bonjour", "alice", "fr", true, RuleLanguage},
		{"keyword match ignores case", "BUY NOW while stocks last", "alice", "en", true, RuleKeyword},
		{"blocked user ignores case and @", "hello", "SPAMUSER1", "en", true, RuleBlocklist},
		{"trimmed block entry", "hello", "anotherbot", "en", true, RuleBlocklist},
		{"language wins over keyword", "buy now", "spamuser1", "fr", true, RuleLanguage},
		{"keyword wins over blocklist", "crypto scam alert", "spamuser1", "en", true, RuleKeyword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.text, tt.username, tt.lang)
			assert.Equal(t, tt.wantSkip, result.Skip)
			assert.Equal(t, tt.wantRule, result.Rule)
			assert.Equal(t, tt.wantSkip, f.ShouldSkip(tt.text, tt.username, tt.lang))
		})
	}
}

func TestFilter_LanguageRuleIgnoresOtherFields(t *testing.T) {
	f := New(Config{Languages: []string{"en"}})

	for _, lang := range []string{"fr", "de", "ja", "PT"} {
		assert.True(t, f.ShouldSkip("", "", lang), lang)
		assert.True(t, f.ShouldSkip("perfectly fine text", "alice", lang), lang)
	}
}

func TestFilter_EmptyConfig(t *testing.T) {
	f := New(Config{})

	assert.False(t, f.ShouldSkip("anything goes", "anyone", "xx"))
	assert.Empty(t, f.Languages())
}

func TestFilter_DropsBlankTerms(t *testing.T) {
	f := New(Config{
		Languages:        []string{" ", ""},
		NegativeKeywords: []string{"", "  "},
	})

	// Blank keywords must not match every post
	assert.False(t, f.ShouldSkip("hello", "alice", "fr"))
}
