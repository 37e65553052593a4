package filter

import (
	"strings"
)

// Rule names reported in Result.Rule.
const (
	RuleLanguage  = "language"
	RuleKeyword   = "keyword"
	RuleBlocklist = "blocklist"
)

// Filter decides whether a discovered post should be left alone.
type Filter struct {
	languages []string
	keywords  []string
	blocked   map[string]struct{}
}

// Config holds filter configuration.
type Config struct {
	// Languages is the allow-list of post languages. Empty disables the rule.
	Languages []string

	// NegativeKeywords are phrases that disqualify a post when found in its text.
	NegativeKeywords []string

	// BlockedUsers are usernames whose posts are never acted on.
	BlockedUsers []string
}

// New creates a new filter.
func New(cfg Config) *Filter {
	f := &Filter{
		languages: normalize(cfg.Languages, ""),
		keywords:  normalize(cfg.NegativeKeywords, ""),
		blocked:   make(map[string]struct{}, len(cfg.BlockedUsers)),
	}

	for _, name := range normalize(cfg.BlockedUsers, "@") {
		f.blocked[name] = struct{}{}
	}

	return f
}

// Result contains the filter decision.
type Result struct {
	Skip   bool
	Rule   string
	Detail string
}

// Check evaluates the rules in order and returns the first match.
func (f *Filter) Check(text, username, lang string) Result {
	// Language allow-list; unknown languages pass
	if len(f.languages) > 0 && lang != "" {
		l := strings.ToLower(lang)
		allowed := false
		for _, want := range f.languages {
			if l == want {
				allowed = true
				break
			}
		}
		if !allowed {
			return Result{Skip: true, Rule: RuleLanguage, Detail: l}
		}
	}

	lowered := strings.ToLower(text)
	for _, kw := range f.keywords {
		if strings.Contains(lowered, kw) {
			return Result{Skip: true, Rule: RuleKeyword, Detail: kw}
		}
	}

	if _, ok := f.blocked[strings.ToLower(username)]; ok {
		return Result{Skip: true, Rule: RuleBlocklist, Detail: username}
	}

	return Result{}
}

// ShouldSkip reports whether any rule matches.
func (f *Filter) ShouldSkip(text, username, lang string) bool {
	return f.Check(text, username, lang).Skip
}

// Languages returns the normalized allow-list.
func (f *Filter) Languages() []string {
	out := make([]string, len(f.languages))
	copy(out, f.languages)
	return out
}

func normalize(terms []string, trimPrefix string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if trimPrefix != "" {
			term = strings.TrimPrefix(term, trimPrefix)
		}
		if term == "" {
			continue
		}
		out = append(out, term)
	}
	return out
}
