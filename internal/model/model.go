package model

import (
	"strings"
	"unicode/utf8"
)

// Kind identifies one of the reciprocal actions the bot performs.
type Kind string

const (
	KindRetweet Kind = "retweet"
	KindLike    Kind = "like"
	KindFollow  Kind = "follow"
)

// Kinds lists every action kind in the order they are attempted for a post.
var Kinds = []Kind{KindRetweet, KindLike, KindFollow}

// Valid reports whether k is a known action kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRetweet, KindLike, KindFollow:
		return true
	}
	return false
}

// Post is a post returned by a search, or the original a reshare points to.
type Post struct {
	ID             string
	AuthorID       string
	AuthorUsername string
	Text           string
	Lang           string

	// RetweetOf holds the id of the referenced post when this post is a
	// plain retweet. Quotes and replies leave it empty.
	RetweetOf string
}

// IsReshare reports whether the post carries a retweeted-type reference.
func (p Post) IsReshare() bool {
	return p.RetweetOf != ""
}

// User is an account referenced by a search response.
type User struct {
	ID       string
	Username string
	Name     string
}

// Batch is one search response in typed form.
type Batch struct {
	Posts     []Post
	Users     map[string]User
	Originals map[string]Post
}

// Username returns the username for id, or fallback when it was not included.
func (b *Batch) Username(id, fallback string) string {
	if b == nil {
		return fallback
	}
	if u, ok := b.Users[id]; ok && u.Username != "" {
		return u.Username
	}
	return fallback
}

// CompareIDs orders two decimal post ids numerically without parsing them,
// so ids wider than 64 bits still compare correctly. The empty id sorts first.
func CompareIDs(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// MaxID returns the larger of two ids.
func MaxID(a, b string) string {
	if CompareIDs(a, b) >= 0 {
		return a
	}
	return b
}

// IsNumericID reports whether s is a non-empty string of ASCII digits.
func IsNumericID(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Preview flattens text onto one line and truncates it to max runes.
func Preview(text string, max int) string {
	flat := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(flat) <= max {
		return flat
	}
	runes := []rune(flat)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
