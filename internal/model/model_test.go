package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"100", "100", 0},
		{"99", "100", -1},
		{"150", "100", 1},
		{"", "1", -1},
		{"", "", 0},
		{"1899999999999999999999", "999", 1},
		{"007", "7", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareIDs(tt.a, tt.b))
		})
	}
}

func TestMaxID(t *testing.T) {
	assert.Equal(t, "200", MaxID("200", "150"))
	assert.Equal(t, "200", MaxID("150", "200"))
	assert.Equal(t, "5", MaxID("", "5"))
	assert.Equal(t, "", MaxID("", ""))
}

func TestIsNumericID(t *testing.T) {
	assert.True(t, IsNumericID("1234567890"))
	assert.False(t, IsNumericID(""))
	assert.False(t, IsNumericID("12a"))
	assert.False(t, IsNumericID(" 12"))
}

func TestBatch_Username(t *testing.T) {
	b := &Batch{Users: map[string]User{"1": {ID: "1", Username: "alice"}}}

	assert.Equal(t, "alice", b.Username("1", "UnknownUser"))
	assert.Equal(t, "UnknownUser", b.Username("2", "UnknownUser"))

	var nilBatch *Batch
	assert.Equal(t, "x", nilBatch.Username("1", "x"))
}

func TestPreview(t *testing.T) {
	t.Run("flattens newlines", func(t *testing.T) {
		assert.Equal(t, "hello world #alxafrica", Preview("hello\nworld\n\n #alxafrica", 150))
	})

	t.Run("truncates long text", func(t *testing.T) {
		long := strings.Repeat("a", 200)
		got := Preview(long, 150)
		assert.Len(t, []rune(got), 150)
		assert.True(t, strings.HasSuffix(got, "..."))
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		text := strings.Repeat("é", 10)
		assert.Equal(t, text, Preview(text, 10))
	})
}

func TestKind_Valid(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.Valid())
	}
	assert.False(t, Kind("reply").Valid())
}
