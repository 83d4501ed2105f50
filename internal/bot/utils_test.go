package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input       string
		wantCommand string
		wantArgs    []string
	}{
		{"/history", "/history", []string{}},
		{"/edit@draftbot price $99", "/edit", []string{"price", "$99"}},
		{"  /key   draftingApiKey  abc ", "/key", []string{"draftingApiKey", "abc"}},
		{"", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			command, args := parseCommand(tt.input)
			assert.Equal(t, tt.wantCommand, command)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestCommandArgs(t *testing.T) {
	assert.Equal(t, "Lego 75192 | Toys", commandArgs("/item Lego 75192 | Toys"))
	assert.Equal(t, "two  spaces", commandArgs("/item   two  spaces  "))
	assert.Equal(t, "", commandArgs("/item"))
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"abc", "•••"},
		{"abcd", "••••"},
		{"AIzaSyD-secret-9f3k", "••••9f3k"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskSecret(tt.input), tt.input)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, "Mario\\_Kart \\*8\\* \\[deluxe\\] \\`x\\`", escapeMarkdown("Mario_Kart *8* [deluxe] `x`"))
}

func TestFormatReplyText(t *testing.T) {
	text := `
		Line %d
		  indented
	`
	assert.Equal(t, "Line 1\n  indented", formatReplyText(text, 1))
}

func TestPluralize(t *testing.T) {
	assert.Equal(t, "1 draft", pluralize("draft", "drafts", 1))
	assert.Equal(t, "0 drafts", pluralize("draft", "drafts", 0))
	assert.Equal(t, "3 drafts", pluralize("draft", "drafts", 3))
}
