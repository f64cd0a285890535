package compress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "simple",
			text: "First sentence. Second sentence. Third.",
			want: []string{"First sentence.", "Second sentence.", "Third."},
		},
		{
			name: "abbreviation not a boundary",
			text: "Dr. Smith approved the change. It ships Friday.",
			want: []string{"Dr. Smith approved the change.", "It ships Friday."},
		},
		{
			name: "decimal number",
			text: "The rate is 3.5 percent. It was lower before.",
			want: []string{"The rate is 3.5 percent.", "It was lower before."},
		},
		{
			name: "question and exclamation",
			text: "Is it done? Yes! Ship it.",
			want: []string{"Is it done?", "Yes!", "Ship it."},
		},
		{
			name: "cjk terminators",
			text: "これは文です。もう一つ。",
			want: []string{"これは文です。", "もう一つ。"},
		},
		{
			name: "newline boundary",
			text: "line one\nline two",
			want: []string{"line one", "line two"},
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.text))
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 3, EstimateTokens("twelve chars"))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42"}, Tokenize("Hello, world! 42"))
}
