package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIDetect(t *testing.T) {
	detector := NewPIIDetector()

	tests := []struct {
		name      string
		text      string
		wantTypes []string
	}{
		{
			name:      "email",
			text:      "contact me at jane.doe@example.com please",
			wantTypes: []string{"email"},
		},
		{
			name:      "phone",
			text:      "call 555-867-5309 tomorrow",
			wantTypes: []string{"phone"},
		},
		{
			name:      "bare ssn format",
			text:      "the number is 123-45-6789",
			wantTypes: []string{"ssn"},
		},
		{
			name:      "keyword anchored passport",
			text:      "my passport number: X1234567 expires soon",
			wantTypes: []string{"passport"},
		},
		{
			name:      "multiple findings",
			text:      "email a@b.io or call 555-123-4567",
			wantTypes: []string{"email", "phone"},
		},
		{
			name:      "clean text",
			text:      "what is the retention policy",
			wantTypes: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := detector.Detect(tt.text)
			var types []string
			for _, f := range findings {
				types = append(types, f.Type)
			}
			assert.Equal(t, tt.wantTypes, types)
		})
	}
}

func TestPIIOverlapAnchoredWins(t *testing.T) {
	detector := NewPIIDetector()

	// The anchored ssn pattern covers "ssn: 123-45-6789"; the format-only
	// ssn pattern covers just the digits. The anchored one must win.
	findings := detector.Detect("ssn: 123-45-6789")
	require.Len(t, findings, 1)
	assert.Equal(t, "ssn", findings[0].Type)
	assert.Equal(t, 0, findings[0].SpanStart)
}

func TestPIIFindingsNonOverlapping(t *testing.T) {
	detector := NewPIIDetector()
	findings := detector.Detect("account number: 12345678901 and email x@y.dev and 10.0.0.1")

	for i := 1; i < len(findings); i++ {
		assert.GreaterOrEqual(t, findings[i].SpanStart, findings[i-1].SpanEnd,
			"findings must not overlap")
	}
}

func TestPIIRedact(t *testing.T) {
	detector := NewPIIDetector()

	text := "reach jane.doe@example.com or 555-867-5309"
	redacted := detector.Redact(text, detector.Detect(text))

	assert.Equal(t, "reach [EMAIL_REDACTED] or [PHONE_REDACTED]", redacted)
	assert.NotContains(t, redacted, "jane.doe")
}

func TestPIIRedactNoFindings(t *testing.T) {
	detector := NewPIIDetector()
	text := "nothing sensitive here"
	assert.Equal(t, text, detector.Redact(text, nil))
}
