package safety

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PIIFinding is one detected span of personally identifiable information.
type PIIFinding struct {
	Type      string
	SpanStart int
	SpanEnd   int
}

// piiPattern couples a PII type with its regex. Anchored patterns carry a
// preceding domain keyword inside the expression (e.g. "passport"); on
// overlapping matches an anchored pattern beats a format-only one.
type piiPattern struct {
	piiType  string
	regex    *regexp.Regexp
	anchored bool
}

// PIIDetector finds and redacts PII. Detection is advisory: the pipeline
// surfaces findings but does not block on them unless config says so.
type PIIDetector struct {
	patterns []piiPattern
}

// NewPIIDetector compiles the built-in PII pattern set.
func NewPIIDetector() *PIIDetector {
	return &PIIDetector{patterns: builtinPIIPatterns()}
}

// Detect returns non-overlapping findings ordered by span start.
// Overlaps resolve by keyword-anchored specificity, then by earlier
// start, then by longer match.
func (d *PIIDetector) Detect(text string) []PIIFinding {
	type candidate struct {
		PIIFinding
		anchored bool
	}

	var candidates []candidate
	for _, p := range d.patterns {
		for _, loc := range p.regex.FindAllStringIndex(text, -1) {
			candidates = append(candidates, candidate{
				PIIFinding: PIIFinding{Type: p.piiType, SpanStart: loc[0], SpanEnd: loc[1]},
				anchored:   p.anchored,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].anchored != candidates[j].anchored {
			return candidates[i].anchored
		}
		if candidates[i].SpanStart != candidates[j].SpanStart {
			return candidates[i].SpanStart < candidates[j].SpanStart
		}
		return candidates[i].SpanEnd > candidates[j].SpanEnd
	})

	var accepted []PIIFinding
	for _, c := range candidates {
		overlaps := false
		for _, a := range accepted {
			if c.SpanStart < a.SpanEnd && a.SpanStart < c.SpanEnd {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, c.PIIFinding)
		}
	}

	sort.Slice(accepted, func(i, j int) bool {
		return accepted[i].SpanStart < accepted[j].SpanStart
	})
	return accepted
}

// Redact replaces each finding with a [TYPE_REDACTED] marker. Findings
// must be non-overlapping (as produced by Detect).
func (d *PIIDetector) Redact(text string, findings []PIIFinding) string {
	if len(findings) == 0 {
		return text
	}

	sorted := make([]PIIFinding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SpanStart < sorted[j].SpanStart
	})

	var b strings.Builder
	last := 0
	for _, f := range sorted {
		if f.SpanStart < last {
			continue
		}
		b.WriteString(text[last:f.SpanStart])
		b.WriteString(fmt.Sprintf("[%s_REDACTED]", strings.ToUpper(f.Type)))
		last = f.SpanEnd
	}
	b.WriteString(text[last:])
	return b.String()
}

func builtinPIIPatterns() []piiPattern {
	compile := func(piiType, expr string, anchored bool) piiPattern {
		return piiPattern{piiType: piiType, regex: regexp.MustCompile(expr), anchored: anchored}
	}
	return []piiPattern{
		// Keyword-anchored patterns: a domain word precedes the value.
		compile("passport", `(?i)\bpassport(\s+(number|no\.?|#))?\s*[:\s]\s*[A-Z0-9]{6,9}\b`, true),
		compile("ssn", `(?i)\b(ssn|social\s+security(\s+number)?)\s*[:\s]\s*\d{3}-?\d{2}-?\d{4}\b`, true),
		compile("account", `(?i)\b(account|acct)(\s+(number|no\.?|#))?\s*[:\s]\s*\d{8,17}\b`, true),

		// Format-only patterns.
		compile("email", `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`, false),
		compile("phone", `\b(\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}\b`, false),
		compile("ssn", `\b\d{3}-\d{2}-\d{4}\b`, false),
		compile("credit_card", `\b(?:\d[ \-]?){13,16}\b`, false),
		compile("ip_address", `\b(?:\d{1,3}\.){3}\d{1,3}\b`, false),
	}
}
