// Package safety implements the input safety stage: prompt-injection
// detection, advisory PII detection and redaction, and the optional
// ML guard hook.
package safety

import (
	"regexp"
	"strings"
)

// InjectionResult reports whether the text matched an attack pattern.
type InjectionResult struct {
	Flagged          bool
	MatchedPatternID string
}

// injectionPattern pairs an opaque pattern id with its compiled regex.
// IDs are grouped by attack category; the id is recorded in span
// attributes but its meaning is internal.
type injectionPattern struct {
	id    string
	regex *regexp.Regexp
}

// InjectionDetector matches query text against an ordered set of attack
// patterns. First match wins; detection is idempotent and does no I/O.
type InjectionDetector struct {
	patterns []injectionPattern
}

// NewInjectionDetector compiles the built-in pattern set.
func NewInjectionDetector() *InjectionDetector {
	return &InjectionDetector{patterns: builtinInjectionPatterns()}
}

// Detect returns the first matching pattern, if any. Repetition floods
// need structural awareness regexps cannot express and are checked in
// code after the pattern table.
func (d *InjectionDetector) Detect(text string) InjectionResult {
	for _, p := range d.patterns {
		if p.regex.MatchString(text) {
			return InjectionResult{Flagged: true, MatchedPatternID: p.id}
		}
	}
	if isRepetitionFlood(text) {
		return InjectionResult{Flagged: true, MatchedPatternID: "flood:repeated_token"}
	}
	return InjectionResult{}
}

// floodRunLength is the longest run of consecutive identical tokens that
// is tolerated; a longer run is a repetition flood.
const floodRunLength = 20

func isRepetitionFlood(text string) bool {
	fields := strings.Fields(text)
	run := 1
	for i := 1; i < len(fields); i++ {
		if strings.EqualFold(fields[i], fields[i-1]) {
			run++
			if run > floodRunLength {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// builtinInjectionPatterns returns the ordered pattern set, grouped by
// attack category. Order matters: more specific categories first.
func builtinInjectionPatterns() []injectionPattern {
	compile := func(id, expr string) injectionPattern {
		return injectionPattern{id: id, regex: regexp.MustCompile(expr)}
	}
	return []injectionPattern{
		// Override attempts.
		compile("override:ignore_previous", `(?i)\bignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)\b`),
		compile("override:disregard", `(?i)\bdisregard\s+(all\s+)?(previous|prior|your)\s+(instructions?|guidelines?)\b`),
		compile("override:forget", `(?i)\bforget\s+(everything|all|your)\s+(you|instructions?|rules?)`),
		compile("override:reveal_prompt", `(?i)\b(reveal|show|print|repeat|output)\b.{0,40}\b(system\s+prompt|initial\s+instructions?|hidden\s+instructions?)\b`),

		// Role elevation.
		compile("role:act_as", `(?i)\b(act|behave|respond)\s+as\s+(an?\s+)?(unrestricted|unfiltered|jailbroken|developer|root|admin)`),
		compile("role:you_are_now", `(?i)\byou\s+are\s+now\s+(an?\s+)?(unrestricted|unfiltered|different|new)\b`),
		compile("role:dan", `(?i)\b(DAN|do\s+anything\s+now)\s+mode\b`),

		// Separator injection.
		compile("separator:fence", "(?s)```.{0,20}(system|assistant)\\s*:"),
		compile("separator:chat_markup", `(?i)<[|/\s]*(system|assistant|im_start|im_end)[|/\s]*>`),
		compile("separator:inline_role", `(?im)^\s*(system|assistant)\s*:\s+`),

		// Encoded evasion.
		compile("encoded:base64_blob", `\b[A-Za-z0-9+/]{80,}={0,2}\b`),
		compile("encoded:unicode_escape", `(?:\\u[0-9a-fA-F]{4}){8,}`),
	}
}
