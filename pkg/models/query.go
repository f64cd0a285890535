package models

import (
	"fmt"
	"unicode/utf8"
)

// MaxQueryCodePoints bounds query text length at validation time.
const MaxQueryCodePoints = 10000

// QueryOptions carries optional per-request generation knobs.
type QueryOptions struct {
	MaxTokens      *int     `json:"max_tokens,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	IncludeSources bool     `json:"include_sources,omitempty"`
	ForceRoute     string   `json:"force_route,omitempty"`
}

// Query is the immutable pipeline input.
type Query struct {
	Text      string        `json:"text"`
	UserID    string        `json:"user_id"`
	TenantID  string        `json:"tenant_id"`
	SessionID string        `json:"session_id,omitempty"`
	Options   *QueryOptions `json:"options,omitempty"`
}

// Validate checks the Query invariants. The HTTP layer validates before
// calling the orchestrator; the orchestrator re-checks cheaply.
func (q *Query) Validate() error {
	if q.Text == "" {
		return NewValidationError("text", "must not be empty")
	}
	if utf8.RuneCountInString(q.Text) > MaxQueryCodePoints {
		return NewValidationError("text", fmt.Sprintf("exceeds %d code points", MaxQueryCodePoints))
	}
	if q.UserID == "" {
		return NewValidationError("user_id", "must not be empty")
	}
	if q.TenantID == "" {
		return NewValidationError("tenant_id", "must not be empty")
	}
	return nil
}

// QueryPlan is the retrieval query set produced by expansion.
type QueryPlan struct {
	PrimaryText   string
	Variants      []string
	SkipExpansion bool
}

// All returns the primary text followed by the variants.
func (p *QueryPlan) All() []string {
	out := make([]string, 0, 1+len(p.Variants))
	out = append(out, p.PrimaryText)
	out = append(out, p.Variants...)
	return out
}
