package safety

import "context"

// GuardResult is the ML guard's verdict on the input text.
type GuardResult struct {
	Flagged bool
	Reason  string
}

// MLGuard is the optional second safety layer backed by a classification
// model. A flag is terminal, same as the regex layer.
type MLGuard interface {
	Check(ctx context.Context, text string) (GuardResult, error)
}
