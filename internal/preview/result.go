package preview

import "github.com/nhle/linkfeed/internal/model"

// Outcome classifies what a resolution strategy produced.
type Outcome int

const (
	// Empty means the strategy ran but had nothing to offer, such as a
	// non-200 provider response or a provider error payload.
	Empty Outcome = iota
	// Found means Preview is set.
	Found
	// Failed means a network-level problem: timeout, DNS, open breaker or
	// a malformed response. Err is set.
	Failed
)

// String returns the lowercase outcome name.
func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Failed:
		return "failed"
	default:
		return "empty"
	}
}

// Result is the explicit return value of every resolution strategy.
type Result struct {
	Preview *model.LinkPreview
	Outcome Outcome
	Err     error
}

func found(p *model.LinkPreview) Result {
	if p == nil {
		return Result{Outcome: Empty}
	}
	return Result{Preview: p, Outcome: Found}
}

func empty() Result {
	return Result{Outcome: Empty}
}

func failed(err error) Result {
	return Result{Outcome: Failed, Err: err}
}
