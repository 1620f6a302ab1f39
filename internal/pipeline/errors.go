package pipeline

import "fmt"

// Kind classifies why a run stopped early.
type Kind int

const (
	// KindContent covers summarizer output the bot cannot use.
	KindContent Kind = iota + 1
	// KindDependency covers failing chat, summarizer or tracker calls.
	KindDependency
	// KindPolicy covers duplicate or misplaced triggers.
	KindPolicy
)

func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindDependency:
		return "dependency"
	case KindPolicy:
		return "policy"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// AbortError ends a run after the user has been told why.
type AbortError struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%s aborted (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

func abort(kind Kind, stage string, err error) *AbortError {
	return &AbortError{Kind: kind, Stage: stage, Err: err}
}
