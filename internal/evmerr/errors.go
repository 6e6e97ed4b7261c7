// Package evmerr defines the typed error taxonomy surfaced by preprocess:
// input validation, composition, stack-reference, internal, host-evaluator,
// and label-resolution errors, each optionally carrying the script source
// position of the helper call that raised it.
package evmerr

import (
	"fmt"

	"github.com/tcoulter/evmscript/internal/dsl/token"
)

// Kind categorizes an Error per spec §7.
type Kind int

const (
	InputValidation Kind = iota
	Composition
	StackReference
	Internal
	HostEvaluator
	LabelResolution
)

func (k Kind) String() string {
	switch k {
	case InputValidation:
		return "InputValidation"
	case Composition:
		return "Composition"
	case StackReference:
		return "StackReference"
	case Internal:
		return "Internal"
	case HostEvaluator:
		return "HostEvaluator"
	case LabelResolution:
		return "LabelResolution"
	default:
		return "Unknown"
	}
}

// Error is the concrete type returned for every compile failure. It always
// identifies its Kind and, whenever the failure originated at a helper call
// site, the helper's Name and source Pos.
type Error struct {
	Kind Kind
	Name string // helper or expression-helper name, if applicable
	Pos  token.Pos
	Msg  string
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	loc := ""
	if !e.Pos.Unknown() {
		loc = e.Pos.String() + ": "
	}
	name := ""
	if e.Name != "" {
		name = e.Name + "(): "
	}
	if e.Err != nil {
		return fmt.Sprintf("%s%s%s: %s%s", loc, e.Kind, name, e.Msg, wrapSuffix(e.Err))
	}
	return fmt.Sprintf("%s%s%s%s", loc, e.Kind, name, e.Msg)
}

func wrapSuffix(err error) string {
	if err == nil {
		return ""
	}
	return ": " + err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an *Error of the given kind with no helper name or position
// attached (used for errors raised outside of a specific helper call, such
// as during the processor's offset-resolution pass).
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// At creates an *Error attributed to a helper call at pos.
func At(kind Kind, name string, pos token.Pos, format string, args ...any) *Error {
	return &Error{Kind: kind, Name: name, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}
