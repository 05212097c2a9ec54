// Package crawlerr defines the structured error surface used across the
// crawltpl engine: a single tagged error type covering template parsing,
// script evaluation, HTTP, and record-binding failures.
package crawlerr

import "fmt"

// Kind classifies an Error. Callers should switch on Kind rather than
// compare error strings.
type Kind int

const (
	// KindUnknown is the zero value and should never appear on a
	// constructed Error.
	KindUnknown Kind = iota

	// Template load / parse failures.
	KindTemplateFormat
	KindScriptParse
	KindCharProcessAlone
	KindDuplicateKey
	KindRootElementAccessNotAllowed

	// Selector / traversal / regex evaluation failures.
	KindSelectorError
	KindRegexParseError
	KindParentNodeOverflow
	KindPrevNodeOverflow
	KindNodeNotFound

	// Dynamic variable resolution failures.
	KindDynNotInitialised
	KindDynNoValidData
	KindDynMultipleResults
	KindMultipleEntrypointParameter

	// Transport failures.
	KindHTTPError

	// Record binding failures.
	KindMissingField
	KindInvalidValueCount
	KindConversionFailed
)

// String renders a Kind as its wire/log name, e.g. "DynNoValidData".
func (k Kind) String() string {
	switch k {
	case KindTemplateFormat:
		return "TemplateFormat"
	case KindScriptParse:
		return "ScriptParse"
	case KindCharProcessAlone:
		return "CharProcessAlone"
	case KindDuplicateKey:
		return "DuplicateKey"
	case KindRootElementAccessNotAllowed:
		return "RootElementAccessNotAllowed"
	case KindSelectorError:
		return "SelectorError"
	case KindRegexParseError:
		return "RegexParseError"
	case KindParentNodeOverflow:
		return "ParentNodeOverflow"
	case KindPrevNodeOverflow:
		return "PrevNodeOverflow"
	case KindNodeNotFound:
		return "NodeNotFound"
	case KindDynNotInitialised:
		return "DynNotInitialised"
	case KindDynNoValidData:
		return "DynNoValidData"
	case KindDynMultipleResults:
		return "DynMultipleResults"
	case KindMultipleEntrypointParameter:
		return "MultipleEntrypointParameterError"
	case KindHTTPError:
		return "HttpError"
	case KindMissingField:
		return "MissingField"
	case KindInvalidValueCount:
		return "InvalidValueCount"
	case KindConversionFailed:
		return "ConversionFailed"
	default:
		return "Unknown"
	}
}

// Error is the single error type produced by every crawltpl package. It
// carries enough structured payload to reconstruct any of the variants
// named in spec §4.F without resorting to string matching.
type Error struct {
	Kind    Kind
	Message string

	// Node names the template node, field, or variable involved, when
	// applicable.
	Node string

	// Wanted/Got carry the requested/actual counts for overflow and
	// value-count errors (ParentNodeOverflow, PrevNodeOverflow,
	// InvalidValueCount, DynMultipleResults).
	Wanted int
	Got    int

	// Err is the wrapped cause, when this Error is reporting a failure
	// from a lower layer (selector compile, regexp.Compile, HTTP
	// transport, strconv conversion).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Node != "" && e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Message, e.Node, e.Err)
	}
	if e.Node != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Node)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error around a lower-level cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// WithNode returns a copy of e with Node set, for attaching template
// context to an error as it propagates up the node tree.
func (e *Error) WithNode(node string) *Error {
	cp := *e
	cp.Node = node
	return &cp
}

// Overflow builds one of ParentNodeOverflow / PrevNodeOverflow.
func Overflow(kind Kind, requested, actual int) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf("requested index %d exceeds available count %d", requested, actual),
		Wanted:  requested,
		Got:     actual,
	}
}

// Is reports whether err is a *Error of the given kind, unwrapping as
// needed. It lets callers write crawlerr.Is(err, crawlerr.KindHTTPError)
// without importing the standard errors package at every call site.
func Is(err error, kind Kind) bool {
	for err != nil {
		if ce, ok := err.(*Error); ok {
			if ce.Kind == kind {
				return true
			}
			err = ce.Err
			continue
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
