// Package bind implements the record binder contract from spec §4.E: once
// a crawl finishes, the engine's flat map of captured variable names to
// string slices must be converted into the caller's own record type.
//
// The reference implementation expresses this contract as a derive macro
// that generates a field-by-field setter; Go has no macros, so the
// contract here is a plain interface plus a reflection-based helper that
// most Binder implementations can defer to from a one-line method body.
package bind

import "github.com/crawltpl/crawltpl/crawlerr"

// Binder is implemented by the caller-supplied record type. engine.Run is
// generic over Binder so a crawl's result type is known at the call site,
// not boxed behind an interface{}.
type Binder interface {
	// BindCrawlVars populates the receiver from the engine's final
	// variable store snapshot. Implementations typically call Struct on
	// themselves using struct tags; see Struct's doc comment.
	BindCrawlVars(vars map[string][]string) error
}
