// Package template deserialises a YAML crawl template into an in-memory
// node tree, validates its structural invariants, and flattens it into
// the ordered list of workflows the engine executes.
package template

import "github.com/crawltpl/crawltpl/script"

// Template is the loaded, validated form of a YAML crawl template. It is
// untyped with respect to the eventual bound record: the record type only
// enters at the engine.Run call site (see SPEC_FULL.md §5.C).
type Template struct {
	// EntrypointPattern is the (already text-script-processed, if the
	// YAML used the {url, script} form) entrypoint URL pattern,
	// containing ${name} placeholders still to be substituted at run
	// time.
	EntrypointPattern string

	// Parameters seeds the runtime variable store; it is the template's
	// `env` block.
	Parameters map[string][]string

	// Workflows[0] is always the entrypoint workflow (URLKey == "").
	// Workflows[1:] are derived workflows, one per request:true node
	// (nested ones included), in the order they were discovered by a
	// pre-order walk of the node tree.
	Workflows []*WorkflowRoot
}

// WorkflowRoot is one fetch-and-walk unit: either the entrypoint workflow
// or a derived workflow rooted at a request:true node's children.
type WorkflowRoot struct {
	// URLKey is "" for the entrypoint workflow. For a derived workflow it
	// names the variable whose captured values are the URLs to fetch.
	URLKey string
	Nodes  []*WorkflowNode
}

// WorkflowNode is one node of the executable tree: a name, a parsed
// script, and (for element-mode nodes) its children.
type WorkflowNode struct {
	Name     string
	Script   *script.Script
	Children []*WorkflowNode
}
