package template

import (
	"fmt"
	"regexp"
	"strings"
)

// Issue is one actionable validation finding, in the spirit of the
// teacher codebase's ValidationResult: not every issue here is fatal at
// Load time (Load already enforces the hard structural invariants), but
// these catch template-authoring mistakes that would otherwise only
// surface as a run-time soft-miss or a dynamic-parameter error deep into
// a crawl.
type Issue struct {
	Node    string
	Message string
}

func (i Issue) String() string {
	if i.Node != "" {
		return fmt.Sprintf("%s: %s", i.Node, i.Message)
	}
	return i.Message
}

var placeholderPattern = regexp.MustCompile(`\$\{([a-zA-Z0-9_]+)\}`)

// Lint performs best-effort structural checks beyond what Load already
// enforces, returning advisory issues rather than failing the load.
// Unlike Load's errors, these are never fatal: a caller-supplied
// parameter not present in env is entirely legal (spec §4.D merges
// caller params in at run time), so an unresolved placeholder here is
// reported, not rejected.
func Lint(tpl *Template) []Issue {
	var issues []Issue

	declaredURLKeys := map[string]bool{}
	for _, wf := range tpl.Workflows {
		if wf.URLKey != "" {
			declaredURLKeys[wf.URLKey] = true
		}
	}

	for _, name := range placeholderPattern.FindAllStringSubmatch(tpl.EntrypointPattern, -1) {
		key := name[1]
		if _, ok := tpl.Parameters[key]; !ok {
			issues = append(issues, Issue{
				Message: "entrypoint references ${" + key + "}, which is not present in env (must be supplied as a caller parameter at run time)",
			})
		}
	}

	for _, wf := range tpl.Workflows {
		if wf.URLKey == "" {
			continue
		}
		if !nodeNameExists(tpl.Workflows, wf.URLKey) {
			issues = append(issues, Issue{
				Node:    wf.URLKey,
				Message: "derived workflow has no corresponding value-capturing node with this name",
			})
		}
	}

	return issues
}

func nodeNameExists(workflows []*WorkflowRoot, name string) bool {
	for _, wf := range workflows {
		if walkForName(wf.Nodes, name) {
			return true
		}
	}
	return false
}

func walkForName(nodes []*WorkflowNode, name string) bool {
	for _, n := range nodes {
		if n.Name == name {
			return true
		}
		if walkForName(n.Children, name) {
			return true
		}
	}
	return false
}

// FormatIssues renders all issues, one per line, for display or for feeding
// back to a template author.
func FormatIssues(issues []Issue) string {
	lines := make([]string, len(issues))
	for i, iss := range issues {
		lines[i] = iss.String()
	}
	return strings.Join(lines, "\n")
}
