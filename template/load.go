package template

import (
	"gopkg.in/yaml.v3"

	"github.com/crawltpl/crawltpl/crawlerr"
	"github.com/crawltpl/crawltpl/script"
)

// rawNode is the loader's intermediate form of one YAML node, before it is
// validated and converted into the executable WorkflowNode tree. Keeping
// this separate from WorkflowNode lets a request:true node appear as a
// childless leaf in its parent workflow while its raw children become the
// full node list of its own derived workflow.
type rawNode struct {
	Name     string
	Script   *script.Script
	Request  bool
	Children []*rawNode
}

// envVars adapts a plain map to script.Vars, for evaluating the
// entrypoint's optional text-mode post-processing script against the
// env block (caller parameters are not yet known at load time).
type envVars map[string][]string

func (v envVars) Resolve(name string) ([]string, bool) {
	vals, ok := v[name]
	return vals, ok
}

// Load deserialises a YAML template, validates its structural invariants
// (key uniqueness, root-node rules), and flattens it into an executable
// Template. See spec §4.C.
func Load(yamlText []byte) (*Template, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(yamlText, &doc); err != nil {
		return nil, crawlerr.Wrap(crawlerr.KindTemplateFormat, err, "invalid YAML")
	}
	if len(doc.Content) == 0 {
		return nil, crawlerr.New(crawlerr.KindTemplateFormat, "empty template document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, crawlerr.New(crawlerr.KindTemplateFormat, "template document must be a mapping")
	}

	var entrypointNode, nodesNode, envNode *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		val := root.Content[i+1]
		switch key {
		case "entrypoint":
			entrypointNode = val
		case "nodes":
			nodesNode = val
		case "env":
			envNode = val
		}
	}
	if entrypointNode == nil {
		return nil, crawlerr.New(crawlerr.KindTemplateFormat, "template is missing required 'entrypoint' key")
	}
	if nodesNode == nil {
		return nil, crawlerr.New(crawlerr.KindTemplateFormat, "template is missing required 'nodes' key")
	}

	env := map[string][]string{}
	if envNode != nil {
		if err := envNode.Decode(&env); err != nil {
			return nil, crawlerr.Wrap(crawlerr.KindTemplateFormat, err, "invalid 'env' block")
		}
	}

	seen := map[string]bool{}
	topNodes, err := decodeNodeMap(nodesNode, seen)
	if err != nil {
		return nil, err
	}

	entrypointPattern, err := resolveEntrypoint(entrypointNode, env)
	if err != nil {
		return nil, err
	}

	workflows := []*WorkflowRoot{{URLKey: "", Nodes: convertNodes(topNodes)}}
	collectDerivedWorkflows(topNodes, &workflows)

	return &Template{
		EntrypointPattern: entrypointPattern,
		Parameters:        env,
		Workflows:         workflows,
	}, nil
}

// decodeNodeMap decodes a YAML mapping of name -> node, in document order,
// enforcing global key uniqueness via seen (shared across the whole
// recursive descent, since node names form a single flat namespace).
func decodeNodeMap(node *yaml.Node, seen map[string]bool) ([]*rawNode, error) {
	if node.Kind != yaml.MappingNode {
		return nil, crawlerr.New(crawlerr.KindTemplateFormat, "expected a mapping of node name to node definition")
	}

	var out []*rawNode
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if seen[name] {
			return nil, crawlerr.New(crawlerr.KindDuplicateKey, "duplicate node name: "+name)
		}
		seen[name] = true

		rn, err := decodeRawNode(name, node.Content[i+1], seen)
		if err != nil {
			return nil, err
		}
		out = append(out, rn)
	}
	return out, nil
}

// decodeRawNode decodes one node, which is either a bare script string
// (shorthand for {script: s, request: false}) or a full mapping.
func decodeRawNode(name string, node *yaml.Node, seen map[string]bool) (*rawNode, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		sc, err := script.Parse(node.Value, false)
		if err != nil {
			return nil, annotateNode(err, name)
		}
		return &rawNode{Name: name, Script: sc}, nil

	case yaml.MappingNode:
		var scriptText string
		var haveScript bool
		var request bool
		var childrenNode *yaml.Node

		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			val := node.Content[i+1]
			switch key {
			case "script":
				scriptText = val.Value
				haveScript = true
			case "request":
				if err := val.Decode(&request); err != nil {
					return nil, crawlerr.Wrap(crawlerr.KindTemplateFormat, err, "node '"+name+"': invalid 'request' value")
				}
			case "children":
				childrenNode = val
			}
		}
		if !haveScript {
			return nil, crawlerr.New(crawlerr.KindTemplateFormat, "node '"+name+"' is missing required 'script' key")
		}

		sc, err := script.Parse(scriptText, false)
		if err != nil {
			return nil, annotateNode(err, name)
		}

		var children []*rawNode
		if childrenNode != nil && len(childrenNode.Content) > 0 {
			children, err = decodeNodeMap(childrenNode, seen)
			if err != nil {
				return nil, err
			}
		}

		if sc.Mode() == script.ModeValue && len(children) > 0 && !request {
			return nil, crawlerr.New(crawlerr.KindRootElementAccessNotAllowed,
				"node '"+name+"' captures a value and has children but is not marked request: true")
		}

		return &rawNode{Name: name, Script: sc, Request: request, Children: children}, nil

	default:
		return nil, crawlerr.New(crawlerr.KindTemplateFormat, "node '"+name+"' must be a string or a mapping")
	}
}

func annotateNode(err error, name string) error {
	if ce, ok := err.(*crawlerr.Error); ok {
		return ce.WithNode(name)
	}
	return err
}

// convertNodes converts a raw node list into its executable form, in
// source order.
func convertNodes(raw []*rawNode) []*WorkflowNode {
	out := make([]*WorkflowNode, len(raw))
	for i, r := range raw {
		out[i] = convertNode(r)
	}
	return out
}

// convertNode converts one raw node. A request:true node's children are
// dropped here (empty in its parent workflow) because they instead become
// the node list of a freshly created derived WorkflowRoot — see
// collectDerivedWorkflows. The node itself appears in both places, as
// spec §4.C describes.
func convertNode(r *rawNode) *WorkflowNode {
	wn := &WorkflowNode{Name: r.Name, Script: r.Script}
	if !r.Request {
		wn.Children = convertNodes(r.Children)
	}
	return wn
}

// collectDerivedWorkflows finds every request:true node by a pre-order
// walk and appends one WorkflowRoot per node found. The walk also
// descends into a request node's own children, so a request node nested
// under another gets a derived workflow that runs after its parent's.
func collectDerivedWorkflows(nodes []*rawNode, workflows *[]*WorkflowRoot) {
	for _, n := range nodes {
		if n.Request {
			*workflows = append(*workflows, &WorkflowRoot{
				URLKey: n.Name,
				Nodes:  convertNodes(n.Children),
			})
		}
		if len(n.Children) > 0 {
			collectDerivedWorkflows(n.Children, workflows)
		}
	}
}

// resolveEntrypoint handles both entrypoint shapes from spec §4.C step 2:
// a bare URL pattern, or {url, script} where script post-processes url
// through a text-mode pipeline with access to env.
func resolveEntrypoint(node *yaml.Node, env map[string][]string) (string, error) {
	if node.Kind == yaml.ScalarNode {
		return node.Value, nil
	}
	if node.Kind != yaml.MappingNode {
		return "", crawlerr.New(crawlerr.KindTemplateFormat, "'entrypoint' must be a string or a {url, script} mapping")
	}

	var url, scriptText string
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		switch key {
		case "url":
			url = val.Value
		case "script":
			scriptText = val.Value
		}
	}
	if scriptText == "" {
		return url, nil
	}

	sc, err := script.Parse(scriptText, true)
	if err != nil {
		return "", err
	}
	return sc.EvaluateText(url, envVars(env))
}
