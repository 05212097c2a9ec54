package script

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/crawltpl/crawltpl/crawlerr"
)

// pairState is one (string_channel, element_channel) pair threaded through
// an element/value pipeline, per spec §4.B.
type pairState struct {
	str  string
	elem *goquery.Selection // single-node selection; nil only in text mode
}

// EvaluateElements runs an element-mode pipeline and returns the resulting
// DOM handles. roots are the caller-supplied starting elements (document
// root, or a parent node's prior capture).
func (s *Script) EvaluateElements(roots []*goquery.Selection, vars Vars) ([]*goquery.Selection, error) {
	pairs, err := s.run(initialPairs(roots), vars)
	if err != nil {
		return nil, err
	}
	out := make([]*goquery.Selection, len(pairs))
	for i, pr := range pairs {
		out[i] = pr.elem
	}
	return out, nil
}

// EvaluateValues runs an element/value-mode pipeline and returns the
// captured string channel.
func (s *Script) EvaluateValues(roots []*goquery.Selection, vars Vars) ([]string, error) {
	pairs, err := s.run(initialPairs(roots), vars)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(pairs))
	for i, pr := range pairs {
		out[i] = pr.str
	}
	return out, nil
}

// EvaluateText runs a text-mode pipeline (transform/condition commands
// only) against a caller-supplied seed string, with no DOM involved.
func (s *Script) EvaluateText(seed string, vars Vars) (string, error) {
	state := []pairState{{str: seed}}
	for _, c := range s.commands {
		if c.isSelectorRule() || c.isAccessorRule() {
			return "", crawlerr.New(crawlerr.KindScriptParse, "text pipeline cannot contain DOM command: "+c.String())
		}
		var err error
		state, err = applyCommand(c, state, vars)
		if err != nil {
			return "", err
		}
		if len(state) == 0 {
			return "", nil
		}
	}
	return state[0].str, nil
}

func initialPairs(roots []*goquery.Selection) []pairState {
	pairs := make([]pairState, len(roots))
	for i, r := range roots {
		pairs[i] = pairState{elem: r}
	}
	return pairs
}

func (s *Script) run(state []pairState, vars Vars) ([]pairState, error) {
	for _, c := range s.commands {
		var err error
		state, err = applyCommand(c, state, vars)
		if err != nil {
			return nil, err
		}
		if len(state) == 0 {
			return nil, nil
		}
	}
	return state, nil
}

// applyCommand evaluates one command against the current pair list,
// following spec §4.B's numbered steps.
func applyCommand(c command, state []pairState, vars Vars) ([]pairState, error) {
	switch c.kind {
	case cmdSelector:
		return evalSelector(c, state, vars)
	case cmdParent:
		return evalParent(c, state)
	case cmdPrev:
		return evalSibling(c, state, false)
	case cmdNth:
		return evalSibling(c, state, true)
	case cmdHTML:
		for i := range state {
			html, err := goquery.OuterHtml(state[i].elem)
			if err != nil {
				return nil, crawlerr.Wrap(crawlerr.KindSelectorError, err, "failed to serialize element")
			}
			state[i].str = html
		}
		return state, nil
	case cmdVal:
		for i := range state {
			state[i].str = state[i].elem.Text()
		}
		return state, nil
	case cmdAttr:
		name, err := c.p1.resolve(vars)
		if err != nil {
			return nil, err
		}
		for i := range state {
			val, _ := state[i].elem.Attr(name)
			state[i].str = val
		}
		return state, nil
	case cmdReplace:
		from, err := c.p1.resolve(vars)
		if err != nil {
			return nil, err
		}
		to, err := c.p2.resolve(vars)
		if err != nil {
			return nil, err
		}
		for i := range state {
			state[i].str = strings.ReplaceAll(state[i].str, from, to)
		}
		return state, nil
	case cmdUppercase:
		for i := range state {
			state[i].str = strings.ToUpper(state[i].str)
		}
		return state, nil
	case cmdLowercase:
		for i := range state {
			state[i].str = strings.ToLower(state[i].str)
		}
		return state, nil
	case cmdInsert:
		val, err := c.p1.resolve(vars)
		if err != nil {
			return nil, err
		}
		for i := range state {
			state[i].str = insertAt(state[i].str, c.n, val)
		}
		return state, nil
	case cmdPrepend:
		val, err := c.p1.resolve(vars)
		if err != nil {
			return nil, err
		}
		for i := range state {
			state[i].str = val + state[i].str
		}
		return state, nil
	case cmdAppend:
		val, err := c.p1.resolve(vars)
		if err != nil {
			return nil, err
		}
		for i := range state {
			state[i].str = state[i].str + val
		}
		return state, nil
	case cmdDelete:
		val, err := c.p1.resolve(vars)
		if err != nil {
			return nil, err
		}
		for i := range state {
			state[i].str = strings.ReplaceAll(state[i].str, val, "")
		}
		return state, nil
	case cmdRegexExtract:
		pattern, err := c.p1.resolve(vars)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, crawlerr.Wrap(crawlerr.KindRegexParseError, err, "invalid regex: "+pattern)
		}
		for i := range state {
			state[i].str = strings.Join(re.FindAllString(state[i].str, -1), "")
		}
		return state, nil
	case cmdRegexReplace:
		pattern, err := c.p1.resolve(vars)
		if err != nil {
			return nil, err
		}
		replacement, err := c.p2.resolve(vars)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, crawlerr.Wrap(crawlerr.KindRegexParseError, err, "invalid regex: "+pattern)
		}
		for i := range state {
			state[i].str = re.ReplaceAllString(state[i].str, replacement)
		}
		return state, nil
	case cmdRegexMatch:
		pattern, err := c.p1.resolve(vars)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, crawlerr.Wrap(crawlerr.KindRegexParseError, err, "invalid regex: "+pattern)
		}
		kept := state[:0:0]
		for _, pr := range state {
			if re.MatchString(pr.str) {
				kept = append(kept, pr)
			}
		}
		return kept, nil
	case cmdEquals:
		want, err := c.p1.resolve(vars)
		if err != nil {
			return nil, err
		}
		kept := state[:0:0]
		for _, pr := range state {
			if pr.str == want {
				kept = append(kept, pr)
			}
		}
		return kept, nil
	default:
		return nil, crawlerr.New(crawlerr.KindScriptParse, "unhandled command kind")
	}
}

func evalSelector(c command, state []pairState, vars Vars) ([]pairState, error) {
	selText, err := c.p1.resolve(vars)
	if err != nil {
		return nil, err
	}
	sel, err := cascadia.Compile(selText)
	if err != nil {
		return nil, crawlerr.Wrap(crawlerr.KindSelectorError, err, "invalid CSS selector: "+selText)
	}

	var out []pairState
	for _, pr := range state {
		matches := pr.elem.FindMatcher(sel)
		matches.Each(func(_ int, m *goquery.Selection) {
			out = append(out, pairState{elem: m})
		})
	}
	return out, nil
}

func evalParent(c command, state []pairState) ([]pairState, error) {
	out := make([]pairState, len(state))
	for i, pr := range state {
		cur := pr.elem
		for step := 1; step <= c.n; step++ {
			next := cur.Parent()
			if next.Length() == 0 {
				return nil, crawlerr.Overflow(crawlerr.KindParentNodeOverflow, c.n, step-1)
			}
			cur = next
		}
		out[i] = pairState{str: pr.str, elem: cur}
	}
	return out, nil
}

// evalSibling implements both Prev(n) and Nth(n): collect element siblings
// in closest-to-farthest order and pick the n-th (1-based). Both
// directions report overflow as PrevNodeOverflow, matching the upstream
// implementation this is ported from.
func evalSibling(c command, state []pairState, forward bool) ([]pairState, error) {
	out := make([]pairState, len(state))
	for i, pr := range state {
		var siblings *goquery.Selection
		if forward {
			siblings = pr.elem.NextAll()
		} else {
			siblings = pr.elem.PrevAll()
		}
		if siblings.Length() < c.n {
			return nil, crawlerr.Overflow(crawlerr.KindPrevNodeOverflow, c.n, siblings.Length())
		}
		out[i] = pairState{str: pr.str, elem: siblings.Eq(c.n - 1)}
	}
	return out, nil
}

// insertAt inserts value into s at the given 0-based rune offset,
// clamping out-of-range offsets instead of failing (spec §8 documents no
// error for insert overflow, unlike parent/prev). Offsets are measured in
// runes, not bytes, for Unicode portability (see SPEC_FULL.md open
// question #3).
func insertAt(s string, at int, value string) string {
	runes := []rune(s)
	if at < 0 {
		at = 0
	}
	if at > len(runes) {
		at = len(runes)
	}
	return string(runes[:at]) + value + string(runes[at:])
}
