package script

import (
	"strconv"
	"strings"

	"github.com/crawltpl/crawltpl/crawlerr"
)

// Script is a parsed, classified command pipeline produced by Parse. The
// zero value is not usable; construct with Parse.
type Script struct {
	raw      string
	mode     Mode
	commands []command
}

// Mode returns the script's classification.
func (s *Script) Mode() Mode { return s.mode }

// Raw returns the original source text the script was parsed from.
func (s *Script) Raw() string { return s.raw }

// String renders a canonical, re-parseable form of the script: every
// command in source order, dot-joined. Parse(s.String(), ...) always
// yields a Script with the same commands and mode.
func (s *Script) String() string {
	parts := make([]string, len(s.commands))
	for i, c := range s.commands {
		parts[i] = c.String()
	}
	return strings.Join(parts, ".")
}

// Parse parses text into a classified command pipeline.
//
// allowText controls whether a pure transform/condition chain (a
// text_access production) is acceptable; it is only acceptable when the
// caller is post-processing a seed string (the entrypoint URL script).
// Parsing a text-only script with allowText false fails with
// crawlerr.KindCharProcessAlone.
func Parse(text string, allowText bool) (*Script, error) {
	p := &tokenParser{src: text}
	cmds, err := p.parseCommands()
	if err != nil {
		return nil, err
	}
	if len(cmds) == 0 {
		return nil, crawlerr.New(crawlerr.KindScriptParse, "empty script")
	}

	mode, err := classify(cmds)
	if err != nil {
		return nil, err
	}
	if mode == ModeText && !allowText {
		return nil, crawlerr.New(crawlerr.KindCharProcessAlone, "the crawler script cannot use character processing functions alone")
	}

	return &Script{raw: text, mode: mode, commands: cmds}, nil
}

// classify implements the grammar's production rules:
//
//	element_access ← selector_rule ( '.' selector_rule )*
//	value_access   ← element_access '.' accessor_rule ( '.' (transform_rule|condition_rule) )*
//	text_access    ← (transform_rule|condition_rule) ( '.' (transform_rule|condition_rule) )*
func classify(cmds []command) (Mode, error) {
	first := cmds[0]

	if first.isTransformRule() || first.isConditionRule() {
		for _, c := range cmds[1:] {
			if !(c.isTransformRule() || c.isConditionRule()) {
				return 0, crawlerr.New(crawlerr.KindScriptParse, "text script cannot contain selector or accessor commands: "+c.String())
			}
		}
		return ModeText, nil
	}

	if !first.isSelectorRule() {
		return 0, crawlerr.New(crawlerr.KindScriptParse, "script must start with a selector, or be a pure text chain: "+first.String())
	}

	i := 0
	for i < len(cmds) && cmds[i].isSelectorRule() {
		i++
	}
	if i == len(cmds) {
		return ModeElement, nil
	}
	if !cmds[i].isAccessorRule() {
		return 0, crawlerr.New(crawlerr.KindScriptParse, "expected an accessor (html/val/attr) after selector chain, found: "+cmds[i].String())
	}
	i++
	for ; i < len(cmds); i++ {
		if !(cmds[i].isTransformRule() || cmds[i].isConditionRule()) {
			return 0, crawlerr.New(crawlerr.KindScriptParse, "expected a transform or condition command, found: "+cmds[i].String())
		}
	}
	return ModeValue, nil
}

// tokenParser is a small hand-rolled recursive-descent parser over the
// dot-chained "name(args)" command surface described in spec §6. No
// parser-generator dependency is used (see DESIGN.md); the grammar is
// small and flat enough that a direct scanner reads as clearly as a
// generated one.
type tokenParser struct {
	src string
	pos int
}

func (p *tokenParser) eof() bool { return p.pos >= len(p.src) }

func (p *tokenParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *tokenParser) skipSpace() {
	for !p.eof() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n' || p.src[p.pos] == '\r') {
		p.pos++
	}
}

func (p *tokenParser) parseCommands() ([]command, error) {
	var cmds []command
	p.skipSpace()
	for {
		name, args, err := p.parseCall()
		if err != nil {
			return nil, err
		}
		cmd, err := buildCommand(name, args)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)

		p.skipSpace()
		if p.eof() {
			break
		}
		if p.peek() != '.' {
			return nil, crawlerr.New(crawlerr.KindScriptParse, "expected '.' or end of script at position "+strconv.Itoa(p.pos))
		}
		p.pos++
		p.skipSpace()
	}
	return cmds, nil
}

// argToken is one raw, unresolved call argument.
type argToken struct {
	dynamic bool
	text    string
}

func (p *tokenParser) parseCall() (string, []argToken, error) {
	start := p.pos
	for !p.eof() && isIdentByte(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", nil, crawlerr.New(crawlerr.KindScriptParse, "expected a command name at position "+strconv.Itoa(start))
	}
	name := p.src[start:p.pos]

	p.skipSpace()
	if p.eof() || p.peek() != '(' {
		return "", nil, crawlerr.New(crawlerr.KindScriptParse, "expected '(' after command '"+name+"'")
	}
	p.pos++ // consume '('
	p.skipSpace()

	var args []argToken
	if p.peek() == ')' {
		p.pos++
		return name, args, nil
	}

	for {
		p.skipSpace()
		arg, err := p.parseArg()
		if err != nil {
			return "", nil, err
		}
		args = append(args, arg)
		p.skipSpace()
		if p.eof() {
			return "", nil, crawlerr.New(crawlerr.KindScriptParse, "unterminated argument list for command '"+name+"'")
		}
		switch p.peek() {
		case ',':
			p.pos++
			continue
		case ')':
			p.pos++
			return name, args, nil
		default:
			return "", nil, crawlerr.New(crawlerr.KindScriptParse, "expected ',' or ')' in command '"+name+"'")
		}
	}
}

func (p *tokenParser) parseArg() (argToken, error) {
	switch {
	case p.peek() == '"':
		text, err := p.parseQuoted()
		return argToken{text: text}, err
	case strings.HasPrefix(p.src[p.pos:], "${"):
		text, err := p.parseDynamic()
		return argToken{dynamic: true, text: text}, err
	case isDigit(p.peek()) || p.peek() == '-':
		start := p.pos
		if p.peek() == '-' {
			p.pos++
		}
		for !p.eof() && isDigit(p.peek()) {
			p.pos++
		}
		return argToken{text: p.src[start:p.pos]}, nil
	default:
		return argToken{}, crawlerr.New(crawlerr.KindScriptParse, "expected a quoted string, ${var}, or number at position "+strconv.Itoa(p.pos))
	}
}

func (p *tokenParser) parseQuoted() (string, error) {
	p.pos++ // consume opening quote
	var b strings.Builder
	for {
		if p.eof() {
			return "", crawlerr.New(crawlerr.KindScriptParse, "unterminated string literal")
		}
		c := p.src[p.pos]
		if c == '\\' && p.pos+1 < len(p.src) {
			p.pos++
			b.WriteByte(p.src[p.pos])
			p.pos++
			continue
		}
		if c == '"' {
			p.pos++
			return b.String(), nil
		}
		b.WriteByte(c)
		p.pos++
	}
}

func (p *tokenParser) parseDynamic() (string, error) {
	p.pos += 2 // consume "${"
	start := p.pos
	for !p.eof() && p.src[p.pos] != '}' {
		p.pos++
	}
	if p.eof() {
		return "", crawlerr.New(crawlerr.KindScriptParse, "unterminated ${...} reference")
	}
	name := p.src[start:p.pos]
	p.pos++ // consume '}'
	if name == "" {
		return "", crawlerr.New(crawlerr.KindScriptParse, "empty ${} variable reference")
	}
	return name, nil
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func argToParam(a argToken) Param {
	if a.dynamic {
		return DynamicParam(a.text)
	}
	return StaticParam(a.text)
}

// buildCommand validates argument shape for a parsed call and builds its
// typed command. Index arguments (parent/prev/nth/insert's first arg)
// must be bare integer literals, never dynamic or quoted.
func buildCommand(name string, args []argToken) (command, error) {
	need := func(n int) error {
		if len(args) != n {
			return crawlerr.New(crawlerr.KindScriptParse, name+"() expects "+strconv.Itoa(n)+" argument(s), got "+strconv.Itoa(len(args)))
		}
		return nil
	}
	index := func(a argToken) (int, error) {
		if a.dynamic {
			return 0, crawlerr.New(crawlerr.KindScriptParse, name+"() index argument must be a literal integer, not a dynamic reference")
		}
		n, err := strconv.Atoi(a.text)
		if err != nil {
			return 0, crawlerr.New(crawlerr.KindScriptParse, name+"() index argument must be an integer: "+a.text)
		}
		return n, nil
	}

	switch name {
	case "selector":
		if err := need(1); err != nil {
			return command{}, err
		}
		return command{kind: cmdSelector, p1: argToParam(args[0])}, nil
	case "parent":
		if err := need(1); err != nil {
			return command{}, err
		}
		n, err := index(args[0])
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdParent, n: n}, nil
	case "prev":
		if err := need(1); err != nil {
			return command{}, err
		}
		n, err := index(args[0])
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdPrev, n: n}, nil
	case "nth":
		if err := need(1); err != nil {
			return command{}, err
		}
		n, err := index(args[0])
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdNth, n: n}, nil
	case "html":
		if err := need(0); err != nil {
			return command{}, err
		}
		return command{kind: cmdHTML}, nil
	case "val":
		if err := need(0); err != nil {
			return command{}, err
		}
		return command{kind: cmdVal}, nil
	case "attr":
		if err := need(1); err != nil {
			return command{}, err
		}
		return command{kind: cmdAttr, p1: argToParam(args[0])}, nil
	case "replace":
		if err := need(2); err != nil {
			return command{}, err
		}
		return command{kind: cmdReplace, p1: argToParam(args[0]), p2: argToParam(args[1])}, nil
	case "uppercase":
		if err := need(0); err != nil {
			return command{}, err
		}
		return command{kind: cmdUppercase}, nil
	case "lowercase":
		if err := need(0); err != nil {
			return command{}, err
		}
		return command{kind: cmdLowercase}, nil
	case "insert":
		if err := need(2); err != nil {
			return command{}, err
		}
		n, err := index(args[0])
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdInsert, n: n, p1: argToParam(args[1])}, nil
	case "prepend":
		if err := need(1); err != nil {
			return command{}, err
		}
		return command{kind: cmdPrepend, p1: argToParam(args[0])}, nil
	case "append":
		if err := need(1); err != nil {
			return command{}, err
		}
		return command{kind: cmdAppend, p1: argToParam(args[0])}, nil
	case "delete":
		if err := need(1); err != nil {
			return command{}, err
		}
		return command{kind: cmdDelete, p1: argToParam(args[0])}, nil
	case "regex_extract":
		if err := need(1); err != nil {
			return command{}, err
		}
		return command{kind: cmdRegexExtract, p1: argToParam(args[0])}, nil
	case "regex_replace":
		if err := need(2); err != nil {
			return command{}, err
		}
		return command{kind: cmdRegexReplace, p1: argToParam(args[0]), p2: argToParam(args[1])}, nil
	case "regex_match":
		if err := need(1); err != nil {
			return command{}, err
		}
		return command{kind: cmdRegexMatch, p1: argToParam(args[0])}, nil
	case "equals":
		if err := need(1); err != nil {
			return command{}, err
		}
		return command{kind: cmdEquals, p1: argToParam(args[0])}, nil
	default:
		return command{}, crawlerr.New(crawlerr.KindScriptParse, "unknown command: "+name)
	}
}
