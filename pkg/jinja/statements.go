package jinja

import (
	"fmt"
	"sort"

	"github.com/nikolalohinski/gonja/builtins"
	"github.com/nikolalohinski/gonja/builtins/statements"
	"github.com/nikolalohinski/gonja/exec"
	"github.com/nikolalohinski/gonja/nodes"
	"github.com/nikolalohinski/gonja/parser"
	"github.com/nikolalohinski/gonja/tokens"
)

// parseState collects what the statement hooks observe while one source file
// is parsed. Templates pulled in by a static extends or include are parsed
// under their own name and are not recorded.
type parseState struct {
	name     string
	consts   map[string]any
	contexts map[string]string
	deps     map[string]struct{}
}

func newParseState(name string) *parseState {
	return &parseState{
		name:     name,
		consts:   map[string]any{},
		contexts: map[string]string{},
		deps:     map[string]struct{}{},
	}
}

func (s *parseState) dependencies() []string {
	deps := make([]string, 0, len(s.deps))
	for d := range s.deps {
		deps = append(deps, d)
	}
	sort.Strings(deps)
	return deps
}

// setContextStmt is the result of {% setcontext name = value %}. It renders
// like set.
type setContextStmt struct {
	*statements.SetStmt
	Name  string
	Value string
}

func (stmt *setContextStmt) String() string {
	t := stmt.Position()
	return fmt.Sprintf("SetContextStmt(Name=%s Line=%d Col=%d)", stmt.Name, t.Line, t.Col)
}

// emptyStmt is the result of {% setcontext name %}.
type emptyStmt struct {
	Location *tokens.Token
}

func (stmt *emptyStmt) Position() *tokens.Token { return stmt.Location }
func (stmt *emptyStmt) String() string {
	t := stmt.Position()
	return fmt.Sprintf("EmptyStmt(Line=%d Col=%d)", t.Line, t.Col)
}
func (stmt *emptyStmt) Execute(*exec.Renderer, *nodes.StatementBlock) error { return nil }

func (p *Processor) beginParse(name string) *parseState {
	state := newParseState(name)
	p.parseMu.Lock()
	p.parses[name] = state
	p.parseMu.Unlock()
	return state
}

func (p *Processor) endParse(name string) {
	p.parseMu.Lock()
	delete(p.parses, name)
	p.parseMu.Unlock()
}

// record calls fn with the state of the file being prepared if doc belongs
// to it.
func (p *Processor) record(doc *parser.Parser, fn func(state *parseState)) {
	p.parseMu.Lock()
	defer p.parseMu.Unlock()
	if state, ok := p.parses[doc.Name]; ok {
		fn(state)
	}
}

func (p *Processor) setContextParser(doc *parser.Parser, args *parser.Parser) (nodes.Statement, error) {
	location := doc.Current()

	name := args.Match(tokens.Name)
	if name == nil {
		return nil, args.Error("Expected a context name.", args.Current())
	}
	if args.End() {
		return &emptyStmt{Location: location}, nil
	}
	if args.Match(tokens.Assign) == nil {
		return nil, args.Error("Expected '='.", args.Current())
	}

	valueTok := args.Current()
	expr, err := args.ParseExpression()
	if err != nil {
		return nil, err
	}
	value, ok := literalValue(expr)
	if !ok {
		return nil, args.Error("setcontext value must be a literal.", valueTok)
	}
	if !args.End() {
		return nil, args.Error("Malformed 'setcontext'-tag args.", args.Current())
	}

	p.record(doc, func(state *parseState) {
		state.contexts[name.Val] = literalString(value)
		state.consts[name.Val] = value
	})

	return &setContextStmt{
		SetStmt: &statements.SetStmt{
			Location:   location,
			Target:     &nodes.Name{Name: name},
			Expression: expr,
		},
		Name:  name.Val,
		Value: literalString(value),
	}, nil
}

// observe wraps a builtin statement parser so fn sees every statement of
// that kind parsed for the active file.
func (p *Processor) observe(name string, fn func(state *parseState, stmt nodes.Statement)) error {
	builtin, ok := builtins.Statements[name]
	if !ok {
		return fmt.Errorf("builtin statement %q not found", name)
	}
	return p.env.Statements.Replace(name, func(doc *parser.Parser, args *parser.Parser) (nodes.Statement, error) {
		stmt, err := builtin(doc, args)
		if err != nil {
			return nil, err
		}
		p.record(doc, func(state *parseState) {
			fn(state, stmt)
		})
		return stmt, nil
	})
}

func (p *Processor) installStatements() error {
	if err := p.env.Statements.Register("setcontext", p.setContextParser); err != nil {
		return err
	}

	hooks := map[string]func(state *parseState, stmt nodes.Statement){
		"set": func(state *parseState, stmt nodes.Statement) {
			set, ok := stmt.(*statements.SetStmt)
			if !ok {
				return
			}
			target, ok := set.Target.(*nodes.Name)
			if !ok {
				return
			}
			if value, ok := literalValue(set.Expression); ok {
				state.consts[target.Name.Val] = value
			}
		},
		"extends": func(state *parseState, stmt nodes.Statement) {
			if s, ok := stmt.(*statements.ExtendsStmt); ok {
				p.addDependency(state, s.Filename)
			}
		},
		"include": func(state *parseState, stmt nodes.Statement) {
			if s, ok := stmt.(*statements.IncludeStmt); ok {
				p.addDependency(state, s.Filename)
			}
		},
		"import": func(state *parseState, stmt nodes.Statement) {
			if s, ok := stmt.(*statements.ImportStmt); ok {
				p.addDependency(state, s.Filename)
			}
		},
		"from": func(state *parseState, stmt nodes.Statement) {
			if s, ok := stmt.(*statements.FromImportStmt); ok {
				p.addDependency(state, s.Filename)
			}
		},
	}
	for name, fn := range hooks {
		if err := p.observe(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// addDependency records a static template reference. Dynamic references
// have no filename and are resolved only at render time.
func (p *Processor) addDependency(state *parseState, filename string) {
	if filename == "" {
		return
	}
	state.deps[p.app.SourcePath(filename)] = struct{}{}
}
