package jinja

import (
	"strconv"

	"github.com/nikolalohinski/gonja/nodes"
	"github.com/nikolalohinski/gonja/tokens"

	"github.com/CTAG07/Quire/pkg/site"
)

// literalValue returns the Go value of a constant expression. Negated
// numbers count as constants.
func literalValue(expr nodes.Expression) (any, bool) {
	switch n := expr.(type) {
	case *nodes.String:
		return n.Val, true
	case *nodes.Integer:
		return n.Val, true
	case *nodes.Float:
		return n.Val, true
	case *nodes.Bool:
		return n.Val, true
	case *nodes.None:
		return nil, true
	case *nodes.UnaryExpression:
		switch term := n.Term.(type) {
		case *nodes.Integer:
			if n.Negative {
				return -term.Val, true
			}
			return term.Val, true
		case *nodes.Float:
			if n.Negative {
				return -term.Val, true
			}
			return term.Val, true
		}
	}
	return nil, false
}

// literalString is the stored form of a literal value.
func literalString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return ""
}

func truthy(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

// contextRequests scans the token stream of source for calls to fn with
// exactly two literal positional arguments. The scan sees calls nested in any
// block, macro or filter argument.
func contextRequests(source, fn string) []site.ContextRequest {
	lexer := tokens.NewLexer(source)
	go lexer.Run()

	var toks []*tokens.Token
	for tok := range lexer.Tokens {
		if tok.Type != tokens.Whitespace {
			toks = append(toks, tok)
		}
	}

	var reqs []site.ContextRequest
	seen := map[site.ContextRequest]struct{}{}
	for i, tok := range toks {
		if tok.Type != tokens.Name || tok.Val != fn {
			continue
		}
		// Attribute access such as page.getcontexts(...) is not the function.
		if i > 0 && toks[i-1].Type == tokens.Dot {
			continue
		}
		req, ok := matchCall(toks[i+1:])
		if !ok {
			continue
		}
		if _, dup := seen[req]; dup {
			continue
		}
		seen[req] = struct{}{}
		reqs = append(reqs, req)
	}
	return reqs
}

// matchCall matches `( literal , literal )` at the start of toks.
func matchCall(toks []*tokens.Token) (site.ContextRequest, bool) {
	var req site.ContextRequest
	if len(toks) == 0 || toks[0].Type != tokens.Lparen {
		return req, false
	}
	name, rest, ok := matchLiteral(toks[1:])
	if !ok || len(rest) == 0 || rest[0].Type != tokens.Comma {
		return req, false
	}
	value, rest, ok := matchLiteral(rest[1:])
	if !ok || len(rest) == 0 || rest[0].Type != tokens.Rparen {
		return req, false
	}
	req.Name, req.Value = name, value
	return req, true
}

func matchLiteral(toks []*tokens.Token) (string, []*tokens.Token, bool) {
	if len(toks) == 0 {
		return "", nil, false
	}
	tok := toks[0]
	switch tok.Type {
	case tokens.String:
		return tok.Val, toks[1:], true
	case tokens.Integer, tokens.Float:
		s, ok := numberString(tok, false)
		return s, toks[1:], ok
	case tokens.Add, tokens.Sub:
		if len(toks) < 2 || (toks[1].Type != tokens.Integer && toks[1].Type != tokens.Float) {
			return "", nil, false
		}
		s, ok := numberString(toks[1], tok.Type == tokens.Sub)
		return s, toks[2:], ok
	case tokens.Name:
		switch tok.Val {
		case "true", "True":
			return literalString(true), toks[1:], true
		case "false", "False":
			return literalString(false), toks[1:], true
		case "nil", "None":
			return literalString(nil), toks[1:], true
		}
	}
	return "", nil, false
}

func numberString(tok *tokens.Token, negative bool) (string, bool) {
	if tok.Type == tokens.Integer {
		i, err := strconv.Atoi(tok.Val)
		if err != nil {
			return "", false
		}
		if negative {
			i = -i
		}
		return literalString(i), true
	}
	f, err := strconv.ParseFloat(tok.Val, 64)
	if err != nil {
		return "", false
	}
	if negative {
		f = -f
	}
	return literalString(f), true
}
