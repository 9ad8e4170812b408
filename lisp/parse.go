package lisp

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TODO: read from a stream of input instead of slurping whole files
func ParseFile(filename string) ([]SExpression, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseAll(string(b))
}

// Parse reads a single form.
func Parse(program string) (SExpression, error) {
	list, err := ParseAll(program)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	return list[0], nil
}

// ParseAll reads every form in the input.
func ParseAll(program string) ([]SExpression, error) {
	tokens, err := tokenize(program)
	if err != nil {
		return nil, err
	}
	r := &reader{tokens: tokens}
	list := []SExpression{}
	for !r.atEOF() {
		e, err := r.parseExpr()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, nil
}

type tokenKind uint8

const (
	tokLParen tokenKind = iota
	tokRParen
	tokQuote
	tokQuasiquote
	tokUnquote
	tokUnquoteSplicing
	tokVector
	tokDot
	tokString
	tokChar
	tokAtom
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(program string) ([]token, error) {
	tokens := []token{}
	for len(program) > 0 {
		program = skipBlank(program)
		if len(program) == 0 {
			break
		}
		r, size := utf8.DecodeRuneInString(program)
		switch r {
		case '(', '[':
			tokens = append(tokens, token{kind: tokLParen})
			program = program[size:]
		case ')', ']':
			tokens = append(tokens, token{kind: tokRParen})
			program = program[size:]
		case '\'':
			tokens = append(tokens, token{kind: tokQuote})
			program = program[size:]
		case '`':
			tokens = append(tokens, token{kind: tokQuasiquote})
			program = program[size:]
		case ',':
			program = program[size:]
			if strings.HasPrefix(program, "@") {
				tokens = append(tokens, token{kind: tokUnquoteSplicing})
				program = program[1:]
				continue
			}
			tokens = append(tokens, token{kind: tokUnquote})
		case '"':
			s, rest, err := readString(program[size:])
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: s})
			program = rest
		case '#':
			rest := program[size:]
			switch {
			case strings.HasPrefix(rest, "("):
				tokens = append(tokens, token{kind: tokVector})
				program = rest[1:]
			case strings.HasPrefix(rest, `\`):
				name, p := readToken(rest[1:])
				if name == "" {
					// a delimiter character like #\( or #\;
					r, size := utf8.DecodeRuneInString(rest[1:])
					if size == 0 {
						return nil, fmt.Errorf("unterminated character literal")
					}
					name, p = string(r), rest[1+size:]
				}
				tokens = append(tokens, token{kind: tokChar, text: name})
				program = p
			default:
				return nil, fmt.Errorf("unsupported dispatch #%c", firstRune(rest))
			}
		default:
			text, rest := readToken(program)
			if text == "." {
				tokens = append(tokens, token{kind: tokDot})
			} else {
				tokens = append(tokens, token{kind: tokAtom, text: text})
			}
			program = rest
		}
	}
	return tokens, nil
}

// skipBlank drops whitespace, line comments and #| |# block comments.
func skipBlank(program string) string {
	for {
		program = strings.TrimLeftFunc(program, unicode.IsSpace)
		if strings.HasPrefix(program, ";") {
			if i := strings.IndexByte(program, '\n'); i >= 0 {
				program = program[i+1:]
				continue
			}
			return ""
		}
		if strings.HasPrefix(program, "#|") {
			_, rest, found := strings.Cut(program[2:], "|#")
			if !found {
				return ""
			}
			program = rest
			continue
		}
		return program
	}
}

func readString(program string) (string, string, error) {
	var s []byte
	for len(program) > 0 {
		r, size := utf8.DecodeRuneInString(program)
		program = program[size:]
		if r == '"' {
			return string(s), program, nil
		}
		if r == '\\' {
			next, n := utf8.DecodeRuneInString(program)
			if n == 0 {
				break
			}
			program = program[n:]
			switch next {
			case 'n':
				next = '\n'
			case 't':
				next = '\t'
			}
			s = utf8.AppendRune(s, next)
			continue
		}
		s = utf8.AppendRune(s, r)
	}
	return "", "", fmt.Errorf(`unclosed string quote '"'`)
}

func readToken(program string) (string, string) {
	var tok []byte
	for len(program) > 0 {
		r, size := utf8.DecodeRuneInString(program)
		if strings.ContainsRune("()[]'\",`;", r) || unicode.IsSpace(r) {
			break
		}
		program = program[size:]
		tok = utf8.AppendRune(tok, r)
	}
	return string(tok), program
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

type reader struct {
	tokens []token
	pos    int
}

func (r *reader) atEOF() bool {
	return r.pos >= len(r.tokens)
}

func (r *reader) next() (token, error) {
	if r.atEOF() {
		return token{}, fmt.Errorf("unexpected end of input")
	}
	t := r.tokens[r.pos]
	r.pos++
	return t, nil
}

func (r *reader) peek() (token, bool) {
	if r.atEOF() {
		return token{}, false
	}
	return r.tokens[r.pos], true
}

func (r *reader) parseExpr() (SExpression, error) {
	t, err := r.next()
	if err != nil {
		return nil, err
	}
	switch t.kind {
	case tokLParen:
		return r.parseList()
	case tokRParen:
		return nil, fmt.Errorf("unexpected ')'")
	case tokDot:
		return nil, fmt.Errorf("unexpected '.'")
	case tokVector:
		elems := []SExpression{}
		for {
			p, ok := r.peek()
			if !ok {
				return nil, fmt.Errorf("unterminated vector")
			}
			if p.kind == tokRParen {
				r.pos++
				return &Vector{Elems: elems}, nil
			}
			e, err := r.parseExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
	case tokQuote:
		return r.wrap("QUOTE")
	case tokQuasiquote:
		return r.wrap("QUASIQUOTE")
	case tokUnquote:
		return r.wrap("UNQUOTE")
	case tokUnquoteSplicing:
		return r.wrap("UNQUOTE-SPLICING")
	case tokString:
		return String(t.text), nil
	case tokChar:
		return parseChar(t.text)
	default:
		return atom(t.text)
	}
}

func (r *reader) wrap(name string) (SExpression, error) {
	e, err := r.parseExpr()
	if err != nil {
		return nil, err
	}
	return List(NewSymbol(name), e), nil
}

func (r *reader) parseList() (SExpression, error) {
	elems := []SExpression{}
	for {
		p, ok := r.peek()
		if !ok {
			return nil, fmt.Errorf("unterminated list")
		}
		switch p.kind {
		case tokRParen:
			r.pos++
			return List(elems...), nil
		case tokDot:
			if len(elems) == 0 {
				return nil, fmt.Errorf("unexpected '.'")
			}
			r.pos++
			tail, err := r.parseExpr()
			if err != nil {
				return nil, err
			}
			closing, err := r.next()
			if err != nil {
				return nil, err
			}
			if closing.kind != tokRParen {
				return nil, fmt.Errorf("malformed dotted list")
			}
			return ListStar(append(elems, tail)...), nil
		default:
			e, err := r.parseExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
	}
}

func parseChar(name string) (SExpression, error) {
	switch strings.ToLower(name) {
	case "space":
		return Character(' '), nil
	case "newline":
		return Character('\n'), nil
	case "tab":
		return Character('\t'), nil
	}
	r, size := utf8.DecodeRuneInString(name)
	if size != len(name) {
		return nil, fmt.Errorf("unknown character name #\\%s", name)
	}
	return Character(r), nil
}

// atom turns a token into a number or a symbol. Bare symbol names fold
// to upper case the way a standard lisp reader does.
func atom(tok string) (SExpression, error) {
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return Integer(n), nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return Float(f), nil
	}
	if strings.HasPrefix(tok, ":") {
		return Keyword(strings.ToUpper(tok[1:])), nil
	}
	if i := strings.Index(tok, ":"); i > 0 {
		pkg, name := tok[:i], tok[i+1:]
		name = strings.TrimPrefix(name, ":")
		if name == "" {
			return nil, fmt.Errorf("malformed symbol %q", tok)
		}
		return Symbol{Name: strings.ToUpper(name), Pkg: strings.ToUpper(pkg)}, nil
	}
	return NewSymbol(strings.ToUpper(tok)), nil
}
