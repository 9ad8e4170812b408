package compiler

import (
	"fmt"
	"strings"

	"github.com/snmsts/jscl/js"
	"github.com/snmsts/jscl/lisp"
)

type optSpec struct {
	name    lisp.Symbol
	def     lisp.SExpression
	svar    lisp.Symbol
	hasSvar bool
}

type keySpec struct {
	keyword lisp.Symbol
	name    lisp.Symbol
	def     lisp.SExpression
	svar    lisp.Symbol
	hasSvar bool
}

type lambdaList struct {
	required       []lisp.Symbol
	optional       []optSpec
	rest           lisp.Symbol
	hasRest        bool
	keys           []keySpec
	hasKeys        bool
	allowOtherKeys bool
}

func badLambdaList(e lisp.SExpression) error {
	return fmt.Errorf("bad lambda-list %s", e)
}

func parseLambdaList(e lisp.SExpression) (*lambdaList, error) {
	elems, ok := lisp.Elements(e)
	if !ok {
		return nil, badLambdaList(e)
	}
	ll := &lambdaList{}
	section := "required"
	i := 0
	for i < len(elems) {
		el := elems[i]
		if sym, ok := el.(lisp.Symbol); ok {
			switch sym.Name {
			case "&OPTIONAL":
				if section != "required" {
					return nil, badLambdaList(e)
				}
				section = "optional"
				i++
				continue
			case "&REST", "&BODY":
				if section == "rest" || section == "key" {
					return nil, badLambdaList(e)
				}
				if i+1 >= len(elems) {
					return nil, badLambdaList(e)
				}
				rest, ok := elems[i+1].(lisp.Symbol)
				if !ok {
					return nil, badLambdaList(e)
				}
				ll.rest = rest
				ll.hasRest = true
				section = "rest"
				i += 2
				continue
			case "&KEY":
				section = "key"
				ll.hasKeys = true
				i++
				continue
			case "&ALLOW-OTHER-KEYS":
				if section != "key" {
					return nil, badLambdaList(e)
				}
				ll.allowOtherKeys = true
				i++
				continue
			}
		}
		switch section {
		case "required":
			sym, ok := el.(lisp.Symbol)
			if !ok {
				return nil, badLambdaList(e)
			}
			ll.required = append(ll.required, sym)
		case "optional":
			opt, err := parseOptSpec(el)
			if err != nil {
				return nil, err
			}
			ll.optional = append(ll.optional, opt)
		case "key":
			key, err := parseKeySpec(el)
			if err != nil {
				return nil, err
			}
			ll.keys = append(ll.keys, key)
		default:
			return nil, badLambdaList(e)
		}
		i++
	}
	return ll, nil
}

func parseOptSpec(e lisp.SExpression) (optSpec, error) {
	if sym, ok := e.(lisp.Symbol); ok {
		return optSpec{name: sym, def: lisp.Nil}, nil
	}
	elems, ok := lisp.Elements(e)
	if !ok || len(elems) == 0 || len(elems) > 3 {
		return optSpec{}, badLambdaList(e)
	}
	name, ok := elems[0].(lisp.Symbol)
	if !ok {
		return optSpec{}, badLambdaList(e)
	}
	opt := optSpec{name: name, def: lisp.Nil}
	if len(elems) > 1 {
		opt.def = elems[1]
	}
	if len(elems) > 2 {
		svar, ok := elems[2].(lisp.Symbol)
		if !ok {
			return optSpec{}, badLambdaList(e)
		}
		opt.svar = svar
		opt.hasSvar = true
	}
	return opt, nil
}

func parseKeySpec(e lisp.SExpression) (keySpec, error) {
	if sym, ok := e.(lisp.Symbol); ok {
		return keySpec{keyword: lisp.Keyword(sym.Name), name: sym, def: lisp.Nil}, nil
	}
	elems, ok := lisp.Elements(e)
	if !ok || len(elems) == 0 || len(elems) > 3 {
		return keySpec{}, badLambdaList(e)
	}
	key := keySpec{def: lisp.Nil}
	switch head := elems[0].(type) {
	case lisp.Symbol:
		key.keyword = lisp.Keyword(head.Name)
		key.name = head
	case *lisp.Pair:
		parts, ok := lisp.Elements(head)
		if !ok || len(parts) != 2 {
			return keySpec{}, badLambdaList(e)
		}
		kw, ok1 := parts[0].(lisp.Symbol)
		name, ok2 := parts[1].(lisp.Symbol)
		if !ok1 || !ok2 || !kw.IsKeyword() {
			return keySpec{}, badLambdaList(e)
		}
		key.keyword = kw
		key.name = name
	default:
		return keySpec{}, badLambdaList(e)
	}
	if len(elems) > 1 {
		key.def = elems[1]
	}
	if len(elems) > 2 {
		svar, ok := elems[2].(lisp.Symbol)
		if !ok {
			return keySpec{}, badLambdaList(e)
		}
		key.svar = svar
		key.hasSvar = true
	}
	return key, nil
}

// nargs is the user-visible argument count: the values-context marker
// does not count.
func nargs() js.Expr {
	return js.EBinary{
		Op: "-",
		L:  js.EDot{Obj: js.EIdent{Name: "arguments"}, Name: "length"},
		R:  js.EInt{Value: 1},
	}
}

// argRef is arguments[i+1], the i-th user argument.
func argRef(i js.Expr) js.Expr {
	return js.EIndex{
		Obj:   js.EIdent{Name: "arguments"},
		Index: js.EBinary{Op: "+", L: i, R: js.EInt{Value: 1}},
	}
}

// compileLambda lowers a lambda expression to a JS function taking the
// leading values parameter. blockName, when non-nil, wraps the body in
// a named block.
func (c *Compiler) compileLambda(name string, blockName lisp.SExpression, llForm lisp.SExpression, body []lisp.SExpression, env *Env) (js.Expr, error) {
	ll, err := parseLambdaList(llForm)
	if err != nil {
		return nil, err
	}
	_, _, body = parseBody(body)

	ft := NewTarget()
	params := []string{"values"}
	newEnv := env

	bindVar := func(sym lisp.Symbol) *Binding {
		b := &Binding{Name: sym, Kind: KindVariable, JSName: c.genVar()}
		newEnv = newEnv.Extend(NSVariable, b)
		return b
	}

	for _, req := range ll.required {
		b := bindVar(req)
		params = append(params, b.JSName)
	}

	nreq, nopt := len(ll.required), len(ll.optional)

	// arity guards
	if nopt == 0 && !ll.hasRest && !ll.hasKeys {
		ft.Push(js.SExpr{Value: js.ECall{
			Fn:   internal("checkArgs"),
			Args: []js.Expr{nargs(), js.EInt{Value: int64(nreq)}},
		}})
	} else {
		if nreq > 0 {
			ft.Push(js.SExpr{Value: js.ECall{
				Fn:   internal("checkArgsAtLeast"),
				Args: []js.Expr{nargs(), js.EInt{Value: int64(nreq)}},
			}})
		}
		if !ll.hasRest && !ll.hasKeys {
			ft.Push(js.SExpr{Value: js.ECall{
				Fn:   internal("checkArgsAtMost"),
				Args: []js.Expr{nargs(), js.EInt{Value: int64(nreq + nopt)}},
			}})
		}
	}

	// optional parameters are real JS parameters; a switch on the
	// actual count fills in defaults, falling through so that every
	// unsupplied position gets one.
	if nopt > 0 {
		optBindings := make([]*Binding, nopt)
		svarBindings := make([]*Binding, nopt)
		for i, opt := range ll.optional {
			b := &Binding{Name: opt.name, Kind: KindVariable, JSName: c.genVar()}
			optBindings[i] = b
			params = append(params, b.JSName)
			if opt.hasSvar {
				sb := &Binding{Name: opt.svar, Kind: KindVariable, JSName: c.genVar()}
				svarBindings[i] = sb
				ft.Push(js.SVar{Name: sb.JSName, Init: c.tValue()})
			}
		}
		cases := []js.Case{}
		for i, opt := range ll.optional {
			caseTarget := NewTarget()
			if _, err := c.convert(opt.def, newEnv, caseTarget, into(optBindings[i].JSName), false); err != nil {
				return nil, err
			}
			if opt.hasSvar {
				caseTarget.Push(js.SExpr{Value: js.EAssign{
					Target: js.EIdent{Name: svarBindings[i].JSName},
					Value:  c.nilValue(),
				}})
			}
			cases = append(cases, js.Case{
				Value: js.EInt{Value: int64(nreq + i)},
				Body:  caseTarget.Statements(),
			})
			newEnv = newEnv.Extend(NSVariable, optBindings[i])
			if opt.hasSvar {
				newEnv = newEnv.Extend(NSVariable, svarBindings[i])
			}
		}
		ft.Push(js.SSwitch{Disc: nargs(), Cases: cases})
	}

	if ll.hasRest {
		b := bindVar(ll.rest)
		ft.Push(js.SVar{Name: b.JSName, Init: c.nilValue()})
		iv := c.genVar()
		ft.Push(js.SFor{
			Init: js.SVar{Name: iv, Init: js.EBinary{Op: "-", L: nargs(), R: js.EInt{Value: 1}}},
			Cond: js.EBinary{Op: ">=", L: js.EIdent{Name: iv}, R: js.EInt{Value: int64(nreq + nopt)}},
			Post: js.EAssign{
				Target: js.EIdent{Name: iv},
				Value:  js.EBinary{Op: "-", L: js.EIdent{Name: iv}, R: js.EInt{Value: 1}},
			},
			Body: []js.Stmt{js.SExpr{Value: js.EAssign{
				Target: js.EIdent{Name: b.JSName},
				Value: js.EObject{Props: []js.Prop{
					{Key: "car", Value: argRef(js.EIdent{Name: iv})},
					{Key: "cdr", Value: js.EIdent{Name: b.JSName}},
				}},
			}}},
		})
	}

	if ll.hasKeys {
		if err := c.compileKeywordArgs(ll, ft, &newEnv); err != nil {
			return nil, err
		}
	}

	if blockName != nil {
		body = []lisp.SExpression{lisp.ListStar(lisp.NewSymbol("BLOCK"), blockName, lisp.List(body...))}
	}
	rexpr, err := c.convertProgn(body, newEnv, ft, fresh(), true)
	if err != nil {
		return nil, err
	}
	ft.Push(js.SReturn{Value: rexpr})

	return js.EFunction{Name: name, Params: params, Body: ft.Statements()}, nil
}

// compileKeywordArgs emits the keyword protocol: the odd-tail and
// unknown-keyword guards, then one scan per declared keyword. Note the
// unknown-keyword check fires whenever keyword parameters are present,
// rest parameter or not.
func (c *Compiler) compileKeywordArgs(ll *lambdaList, ft *Target, env **Env) error {
	start := int64(len(ll.required) + len(ll.optional))

	ft.Push(js.SIf{
		Cond: js.EBinary{
			Op: "==",
			L: js.EBinary{
				Op: "%",
				L:  js.EBinary{Op: "-", L: nargs(), R: js.EInt{Value: start}},
				R:  js.EInt{Value: 2},
			},
			R: js.EInt{Value: 1},
		},
		Then: []js.Stmt{js.SThrow{Value: js.EString{Value: "Odd number of keyword arguments."}}},
	})

	iv := c.genVar()
	var unknown js.Expr
	for _, key := range ll.keys {
		kwLit, err := c.literal(key.keyword)
		if err != nil {
			return err
		}
		test := js.EBinary{Op: "!==", L: argRef(js.EIdent{Name: iv}), R: kwLit}
		if unknown == nil {
			unknown = test
		} else {
			unknown = js.EBinary{Op: "&&", L: unknown, R: test}
		}
	}
	if unknown == nil {
		// bare &key: every keyword argument is unknown
		unknown = js.EIdent{Name: "true"}
	}
	ft.Push(js.SFor{
		Init: js.SVar{Name: iv, Init: js.EInt{Value: start}},
		Cond: js.EBinary{Op: "<", L: js.EIdent{Name: iv}, R: nargs()},
		Post: js.EAssign{
			Target: js.EIdent{Name: iv},
			Value:  js.EBinary{Op: "+", L: js.EIdent{Name: iv}, R: js.EInt{Value: 2}},
		},
		Body: []js.Stmt{js.SIf{
			Cond: unknown,
			Then: []js.Stmt{js.SThrow{Value: js.EBinary{
				Op: "+",
				L:  js.EString{Value: "Unknown keyword argument "},
				R: js.ECall{
					Fn:   internal("xstring"),
					Args: []js.Expr{js.EDot{Obj: argRef(js.EIdent{Name: iv}), Name: "name"}},
				},
			}}},
		}},
	})

	for _, key := range ll.keys {
		kwLit, err := c.literal(key.keyword)
		if err != nil {
			return err
		}
		b := &Binding{Name: key.name, Kind: KindVariable, JSName: c.genVar()}
		ft.Push(js.SVar{Name: b.JSName})
		var sb *Binding
		if key.hasSvar {
			sb = &Binding{Name: key.svar, Kind: KindVariable, JSName: c.genVar()}
			ft.Push(js.SVar{Name: sb.JSName, Init: c.nilValue()})
		}

		ki := c.genVar()
		ft.Push(js.SVar{Name: ki, Init: js.EInt{Value: start}})
		found := []js.Stmt{js.SExpr{Value: js.EAssign{
			Target: js.EIdent{Name: b.JSName},
			Value: js.EIndex{
				Obj:   js.EIdent{Name: "arguments"},
				Index: js.EBinary{Op: "+", L: js.EIdent{Name: ki}, R: js.EInt{Value: 2}},
			},
		}}}
		if sb != nil {
			found = append(found, js.SExpr{Value: js.EAssign{
				Target: js.EIdent{Name: sb.JSName},
				Value:  c.tValue(),
			}})
		}
		found = append(found, js.SBreak{})
		ft.Push(js.SWhile{
			Cond: js.EBinary{Op: "<", L: js.EIdent{Name: ki}, R: nargs()},
			Body: []js.Stmt{
				js.SIf{
					Cond: js.EBinary{Op: "===", L: argRef(js.EIdent{Name: ki}), R: kwLit},
					Then: found,
				},
				js.SExpr{Value: js.EAssign{
					Target: js.EIdent{Name: ki},
					Value:  js.EBinary{Op: "+", L: js.EIdent{Name: ki}, R: js.EInt{Value: 2}},
				}},
			},
		})

		defTarget := NewTarget()
		if _, err := c.convert(key.def, *env, defTarget, into(b.JSName), false); err != nil {
			return err
		}
		ft.Push(js.SIf{
			Cond: js.EBinary{Op: ">=", L: js.EIdent{Name: ki}, R: nargs()},
			Then: defTarget.Statements(),
		})

		*env = (*env).Extend(NSVariable, b)
		if sb != nil {
			*env = (*env).Extend(NSVariable, sb)
		}
	}
	return nil
}

// parseBody splits a body into docstring, declare forms and the real
// forms.
func parseBody(body []lisp.SExpression) (string, []lisp.SExpression, []lisp.SExpression) {
	doc := ""
	decls := []lisp.SExpression{}
	i := 0
	for i < len(body) {
		if s, ok := body[i].(lisp.String); ok && doc == "" && i+1 < len(body) {
			doc = string(s)
			i++
			continue
		}
		if p, ok := body[i].(*lisp.Pair); ok {
			if head, ok := p.Car.(lisp.Symbol); ok && head.Name == "DECLARE" {
				decls = append(decls, p)
				i++
				continue
			}
		}
		break
	}
	return doc, decls, body[i:]
}

// declaredSpecials collects the names declared special in declare
// forms.
func declaredSpecials(decls []lisp.SExpression) map[lisp.Symbol]bool {
	out := map[lisp.Symbol]bool{}
	for _, d := range decls {
		clauses, ok := lisp.Elements(d)
		if !ok {
			continue
		}
		for _, clause := range clauses[1:] {
			parts, ok := lisp.Elements(clause)
			if !ok || len(parts) == 0 {
				continue
			}
			if head, ok := parts[0].(lisp.Symbol); ok && head.Name == "SPECIAL" {
				for _, v := range parts[1:] {
					if sym, ok := v.(lisp.Symbol); ok {
						out[sym] = true
					}
				}
			}
		}
	}
	return out
}

// jsFunctionName mangles a lisp name into something a JS function may
// legally be called.
func jsFunctionName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '$':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "_" + s
	}
	return s
}
