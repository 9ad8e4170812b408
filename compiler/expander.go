package compiler

import (
	"fmt"

	"github.com/snmsts/jscl/lisp"
)

// The expansion-time evaluator: just enough lisp to run bootstrap macro
// bodies, which are backquote templates over the list primitives.

type macroScope struct {
	vars   map[lisp.Symbol]lisp.SExpression
	parent *macroScope
}

func (s *macroScope) lookup(sym lisp.Symbol) (lisp.SExpression, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[sym]; ok {
			return v, true
		}
	}
	return nil, false
}

func (s *macroScope) bind(sym lisp.Symbol, v lisp.SExpression) {
	s.vars[sym] = v
}

func (c *Compiler) evalForExpansion(form lisp.SExpression, scope *macroScope) (lisp.SExpression, error) {
	switch x := form.(type) {
	case lisp.Symbol:
		if x == lisp.Nil || x == lisp.T || x.IsKeyword() {
			return x, nil
		}
		if v, ok := scope.lookup(x); ok {
			return v, nil
		}
		return nil, fmt.Errorf("unbound variable %s in macro expansion", x)
	case lisp.Integer, lisp.Float, lisp.Character, lisp.String, *lisp.Vector:
		return x, nil
	case *lisp.Pair:
		return c.evalExpansionCall(x, scope)
	default:
		return nil, fmt.Errorf("cannot evaluate %s in macro expansion", form)
	}
}

func (c *Compiler) evalExpansionCall(p *lisp.Pair, scope *macroScope) (lisp.SExpression, error) {
	head, ok := p.Car.(lisp.Symbol)
	if !ok {
		return nil, fmt.Errorf("cannot evaluate %s in macro expansion", p)
	}
	args, proper := lisp.Elements(p.Cdr)
	if !proper {
		return nil, fmt.Errorf("improper form %s", p)
	}
	switch head.Name {
	case "QUOTE":
		if len(args) != 1 {
			return nil, fmt.Errorf("bad quote %s", p)
		}
		return args[0], nil
	case "QUASIQUOTE", "BACKQUOTE":
		if len(args) != 1 {
			return nil, fmt.Errorf("bad backquote %s", p)
		}
		return c.evalForExpansion(qqExpand(args[0], 1), scope)
	case "IF":
		if len(args) < 2 || len(args) > 3 {
			return nil, fmt.Errorf("bad if %s", p)
		}
		cond, err := c.evalForExpansion(args[0], scope)
		if err != nil {
			return nil, err
		}
		if !lisp.IsNull(cond) {
			return c.evalForExpansion(args[1], scope)
		}
		if len(args) == 3 {
			return c.evalForExpansion(args[2], scope)
		}
		return lisp.Nil, nil
	case "PROGN":
		var out lisp.SExpression = lisp.Nil
		for _, a := range args {
			v, err := c.evalForExpansion(a, scope)
			if err != nil {
				return nil, err
			}
			out = v
		}
		return out, nil
	case "LET":
		if len(args) < 1 {
			return nil, fmt.Errorf("bad let %s", p)
		}
		bindings, err := parseLetBindings(args[0])
		if err != nil {
			return nil, err
		}
		inner := &macroScope{vars: map[lisp.Symbol]lisp.SExpression{}, parent: scope}
		for _, b := range bindings {
			v, err := c.evalForExpansion(b.value, scope)
			if err != nil {
				return nil, err
			}
			inner.bind(b.name, v)
		}
		var out lisp.SExpression = lisp.Nil
		for _, f := range args[1:] {
			v, err := c.evalForExpansion(f, inner)
			if err != nil {
				return nil, err
			}
			out = v
		}
		return out, nil
	}
	vals := make([]lisp.SExpression, len(args))
	for i, a := range args {
		v, err := c.evalForExpansion(a, scope)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return applyExpansionFn(head, vals)
}

func applyExpansionFn(name lisp.Symbol, args []lisp.SExpression) (lisp.SExpression, error) {
	boolean := func(b bool) lisp.SExpression {
		if b {
			return lisp.T
		}
		return lisp.Nil
	}
	switch name.Name {
	case "CONS":
		if len(args) != 2 {
			return nil, arity(name, args)
		}
		return lisp.Cons(args[0], args[1]), nil
	case "CAR":
		if len(args) != 1 {
			return nil, arity(name, args)
		}
		if lisp.IsNull(args[0]) {
			return lisp.Nil, nil
		}
		p, ok := args[0].(*lisp.Pair)
		if !ok {
			return nil, fmt.Errorf("CAR of non-list %s", args[0])
		}
		return p.Car, nil
	case "CDR":
		if len(args) != 1 {
			return nil, arity(name, args)
		}
		if lisp.IsNull(args[0]) {
			return lisp.Nil, nil
		}
		p, ok := args[0].(*lisp.Pair)
		if !ok {
			return nil, fmt.Errorf("CDR of non-list %s", args[0])
		}
		return p.Cdr, nil
	case "LIST":
		return lisp.List(args...), nil
	case "LIST*":
		if len(args) == 0 {
			return nil, arity(name, args)
		}
		return lisp.ListStar(args...), nil
	case "APPEND":
		var out lisp.SExpression = lisp.Nil
		for i := len(args) - 1; i >= 0; i-- {
			if i == len(args)-1 {
				out = args[i]
				continue
			}
			elems, ok := lisp.Elements(args[i])
			if !ok {
				return nil, fmt.Errorf("APPEND of improper list %s", args[i])
			}
			for j := len(elems) - 1; j >= 0; j-- {
				out = lisp.Cons(elems[j], out)
			}
		}
		return out, nil
	case "NULL", "NOT":
		if len(args) != 1 {
			return nil, arity(name, args)
		}
		return boolean(lisp.IsNull(args[0])), nil
	case "ATOM":
		if len(args) != 1 {
			return nil, arity(name, args)
		}
		_, isPair := args[0].(*lisp.Pair)
		return boolean(!isPair), nil
	case "CONSP":
		if len(args) != 1 {
			return nil, arity(name, args)
		}
		_, isPair := args[0].(*lisp.Pair)
		return boolean(isPair), nil
	case "EQ", "EQL":
		if len(args) != 2 {
			return nil, arity(name, args)
		}
		return boolean(lisp.Eql(args[0], args[1])), nil
	case "GENSYM":
		return lisp.Gensym("G"), nil
	case "+", "-", "*":
		if len(args) == 0 {
			return nil, arity(name, args)
		}
		acc, ok := args[0].(lisp.Integer)
		if !ok {
			return nil, fmt.Errorf("%s wants integers, got %s", name, args[0])
		}
		for _, a := range args[1:] {
			n, ok := a.(lisp.Integer)
			if !ok {
				return nil, fmt.Errorf("%s wants integers, got %s", name, a)
			}
			switch name.Name {
			case "+":
				acc += n
			case "-":
				acc -= n
			case "*":
				acc *= n
			}
		}
		return acc, nil
	}
	return nil, fmt.Errorf("the function %s is not available at macro expansion time", name)
}

func arity(name lisp.Symbol, args []lisp.SExpression) error {
	return fmt.Errorf("wrong number of arguments to %s: %d", name, len(args))
}

// destructure matches a macro call's arguments against the macro's
// lambda list, binding into the scope. Defaults are evaluated with the
// expansion-time evaluator.
func (c *Compiler) destructure(ll *lambdaList, args lisp.SExpression, scope *macroScope) error {
	rest := args
	for _, req := range ll.required {
		p, ok := rest.(*lisp.Pair)
		if !ok {
			return fmt.Errorf("too few arguments")
		}
		scope.bind(req, p.Car)
		rest = p.Cdr
	}
	for _, opt := range ll.optional {
		if p, ok := rest.(*lisp.Pair); ok {
			scope.bind(opt.name, p.Car)
			if opt.hasSvar {
				scope.bind(opt.svar, lisp.T)
			}
			rest = p.Cdr
			continue
		}
		def, err := c.evalForExpansion(opt.def, scope)
		if err != nil {
			return err
		}
		scope.bind(opt.name, def)
		if opt.hasSvar {
			scope.bind(opt.svar, lisp.Nil)
		}
	}
	if ll.hasRest {
		scope.bind(ll.rest, rest)
	}
	if ll.hasKeys {
		elems, ok := lisp.Elements(rest)
		if !ok || len(elems)%2 != 0 {
			return fmt.Errorf("odd number of keyword arguments")
		}
		for _, key := range ll.keys {
			var found lisp.SExpression
			seen := false
			for i := 0; i < len(elems); i += 2 {
				if lisp.Eql(elems[i], key.keyword) {
					found = elems[i+1]
					seen = true
					break
				}
			}
			if !seen {
				def, err := c.evalForExpansion(key.def, scope)
				if err != nil {
					return err
				}
				found = def
			}
			scope.bind(key.name, found)
			if key.hasSvar {
				if seen {
					scope.bind(key.svar, lisp.T)
				} else {
					scope.bind(key.svar, lisp.Nil)
				}
			}
		}
		return nil
	}
	if !ll.hasRest && !lisp.IsNull(rest) {
		return fmt.Errorf("too many arguments")
	}
	return nil
}
