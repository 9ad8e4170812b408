package compiler

import (
	"fmt"

	"github.com/snmsts/jscl/js"
	"github.com/snmsts/jscl/lisp"
)

// compileFuncall translates (f arg...) for each shape of f: a lexical
// function, a global function symbol, an inline lambda, or an FFI
// property chain.
func (c *Compiler) compileFuncall(fn lisp.SExpression, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	switch f := fn.(type) {
	case lisp.Symbol:
		if b := env.Lookup(f, NSFunction); b != nil && b.Kind == KindFunction {
			argExprs, err := c.convertArgs(args, env, t)
			if err != nil {
				return nil, err
			}
			call := js.ECall{
				Fn:   js.EIdent{Name: b.JSName},
				Args: append([]js.Expr{marker(mv)}, argExprs...),
			}
			return c.emit(t, call, d), nil
		}
		c.markCalled(f)
		lit, err := c.literal(f)
		if err != nil {
			return nil, err
		}
		argExprs, err := c.convertArgs(args, env, t)
		if err != nil {
			return nil, err
		}
		call := js.ECall{
			Fn:   js.EDot{Obj: lit, Name: "fvalue"},
			Args: append([]js.Expr{marker(mv)}, argExprs...),
		}
		return c.emit(t, call, d), nil
	case *lisp.Pair:
		head, ok := f.Car.(lisp.Symbol)
		if !ok {
			return nil, fmt.Errorf("bad function designator %s", fn)
		}
		switch head.Name {
		case "LAMBDA", "NAMED-LAMBDA":
			fnTarget := NewTarget()
			fnExpr, err := c.compileFunction([]lisp.SExpression{f}, env, fnTarget, fresh())
			if err != nil {
				return nil, err
			}
			for _, s := range fnTarget.Statements() {
				t.Push(s)
			}
			argExprs, err := c.convertArgs(args, env, t)
			if err != nil {
				return nil, err
			}
			call := js.ECall{Fn: fnExpr, Args: append([]js.Expr{marker(mv)}, argExprs...)}
			return c.emit(t, call, d), nil
		case "OGET":
			return c.compileFFICall(f, args, env, t, d)
		}
		return nil, fmt.Errorf("bad function designator %s", fn)
	default:
		return nil, fmt.Errorf("bad function designator %s", fn)
	}
}

// compileFFICall calls a JS method found through a property chain,
// coercing arguments out of lisp and the result back in. Calling
// through the last property keeps the receiver as `this`.
func (c *Compiler) compileFFICall(oget *lisp.Pair, args []lisp.SExpression, env *Env, t *Target, d dest) (js.Expr, error) {
	parts, ok := lisp.Elements(oget.Cdr)
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("bad oget designator %s", oget)
	}
	obj, err := c.convertFresh(parts[0], env, t, false)
	if err != nil {
		return nil, err
	}
	keys, err := c.convertArgs(parts[1:], env, t)
	if err != nil {
		return nil, err
	}
	argExprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	jsArgs := make([]js.Expr, len(argExprs))
	for i, a := range argExprs {
		jsArgs[i] = js.ECall{Fn: internal("lisp_to_js"), Args: []js.Expr{a}}
	}
	acc := obj
	for _, key := range keys {
		acc = js.EIndex{Obj: acc, Index: js.ECall{Fn: internal("xstring"), Args: []js.Expr{key}}}
	}
	call := js.ECall{Fn: acc, Args: jsArgs}
	return c.emit(t, js.ECall{Fn: internal("js_to_lisp"), Args: []js.Expr{call}}, d), nil
}
