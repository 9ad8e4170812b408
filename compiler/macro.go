package compiler

import (
	"fmt"

	"github.com/snmsts/jscl/lisp"
)

// Expander rewrites a macro call form into its expansion.
type Expander func(form lisp.SExpression, env *Env) (lisp.SExpression, error)

// DefineMacro registers a global macro backed by a Go expander.
func (c *Compiler) DefineMacro(name lisp.Symbol, fn Expander) {
	c.macros[name] = fn
}

// macroexpand1 performs one expansion step: symbol macros in the
// variable namespace, macrolet and global macros in the function
// namespace.
func (c *Compiler) macroexpand1(form lisp.SExpression, env *Env) (lisp.SExpression, bool, error) {
	switch x := form.(type) {
	case lisp.Symbol:
		if b := env.Lookup(x, NSVariable); b != nil && b.Kind == KindSymbolMacro {
			return b.Expansion, true, nil
		}
	case *lisp.Pair:
		head, ok := x.Car.(lisp.Symbol)
		if !ok {
			return form, false, nil
		}
		if b := env.Lookup(head, NSFunction); b != nil {
			if b.Kind != KindMacro {
				return form, false, nil
			}
			expander, err := c.expanderFor(b)
			if err != nil {
				return nil, false, err
			}
			expanded, err := expander(form, env)
			return expanded, true, err
		}
		if fn, ok := c.macros[head]; ok {
			expanded, err := fn(form, env)
			return expanded, true, err
		}
	}
	return form, false, nil
}

// macroexpand expands to a fixpoint.
func (c *Compiler) macroexpand(form lisp.SExpression, env *Env) (lisp.SExpression, error) {
	for {
		expanded, again, err := c.macroexpand1(form, env)
		if err != nil {
			return nil, err
		}
		if !again {
			return expanded, nil
		}
		form = expanded
	}
}

// expanderFor compiles a source-form macro definition into a callable,
// caching per binding so repeated expansion is amortized.
func (c *Compiler) expanderFor(b *Binding) (Expander, error) {
	if b.Expander != nil {
		return b.Expander, nil
	}
	if cached, ok := c.macroCache[b]; ok {
		return cached, nil
	}
	def, ok := b.Expansion.(*lisp.Pair)
	if !ok {
		return nil, fmt.Errorf("bad macro definition for %s", b.Name)
	}
	ll, err := parseLambdaList(def.Car)
	if err != nil {
		return nil, err
	}
	body, proper := lisp.Elements(def.Cdr)
	if !proper {
		return nil, fmt.Errorf("bad macro body for %s", b.Name)
	}
	expander := func(form lisp.SExpression, env *Env) (lisp.SExpression, error) {
		call, ok := form.(*lisp.Pair)
		if !ok {
			return nil, fmt.Errorf("bad macro call %s", form)
		}
		scope := &macroScope{vars: map[lisp.Symbol]lisp.SExpression{}}
		if err := c.destructure(ll, call.Cdr, scope); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name, err)
		}
		var out lisp.SExpression = lisp.Nil
		for _, f := range body {
			v, err := c.evalForExpansion(f, scope)
			if err != nil {
				return nil, err
			}
			out = v
		}
		return out, nil
	}
	c.macroCache[b] = expander
	return expander, nil
}
