package compiler

import (
	"github.com/snmsts/jscl/lisp"
)

// qqExpand rewrites a backquote template into calls to the list
// constructors, honoring nested quasiquotation depth.
func qqExpand(form lisp.SExpression, depth int) lisp.SExpression {
	p, ok := form.(*lisp.Pair)
	if !ok {
		return lisp.List(lisp.NewSymbol("QUOTE"), form)
	}
	if head, ok := p.Car.(lisp.Symbol); ok {
		switch head.Name {
		case "UNQUOTE":
			arg := qqSecond(p)
			if depth == 1 {
				return arg
			}
			return lisp.List(lisp.NewSymbol("LIST"),
				lisp.List(lisp.NewSymbol("QUOTE"), lisp.NewSymbol("UNQUOTE")),
				qqExpand(arg, depth-1))
		case "QUASIQUOTE":
			return lisp.List(lisp.NewSymbol("LIST"),
				lisp.List(lisp.NewSymbol("QUOTE"), lisp.NewSymbol("QUASIQUOTE")),
				qqExpand(qqSecond(p), depth+1))
		}
	}
	return lisp.List(lisp.NewSymbol("APPEND"),
		qqExpandElement(p.Car, depth),
		qqExpand(p.Cdr, depth))
}

// qqExpandElement produces the list segment one template element
// contributes: spliced directly for ,@ at the active depth, a singleton
// otherwise.
func qqExpandElement(el lisp.SExpression, depth int) lisp.SExpression {
	if p, ok := el.(*lisp.Pair); ok {
		if head, ok := p.Car.(lisp.Symbol); ok && head.Name == "UNQUOTE-SPLICING" {
			if depth == 1 {
				return qqSecond(p)
			}
			return lisp.List(lisp.NewSymbol("LIST"),
				lisp.List(lisp.NewSymbol("LIST"),
					lisp.List(lisp.NewSymbol("QUOTE"), lisp.NewSymbol("UNQUOTE-SPLICING")),
					qqExpand(qqSecond(p), depth-1)))
		}
	}
	return lisp.List(lisp.NewSymbol("LIST"), qqExpand(el, depth))
}

func qqSecond(p *lisp.Pair) lisp.SExpression {
	if rest, ok := p.Cdr.(*lisp.Pair); ok {
		return rest.Car
	}
	return lisp.Nil
}
