package compiler

import (
	"fmt"

	"github.com/snmsts/jscl/js"
	"github.com/snmsts/jscl/lisp"
)

// MagicUnquote marks a cons whose second element is not data but code:
// the literal dumper compiles it with the toplevel buffer as target.
// This is the seam by which macros splice compile-time computation into
// dumped literals.
var MagicUnquote = lisp.Symbol{Name: "MAGIC-UNQUOTE", Pkg: "%JSCL"}

// literal returns a JS expression whose runtime value equals the form.
// Numbers dump as themselves and characters as one-character strings;
// everything else is interned in the literal table and initialized once
// per unit in the toplevel buffer.
// Interning covers nested structure too, so a cons or array reached
// twice inside one form compiles to one initializer and two references
// to it, preserving sharing in the reconstructed data.
func (c *Compiler) literal(form lisp.SExpression) (js.Expr, error) {
	switch x := form.(type) {
	case lisp.Integer:
		return js.EInt{Value: int64(x)}, nil
	case lisp.Float:
		return js.EFloat{Value: float64(x)}, nil
	case lisp.Character:
		return js.EString{Value: string(rune(x))}, nil
	}

	if p, ok := form.(*lisp.Pair); ok && lisp.Eql(p.Car, MagicUnquote) {
		rest, ok := p.Cdr.(*lisp.Pair)
		if !ok {
			return nil, fmt.Errorf("malformed magic unquote %s", p)
		}
		return c.convert(rest.Car, c.globalEnv, c.toplevel, fresh(), false)
	}

	if id, ok := c.literals[form]; ok {
		return js.EIdent{Name: id}, nil
	}

	var dumped js.Expr
	var err error
	switch x := form.(type) {
	case lisp.Symbol:
		dumped = dumpSymbol(x)
	case lisp.String:
		dumped = js.ECall{Fn: internal("make_lisp_string"), Args: []js.Expr{js.EString{Value: string(x)}}}
	case *lisp.Pair:
		dumped, err = c.dumpCons(x)
	case *lisp.Vector:
		dumped, err = c.dumpArray(x)
	default:
		err = fmt.Errorf("cannot dump %s as a literal", form)
	}
	if err != nil {
		return nil, err
	}

	id := c.genLit()
	c.literals[form] = id
	c.toplevel.Push(js.SVar{Name: id, Init: dumped})
	if sym, ok := form.(lisp.Symbol); ok && sym.IsKeyword() {
		// keywords evaluate to themselves
		c.toplevel.Push(js.SExpr{Value: js.EAssign{
			Target: js.EDot{Obj: js.EIdent{Name: id}, Name: "value"},
			Value:  js.EIdent{Name: id},
		}})
	}
	return js.EIdent{Name: id}, nil
}

func dumpSymbol(s lisp.Symbol) js.Expr {
	name := js.EString{Value: s.Name}
	switch s.Pkg {
	case "":
		return js.ENew{Ctor: internal("Symbol"), Args: []js.Expr{name}}
	case "CL", "JSCL":
		return js.ECall{Fn: internal("intern"), Args: []js.Expr{name}}
	default:
		return js.ECall{Fn: internal("intern"), Args: []js.Expr{name, js.EString{Value: s.Pkg}}}
	}
}

// dumpCons reifies a cons tree with the runtime list builder: the cars
// of the chain followed by the final cdr. The spine walk stops early at
// a cons already in the literal table, so a shared tail dumps as a
// reference to its one initializer.
func (c *Compiler) dumpCons(p *lisp.Pair) (js.Expr, error) {
	cars := []lisp.SExpression{}
	var tail lisp.SExpression = p
	for {
		pp, ok := tail.(*lisp.Pair)
		if !ok {
			break
		}
		if _, interned := c.literals[pp]; interned && len(cars) > 0 {
			break
		}
		cars = append(cars, pp.Car)
		tail = pp.Cdr
	}
	args := make([]js.Expr, 0, len(cars)+1)
	for _, car := range cars {
		e, err := c.literal(car)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	e, err := c.literal(tail)
	if err != nil {
		return nil, err
	}
	args = append(args, e)
	return js.ECall{Fn: internal("QIList"), Args: args}, nil
}

func (c *Compiler) dumpArray(v *lisp.Vector) (js.Expr, error) {
	elems := make([]js.Expr, len(v.Elems))
	for i, e := range v.Elems {
		dumped, err := c.literal(e)
		if err != nil {
			return nil, err
		}
		elems[i] = dumped
	}
	return js.EArray{Elems: elems}, nil
}
