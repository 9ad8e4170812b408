package compiler

import (
	"github.com/snmsts/jscl/js"
)

// Target is the append-only statement buffer the compiler emits into.
type Target struct {
	stmts []js.Stmt
}

func NewTarget() *Target {
	return &Target{}
}

func (t *Target) Push(s js.Stmt) {
	t.stmts = append(t.stmts, s)
}

func (t *Target) Statements() []js.Stmt {
	return t.stmts
}

type destKind uint8

const (
	destFresh destKind = iota
	destDiscard
	destVar
)

// dest says where a converted form's value goes: a freshly minted
// variable, an existing one, or nowhere.
type dest struct {
	kind destKind
	name string
}

func fresh() dest {
	return dest{kind: destFresh}
}

func discard() dest {
	return dest{kind: destDiscard}
}

func into(name string) dest {
	return dest{kind: destVar, name: name}
}

// emit is the single way the compiler writes a value-producing
// expression: as a discarded statement, into a fresh variable, or into
// an existing one. It returns the identifier now holding the value, or
// nil for a discard.
func (c *Compiler) emit(t *Target, e js.Expr, d dest) js.Expr {
	switch d.kind {
	case destDiscard:
		// discarding a side-effect-free expression emits nothing
		switch e.(type) {
		case js.EIdent, js.EInt, js.EFloat, js.EString:
		default:
			t.Push(js.SExpr{Value: e})
		}
		return nil
	case destFresh:
		id := c.genVar()
		t.Push(js.SVar{Name: id})
		t.Push(js.SExpr{Value: js.EAssign{Target: js.EIdent{Name: id}, Value: e}})
		return js.EIdent{Name: id}
	default:
		t.Push(js.SExpr{Value: js.EAssign{Target: js.EIdent{Name: d.name}, Value: e}})
		return js.EIdent{Name: d.name}
	}
}

// resolve pins a fresh destination to a declared variable so that
// several branches can assign the same slot.
func (c *Compiler) resolve(t *Target, d dest) dest {
	if d.kind == destFresh {
		id := c.genVar()
		t.Push(js.SVar{Name: id})
		return into(id)
	}
	return d
}

// result is the value expression of a resolved destination.
func result(d dest) js.Expr {
	if d.kind == destVar {
		return js.EIdent{Name: d.name}
	}
	return nil
}
