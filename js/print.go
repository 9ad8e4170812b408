package js

import (
	"fmt"
	"strconv"
	"strings"
)

// Print serializes statements to JavaScript source. Every statement gets
// an explicit terminator; compound expressions are parenthesized rather
// than tracking operator precedence.
func Print(stmts []Stmt) string {
	p := &printer{}
	for _, s := range stmts {
		p.stmt(s)
	}
	return p.b.String()
}

// PrintExpr serializes a single expression.
func PrintExpr(e Expr) string {
	p := &printer{}
	p.expr(e)
	return p.b.String()
}

type printer struct {
	b      strings.Builder
	indent int
}

func (p *printer) line(s string) {
	p.b.WriteString(strings.Repeat("  ", p.indent))
	p.b.WriteString(s)
	p.b.WriteByte('\n')
}

func (p *printer) open(s string) {
	p.line(s)
	p.indent++
}

func (p *printer) close(s string) {
	p.indent--
	p.line(s)
}

func (p *printer) stmt(s Stmt) {
	switch x := s.(type) {
	case SVar:
		if x.Init == nil {
			p.line("var " + x.Name + ";")
		} else {
			p.line("var " + x.Name + " = " + PrintExpr(x.Init) + ";")
		}
	case SExpr:
		p.line(PrintExpr(x.Value) + ";")
	case SIf:
		p.open("if (" + PrintExpr(x.Cond) + ") {")
		p.stmts(x.Then)
		if x.Else == nil {
			p.close("}")
		} else {
			p.indent--
			p.line("} else {")
			p.indent++
			p.stmts(x.Else)
			p.close("}")
		}
	case SBlock:
		p.open("{")
		p.stmts(x.Stmts)
		p.close("}")
	case SWhile:
		p.open("while (" + PrintExpr(x.Cond) + ") {")
		p.stmts(x.Body)
		p.close("}")
	case SFor:
		init := ""
		switch i := x.Init.(type) {
		case SVar:
			init = "var " + i.Name
			if i.Init != nil {
				init += " = " + PrintExpr(i.Init)
			}
		case SExpr:
			init = PrintExpr(i.Value)
		}
		cond := ""
		if x.Cond != nil {
			cond = PrintExpr(x.Cond)
		}
		post := ""
		if x.Post != nil {
			post = PrintExpr(x.Post)
		}
		p.open("for (" + init + "; " + cond + "; " + post + ") {")
		p.stmts(x.Body)
		p.close("}")
	case SForIn:
		p.open("for (var " + x.Var + " in " + PrintExpr(x.Obj) + ") {")
		p.stmts(x.Body)
		p.close("}")
	case SLabel:
		p.line(x.Name + ":")
		p.stmt(x.Stmt)
	case SBreak:
		if x.Label == "" {
			p.line("break;")
		} else {
			p.line("break " + x.Label + ";")
		}
	case SContinue:
		if x.Label == "" {
			p.line("continue;")
		} else {
			p.line("continue " + x.Label + ";")
		}
	case SSwitch:
		p.open("switch (" + PrintExpr(x.Disc) + ") {")
		for _, c := range x.Cases {
			p.line("case " + PrintExpr(c.Value) + ":")
			p.indent++
			p.stmts(c.Body)
			p.indent--
		}
		if x.Default != nil {
			p.line("default:")
			p.indent++
			p.stmts(x.Default)
			p.indent--
		}
		p.close("}")
	case STry:
		p.open("try {")
		p.stmts(x.Body)
		if x.CatchVar != "" {
			p.indent--
			p.line("} catch (" + x.CatchVar + ") {")
			p.indent++
			p.stmts(x.Catch)
		}
		if x.Finally != nil {
			p.indent--
			p.line("} finally {")
			p.indent++
			p.stmts(x.Finally)
		}
		p.close("}")
	case SThrow:
		p.line("throw " + PrintExpr(x.Value) + ";")
	case SReturn:
		if x.Value == nil {
			p.line("return;")
		} else {
			p.line("return " + PrintExpr(x.Value) + ";")
		}
	default:
		panic(fmt.Sprintf("js: unknown statement %T", s))
	}
}

func (p *printer) stmts(list []Stmt) {
	for _, s := range list {
		p.stmt(s)
	}
}

func (p *printer) expr(e Expr) {
	switch x := e.(type) {
	case EIdent:
		p.b.WriteString(x.Name)
	case EInt:
		p.b.WriteString(strconv.FormatInt(x.Value, 10))
	case EFloat:
		s := strconv.FormatFloat(x.Value, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		p.b.WriteString(s)
	case EString:
		p.b.WriteString(strconv.Quote(x.Value))
	case EArray:
		p.b.WriteByte('[')
		for i, el := range x.Elems {
			if i > 0 {
				p.b.WriteString(", ")
			}
			p.expr(el)
		}
		p.b.WriteByte(']')
	case EObject:
		p.b.WriteByte('{')
		for i, prop := range x.Props {
			if i > 0 {
				p.b.WriteString(", ")
			}
			p.b.WriteString(strconv.Quote(prop.Key))
			p.b.WriteString(": ")
			p.expr(prop.Value)
		}
		p.b.WriteByte('}')
	case EFunction:
		p.b.WriteString("(function")
		if x.Name != "" {
			p.b.WriteByte(' ')
			p.b.WriteString(x.Name)
		}
		p.b.WriteByte('(')
		p.b.WriteString(strings.Join(x.Params, ", "))
		p.b.WriteString("){\n")
		inner := &printer{indent: p.indent + 1}
		inner.stmts(x.Body)
		p.b.WriteString(inner.b.String())
		p.b.WriteString(strings.Repeat("  ", p.indent))
		p.b.WriteString("})")
	case ECall:
		p.expr(x.Fn)
		p.args(x.Args)
	case ENew:
		p.b.WriteString("new ")
		p.expr(x.Ctor)
		p.args(x.Args)
	case EDot:
		p.member(x.Obj)
		p.b.WriteByte('.')
		p.b.WriteString(x.Name)
	case EIndex:
		p.member(x.Obj)
		p.b.WriteByte('[')
		p.expr(x.Index)
		p.b.WriteByte(']')
	case EAssign:
		p.expr(x.Target)
		p.b.WriteString(" = ")
		p.expr(x.Value)
	case EBinary:
		p.b.WriteByte('(')
		p.expr(x.L)
		p.b.WriteByte(' ')
		p.b.WriteString(x.Op)
		p.b.WriteByte(' ')
		p.expr(x.R)
		p.b.WriteByte(')')
	case EUnary:
		p.b.WriteByte('(')
		p.b.WriteString(x.Op)
		if x.Op == "typeof" || x.Op == "delete" {
			p.b.WriteByte(' ')
		}
		p.expr(x.Operand)
		p.b.WriteByte(')')
	case ECond:
		p.b.WriteByte('(')
		p.expr(x.Cond)
		p.b.WriteString(" ? ")
		p.expr(x.Then)
		p.b.WriteString(" : ")
		p.expr(x.Else)
		p.b.WriteByte(')')
	default:
		panic(fmt.Sprintf("js: unknown expression %T", e))
	}
}

// member prints the receiver of a property access, parenthesized when it
// is not already a postfix-safe expression.
func (p *printer) member(e Expr) {
	switch e.(type) {
	case EIdent, EDot, EIndex, ECall, EFunction:
		p.expr(e)
	default:
		p.b.WriteByte('(')
		p.expr(e)
		p.b.WriteByte(')')
	}
}

func (p *printer) args(list []Expr) {
	p.b.WriteByte('(')
	for i, a := range list {
		if i > 0 {
			p.b.WriteString(", ")
		}
		p.expr(a)
	}
	p.b.WriteByte(')')
}
