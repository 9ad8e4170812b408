package compiler

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/snmsts/jscl/js"
	"github.com/snmsts/jscl/lisp"
)

// Compiler holds the per-unit compile context: name counters, the
// literal table, the toplevel initializer buffer, the function-info
// table and the global macro registry. One Compiler is one compilation
// unit.
type Compiler struct {
	varCounter int
	litCounter int

	literals map[lisp.SExpression]string
	toplevel *Target

	fnInfo     map[lisp.Symbol]*fnInfo
	macros     map[lisp.Symbol]Expander
	macroCache map[*Binding]Expander
	specials   map[lisp.Symbol]bool
	constants  map[lisp.Symbol]bool
	notinline  map[lisp.Symbol]bool

	globalEnv *Env

	// CompilingFile switches eval-when to its compile-file policy.
	CompilingFile bool

	// level tracks convert nesting; 1 means a toplevel form.
	level int
}

type fnInfo struct {
	defined bool
	called  bool
}

func New() *Compiler {
	c := &Compiler{
		literals:   map[lisp.SExpression]string{},
		toplevel:   NewTarget(),
		fnInfo:     map[lisp.Symbol]*fnInfo{},
		macros:     map[lisp.Symbol]Expander{},
		macroCache: map[*Binding]Expander{},
		specials:   map[lisp.Symbol]bool{},
		constants:  map[lisp.Symbol]bool{lisp.Nil: true, lisp.T: true},
		notinline:  map[lisp.Symbol]bool{},
		globalEnv:  NewEnv(),
	}
	return c
}

func (c *Compiler) genVar() string {
	c.varCounter++
	return "v" + strconv.Itoa(c.varCounter)
}

func (c *Compiler) genVarPrefixed(prefix string) string {
	c.varCounter++
	return prefix + strconv.Itoa(c.varCounter)
}

func (c *Compiler) genLit() string {
	c.litCounter++
	return "l" + strconv.Itoa(c.litCounter)
}

// internal references a function of the runtime namespace the emitted
// program links against.
func internal(name string) js.Expr {
	return js.EDot{Obj: js.EIdent{Name: "internals"}, Name: name}
}

// constantValue is `<literal>.value`, the runtime value cell of a
// constant symbol.
func (c *Compiler) constantValue(s lisp.Symbol) js.Expr {
	lit, _ := c.literal(s)
	return js.EDot{Obj: lit, Name: "value"}
}

func (c *Compiler) nilValue() js.Expr {
	return c.constantValue(lisp.Nil)
}

func (c *Compiler) tValue() js.Expr {
	return c.constantValue(lisp.T)
}

// marker is the values-context argument passed on every call: the
// current function's values channel in a multiple-value context, the
// primary-value wrapper otherwise.
func marker(mv bool) js.Expr {
	if mv {
		return js.EIdent{Name: "values"}
	}
	return internal("pv")
}

// ProclaimSpecial registers a globally special variable.
func (c *Compiler) ProclaimSpecial(s lisp.Symbol) {
	c.specials[s] = true
}

// ProclaimConstant registers a globally constant variable.
func (c *Compiler) ProclaimConstant(s lisp.Symbol) {
	c.constants[s] = true
}

// ProclaimNotinline stops a builtin from being open-coded.
func (c *Compiler) ProclaimNotinline(s lisp.Symbol) {
	c.notinline[s] = true
}

func (c *Compiler) markCalled(s lisp.Symbol) {
	info := c.fnInfo[s]
	if info == nil {
		info = &fnInfo{}
		c.fnInfo[s] = info
	}
	info.called = true
}

// NoteFunctionDefined records that the unit defines a function, so the
// undefined-function report stays quiet about it.
func (c *Compiler) NoteFunctionDefined(s lisp.Symbol) {
	info := c.fnInfo[s]
	if info == nil {
		info = &fnInfo{}
		c.fnInfo[s] = info
	}
	info.defined = true
}

// Warnings reports functions that were called but never defined in the
// unit, then resets the table.
func (c *Compiler) Warnings() []string {
	warnings := []string{}
	for sym, info := range c.fnInfo {
		if info.called && !info.defined {
			warnings = append(warnings, fmt.Sprintf("The function %s is undefined.", sym))
		}
	}
	sort.Strings(warnings)
	c.fnInfo = map[lisp.Symbol]*fnInfo{}
	return warnings
}

// convert lowers one form into the target, leaving its value where the
// destination says. It returns the expression holding the value (nil
// for a discarded one).
func (c *Compiler) convert(form lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	c.level++
	defer func() { c.level-- }()

	form, err := c.macroexpand(form, env)
	if err != nil {
		return nil, err
	}

	switch x := form.(type) {
	case lisp.Symbol:
		return c.convertSymbol(x, env, t, d)
	case lisp.Integer, lisp.Float, lisp.Character, lisp.String, *lisp.Vector:
		lit, err := c.literal(form)
		if err != nil {
			return nil, err
		}
		return c.emit(t, lit, d), nil
	case *lisp.Pair:
		return c.convertCons(x, env, t, d, mv)
	default:
		return nil, fmt.Errorf("cannot compile %s", form)
	}
}

func (c *Compiler) convertSymbol(s lisp.Symbol, env *Env, t *Target, d dest) (js.Expr, error) {
	b := env.Lookup(s, NSVariable)
	if b != nil && b.Kind == KindVariable && !b.Has(DeclSpecial) && !b.Has(DeclConstant) {
		return c.emit(t, js.EIdent{Name: b.JSName}, d), nil
	}
	if s.IsKeyword() || c.constants[s] || (b != nil && b.Has(DeclConstant)) {
		return c.emit(t, c.constantValue(s), d), nil
	}
	// an unbound or special variable reads its global value cell
	form := lisp.List(lisp.NewSymbol("SYMBOL-VALUE"), lisp.List(lisp.NewSymbol("QUOTE"), s))
	p := form.(*lisp.Pair)
	return c.convertCons(p, env, t, d, false)
}

func (c *Compiler) convertCons(p *lisp.Pair, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	args, ok := lisp.Elements(p.Cdr)
	if !ok {
		return nil, fmt.Errorf("improper form %s", p)
	}
	switch head := p.Car.(type) {
	case lisp.Symbol:
		if e, err, handled := c.convertSpecial(head, args, env, t, d, mv); handled {
			return e, err
		}
		if fb := env.Lookup(head, NSFunction); fb != nil && fb.Kind == KindFunction {
			return c.compileFuncall(p.Car, args, env, t, d, mv)
		}
		if fn, ok := builtins[head.Name]; ok && !c.notinline[head] {
			return fn(c, args, env, t, d, mv)
		}
		return c.compileFuncall(p.Car, args, env, t, d, mv)
	case *lisp.Pair:
		return c.compileFuncall(p.Car, args, env, t, d, mv)
	default:
		return nil, fmt.Errorf("bad function designator %s", p.Car)
	}
}

// convertFresh compiles a form for value into a fresh slot and returns
// the expression referencing it.
func (c *Compiler) convertFresh(form lisp.SExpression, env *Env, t *Target, mv bool) (js.Expr, error) {
	return c.convert(form, env, t, fresh(), mv)
}

// convertArgs compiles argument forms left to right, each into its own
// slot.
func (c *Compiler) convertArgs(args []lisp.SExpression, env *Env, t *Target) ([]js.Expr, error) {
	out := make([]js.Expr, len(args))
	for i, a := range args {
		e, err := c.convertFresh(a, env, t, false)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// convertProgn compiles a body: every form but the last for effect, the
// last one into the destination.
func (c *Compiler) convertProgn(forms []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(forms) == 0 {
		return c.emit(t, c.nilValue(), d), nil
	}
	for _, f := range forms[:len(forms)-1] {
		if _, err := c.convert(f, env, t, discard(), false); err != nil {
			return nil, err
		}
	}
	return c.convert(forms[len(forms)-1], env, t, d, mv)
}

// CompileToplevel compiles one toplevel form. Literal initializers come
// first in the returned statements, then the code.
func (c *Compiler) CompileToplevel(form lisp.SExpression) ([]js.Stmt, error) {
	c.toplevel = NewTarget()
	code := NewTarget()
	if err := c.convertToplevel(form, code, false); err != nil {
		return nil, err
	}
	stmts := append([]js.Stmt{}, c.toplevel.Statements()...)
	return append(stmts, code.Statements()...), nil
}

// convertToplevel flattens a leading progn so each subform is compiled
// as a toplevel form, then compiles. The subforms share the unit's
// literal table and initializer buffer.
func (c *Compiler) convertToplevel(form lisp.SExpression, t *Target, returnP bool) error {
	form, err := c.macroexpand(form, c.globalEnv)
	if err != nil {
		return err
	}
	if p, ok := form.(*lisp.Pair); ok {
		if head, ok := p.Car.(lisp.Symbol); ok && head.Name == "PROGN" {
			subforms, proper := lisp.Elements(p.Cdr)
			if proper {
				for i, sub := range subforms {
					if err := c.convertToplevel(sub, t, returnP && i == len(subforms)-1); err != nil {
						return err
					}
				}
				return nil
			}
		}
	}
	c.level = 0
	if returnP {
		e, err := c.convertFresh(form, c.globalEnv, t, false)
		if err != nil {
			return err
		}
		t.Push(js.SReturn{Value: e})
		return nil
	}
	_, err = c.convert(form, c.globalEnv, t, discard(), false)
	return err
}

// CompileString parses and compiles a whole unit, returning the
// JavaScript source.
func (c *Compiler) CompileString(src string) (string, error) {
	forms, err := lisp.ParseAll(src)
	if err != nil {
		return "", err
	}
	stmts := []js.Stmt{}
	for _, form := range forms {
		s, err := c.CompileToplevel(form)
		if err != nil {
			return "", err
		}
		stmts = append(stmts, s...)
	}
	return js.Print(stmts), nil
}
