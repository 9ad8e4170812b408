package compiler

import (
	"fmt"

	"github.com/snmsts/jscl/js"
	"github.com/snmsts/jscl/lisp"
)

// Builtins expand at compile time into open-coded JS instead of a
// function call. A lexical function binding or a notinline declaration
// takes the name back to the funcall path.
type builtinFn func(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error)

var builtins map[string]builtinFn

func init() {
	builtins = map[string]builtinFn{
		"+":             compileAdd,
		"-":             compileSub,
		"*":             compileMul,
		"/":             compileDiv,
		"=":             comparison("=="),
		"<":             comparison("<"),
		">":             comparison(">"),
		"<=":            comparison("<="),
		">=":            comparison(">="),
		"CONS":          compileCons,
		"CAR":           consAccessor("car", "CAR called on non-list argument"),
		"CDR":           consAccessor("cdr", "CDR called on non-list argument"),
		"RPLACA":        consMutator("car"),
		"RPLACD":        consMutator("cdr"),
		"CONSP":         compileConsp,
		"ATOM":          compileAtom,
		"LISTP":         compileListp,
		"EQ":            compileEq,
		"EQL":           compileEq,
		"LIST":          compileList,
		"VALUES":        compileValues,
		"FUNCALL":       compileFuncallBuiltin,
		"SYMBOLP":       compileSymbolp,
		"NUMBERP":       compileNumberp,
		"STRINGP":       compileStringp,
		"CHARACTERP":    compileCharacterp,
		"CHAR-CODE":     runtimeCall1("char_to_codepoint"),
		"CODE-CHAR":     runtimeCall1("char_from_codepoint"),
		"CHAR-UPCASE":   runtimeCall1("safe_char_upcase"),
		"CHAR-DOWNCASE": runtimeCall1("safe_char_downcase"),
		"OGET":          compileOget,
		"OSET":          compileOset,
	}
}

func wantArgs(name string, args []lisp.SExpression, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		return fmt.Errorf("wrong number of arguments to %s: %d", name, len(args))
	}
	return nil
}

// throwExpr is a throw usable in expression position.
func throwExpr(msg string) js.Expr {
	return js.ECall{Fn: js.EFunction{Body: []js.Stmt{js.SThrow{Value: js.EString{Value: msg}}}}}
}

// checkedNumber guards one numeric operand with a typeof check.
func checkedNumber(e js.Expr) js.Expr {
	return js.ECond{
		Cond: js.EBinary{Op: "===", L: js.EUnary{Op: "typeof", Operand: e}, R: js.EString{Value: "number"}},
		Then: e,
		Else: throwExpr("Not a number!"),
	}
}

// boolExpr maps a JS boolean onto t/nil.
func (c *Compiler) boolExpr(cond js.Expr) js.Expr {
	return js.ECond{Cond: cond, Then: c.tValue(), Else: c.nilValue()}
}

// isConsExpr tests for the runtime cons representation: an object with
// a car field.
func isConsExpr(e js.Expr) js.Expr {
	return js.EBinary{
		Op: "&&",
		L:  js.EBinary{Op: "===", L: js.EUnary{Op: "typeof", Operand: e}, R: js.EString{Value: "object"}},
		R:  js.EBinary{Op: "in", L: js.EString{Value: "car"}, R: e},
	}
}

func compileAdd(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return c.emit(t, js.EInt{Value: 0}, d), nil
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	acc := checkedNumber(exprs[0])
	for _, e := range exprs[1:] {
		acc = js.EBinary{Op: "+", L: acc, R: checkedNumber(e)}
	}
	return c.emit(t, acc, d), nil
}

func compileSub(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("-", args, 1, -1); err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	if len(exprs) == 1 {
		return c.emit(t, js.EUnary{Op: "-", Operand: checkedNumber(exprs[0])}, d), nil
	}
	acc := checkedNumber(exprs[0])
	for _, e := range exprs[1:] {
		acc = js.EBinary{Op: "-", L: acc, R: checkedNumber(e)}
	}
	return c.emit(t, acc, d), nil
}

func compileMul(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return c.emit(t, js.EInt{Value: 1}, d), nil
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	acc := checkedNumber(exprs[0])
	for _, e := range exprs[1:] {
		acc = js.EBinary{Op: "*", L: acc, R: checkedNumber(e)}
	}
	return c.emit(t, acc, d), nil
}

// compileDiv folds through the runtime division helper, which traps a
// zero divisor.
func compileDiv(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("/", args, 1, -1); err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	if len(exprs) == 1 {
		call := js.ECall{Fn: internal("handled_division"), Args: []js.Expr{js.EInt{Value: 1}, checkedNumber(exprs[0])}}
		return c.emit(t, call, d), nil
	}
	acc := checkedNumber(exprs[0])
	for _, e := range exprs[1:] {
		acc = js.ECall{Fn: internal("handled_division"), Args: []js.Expr{acc, checkedNumber(e)}}
	}
	return c.emit(t, acc, d), nil
}

// comparison chains pairwise: (< a b c) is a<b && b<c, folded left.
func comparison(op string) builtinFn {
	return func(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
		if err := wantArgs(op, args, 1, -1); err != nil {
			return nil, err
		}
		exprs, err := c.convertArgs(args, env, t)
		if err != nil {
			return nil, err
		}
		if len(exprs) == 1 {
			return c.emit(t, c.boolExpr(js.EBinary{
				Op: "===",
				L:  js.EUnary{Op: "typeof", Operand: exprs[0]},
				R:  js.EString{Value: "number"},
			}), d), nil
		}
		var chain js.Expr
		for i := 0; i < len(exprs)-1; i++ {
			test := js.EBinary{Op: op, L: checkedNumber(exprs[i]), R: checkedNumber(exprs[i+1])}
			if chain == nil {
				chain = test
			} else {
				chain = js.EBinary{Op: "&&", L: chain, R: test}
			}
		}
		return c.emit(t, c.boolExpr(chain), d), nil
	}
}

func compileCons(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("CONS", args, 2, 2); err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	obj := js.EObject{Props: []js.Prop{
		{Key: "car", Value: exprs[0]},
		{Key: "cdr", Value: exprs[1]},
	}}
	return c.emit(t, obj, d), nil
}

// consAccessor nil-checks its argument and throws on a non-list.
func consAccessor(field, errMsg string) builtinFn {
	name := "CAR"
	if field == "cdr" {
		name = "CDR"
	}
	return func(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
		if err := wantArgs(name, args, 1, 1); err != nil {
			return nil, err
		}
		exprs, err := c.convertArgs(args, env, t)
		if err != nil {
			return nil, err
		}
		x := js.EIdent{Name: "x"}
		fn := js.EFunction{Params: []string{"x"}, Body: []js.Stmt{
			js.SIf{
				Cond: js.EBinary{Op: "===", L: x, R: c.nilValue()},
				Then: []js.Stmt{js.SReturn{Value: c.nilValue()}},
			},
			js.SIf{
				Cond: isConsExpr(x),
				Then: []js.Stmt{js.SReturn{Value: js.EDot{Obj: x, Name: field}}},
			},
			js.SThrow{Value: js.EString{Value: errMsg}},
		}}
		return c.emit(t, js.ECall{Fn: fn, Args: exprs}, d), nil
	}
}

func consMutator(field string) builtinFn {
	name := "RPLACA"
	if field == "cdr" {
		name = "RPLACD"
	}
	return func(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
		if err := wantArgs(name, args, 2, 2); err != nil {
			return nil, err
		}
		exprs, err := c.convertArgs(args, env, t)
		if err != nil {
			return nil, err
		}
		x := js.EIdent{Name: "x"}
		fn := js.EFunction{Params: []string{"x", "v"}, Body: []js.Stmt{
			js.SIf{
				Cond: isConsExpr(x),
				Then: []js.Stmt{
					js.SExpr{Value: js.EAssign{Target: js.EDot{Obj: x, Name: field}, Value: js.EIdent{Name: "v"}}},
					js.SReturn{Value: x},
				},
			},
			js.SThrow{Value: js.EString{Value: name + " called on non-cons argument"}},
		}}
		return c.emit(t, js.ECall{Fn: fn, Args: exprs}, d), nil
	}
}

func compileConsp(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("CONSP", args, 1, 1); err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	return c.emit(t, c.boolExpr(isConsExpr(exprs[0])), d), nil
}

func compileAtom(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("ATOM", args, 1, 1); err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	return c.emit(t, c.boolExpr(js.EUnary{Op: "!", Operand: isConsExpr(exprs[0])}), d), nil
}

func compileListp(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("LISTP", args, 1, 1); err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	test := js.EBinary{
		Op: "||",
		L:  js.EBinary{Op: "===", L: exprs[0], R: c.nilValue()},
		R:  isConsExpr(exprs[0]),
	}
	return c.emit(t, c.boolExpr(test), d), nil
}

func compileEq(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("EQ", args, 2, 2); err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	return c.emit(t, c.boolExpr(js.EBinary{Op: "===", L: exprs[0], R: exprs[1]}), d), nil
}

func compileList(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	acc := c.nilValue()
	for i := len(exprs) - 1; i >= 0; i-- {
		acc = js.EObject{Props: []js.Prop{
			{Key: "car", Value: exprs[i]},
			{Key: "cdr", Value: acc},
		}}
	}
	return c.emit(t, acc, d), nil
}

// compileValues routes through the caller's values channel, or the
// primary-value wrapper when nobody asked for more.
func compileValues(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	return c.emit(t, js.ECall{Fn: marker(mv), Args: exprs}, d), nil
}

func compileFuncallBuiltin(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("FUNCALL", args, 1, -1); err != nil {
		return nil, err
	}
	f, err := c.convertFresh(args[0], env, t, false)
	if err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args[1:], env, t)
	if err != nil {
		return nil, err
	}
	call := js.ECall{Fn: f, Args: append([]js.Expr{marker(mv)}, exprs...)}
	return c.emit(t, call, d), nil
}

func compileSymbolp(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("SYMBOLP", args, 1, 1); err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	test := js.EBinary{Op: "instanceof", L: exprs[0], R: internal("Symbol")}
	return c.emit(t, c.boolExpr(test), d), nil
}

func compileNumberp(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("NUMBERP", args, 1, 1); err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	test := js.EBinary{Op: "===", L: js.EUnary{Op: "typeof", Operand: exprs[0]}, R: js.EString{Value: "number"}}
	return c.emit(t, c.boolExpr(test), d), nil
}

// compileStringp relies on the runtime string representation: an object
// carrying a stringp tag field.
func compileStringp(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("STRINGP", args, 1, 1); err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	test := js.EBinary{
		Op: "&&",
		L:  js.EBinary{Op: "===", L: js.EUnary{Op: "typeof", Operand: exprs[0]}, R: js.EString{Value: "object"}},
		R:  js.EBinary{Op: "in", L: js.EString{Value: "stringp"}, R: exprs[0]},
	}
	return c.emit(t, c.boolExpr(test), d), nil
}

// compileCharacterp accepts JS strings of length 1 or 2, admitting
// surrogate pairs.
func compileCharacterp(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("CHARACTERP", args, 1, 1); err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	length := js.EDot{Obj: exprs[0], Name: "length"}
	test := js.EBinary{
		Op: "&&",
		L:  js.EBinary{Op: "===", L: js.EUnary{Op: "typeof", Operand: exprs[0]}, R: js.EString{Value: "string"}},
		R: js.EBinary{
			Op: "||",
			L:  js.EBinary{Op: "===", L: length, R: js.EInt{Value: 1}},
			R:  js.EBinary{Op: "===", L: length, R: js.EInt{Value: 2}},
		},
	}
	return c.emit(t, c.boolExpr(test), d), nil
}

func runtimeCall1(fn string) builtinFn {
	return func(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
		if err := wantArgs(fn, args, 1, 1); err != nil {
			return nil, err
		}
		exprs, err := c.convertArgs(args, env, t)
		if err != nil {
			return nil, err
		}
		return c.emit(t, js.ECall{Fn: internal(fn), Args: exprs}, d), nil
	}
}

// compileOget walks a property chain on a JS object and translates the
// result back to lisp.
func compileOget(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("OGET", args, 1, -1); err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	acc := exprs[0]
	for _, key := range exprs[1:] {
		acc = js.EIndex{Obj: acc, Index: js.ECall{Fn: internal("xstring"), Args: []js.Expr{key}}}
	}
	return c.emit(t, js.ECall{Fn: internal("js_to_lisp"), Args: []js.Expr{acc}}, d), nil
}

// compileOset is (oset value obj key...): the chained property set.
func compileOset(c *Compiler, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if err := wantArgs("OSET", args, 3, -1); err != nil {
		return nil, err
	}
	exprs, err := c.convertArgs(args, env, t)
	if err != nil {
		return nil, err
	}
	value, obj, keys := exprs[0], exprs[1], exprs[2:]
	acc := obj
	for _, key := range keys[:len(keys)-1] {
		acc = js.EIndex{Obj: acc, Index: js.ECall{Fn: internal("xstring"), Args: []js.Expr{key}}}
	}
	assign := js.EAssign{
		Target: js.EIndex{Obj: acc, Index: js.ECall{Fn: internal("xstring"), Args: []js.Expr{keys[len(keys)-1]}}},
		Value:  js.ECall{Fn: internal("lisp_to_js"), Args: []js.Expr{value}},
	}
	t.Push(js.SExpr{Value: assign})
	return c.emit(t, value, d), nil
}
