package compiler

import (
	"fmt"

	"github.com/snmsts/jscl/js"
	"github.com/snmsts/jscl/lisp"
)

// convertSpecial dispatches the special forms. The third return value
// is false when the head names no special form.
func (c *Compiler) convertSpecial(head lisp.Symbol, args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error, bool) {
	var e js.Expr
	var err error
	switch head.Name {
	case "IF":
		e, err = c.compileIf(args, env, t, d, mv)
	case "QUOTE":
		e, err = c.compileQuote(args, t, d)
	case "SETQ":
		e, err = c.compileSetq(args, env, t, d)
	case "PROGN":
		e, err = c.convertProgn(args, env, t, d, mv)
	case "LET":
		e, err = c.compileLet(args, env, t, d, mv)
	case "LET*":
		e, err = c.compileLetStar(args, env, t, d, mv)
	case "FLET":
		e, err = c.compileFlet(args, env, t, d, mv)
	case "LABELS":
		e, err = c.compileLabels(args, env, t, d, mv)
	case "FUNCTION":
		e, err = c.compileFunction(args, env, t, d)
	case "LAMBDA":
		// a bare lambda form denotes its function
		e, err = c.compileFunction([]lisp.SExpression{lisp.List(append([]lisp.SExpression{head}, args...)...)}, env, t, d)
	case "MACROLET":
		e, err = c.compileMacrolet(args, env, t, d, mv)
	case "SYMBOL-MACROLET":
		e, err = c.compileSymbolMacrolet(args, env, t, d, mv)
	case "BLOCK":
		e, err = c.compileBlock(args, env, t, d, mv)
	case "RETURN-FROM":
		e, err = c.compileReturnFrom(args, env, t, d)
	case "TAGBODY":
		e, err = c.compileTagbody(args, env, t, d)
	case "GO":
		e, err = c.compileGo(args, env, t)
	case "CATCH":
		e, err = c.compileCatch(args, env, t, d, mv)
	case "THROW":
		e, err = c.compileThrow(args, env, t, d)
	case "UNWIND-PROTECT":
		e, err = c.compileUnwindProtect(args, env, t, d, mv)
	case "EVAL-WHEN":
		e, err = c.compileEvalWhen(args, env, t, d, mv)
	case "MULTIPLE-VALUE-CALL":
		e, err = c.compileMultipleValueCall(args, env, t, d, mv)
	case "MULTIPLE-VALUE-PROG1":
		e, err = c.compileMultipleValueProg1(args, env, t, d)
	case "QUASIQUOTE", "BACKQUOTE":
		if len(args) != 1 {
			return nil, fmt.Errorf("bad backquote"), true
		}
		e, err = c.convert(qqExpand(args[0], 1), env, t, d, mv)
	case "%WHILE":
		e, err = c.compileWhile(args, env, t, d)
	case "%JS-TRY":
		e, err = c.compileJSTry(args, env, t, d, mv)
	default:
		return nil, nil, false
	}
	return e, err, true
}

func (c *Compiler) compileIf(args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("bad if form")
	}
	cond, err := c.convertFresh(args[0], env, t, false)
	if err != nil {
		return nil, err
	}
	d = c.resolve(t, d)
	thenTarget := NewTarget()
	if _, err := c.convert(args[1], env, thenTarget, d, mv); err != nil {
		return nil, err
	}
	elseTarget := NewTarget()
	var elseForm lisp.SExpression = lisp.Nil
	if len(args) == 3 {
		elseForm = args[2]
	}
	if _, err := c.convert(elseForm, env, elseTarget, d, mv); err != nil {
		return nil, err
	}
	elseStmts := elseTarget.Statements()
	if elseStmts == nil {
		// an else arm with no statements still prints as a block
		elseStmts = []js.Stmt{}
	}
	t.Push(js.SIf{
		Cond: js.EBinary{Op: "!==", L: cond, R: c.nilValue()},
		Then: thenTarget.Statements(),
		Else: elseStmts,
	})
	return result(d), nil
}

func (c *Compiler) compileQuote(args []lisp.SExpression, t *Target, d dest) (js.Expr, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("bad quote form")
	}
	lit, err := c.literal(args[0])
	if err != nil {
		return nil, err
	}
	return c.emit(t, lit, d), nil
}

func (c *Compiler) compileSetq(args []lisp.SExpression, env *Env, t *Target, d dest) (js.Expr, error) {
	if len(args)%2 != 0 {
		return nil, fmt.Errorf("odd number of forms to setq")
	}
	if len(args) == 0 {
		return c.emit(t, c.nilValue(), d), nil
	}
	var out js.Expr
	for i := 0; i < len(args); i += 2 {
		sym, ok := args[i].(lisp.Symbol)
		if !ok {
			return nil, fmt.Errorf("setq of non-symbol %s", args[i])
		}
		dd := discard()
		if i+2 >= len(args) {
			dd = d
		}
		b := env.Lookup(sym, NSVariable)
		var err error
		switch {
		case b != nil && b.Kind == KindSymbolMacro:
			// a symbol macro place goes through setf
			form := lisp.List(lisp.NewSymbol("SETF"), sym, args[i+1])
			out, err = c.convert(form, env, t, dd, false)
		case b != nil && b.Kind == KindVariable && !b.Has(DeclSpecial) && !b.Has(DeclConstant):
			var v js.Expr
			v, err = c.convertFresh(args[i+1], env, t, false)
			if err == nil {
				out = c.emit(t, js.EAssign{Target: js.EIdent{Name: b.JSName}, Value: v}, dd)
			}
		default:
			var v js.Expr
			v, err = c.convertFresh(args[i+1], env, t, false)
			if err == nil {
				var lit js.Expr
				lit, err = c.literal(sym)
				if err == nil {
					out = c.emit(t, js.ECall{Fn: internal("set"), Args: []js.Expr{lit, v}}, dd)
				}
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type letBinding struct {
	name  lisp.Symbol
	value lisp.SExpression
}

func parseLetBindings(e lisp.SExpression) ([]letBinding, error) {
	elems, ok := lisp.Elements(e)
	if !ok {
		return nil, fmt.Errorf("bad let bindings %s", e)
	}
	out := make([]letBinding, 0, len(elems))
	for _, el := range elems {
		switch x := el.(type) {
		case lisp.Symbol:
			out = append(out, letBinding{name: x, value: lisp.Nil})
		case *lisp.Pair:
			parts, ok := lisp.Elements(x)
			if !ok || len(parts) == 0 || len(parts) > 2 {
				return nil, fmt.Errorf("bad let binding %s", el)
			}
			name, ok := parts[0].(lisp.Symbol)
			if !ok {
				return nil, fmt.Errorf("bad let binding %s", el)
			}
			b := letBinding{name: name, value: lisp.Nil}
			if len(parts) == 2 {
				b.value = parts[1]
			}
			out = append(out, b)
		default:
			return nil, fmt.Errorf("bad let binding %s", el)
		}
	}
	return out, nil
}

func (c *Compiler) isSpecialVariable(sym lisp.Symbol, declared map[lisp.Symbol]bool) bool {
	return declared[sym] || c.specials[sym]
}

// compileLet evaluates every value in the outer environment, then
// installs the lexical bindings; special bindings route the body
// through the runtime's dynamic-binding helper.
func (c *Compiler) compileLet(args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad let form")
	}
	bindings, err := parseLetBindings(args[0])
	if err != nil {
		return nil, err
	}
	_, decls, body := parseBody(args[1:])
	declared := declaredSpecials(decls)

	scratch := NewEnv()
	var specialSyms []js.Expr
	var specialVals []js.Expr
	for _, b := range bindings {
		v, err := c.convertFresh(b.value, env, t, false)
		if err != nil {
			return nil, err
		}
		if c.isSpecialVariable(b.name, declared) {
			lit, err := c.literal(b.name)
			if err != nil {
				return nil, err
			}
			specialSyms = append(specialSyms, lit)
			specialVals = append(specialVals, v)
			continue
		}
		ident, ok := v.(js.EIdent)
		if !ok {
			return nil, fmt.Errorf("let value did not land in a slot")
		}
		scratch.push(NSVariable, &Binding{Name: b.name, Kind: KindVariable, JSName: ident.Name})
	}
	newEnv := env.Extend(NSVariable, scratch.ns[NSVariable]...)

	if len(specialSyms) == 0 {
		return c.convertProgn(body, newEnv, t, d, mv)
	}

	bodyTarget := NewTarget()
	rexpr, err := c.convertProgn(body, newEnv, bodyTarget, fresh(), mv)
	if err != nil {
		return nil, err
	}
	bodyTarget.Push(js.SReturn{Value: rexpr})
	call := js.ECall{
		Fn: internal("withDynamicBindings"),
		Args: []js.Expr{
			marker(mv),
			js.EArray{Elems: specialSyms},
			js.EArray{Elems: specialVals},
			js.EFunction{Params: []string{"values"}, Body: bodyTarget.Statements()},
		},
	}
	return c.emit(t, call, d), nil
}

// compileLetStar binds sequentially. A special binding saves the old
// value cell in a fresh slot and the body runs under try/finally so the
// cell is restored on every exit path.
func (c *Compiler) compileLetStar(args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad let* form")
	}
	bindings, err := parseLetBindings(args[0])
	if err != nil {
		return nil, err
	}
	_, decls, body := parseBody(args[1:])
	declared := declaredSpecials(decls)

	type savedSpecial struct {
		cell  js.Expr
		saved string
	}
	var specials []savedSpecial

	newEnv := env
	for _, b := range bindings {
		v, err := c.convertFresh(b.value, newEnv, t, false)
		if err != nil {
			return nil, err
		}
		if c.isSpecialVariable(b.name, declared) {
			lit, err := c.literal(b.name)
			if err != nil {
				return nil, err
			}
			cell := js.EDot{Obj: lit, Name: "value"}
			saved := c.genVar()
			t.Push(js.SVar{Name: saved, Init: cell})
			t.Push(js.SExpr{Value: js.EAssign{Target: cell, Value: v}})
			specials = append(specials, savedSpecial{cell: cell, saved: saved})
			continue
		}
		ident, ok := v.(js.EIdent)
		if !ok {
			return nil, fmt.Errorf("let* value did not land in a slot")
		}
		newEnv = newEnv.Extend(NSVariable, &Binding{Name: b.name, Kind: KindVariable, JSName: ident.Name})
	}

	if len(specials) == 0 {
		return c.convertProgn(body, newEnv, t, d, mv)
	}

	d = c.resolve(t, d)
	bodyTarget := NewTarget()
	if _, err := c.convertProgn(body, newEnv, bodyTarget, d, mv); err != nil {
		return nil, err
	}
	restore := []js.Stmt{}
	for i := len(specials) - 1; i >= 0; i-- {
		restore = append(restore, js.SExpr{Value: js.EAssign{
			Target: specials[i].cell,
			Value:  js.EIdent{Name: specials[i].saved},
		}})
	}
	t.Push(js.STry{Body: bodyTarget.Statements(), Finally: restore})
	return result(d), nil
}

type localFunction struct {
	name lisp.SExpression
	ll   lisp.SExpression
	body []lisp.SExpression
}

func parseLocalFunctions(e lisp.SExpression) ([]localFunction, error) {
	defs, ok := lisp.Elements(e)
	if !ok {
		return nil, fmt.Errorf("bad local function definitions %s", e)
	}
	out := make([]localFunction, 0, len(defs))
	for _, def := range defs {
		parts, ok := lisp.Elements(def)
		if !ok || len(parts) < 2 {
			return nil, fmt.Errorf("bad local function definition %s", def)
		}
		if _, ok := parts[0].(lisp.Symbol); !ok {
			return nil, fmt.Errorf("bad local function name %s", parts[0])
		}
		out = append(out, localFunction{name: parts[0], ll: parts[1], body: parts[2:]})
	}
	return out, nil
}

// compileFlet compiles the definitions in the outer environment and
// passes them as arguments to one function holding the body.
func (c *Compiler) compileFlet(args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad flet form")
	}
	defs, err := parseLocalFunctions(args[0])
	if err != nil {
		return nil, err
	}
	fnExprs := make([]js.Expr, len(defs))
	bindings := make([]*Binding, len(defs))
	for i, def := range defs {
		fn, err := c.compileLambda("", def.name, def.ll, def.body, env)
		if err != nil {
			return nil, err
		}
		fnExprs[i] = fn
		bindings[i] = &Binding{Name: def.name, Kind: KindFunction, JSName: c.genVar()}
	}
	newEnv := env.Extend(NSFunction, bindings...)
	bodyTarget := NewTarget()
	rexpr, err := c.convertProgn(args[1:], newEnv, bodyTarget, fresh(), mv)
	if err != nil {
		return nil, err
	}
	bodyTarget.Push(js.SReturn{Value: rexpr})
	params := make([]string, len(bindings))
	for i, b := range bindings {
		params[i] = b.JSName
	}
	call := js.ECall{
		Fn:   js.EFunction{Params: params, Body: bodyTarget.Statements()},
		Args: fnExprs,
	}
	return c.emit(t, call, d), nil
}

// compileLabels allocates the function slots first so the definitions
// can see one another.
func (c *Compiler) compileLabels(args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad labels form")
	}
	defs, err := parseLocalFunctions(args[0])
	if err != nil {
		return nil, err
	}
	bindings := make([]*Binding, len(defs))
	for i, def := range defs {
		bindings[i] = &Binding{Name: def.name, Kind: KindFunction, JSName: c.genVar()}
	}
	newEnv := env.Extend(NSFunction, bindings...)
	bodyTarget := NewTarget()
	for i, def := range defs {
		fn, err := c.compileLambda("", def.name, def.ll, def.body, newEnv)
		if err != nil {
			return nil, err
		}
		bodyTarget.Push(js.SVar{Name: bindings[i].JSName, Init: fn})
	}
	rexpr, err := c.convertProgn(args[1:], newEnv, bodyTarget, fresh(), mv)
	if err != nil {
		return nil, err
	}
	bodyTarget.Push(js.SReturn{Value: rexpr})
	call := js.ECall{Fn: js.EFunction{Body: bodyTarget.Statements()}}
	return c.emit(t, call, d), nil
}

func (c *Compiler) compileFunction(args []lisp.SExpression, env *Env, t *Target, d dest) (js.Expr, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("bad function form")
	}
	switch x := args[0].(type) {
	case lisp.Symbol:
		if b := env.Lookup(x, NSFunction); b != nil {
			if b.Kind != KindFunction {
				return nil, fmt.Errorf("%s names a macro, not a function", x)
			}
			return c.emit(t, js.EIdent{Name: b.JSName}, d), nil
		}
		lit, err := c.literal(x)
		if err != nil {
			return nil, err
		}
		return c.emit(t, js.ECall{Fn: internal("symbolFunction"), Args: []js.Expr{lit}}, d), nil
	case *lisp.Pair:
		parts, ok := lisp.Elements(x)
		if !ok || len(parts) < 2 {
			return nil, fmt.Errorf("bad function designator %s", x)
		}
		head, ok := parts[0].(lisp.Symbol)
		if !ok {
			return nil, fmt.Errorf("bad function designator %s", x)
		}
		switch head.Name {
		case "LAMBDA":
			fn, err := c.compileLambda("", nil, parts[1], parts[2:], env)
			if err != nil {
				return nil, err
			}
			return c.emit(t, fn, d), nil
		case "NAMED-LAMBDA":
			if len(parts) < 3 {
				return nil, fmt.Errorf("bad named-lambda %s", x)
			}
			name, ok := parts[1].(lisp.Symbol)
			if !ok {
				return nil, fmt.Errorf("bad named-lambda name %s", parts[1])
			}
			fn, err := c.compileLambda(jsFunctionName(name.Name), name, parts[2], parts[3:], env)
			if err != nil {
				return nil, err
			}
			return c.emit(t, fn, d), nil
		}
	}
	return nil, fmt.Errorf("bad function designator %s", args[0])
}

func (c *Compiler) compileMacrolet(args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad macrolet form")
	}
	defs, err := parseLocalFunctions(args[0])
	if err != nil {
		return nil, err
	}
	bindings := make([]*Binding, len(defs))
	for i, def := range defs {
		bindings[i] = &Binding{
			Name:      def.name,
			Kind:      KindMacro,
			Expansion: lisp.Cons(def.ll, lisp.List(def.body...)),
		}
	}
	return c.convertProgn(args[1:], env.Extend(NSFunction, bindings...), t, d, mv)
}

func (c *Compiler) compileSymbolMacrolet(args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad symbol-macrolet form")
	}
	defs, ok := lisp.Elements(args[0])
	if !ok {
		return nil, fmt.Errorf("bad symbol-macrolet definitions %s", args[0])
	}
	bindings := make([]*Binding, len(defs))
	for i, def := range defs {
		parts, ok := lisp.Elements(def)
		if !ok || len(parts) != 2 {
			return nil, fmt.Errorf("bad symbol-macrolet definition %s", def)
		}
		name, ok := parts[0].(lisp.Symbol)
		if !ok {
			return nil, fmt.Errorf("bad symbol-macrolet name %s", parts[0])
		}
		bindings[i] = &Binding{Name: name, Kind: KindSymbolMacro, Expansion: parts[1]}
	}
	return c.convertProgn(args[1:], env.Extend(NSVariable, bindings...), t, d, mv)
}

// compileBlock compiles the body first; the non-local exit scaffolding
// is emitted only when some return-from actually used the block.
func (c *Compiler) compileBlock(args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad block form")
	}
	name, ok := args[0].(lisp.Symbol)
	if !ok {
		return nil, fmt.Errorf("bad block name %s", args[0])
	}
	idvar := c.genVar()
	b := &Binding{Name: name, Kind: KindBlock, JSName: idvar}
	if mv {
		b.Mark(DeclMultipleValue)
	}
	newEnv := env.Extend(NSBlock, b)
	bodyTarget := NewTarget()
	rexpr, err := c.convertProgn(args[1:], newEnv, bodyTarget, fresh(), mv)
	if err != nil {
		return nil, err
	}

	if !b.Has(DeclUsed) {
		for _, s := range bodyTarget.Statements() {
			t.Push(s)
		}
		return c.emit(t, rexpr, d), nil
	}

	bodyTarget.Push(js.SReturn{Value: rexpr})
	cf := c.genVar()
	var extract js.Expr
	if mv {
		extract = js.ECall{
			Fn: js.EDot{Obj: js.EIdent{Name: "values"}, Name: "apply"},
			Args: []js.Expr{
				js.EIdent{Name: "this"},
				js.ECall{Fn: internal("forcemv"), Args: []js.Expr{js.EDot{Obj: js.EIdent{Name: cf}, Name: "values"}}},
			},
		}
	} else {
		extract = js.EDot{Obj: js.EIdent{Name: cf}, Name: "values"}
	}
	fn := js.EFunction{Body: []js.Stmt{
		js.SVar{Name: idvar, Init: js.EArray{}},
		js.STry{
			Body:     bodyTarget.Statements(),
			CatchVar: cf,
			Catch: []js.Stmt{
				js.SIf{
					Cond: js.EBinary{
						Op: "&&",
						L:  js.EBinary{Op: "instanceof", L: js.EIdent{Name: cf}, R: internal("BlockNLX")},
						R:  js.EBinary{Op: "===", L: js.EDot{Obj: js.EIdent{Name: cf}, Name: "id"}, R: js.EIdent{Name: idvar}},
					},
					Then: []js.Stmt{js.SReturn{Value: extract}},
				},
				js.SThrow{Value: js.EIdent{Name: cf}},
			},
		},
	}}
	return c.emit(t, js.ECall{Fn: fn}, d), nil
}

func (c *Compiler) compileReturnFrom(args []lisp.SExpression, env *Env, t *Target, d dest) (js.Expr, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("bad return-from form")
	}
	name, ok := args[0].(lisp.Symbol)
	if !ok {
		return nil, fmt.Errorf("bad block name %s", args[0])
	}
	b := env.Lookup(name, NSBlock)
	if b == nil {
		return nil, fmt.Errorf("return from unknown block %s", name)
	}
	b.Mark(DeclUsed)
	var value lisp.SExpression = lisp.Nil
	if len(args) == 2 {
		value = args[1]
	}
	v, err := c.convertFresh(value, env, t, b.Has(DeclMultipleValue))
	if err != nil {
		return nil, err
	}
	t.Push(js.SThrow{Value: js.ENew{
		Ctor: internal("BlockNLX"),
		Args: []js.Expr{js.EIdent{Name: b.JSName}, v, js.EString{Value: name.Name}},
	}})
	return c.nilValue(), nil
}

func goTagP(form lisp.SExpression) bool {
	switch form.(type) {
	case lisp.Symbol, lisp.Integer:
		return true
	}
	return false
}

// compileTagbody lowers to a labeled dispatch loop: a switch on the
// branch variable inside while(true), each tag a case, each form a run
// of statements falling through to the next case. go throws; the catch
// re-enters the switch with the new branch.
func (c *Compiler) compileTagbody(args []lisp.SExpression, env *Env, t *Target, d dest) (js.Expr, error) {
	hasTags := false
	for _, form := range args {
		if goTagP(form) {
			hasTags = true
			break
		}
	}
	if !hasTags {
		forms := append(append([]lisp.SExpression{lisp.NewSymbol("PROGN")}, args...), lisp.Nil)
		return c.convert(lisp.List(forms...), env, t, d, false)
	}
	if len(args) > 0 && !goTagP(args[0]) {
		args = append([]lisp.SExpression{lisp.Gensym("START")}, args...)
	}

	branch := c.genVarPrefixed("branch")
	tbidx := c.genVarPrefixed("tbidx")

	scratch := NewEnv()
	index := 0
	tagIndex := map[int]int{}
	for i, form := range args {
		if goTagP(form) {
			index++
			tagIndex[i] = index
			scratch.push(NSGotag, &Binding{
				Name:     form,
				Kind:     KindGotag,
				JSName:   branch,
				TagVar:   tbidx,
				TagIndex: index,
			})
		}
	}
	newEnv := env.Extend(NSGotag, scratch.ns[NSGotag]...)

	t.Push(js.SVar{Name: tbidx, Init: js.EArray{}})
	t.Push(js.SVar{Name: branch, Init: js.EInt{Value: 1}})

	cases := []js.Case{}
	var current *Target
	for i, form := range args {
		if goTagP(form) {
			current = NewTarget()
			cases = append(cases, js.Case{Value: js.EInt{Value: int64(tagIndex[i])}})
			continue
		}
		if _, err := c.convert(form, newEnv, current, discard(), false); err != nil {
			return nil, err
		}
		cases[len(cases)-1].Body = current.Statements()
	}

	label := c.genVarPrefixed("tbloop")
	jump := c.genVar()
	loop := js.SWhile{
		Cond: js.EIdent{Name: "true"},
		Body: []js.Stmt{js.STry{
			Body: []js.Stmt{js.SSwitch{
				Disc:    js.EIdent{Name: branch},
				Cases:   cases,
				Default: []js.Stmt{js.SBreak{Label: label}},
			}},
			CatchVar: jump,
			Catch: []js.Stmt{js.SIf{
				Cond: js.EBinary{
					Op: "&&",
					L:  js.EBinary{Op: "instanceof", L: js.EIdent{Name: jump}, R: internal("TagNLX")},
					R:  js.EBinary{Op: "===", L: js.EDot{Obj: js.EIdent{Name: jump}, Name: "id"}, R: js.EIdent{Name: tbidx}},
				},
				Then: []js.Stmt{js.SExpr{Value: js.EAssign{
					Target: js.EIdent{Name: branch},
					Value:  js.EDot{Obj: js.EIdent{Name: jump}, Name: "label"},
				}}},
				Else: []js.Stmt{js.SThrow{Value: js.EIdent{Name: jump}}},
			}},
		}},
	}
	t.Push(js.SLabel{Name: label, Stmt: loop})
	return c.emit(t, c.nilValue(), d), nil
}

func (c *Compiler) compileGo(args []lisp.SExpression, env *Env, t *Target) (js.Expr, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("bad go form")
	}
	if !goTagP(args[0]) {
		return nil, fmt.Errorf("bad go tag %s", args[0])
	}
	b := env.Lookup(args[0], NSGotag)
	if b == nil {
		return nil, fmt.Errorf("unknown tag %s", args[0])
	}
	t.Push(js.SThrow{Value: js.ENew{
		Ctor: internal("TagNLX"),
		Args: []js.Expr{js.EIdent{Name: b.TagVar}, js.EInt{Value: int64(b.TagIndex)}},
	}})
	return c.nilValue(), nil
}

func (c *Compiler) compileCatch(args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad catch form")
	}
	ft := NewTarget()
	id, err := c.convertFresh(args[0], env, ft, false)
	if err != nil {
		return nil, err
	}
	bodyTarget := NewTarget()
	rexpr, err := c.convertProgn(args[1:], env, bodyTarget, fresh(), mv)
	if err != nil {
		return nil, err
	}
	bodyTarget.Push(js.SReturn{Value: rexpr})

	cf := c.genVar()
	wrapper := internal("pv")
	if mv {
		wrapper = js.EIdent{Name: "values"}
	}
	extract := js.ECall{
		Fn: js.EDot{Obj: wrapper, Name: "apply"},
		Args: []js.Expr{
			js.EIdent{Name: "this"},
			js.ECall{Fn: internal("forcemv"), Args: []js.Expr{js.EDot{Obj: js.EIdent{Name: cf}, Name: "values"}}},
		},
	}
	ft.Push(js.STry{
		Body:     bodyTarget.Statements(),
		CatchVar: cf,
		Catch: []js.Stmt{
			js.SIf{
				Cond: js.EBinary{
					Op: "&&",
					L:  js.EBinary{Op: "instanceof", L: js.EIdent{Name: cf}, R: internal("CatchNLX")},
					R:  js.EBinary{Op: "===", L: js.EDot{Obj: js.EIdent{Name: cf}, Name: "id"}, R: id},
				},
				Then: []js.Stmt{js.SReturn{Value: extract}},
			},
			js.SThrow{Value: js.EIdent{Name: cf}},
		},
	})
	return c.emit(t, js.ECall{Fn: js.EFunction{Body: ft.Statements()}}, d), nil
}

func (c *Compiler) compileThrow(args []lisp.SExpression, env *Env, t *Target, d dest) (js.Expr, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("bad throw form")
	}
	ft := NewTarget()
	// rebind the values channel so the thrown value keeps all its
	// values
	ft.Push(js.SVar{Name: "values", Init: internal("mv")})
	id, err := c.convertFresh(args[0], env, ft, false)
	if err != nil {
		return nil, err
	}
	v, err := c.convertFresh(args[1], env, ft, true)
	if err != nil {
		return nil, err
	}
	ft.Push(js.SThrow{Value: js.ENew{Ctor: internal("CatchNLX"), Args: []js.Expr{id, v}}})
	t.Push(js.SExpr{Value: js.ECall{Fn: js.EFunction{Body: ft.Statements()}}})
	return c.nilValue(), nil
}

func (c *Compiler) compileUnwindProtect(args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad unwind-protect form")
	}
	r := c.genVar()
	t.Push(js.SVar{Name: r})
	bodyTarget := NewTarget()
	if _, err := c.convert(args[0], env, bodyTarget, into(r), mv); err != nil {
		return nil, err
	}
	cleanupTarget := NewTarget()
	for _, form := range args[1:] {
		if _, err := c.convert(form, env, cleanupTarget, discard(), false); err != nil {
			return nil, err
		}
	}
	t.Push(js.STry{Body: bodyTarget.Statements(), Finally: cleanupTarget.Statements()})
	return c.emit(t, js.EIdent{Name: r}, d), nil
}

// compileEvalWhen follows the source's observable behavior; see the
// design notes for the caveats.
func (c *Compiler) compileEvalWhen(args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad eval-when form")
	}
	situations, ok := lisp.Elements(args[0])
	if !ok {
		return nil, fmt.Errorf("bad eval-when situations %s", args[0])
	}
	has := func(name string) bool {
		for _, s := range situations {
			if sym, ok := s.(lisp.Symbol); ok && sym.Name == name {
				return true
			}
		}
		return false
	}
	body := args[1:]
	if c.CompilingFile && c.level <= 1 {
		if has("COMPILE-TOPLEVEL") {
			scope := &macroScope{vars: map[lisp.Symbol]lisp.SExpression{}}
			for _, form := range body {
				if _, err := c.evalForExpansion(form, scope); err != nil {
					return nil, err
				}
			}
		}
		if has("LOAD-TOPLEVEL") {
			return c.convertProgn(body, env, t, d, mv)
		}
		return c.emit(t, c.nilValue(), d), nil
	}
	if has("EXECUTE") {
		return c.convertProgn(body, env, t, d, mv)
	}
	return c.emit(t, c.nilValue(), d), nil
}

// compileMultipleValueCall gathers every argument form's values into
// one array, concatenating multiple-value objects and pushing
// singletons, then applies the function.
func (c *Compiler) compileMultipleValueCall(args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad multiple-value-call form")
	}
	ft := NewTarget()
	f, err := c.convertFresh(args[0], env, ft, false)
	if err != nil {
		return nil, err
	}
	argsVar := c.genVar()
	ft.Push(js.SVar{Name: argsVar, Init: js.EArray{Elems: []js.Expr{marker(mv)}}})

	inner := NewTarget()
	inner.Push(js.SVar{Name: "values", Init: internal("mv")})
	vs := c.genVar()
	inner.Push(js.SVar{Name: vs})
	for _, form := range args[1:] {
		if _, err := c.convert(form, env, inner, into(vs), true); err != nil {
			return nil, err
		}
		inner.Push(js.SIf{
			Cond: js.EBinary{
				Op: "&&",
				L:  js.EBinary{Op: "===", L: js.EUnary{Op: "typeof", Operand: js.EIdent{Name: vs}}, R: js.EString{Value: "object"}},
				R:  js.EBinary{Op: "in", L: js.EString{Value: "multiple-value"}, R: js.EIdent{Name: vs}},
			},
			Then: []js.Stmt{js.SExpr{Value: js.EAssign{
				Target: js.EIdent{Name: argsVar},
				Value:  js.ECall{Fn: js.EDot{Obj: js.EIdent{Name: argsVar}, Name: "concat"}, Args: []js.Expr{js.EIdent{Name: vs}}},
			}}},
			Else: []js.Stmt{js.SExpr{Value: js.ECall{
				Fn:   js.EDot{Obj: js.EIdent{Name: argsVar}, Name: "push"},
				Args: []js.Expr{js.EIdent{Name: vs}},
			}}},
		})
	}
	inner.Push(js.SReturn{Value: js.ECall{
		Fn:   js.EDot{Obj: f, Name: "apply"},
		Args: []js.Expr{js.EIdent{Name: "null"}, js.EIdent{Name: argsVar}},
	}})
	ft.Push(js.SReturn{Value: js.ECall{Fn: js.EFunction{Body: inner.Statements()}}})
	return c.emit(t, js.ECall{Fn: js.EFunction{Body: ft.Statements()}}, d), nil
}

func (c *Compiler) compileMultipleValueProg1(args []lisp.SExpression, env *Env, t *Target, d dest) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad multiple-value-prog1 form")
	}
	rexpr, err := c.convert(args[0], env, t, d, true)
	if err != nil {
		return nil, err
	}
	for _, form := range args[1:] {
		if _, err := c.convert(form, env, t, discard(), false); err != nil {
			return nil, err
		}
	}
	return rexpr, nil
}

// compileWhile loops while the predicate, computed by an inline
// self-call, is not nil. The result is nil.
func (c *Compiler) compileWhile(args []lisp.SExpression, env *Env, t *Target, d dest) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad %%while form")
	}
	predTarget := NewTarget()
	pred, err := c.convertFresh(args[0], env, predTarget, false)
	if err != nil {
		return nil, err
	}
	predTarget.Push(js.SReturn{Value: pred})
	bodyTarget := NewTarget()
	for _, form := range args[1:] {
		if _, err := c.convert(form, env, bodyTarget, discard(), false); err != nil {
			return nil, err
		}
	}
	t.Push(js.SWhile{
		Cond: js.EBinary{
			Op: "!==",
			L:  js.ECall{Fn: js.EFunction{Body: predTarget.Statements()}},
			R:  c.nilValue(),
		},
		Body: bodyTarget.Statements(),
	})
	return c.emit(t, c.nilValue(), d), nil
}

// compileJSTry accepts (%js-try form [(catch (var) body...)]
// [(finally body...)]), translating the JS exception to a lisp value on
// catch.
func (c *Compiler) compileJSTry(args []lisp.SExpression, env *Env, t *Target, d dest, mv bool) (js.Expr, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("bad %%js-try form")
	}
	r := c.genVar()
	t.Push(js.SVar{Name: r})
	bodyTarget := NewTarget()
	if _, err := c.convert(args[0], env, bodyTarget, into(r), mv); err != nil {
		return nil, err
	}
	try := js.STry{Body: bodyTarget.Statements()}

	for _, clause := range args[1:] {
		parts, ok := lisp.Elements(clause)
		if !ok || len(parts) == 0 {
			return nil, fmt.Errorf("bad %%js-try clause %s", clause)
		}
		head, ok := parts[0].(lisp.Symbol)
		if !ok {
			return nil, fmt.Errorf("bad %%js-try clause %s", clause)
		}
		switch head.Name {
		case "CATCH":
			if try.CatchVar != "" || len(parts) < 2 {
				return nil, fmt.Errorf("bad %%js-try clause %s", clause)
			}
			vars, ok := lisp.Elements(parts[1])
			if !ok || len(vars) != 1 {
				return nil, fmt.Errorf("bad %%js-try catch variables %s", parts[1])
			}
			sym, ok := vars[0].(lisp.Symbol)
			if !ok {
				return nil, fmt.Errorf("bad %%js-try catch variable %s", vars[0])
			}
			cv := c.genVar()
			b := &Binding{Name: sym, Kind: KindVariable, JSName: c.genVar()}
			catchTarget := NewTarget()
			catchTarget.Push(js.SVar{
				Name: b.JSName,
				Init: js.ECall{Fn: internal("js_to_lisp"), Args: []js.Expr{js.EIdent{Name: cv}}},
			})
			if _, err := c.convertProgn(parts[2:], env.Extend(NSVariable, b), catchTarget, into(r), mv); err != nil {
				return nil, err
			}
			try.CatchVar = cv
			try.Catch = catchTarget.Statements()
		case "FINALLY":
			if try.Finally != nil {
				return nil, fmt.Errorf("bad %%js-try clause %s", clause)
			}
			finallyTarget := NewTarget()
			for _, form := range parts[1:] {
				if _, err := c.convert(form, env, finallyTarget, discard(), false); err != nil {
					return nil, err
				}
			}
			try.Finally = finallyTarget.Statements()
		default:
			return nil, fmt.Errorf("bad %%js-try clause %s", clause)
		}
	}
	t.Push(try)
	return c.emit(t, js.EIdent{Name: r}, d), nil
}
