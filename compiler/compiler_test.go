package compiler

import (
	"strings"
	"testing"

	"github.com/snmsts/jscl/js"
	"github.com/snmsts/jscl/lisp"
)

func compileString(t *testing.T, src string) string {
	t.Helper()
	c := New()
	out, err := c.CompileString(src)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	return out
}

func TestScenarios(t *testing.T) {
	// each case lists substrings the generated code must and must not
	// contain
	for i, tt := range []struct {
		input   string
		want    []string
		wantNot []string
	}{
		{
			input: "(+ 1 2 3)",
			want:  []string{"var v1", "Not a number!", " + "},
		},
		{
			input:   "(let ((x 1) (y 2)) (+ x y))",
			want:    []string{"var v1", "var v2"},
			wantNot: []string{"NLX", "withDynamicBindings"},
		},
		{
			input: `(block outer
                      (tagbody
                        (setq x 0)
                       start
                        (if (>= x 3) (return-from outer x))
                        (setq x (+ x 1))
                        (go start)))`,
			want: []string{
				"instanceof internals.BlockNLX",
				"instanceof internals.TagNLX",
				"while (true)",
				"switch (",
				"case 1:",
				"case 2:",
			},
		},
		{
			input: "(catch 'k (throw 'k 42))",
			want: []string{
				"instanceof internals.CatchNLX",
				"new internals.CatchNLX",
				"internals.forcemv",
			},
		},
		{
			input:   "(unwind-protect (foo) (bar))",
			want:    []string{"try {", "} finally {"},
			wantNot: []string{"catch ("},
		},
		{
			input: "(quote (1 2 3))",
			want:  []string{"internals.QIList(1, 2, 3, "},
		},
		{
			input: `(quote "hello")`,
			want:  []string{`internals.make_lisp_string("hello")`},
		},
		{
			input: ":foo",
			want:  []string{`internals.intern("FOO", "KEYWORD")`, "l1.value = l1"},
		},
		{
			input:   "(tagbody (foo))",
			wantNot: []string{"TagNLX", "while"},
		},
		{
			input:   "(block b (foo))",
			wantNot: []string{"BlockNLX", "try"},
		},
		{
			input: "(%while (foo) (bar))",
			want:  []string{"while ((", "!=="},
		},
		{
			input: "(multiple-value-call (function list) (values 1 2) 3)",
			want:  []string{`"multiple-value"`, ".concat(", ".apply(null", "internals.symbolFunction"},
		},
		{
			input: "(if (foo) 1 2)",
			want:  []string{"if ((", "} else {"},
		},
		{
			input: "(funcall (lambda (x) x) 5)",
			want:  []string{"(function(values, v1){", "internals.checkArgs("},
		},
	} {
		got := compileString(t, tt.input)
		for _, want := range tt.want {
			if !strings.Contains(got, want) {
				t.Errorf("%d) missing %q in:\n%s", i, want, got)
			}
		}
		for _, not := range tt.wantNot {
			if strings.Contains(got, not) {
				t.Errorf("%d) unexpected %q in:\n%s", i, not, got)
			}
		}
	}
}

func TestBlockTagbodyScaffoldingCounts(t *testing.T) {
	got := compileString(t, `(block outer
      (tagbody
        (setq x 0)
       start
        (if (>= x 3) (return-from outer x))
        (setq x (+ x 1))
        (go start)))`)
	if n := strings.Count(got, "instanceof internals.BlockNLX"); n != 1 {
		t.Errorf("want exactly one BlockNLX catch, got %d", n)
	}
	if n := strings.Count(got, "instanceof internals.TagNLX"); n != 1 {
		t.Errorf("want exactly one TagNLX catch, got %d", n)
	}
}

func TestSpecialVariableLet(t *testing.T) {
	c := New()
	c.ProclaimSpecial(lisp.NewSymbol("*X*"))
	out, err := c.CompileString("(let ((*x* 10)) (symbol-value '*x*))")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "internals.withDynamicBindings") {
		t.Errorf("special binding should route through withDynamicBindings:\n%s", out)
	}
}

func TestSpecialVariableLetStar(t *testing.T) {
	c := New()
	c.ProclaimSpecial(lisp.NewSymbol("*X*"))
	out, err := c.CompileString("(let* ((*x* 1) (y *x*)) y)")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"try {", "} finally {", ".value = "} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestDeclareSpecial(t *testing.T) {
	out := compileString(t, "(let ((x 1)) (declare (special x)) x)")
	if !strings.Contains(out, "internals.withDynamicBindings") {
		t.Errorf("declared special should bind dynamically:\n%s", out)
	}
}

func TestLambdaArity(t *testing.T) {
	for i, tt := range []struct {
		input   string
		want    []string
		wantNot []string
	}{
		{
			input:   "(lambda (x y) x)",
			want:    []string{"internals.checkArgs("},
			wantNot: []string{"checkArgsAtLeast", "checkArgsAtMost"},
		},
		{
			input: "(lambda (x &optional (y 1 yp)) y)",
			want:  []string{"internals.checkArgsAtLeast(", "internals.checkArgsAtMost(", "case 1:", "switch ("},
		},
		{
			input:   "(lambda (&rest r) r)",
			want:    []string{"arguments["},
			wantNot: []string{"checkArgsAtMost", "Unknown keyword"},
		},
		{
			input: "(lambda (&rest r &key a) a)",
			want:  []string{"Unknown keyword argument ", "Odd number of keyword arguments."},
		},
		{
			input: "(lambda (&key (a 1 ap)) a)",
			want:  []string{"Unknown keyword argument ", "internals.xstring", "break;"},
		},
	} {
		got := compileString(t, "(function "+tt.input+")")
		for _, want := range tt.want {
			if !strings.Contains(got, want) {
				t.Errorf("%d) missing %q in:\n%s", i, want, got)
			}
		}
		for _, not := range tt.wantNot {
			if strings.Contains(got, not) {
				t.Errorf("%d) unexpected %q in:\n%s", i, not, got)
			}
		}
	}
}

func TestLiteralInterning(t *testing.T) {
	c := New()
	e1, err := c.literal(lisp.NewSymbol("FOO"))
	if err != nil {
		t.Fatal(err)
	}
	e2, err := c.literal(lisp.NewSymbol("FOO"))
	if err != nil {
		t.Fatal(err)
	}
	if e1 != e2 {
		t.Errorf("repeated literal of a symbol: got %v then %v", e1, e2)
	}
	if len(c.toplevel.Statements()) != 1 {
		t.Errorf("want one initializer, got %d", len(c.toplevel.Statements()))
	}
}

func TestLiteralConsSharing(t *testing.T) {
	c := New()
	shared := lisp.Cons(lisp.Integer(1), lisp.Nil)
	quote := func() lisp.SExpression {
		return lisp.List(lisp.NewSymbol("QUOTE"), shared)
	}
	form := lisp.List(lisp.NewSymbol("LIST"), quote(), quote())
	stmts, err := c.CompileToplevel(form)
	if err != nil {
		t.Fatal(err)
	}
	out := js.Print(stmts)
	if n := strings.Count(out, "internals.QIList("); n != 1 {
		t.Errorf("shared cons should dump once, got %d initializers:\n%s", n, out)
	}
}

func TestLiteralNestedConsSharing(t *testing.T) {
	// the same cons reached twice inside ONE quoted structure still
	// dumps a single initializer, referenced twice
	c := New()
	shared := lisp.Cons(lisp.Integer(1), lisp.Nil)
	outer := lisp.List(shared, shared)
	form := lisp.List(lisp.NewSymbol("QUOTE"), outer)
	stmts, err := c.CompileToplevel(form)
	if err != nil {
		t.Fatal(err)
	}
	out := js.Print(stmts)
	if n := strings.Count(out, "internals.QIList("); n != 2 {
		t.Errorf("want one initializer for the shared cons and one for the outer list, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, "internals.QIList(l2, l2, l1)") {
		t.Errorf("outer list should reference the shared cons twice:\n%s", out)
	}
	if e, err := c.literal(shared); err != nil || e != js.Expr(js.EIdent{Name: "l2"}) {
		t.Errorf("shared cons lost its identifier: %v %v", e, err)
	}

	// a previously interned cons appearing as a tail dumps as a
	// reference, not a re-flattened spine
	if _, err := c.literal(lisp.Cons(lisp.Integer(0), shared)); err != nil {
		t.Fatal(err)
	}
	out = js.Print(c.toplevel.Statements())
	if !strings.Contains(out, "internals.QIList(0, l2)") {
		t.Errorf("shared tail should dump as a reference:\n%s", out)
	}
}

func TestFreshOutputIdentifiers(t *testing.T) {
	c := New()
	tgt := NewTarget()
	seen := map[string]bool{}
	for _, src := range []string{"1", "(+ 1 2)", "(quote a)"} {
		form, err := lisp.Parse(src)
		if err != nil {
			t.Fatal(err)
		}
		e, err := c.convert(form, NewEnv(), tgt, fresh(), false)
		if err != nil {
			t.Fatal(err)
		}
		id, ok := e.(js.EIdent)
		if !ok {
			t.Fatalf("fresh destination should yield an identifier, got %T", e)
		}
		if seen[id.Name] {
			t.Errorf("identifier %s minted twice", id.Name)
		}
		seen[id.Name] = true
	}
}

func TestEnvExtendDoesNotMutate(t *testing.T) {
	outer := NewEnv()
	x := lisp.NewSymbol("X")
	inner := outer.Extend(NSVariable, &Binding{Name: x, Kind: KindVariable, JSName: "v1"})
	if outer.Lookup(x, NSVariable) != nil {
		t.Error("extension leaked into the outer environment")
	}
	if inner.Lookup(x, NSVariable) == nil {
		t.Error("extension missing from the new environment")
	}
	if inner.Lookup(x, NSFunction) != nil {
		t.Error("binding crossed namespaces")
	}
}

func TestEnvShadowing(t *testing.T) {
	x := lisp.NewSymbol("X")
	e1 := NewEnv().Extend(NSVariable, &Binding{Name: x, Kind: KindVariable, JSName: "outer"})
	e2 := e1.Extend(NSVariable, &Binding{Name: x, Kind: KindVariable, JSName: "inner"})
	if got := e2.Lookup(x, NSVariable).JSName; got != "inner" {
		t.Errorf("lookup is not innermost-first: got %s", got)
	}
	if got := e1.Lookup(x, NSVariable).JSName; got != "outer" {
		t.Errorf("outer environment changed: got %s", got)
	}
}

func TestCompileErrors(t *testing.T) {
	for i, src := range []string{
		"(go nowhere)",
		"(return-from nowhere 1)",
		"(setq a)",
		"(function (lambda (&rest) x))",
		"(%js-try (foo) (bogus))",
		"(if)",
		"(quote a b)",
		"(function 42)",
		"((1 2) 3)",
	} {
		c := New()
		if _, err := c.CompileString(src); err == nil {
			t.Errorf("%d) expected compile error for %q", i, src)
		}
	}
}

func TestUndefinedFunctionWarnings(t *testing.T) {
	c := New()
	if _, err := c.CompileString("(frobnicate 1)"); err != nil {
		t.Fatal(err)
	}
	warnings := c.Warnings()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "FROBNICATE") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing undefined-function warning, got %v", warnings)
	}
	// the table resets after reporting
	if len(c.Warnings()) != 0 {
		t.Error("warnings were not reset")
	}

	c2 := New()
	c2.NoteFunctionDefined(lisp.NewSymbol("FROBNICATE"))
	if _, err := c2.CompileString("(frobnicate 1)"); err != nil {
		t.Fatal(err)
	}
	for _, w := range c2.Warnings() {
		if strings.Contains(w, "FROBNICATE") {
			t.Errorf("defined function still warned: %s", w)
		}
	}
}

func TestSetq(t *testing.T) {
	out := compileString(t, "(let ((x 1)) (setq x 2))")
	if !strings.Contains(out, "v1 = ") {
		t.Errorf("setq of a lexical should assign its slot:\n%s", out)
	}
	out = compileString(t, "(setq y 5)")
	if !strings.Contains(out, "internals.set(") {
		t.Errorf("setq of a global should call the runtime:\n%s", out)
	}
}

func TestEvalWhen(t *testing.T) {
	out := compileString(t, "(eval-when (:execute) (foo))")
	if !strings.Contains(out, "fvalue") {
		t.Errorf(":execute body should compile outside compile-file:\n%s", out)
	}
	out = compileString(t, "(eval-when (:compile-toplevel) (foo))")
	if strings.Contains(out, "fvalue") {
		t.Errorf(":compile-toplevel body should not compile outside compile-file:\n%s", out)
	}

	c := New()
	c.CompilingFile = true
	got, err := c.CompileString("(eval-when (:compile-toplevel) (list 1 2))")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "car") {
		t.Errorf("compile-time-only body leaked into the output:\n%s", got)
	}
	c2 := New()
	c2.CompilingFile = true
	got, err = c2.CompileString("(eval-when (:load-toplevel) (foo))")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "fvalue") {
		t.Errorf(":load-toplevel body should compile when compiling a file:\n%s", got)
	}
}

func TestToplevelPrognFlattening(t *testing.T) {
	c := New()
	out, err := c.CompileString("(progn (foo) (bar))")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "FOO") || !strings.Contains(out, "BAR") {
		t.Errorf("toplevel progn should compile every subform:\n%s", out)
	}
}

func TestFletAndLabels(t *testing.T) {
	out := compileString(t, "(flet ((f (x) x)) (f 1))")
	if !strings.Contains(out, "(function(v") {
		t.Errorf("flet should emit a function wrapper:\n%s", out)
	}
	out = compileString(t, "(labels ((f (x) (g x)) (g (x) x)) (f 1))")
	// labels definitions see each other, so no undefined-function call
	if strings.Contains(out, "fvalue") {
		t.Errorf("labels definitions should call each other lexically:\n%s", out)
	}
}

func TestMultipleValueProg1(t *testing.T) {
	out := compileString(t, "(multiple-value-prog1 (values 1 2) (foo))")
	if !strings.Contains(out, "fvalue") {
		t.Errorf("side-effect forms should still compile:\n%s", out)
	}
}

func TestJSTry(t *testing.T) {
	out := compileString(t, "(%js-try (foo) (catch (e) e) (finally (bar)))")
	for _, want := range []string{"try {", "} catch (", "} finally {", "internals.js_to_lisp"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestFFICall(t *testing.T) {
	out := compileString(t, `((oget obj "log") 1)`)
	for _, want := range []string{"internals.xstring", "internals.lisp_to_js", "internals.js_to_lisp"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
