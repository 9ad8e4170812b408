package compiler

import (
	"strings"
	"testing"

	"github.com/snmsts/jscl/lisp"
)

func TestMacrolet(t *testing.T) {
	for i, tt := range []struct {
		input string
		want  []string
	}{
		{
			input: "(macrolet ((twice (x) (list '+ x x))) (twice 3))",
			want:  []string{" + ", "v1 = 3"},
		},
		{
			input: "(macrolet ((inc (x) `(+ ,x 1))) (inc 2))",
			want:  []string{" + ", "v1 = 2"},
		},
		{
			input: "(macrolet ((when2 (c &rest body) `(if ,c (progn ,@body) nil))) (when2 (foo) 1 2))",
			want:  []string{"if ((", "} else {"},
		},
		{
			input: "(macrolet ((opt (&optional (x 9)) `(+ ,x 0))) (opt))",
			want:  []string{"= 9"},
		},
	} {
		got := compileString(t, tt.input)
		for _, want := range tt.want {
			if !strings.Contains(got, want) {
				t.Errorf("%d) missing %q in:\n%s", i, want, got)
			}
		}
	}
}

func TestMacroletShadowsBuiltin(t *testing.T) {
	// a macrolet on a builtin name wins over the open-coded expansion
	got := compileString(t, "(macrolet ((cons (a b) `(quote ,a))) (cons 1 2))")
	if strings.Contains(got, `"car"`) {
		t.Errorf("builtin expansion leaked through the macro:\n%s", got)
	}
}

func TestSymbolMacrolet(t *testing.T) {
	got := compileString(t, "(symbol-macrolet ((x (quote foo))) x)")
	if !strings.Contains(got, `internals.intern("FOO")`) {
		t.Errorf("symbol macro did not expand:\n%s", got)
	}
}

func TestSymbolMacroletShadowed(t *testing.T) {
	// let of the same name hides the symbol macro
	got := compileString(t, "(symbol-macrolet ((x (quote foo))) (let ((x 1)) x))")
	if strings.Contains(got, `intern("FOO")`) {
		t.Errorf("shadowed symbol macro still expanded:\n%s", got)
	}
}

func TestGlobalMacro(t *testing.T) {
	c := New()
	c.DefineMacro(lisp.NewSymbol("SEVEN"), func(form lisp.SExpression, env *Env) (lisp.SExpression, error) {
		return lisp.Integer(7), nil
	})
	out, err := c.CompileString("(+ (seven) 1)")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "= 7") {
		t.Errorf("global macro did not expand:\n%s", out)
	}
}

func TestMacroExpanderCache(t *testing.T) {
	c := New()
	form, err := lisp.Parse("(macrolet ((m (x) `(quote ,x))) (progn (m a) (m b)))")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.CompileToplevel(form); err != nil {
		t.Fatal(err)
	}
	if len(c.macroCache) != 1 {
		t.Errorf("expected one cached expander, got %d", len(c.macroCache))
	}
}

func TestMacroExpansionErrors(t *testing.T) {
	for i, src := range []string{
		"(macrolet ((bad () y)) (bad))",
		"(macrolet ((m (a b) `(quote ,a))) (m 1))",
	} {
		c := New()
		if _, err := c.CompileString(src); err == nil {
			t.Errorf("%d) expected expansion error for %q", i, src)
		}
	}
}

func TestQuasiquoteForm(t *testing.T) {
	// a toplevel backquote rewrites into list construction
	got := compileString(t, "`(1 ,(+ 1 1))")
	if !strings.Contains(got, "APPEND") {
		t.Errorf("backquote should rewrite through append:\n%s", got)
	}
}

func TestQQExpand(t *testing.T) {
	for i, tt := range []struct {
		input string
		want  string
	}{
		{
			input: "`x",
			want:  "(QUOTE X)",
		},
		{
			input: "`(a)",
			want:  "(APPEND (LIST (QUOTE A)) (QUOTE NIL))",
		},
		{
			input: "`(,x)",
			want:  "(APPEND (LIST X) (QUOTE NIL))",
		},
		{
			input: "`(,@xs)",
			want:  "(APPEND XS (QUOTE NIL))",
		},
		{
			input: "`(a . ,b)",
			want:  "(APPEND (LIST (QUOTE A)) B)",
		},
	} {
		form, err := lisp.Parse(tt.input)
		if err != nil {
			t.Fatal(err)
		}
		p := form.(*lisp.Pair)
		arg := p.Cdr.(*lisp.Pair).Car
		if got := qqExpand(arg, 1).String(); got != tt.want {
			t.Errorf("%d) got %s want %s", i, got, tt.want)
		}
	}
}
