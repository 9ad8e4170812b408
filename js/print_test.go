package js

import (
	"strings"
	"testing"
)

func TestPrintStatements(t *testing.T) {
	for i, tt := range []struct {
		stmt Stmt
		want string
	}{
		{
			stmt: SVar{Name: "x", Init: EInt{Value: 42}},
			want: "var x = 42;\n",
		},
		{
			stmt: SVar{Name: "x"},
			want: "var x;\n",
		},
		{
			stmt: SExpr{Value: EAssign{Target: EIdent{Name: "x"}, Value: EString{Value: "hi"}}},
			want: "x = \"hi\";\n",
		},
		{
			stmt: SThrow{Value: ENew{Ctor: EDot{Obj: EIdent{Name: "internals"}, Name: "CatchNLX"}, Args: []Expr{EIdent{Name: "a"}}}},
			want: "throw new internals.CatchNLX(a);\n",
		},
		{
			stmt: SReturn{Value: EBinary{Op: "+", L: EInt{Value: 1}, R: EInt{Value: 2}}},
			want: "return (1 + 2);\n",
		},
		{
			stmt: SBreak{Label: "loop"},
			want: "break loop;\n",
		},
		{
			stmt: SExpr{Value: ECond{
				Cond: EBinary{Op: "===", L: EUnary{Op: "typeof", Operand: EIdent{Name: "x"}}, R: EString{Value: "number"}},
				Then: EIdent{Name: "x"},
				Else: EIdent{Name: "y"},
			}},
			want: "(((typeof x) === \"number\") ? x : y);\n",
		},
	} {
		if got := Print([]Stmt{tt.stmt}); got != tt.want {
			t.Errorf("%d) got %q want %q", i, got, tt.want)
		}
	}
}

func TestPrintIf(t *testing.T) {
	s := SIf{
		Cond: EBinary{Op: "!==", L: EIdent{Name: "a"}, R: EIdent{Name: "b"}},
		Then: []Stmt{SExpr{Value: ECall{Fn: EIdent{Name: "f"}}}},
		Else: []Stmt{SExpr{Value: ECall{Fn: EIdent{Name: "g"}}}},
	}
	want := "if ((a !== b)) {\n  f();\n} else {\n  g();\n}\n"
	if got := Print([]Stmt{s}); got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestPrintFunction(t *testing.T) {
	fn := EFunction{
		Params: []string{"values", "v1"},
		Body:   []Stmt{SReturn{Value: EIdent{Name: "v1"}}},
	}
	got := Print([]Stmt{SExpr{Value: ECall{Fn: fn, Args: []Expr{EIdent{Name: "pv"}, EInt{Value: 1}}}}})
	if !strings.Contains(got, "(function(values, v1){") {
		t.Errorf("missing function header in %q", got)
	}
	if !strings.Contains(got, "})(pv, 1);") {
		t.Errorf("missing call tail in %q", got)
	}
}

func TestPrintTrySwitch(t *testing.T) {
	s := STry{
		Body: []Stmt{SSwitch{
			Disc:    EIdent{Name: "branch"},
			Cases:   []Case{{Value: EInt{Value: 1}, Body: []Stmt{SBreak{}}}},
			Default: []Stmt{SBreak{Label: "out"}},
		}},
		CatchVar: "e",
		Catch:    []Stmt{SThrow{Value: EIdent{Name: "e"}}},
		Finally:  []Stmt{SExpr{Value: ECall{Fn: EIdent{Name: "cleanup"}}}},
	}
	got := Print([]Stmt{s})
	for _, want := range []string{
		"try {",
		"switch (branch) {",
		"case 1:",
		"default:",
		"break out;",
		"} catch (e) {",
		"throw e;",
		"} finally {",
		"cleanup();",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestPrintForIn(t *testing.T) {
	s := SForIn{Var: "k", Obj: EIdent{Name: "obj"}, Body: []Stmt{SContinue{}}}
	got := Print([]Stmt{s})
	if !strings.Contains(got, "for (var k in obj) {") || !strings.Contains(got, "continue;") {
		t.Errorf("bad for-in: %q", got)
	}
}
