package lisp

import (
	"testing"
)

func TestParse(t *testing.T) {
	for i, tt := range []struct {
		input string
		want  string
	}{
		{
			input: "(a b c)",
			want:  "(A B C)",
		},
		{
			input: "(a b . c)",
			want:  "(A B . C)",
		},
		{
			input: "'x",
			want:  "(QUOTE X)",
		},
		{
			input: "`(a ,b ,@c)",
			want:  "(QUASIQUOTE (A (UNQUOTE B) (UNQUOTE-SPLICING C)))",
		},
		{
			input: "42",
			want:  "42",
		},
		{
			input: "-7",
			want:  "-7",
		},
		{
			input: "1.5",
			want:  "1.5",
		},
		{
			input: `"hello"`,
			want:  `"hello"`,
		},
		{
			input: `#\a`,
			want:  `#\a`,
		},
		{
			input: `#\space`,
			want:  `#\space`,
		},
		{
			input: "#(1 2 3)",
			want:  "#(1 2 3)",
		},
		{
			input: ":foo",
			want:  ":FOO",
		},
		{
			input: "some-package:sym",
			want:  "SOME-PACKAGE:SYM",
		},
		{
			input: "()",
			want:  "NIL",
		},
		{
			input: "(a ; line comment\n b)",
			want:  "(A B)",
		},
		{
			input: "(a #| block |# b)",
			want:  "(A B)",
		},
		{
			input: "(let ((x 1)) x)",
			want:  "(LET ((X 1)) X)",
		},
	} {
		e, err := Parse(tt.input)
		if err != nil {
			t.Errorf("%d) parse error: %v", i, err)
			continue
		}
		if got := e.String(); got != tt.want {
			t.Errorf("%d) got %s want %s", i, got, tt.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for i, input := range []string{
		"(a b",
		")",
		"(a . )",
		"(a . b c)",
		`"unclosed`,
		"(. a)",
	} {
		if _, err := Parse(input); err == nil {
			t.Errorf("%d) expected parse error for %q", i, input)
		}
	}
}

func TestParseAll(t *testing.T) {
	forms, err := ParseAll("(a) (b) 3")
	if err != nil {
		t.Fatal(err)
	}
	if len(forms) != 3 {
		t.Fatalf("got %d forms, want 3", len(forms))
	}
}

func TestEql(t *testing.T) {
	a := Cons(Integer(1), Nil)
	b := Cons(Integer(1), Nil)
	if Eql(a, b) {
		t.Error("distinct conses should not be eql")
	}
	if !Eql(a, a) {
		t.Error("a cons is eql to itself")
	}
	if !Eql(NewSymbol("FOO"), NewSymbol("FOO")) {
		t.Error("same-named symbols are eql")
	}
	if Eql(NewSymbol("FOO"), Keyword("FOO")) {
		t.Error("package distinguishes symbols")
	}
	if !Eql(Integer(3), Integer(3)) {
		t.Error("equal integers are eql")
	}
}

func TestListHelpers(t *testing.T) {
	l := List(Integer(1), Integer(2), Integer(3))
	elems, ok := Elements(l)
	if !ok || len(elems) != 3 {
		t.Fatalf("got %v ok=%v", elems, ok)
	}
	if Length(l) != 3 {
		t.Errorf("length: got %d", Length(l))
	}
	dotted := ListStar(Integer(1), Integer(2))
	if _, ok := Elements(dotted); ok {
		t.Error("dotted list is not proper")
	}
	cars, tail := Unlist(dotted)
	if len(cars) != 1 || tail != SExpression(Integer(2)) {
		t.Errorf("unlist: got %v %v", cars, tail)
	}
}
