package compiler

import (
	"testing"

	"github.com/snmsts/jscl/lisp"
)

func parseLL(t *testing.T, src string) *lambdaList {
	t.Helper()
	form, err := lisp.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	ll, err := parseLambdaList(form)
	if err != nil {
		t.Fatalf("parse %s: %v", src, err)
	}
	return ll
}

func TestParseLambdaList(t *testing.T) {
	ll := parseLL(t, "(a b &optional c (d 1) (e 2 ep) &rest r &key f (g 3) ((:h hh) 4 hp) &allow-other-keys)")
	if len(ll.required) != 2 || ll.required[0].Name != "A" {
		t.Errorf("required: %v", ll.required)
	}
	if len(ll.optional) != 3 {
		t.Fatalf("optional: %v", ll.optional)
	}
	if ll.optional[0].name.Name != "C" || !lisp.IsNull(ll.optional[0].def) {
		t.Errorf("optional c: %+v", ll.optional[0])
	}
	if ll.optional[2].svar.Name != "EP" || !ll.optional[2].hasSvar {
		t.Errorf("optional e: %+v", ll.optional[2])
	}
	if !ll.hasRest || ll.rest.Name != "R" {
		t.Errorf("rest: %+v", ll)
	}
	if !ll.hasKeys || len(ll.keys) != 3 {
		t.Fatalf("keys: %+v", ll.keys)
	}
	if ll.keys[0].keyword != lisp.Keyword("F") {
		t.Errorf("key f keyword: %v", ll.keys[0].keyword)
	}
	if ll.keys[2].keyword != lisp.Keyword("H") || ll.keys[2].name.Name != "HH" || !ll.keys[2].hasSvar {
		t.Errorf("key h: %+v", ll.keys[2])
	}
	if !ll.allowOtherKeys {
		t.Error("allow-other-keys missed")
	}
}

func TestParseLambdaListBody(t *testing.T) {
	ll := parseLL(t, "(form &body body)")
	if !ll.hasRest || ll.rest.Name != "BODY" {
		t.Errorf("&body should behave as &rest: %+v", ll)
	}
}

func TestParseLambdaListErrors(t *testing.T) {
	for i, src := range []string{
		"(a . b)",
		"(&rest)",
		"(&rest a b &rest c)",
		"(1)",
		"(&optional (x 1 2 3))",
		"(a &allow-other-keys)",
	} {
		form, err := lisp.Parse(src)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := parseLambdaList(form); err == nil {
			t.Errorf("%d) expected error for %s", i, src)
		}
	}
}

func TestParseBody(t *testing.T) {
	forms, err := lisp.ParseAll(`"doc" (declare (special x)) (foo)`)
	if err != nil {
		t.Fatal(err)
	}
	doc, decls, rest := parseBody(forms)
	if doc != "doc" {
		t.Errorf("doc: %q", doc)
	}
	if len(decls) != 1 || len(rest) != 1 {
		t.Errorf("decls %v rest %v", decls, rest)
	}
	specials := declaredSpecials(decls)
	if !specials[lisp.NewSymbol("X")] {
		t.Error("special declaration missed")
	}
}

func TestJSFunctionName(t *testing.T) {
	for i, tt := range []struct {
		input string
		want  string
	}{
		{"FOO", "FOO"},
		{"FOO-BAR", "FOO_BAR"},
		{"1+", "_1_"},
		{"*X*", "_X_"},
	} {
		if got := jsFunctionName(tt.input); got != tt.want {
			t.Errorf("%d) got %s want %s", i, got, tt.want)
		}
	}
}
