package compiler

import (
	"github.com/snmsts/jscl/lisp"
)

// Namespace selects one of the four binding namespaces. Names in
// different namespaces never collide.
type Namespace uint8

const (
	NSVariable Namespace = iota
	NSFunction
	NSBlock
	NSGotag
	numNamespaces
)

type BindingKind uint8

const (
	KindVariable BindingKind = iota
	KindFunction
	KindMacro
	KindSymbolMacro
	KindBlock
	KindGotag
)

type declFlag uint8

const (
	DeclSpecial declFlag = 1 << iota
	DeclConstant
	DeclNotinline
	DeclUsed
	DeclMultipleValue
)

// Binding maps a name to its compile-time meaning in one namespace.
// Which fields are populated depends on Kind: variables, functions and
// blocks carry the JS identifier of their runtime slot; macros carry an
// expansion form or a compiled expander; go tags carry the tagbody
// dispatch variable and their case index.
type Binding struct {
	Name      lisp.SExpression // a symbol, or an integer for go tags
	Kind      BindingKind
	JSName    string
	Expansion lisp.SExpression
	Expander  Expander
	TagVar    string
	TagIndex  int
	Decls     declFlag
}

func (b *Binding) Has(f declFlag) bool {
	return b.Decls&f != 0
}

func (b *Binding) Mark(f declFlag) {
	b.Decls |= f
}

// Env is the lexical environment: four ordered binding lists, head
// innermost. Extension is non-destructive; unextended namespaces share
// their tails with the parent environment.
type Env struct {
	ns [numNamespaces][]*Binding
}

func NewEnv() *Env {
	return &Env{}
}

// Lookup returns the innermost binding for name in the namespace, or
// nil.
func (e *Env) Lookup(name lisp.SExpression, ns Namespace) *Binding {
	for _, b := range e.ns[ns] {
		if lisp.Eql(b.Name, name) {
			return b
		}
	}
	return nil
}

// Extend returns a new environment with the bindings prepended to one
// namespace. The receiver is not modified.
func (e *Env) Extend(ns Namespace, bindings ...*Binding) *Env {
	out := &Env{ns: e.ns}
	fresh := make([]*Binding, 0, len(bindings)+len(e.ns[ns]))
	fresh = append(fresh, bindings...)
	fresh = append(fresh, e.ns[ns]...)
	out.ns[ns] = fresh
	return out
}

// push destructively prepends a binding. Only used while assembling a
// scratch environment that has not been installed yet.
func (e *Env) push(ns Namespace, b *Binding) {
	e.ns[ns] = append([]*Binding{b}, e.ns[ns]...)
}
