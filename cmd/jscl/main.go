package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/xyproto/env/v2"

	"github.com/snmsts/jscl/compiler"
	"github.com/snmsts/jscl/js"
	"github.com/snmsts/jscl/lisp"
)

func main() {
	if len(os.Args) < 2 {
		startREPL()
		return
	}
	args := os.Args[1:]
	output := ""
	if args[0] == "-o" {
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: jscl [-o out.js] <file.lisp>")
			os.Exit(2)
		}
		output = args[1]
		args = args[2:]
	}
	if err := compileFile(args[0], output); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func compileFile(filename, output string) error {
	forms, err := lisp.ParseFile(filename)
	if err != nil {
		return err
	}
	c := compiler.New()
	c.CompilingFile = true
	stmts := []js.Stmt{}
	for _, form := range forms {
		s, err := c.CompileToplevel(form)
		if err != nil {
			return err
		}
		stmts = append(stmts, s...)
	}
	for _, w := range c.Warnings() {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	src := js.Print(stmts)
	if output == "" {
		fmt.Print(src)
		return nil
	}
	return os.WriteFile(output, []byte(src), 0o644)
}

// The REPL compiles each form and prints the generated JavaScript.
func startREPL() {
	home, _ := os.UserHomeDir()
	histPath := env.Str("JSCL_HISTFILE", filepath.Join(home, ".jscl_history"))
	prompt := env.Str("JSCL_PROMPT", "jscl> ")

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	c := compiler.New()
	for {
		line, err := ln.Prompt(prompt)
		if err != nil {
			fmt.Println()
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		forms, err := lisp.ParseAll(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		for _, form := range forms {
			stmts, err := c.CompileToplevel(form)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			fmt.Print(js.Print(stmts))
		}
		for _, w := range c.Warnings() {
			fmt.Fprintln(os.Stderr, "warning:", w)
		}
		ln.AppendHistory(line)
	}
}
