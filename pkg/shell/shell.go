// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package shell assembles bash snippets executed by build actions.
package shell

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// Quote quotes s so that bash reads it back as a single literal word.
func Quote(s string) (string, error) {
	return syntax.Quote(s, syntax.LangBash)
}

// Script accumulates bash source.
type Script struct {
	b   strings.Builder
	err error
}

// Line appends a formatted line.
func (s *Script) Line(format string, args ...any) *Script {
	fmt.Fprintf(&s.b, format, args...)
	s.b.WriteByte('\n')

	return s
}

// Fragment appends a multi-line fragment as is, terminating it with a newline.
//
// The fragment must parse as complete bash source on its own.
func (s *Script) Fragment(fragment string) *Script {
	if fragment == "" {
		return s
	}

	if err := Validate(fragment); err != nil {
		if s.err == nil {
			s.err = fmt.Errorf("invalid fragment: %w", err)
		}

		return s
	}

	s.b.WriteString(fragment)

	if !strings.HasSuffix(fragment, "\n") {
		s.b.WriteByte('\n')
	}

	return s
}

// Export appends `export name=value` with the value quoted.
func (s *Script) Export(name, value string) *Script {
	if s.err != nil {
		return s
	}

	if !syntax.ValidName(name) {
		s.err = fmt.Errorf("invalid variable name %q", name)

		return s
	}

	quoted, err := Quote(value)
	if err != nil {
		s.err = fmt.Errorf("cannot quote value of %s: %w", name, err)

		return s
	}

	return s.Line("export %s=%s", name, quoted)
}

// ExportRaw appends `export name=expr` without quoting expr.
//
// Used for values which must be expanded by the shell, e.g. command substitutions.
func (s *Script) ExportRaw(name, expr string) *Script {
	if s.err == nil && !syntax.ValidName(name) {
		s.err = fmt.Errorf("invalid variable name %q", name)

		return s
	}

	return s.Line("export %s=%s", name, expr)
}

// String returns the rendered script.
func (s *Script) String() string {
	return s.b.String()
}

// Err returns the first error encountered while building the script.
func (s *Script) Err() error {
	return s.err
}

// Validate parses the script as bash.
func Validate(src string) error {
	_, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(src), "")

	return err
}

// Exports returns the literal values of every `export NAME=value` in src.
//
// Values containing expansions are rejected.
func Exports(src string) (map[string]string, error) {
	file, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(src), "")
	if err != nil {
		return nil, err
	}

	result := map[string]string{}
	cfg := &expand.Config{Env: expand.ListEnviron()}

	syntax.Walk(file, func(node syntax.Node) bool {
		if err != nil {
			return false
		}

		decl, ok := node.(*syntax.DeclClause)
		if !ok || decl.Variant == nil || decl.Variant.Value != "export" {
			return true
		}

		for _, assign := range decl.Args {
			if assign.Name == nil || assign.Naked {
				continue
			}

			value := ""

			if assign.Value != nil {
				if !isLiteral(assign.Value) {
					err = fmt.Errorf("export of %s is not a literal", assign.Name.Value)

					return false
				}

				if value, err = expand.Literal(cfg, assign.Value); err != nil {
					return false
				}
			}

			result[assign.Name.Value] = value
		}

		return false
	})

	return result, err
}

func isLiteral(word *syntax.Word) bool {
	for _, part := range word.Parts {
		switch part := part.(type) {
		case *syntax.Lit, *syntax.SglQuoted:
		case *syntax.DblQuoted:
			for _, inner := range part.Parts {
				if _, ok := inner.(*syntax.Lit); !ok {
					return false
				}
			}
		default:
			return false
		}
	}

	return true
}
