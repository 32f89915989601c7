// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package label implements build target labels and their resolution to files.
package label

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Label references a build target: a file, a directory, a glob or a filegroup.
//
// Canonical form is `//package/path:name`.
type Label struct {
	Package string
	Name    string
}

// Parse a label.
//
// Accepted forms:
//   - `//pkg/path:name`
//   - `//pkg/path` (name defaults to the last path element)
//   - `:name` (relative to pkg)
//   - `some/path` (workspace-relative path, split into package and name).
func Parse(s, pkg string) (Label, error) {
	s = strings.TrimSpace(s)

	switch {
	case s == "":
		return Label{}, errors.New("empty label")
	case strings.HasPrefix(s, ":"):
		name := s[1:]
		if name == "" {
			return Label{}, fmt.Errorf("label %q has empty name", s)
		}

		return Label{Package: clean(pkg), Name: name}, nil
	case strings.HasPrefix(s, "//"):
		body := s[2:]

		pkgPart, name, found := strings.Cut(body, ":")
		if !found {
			name = path.Base(pkgPart)
		}

		if name == "" || name == "." || name == "/" {
			return Label{}, fmt.Errorf("label %q has empty name", s)
		}

		if strings.Contains(name, ":") || strings.HasPrefix(pkgPart, "/") {
			return Label{}, fmt.Errorf("malformed label %q", s)
		}

		return Label{Package: clean(pkgPart), Name: name}, nil
	case strings.Contains(s, ":"):
		return Label{}, fmt.Errorf("malformed label %q: expected // prefix", s)
	}

	if path.IsAbs(s) {
		return Label{}, fmt.Errorf("label %q must be workspace-relative", s)
	}

	dir, name := path.Split(path.Clean(s))

	return Label{Package: clean(dir), Name: name}, nil
}

// MustParse is like Parse, but panics on error.
func MustParse(s string) Label {
	l, err := Parse(s, "")
	if err != nil {
		panic(err)
	}

	return l
}

func clean(pkg string) string {
	pkg = strings.Trim(pkg, "/")
	if pkg == "" {
		return ""
	}

	return path.Clean(pkg)
}

// String implements fmt.Stringer.
func (l Label) String() string {
	return "//" + l.Package + ":" + l.Name
}

// Path returns the workspace-relative path the label points to.
func (l Label) Path() string {
	return path.Join(l.Package, l.Name)
}

// IsZero returns true if the label is not set.
func (l Label) IsZero() bool {
	return l.Package == "" && l.Name == ""
}

// MarshalYAML implements yaml.Marshaler.
func (l Label) MarshalYAML() (any, error) {
	return l.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Label) UnmarshalYAML(node *yaml.Node) error {
	var s string

	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := Parse(s, "")
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}

	*l = parsed

	return nil
}
