// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package hermetic assembles a directory of curated tools and the shell snippets
// which restrict build actions to them.
package hermetic

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/siderolabs/kleaf/pkg/label"
)

// MarkerVariable is exported by setup fragments and points to the tool directory.
const MarkerVariable = "KLEAF_INTERNAL_BUILDTOOLS_PREBUILT_BIN"

// DefaultParallelism is the number of symlink actions run concurrently.
const DefaultParallelism = 16

// Symlink maps an actual executable to the tool names pointing at it.
type Symlink struct {
	Actual label.Label `yaml:"actual"`
	Names  []string    `yaml:"names"`
}

// Options for assembling hermetic tools.
type Options struct {
	// Name of the rule instance; also the name of the tool directory.
	Name string
	// OutRoot is the output root, tool directory is OutRoot/Name.
	OutRoot string
	// Resolver resolves labels to files.
	Resolver label.Resolver

	// Symlinks to create in the tool directory.
	Symlinks []Symlink
	// Interpreter is the runtime binary used for InterpreterTools.
	Interpreter label.Label
	// InterpreterTools are tool names symlinked to Interpreter.
	InterpreterTools []string
	// Deps are extra inputs of the toolchain which are not added to PATH.
	Deps []label.Label
	// Aliases are tool names exposed as individual file groups.
	//
	// Deprecated: use tools through PATH.
	Aliases []string

	Parallelism int
	Logger      *zap.Logger
}

// Action creates a single symlink.
type Action struct {
	// Tool name.
	Name string
	// Link is the path of the symlink to create.
	Link string
	// Target is the absolute path of the file the link resolves to.
	Target string
	// Source is the label the target was resolved from.
	Source label.Label
}

// LinkTarget returns the symlink contents: Target relative to the link directory.
func (a Action) LinkTarget() (string, error) {
	return filepath.Rel(filepath.Dir(a.Link), a.Target)
}

// DuplicateToolError is returned when two mappings declare the same tool name.
type DuplicateToolError struct {
	Name   string
	First  label.Label
	Second label.Label
}

// Error implements error interface.
func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is declared by both %s and %s", e.Name, e.First, e.Second)
}

func (opts *Options) validate() error {
	var errs *multierror.Error

	if opts.Name == "" {
		errs = multierror.Append(errs, errors.New("name is required"))
	} else if err := validToolName(opts.Name); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("invalid name: %w", err))
	}

	if opts.Resolver == nil {
		errs = multierror.Append(errs, errors.New("resolver is required"))
	}

	if len(opts.InterpreterTools) > 0 && opts.Interpreter.IsZero() {
		errs = multierror.Append(errs, fmt.Errorf("interpreter tools %v require an interpreter", opts.InterpreterTools))
	}

	declared := map[string]label.Label{}

	declare := func(name string, source label.Label) {
		if err := validToolName(name); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", source, err))

			return
		}

		if first, ok := declared[name]; ok {
			errs = multierror.Append(errs, &DuplicateToolError{Name: name, First: first, Second: source})

			return
		}

		declared[name] = source
	}

	for _, symlink := range opts.Symlinks {
		if len(symlink.Names) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s: no tool names", symlink.Actual))
		}

		for _, name := range symlink.Names {
			declare(name, symlink.Actual)
		}
	}

	for _, name := range opts.InterpreterTools {
		declare(name, opts.Interpreter)
	}

	for _, alias := range opts.Aliases {
		if _, ok := declared[alias]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("alias %q does not refer to a declared tool", alias))
		}
	}

	return errs.ErrorOrNil()
}

func validToolName(name string) error {
	switch {
	case name == "":
		return errors.New("empty tool name")
	case name == "." || name == "..":
		return fmt.Errorf("tool name %q is reserved", name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("tool name %q must not contain path separators", name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("tool name %q must not start with a dot", name)
	}

	return nil
}

// Plan resolves every input and computes the toolchain without touching the filesystem.
//
//nolint:gocyclo
func Plan(opts Options) (*Toolchain, []Action, error) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}

	outRoot, err := filepath.Abs(opts.OutRoot)
	if err != nil {
		return nil, nil, err
	}

	dir := filepath.Join(outRoot, opts.Name)

	var actions []Action

	for _, symlink := range opts.Symlinks {
		target, err := label.ResolveSingleFile(opts.Resolver, symlink.Actual)
		if err != nil {
			return nil, nil, err
		}

		if target, err = filepath.Abs(target); err != nil {
			return nil, nil, err
		}

		for _, name := range symlink.Names {
			actions = append(actions, Action{
				Name:   name,
				Link:   filepath.Join(dir, name),
				Target: target,
				Source: symlink.Actual,
			})
		}
	}

	if len(opts.InterpreterTools) > 0 {
		interpreter, err := label.ResolveSingleFile(opts.Resolver, opts.Interpreter)
		if err != nil {
			return nil, nil, err
		}

		if interpreter, err = filepath.Abs(interpreter); err != nil {
			return nil, nil, err
		}

		for _, name := range opts.InterpreterTools {
			actions = append(actions, Action{
				Name:   name,
				Link:   filepath.Join(dir, name),
				Target: interpreter,
				Source: opts.Interpreter,
			})
		}
	}

	extraDeps, err := label.ResolveAll(opts.Resolver, opts.Deps)
	if err != nil {
		return nil, nil, err
	}

	for i := range extraDeps {
		if extraDeps[i], err = filepath.Abs(extraDeps[i]); err != nil {
			return nil, nil, err
		}
	}

	tc := &Toolchain{
		name:       opts.Name,
		dir:        dir,
		relDir:     opts.Name,
		extraDeps:  dedup(extraDeps),
		fileGroups: map[string][]string{},
	}

	for _, action := range actions {
		tc.tools = append(tc.tools, Tool{Name: action.Name, Path: action.Link})
	}

	tc.deps = dedup(append(slices.Clone(tc.extraDeps), toolPaths(tc.tools)...))

	for _, alias := range opts.Aliases {
		path, _ := tc.Tool(alias)

		tc.fileGroups[opts.Name+"/"+alias] = []string{path}
	}

	if err = tc.renderFragments(); err != nil {
		return nil, nil, err
	}

	return tc, actions, nil
}

func toolPaths(tools []Tool) []string {
	paths := make([]string, 0, len(tools))

	for _, tool := range tools {
		paths = append(paths, tool.Path)
	}

	return paths
}

func dedup(paths []string) []string {
	result := slices.Clone(paths)

	slices.Sort(result)

	return slices.Compact(result)
}
