// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hermetic

import (
	"fmt"
	"maps"
	"slices"

	"github.com/siderolabs/kleaf/pkg/shell"
)

// Tool is a single named tool in the toolchain.
type Tool struct {
	Name string
	Path string
}

// Toolchain describes assembled hermetic tools.
//
// Toolchain is immutable, accessors return copies.
type Toolchain struct {
	name   string
	dir    string
	relDir string

	tools      []Tool
	extraDeps  []string
	deps       []string
	fileGroups map[string][]string

	setup              string
	additionalSetup    string
	runSetup           string
	runAdditionalSetup string
}

// Name of the rule instance which produced the toolchain.
func (tc *Toolchain) Name() string { return tc.name }

// Dir is the absolute path of the tool directory.
func (tc *Toolchain) Dir() string { return tc.dir }

// RelDir is the tool directory relative to the output root.
func (tc *Toolchain) RelDir() string { return tc.relDir }

// Tools returns tools usable by name, in declaration order.
func (tc *Toolchain) Tools() []Tool { return slices.Clone(tc.tools) }

// Tool returns the path of the named tool.
func (tc *Toolchain) Tool(name string) (string, bool) {
	for _, tool := range tc.tools {
		if tool.Name == name {
			return tool.Path, true
		}
	}

	return "", false
}

// ExtraDeps are inputs which are part of the toolchain but not on PATH.
func (tc *Toolchain) ExtraDeps() []string { return slices.Clone(tc.extraDeps) }

// Deps is the sorted, deduplicated set of all toolchain files: symlinks and extra deps.
func (tc *Toolchain) Deps() []string { return slices.Clone(tc.deps) }

// FileGroups returns per-alias file groups keyed as `<name>/<tool>`.
//
// Deprecated: use tools through PATH.
func (tc *Toolchain) FileGroups() map[string][]string {
	result := make(map[string][]string, len(tc.fileGroups))

	for k, v := range tc.fileGroups {
		result[k] = slices.Clone(v)
	}

	return result
}

// Setup is evaluated at the start of build actions: strict error handling and PATH replaced.
func (tc *Toolchain) Setup() string { return tc.setup }

// AdditionalSetup prepends the tool directory to PATH, keeping the existing entries.
func (tc *Toolchain) AdditionalSetup() string { return tc.additionalSetup }

// RunSetup is Setup for commands run from the output root.
func (tc *Toolchain) RunSetup() string { return tc.runSetup }

// RunAdditionalSetup is AdditionalSetup for commands run from the output root.
func (tc *Toolchain) RunAdditionalSetup() string { return tc.runAdditionalSetup }

// Fragments returns every setup fragment keyed by name.
func (tc *Toolchain) Fragments() map[string]string {
	return map[string]string{
		FragmentSetup:              tc.setup,
		FragmentAdditionalSetup:    tc.additionalSetup,
		FragmentRunSetup:           tc.runSetup,
		FragmentRunAdditionalSetup: tc.runAdditionalSetup,
	}
}

// Fragment names.
const (
	FragmentSetup              = "setup"
	FragmentAdditionalSetup    = "additional_setup"
	FragmentRunSetup           = "run_setup"
	FragmentRunAdditionalSetup = "run_additional_setup"
)

// FragmentNames returns sorted fragment names.
func FragmentNames() []string {
	return slices.Sorted(maps.Keys((&Toolchain{}).Fragments()))
}

func (tc *Toolchain) renderFragments() error {
	dir, err := shell.Quote(tc.dir)
	if err != nil {
		return fmt.Errorf("tool directory %q: %w", tc.dir, err)
	}

	relDir, err := shell.Quote(tc.relDir)
	if err != nil {
		return fmt.Errorf("tool directory %q: %w", tc.relDir, err)
	}

	runDir := fmt.Sprintf(`"$(cd %s && pwd)"`, relDir)

	var setup, additional, runSetup, runAdditional shell.Script

	setup.Line("set -e").
		Line("set -o pipefail").
		ExportRaw("PATH", dir).
		ExportRaw(MarkerVariable, dir)

	additional.ExportRaw("PATH", dir+":${PATH}")

	runSetup.Line("set -e").
		Line("set -o pipefail").
		ExportRaw("PATH", runDir).
		ExportRaw(MarkerVariable, `"${PATH}"`)

	runAdditional.ExportRaw("PATH", runDir+":${PATH}")

	for _, s := range []*shell.Script{&setup, &additional, &runSetup, &runAdditional} {
		if err = s.Err(); err != nil {
			return err
		}
	}

	tc.setup = setup.String()
	tc.additionalSetup = additional.String()
	tc.runSetup = runSetup.String()
	tc.runAdditionalSetup = runAdditional.String()

	return nil
}
