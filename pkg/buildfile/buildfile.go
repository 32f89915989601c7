// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package buildfile contains definition of the kleaf.yaml build file.
package buildfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/siderolabs/gen/maps"
	"github.com/siderolabs/go-pointer"
	"gopkg.in/yaml.v3"

	"github.com/siderolabs/kleaf/pkg/gki"
	"github.com/siderolabs/kleaf/pkg/hermetic"
	"github.com/siderolabs/kleaf/pkg/label"
)

// DefaultName is the build file looked up in the workspace root.
const DefaultName = "kleaf.yaml"

// File describes rule declarations of a workspace.
type File struct {
	// FileGroups are named lists of labels, referenced as `:name`.
	FileGroups map[string][]label.Label `yaml:"filegroups,omitempty"`
	// HermeticTools declares the hermetic toolchain.
	HermeticTools *HermeticTools `yaml:"hermetic_tools,omitempty"`
	// GKIArtifacts declares the boot artifacts built out of a kernel build.
	GKIArtifacts *GKIArtifacts `yaml:"gki_artifacts,omitempty"`
}

// HermeticTools is the hermetic_tools rule.
type HermeticTools struct {
	Name string `yaml:"name"`
	// Symlinks map prebuilt executables to tool names.
	Symlinks []hermetic.Symlink `yaml:"symlinks"`
	// Interpreter is the runtime for InterpreterTools.
	Interpreter label.Label `yaml:"interpreter,omitempty"`
	// InterpreterTools are tool names pointing at Interpreter.
	InterpreterTools []string `yaml:"interpreter_tools,omitempty"`
	// Deps are extra toolchain inputs which are not put on PATH.
	Deps []label.Label `yaml:"deps,omitempty"`
	// Aliases are tools exposed as individual file groups.
	//
	// Deprecated: use tools through PATH.
	Aliases []string `yaml:"aliases,omitempty"`
}

// GKIArtifacts is the gki_artifacts rule.
type GKIArtifacts struct {
	Name string `yaml:"name"`
	// KernelBuild is the kernel build output directory.
	KernelBuild label.Label `yaml:"kernel_build,omitempty"`
	// KernelRelease and Images describe the kernel build file by file, if KernelBuild is not set.
	KernelRelease label.Label   `yaml:"kernel_release,omitempty"`
	Images        []label.Label `yaml:"images,omitempty"`
	// Mkbootimg is the boot image template tool.
	Mkbootimg label.Label `yaml:"mkbootimg,omitempty"`
	// MkbootimgPath overrides MKBOOTIMG_PATH.
	MkbootimgPath string `yaml:"mkbootimg_path,omitempty"`
	// BuildUtils is the script defining build_gki_artifacts.
	BuildUtils label.Label `yaml:"build_utils"`
	// BootImgSizes are boot image sizes keyed by compression, "" for the uncompressed Image.
	BootImgSizes gki.Sizes `yaml:"boot_img_sizes"`
	// Arch of the kernel.
	Arch gki.Arch `yaml:"arch"`
	// Cmdline is baked into the boot images.
	Cmdline string `yaml:"gki_kernel_cmdline"`
	// Instrumented overrides the build-wide instrumentation toggle.
	Instrumented *bool `yaml:"instrumented,omitempty"`
}

// InstrumentedEnabled dereferences Instrumented.
func (g *GKIArtifacts) InstrumentedEnabled() bool {
	return pointer.SafeDeref(g.Instrumented)
}

// Load reads the build file from path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close() //nolint:errcheck

	file, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return file, nil
}

// Parse decodes and validates the build file.
func Parse(r io.Reader) (*File, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var file File

	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("build file is empty")
		}

		return nil, fmt.Errorf("failed to decode build file: %w", err)
	}

	if err := file.Validate(); err != nil {
		return nil, err
	}

	return &file, nil
}

// Dump the build file to w.
func (f *File) Dump(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	return encoder.Encode(f)
}

// Validate the build file, reporting every problem found.
func (f *File) Validate() error {
	var errs *multierror.Error

	if f.HermeticTools == nil && f.GKIArtifacts == nil {
		errs = multierror.Append(errs, errors.New("no rules declared"))
	}

	groups := maps.Keys(f.FileGroups)
	slices.Sort(groups)

	for _, name := range groups {
		if name == "" || strings.ContainsAny(name, "/:") {
			errs = multierror.Append(errs, fmt.Errorf("filegroups: invalid name %q", name))
		}

		if len(f.FileGroups[name]) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("filegroups: %s is empty", name))
		}
	}

	if f.HermeticTools != nil {
		errs = multierror.Append(errs, prefix("hermetic_tools", f.HermeticTools.validate()))
	}

	if f.GKIArtifacts != nil {
		errs = multierror.Append(errs, prefix("gki_artifacts", f.GKIArtifacts.validate()))
	}

	if f.HermeticTools != nil && f.GKIArtifacts != nil && f.HermeticTools.Name != "" && f.HermeticTools.Name == f.GKIArtifacts.Name {
		errs = multierror.Append(errs, fmt.Errorf("rule name %q is declared twice", f.HermeticTools.Name))
	}

	return errs.ErrorOrNil()
}

func (h *HermeticTools) validate() error {
	var errs *multierror.Error

	if h.Name == "" {
		errs = multierror.Append(errs, errors.New("name is required"))
	}

	if len(h.Symlinks) == 0 && len(h.InterpreterTools) == 0 {
		errs = multierror.Append(errs, errors.New("no tools declared"))
	}

	for i, symlink := range h.Symlinks {
		if symlink.Actual.IsZero() {
			errs = multierror.Append(errs, fmt.Errorf("symlinks[%d]: actual is required", i))
		}
	}

	if len(h.InterpreterTools) > 0 && h.Interpreter.IsZero() {
		errs = multierror.Append(errs, errors.New("interpreter_tools require an interpreter"))
	}

	return errs.ErrorOrNil()
}

//nolint:gocyclo
func (g *GKIArtifacts) validate() error {
	var errs *multierror.Error

	if g.Name == "" {
		errs = multierror.Append(errs, errors.New("name is required"))
	}

	switch {
	case !g.KernelBuild.IsZero() && (!g.KernelRelease.IsZero() || len(g.Images) > 0):
		errs = multierror.Append(errs, errors.New("kernel_build is exclusive with kernel_release and images"))
	case g.KernelBuild.IsZero() && (g.KernelRelease.IsZero() || len(g.Images) == 0):
		errs = multierror.Append(errs, errors.New("either kernel_build or kernel_release with images is required"))
	}

	if g.Mkbootimg.IsZero() && g.MkbootimgPath == "" {
		errs = multierror.Append(errs, errors.New("mkbootimg is required"))
	}

	if g.BuildUtils.IsZero() {
		errs = multierror.Append(errs, errors.New("build_utils is required"))
	}

	if _, err := gki.ArchString(string(g.Arch)); err != nil {
		errs = multierror.Append(errs, err)
	}

	compressions := maps.Keys(g.BootImgSizes)
	slices.Sort(compressions)

	for _, compression := range compressions {
		if g.BootImgSizes[compression] == 0 {
			errs = multierror.Append(errs, fmt.Errorf("boot_img_sizes: size for %q must be positive", compression))
		}
	}

	return errs.ErrorOrNil()
}

func prefix(rule string, err error) error {
	if err == nil {
		return nil
	}

	var merr *multierror.Error

	if !errors.As(err, &merr) {
		return fmt.Errorf("%s: %w", rule, err)
	}

	var errs *multierror.Error

	for _, e := range merr.Errors {
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", rule, e))
	}

	return errs
}
