// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gki builds Generic Kernel Image boot artifacts out of kernel build outputs.
//
// The boot images are produced by the build_gki_artifacts shell function, invoked once
// with the environment computed from the kernel images and the declared sizes.
package gki

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/siderolabs/kleaf/pkg/gki/kernelbuild"
	"github.com/siderolabs/kleaf/pkg/hermetic"
	"github.com/siderolabs/kleaf/pkg/shell"
)

// DefaultShell runs the build action.
const DefaultShell = "/bin/bash"

// BuildFunction is the shell function sourced from BuildUtils.
const BuildFunction = "build_gki_artifacts"

// GroupCompressions are compressions exposed as individual output groups.
var GroupCompressions = []string{"lz4", "gz"}

// Options for building GKI artifacts.
type Options struct {
	// Name of the rule instance, outputs are published to OutRoot/Name.
	Name    string
	OutRoot string

	KernelBuild kernelbuild.Info
	// Mkbootimg is the boot image template tool.
	Mkbootimg string
	// MkbootimgPath overrides MKBOOTIMG_PATH, Mkbootimg is used if empty.
	MkbootimgPath string
	// BuildUtils is the script defining build_gki_artifacts.
	BuildUtils string

	Sizes   Sizes
	Arch    Arch
	Cmdline string
	// Instrumented is the build-wide instrumentation toggle, it disables AVB footers.
	Instrumented bool

	// Toolchain restricts the action to hermetic tools, optional.
	Toolchain *hermetic.Toolchain
	// Shell is the interpreter running the action, DefaultShell if empty.
	Shell string

	Logger *zap.Logger
}

// Plan is the fully resolved build action.
type Plan struct {
	Name   string
	Arch   Arch
	Images []Image
	// Outputs are declared output names.
	Outputs []string
	// Groups maps output group names to output names.
	Groups map[string][]string
	// Inputs of the action.
	Inputs []string

	StagingDir string
	DistDir    string
	OutDir     string
	PublishDir string
	FinalDir   string

	Env    string
	Script string
	Shell  string
}

//nolint:gocyclo
func (opts *Options) validate() error {
	var errs *multierror.Error

	if opts.Name == "" {
		errs = multierror.Append(errs, errors.New("name is required"))
	}

	if opts.KernelBuild == nil {
		errs = multierror.Append(errs, errors.New("kernel build is required"))
	}

	if opts.Mkbootimg == "" && opts.MkbootimgPath == "" {
		errs = multierror.Append(errs, errors.New("mkbootimg is required"))
	}

	if opts.BuildUtils == "" {
		errs = multierror.Append(errs, errors.New("build utils script is required"))
	}

	if _, err := ArchString(string(opts.Arch)); err != nil {
		errs = multierror.Append(errs, err)
	}

	return errs.ErrorOrNil()
}

// NewPlan classifies kernel images, computes the declared outputs and renders the action.
//
//nolint:gocyclo,cyclop
func NewPlan(opts Options) (*Plan, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	outRoot, err := filepath.Abs(opts.OutRoot)
	if err != nil {
		return nil, err
	}

	images := Classify(opts.KernelBuild.Images())

	var (
		errs  *multierror.Error
		sizes = Sizes{}
	)

	for _, img := range images {
		size, ok := opts.Sizes[img.Compression]

		switch {
		case !ok:
			errs = multierror.Append(errs, &MissingSizeError{Image: img})

			continue
		case size == 0:
			errs = multierror.Append(errs, fmt.Errorf("size for %s (key %q) must be positive", img.Output(), img.Compression))

			continue
		}

		sizes[img.Compression] = size
	}

	if err = errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.Name, err)
	}

	if len(images) == 0 {
		return nil, fmt.Errorf("%s: kernel build has no kernel images", opts.Name)
	}

	p := &Plan{
		Name:       opts.Name,
		Arch:       opts.Arch,
		Images:     images,
		Outputs:    []string{TarballName, InfoName},
		Groups:     map[string][]string{},
		StagingDir: filepath.Join(outRoot, "."+opts.Name+".staging"),
		FinalDir:   filepath.Join(outRoot, opts.Name),
		Shell:      opts.Shell,
	}

	if p.Shell == "" {
		p.Shell = DefaultShell
	}

	p.DistDir = filepath.Join(p.StagingDir, "dist")
	p.OutDir = filepath.Join(p.StagingDir, "out")
	p.PublishDir = filepath.Join(p.StagingDir, "publish")

	for _, img := range images {
		if slices.Contains(p.Outputs, img.Output()) {
			return nil, fmt.Errorf("%s: %s is produced by more than one kernel image", opts.Name, img.Output())
		}

		p.Outputs = append(p.Outputs, img.Output())
		p.Inputs = append(p.Inputs, img.Path)

		if slices.Contains(GroupCompressions, img.Compression) {
			p.Groups[img.Output()] = []string{img.Output()}
		}
	}

	if err = CheckOutputs(opts.Arch, p.Outputs); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.Name, err)
	}

	mkbootimgPath := opts.MkbootimgPath
	if mkbootimgPath == "" {
		if mkbootimgPath, err = filepath.Abs(opts.Mkbootimg); err != nil {
			return nil, err
		}

		p.Inputs = append(p.Inputs, mkbootimgPath)
	}

	buildUtils, err := filepath.Abs(opts.BuildUtils)
	if err != nil {
		return nil, err
	}

	p.Inputs = append(p.Inputs, opts.KernelBuild.KernelReleaseFile(), buildUtils)

	if opts.Toolchain != nil {
		p.Inputs = append(p.Inputs, opts.Toolchain.Deps()...)
	}

	env := Env{
		Cmdline:       opts.Cmdline,
		Arch:          opts.Arch,
		DistDir:       p.DistDir,
		OutDir:        p.OutDir,
		MkbootimgPath: mkbootimgPath,
		Sizes:         sizes,
		SkipAVB:       opts.Instrumented,
	}

	if p.Env, err = env.Render(); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.Name, err)
	}

	quotedUtils, err := shell.Quote(buildUtils)
	if err != nil {
		return nil, err
	}

	var script shell.Script

	if opts.Toolchain != nil {
		script.Fragment(opts.Toolchain.Setup())
	} else {
		script.Line("set -e").Line("set -o pipefail")
	}

	script.Fragment(p.Env).
		Line("source %s", quotedUtils).
		Line("%s", BuildFunction)

	if err = script.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.Name, err)
	}

	p.Script = script.String()

	return p, nil
}

// OutputPaths returns absolute paths of declared outputs once published.
func (p *Plan) OutputPaths() []string {
	paths := make([]string, 0, len(p.Outputs))

	for _, output := range p.Outputs {
		paths = append(paths, filepath.Join(p.FinalDir, output))
	}

	slices.Sort(paths)

	return paths
}
