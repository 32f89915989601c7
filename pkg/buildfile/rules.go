// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package buildfile

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/siderolabs/kleaf/pkg/gki"
	"github.com/siderolabs/kleaf/pkg/gki/kernelbuild"
	"github.com/siderolabs/kleaf/pkg/hermetic"
	"github.com/siderolabs/kleaf/pkg/label"
)

// Workspace returns the label resolver for the build file rooted at root.
func (f *File) Workspace(root string) *label.Workspace {
	return &label.Workspace{
		Root:       root,
		FileGroups: f.FileGroups,
	}
}

// Options converts the rule to assembler options.
func (h *HermeticTools) Options(ws *label.Workspace, outRoot string, logger *zap.Logger) hermetic.Options {
	return hermetic.Options{
		Name:             h.Name,
		OutRoot:          outRoot,
		Resolver:         ws,
		Symlinks:         h.Symlinks,
		Interpreter:      h.Interpreter,
		InterpreterTools: h.InterpreterTools,
		Deps:             h.Deps,
		Aliases:          h.Aliases,
		Logger:           logger,
	}
}

// Options resolves rule labels and converts the rule to builder options.
//
// The rule's own instrumented setting wins over the build-wide one.
func (g *GKIArtifacts) Options(ws *label.Workspace, outRoot string, instrumented bool, tc *hermetic.Toolchain, logger *zap.Logger) (gki.Options, error) {
	kb, err := g.kernelBuild(ws)
	if err != nil {
		return gki.Options{}, fmt.Errorf("%s: %w", g.Name, err)
	}

	opts := gki.Options{
		Name:          g.Name,
		OutRoot:       outRoot,
		KernelBuild:   kb,
		MkbootimgPath: g.MkbootimgPath,
		Sizes:         g.BootImgSizes,
		Arch:          g.Arch,
		Cmdline:       g.Cmdline,
		Instrumented:  instrumented,
		Toolchain:     tc,
		Logger:        logger,
	}

	if g.Instrumented != nil {
		opts.Instrumented = g.InstrumentedEnabled()
	}

	if !g.Mkbootimg.IsZero() {
		if opts.Mkbootimg, err = label.ResolveSingleFile(ws, g.Mkbootimg); err != nil {
			return gki.Options{}, fmt.Errorf("%s: mkbootimg: %w", g.Name, err)
		}
	}

	if opts.BuildUtils, err = label.ResolveSingleFile(ws, g.BuildUtils); err != nil {
		return gki.Options{}, fmt.Errorf("%s: build_utils: %w", g.Name, err)
	}

	return opts, nil
}

func (g *GKIArtifacts) kernelBuild(ws *label.Workspace) (kernelbuild.Info, error) {
	if !g.KernelBuild.IsZero() {
		return kernelbuild.FromDir(filepath.Join(ws.Root, filepath.FromSlash(g.KernelBuild.Path())))
	}

	releaseFile, err := label.ResolveSingleFile(ws, g.KernelRelease)
	if err != nil {
		return nil, fmt.Errorf("kernel_release: %w", err)
	}

	images, err := label.ResolveAll(ws, g.Images)
	if err != nil {
		return nil, fmt.Errorf("images: %w", err)
	}

	return kernelbuild.New(releaseFile, images)
}
