// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gki

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-envparse"
	"github.com/siderolabs/go-cmd/pkg/cmd"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/siderolabs/kleaf/pkg/fsutil"
	"github.com/siderolabs/kleaf/pkg/gki/kernelbuild"
	"github.com/siderolabs/kleaf/pkg/logging"
)

// Artifacts are published GKI outputs.
type Artifacts struct {
	// Dir is the directory outputs are published to.
	Dir string
	// Default is the full output set.
	Default []string
	// Groups are output subsets, see GroupCompressions.
	Groups map[string][]string
	// Info is the parsed gki-info.txt.
	Info map[string]string
}

// Build runs the GKI artifacts action.
//
// Outputs are produced in a staging directory and published to OutRoot/Name only when every
// declared output is present: a failed action publishes nothing.
func Build(ctx context.Context, opts Options) (*Artifacts, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logger = logger.With(logging.Component("gki"), logging.Rule(opts.Name))

	p, err := NewPlan(opts)
	if err != nil {
		return nil, err
	}

	for _, img := range p.Images {
		logger.Debug("kernel image", zap.String("image", img.Path), zap.String("output", img.Output()),
			zap.Stringer("size", opts.Sizes[img.Compression]))
	}

	if opts.Instrumented {
		logger.Info("instrumented build, AVB footers are skipped")
	}

	artifacts, err := p.execute(ctx, opts.KernelBuild, logger)
	if err != nil {
		if cleanupErr := os.RemoveAll(p.StagingDir); cleanupErr != nil {
			logger.Warn("failed to remove staging directory", zap.Error(cleanupErr))
		}

		return nil, err
	}

	logger.Info("GKI artifacts ready",
		zap.String("dir", artifacts.Dir),
		zap.Strings("outputs", p.Outputs),
		zap.String("kernel_release", opts.KernelBuild.KernelRelease()),
	)

	return artifacts, nil
}

func (p *Plan) execute(ctx context.Context, kb kernelbuild.Info, logger *zap.Logger) (*Artifacts, error) {
	if err := os.RemoveAll(p.StagingDir); err != nil {
		return nil, err
	}

	for _, dir := range []string{p.DistDir, p.OutDir, p.PublishDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	printf := func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}

	instructions := []fsutil.CopyInstruction{
		fsutil.SourceDestination(kb.KernelReleaseFile(), filepath.Join(p.OutDir, "include", "config", "kernel.release")),
	}

	for _, img := range p.Images {
		instructions = append(instructions, fsutil.SourceDestination(img.Path, filepath.Join(p.DistDir, filepath.Base(img.Path))))
	}

	if err := fsutil.LinkOrCopyFiles(printf, instructions...); err != nil {
		return nil, err
	}

	logger.Debug("running build action", zap.String("shell", p.Shell))

	stdout, err := cmd.RunContext(ctx, p.Shell, "-c", p.Script)
	logging.WriteLines(logger, zapcore.InfoLevel, stdout)

	if err != nil {
		return nil, fmt.Errorf("%s: %s failed: %w", p.Name, BuildFunction, err)
	}

	if err = p.checkProduced(); err != nil {
		return nil, err
	}

	return p.publish(logger)
}

func (p *Plan) checkProduced() error {
	var missing []string

	for _, output := range p.Outputs {
		st, err := os.Stat(filepath.Join(p.DistDir, output))

		switch {
		case errors.Is(err, fs.ErrNotExist):
			missing = append(missing, output)
		case err != nil:
			return err
		case !st.Mode().IsRegular():
			return fmt.Errorf("%s: output %s is not a regular file", p.Name, output)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%s: %s did not produce declared outputs: %s", p.Name, BuildFunction, strings.Join(missing, ", "))
	}

	return nil
}

func (p *Plan) publish(logger *zap.Logger) (*Artifacts, error) {
	var instructions []fsutil.CopyInstruction

	for _, output := range p.Outputs {
		instructions = append(instructions, fsutil.SourceDestination(filepath.Join(p.DistDir, output), filepath.Join(p.PublishDir, output)))
	}

	if err := fsutil.Move(instructions...); err != nil {
		return nil, err
	}

	info, err := ReadInfo(filepath.Join(p.PublishDir, InfoName))
	if err != nil {
		return nil, err
	}

	previous := filepath.Join(p.StagingDir, "previous")

	if err = os.Rename(p.FinalDir, previous); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err = os.Rename(p.PublishDir, p.FinalDir); err != nil {
		os.Rename(previous, p.FinalDir) //nolint:errcheck

		return nil, err
	}

	// outputs are already published at this point
	if err = os.RemoveAll(p.StagingDir); err != nil {
		logger.Warn("failed to remove staging directory", zap.String("dir", p.StagingDir), zap.Error(err))
	}

	artifacts := &Artifacts{
		Dir:     p.FinalDir,
		Default: p.OutputPaths(),
		Groups:  map[string][]string{},
		Info:    info,
	}

	for group, outputs := range p.Groups {
		for _, output := range outputs {
			artifacts.Groups[group] = append(artifacts.Groups[group], filepath.Join(p.FinalDir, output))
		}

		slices.Sort(artifacts.Groups[group])
	}

	return artifacts, nil
}

// ReadInfo parses gki-info.txt (KEY=value lines).
func ReadInfo(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close() //nolint:errcheck

	info, err := envparse.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	return info, nil
}
