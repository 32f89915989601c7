// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package hermetic

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/siderolabs/kleaf/pkg/logging"
)

// Assemble plans the toolchain and creates the tool directory.
//
// Symlink actions are independent of each other and run concurrently. Entries of the
// tool directory which are not part of the plan are removed.
func Assemble(ctx context.Context, opts Options) (*Toolchain, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logger = logger.With(logging.Component("hermetic"), logging.Rule(opts.Name))

	tc, actions, err := Plan(opts)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(tc.Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tool directory: %w", err)
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(parallelism)

	for _, action := range actions {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}

			if err := createSymlink(action); err != nil {
				return fmt.Errorf("%s: failed to create tool %q: %w", action.Source, action.Name, err)
			}

			logger.Debug("created tool symlink", zap.String("tool", action.Name), zap.String("target", action.Target))

			return nil
		})
	}

	if err = eg.Wait(); err != nil {
		return nil, err
	}

	if err = prune(tc.Dir(), actions, logger); err != nil {
		return nil, err
	}

	logger.Info("hermetic tools ready",
		zap.String("dir", tc.Dir()),
		zap.Int("tools", len(actions)),
		zap.Int("extra_deps", len(tc.ExtraDeps())),
	)

	return tc, nil
}

// createSymlink replaces the link atomically.
func createSymlink(action Action) error {
	target, err := action.LinkTarget()
	if err != nil {
		return err
	}

	if current, err := os.Readlink(action.Link); err == nil && current == target {
		return nil
	}

	// tool names never start with a dot, so the temporary link can't clash with another tool
	tmp := filepath.Join(filepath.Dir(action.Link), "."+action.Name+".tmp")

	if err = os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err = os.Symlink(target, tmp); err != nil {
		return err
	}

	if err = os.Rename(tmp, action.Link); err != nil {
		os.Remove(tmp) //nolint:errcheck

		return err
	}

	return nil
}

func prune(dir string, actions []Action, logger *zap.Logger) error {
	expected := make(map[string]struct{}, len(actions))

	for _, action := range actions {
		expected[filepath.Base(action.Link)] = struct{}{}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if _, ok := expected[entry.Name()]; ok {
			continue
		}

		logger.Debug("removing stale tool", zap.String("tool", entry.Name()))

		if err = os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove stale tool %q: %w", entry.Name(), err)
		}
	}

	return nil
}
