// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package fsutil stages input files for build actions.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/siderolabs/gen/pair/ordered"
)

// CopyInstruction describes a file staging operation.
type CopyInstruction = ordered.Pair[string, string]

// SourceDestination returns a CopyInstruction that stages src at dest.
func SourceDestination(src, dest string) CopyInstruction {
	return ordered.MakePair(src, dest)
}

// LinkOrCopyFiles hard links every source to its destination, falling back to a copy
// preserving the mode when linking is not possible (e.g. across filesystems).
func LinkOrCopyFiles(printf func(string, ...any), instructions ...CopyInstruction) error {
	for _, instruction := range instructions {
		src, dest := instruction.F1, instruction.F2

		if err := linkOrCopy(printf, src, dest); err != nil {
			return fmt.Errorf("error staging %s -> %s: %w", src, dest, err)
		}
	}

	return nil
}

func linkOrCopy(printf func(string, ...any), src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return err
	}

	if err := os.Link(src, dest); err == nil {
		printf("linked %s to %s", src, dest)

		return nil
	}

	printf("copying %s to %s", src, dest)

	from, err := os.Open(src)
	if err != nil {
		return err
	}
	//nolint:errcheck
	defer from.Close()

	st, err := from.Stat()
	if err != nil {
		return err
	}

	to, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, st.Mode().Perm())
	if err != nil {
		return err
	}
	//nolint:errcheck
	defer to.Close()

	if _, err = io.Copy(to, from); err != nil {
		return err
	}

	return to.Close()
}

// Move renames every source to its destination.
func Move(instructions ...CopyInstruction) error {
	for _, instruction := range instructions {
		src, dest := instruction.F1, instruction.F2

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}

		if err := os.Rename(src, dest); err != nil {
			return fmt.Errorf("error moving %s -> %s: %w", src, dest, err)
		}
	}

	return nil
}
