// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package label

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Resolver resolves labels to files.
type Resolver interface {
	Resolve(l Label) ([]string, error)
}

// NotSingleFileError is returned when a label which must point to exactly one file
// resolves to zero or several files.
type NotSingleFileError struct {
	Label Label
	Files []string
}

// Error implements error interface.
func (e *NotSingleFileError) Error() string {
	if len(e.Files) == 0 {
		return fmt.Sprintf("%s: expected exactly one file, got none", e.Label)
	}

	return fmt.Sprintf("%s: expected exactly one file, got %d: %s", e.Label, len(e.Files), strings.Join(e.Files, ", "))
}

// NotFoundError is returned when a label matches neither a filegroup, a path nor a glob.
type NotFoundError struct {
	Label Label
}

// Error implements error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no such file or pattern match", e.Label)
}

// ResolveSingleFile resolves the label and checks it points to exactly one file.
func ResolveSingleFile(r Resolver, l Label) (string, error) {
	files, err := r.Resolve(l)
	if err != nil {
		var notFound *NotFoundError

		if errors.As(err, &notFound) && notFound.Label == l {
			return "", &NotSingleFileError{Label: l}
		}

		return "", err
	}

	if len(files) != 1 {
		return "", &NotSingleFileError{Label: l, Files: files}
	}

	return files[0], nil
}

// ResolveAll resolves every label and returns the concatenated file list.
func ResolveAll(r Resolver, labels []Label) ([]string, error) {
	var result []string

	for _, l := range labels {
		files, err := r.Resolve(l)
		if err != nil {
			return nil, err
		}

		result = append(result, files...)
	}

	return result, nil
}

// Workspace resolves labels against a directory tree.
//
// Lookup order is: filegroup declared for the root package, regular file (or symlink),
// directory (every file below it, sorted), glob pattern.
type Workspace struct {
	Root       string
	FileGroups map[string][]Label
}

// Resolve implements Resolver.
func (w *Workspace) Resolve(l Label) ([]string, error) {
	return w.resolve(l, map[Label]struct{}{})
}

func (w *Workspace) resolve(l Label, visiting map[Label]struct{}) ([]string, error) {
	if l.IsZero() {
		return nil, errors.New("cannot resolve empty label")
	}

	if members, ok := w.FileGroups[l.Name]; ok && l.Package == "" {
		if _, cycle := visiting[l]; cycle {
			return nil, fmt.Errorf("%s: filegroup cycle detected", l)
		}

		visiting[l] = struct{}{}
		defer delete(visiting, l)

		var files []string

		for _, member := range members {
			memberFiles, err := w.resolve(member, visiting)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", l, err)
			}

			files = append(files, memberFiles...)
		}

		return files, nil
	}

	p := filepath.Join(w.Root, filepath.FromSlash(l.Path()))

	st, err := os.Lstat(p)

	switch {
	case err == nil && st.IsDir():
		return walkFiles(p)
	case err == nil:
		return []string{p}, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%s: %w", l, err)
	}

	if !strings.ContainsAny(l.Path(), "*?[") {
		return nil, &NotFoundError{Label: l}
	}

	matches, err := filepath.Glob(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l, err)
	}

	if len(matches) == 0 {
		return nil, &NotFoundError{Label: l}
	}

	slices.Sort(matches)

	return matches, nil
}

func walkFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)

	return files, nil
}
