// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package archiver

import (
	"archive/tar"
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
)

// File is an archive entry backed by a file on disk.
type File struct {
	// ArchivePath is the entry name in the archive.
	ArchivePath string
	// SourcePath is the file on disk.
	SourcePath string
}

// Files maps source paths to entries named by their base name.
func Files(paths ...string) []File {
	files := make([]File, 0, len(paths))

	for _, path := range paths {
		files = append(files, File{ArchivePath: filepath.Base(path), SourcePath: path})
	}

	return files
}

// Tar writes files as a tar archive.
//
// Entries are sorted by name, ownership and timestamps are cleared, symlinks are followed.
// Only regular files are supported.
func Tar(ctx context.Context, files []File, output io.Writer) error {
	files = slices.Clone(files)
	slices.SortFunc(files, func(a, b File) int { return cmp.Compare(a.ArchivePath, b.ArchivePath) })

	tw := tar.NewWriter(output)
	//nolint:errcheck
	defer tw.Close()

	for _, entry := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := writeEntry(tw, entry); err != nil {
			return fmt.Errorf("error processing %s: %w", entry.SourcePath, err)
		}
	}

	return tw.Close()
}

func writeEntry(tw *tar.Writer, entry File) error {
	in, err := os.Open(entry.SourcePath)
	if err != nil {
		return fmt.Errorf("error opening %q: %w", entry.SourcePath, err)
	}

	defer in.Close() //nolint:errcheck

	st, err := in.Stat()
	if err != nil {
		return fmt.Errorf("error stating file %s: %w", entry.SourcePath, err)
	}

	header := &tar.Header{
		Name: entry.ArchivePath,
		Mode: int64(st.Mode().Perm()),
	}

	if !st.Mode().IsRegular() {
		return fmt.Errorf("unsupported file type %s", st.Mode().Type())
	}

	header.Typeflag = tar.TypeReg
	header.Size = st.Size()

	if err = tw.WriteHeader(header); err != nil {
		return fmt.Errorf("error writing tar header for %s: %w", entry.ArchivePath, err)
	}

	if _, err = io.Copy(tw, in); err != nil {
		return fmt.Errorf("error writing tar data for %s: %w", entry.ArchivePath, err)
	}

	return in.Close()
}
