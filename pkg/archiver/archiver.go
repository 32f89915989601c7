// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package archiver packs build outputs into reproducible tar archives.
package archiver

import (
	"context"
	"io"

	"github.com/klauspost/compress/gzip"
)

// TarGz produces .tar.gz archive of files.
func TarGz(ctx context.Context, files []File, output io.Writer) error {
	zw := gzip.NewWriter(output)
	//nolint:errcheck
	defer zw.Close()

	if err := Tar(ctx, files, zw); err != nil {
		return err
	}

	return zw.Close()
}
