// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package archiver_test

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/suite"

	"github.com/siderolabs/kleaf/pkg/archiver"
)

type ArchiverSuite struct {
	suite.Suite

	tmpDir string
}

var filesFixture = []struct {
	Path     string
	Mode     os.FileMode
	Contents []byte
}{
	{
		Path:     "boot.img",
		Mode:     0o644,
		Contents: []byte("ANDROID!"),
	},
	{
		Path:     "boot-lz4.img",
		Mode:     0o644,
		Contents: []byte("ANDROID! lz4"),
	},
	{
		Path:     "gki-info.txt",
		Mode:     0o600,
		Contents: []byte("kernel_release=6.1.25\n"),
	},
	{
		Path:     "extra/boot-gz.img",
		Mode:     0o755,
		Contents: []byte("ANDROID! gz"),
	},
}

type entry struct {
	Mode     int64
	Contents string
}

func (suite *ArchiverSuite) SetupTest() {
	suite.tmpDir = suite.T().TempDir()

	for _, fi := range filesFixture {
		p := filepath.Join(suite.tmpDir, filepath.FromSlash(fi.Path))

		suite.Require().NoError(os.MkdirAll(filepath.Dir(p), 0o755))
		suite.Require().NoError(os.WriteFile(p, fi.Contents, fi.Mode))
		suite.Require().NoError(os.Chmod(p, fi.Mode))
	}
}

func (suite *ArchiverSuite) read(r io.Reader) ([]string, map[string]entry) {
	zr, err := gzip.NewReader(r)
	suite.Require().NoError(err)

	tr := tar.NewReader(zr)

	var names []string

	entries := map[string]entry{}

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		suite.Require().NoError(err)
		suite.Assert().True(hdr.ModTime.IsZero() || hdr.ModTime.Unix() == 0)
		suite.Assert().Zero(hdr.Uid)

		contents, err := io.ReadAll(tr)
		suite.Require().NoError(err)

		names = append(names, hdr.Name)
		entries[hdr.Name] = entry{Mode: hdr.Mode, Contents: string(contents)}
	}

	suite.Require().NoError(zr.Close())

	return names, entries
}

func (suite *ArchiverSuite) TestTarGzFiles() {
	var buf bytes.Buffer

	err := archiver.TarGz(context.Background(), archiver.Files(
		filepath.Join(suite.tmpDir, "gki-info.txt"),
		filepath.Join(suite.tmpDir, "boot.img"),
		filepath.Join(suite.tmpDir, "extra", "boot-gz.img"),
	), &buf)
	suite.Require().NoError(err)

	names, entries := suite.read(&buf)

	suite.Assert().Equal([]string{"boot-gz.img", "boot.img", "gki-info.txt"}, names)
	suite.Assert().Equal(entry{Mode: 0o755, Contents: "ANDROID! gz"}, entries["boot-gz.img"])
	suite.Assert().Equal(entry{Mode: 0o600, Contents: "kernel_release=6.1.25\n"}, entries["gki-info.txt"])
}

func (suite *ArchiverSuite) TestTarGzArchivePaths() {
	var buf bytes.Buffer

	err := archiver.TarGz(context.Background(), []archiver.File{
		{ArchivePath: "extra/boot-gz.img", SourcePath: filepath.Join(suite.tmpDir, "extra", "boot-gz.img")},
		{ArchivePath: "boot-lz4.img", SourcePath: filepath.Join(suite.tmpDir, "boot-lz4.img")},
	}, &buf)
	suite.Require().NoError(err)

	names, entries := suite.read(&buf)

	suite.Assert().Equal([]string{"boot-lz4.img", "extra/boot-gz.img"}, names)
	suite.Assert().Equal("ANDROID! lz4", entries["boot-lz4.img"].Contents)
}

func (suite *ArchiverSuite) TestReproducible() {
	var first, second bytes.Buffer

	files := func() []archiver.File {
		return archiver.Files(
			filepath.Join(suite.tmpDir, "boot.img"),
			filepath.Join(suite.tmpDir, "boot-lz4.img"),
			filepath.Join(suite.tmpDir, "gki-info.txt"),
		)
	}

	suite.Require().NoError(archiver.TarGz(context.Background(), files(), &first))

	now := time.Now().Add(time.Hour)
	suite.Require().NoError(os.Chtimes(filepath.Join(suite.tmpDir, "boot.img"), now, now))

	suite.Require().NoError(archiver.TarGz(context.Background(), files(), &second))

	suite.Assert().Equal(first.Bytes(), second.Bytes())
}

func (suite *ArchiverSuite) TestErrors() {
	var buf bytes.Buffer

	err := archiver.TarGz(context.Background(), archiver.Files(filepath.Join(suite.tmpDir, "missing.img")), &buf)
	suite.Assert().ErrorContains(err, "missing.img")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = archiver.TarGz(ctx, archiver.Files(filepath.Join(suite.tmpDir, "boot.img")), &buf)
	suite.Assert().ErrorIs(err, context.Canceled)

	err = archiver.TarGz(context.Background(), archiver.Files(filepath.Join(suite.tmpDir, "extra")), &buf)
	suite.Assert().ErrorContains(err, "unsupported file type")
}

func TestArchiverSuite(t *testing.T) {
	suite.Run(t, new(ArchiverSuite))
}
