// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package kernelbuild describes the outputs of a kernel build consumed by GKI artifacts.
package kernelbuild

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/blang/semver/v4"
)

var releaseVersionRe = regexp.MustCompile(`^[0-9]+\.[0-9]+(\.[0-9]+)?`)

// Info is a kernel build reference.
type Info interface {
	// KernelRelease is the resolved kernel release identifier, e.g. 6.1.25-android14-11-g1234.
	KernelRelease() string
	// KernelReleaseFile is the file the release was read from.
	KernelReleaseFile() string
	// Images are the files produced by the kernel build.
	Images() []string
}

// ReleaseFileCandidates are paths relative to a kernel build directory searched for the release.
var ReleaseFileCandidates = []string{
	filepath.Join("include", "config", "kernel.release"),
	"kernel.release",
}

// Build is a kernel build read from disk.
type Build struct {
	release     string
	version     semver.Version
	releaseFile string
	images      []string
}

// KernelRelease implements Info.
func (b *Build) KernelRelease() string { return b.release }

// KernelReleaseFile implements Info.
func (b *Build) KernelReleaseFile() string { return b.releaseFile }

// Images implements Info.
func (b *Build) Images() []string { return slices.Clone(b.images) }

// Version returns the kernel version part of the release.
func (b *Build) Version() semver.Version { return b.version }

// New creates a kernel build reference from a release file and a list of images.
func New(releaseFile string, images []string) (*Build, error) {
	contents, err := os.ReadFile(releaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read kernel release: %w", err)
	}

	release := strings.TrimSpace(string(contents))

	version, err := ParseRelease(release)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", releaseFile, err)
	}

	return &Build{
		release:     release,
		version:     version,
		releaseFile: releaseFile,
		images:      slices.Clone(images),
	}, nil
}

// FromDir reads a kernel build from its output directory.
//
// Images are the regular files at the top level of dir.
func FromDir(dir string) (*Build, error) {
	var releaseFile string

	for _, candidate := range ReleaseFileCandidates {
		p := filepath.Join(dir, candidate)

		if _, err := os.Stat(p); err == nil {
			releaseFile = p

			break
		}
	}

	if releaseFile == "" {
		return nil, fmt.Errorf("%s: kernel release not found (looked for %s)", dir, strings.Join(ReleaseFileCandidates, ", "))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var images []string

	for _, entry := range entries {
		if entry.Type().IsRegular() && entry.Name() != "kernel.release" {
			images = append(images, filepath.Join(dir, entry.Name()))
		}
	}

	return New(releaseFile, images)
}

// ParseRelease parses a kernel release identifier.
//
// Only the leading `X.Y[.Z]` is interpreted, vendor suffixes like `_sprd`, `-android14-11`
// or a trailing `+` are allowed as is.
func ParseRelease(release string) (semver.Version, error) {
	if strings.TrimSpace(release) == "" {
		return semver.Version{}, errors.New("empty kernel release")
	}

	if strings.ContainsAny(release, " \t\r\n") {
		return semver.Version{}, fmt.Errorf("invalid kernel release %q: contains whitespace", release)
	}

	prefix := releaseVersionRe.FindString(release)
	if prefix == "" {
		return semver.Version{}, fmt.Errorf("invalid kernel release %q: expected a leading X.Y[.Z] version", release)
	}

	version, err := semver.ParseTolerant(prefix)
	if err != nil {
		return semver.Version{}, fmt.Errorf("invalid kernel release %q: %w", release, err)
	}

	return version, nil
}
