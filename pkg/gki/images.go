// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gki

import (
	"path/filepath"
	"strings"
)

// Output file names.
const (
	KernelImageName = "Image"
	TarballName     = "boot-img.tar.gz"
	InfoName        = "gki-info.txt"
)

// Image is a kernel image recognized by its file name.
type Image struct {
	// Path of the kernel image.
	Path string
	// Compression is "" for the uncompressed Image, otherwise the suffix of Image.<compression>.
	Compression string
}

// Output is the name of the boot image built from the kernel image.
func (img Image) Output() string {
	return BootImageName(img.Compression)
}

// BootImageName is boot.img for uncompressed kernels and boot-<compression>.img otherwise.
func BootImageName(compression string) string {
	if compression == "" {
		return "boot.img"
	}

	return "boot-" + compression + ".img"
}

// SizeVariable is the environment variable holding the boot image size for a compression.
func SizeVariable(compression string) string {
	if compression == "" {
		return "BUILD_GKI_BOOT_IMG_SIZE"
	}

	return "BUILD_GKI_BOOT_IMG_" + strings.ToUpper(compression) + "_SIZE"
}

// Classify picks kernel images out of the kernel build outputs.
//
// Files other than Image and Image.<compression> are ignored.
func Classify(files []string) []Image {
	var images []Image

	for _, file := range files {
		base := filepath.Base(file)

		switch {
		case base == KernelImageName:
			images = append(images, Image{Path: file})
		case strings.HasPrefix(base, KernelImageName+"."):
			compression := strings.TrimPrefix(base, KernelImageName+".")
			if compression == "" {
				continue
			}

			images = append(images, Image{Path: file, Compression: compression})
		}
	}

	return images
}
