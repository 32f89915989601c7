// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gki

import (
	"maps"
	"slices"
	"strconv"

	"github.com/siderolabs/kleaf/pkg/shell"
)

// SkipAVBVariable disables AVB footers, instrumented kernels do not fit the partition sizes.
const SkipAVBVariable = "BUILD_GKI_BOOT_SKIP_AVB"

// Env is the environment consumed by build_gki_artifacts.
type Env struct {
	Cmdline       string
	Arch          Arch
	DistDir       string
	OutDir        string
	MkbootimgPath string
	// Sizes of the boot images being built, keyed by compression.
	Sizes Sizes
	// SkipAVB is set for instrumented (KASAN, gcov, ...) builds.
	SkipAVB bool
}

// Render returns export statements in a stable order.
func (e *Env) Render() (string, error) {
	var s shell.Script

	s.Export("GKI_KERNEL_CMDLINE", e.Cmdline).
		Export("ARCH", e.Arch.String()).
		Export("DIST_DIR", e.DistDir).
		Export("OUT_DIR", e.OutDir).
		Export("MKBOOTIMG_PATH", e.MkbootimgPath)

	for _, compression := range slices.Sorted(maps.Keys(e.Sizes)) {
		s.Export(SizeVariable(compression), strconv.FormatUint(uint64(e.Sizes[compression]), 10))
	}

	if e.SkipAVB {
		s.Export(SkipAVBVariable, "1")
	}

	return s.String(), s.Err()
}
