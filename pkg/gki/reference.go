// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gki

import (
	"fmt"
	"slices"
	"strings"
)

// ReferenceOutputsVersion is bumped whenever ReferenceOutputs changes.
const ReferenceOutputsVersion = 1

// ReferenceOutputs is the exact set of outputs GKI artifacts must declare per architecture.
//
// Architectures without an entry are not checked.
var ReferenceOutputs = map[Arch][]string{
	ArchARM64: {
		"boot-gz.img",
		"boot-img.tar.gz",
		"boot-lz4.img",
		"boot.img",
		"gki-info.txt",
	},
}

// OutputMismatchError is returned when declared outputs drift from ReferenceOutputs.
type OutputMismatchError struct {
	Arch     Arch
	Expected []string
	Actual   []string
}

// Error implements error interface.
func (e *OutputMismatchError) Error() string {
	return fmt.Sprintf("internal error: outputs for %s do not match reference list v%d: expected [%s], got [%s]",
		e.Arch, ReferenceOutputsVersion, strings.Join(e.Expected, " "), strings.Join(e.Actual, " "))
}

// CheckOutputs compares output names against the reference list of the architecture.
func CheckOutputs(arch Arch, outputs []string) error {
	expected, ok := ReferenceOutputs[arch]
	if !ok {
		return nil
	}

	actual := slices.Sorted(slices.Values(outputs))

	if !slices.Equal(slices.Sorted(slices.Values(expected)), actual) {
		return &OutputMismatchError{
			Arch:     arch,
			Expected: slices.Clone(expected),
			Actual:   actual,
		}
	}

	return nil
}
