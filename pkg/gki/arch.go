// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gki

import (
	"fmt"
	"slices"
	"strings"
)

// Arch is the target architecture of GKI artifacts, as exported in ARCH.
type Arch string

// Arch values.
const (
	ArchARM64   Arch = "arm64"
	ArchRISCV64 Arch = "riscv64"
	ArchX86_64  Arch = "x86_64" //nolint:revive
)

// Archs lists supported architectures.
var Archs = []Arch{ArchARM64, ArchRISCV64, ArchX86_64}

// ArchString parses an architecture.
func ArchString(s string) (Arch, error) {
	arch := Arch(s)

	if !slices.Contains(Archs, arch) {
		return "", fmt.Errorf("invalid arch %q, expected one of: %s", s, strings.Join(archNames(), ", "))
	}

	return arch, nil
}

func archNames() []string {
	names := make([]string, 0, len(Archs))

	for _, arch := range Archs {
		names = append(names, string(arch))
	}

	return names
}

// String implements fmt.Stringer.
func (a Arch) String() string {
	return string(a)
}

// Set implements pflag.Value.
func (a *Arch) Set(s string) error {
	arch, err := ArchString(s)
	if err != nil {
		return err
	}

	*a = arch

	return nil
}

// Type implements pflag.Value.
func (a *Arch) Type() string {
	return "arch"
}

// UnmarshalText implements encoding.TextUnmarshaler.
//
// The value is stored as is, build file validation reports unknown architectures.
func (a *Arch) UnmarshalText(text []byte) error {
	*a = Arch(text)

	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Arch) MarshalText() ([]byte, error) {
	return []byte(a), nil
}
