// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gki

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Size of a boot image partition in bytes.
//
// Size unmarshals from integers or human readable strings (64MiB).
type Size uint64

// ParseSize parses a size given in bytes or in human readable form.
func ParseSize(s string) (Size, error) {
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Size(n), nil
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	return Size(n), nil
}

// String implements fmt.Stringer.
func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", node.Line)
	}

	size, err := ParseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}

	*s = size

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Size) MarshalYAML() (any, error) {
	return uint64(s), nil
}

// Sizes maps a compression ("" for uncompressed) to the required boot image size.
type Sizes map[string]Size

// MissingSizeError is returned when a kernel image has no declared boot image size.
type MissingSizeError struct {
	Image Image
}

// Error implements error interface.
func (e *MissingSizeError) Error() string {
	return fmt.Sprintf("missing size for %s (key %q) required by %s", e.Image.Output(), e.Image.Compression, e.Image.Path)
}
