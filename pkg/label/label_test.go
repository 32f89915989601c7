// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package label_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/siderolabs/kleaf/pkg/label"
)

func TestParse(t *testing.T) {
	for _, test := range []struct {
		in  string
		pkg string

		expected string
		path     string
	}{
		{
			in:       "//prebuilts/build-tools:linux-x86/bin/toybox",
			expected: "//prebuilts/build-tools:linux-x86/bin/toybox",
			path:     "prebuilts/build-tools/linux-x86/bin/toybox",
		},
		{
			in:       "//tools/mkbootimg",
			expected: "//tools/mkbootimg:mkbootimg",
			path:     "tools/mkbootimg/mkbootimg",
		},
		{
			in:       ":busybox",
			pkg:      "build/kernel",
			expected: "//build/kernel:busybox",
			path:     "build/kernel/busybox",
		},
		{
			in:       "out/kernel_aarch64/Image",
			expected: "//out/kernel_aarch64:Image",
			path:     "out/kernel_aarch64/Image",
		},
		{
			in:       "Image",
			expected: "//:Image",
			path:     "Image",
		},
	} {
		t.Run(test.in, func(t *testing.T) {
			l, err := label.Parse(test.in, test.pkg)
			require.NoError(t, err)

			assert.Equal(t, test.expected, l.String())
			assert.Equal(t, test.path, l.Path())
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{
		"",
		":",
		"//foo:",
		"foo:bar",
		"/abs/path",
		"//a:b:c",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := label.Parse(in, "")
			assert.Error(t, err)
		})
	}
}

func TestYAML(t *testing.T) {
	var v struct {
		Tool label.Label   `yaml:"tool"`
		Deps []label.Label `yaml:"deps"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("tool: //tools:cp\ndeps: [a/b, ':c']\n"), &v))

	assert.Equal(t, label.Label{Package: "tools", Name: "cp"}, v.Tool)
	assert.Equal(t, []label.Label{{Package: "a", Name: "b"}, {Name: "c"}}, v.Deps)

	out, err := yaml.Marshal(v)
	require.NoError(t, err)

	assert.Contains(t, string(out), "tool: //tools:cp")

	assert.Error(t, yaml.Unmarshal([]byte("tool: 'x:y'\n"), &v))
}

type fixture map[string]string

func (f fixture) create(t *testing.T) string {
	t.Helper()

	root := t.TempDir()

	for name, contents := range f {
		p := filepath.Join(root, filepath.FromSlash(name))

		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(contents), 0o755))
	}

	return root
}

func TestWorkspaceResolve(t *testing.T) {
	root := fixture{
		"prebuilts/busybox":       "busybox",
		"prebuilts/lib/libc.so":   "libc",
		"prebuilts/lib/libm.so":   "libm",
		"prebuilts/python3/bin":   "python",
		"tools/mkbootimg.py":      "mkbootimg",
		"tools/unpack_bootimg.py": "unpack",
	}.create(t)

	ws := &label.Workspace{
		Root: root,
		FileGroups: map[string][]label.Label{
			"busybox": {label.MustParse("prebuilts/busybox")},
			"libs":    {label.MustParse("//prebuilts:lib")},
			"all":     {label.MustParse(":busybox"), label.MustParse(":libs")},
			"loop":    {label.MustParse(":loop")},
		},
	}

	for _, test := range []struct {
		label    string
		expected []string
	}{
		{"prebuilts/busybox", []string{"prebuilts/busybox"}},
		{":busybox", []string{"prebuilts/busybox"}},
		{"//prebuilts:lib", []string{"prebuilts/lib/libc.so", "prebuilts/lib/libm.so"}},
		{":all", []string{"prebuilts/busybox", "prebuilts/lib/libc.so", "prebuilts/lib/libm.so"}},
		{"//tools:*.py", []string{"tools/mkbootimg.py", "tools/unpack_bootimg.py"}},
	} {
		t.Run(test.label, func(t *testing.T) {
			files, err := ws.Resolve(label.MustParse(test.label))
			require.NoError(t, err)

			var expected []string

			for _, p := range test.expected {
				expected = append(expected, filepath.Join(root, filepath.FromSlash(p)))
			}

			assert.Equal(t, expected, files)
		})
	}

	_, err := ws.Resolve(label.MustParse(":loop"))
	assert.ErrorContains(t, err, "cycle")
}

func TestWorkspaceResolveNotFound(t *testing.T) {
	root := fixture{
		"prebuilts/busybox":  "busybox",
		"tools/mkbootimg.py": "mkbootimg",
	}.create(t)

	ws := &label.Workspace{
		Root: root,
		FileGroups: map[string][]label.Label{
			"broken": {label.MustParse("prebuilts/busybox"), label.MustParse("//prebuilts:toybox")},
		},
	}

	for _, test := range []struct {
		label   string
		missing string
	}{
		{"//tools:missing", "//tools:missing"},
		{"//tools:*.sh", "//tools:*.sh"},
		{":broken", "//prebuilts:toybox"},
	} {
		t.Run(test.label, func(t *testing.T) {
			files, err := ws.Resolve(label.MustParse(test.label))
			require.Error(t, err)
			assert.Empty(t, files)

			var notFound *label.NotFoundError

			require.ErrorAs(t, err, &notFound)
			assert.Equal(t, test.missing, notFound.Label.String())
			assert.Contains(t, err.Error(), test.label)
		})
	}

	_, err := label.ResolveAll(ws, []label.Label{label.MustParse("prebuilts/busybox"), label.MustParse("//tools:missing")})
	assert.ErrorContains(t, err, "//tools:missing: no such file or pattern match")
}

func TestResolveSingleFile(t *testing.T) {
	root := fixture{
		"prebuilts/busybox":     "busybox",
		"prebuilts/lib/libc.so": "libc",
		"prebuilts/lib/libm.so": "libm",
	}.create(t)

	ws := &label.Workspace{Root: root}

	file, err := label.ResolveSingleFile(ws, label.MustParse("//prebuilts:busybox"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "prebuilts", "busybox"), file)

	for _, test := range []struct {
		label string
		count int
	}{
		{"//prebuilts:lib", 2},
		{"//prebuilts:toybox", 0},
	} {
		t.Run(test.label, func(t *testing.T) {
			_, err := label.ResolveSingleFile(ws, label.MustParse(test.label))
			require.Error(t, err)

			var notSingle *label.NotSingleFileError

			require.ErrorAs(t, err, &notSingle)
			assert.Equal(t, test.label, notSingle.Label.String())
			assert.Len(t, notSingle.Files, test.count)
			assert.Contains(t, err.Error(), test.label)
		})
	}
}
