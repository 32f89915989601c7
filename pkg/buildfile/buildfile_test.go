// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package buildfile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siderolabs/go-pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/kleaf/pkg/buildfile"
	"github.com/siderolabs/kleaf/pkg/gki"
	"github.com/siderolabs/kleaf/pkg/label"
)

func TestLoad(t *testing.T) {
	f, err := buildfile.Load(filepath.Join("testdata", "kleaf.yaml"))
	require.NoError(t, err)

	require.NotNil(t, f.HermeticTools)
	require.NotNil(t, f.GKIArtifacts)

	assert.Equal(t, []label.Label{{Package: "prebuilts", Name: "busybox"}}, f.FileGroups["busybox"])

	assert.Equal(t, "hermetic-tools", f.HermeticTools.Name)
	assert.Len(t, f.HermeticTools.Symlinks, 2)
	assert.Equal(t, label.Label{Name: "busybox"}, f.HermeticTools.Symlinks[0].Actual)
	assert.Equal(t, "//prebuilts/python3:bin/python3", f.HermeticTools.Interpreter.String())

	g := f.GKIArtifacts

	assert.Equal(t, "//out:kernel_aarch64", g.KernelBuild.String())
	assert.Equal(t, gki.ArchARM64, g.Arch)
	assert.Equal(t, gki.Sizes{"": 64 << 20, "lz4": 64 << 20, "gz": 64 << 20}, g.BootImgSizes)
	assert.False(t, g.InstrumentedEnabled())
}

func TestDump(t *testing.T) {
	f, err := buildfile.Load(filepath.Join("testdata", "kleaf.yaml"))
	require.NoError(t, err)

	f.GKIArtifacts.Instrumented = pointer.To(true)

	var buf bytes.Buffer

	require.NoError(t, f.Dump(&buf))

	assert.Contains(t, buf.String(), "actual: //:busybox\n")
	assert.Contains(t, buf.String(), "instrumented: true\n")
	assert.NotContains(t, buf.String(), "kernel_release")

	reloaded, err := buildfile.Parse(&buf)
	require.NoError(t, err)

	assert.Equal(t, f, reloaded)
}

func TestParseErrors(t *testing.T) {
	for _, test := range []struct {
		name     string
		yaml     string
		expected []string
	}{
		{
			name:     "empty",
			yaml:     "",
			expected: []string{"build file is empty"},
		},
		{
			name:     "no rules",
			yaml:     "filegroups:\n  a: [b]\n",
			expected: []string{"no rules declared"},
		},
		{
			name:     "unknown field",
			yaml:     "hermetic_tools:\n  name: x\n  tools: []\n",
			expected: []string{"field tools not found"},
		},
		{
			name:     "bad label",
			yaml:     "hermetic_tools:\n  name: x\n  symlinks:\n    - actual: 'a:b'\n      names: [a]\n",
			expected: []string{"line 4", "expected // prefix"},
		},
		{
			name: "all errors",
			yaml: strings.Join([]string{
				"filegroups:",
				"  'a/b': []",
				"hermetic_tools:",
				"  interpreter_tools: [python3]",
				"gki_artifacts:",
				"  kernel_build: out/kernel",
				"  images: [out/Image]",
				"  arch: mips",
				"  boot_img_sizes: {lz4: 0}",
			}, "\n"),
			expected: []string{
				`filegroups: invalid name "a/b"`,
				"filegroups: a/b is empty",
				"hermetic_tools: name is required",
				"hermetic_tools: interpreter_tools require an interpreter",
				"gki_artifacts: name is required",
				"gki_artifacts: kernel_build is exclusive",
				"gki_artifacts: mkbootimg is required",
				"gki_artifacts: build_utils is required",
				`gki_artifacts: invalid arch "mips"`,
				`gki_artifacts: boot_img_sizes: size for "lz4" must be positive`,
				"10 errors occurred",
			},
		},
		{
			name:     "invalid size",
			yaml:     "gki_artifacts:\n  boot_img_sizes: {'': lots}\n",
			expected: []string{"invalid size"},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := buildfile.Parse(strings.NewReader(test.yaml))
			require.Error(t, err)

			for _, expected := range test.expected {
				assert.Contains(t, err.Error(), expected)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	root := t.TempDir()

	for name, contents := range map[string]string{
		"prebuilts/busybox":                 "busybox",
		"prebuilts/toybox":                  "toybox",
		"prebuilts/python3/bin/python3":     "python",
		"prebuilts/lib/libc.so":             "libc",
		"tools/mkbootimg/mkbootimg.py":      "mkbootimg",
		"build/kernel/build_utils.sh":       "",
		"out/kernel_aarch64/Image":          "Image",
		"out/kernel_aarch64/Image.lz4":      "Image.lz4",
		"out/kernel_aarch64/kernel.release": "6.1.25-android14-11\n",
	} {
		p := filepath.Join(root, filepath.FromSlash(name))

		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
	}

	f, err := buildfile.Load(filepath.Join("testdata", "kleaf.yaml"))
	require.NoError(t, err)

	ws := f.Workspace(root)

	hopts := f.HermeticTools.Options(ws, filepath.Join(root, "bazel-out"), nil)

	assert.Equal(t, "hermetic-tools", hopts.Name)
	assert.Equal(t, []string{"cp"}, hopts.Aliases)

	gopts, err := f.GKIArtifacts.Options(ws, filepath.Join(root, "bazel-out"), true, nil, nil)
	require.NoError(t, err)

	assert.True(t, gopts.Instrumented)
	assert.Equal(t, filepath.Join(root, "tools", "mkbootimg", "mkbootimg.py"), gopts.Mkbootimg)
	assert.Equal(t, filepath.Join(root, "build", "kernel", "build_utils.sh"), gopts.BuildUtils)
	assert.Equal(t, "6.1.25-android14-11", gopts.KernelBuild.KernelRelease())
	assert.Equal(t, []string{
		filepath.Join(root, "out", "kernel_aarch64", "Image"),
		filepath.Join(root, "out", "kernel_aarch64", "Image.lz4"),
	}, gopts.KernelBuild.Images())

	f.GKIArtifacts.Instrumented = pointer.To(false)

	gopts, err = f.GKIArtifacts.Options(ws, filepath.Join(root, "bazel-out"), true, nil, nil)
	require.NoError(t, err)

	assert.False(t, gopts.Instrumented)

	f.GKIArtifacts.BuildUtils = label.MustParse("//build/kernel:missing.sh")

	_, err = f.GKIArtifacts.Options(ws, root, false, nil, nil)
	assert.ErrorContains(t, err, "build_utils: //build/kernel:missing.sh: expected exactly one file, got none")

	f, err = buildfile.Load(filepath.Join("testdata", "kleaf.yaml"))
	require.NoError(t, err)

	f.GKIArtifacts.KernelBuild = label.Label{}
	f.GKIArtifacts.KernelRelease = label.MustParse("//out/kernel_aarch64:kernel.release")
	f.GKIArtifacts.Images = []label.Label{
		label.MustParse("//out/kernel_aarch64:Image"),
		label.MustParse("//out/kernel_aarch64:Image.gz"),
	}

	_, err = f.GKIArtifacts.Options(ws, root, false, nil, nil)
	assert.ErrorContains(t, err, "kernel_aarch64_gki_artifacts: images: //out/kernel_aarch64:Image.gz: no such file or pattern match")

	var notFound *label.NotFoundError

	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "//out/kernel_aarch64:Image.gz", notFound.Label.String())
}
