// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/siderolabs/kleaf/pkg/archiver"
	"github.com/siderolabs/kleaf/pkg/cli"
	"github.com/siderolabs/kleaf/pkg/gki"
	"github.com/siderolabs/kleaf/pkg/hermetic"
)

var gkiCmdFlags struct {
	Instrumented bool
	TarToStdout  bool
	Arch         gki.Arch
}

// gkiCmd represents the gki-artifacts command.
var gkiCmd = &cobra.Command{
	Use:   "gki-artifacts",
	Short: "Build GKI boot images out of a kernel build",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cli.WithContext(context.Background(), func(ctx context.Context) error {
			e, err := newEnv(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			return e.buildArtifacts(ctx, nil, cmd.OutOrStdout(), cmd.ErrOrStderr())
		})
	},
}

func (e *env) buildArtifacts(ctx context.Context, tc *hermetic.Toolchain, stdout, stderr io.Writer) error {
	rule := e.file.GKIArtifacts
	if rule == nil {
		return errors.New("build file declares no gki_artifacts rule")
	}

	if gkiCmdFlags.Arch != "" {
		rule.Arch = gkiCmdFlags.Arch
	}

	opts, err := rule.Options(e.file.Workspace(e.ws), e.outRoot, gkiCmdFlags.Instrumented, tc, e.logger)
	if err != nil {
		return err
	}

	artifacts, err := gki.Build(ctx, opts)
	if err != nil {
		return err
	}

	if gkiCmdFlags.TarToStdout {
		return archiver.TarGz(ctx, archiver.Files(artifacts.Default...), stdout)
	}

	printArtifacts(stderr, artifacts)

	return nil
}

func printArtifacts(w io.Writer, artifacts *gki.Artifacts) {
	fmt.Fprintf(w, "%s %s\n", color.GreenString("artifacts"), artifacts.Dir)

	for _, output := range artifacts.Default {
		size := "?"

		if st, err := os.Stat(output); err == nil {
			size = humanize.IBytes(uint64(st.Size()))
		}

		fmt.Fprintf(w, "  %s (%s)\n", color.CyanString("%s", filepath.Base(output)), size)
	}

	if release, ok := artifacts.Info["kernel_release"]; ok {
		fmt.Fprintf(w, "%s %s\n", color.YellowString("kernel release"), release)
	}
}

func addArtifactsFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&gkiCmdFlags.Instrumented, "instrumented", false, "Build-wide instrumentation toggle, skips AVB footers")
	flags.BoolVar(&gkiCmdFlags.TarToStdout, "tar-to-stdout", false, "Tar outputs and send to stdout")
	flags.Var(&gkiCmdFlags.Arch, "arch", "Override the kernel architecture")
}

func init() {
	addArtifactsFlags(gkiCmd.Flags())
	rootCmd.AddCommand(gkiCmd)
}
