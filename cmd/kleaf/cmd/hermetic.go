// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/siderolabs/kleaf/pkg/cli"
	"github.com/siderolabs/kleaf/pkg/hermetic"
)

var hermeticCmdFlags = struct {
	print *fragmentChoice
}{
	print: &fragmentChoice{},
}

// hermeticCmd represents the hermetic-tools command.
var hermeticCmd = &cobra.Command{
	Use:   "hermetic-tools",
	Short: "Assemble the hermetic tool directory",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cli.WithContext(context.Background(), func(ctx context.Context) error {
			e, err := newEnv(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			tc, err := e.assembleTools(ctx)
			if err != nil {
				return err
			}

			if hermeticCmdFlags.print.value != "" {
				_, err = io.WriteString(cmd.OutOrStdout(), tc.Fragments()[hermeticCmdFlags.print.value])

				return err
			}

			printToolchain(cmd.ErrOrStderr(), tc)

			return nil
		})
	},
}

func (e *env) assembleTools(ctx context.Context) (*hermetic.Toolchain, error) {
	if e.file.HermeticTools == nil {
		return nil, errors.New("build file declares no hermetic_tools rule")
	}

	return hermetic.Assemble(ctx, e.file.HermeticTools.Options(e.file.Workspace(e.ws), e.outRoot, e.logger))
}

func printToolchain(w io.Writer, tc *hermetic.Toolchain) {
	fmt.Fprintf(w, "%s %s\n", color.GreenString("toolchain"), tc.Dir())

	for _, tool := range tc.Tools() {
		fmt.Fprintf(w, "  %s -> %s\n", color.CyanString("%s", tool.Name), tool.Path)
	}

	if deps := tc.ExtraDeps(); len(deps) > 0 {
		fmt.Fprintf(w, "%s %d files\n", color.YellowString("extra deps"), len(deps))
	}
}

// fragmentChoice is a pflag.Value accepting toolchain fragment names.
type fragmentChoice struct {
	value string
}

func (f *fragmentChoice) String() string { return f.value }

func (f *fragmentChoice) Type() string { return "fragment" }

func (f *fragmentChoice) Set(value string) error {
	if !slices.Contains(hermetic.FragmentNames(), value) {
		return fmt.Errorf("unknown fragment %q, expected one of %v", value, hermetic.FragmentNames())
	}

	f.value = value

	return nil
}

func init() {
	hermeticCmd.Flags().Var(hermeticCmdFlags.print, "print", fmt.Sprintf("Print a shell fragment instead of the summary, one of %v", hermetic.FragmentNames()))
	rootCmd.AddCommand(hermeticCmd)
}
