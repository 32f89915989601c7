// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/siderolabs/kleaf/pkg/cli"
)

// buildCmd represents the build command.
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Assemble hermetic tools, then build GKI artifacts with them",
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

			printToolchain(cmd.ErrOrStderr(), tc)

			return e.buildArtifacts(ctx, tc, cmd.OutOrStdout(), cmd.ErrOrStderr())
		})
	},
}

func init() {
	addArtifactsFlags(buildCmd.Flags())
	rootCmd.AddCommand(buildCmd)
}
