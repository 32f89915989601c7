// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/siderolabs/kleaf/pkg/buildfile"
)

// dumpCmd represents the dump command.
var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Validate the build file and print it in canonical form",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		file, err := buildfile.Load(buildFilePath())
		if err != nil {
			return err
		}

		return file.Dump(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}
