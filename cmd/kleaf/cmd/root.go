// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cmd implements kleaf commands.
package cmd

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siderolabs/kleaf/pkg/buildfile"
	"github.com/siderolabs/kleaf/pkg/logging"
)

var rootCmdFlags struct {
	Workspace string
	File      string
	Out       string
	Debug     bool
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:          "kleaf",
	Short:        "Assemble hermetic tools and build GKI boot artifacts.",
	Long:         ``,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootCmdFlags.Workspace, "workspace", ".", "Workspace root labels are resolved against")
	rootCmd.PersistentFlags().StringVarP(&rootCmdFlags.File, "file", "f", "", "Build file path (defaults to "+buildfile.DefaultName+" in the workspace root)")
	rootCmd.PersistentFlags().StringVar(&rootCmdFlags.Out, "out", "", "Output root (defaults to out/ in the workspace root)")
	rootCmd.PersistentFlags().BoolVar(&rootCmdFlags.Debug, "debug", false, "Enable debug logging")
}

// env is the state shared by the commands.
type env struct {
	file    *buildfile.File
	ws      string
	outRoot string
	logger  *zap.Logger
}

func newEnv(stderr io.Writer) (*env, error) {
	ws, err := filepath.Abs(rootCmdFlags.Workspace)
	if err != nil {
		return nil, err
	}

	file, err := buildfile.Load(buildFilePath())
	if err != nil {
		return nil, err
	}

	outRoot := rootCmdFlags.Out
	if outRoot == "" {
		outRoot = filepath.Join(ws, "out")
	}

	return &env{
		file:    file,
		ws:      ws,
		outRoot: outRoot,
		logger:  logging.New(stderr, rootCmdFlags.Debug, logging.WithColoredLevels()),
	}, nil
}

func buildFilePath() string {
	if rootCmdFlags.File != "" {
		return rootCmdFlags.File
	}

	return filepath.Join(rootCmdFlags.Workspace, buildfile.DefaultName)
}
