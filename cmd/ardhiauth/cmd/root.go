package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/PMGEECODE/ArdhiAssets-sub001/config"
)

// Version is stamped at build time.
var Version = "dev"

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:     "ardhiauth",
	Short:   "ArdhiAssets session and authentication client",
	Long:    `Command-line client for the ArdhiAssets asset-management backend: sign in, inspect the session, and keep it alive while you work.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		var err error
		cfg, err = config.Load()
		return err
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
