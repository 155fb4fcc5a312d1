package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session locally and server-side",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, cleanup, err := buildStore()
		if err != nil {
			return err
		}
		defer cleanup()

		// Restore whatever session exists so the server notification
		// carries credentials; local teardown happens regardless.
		_, _ = store.CheckAuth(cmd.Context())
		store.Logout(cmd.Context())
		fmt.Println("Signed out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
