package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current principal and permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, cleanup, err := buildStore()
		if err != nil {
			return err
		}
		defer cleanup()

		ok, err := store.CheckAuth(cmd.Context())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("not signed in")
		}

		st := store.Snapshot()
		out := struct {
			User        any  `json:"user"`
			IsAdmin     bool `json:"is_admin"`
			Permissions any  `json:"permissions"`
		}{st.User, st.IsAdmin, st.Permissions}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
