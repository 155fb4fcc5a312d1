package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
	loginRemember bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the ArdhiAssets backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, cleanup, err := buildStore()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		res, err := store.Login(ctx, loginEmail, loginPassword, loginRemember)
		if err != nil {
			return err
		}

		if res.RequiresTwoFactor {
			fmt.Printf("Verification code sent to %s\n", res.Email)
			fmt.Print("Code: ")
			reader := bufio.NewReader(os.Stdin)
			code, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading verification code: %w", err)
			}
			if err := store.VerifyTwoFactor(ctx, res.Email, strings.TrimSpace(code)); err != nil {
				return err
			}
		}

		st := store.Snapshot()
		fmt.Printf("Signed in as %s (%s)\n", st.User.Email, st.User.Role)
		if meta := store.Metadata(); meta != nil {
			fmt.Printf("Session %s, idle timeout %d minutes\n", meta.BackendSessionID, meta.TimeoutMinutes)
		}
		if loginRemember && cfg.SessionFile == "" {
			fmt.Println("Note: --remember has no durable store; set ARDHI_SESSION_FILE to persist the session")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password")
	loginCmd.Flags().BoolVar(&loginRemember, "remember", false, "Persist the session across restarts")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")
}
