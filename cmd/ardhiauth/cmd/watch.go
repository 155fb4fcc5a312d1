package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/PMGEECODE/ArdhiAssets-sub001/activity"
	"github.com/PMGEECODE/ArdhiAssets-sub001/auth"
	"github.com/PMGEECODE/ArdhiAssets-sub001/validator"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the session alive and report lifecycle events",
	Long: `Restores the stored session, then runs the background session
validator and activity tracker until interrupted. Lines typed on stdin
count as activity; expiry warnings and forced logouts are printed as
they happen.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, mgr, cleanup, err := buildStore()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		ok, err := store.CheckAuth(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("not signed in")
		}

		done := make(chan struct{})
		cancel := store.Subscribe(func(e auth.Event) {
			switch e.Kind {
			case auth.EventSessionWarning:
				fmt.Printf("warning: session expires in %s (%s)\n", e.TimeUntilExpiry, e.Message)
			case auth.EventLogout:
				fmt.Printf("session ended: %s\n", e.Reason)
				close(done)
			}
		})
		defer cancel()

		tracker := activity.NewTracker(mgr, store.IsAuthenticated,
			activity.WithDebounce(cfg.ActivityDebounce))
		defer tracker.Stop()

		// Stdin is the activity source: every line of input stamps the
		// session the way pointer and keyboard events would.
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				tracker.Record(activity.KindKeyboard)
			}
		}()

		v := validator.New(store.Client(), store,
			validator.WithGrace(cfg.ValidateGrace),
			validator.WithInterval(cfg.ValidateInterval),
			validator.WithWarnBelow(cfg.WarnBelow))
		v.Start(ctx)
		defer v.Stop()

		fmt.Printf("Watching session (validate every %s)\n", cfg.ValidateInterval)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-quit:
			fmt.Println("\nStopping")
			return nil
		case <-done:
			return fmt.Errorf("session terminated")
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
