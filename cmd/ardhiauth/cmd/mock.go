package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/PMGEECODE/ArdhiAssets-sub001/authapi"
	"github.com/PMGEECODE/ArdhiAssets-sub001/fake"
	"github.com/PMGEECODE/ArdhiAssets-sub001/permission"
)

var (
	mockPort    int
	mockTimeout int
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run the in-memory fake backend",
	Long: `Serves the fake ArdhiAssets auth backend for local development.
Two accounts are seeded: admin@ardhi.local/admin123 (admin) and
user@ardhi.local/user123 (editor, two-factor code 424242).
API docs are served at /docs and /redoc.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := fake.New(fake.WithSessionTimeout(mockTimeout))
		f.SeedAccount(fake.Account{
			Email:    "admin@ardhi.local",
			Password: "admin123",
			User:     authapi.UserInfo{ID: "admin", Email: "admin@ardhi.local", Role: "admin", Active: true},
		})
		f.SeedAccount(fake.Account{
			Email:         "user@ardhi.local",
			Password:      "user123",
			User:          authapi.UserInfo{ID: "user", Email: "user@ardhi.local", Role: "editor", Active: true},
			TwoFactorCode: "424242",
			Permissions: permission.Map{
				"parcels":   {HasAccess: true, CanRead: true, CanWrite: true},
				"buildings": {HasAccess: true, CanRead: true},
			},
		})

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Mount("/", f.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", mockPort),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("mock server failed: %w", err)
				return
			}
			done <- nil
		}()

		fmt.Printf("Fake backend listening on :%d (session timeout %d minutes)\n", mockPort, mockTimeout)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(mockCmd)
	mockCmd.Flags().IntVarP(&mockPort, "port", "p", 8095, "Port to listen on")
	mockCmd.Flags().IntVar(&mockTimeout, "session-timeout", 30, "Idle timeout announced to clients, in minutes")
}
