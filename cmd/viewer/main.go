// Package main is a terminal viewer for ticket holders: it shows a stream's
// status, player URL and banners, and can follow live updates.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type globals struct {
	api      string
	token    string
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "streamgate-viewer",
		Short:         "Watch ticketed event streams from the terminal",
		Long:          `Shows what the stream viewer shows for a ticket: status, player and banners.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.api, "api", envOr("STREAMGATE_API", "http://localhost:8080"), "gateway base URL")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("STREAMGATE_TOKEN"), "bearer token")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level")
	root.AddCommand(newWatchCmd(g), newTicketsCmd(g))
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errDenied) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}
