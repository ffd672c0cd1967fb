package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/eventpass/streamgate/internal/models"
	"github.com/eventpass/streamgate/internal/viewer"
	"github.com/eventpass/streamgate/pkg/logging"
)

func newTicketsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tickets",
		Short: "List your tickets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.New(g.logLevel)
			defer logger.Sync()

			list, err := viewer.NewClient(g.api, g.token, nil, logger).Tickets(cmd.Context())
			if err != nil {
				return err
			}
			printTickets(cmd.OutOrStdout(), list)
			return nil
		},
	}
}

func printTickets(out io.Writer, list []models.Ticket) {
	if len(list) == 0 {
		fmt.Fprintln(out, "You have no tickets.")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("63"))).
		Headers("TICKET", "EVENT", "STATUS", "STREAMING")
	for _, tk := range list {
		streaming := "no"
		if tk.StreamingEntitled {
			streaming = "yes"
		}
		t.Row(tk.ID.String(), tk.EventID.String(), string(tk.Status), streaming)
	}
	fmt.Fprintln(out, t.Render())
	fmt.Fprintln(out, faintStyle.Render("Watch one with: streamgate-viewer watch <ticket-id>"))
}
