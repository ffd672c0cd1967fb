package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/eventpass/streamgate/internal/embed"
	"github.com/eventpass/streamgate/internal/models"
	"github.com/eventpass/streamgate/internal/viewer"
	"github.com/eventpass/streamgate/pkg/logging"
)

// errDenied signals a rendered denial; the message was already printed.
var errDenied = errors.New("stream access denied")

// writeClipboard is swapped in tests.
var writeClipboard = clipboard.WriteAll

type watchFlags struct {
	follow   bool
	copyLink bool
	host     string
	allowRaw bool
	trusted  []string
}

func newWatchCmd(g *globals) *cobra.Command {
	f := &watchFlags{}
	cmd := &cobra.Command{
		Use:   "watch <ticket-id>",
		Short: "Show the stream a ticket unlocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), g, f, args[0])
		},
	}
	cmd.Flags().BoolVar(&f.follow, "follow", false, "keep running and redraw on live updates")
	cmd.Flags().BoolVar(&f.copyLink, "copy", false, "copy the meeting link to the clipboard")
	cmd.Flags().StringVar(&f.host, "host", "", "page host for providers that require one (default: API host)")
	cmd.Flags().BoolVar(&f.allowRaw, "allow-raw-markup", false, "accept operator embed markup from trusted hosts")
	cmd.Flags().StringSliceVar(&f.trusted, "trusted-host", []string{"youtube.com", "player.twitch.tv", "player.vimeo.com"}, "hosts allowed in embed markup")
	return cmd
}

func runWatch(ctx context.Context, out, errOut io.Writer, g *globals, f *watchFlags, ticketID string) error {
	logger := logging.New(g.logLevel)
	defer logger.Sync()

	host := f.host
	if host == "" {
		if u, err := url.Parse(g.api); err == nil {
			host = embed.HostOnly(u.Host)
		}
	}
	opts := viewer.Options{
		PageHost:       host,
		AllowRawMarkup: f.allowRaw,
		Policy:         embed.Policy{AllowedHosts: f.trusted},
	}
	client := viewer.NewClient(g.api, g.token, nil, logger)
	shell := viewer.NewShell(client, opts, nil, logger)
	defer shell.Close()

	_ = shell.Load(ctx, ticketID)
	view := shell.View()
	fmt.Fprintln(out, renderView(view))
	if view.Notice != nil {
		return errDenied
	}
	if f.copyLink {
		copyMeetingLink(errOut, view.MeetingLink)
	}
	if !f.follow {
		return nil
	}

	wsURL, err := pushURL(g.api)
	if err != nil {
		return err
	}
	fmt.Fprintln(errOut, faintStyle.Render("Following live updates, press Ctrl+C to stop."))
	return viewer.Follow(ctx, wsURL, g.token, ticketID, func(s *models.StreamSession) {
		shell.Apply(s)
		fmt.Fprintln(out, renderView(shell.View()))
	}, logger)
}

// copyMeetingLink writes link to the clipboard and reports the outcome; failures are not fatal.
func copyMeetingLink(errOut io.Writer, link string) {
	if link == "" {
		fmt.Fprintln(errOut, noticeStyle.Render("This stream has no meeting link to copy."))
		return
	}
	if err := writeClipboard(link); err != nil {
		fmt.Fprintln(errOut, noticeStyle.Render("Could not copy the meeting link: "+err.Error()))
		return
	}
	fmt.Fprintln(errOut, faintStyle.Render("Meeting link copied to clipboard."))
}

// pushURL derives the websocket endpoint from the API base URL.
func pushURL(api string) (string, error) {
	u, err := url.Parse(api)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported api scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

