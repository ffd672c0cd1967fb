package viewer

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eventpass/streamgate/internal/embed"
	"github.com/eventpass/streamgate/internal/metrics"
	"github.com/eventpass/streamgate/internal/models"
	"github.com/eventpass/streamgate/internal/streamstatus"
)

// Tone is the visual weight of a badge.
type Tone string

const (
	ToneLive    Tone = "live"
	ToneInfo    Tone = "info"
	ToneNeutral Tone = "neutral"
	ToneMuted   Tone = "muted"
	ToneDanger  Tone = "danger"
)

// Badge is the status chip next to the title.
type Badge struct {
	Label string `json:"label"`
	Tone  Tone   `json:"tone"`
}

var badges = map[streamstatus.DisplayState]Badge{
	streamstatus.Loading:         {"Loading", ToneMuted},
	streamstatus.Live:            {"Live", ToneLive},
	streamstatus.StartingSoon:    {"Starting soon", ToneInfo},
	streamstatus.ReplayAvailable: {"Replay", ToneInfo},
	streamstatus.Ended:           {"Ended", ToneNeutral},
	streamstatus.Offline:         {"Offline", ToneMuted},
}

// DefaultTicketsPath is where a denied viewer is sent back to.
const DefaultTicketsPath = "/account/tickets"

const (
	loadFailedMessage = "We could not load this stream. Please try again in a moment."
	timeLayout        = "Mon 2 Jan 2006, 15:04 MST"
)

// Options controls rendering.
type Options struct {
	// PageHost is the host the embed is served on; twitch requires it.
	PageHost string
	// AllowRawMarkup lets operator-supplied markup through Sanitize.
	// Without it markup embeds render as unavailable.
	AllowRawMarkup bool
	Policy         embed.Policy
	TicketsPath    string
	Location       *time.Location
	Logger         *zap.Logger
}

// Notice is a blocking message that replaces the player.
type Notice struct {
	Message  string `json:"message"`
	BackPath string `json:"back_path"`
	Status   int    `json:"status,omitempty"`
}

// View is everything the viewer page shows.
type View struct {
	State       streamstatus.DisplayState `json:"state"`
	Badge       Badge                     `json:"badge"`
	Title       string                    `json:"title,omitempty"`
	Embed       embed.Target              `json:"embed"`
	Banners     []string                  `json:"banners,omitempty"`
	ViewCount   *int64                    `json:"view_count,omitempty"`
	MeetingLink string                    `json:"meeting_link,omitempty"`
	Notice      *Notice                   `json:"notice,omitempty"`
}

// Render builds the View for a session (or load error) at now.
func Render(session *models.StreamSession, err error, now time.Time, opts Options) View {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	back := opts.TicketsPath
	if back == "" {
		back = DefaultTicketsPath
	}

	if err != nil {
		v := View{State: streamstatus.Offline, Embed: embed.Unavailable}
		var denied *AccessDeniedError
		if errors.As(err, &denied) {
			v.Badge = Badge{"Access denied", ToneDanger}
			v.Notice = &Notice{Message: denied.Message, BackPath: back, Status: denied.Status}
			return v
		}
		logger.Warn("stream load failed", zap.Error(err))
		v.Badge = Badge{"Unavailable", ToneDanger}
		v.Notice = &Notice{Message: loadFailedMessage, BackPath: back}
		return v
	}

	state, diag := streamstatus.Evaluate(session, now)
	v := View{State: state, Badge: badges[state], Embed: embed.Unavailable}
	if session == nil {
		return v
	}
	v.Title = session.Title
	v.ViewCount = session.ViewCount
	v.MeetingLink = session.MeetingLink
	v.Banners = banners(session, state, opts.Location)

	if diag != nil {
		logger.Warn("stream session failed closed",
			zap.Error(diag), zap.String("session_id", session.ID.String()), zap.String("state", string(state)))
		return v
	}
	if state == streamstatus.Ended {
		return v
	}
	v.Embed = resolveEmbed(session, opts, logger)
	return v
}

func banners(s *models.StreamSession, state streamstatus.DisplayState, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	switch state {
	case streamstatus.StartingSoon:
		return []string{"Starts at " + s.ScheduledStart.In(loc).Format(timeLayout)}
	case streamstatus.ReplayAvailable:
		if s.ReplayAvailableUntil != nil {
			return []string{"Replay available until " + s.ReplayAvailableUntil.In(loc).Format(timeLayout)}
		}
		return []string{"Replay available"}
	case streamstatus.Ended:
		return []string{"This event has ended"}
	case streamstatus.Offline:
		return []string{"The stream is offline, check back shortly"}
	}
	return nil
}

func resolveEmbed(s *models.StreamSession, opts Options, logger *zap.Logger) embed.Target {
	target := embed.Resolve(s.ProviderName, s.RawStreamURL, s.EmbedMarkup, opts.PageHost)
	if target.Kind != embed.KindRawMarkup {
		return target
	}
	if !opts.AllowRawMarkup {
		metrics.ObserveEmbedRejected("disabled")
		logger.Warn("raw embed markup is disabled", zap.String("session_id", s.ID.String()))
		return embed.Unavailable
	}
	clean, err := embed.Sanitize(target.Value, opts.Policy)
	if err != nil {
		metrics.ObserveEmbedRejected("untrusted")
		logger.Warn("raw embed markup rejected", zap.Error(err), zap.String("session_id", s.ID.String()))
		return embed.Unavailable
	}
	return embed.Target{Kind: embed.KindRawMarkup, Value: clean}
}
