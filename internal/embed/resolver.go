// Package embed turns a stream's provider and source into something a page can
// render: an iframe URL, operator-supplied markup, or nothing.
package embed

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/eventpass/streamgate/internal/models"
)

// Kind is the shape of a resolved embed.
type Kind string

const (
	KindIFrame      Kind = "iframe"
	KindRawMarkup   Kind = "raw_markup"
	KindUnavailable Kind = "unavailable"
)

// Target is a renderable embed. Value is the iframe URL or the raw markup.
type Target struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value,omitempty"`
}

// Unavailable is the target for streams that cannot be embedded.
var Unavailable = Target{Kind: KindUnavailable}

// Provider URL patterns, anchored at the start so the provider host must lead
// the URL. Scheme and host match case-insensitively. A known provider whose URL
// does not match resolves to Unavailable; nothing further is guessed from the URL.
var (
	youtubeID     = regexp.MustCompile(`^(?i:https?://)?(?:(?i:(?:www\.|m\.)?youtube\.com)/(?:watch\?(?:[^#]*&)?v=|embed/|live/)|(?i:youtu\.be)/)([A-Za-z0-9_-]{6,11})(?:[^A-Za-z0-9_-]|$)`)
	twitchChannel = regexp.MustCompile(`^(?i:https?://)?(?i:(?:www\.|m\.)?twitch\.tv)/([A-Za-z0-9_]{1,25})(?:[/?#]|$)`)
	vimeoID       = regexp.MustCompile(`^(?i:https?://)?(?i:(?:www\.|player\.)?vimeo\.com)/(?:video/|channels/[^/]+/)?(\d+)(?:[/?#]|$)`)
)

// twitch paths that are not channels
var twitchReserved = map[string]bool{
	"videos":    true,
	"directory": true,
	"settings":  true,
	"p":         true,
}

// Resolve maps a provider and its source to an embed target. Non-empty
// embedMarkup wins for every provider; the caller must sanitize it before
// rendering. pageHost is the host serving the page and is required for twitch.
func Resolve(provider models.Provider, rawURL, embedMarkup, pageHost string) Target {
	if strings.TrimSpace(embedMarkup) != "" {
		return Target{Kind: KindRawMarkup, Value: embedMarkup}
	}
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Unavailable
	}
	switch provider {
	case models.ProviderYouTube:
		m := youtubeID.FindStringSubmatch(rawURL)
		if m == nil {
			return Unavailable
		}
		return iframe(fmt.Sprintf("https://www.youtube.com/embed/%s?autoplay=1&rel=0", m[1]))
	case models.ProviderTwitch:
		m := twitchChannel.FindStringSubmatch(rawURL)
		host := HostOnly(pageHost)
		if m == nil || twitchReserved[strings.ToLower(m[1])] || host == "" {
			return Unavailable
		}
		return iframe(fmt.Sprintf("https://player.twitch.tv/?channel=%s&parent=%s", m[1], url.QueryEscape(host)))
	case models.ProviderVimeo:
		m := vimeoID.FindStringSubmatch(rawURL)
		if m == nil {
			return Unavailable
		}
		return iframe(fmt.Sprintf("https://player.vimeo.com/video/%s?autoplay=1", m[1]))
	default:
		return iframe(rawURL)
	}
}

// HostOnly strips the port from a Host header value.
func HostOnly(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return strings.Trim(hostport, "[]")
}

func iframe(src string) Target {
	return Target{Kind: KindIFrame, Value: src}
}
