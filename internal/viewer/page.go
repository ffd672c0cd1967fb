package viewer

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eventpass/streamgate/internal/embed"
	"github.com/eventpass/streamgate/internal/metrics"
)

// GatewayFor returns the Gateway that fetches sessions on behalf of the
// request's authenticated user.
type GatewayFor func(c *gin.Context) Gateway

// PageConfig configures the watch page.
type PageConfig struct {
	Options
	// PublicHost is the embed parent when the request carries no Host.
	PublicHost string
	// PushPath is the websocket endpoint; empty disables live reload.
	PushPath string
}

// Page serves GET /watch/:ticketId.
type Page struct {
	gateways GatewayFor
	cfg      PageConfig
	now      func() time.Time
	logger   *zap.Logger
}

// NewPage creates the watch page handler. now defaults to time.Now.
func NewPage(gateways GatewayFor, cfg PageConfig, now func() time.Time, logger *zap.Logger) *Page {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Page{gateways: gateways, cfg: cfg, now: now, logger: logger}
}

type pageData struct {
	View      View
	Views     int64
	ShowViews bool
	Sandbox   string
	// Markup is embed markup that already passed embed.Sanitize.
	Markup   template.HTML
	PushPath string
}

// Watch handles GET /watch/:ticketId.
func (p *Page) Watch(c *gin.Context) {
	ticketID := c.Param("ticketId")
	opts := p.cfg.Options
	opts.PageHost = embed.HostOnly(c.Request.Host)
	if opts.PageHost == "" {
		opts.PageHost = p.cfg.PublicHost
	}

	shell := NewShell(p.gateways(c), opts, p.now, p.logger)
	defer shell.Close()
	_ = shell.Load(c.Request.Context(), ticketID)
	view := shell.View()
	metrics.ObserveDisplayState(string(view.State))

	data := pageData{View: view, Sandbox: embed.IFrameSandbox}
	if view.Embed.Kind == embed.KindRawMarkup {
		data.Markup = template.HTML(view.Embed.Value)
	}
	if view.ViewCount != nil {
		data.Views, data.ShowViews = *view.ViewCount, true
	}
	status := http.StatusOK
	if view.Notice != nil {
		if view.Notice.Status != 0 {
			status = view.Notice.Status
		} else {
			status = http.StatusBadGateway
		}
	} else if p.cfg.PushPath != "" {
		data.PushPath = p.cfg.PushPath + "?ticket_id=" + url.QueryEscape(ticketID)
	}

	var buf bytes.Buffer
	if err := watchTemplate.Execute(&buf, data); err != nil {
		p.logger.Error("render watch page failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "failed to render page")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

var watchTemplate = template.Must(template.New("watch").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{if .View.Title}}{{.View.Title}}{{else}}Stream{{end}}</title>
<style>
body{font-family:system-ui,sans-serif;margin:0 auto;max-width:960px;padding:1rem}
header{display:flex;gap:.75rem;align-items:center}
.badge{border-radius:999px;padding:.15rem .6rem;font-size:.85rem;font-weight:600}
.badge.live{background:#d62828;color:#fff}.badge.info{background:#1d4ed8;color:#fff}
.badge.neutral{background:#6b7280;color:#fff}.badge.muted{background:#e5e7eb;color:#374151}
.badge.danger{background:#7f1d1d;color:#fff}
.player{position:relative;padding-top:56.25%;background:#111;margin:1rem 0}
.player iframe,.player .placeholder{position:absolute;inset:0;width:100%;height:100%;border:0}
.placeholder{display:flex;align-items:center;justify-content:center;color:#d1d5db}
.banner{background:#eff6ff;border-left:4px solid #1d4ed8;padding:.5rem .75rem}
.notice{background:#fef2f2;border:1px solid #fecaca;padding:1rem}
</style>
</head>
<body>
<header>
<h1>{{if .View.Title}}{{.View.Title}}{{else}}Stream{{end}}</h1>
<span class="badge {{.View.Badge.Tone}}">{{.View.Badge.Label}}</span>
{{if .ShowViews}}<span class="views">{{.Views}} views</span>{{end}}
</header>
{{with .View.Notice}}
<section class="notice" role="alert">
<p>{{.Message}}</p>
<p><a href="{{.BackPath}}">Back to my tickets</a></p>
</section>
{{else}}
{{range .View.Banners}}<p class="banner">{{.}}</p>
{{end}}
<div class="player">
{{if eq .View.Embed.Kind "iframe"}}<iframe src="{{.View.Embed.Value}}" sandbox="{{.Sandbox}}" allow="autoplay; fullscreen; picture-in-picture" allowfullscreen referrerpolicy="strict-origin-when-cross-origin"></iframe>
{{else if .Markup}}{{.Markup}}
{{else}}<div class="placeholder">The stream is not available here.</div>
{{end}}
</div>
{{with .View.MeetingLink}}<p><a href="{{.}}" target="_blank" rel="noopener noreferrer">Join the meeting</a></p>{{end}}
{{end}}
{{if .PushPath}}<script>
(function () {
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + {{.PushPath}});
  ws.onopen = function () { ws.send(JSON.stringify({event: "join"})); };
  ws.onmessage = function (e) {
    try { if (JSON.parse(e.data).event === "stream_updated") { location.reload(); } } catch (_) {}
  };
})();
</script>{{end}}
</body>
</html>
`))
