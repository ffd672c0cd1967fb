package embed

import (
	"errors"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ErrUntrustedMarkup is returned when markup contains no iframe from a trusted host.
var ErrUntrustedMarkup = errors.New("embed markup has no iframe from a trusted host")

// IFrameSandbox is applied to every kept iframe. Scripts run, but only inside the
// provider's own origin.
const IFrameSandbox = "allow-scripts allow-same-origin allow-presentation allow-popups"

var keptAttrs = map[string]bool{
	"width":           true,
	"height":          true,
	"title":           true,
	"allowfullscreen": true,
	"frameborder":     true,
	"referrerpolicy":  true,
	"loading":         true,
}

// allowedFeatures are the permissions-policy features an embedded player may
// request through its allow attribute. Origin lists are dropped.
var allowedFeatures = map[string]bool{
	"autoplay":           true,
	"fullscreen":         true,
	"picture-in-picture": true,
	"encrypted-media":    true,
}

func filterAllow(v string) string {
	var kept []string
	seen := map[string]bool{}
	for _, directive := range strings.Split(v, ";") {
		fields := strings.Fields(directive)
		if len(fields) == 0 {
			continue
		}
		feature := strings.ToLower(fields[0])
		if allowedFeatures[feature] && !seen[feature] {
			seen[feature] = true
			kept = append(kept, feature)
		}
	}
	return strings.Join(kept, "; ")
}

// Policy lists the hosts whose players may be embedded from raw markup.
// A host also matches its subdomains.
type Policy struct {
	AllowedHosts []string
}

// Allows reports whether src is an https URL on an allowed host.
func (p Policy) Allows(src string) bool {
	u, err := url.Parse(strings.TrimSpace(src))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range p.AllowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Sanitize rebuilds markup keeping only iframes whose src the policy allows.
// Everything else (scripts, other tags, event handlers, text) is dropped and
// every kept iframe gets a sandbox attribute.
func Sanitize(markup string, policy Policy) (string, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	var b strings.Builder
	kept := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return "", z.Err()
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		if tok.Data != "iframe" {
			continue
		}
		var src string
		var attrs []html.Attribute
		for _, a := range tok.Attr {
			key := strings.ToLower(a.Key)
			switch {
			case key == "src":
				src = a.Val
			case key == "allow":
				if v := filterAllow(a.Val); v != "" {
					attrs = append(attrs, html.Attribute{Key: key, Val: v})
				}
			case keptAttrs[key]:
				attrs = append(attrs, html.Attribute{Key: key, Val: a.Val})
			}
		}
		if !policy.Allows(src) {
			continue
		}
		writeIFrame(&b, src, attrs)
		kept++
	}
	if kept == 0 {
		return "", ErrUntrustedMarkup
	}
	return b.String(), nil
}

func writeIFrame(b *strings.Builder, src string, attrs []html.Attribute) {
	b.WriteString(`<iframe src="`)
	b.WriteString(html.EscapeString(strings.TrimSpace(src)))
	b.WriteString(`"`)
	for _, a := range attrs {
		b.WriteString(" ")
		b.WriteString(a.Key)
		if a.Val != "" {
			b.WriteString(`="`)
			b.WriteString(html.EscapeString(a.Val))
			b.WriteString(`"`)
		}
	}
	b.WriteString(` sandbox="` + IFrameSandbox + `"></iframe>`)
}
