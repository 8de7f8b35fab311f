// Package htmlpage injects the client bootstrap and the session identifier
// into served HTML, so every page can start polling before any other markup
// runs.
package htmlpage

import (
	"fmt"
	"regexp"

	"github.com/jsbridge/jsbridge/assets"
)

// Injection points, tried in order. A page that already references the
// standalone script only needs the identifier prelude; otherwise the whole
// script is inlined at the earliest sensible spot.
var (
	scriptRef = regexp.MustCompile(`(?i)<script[^>]*\s+src\s*=\s*"appscript\.js"`)
	markers   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\{\{JSCRIPT\}\}`),
		regexp.MustCompile(`(?i)<script>`),
		regexp.MustCompile(`(?i)</head>`),
		regexp.MustCompile(`(?i)<body>`),
		regexp.MustCompile(`(?i)<html>`),
	}
)

func prelude(sessionID string) []byte {
	return []byte(fmt.Sprintf("var PAGEID='%s';\n", sessionID))
}

// Render returns html with the session identifier and bootstrap script
// injected.
func Render(html []byte, sessionID string) []byte {
	pre := prelude(sessionID)
	script := assets.AppScript()

	if m := scriptRef.FindIndex(html); m != nil {
		out := append([]byte{}, html[:m[0]]...)
		out = append(out, []byte("<script>")...)
		out = append(out, pre...)
		out = append(out, []byte("</script>")...)
		return append(out, html[m[0]:]...)
	}

	for i, p := range markers {
		m := p.FindIndex(html)
		if m == nil {
			continue
		}
		switch i {
		case 0: // {{JSCRIPT}} marker is replaced outright
			out := append([]byte{}, html[:m[0]]...)
			out = append(out, []byte("<script>")...)
			out = append(out, pre...)
			out = append(out, script...)
			out = append(out, []byte("</script>")...)
			return append(out, html[m[1]:]...)
		case 1, 2, 3: // before <script>, </head> or <body>
			out := append([]byte{}, html[:m[0]]...)
			out = append(out, []byte("<script>")...)
			out = append(out, pre...)
			out = append(out, script...)
			out = append(out, []byte("</script>")...)
			return append(out, html[m[0]:]...)
		default: // after <html>: synthesize a head
			out := append([]byte{}, html[:m[1]]...)
			out = append(out, []byte("<head><script>")...)
			out = append(out, pre...)
			out = append(out, script...)
			out = append(out, []byte("</script></head>")...)
			return append(out, html[m[1]:]...)
		}
	}

	out := append([]byte("<head><script>"), pre...)
	out = append(out, script...)
	out = append(out, []byte("</script></head>")...)
	return append(out, html...)
}
