package proxy

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	uriAttrRegex = regexp.MustCompile(`URI="([^"]*)"`)
)

const bom = "\uFEFF"

// RewriteManifest rewrites every URI in an HLS playlist so the player fetches
// it back through the stream proxy. URI lines (segments and variant
// playlists) and URI="…" attributes of #EXT-X-MEDIA, #EXT-X-MAP, #EXT-X-KEY
// and #EXT-X-I-FRAME-STREAM-INF are covered. Relative URIs resolve against
// the manifest URL first. Whitespace, the BOM, blank lines and tag order are
// preserved byte for byte; lines that are already proxy references or whose
// host falls outside the allow-list pass through untouched, which makes the
// rewrite idempotent.
func RewriteManifest(body []byte, manifestURL *url.URL, proxyPath, source string, allowed func(host string) bool) []byte {
	text := string(body)

	hadBOM := strings.HasPrefix(text, bom)
	if hadBOM {
		text = strings.TrimPrefix(text, bom)
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = rewriteLine(line, manifestURL, proxyPath, source, allowed)
	}

	out := strings.Join(lines, "\n")
	if hadBOM {
		out = bom + out
	}
	return []byte(out)
}

func rewriteLine(line string, base *url.URL, proxyPath, source string, allowed func(string) bool) string {
	cr := strings.HasSuffix(line, "\r")
	if cr {
		line = strings.TrimSuffix(line, "\r")
	}

	rewritten := line
	core := strings.TrimSpace(line)
	switch {
	case core == "":
		// keep blank lines as-is
	case strings.HasPrefix(core, "#"):
		if strings.Contains(core, `URI="`) {
			rewritten = uriAttrRegex.ReplaceAllStringFunc(line, func(match string) string {
				sub := uriAttrRegex.FindStringSubmatch(match)
				if len(sub) < 2 || sub[1] == "" {
					return match
				}
				next, ok := proxyTarget(sub[1], base, proxyPath, source, allowed)
				if !ok {
					return match
				}
				return `URI="` + next + `"`
			})
		}
	default:
		// URI line: either a segment or the variant playlist following
		// #EXT-X-STREAM-INF. Replace only the core, keeping surrounding
		// whitespace.
		if next, ok := proxyTarget(core, base, proxyPath, source, allowed); ok {
			idx := strings.Index(line, core)
			rewritten = line[:idx] + next + line[idx+len(core):]
		}
	}

	if cr {
		rewritten += "\r"
	}
	return rewritten
}

// proxyTarget resolves uri against base and maps it to a proxy reference.
// Returns ok=false when the line must be left alone: data URIs, hosts
// outside the allow-list, and URIs that already point at the proxy.
func proxyTarget(uri string, base *url.URL, proxyPath, source string, allowed func(string) bool) (string, bool) {
	if strings.HasPrefix(uri, "data:") {
		return "", false
	}
	if strings.HasPrefix(uri, proxyPath+"?") {
		return "", false
	}
	ref, err := url.Parse(uri)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if allowed != nil && !allowed(abs.Hostname()) {
		return "", false
	}
	return proxyPath + "?url=" + url.QueryEscape(abs.String()) + "&source=" + url.QueryEscape(source), true
}
