package extraction

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Hop parsers for the vidsrc embed chain. Each hop's HTML is regex-parsed;
// the browser strategy reuses the same parsers on rendered documents.

var (
	// Hop 1: iframe pointing at cloudnestra's /rcp/ endpoint. The attribute
	// may carry a full https URL, a protocol-relative //host/... form, or a
	// bare /rcp/ path on an iframe inside the embed page.
	rcpIframeRegex = regexp.MustCompile(`(?i)(?:src|data-src)\s*=\s*["']((?:https:)?//(?:[\w.-]+\.)?cloudnestra\.com/rcp/[^"']+)["']`)
	rcpAnyRegex    = regexp.MustCompile(`(?i)(?:https:)?//(?:[\w.-]+\.)?cloudnestra\.com/rcp/[^"'\s<>\\]+`)

	// Hop 2: "/prorcp/<opaque>" quoted in a JS literal or iframe attribute.
	prorcpRegex = regexp.MustCompile(`["'](/prorcp/[A-Za-z0-9+/=_.:\-]+)["']`)

	// Hop 3: either a shadowlands origin URL or a direct playlist.
	shadowlandsRegex = regexp.MustCompile(`(?i)https?://[^"'\s<>\\]*shadowlands[^"'\s<>\\]*`)
	m3u8Regex        = regexp.MustCompile(`(?i)https?://[^"'\s<>\\]+\.m3u8[^"'\s<>\\]*`)
	mp4Regex         = regexp.MustCompile(`(?i)https?://[^"'\s<>\\]+\.mp4[^"'\s<>\\]*`)

	// Playerjs({ file: '...m3u8' }) literal in an inline script.
	playerjsRegex = regexp.MustCompile(`(?is)Playerjs\s*\(\s*\{[^}]*?file\s*:\s*["']([^"']+)["']`)
)

// parseRCPURL finds the hop-1 cloudnestra /rcp/ URL and resolves it to an
// absolute https URL.
func parseRCPURL(html string) (string, error) {
	var raw string
	if m := rcpIframeRegex.FindStringSubmatch(html); len(m) > 1 {
		raw = m[1]
	} else if m := rcpAnyRegex.FindString(html); m != "" {
		raw = m
	}
	if raw == "" {
		return "", E(KindPatternNotFound, "no cloudnestra rcp iframe in embed page").WithDebug("hop", 1)
	}
	return absoluteHTTPS(raw), nil
}

// parseProRCPURL finds the hop-2 /prorcp/ path and resolves it against the
// cloudnestra origin.
func parseProRCPURL(html string) (string, error) {
	m := prorcpRegex.FindStringSubmatch(html)
	if len(m) < 2 {
		return "", E(KindPatternNotFound, "no prorcp reference in rcp page").WithDebug("hop", 2)
	}
	return "https://cloudnestra.com" + m[1], nil
}

// streamTarget is the outcome of parsing the prorcp (or shadowlands) page.
type streamTarget struct {
	URL string
	// Intermediate is set when URL is a shadowlands page that must be
	// fetched once more before the playlist appears.
	Intermediate bool
}

// parseStreamTarget inspects hop-3 HTML. Preference order: a direct
// playlist (including the Playerjs file literal), then a shadowlands
// intermediate URL, then a direct mp4.
func parseStreamTarget(html string) (streamTarget, error) {
	if m := playerjsRegex.FindStringSubmatch(html); len(m) > 1 && usablePlaylistRef(m[1]) {
		return streamTarget{URL: absoluteHTTPS(m[1])}, nil
	}
	if m := m3u8Regex.FindString(html); m != "" {
		return streamTarget{URL: m}, nil
	}
	if m := shadowlandsRegex.FindString(html); m != "" {
		if strings.Contains(m, ".m3u8") {
			return streamTarget{URL: m}, nil
		}
		return streamTarget{URL: m, Intermediate: true}, nil
	}
	if m := mp4Regex.FindString(html); m != "" {
		return streamTarget{URL: m}, nil
	}
	return streamTarget{}, E(KindPatternNotFound, "no stream url in prorcp page").WithDebug("hop", 3)
}

// parsePlaylistURL extracts a playlist URL from a shadowlands page.
func parsePlaylistURL(html string) (string, error) {
	if m := playerjsRegex.FindStringSubmatch(html); len(m) > 1 && usablePlaylistRef(m[1]) {
		return absoluteHTTPS(m[1]), nil
	}
	if m := m3u8Regex.FindString(html); m != "" {
		return m, nil
	}
	return "", E(KindPatternNotFound, "no playlist in shadowlands page").WithDebug("hop", 4)
}

// usablePlaylistRef accepts Playerjs file literals only when they are
// playlists with an absolute or protocol-relative location.
func usablePlaylistRef(ref string) bool {
	if !strings.Contains(ref, ".m3u8") {
		return false
	}
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "//")
}

// absoluteHTTPS normalizes protocol-relative and scheme-less URLs.
func absoluteHTTPS(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + strings.TrimPrefix(raw, "/")
}

// originHost extracts the host of a stream URL.
func originHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("stream url %q has no host", rawURL)
	}
	return u.Hostname(), nil
}
