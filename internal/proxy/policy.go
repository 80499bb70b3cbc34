package proxy

import (
	"net/http"
	"strings"

	"vidbridge/config"
)

// Policy resolves source tags to the upstream hosts they may reach and the
// headers forged toward those hosts. Incoming client headers are never
// forwarded except Range and Accept-Encoding; everything the origin sees is
// built here.
type Policy struct {
	sources   map[string]config.ProxySource
	defaultUA string
}

func NewPolicy(sources map[string]config.ProxySource, defaultUA string) *Policy {
	cloned := make(map[string]config.ProxySource, len(sources))
	for tag, src := range sources {
		cloned[tag] = src
	}
	return &Policy{sources: cloned, defaultUA: defaultUA}
}

// KnownSource reports whether the tag is configured at all.
func (p *Policy) KnownSource(tag string) bool {
	_, ok := p.sources[tag]
	return ok
}

// Allowed reports whether the given host may be fetched under the tag.
// Hosts match on exact name or dot-boundary suffix, so "cloudnestra.com"
// admits "tmstr.cloudnestra.com" but not "evilcloudnestra.com".
func (p *Policy) Allowed(tag, host string) bool {
	src, ok := p.sources[tag]
	if !ok {
		return false
	}
	host = strings.ToLower(host)
	for _, allowed := range src.AllowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// Headers builds the outbound header set for the tag. vidsrc-family sources
// go out clean: realistic UA, no referer, no origin. embed.su expects its
// own page as referer.
func (p *Policy) Headers(tag string) http.Header {
	h := http.Header{}
	src := p.sources[tag]

	ua := src.UserAgent
	if ua == "" {
		ua = p.defaultUA
	}
	h.Set("User-Agent", ua)
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-US,en;q=0.9")

	if src.Referer != "" {
		h.Set("Referer", src.Referer)
	}
	if src.Origin != "" {
		h.Set("Origin", src.Origin)
	}
	return h
}
