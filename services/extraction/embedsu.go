package extraction

import (
	"context"
	"net/http"

	"vidbridge/config"
	"vidbridge/models"
	"vidbridge/services/browser"
)

const embedSuBase = "https://embed.su/embed/"

// embedSuExtractor is the backup host. Its CDN rejects direct playback
// clients, so every stream it produces is routed through the stream proxy.
// The embed page sometimes exposes the playlist inline; otherwise the
// browser strategy captures it off the wire.
type embedSuExtractor struct {
	hops    *hopClient
	walker  *browserWalker
	needles []string
}

func newEmbedSuExtractor(cfg config.ExtractionSettings, bcfg config.BrowserSettings, driver browser.Driver) *embedSuExtractor {
	return &embedSuExtractor{
		hops:    newHopClient(cfg),
		walker:  newBrowserWalker(driver, bcfg),
		needles: cfg.ProxiedHostNeedles,
	}
}

func (e *embedSuExtractor) Server() models.Server { return models.ServerEmbedSu }

func (e *embedSuExtractor) EmbedURL(req models.ExtractionRequest) string {
	return embedSuBase + embedPath(req)
}

func (e *embedSuExtractor) Extract(ctx context.Context, req models.ExtractionRequest, emit Emitter) (*models.StreamDescriptor, error) {
	embedURL := e.EmbedURL(req)

	emit(models.PhaseConnecting, 15, "requesting backup embed page")
	resp, err := e.hops.get(ctx, embedURL, "")
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusNotFound {
		return nil, E(KindNavigationError, "title not found on backup host").WithDebug("status", 404)
	}

	if resp.Status == http.StatusOK && !needsBrowser(resp.Status, resp.Body) {
		emit(models.PhaseNavigating, 35, "scanning backup player")
		if target, terr := parseStreamTarget(string(resp.Body)); terr == nil && !target.Intermediate {
			emit(models.PhaseExtracting, 80, "stream url found inline")
			return describeStream(target.URL, e.needles, true)
		}
	}

	// Inline scan came up empty or the page is challenged: let a real player
	// run and capture its playlist request.
	emit(models.PhaseBypassing, 50, "switching to browser strategy")
	streamURL, err := e.walker.playlist(ctx, embedURL, "", emit)
	if err != nil {
		return nil, err
	}
	return describeStream(streamURL, e.needles, true)
}
