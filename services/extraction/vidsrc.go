package extraction

import (
	"context"
	"log"
	"net/http"

	"vidbridge/config"
	"vidbridge/models"
	"vidbridge/services/browser"
)

const vidsrcBase = "https://vidsrc.xyz/embed/"

// vidsrcExtractor walks the primary chain:
// vidsrc.xyz embed -> cloudnestra /rcp -> /prorcp -> stream origin.
// Pure fetch first; any hop that looks challenged escalates the remainder to
// the browser strategy.
type vidsrcExtractor struct {
	hops    *hopClient
	walker  *browserWalker
	needles []string
}

func newVidsrcExtractor(cfg config.ExtractionSettings, bcfg config.BrowserSettings, driver browser.Driver) *vidsrcExtractor {
	return &vidsrcExtractor{
		hops:    newHopClient(cfg),
		walker:  newBrowserWalker(driver, bcfg),
		needles: cfg.ProxiedHostNeedles,
	}
}

func (e *vidsrcExtractor) Server() models.Server { return models.ServerVidsrc }

func (e *vidsrcExtractor) EmbedURL(req models.ExtractionRequest) string {
	return vidsrcBase + embedPath(req)
}

func (e *vidsrcExtractor) Extract(ctx context.Context, req models.ExtractionRequest, emit Emitter) (*models.StreamDescriptor, error) {
	embedURL := e.EmbedURL(req)

	emit(models.PhaseConnecting, 15, "requesting embed page")
	resp, err := e.hops.get(ctx, embedURL, "")
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusNotFound {
		// Content absent on the primary host. This is the auto-switch
		// trigger, not a hard failure.
		return nil, E(KindNavigationError, "title not found on primary host").WithDebug("status", 404)
	}
	if needsBrowser(resp.Status, resp.Body) {
		return e.escalate(ctx, embedURL, emit)
	}
	if resp.Status != http.StatusOK {
		return nil, E(KindOriginFailure, "embed page unavailable").WithDebug("status", resp.Status)
	}

	rcpURL, err := parseRCPURL(string(resp.Body))
	if err != nil {
		return e.recoverPatternMiss(ctx, embedURL, emit, err)
	}

	emit(models.PhaseNavigating, 35, "following player chain")
	resp, err = e.hops.get(ctx, rcpURL, embedURL)
	if err != nil {
		return nil, err
	}
	if needsBrowser(resp.Status, resp.Body) {
		return e.escalate(ctx, embedURL, emit)
	}

	prorcpURL, err := parseProRCPURL(string(resp.Body))
	if err != nil {
		return e.recoverPatternMiss(ctx, embedURL, emit, err)
	}

	resp, err = e.hops.get(ctx, prorcpURL, rcpURL)
	if err != nil {
		return nil, err
	}
	if needsBrowser(resp.Status, resp.Body) {
		return e.escalate(ctx, embedURL, emit)
	}

	emit(models.PhaseExtracting, 80, "scanning player for stream url")
	target, err := parseStreamTarget(string(resp.Body))
	if err != nil {
		return e.recoverPatternMiss(ctx, embedURL, emit, err)
	}

	streamURL := target.URL
	if target.Intermediate {
		resp, err = e.hops.get(ctx, target.URL, prorcpURL)
		if err != nil {
			return nil, err
		}
		if needsBrowser(resp.Status, resp.Body) {
			return e.escalate(ctx, embedURL, emit)
		}
		streamURL, err = parsePlaylistURL(string(resp.Body))
		if err != nil {
			return e.recoverPatternMiss(ctx, embedURL, emit, err)
		}
	}

	return describeStream(streamURL, e.needles, false)
}

// recoverPatternMiss retries the whole chain in a browser when a hop's
// markup defeats the regex parsers; obfuscated pages often resolve once
// their scripts run. The miss stays terminal only when the browser strategy
// is unavailable or comes up empty too.
func (e *vidsrcExtractor) recoverPatternMiss(ctx context.Context, embedURL string, emit Emitter, cause error) (*models.StreamDescriptor, error) {
	if !isPatternMiss(cause) || e.walker.driver == nil {
		return nil, cause
	}
	return e.escalate(ctx, embedURL, emit)
}

// escalate hands the whole chain to the browser strategy from the top.
func (e *vidsrcExtractor) escalate(ctx context.Context, embedURL string, emit Emitter) (*models.StreamDescriptor, error) {
	log.Printf("[extract] pure fetch blocked for %s, escalating to browser", embedURL)
	emit(models.PhaseBypassing, 50, "switching to browser strategy")
	streamURL, err := e.walker.playlist(ctx, embedURL, "", emit)
	if err != nil {
		return nil, err
	}
	return describeStream(streamURL, e.needles, false)
}
