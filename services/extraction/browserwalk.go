package extraction

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"vidbridge/config"
	"vidbridge/internal/metrics"
	"vidbridge/models"
	"vidbridge/services/browser"
)

// browserWalker is the escalation strategy: it drives a stealth tab through
// the same hop chain the pure-fetch path walks, relying on network capture to
// pick up the playlist the in-page player requests.
type browserWalker struct {
	driver        browser.Driver
	navTimeout    time.Duration
	challengeWait time.Duration
	captureWait   time.Duration
	clickFallback bool
}

func newBrowserWalker(driver browser.Driver, cfg config.BrowserSettings) *browserWalker {
	nav := time.Duration(cfg.NavigateTimeoutSec) * time.Second
	if nav <= 0 {
		nav = 30 * time.Second
	}
	challenge := time.Duration(cfg.ChallengeWaitSec) * time.Second
	if challenge <= 0 {
		challenge = 30 * time.Second
	}
	return &browserWalker{
		driver:        driver,
		navTimeout:    nav,
		challengeWait: challenge,
		captureWait:   8 * time.Second,
		clickFallback: cfg.ClickFallback,
	}
}

// playlist resolves a stream URL starting from embedURL inside a browser.
// Returns the raw stream URL; the caller classifies and describes it.
func (w *browserWalker) playlist(ctx context.Context, embedURL, referer string, emit Emitter) (string, error) {
	if w.driver == nil {
		return "", E(KindResourceExhausted, "browser strategy disabled")
	}
	metrics.BrowserEscalations.Inc()

	sess, err := w.driver.Acquire(ctx)
	if err != nil {
		if errors.Is(err, browser.ErrPoolExhausted) {
			return "", Wrap(KindResourceExhausted, "no browser available", err)
		}
		return "", Wrap(KindInternal, "acquire browser", err)
	}
	defer sess.Release()

	navCtx, cancel := context.WithTimeout(ctx, w.navTimeout)
	tab, err := sess.NewTab(navCtx, embedURL, referer)
	cancel()
	if err != nil {
		return "", Wrap(KindNavigationError, "embed page did not load", err)
	}
	defer tab.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	if err := w.clearChallenge(ctx, tab, rng, emit); err != nil {
		return "", err
	}

	// The embed page's player usually requests the playlist on its own.
	emit(models.PhaseExtracting, 80, "watching player network traffic")
	if u, ok := tab.WaitResponse(ctx, ".m3u8", w.captureWait); ok {
		return u, nil
	}

	// No capture yet: walk the chain by navigating the tab hop by hop.
	if u, err := w.walkChain(ctx, tab, embedURL, rng, emit); err == nil {
		return u, nil
	} else if !isPatternMiss(err) {
		return "", err
	}

	// Last resort for hosts whose player arms only on interaction.
	if w.clickFallback {
		_ = tab.MoveMouse(640+rng.Float64()*80, 360+rng.Float64()*60, 20)
		_ = tab.Click()
		if u, ok := tab.WaitResponse(ctx, ".m3u8", w.captureWait); ok {
			return u, nil
		}
	}

	return "", E(KindPatternNotFound, "no playlist observed in browser session")
}

// walkChain re-runs the hop parsers against the rendered documents.
func (w *browserWalker) walkChain(ctx context.Context, tab browser.Tab, embedURL string, rng *rand.Rand, emit Emitter) (string, error) {
	html, err := tab.HTML(ctx)
	if err != nil {
		return "", Wrap(KindNavigationError, "read embed page", err)
	}

	rcpURL, err := parseRCPURL(html)
	if err != nil {
		// The embed page itself may already reveal the stream.
		if target, terr := parseStreamTarget(html); terr == nil && !target.Intermediate {
			return target.URL, nil
		}
		return "", err
	}

	if err := w.navigate(ctx, tab, rcpURL, embedURL, rng, emit); err != nil {
		return "", err
	}
	if html, err = tab.HTML(ctx); err != nil {
		return "", Wrap(KindNavigationError, "read rcp page", err)
	}

	prorcpURL, err := parseProRCPURL(html)
	if err != nil {
		return "", err
	}
	if err := w.navigate(ctx, tab, prorcpURL, rcpURL, rng, emit); err != nil {
		return "", err
	}

	// The prorcp player fires the playlist fetch shortly after load.
	if u, ok := tab.WaitResponse(ctx, ".m3u8", w.captureWait); ok {
		return u, nil
	}
	if html, err = tab.HTML(ctx); err != nil {
		return "", Wrap(KindNavigationError, "read prorcp page", err)
	}
	target, err := parseStreamTarget(html)
	if err != nil {
		return "", err
	}
	if !target.Intermediate {
		return target.URL, nil
	}

	if err := w.navigate(ctx, tab, target.URL, prorcpURL, rng, emit); err != nil {
		return "", err
	}
	if u, ok := tab.WaitResponse(ctx, ".m3u8", w.captureWait); ok {
		return u, nil
	}
	if html, err = tab.HTML(ctx); err != nil {
		return "", Wrap(KindNavigationError, "read origin page", err)
	}
	return parsePlaylistURL(html)
}

func (w *browserWalker) navigate(ctx context.Context, tab browser.Tab, target, referer string, rng *rand.Rand, emit Emitter) error {
	navCtx, cancel := context.WithTimeout(ctx, w.navTimeout)
	err := tab.Navigate(navCtx, target, referer)
	cancel()
	if err != nil {
		return Wrap(KindNavigationError, "hop navigation failed", err).WithDebug("url", target)
	}
	return w.clearChallenge(ctx, tab, rng, emit)
}

func (w *browserWalker) clearChallenge(ctx context.Context, tab browser.Tab, rng *rand.Rand, emit Emitter) error {
	if !browser.ChallengeDetected(ctx, tab) {
		return nil
	}
	emit(models.PhaseBypassing, 50, "resolving anti-bot challenge")
	log.Printf("[extract] challenge interstitial detected, engaging resolver")
	if err := browser.ResolveChallenge(ctx, tab, rng, w.challengeWait); err != nil {
		if errors.Is(err, browser.ErrChallengeUnresolved) {
			return Wrap(KindChallengeUnresolved, "challenge did not clear", err)
		}
		return err
	}
	return nil
}

func isPatternMiss(err error) bool {
	return KindOf(err) == KindPatternNotFound
}
