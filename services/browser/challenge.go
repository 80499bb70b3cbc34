package browser

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// challengeProbe reports whether the document still shows an anti-bot
// interstitial, evaluated inside the page so shadow roots count too.
const challengeProbe = `(() => {
	const text = (document.title + ' ' + document.body.innerText).toLowerCase();
	const markers = ['just a moment', 'checking your browser', 'verify you are human'];
	if (markers.some(m => text.includes(m))) return 'challenge';
	if (document.querySelector('.cf-turnstile, #challenge-form, #challenge-stage')) return 'challenge';
	return 'clear';
})()`

// turnstileLocator finds the interactive widget's center, if one is visible.
const turnstileLocator = `(() => {
	const el = document.querySelector('.cf-turnstile, #challenge-stage, iframe[src*="challenges.cloudflare.com"]');
	if (!el) return 'none';
	const r = el.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return 'none';
	return Math.round(r.x + r.width / 2) + ',' + Math.round(r.y + r.height / 2);
})()`

// ChallengeDetected checks the current document for interstitial markers.
func ChallengeDetected(ctx context.Context, tab Tab) bool {
	state, err := tab.Eval(ctx, challengeProbe)
	if err != nil {
		return false
	}
	return strings.Contains(state, "challenge")
}

// ResolveChallenge drives humanlike interaction until the interstitial
// clears or the wait window elapses. Mouse movement happens regardless of
// whether a widget is found: passive challenges score behavioral signals.
func ResolveChallenge(ctx context.Context, tab Tab, rng *rand.Rand, wait time.Duration) error {
	deadline := time.Now().Add(wait)

	for time.Now().Before(deadline) {
		if !ChallengeDetected(ctx, tab) {
			return nil
		}

		wanderMouse(tab, rng)

		if center, err := tab.Eval(ctx, turnstileLocator); err == nil && !strings.Contains(center, "none") {
			if x, y, ok := parsePoint(center); ok {
				// Approach the checkbox with slight offset jitter, settle,
				// then click.
				_ = tab.MoveMouse(x+float64(rng.Intn(7)-3), y+float64(rng.Intn(5)-2), 18+rng.Intn(14))
				humanPause(ctx, rng)
				_ = tab.Click()
			}
		}

		humanPause(ctx, rng)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	if ChallengeDetected(ctx, tab) {
		return ErrChallengeUnresolved
	}
	return nil
}

// wanderMouse traces a few curved segments across the viewport.
func wanderMouse(tab Tab, rng *rand.Rand) {
	x := 200 + rng.Float64()*400
	y := 150 + rng.Float64()*300
	for i := 0; i < 3; i++ {
		x += rng.Float64()*240 - 120
		y += rng.Float64()*160 - 80
		if x < 10 {
			x = 10
		}
		if y < 10 {
			y = 10
		}
		_ = tab.MoveMouse(x, y, 12+rng.Intn(20))
	}
}

// humanPause sleeps 800-2500ms, interruptible by ctx.
func humanPause(ctx context.Context, rng *rand.Rand) {
	d := time.Duration(800+rng.Intn(1700)) * time.Millisecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// parsePoint decodes an "x,y" pair produced by the locator script.
func parsePoint(s string) (float64, float64, bool) {
	s = strings.Trim(s, `"`)
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	return x, y, errX == nil && errY == nil
}
