package extraction

import (
	"net/http"
	"strings"
)

// smallBodyThreshold: challenge interstitials are tiny compared to real
// embed pages.
const smallBodyThreshold = 3 << 10

var challengeMarkers = []string{
	"just a moment",
	"cf-turnstile",
	"challenge-platform",
	"cf_chl_opt",
	"__cf_chl",
	"checking your browser",
	"ray id",
}

// hasChallengeMarkers reports whether the body looks like a Cloudflare (or
// similar) interstitial.
func hasChallengeMarkers(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// needsBrowser decides whether a pure-fetch hop response warrants escalation
// to the browser strategy: a challenge status, or a suspiciously small body
// carrying challenge indicators.
func needsBrowser(status int, body []byte) bool {
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		return true
	}
	if len(body) < smallBodyThreshold && hasChallengeMarkers(body) {
		return true
	}
	return false
}
