package browser

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
)

// Fingerprint is a coherent set of browser-identity attributes. A profile is
// bound to a session before its first navigation and never swapped for the
// lifetime of that session's browser.
type Fingerprint struct {
	UserAgent           string
	Platform            string
	Vendor              string
	Languages           []string
	ScreenWidth         int
	ScreenHeight        int
	ColorDepth          int
	HardwareConcurrency int
	DeviceMemory        int
	Timezone            string
	WebGLVendor         string
	WebGLRenderer       string
}

// AcceptLanguage renders the header matching navigator.languages.
func (f Fingerprint) AcceptLanguage() string {
	if len(f.Languages) == 0 {
		return "en-US,en;q=0.9"
	}
	parts := make([]string, 0, len(f.Languages))
	for i, lang := range f.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s;q=0.%d", lang, 9-i))
	}
	return strings.Join(parts, ",")
}

// catalog holds the finite profile set. One bucket of the browser pool maps
// to one profile, so concurrent jobs in distinct buckets never share a
// fingerprint.
var catalog = []Fingerprint{
	{
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Platform:            "Win32",
		Vendor:              "Google Inc.",
		Languages:           []string{"en-US", "en"},
		ScreenWidth:         1920, ScreenHeight: 1080, ColorDepth: 24,
		HardwareConcurrency: 8, DeviceMemory: 8,
		Timezone:            "America/New_York",
		WebGLVendor:         "Google Inc. (NVIDIA)",
		WebGLRenderer:       "ANGLE (NVIDIA, NVIDIA GeForce GTX 1660 Direct3D11 vs_5_0 ps_5_0, D3D11)",
	},
	{
		UserAgent:           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		Platform:            "MacIntel",
		Vendor:              "Google Inc.",
		Languages:           []string{"en-US", "en"},
		ScreenWidth:         2560, ScreenHeight: 1440, ColorDepth: 30,
		HardwareConcurrency: 10, DeviceMemory: 16,
		Timezone:            "America/Los_Angeles",
		WebGLVendor:         "Google Inc. (Apple)",
		WebGLRenderer:       "ANGLE (Apple, ANGLE Metal Renderer: Apple M2, Unspecified Version)",
	},
	{
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		Platform:            "Win32",
		Vendor:              "Google Inc.",
		Languages:           []string{"en-GB", "en"},
		ScreenWidth:         1920, ScreenHeight: 1200, ColorDepth: 24,
		HardwareConcurrency: 12, DeviceMemory: 16,
		Timezone:            "Europe/London",
		WebGLVendor:         "Google Inc. (AMD)",
		WebGLRenderer:       "ANGLE (AMD, AMD Radeon RX 6600 Direct3D11 vs_5_0 ps_5_0, D3D11)",
	},
	{
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Platform:            "Linux x86_64",
		Vendor:              "Google Inc.",
		Languages:           []string{"en-US", "en"},
		ScreenWidth:         1920, ScreenHeight: 1080, ColorDepth: 24,
		HardwareConcurrency: 16, DeviceMemory: 32,
		Timezone:            "America/Chicago",
		WebGLVendor:         "Google Inc. (Intel)",
		WebGLRenderer:       "ANGLE (Intel, Mesa Intel(R) UHD Graphics 770 (ADL-S GT1), OpenGL 4.6)",
	},
	{
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		Platform:            "Win32",
		Vendor:              "Google Inc.",
		Languages:           []string{"en-US", "en", "es"},
		ScreenWidth:         1366, ScreenHeight: 768, ColorDepth: 24,
		HardwareConcurrency: 4, DeviceMemory: 8,
		Timezone:            "America/Denver",
		WebGLVendor:         "Google Inc. (Intel)",
		WebGLRenderer:       "ANGLE (Intel, Intel(R) Iris(R) Xe Graphics Direct3D11 vs_5_0 ps_5_0, D3D11)",
	},
	{
		UserAgent:           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Platform:            "MacIntel",
		Vendor:              "Google Inc.",
		Languages:           []string{"en-US", "en", "fr"},
		ScreenWidth:         1728, ScreenHeight: 1117, ColorDepth: 30,
		HardwareConcurrency: 8, DeviceMemory: 16,
		Timezone:            "America/Toronto",
		WebGLVendor:         "Google Inc. (Apple)",
		WebGLRenderer:       "ANGLE (Apple, ANGLE Metal Renderer: Apple M1 Pro, Unspecified Version)",
	},
}

// ProfileForBucket returns the fingerprint bound to a pool bucket.
func ProfileForBucket(bucket int) Fingerprint {
	if bucket < 0 {
		bucket = -bucket
	}
	return catalog[bucket%len(catalog)]
}

// CatalogSize reports how many distinct profiles exist.
func CatalogSize() int { return len(catalog) }

// SpoofScript returns JavaScript evaluated on every new document before any
// page script runs. It hides automation tells and pins the identity surface
// to the fingerprint.
func (f Fingerprint) SpoofScript() string {
	langs, _ := json.Marshal(f.Languages)
	return fmt.Sprintf(`(() => {
	Object.defineProperty(Object.getPrototypeOf(navigator), 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'platform', { get: () => %q });
	Object.defineProperty(navigator, 'vendor', { get: () => %q });
	Object.defineProperty(navigator, 'languages', { get: () => %s });
	Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });
	Object.defineProperty(navigator, 'deviceMemory', { get: () => %d });
	Object.defineProperty(screen, 'width', { get: () => %d });
	Object.defineProperty(screen, 'height', { get: () => %d });
	Object.defineProperty(screen, 'colorDepth', { get: () => %d });
	if (!window.chrome) {
		window.chrome = { runtime: {}, loadTimes: () => ({}), csi: () => ({}) };
	}
	if (navigator.plugins.length === 0) {
		Object.defineProperty(navigator, 'plugins', { get: () => [
			{ name: 'PDF Viewer' }, { name: 'Chrome PDF Viewer' }, { name: 'Chromium PDF Viewer' },
		]});
	}
	const getParameter = WebGLRenderingContext.prototype.getParameter;
	WebGLRenderingContext.prototype.getParameter = function (param) {
		if (param === 37445) return %q;
		if (param === 37446) return %q;
		return getParameter.call(this, param);
	};
})();`,
		f.Platform, f.Vendor, string(langs),
		f.HardwareConcurrency, f.DeviceMemory,
		f.ScreenWidth, f.ScreenHeight, f.ColorDepth,
		f.WebGLVendor, f.WebGLRenderer,
	)
}

// playerPrefSets are plausible saved-player states a returning viewer would
// have. Values are drawn randomly per job so no two sessions look cloned.
var playerPrefSets = struct {
	subtitleLangs []string
	volumes       []string
	qualities     []string
}{
	subtitleLangs: []string{"en", "en", "es", "fr", "off"},
	volumes:       []string{"0.6", "0.75", "0.8", "1", "0.5"},
	qualities:     []string{"auto", "1080p", "720p", "auto"},
}

// SeedStorageScript returns JavaScript that pre-populates localStorage with
// randomized player preferences.
func SeedStorageScript(rng *rand.Rand) string {
	prefs := map[string]string{
		"pljssubtitle": playerPrefSets.subtitleLangs[rng.Intn(len(playerPrefSets.subtitleLangs))],
		"pljsvolume":   playerPrefSets.volumes[rng.Intn(len(playerPrefSets.volumes))],
		"pljsquality":  playerPrefSets.qualities[rng.Intn(len(playerPrefSets.qualities))],
	}
	encoded, _ := json.Marshal(prefs)
	return fmt.Sprintf(`(() => {
	const prefs = %s;
	for (const [k, v] of Object.entries(prefs)) {
		try { localStorage.setItem(k, v); } catch (e) {}
	}
})();`, string(encoded))
}
