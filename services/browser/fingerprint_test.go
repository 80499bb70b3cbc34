package browser

import (
	"math/rand"
	"strings"
	"testing"
)

func TestCatalogProfilesCoherent(t *testing.T) {
	if CatalogSize() < 6 {
		t.Fatalf("catalog has %d profiles, need at least 6", CatalogSize())
	}
	for i := 0; i < CatalogSize(); i++ {
		fp := ProfileForBucket(i)
		if fp.UserAgent == "" || fp.Platform == "" || fp.Timezone == "" {
			t.Errorf("profile %d has empty identity fields: %+v", i, fp)
		}
		if fp.ScreenWidth <= 0 || fp.ScreenHeight <= 0 {
			t.Errorf("profile %d has bogus screen %dx%d", i, fp.ScreenWidth, fp.ScreenHeight)
		}
		// UA platform and navigator.platform must agree.
		switch fp.Platform {
		case "Win32":
			if !strings.Contains(fp.UserAgent, "Windows") {
				t.Errorf("profile %d: Win32 platform with UA %q", i, fp.UserAgent)
			}
		case "MacIntel":
			if !strings.Contains(fp.UserAgent, "Macintosh") {
				t.Errorf("profile %d: MacIntel platform with UA %q", i, fp.UserAgent)
			}
		case "Linux x86_64":
			if !strings.Contains(fp.UserAgent, "Linux") {
				t.Errorf("profile %d: Linux platform with UA %q", i, fp.UserAgent)
			}
		}
	}
}

func TestProfileForBucketStable(t *testing.T) {
	a := ProfileForBucket(2)
	b := ProfileForBucket(2)
	if a.UserAgent != b.UserAgent {
		t.Fatal("same bucket must always map to the same profile")
	}
	wrapped := ProfileForBucket(2 + CatalogSize())
	if wrapped.UserAgent != a.UserAgent {
		t.Fatal("bucket mapping must wrap around the catalog")
	}
}

func TestAcceptLanguage(t *testing.T) {
	fp := Fingerprint{Languages: []string{"en-US", "en", "es"}}
	got := fp.AcceptLanguage()
	if got != "en-US,en;q=0.8,es;q=0.7" {
		t.Errorf("AcceptLanguage = %q", got)
	}
	if (Fingerprint{}).AcceptLanguage() == "" {
		t.Error("empty profile must still produce a header")
	}
}

func TestSpoofScriptEmbedsProfile(t *testing.T) {
	fp := ProfileForBucket(0)
	script := fp.SpoofScript()

	for _, want := range []string{"webdriver", fp.Platform, fp.WebGLRenderer, "window.chrome"} {
		if !strings.Contains(script, want) {
			t.Errorf("spoof script missing %q", want)
		}
	}
}

func TestSeedStorageScriptVaries(t *testing.T) {
	first := SeedStorageScript(rand.New(rand.NewSource(1)))
	if !strings.Contains(first, "pljsvolume") {
		t.Fatalf("seed script missing player prefs: %s", first)
	}
	varied := false
	for seed := int64(2); seed < 16; seed++ {
		if SeedStorageScript(rand.New(rand.NewSource(seed))) != first {
			varied = true
			break
		}
	}
	if !varied {
		t.Error("seeded preference sets never vary")
	}
}
