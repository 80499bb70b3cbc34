package proxy

import (
	"testing"

	"vidbridge/config"
)

func testPolicy() *Policy {
	return NewPolicy(map[string]config.ProxySource{
		"vidsrc": {
			AllowedHosts: []string{"shadowlandschronicles.com", "cloudnestra.com"},
		},
		"embed.su": {
			AllowedHosts: []string{"embed.su", "usbigcdn.cc"},
			Referer:      "https://embed.su/",
			Origin:       "https://embed.su",
		},
	}, "test-agent/1.0")
}

func TestPolicyAllowed(t *testing.T) {
	p := testPolicy()

	cases := []struct {
		name string
		tag  string
		host string
		want bool
	}{
		{"exact match", "vidsrc", "cloudnestra.com", true},
		{"subdomain", "vidsrc", "tmstr.shadowlandschronicles.com", true},
		{"case insensitive", "vidsrc", "CLOUDNESTRA.COM", true},
		{"suffix without dot boundary", "vidsrc", "evilcloudnestra.com", false},
		{"wrong tag", "embed.su", "cloudnestra.com", false},
		{"unknown tag", "nope", "cloudnestra.com", false},
		{"unrelated host", "vidsrc", "example.com", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.Allowed(tc.tag, tc.host); got != tc.want {
				t.Errorf("Allowed(%q, %q) = %v, want %v", tc.tag, tc.host, got, tc.want)
			}
		})
	}
}

func TestPolicyHeaders(t *testing.T) {
	p := testPolicy()

	clean := p.Headers("vidsrc")
	if clean.Get("User-Agent") != "test-agent/1.0" {
		t.Errorf("vidsrc UA = %q", clean.Get("User-Agent"))
	}
	if clean.Get("Referer") != "" || clean.Get("Origin") != "" {
		t.Errorf("vidsrc headers must be clean, got Referer=%q Origin=%q", clean.Get("Referer"), clean.Get("Origin"))
	}

	forged := p.Headers("embed.su")
	if forged.Get("Referer") != "https://embed.su/" {
		t.Errorf("embed.su Referer = %q", forged.Get("Referer"))
	}
	if forged.Get("Origin") != "https://embed.su" {
		t.Errorf("embed.su Origin = %q", forged.Get("Origin"))
	}
}
