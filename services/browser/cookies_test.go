package browser

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestJarStoreRoundTrip(t *testing.T) {
	store := NewJarStore(afero.NewMemMapFs(), "jars")

	cookies := []StoredCookie{
		{Name: "cf_clearance", Value: "tok", Domain: ".cloudnestra.com", Path: "/",
			Expires: time.Now().Add(time.Hour), Secure: true, HTTPOnly: true},
	}
	if err := store.Save("https://cloudnestra.com", cookies); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("cloudnestra.com")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Name != "cf_clearance" || got[0].Value != "tok" {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestJarStoreDiscardsExpired(t *testing.T) {
	store := NewJarStore(afero.NewMemMapFs(), "jars")

	cookies := []StoredCookie{
		{Name: "fresh", Expires: time.Now().Add(time.Hour)},
		{Name: "stale", Expires: time.Now().Add(-time.Hour)},
		{Name: "session"}, // zero expiry: gone on reload
	}
	if err := store.Save("vidsrc.xyz", cookies); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("vidsrc.xyz")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Name != "fresh" {
		t.Fatalf("expired cookies survived reload: %+v", got)
	}
}

func TestJarStoreMissingJarIsEmpty(t *testing.T) {
	store := NewJarStore(afero.NewMemMapFs(), "jars")
	got, err := store.Load("never-seen.example.com")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("missing jar returned %+v", got)
	}
}

func TestJarStoreCorruptJarIsEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewJarStore(fs, "jars")
	if err := afero.WriteFile(fs, "jars/embed.su.json", []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := store.Load("embed.su")
	if err != nil {
		t.Fatalf("corrupt jar must not error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("corrupt jar returned %+v", got)
	}
}

func TestOriginKey(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://cloudnestra.com", "cloudnestra.com"},
		{"https://Example.COM:8443", "example.com_8443"},
		{"bare-host.example", "bare-host.example"},
	}
	for _, tc := range cases {
		if got := originKey(tc.in); got != tc.want {
			t.Errorf("originKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
