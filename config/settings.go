package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server     ServerSettings     `json:"server"`
	Extraction ExtractionSettings `json:"extraction"`
	Browser    BrowserSettings    `json:"browser"`
	Proxy      ProxySettings      `json:"proxy"`
	Subtitles  SubtitleSettings   `json:"subtitles"`
	Catalog    CatalogSettings    `json:"catalog"`
	Log        LogConfig          `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ExtractionSettings tunes the embed-chain walker.
type ExtractionSettings struct {
	UserAgent string `json:"userAgent"` // UA sent on pure-fetch hops

	HopConnectTimeoutSec int `json:"hopConnectTimeoutSec"` // per-hop connect budget
	HopTotalTimeoutSec   int `json:"hopTotalTimeoutSec"`   // per-hop overall budget
	JobBudgetSec         int `json:"jobBudgetSec"`         // whole-job budget

	// ProxiedHostNeedles marks stream origins that require the stream proxy.
	// Matched as substrings of the origin host.
	ProxiedHostNeedles []string `json:"proxiedHostNeedles"`

	GraceWindowSec int `json:"graceWindowSec"` // terminal replay window after a job ends

	// MaxConcurrentJobs caps in-flight extraction jobs; requests beyond it
	// are rejected up front with resource_exhausted.
	MaxConcurrentJobs int `json:"maxConcurrentJobs"`
}

// BrowserSettings configures the stealth browser pool.
type BrowserSettings struct {
	Enabled            bool   `json:"enabled"`
	BinPath            string `json:"binPath"`            // empty lets the launcher resolve a system chrome
	PoolSize           int    `json:"poolSize"`           // fingerprint buckets / processes
	TabsPerProcess     int    `json:"tabsPerProcess"`     // max concurrent tabs per process
	AcquireTimeoutSec  int    `json:"acquireTimeoutSec"`  // block this long before resource_exhausted
	CookieDir          string `json:"cookieDir"`          // per-origin cookie jars
	ClickFallback      bool   `json:"clickFallback"`      // last-resort iframe center click on unknown hosts
	ChallengeWaitSec   int    `json:"challengeWaitSec"`   // poll window for challenge clearance
	NavigateTimeoutSec int    `json:"navigateTimeoutSec"` // per-navigation budget
}

// ProxySettings configures the stream proxy.
type ProxySettings struct {
	// Sources maps a source tag to the upstream hosts it may reach and the
	// headers forged toward them.
	Sources map[string]ProxySource `json:"sources"`
}

// ProxySource is the per-tag policy of the stream proxy.
type ProxySource struct {
	AllowedHosts []string `json:"allowedHosts"` // host suffixes
	Referer      string   `json:"referer,omitempty"`
	Origin       string   `json:"origin,omitempty"`
	UserAgent    string   `json:"userAgent,omitempty"`
}

// SubtitleSettings configures the OpenSubtitles client and blob cache.
type SubtitleSettings struct {
	BaseURL          string   `json:"baseUrl"`
	UserAgent        string   `json:"userAgent"` // OpenSubtitles requires a registered UA
	DefaultLanguages []string `json:"defaultLanguages"`
	CacheMaxBytes    int64    `json:"cacheMaxBytes"`
	CacheIdleSec     int      `json:"cacheIdleSec"`
}

// CatalogSettings configures the external content catalog used only to map
// internal content IDs to IMDb IDs for subtitle lookup.
type CatalogSettings struct {
	TMDBAPIKey string `json:"tmdbApiKey"`
	Language   string `json:"language"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration written on first start.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 3001},
		Extraction: ExtractionSettings{
			UserAgent:            "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			HopConnectTimeoutSec: 10,
			HopTotalTimeoutSec:   20,
			JobBudgetSec:         90,
			ProxiedHostNeedles:   []string{"shadowlands", "embed.su"},
			GraceWindowSec:       30,
			MaxConcurrentJobs:    32,
		},
		Browser: BrowserSettings{
			Enabled:            true,
			PoolSize:           4,
			TabsPerProcess:     8,
			AcquireTimeoutSec:  15,
			CookieDir:          filepath.Join("cache", "cookies"),
			ClickFallback:      false,
			ChallengeWaitSec:   30,
			NavigateTimeoutSec: 30,
		},
		Proxy: ProxySettings{
			Sources: map[string]ProxySource{
				"vidsrc": {
					AllowedHosts: []string{"shadowlandschronicles.com", "cloudnestra.com", "vidsrc.xyz", "vidsrc.net"},
				},
				"shadowlands": {
					AllowedHosts: []string{"shadowlandschronicles.com"},
				},
				"embed.su": {
					AllowedHosts: []string{"embed.su", "usbigcdn.cc", "congacdn.cc"},
					Referer:      "https://embed.su/",
					Origin:       "https://embed.su",
				},
			},
		},
		Subtitles: SubtitleSettings{
			BaseURL:          "https://rest.opensubtitles.org",
			UserAgent:        "VLSub 0.10.2",
			DefaultLanguages: []string{"eng"},
			CacheMaxBytes:    64 << 20,
			CacheIdleSec:     3600,
		},
		Catalog: CatalogSettings{Language: "en-US"},
		Log: LogConfig{
			File:       filepath.Join("cache", "logs", "vidbridge.log"),
			Level:      "info",
			MaxSize:    20,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// Load reads settings from disk, creating defaults when the file is missing,
// and applies environment overrides last.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return applyEnvOverrides(defaults), nil
	}

	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	s := DefaultSettings()
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Backfill values a hand-edited config may have zeroed.
	if s.Extraction.JobBudgetSec <= 0 {
		s.Extraction.JobBudgetSec = 90
	}
	if s.Extraction.GraceWindowSec <= 0 {
		s.Extraction.GraceWindowSec = 30
	}
	if s.Extraction.MaxConcurrentJobs <= 0 {
		s.Extraction.MaxConcurrentJobs = 32
	}
	if s.Browser.PoolSize <= 0 {
		s.Browser.PoolSize = 4
	}
	if s.Browser.TabsPerProcess <= 0 {
		s.Browser.TabsPerProcess = 8
	}
	if s.Browser.AcquireTimeoutSec <= 0 {
		s.Browser.AcquireTimeoutSec = 15
	}
	if s.Subtitles.CacheMaxBytes <= 0 {
		s.Subtitles.CacheMaxBytes = 64 << 20
	}
	if s.Subtitles.CacheIdleSec <= 0 {
		s.Subtitles.CacheIdleSec = 3600
	}
	if len(s.Proxy.Sources) == 0 {
		s.Proxy.Sources = DefaultSettings().Proxy.Sources
	}

	return applyEnvOverrides(s), nil
}

// Save writes settings to disk, creating the parent directory when needed.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, append(data, '\n'), 0o644)
}

func applyEnvOverrides(s Settings) Settings {
	if v := os.Getenv("VIDBRIDGE_HOST"); v != "" {
		s.Server.Host = v
	}
	if v := os.Getenv("VIDBRIDGE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			s.Server.Port = p
		}
	}
	if v := os.Getenv("VIDBRIDGE_OPENSUBTITLES_URL"); v != "" {
		s.Subtitles.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("VIDBRIDGE_UPSTREAM_UA"); v != "" {
		s.Extraction.UserAgent = v
	}
	if v := os.Getenv("VIDBRIDGE_TMDB_API_KEY"); v != "" {
		s.Catalog.TMDBAPIKey = v
	}
	if v := os.Getenv("VIDBRIDGE_BROWSER_POOL"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			s.Browser.PoolSize = p
		}
	}
	if v := os.Getenv("VIDBRIDGE_CLICK_FALLBACK"); v != "" {
		s.Browser.ClickFallback = v == "1" || strings.EqualFold(v, "true")
	}
	// Extra stream-origin hosts, admitted under every source tag. Useful when
	// an embed host rotates CDN domains faster than the config file.
	if v := os.Getenv("VIDBRIDGE_PROXY_ALLOW"); v != "" {
		extra := []string{}
		for _, host := range strings.Split(v, ",") {
			if host = strings.TrimSpace(host); host != "" {
				extra = append(extra, host)
			}
		}
		for tag, src := range s.Proxy.Sources {
			src.AllowedHosts = append(src.AllowedHosts, extra...)
			s.Proxy.Sources[tag] = src
		}
	}
	return s
}
