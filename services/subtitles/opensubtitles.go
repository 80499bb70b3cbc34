package subtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"vidbridge/config"
)

const maxAPIResponseBytes = 8 << 20

// osSubtitle is the wire shape of the legacy OpenSubtitles REST search API.
// All numeric fields arrive as strings.
type osSubtitle struct {
	IDSubtitleFile     string `json:"IDSubtitleFile"`
	SubFileName        string `json:"SubFileName"`
	SubFormat          string `json:"SubFormat"`
	SubLanguageID      string `json:"SubLanguageID"`
	LanguageName       string `json:"LanguageName"`
	SubDownloadLink    string `json:"SubDownloadLink"`
	SubtitlesLink      string `json:"SubtitlesLink"`
	SubSize            string `json:"SubSize"`
	SubRating          string `json:"SubRating"`
	SubDownloadsCnt    string `json:"SubDownloadsCnt"`
	SubHearingImpaired string `json:"SubHearingImpaired"`
	SubHD              string `json:"SubHD"`
	FromTrusted        string `json:"FromTrusted"`
}

// osClient talks to the OpenSubtitles REST endpoint. The service requires a
// registered User-Agent; anything else gets a 414-style rejection page.
type osClient struct {
	baseURL string
	ua      string
	client  *http.Client
}

func newOSClient(cfg config.SubtitleSettings) *osClient {
	return &osClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		ua:      cfg.UserAgent,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// search queries subtitles for an IMDb title. The numeric part of the IMDb
// ID goes in the path; season/episode are appended for series.
func (c *osClient) search(ctx context.Context, imdbID string, season, episode int, language string) ([]osSubtitle, error) {
	imdbNum := strings.TrimPrefix(strings.ToLower(imdbID), "tt")

	var sb strings.Builder
	sb.WriteString(c.baseURL)
	sb.WriteString("/search")
	if episode > 0 {
		fmt.Fprintf(&sb, "/episode-%d", episode)
	}
	fmt.Fprintf(&sb, "/imdbid-%s", imdbNum)
	if season > 0 {
		fmt.Fprintf(&sb, "/season-%d", season)
	}
	if language != "" {
		fmt.Fprintf(&sb, "/sublanguageid-%s", language)
	}

	var results []osSubtitle
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, sb.String(), nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("User-Agent", c.ua)
			req.Header.Set("Accept", "application/json")

			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				err := fmt.Errorf("opensubtitles search returned %d", resp.StatusCode)
				if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
					return err
				}
				return retry.Unrecoverable(err)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
			if err != nil {
				return err
			}
			return json.Unmarshal(body, &results)
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(400*time.Millisecond),
		retry.MaxJitter(400*time.Millisecond),
		retry.DelayType(retry.CombineDelay(retry.FixedDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// download fetches one subtitle payload, typically a gzip stream.
func (c *osClient) download(ctx context.Context, downloadURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subtitle download returned %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

// Helpers for the API's stringly-typed numerics. Absent or malformed values
// read as zero.

func osInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func osInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func osFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func osBool(s string) bool {
	return strings.TrimSpace(s) == "1"
}
