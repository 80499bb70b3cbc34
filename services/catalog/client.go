package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"vidbridge/config"
	"vidbridge/models"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

// Client resolves internal (TMDB) content IDs to IMDb IDs. That mapping is
// the only catalog data the extraction pipeline needs, so the client stays
// deliberately small.
type Client struct {
	apiKey   string
	language string
	httpc    *http.Client

	mu   sync.Mutex
	memo map[string]string // "movie/603" -> "tt0133093"
}

func NewClient(cfg config.CatalogSettings, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		apiKey:   strings.TrimSpace(cfg.TMDBAPIKey),
		language: cfg.Language,
		httpc:    httpc,
		memo:     map[string]string{},
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type externalIDsResponse struct {
	IMDbID string `json:"imdb_id"`
}

// IMDbID maps a TMDB content ID to its IMDb ID via the external_ids
// endpoint. Results are memoized for the process lifetime: the mapping never
// changes.
func (c *Client) IMDbID(ctx context.Context, mediaType models.MediaType, contentID int) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("tmdb api key not configured")
	}

	kind := "movie"
	if mediaType == models.MediaTypeTV {
		kind = "tv"
	}
	key := fmt.Sprintf("%s/%d", kind, contentID)

	c.mu.Lock()
	if id, ok := c.memo[key]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	endpoint := fmt.Sprintf("%s/%s/%d/external_ids?api_key=%s", tmdbBaseURL, kind, contentID, url.QueryEscape(c.apiKey))

	var out externalIDsResponse
	if err := c.doGET(ctx, endpoint, &out); err != nil {
		return "", err
	}
	if out.IMDbID == "" {
		return "", fmt.Errorf("no imdb id for tmdb %s", key)
	}

	c.mu.Lock()
	c.memo[key] = out.IMDbID
	c.mu.Unlock()
	return out.IMDbID, nil
}

func (c *Client) doGET(ctx context.Context, endpoint string, v any) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("tmdb request failed: %s", resp.Status)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("tmdb request failed: %s", resp.Status))
			}
			return json.NewDecoder(resp.Body).Decode(v)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
