package extraction

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"vidbridge/config"
)

const maxHopBodyBytes = 4 << 20

// hopClient performs the pure-fetch strategy's HTTPS GETs with realistic
// browser headers and no automation tells.
type hopClient struct {
	client   *http.Client
	ua       string
	hopTotal time.Duration
}

func newHopClient(cfg config.ExtractionSettings) *hopClient {
	connect := time.Duration(cfg.HopConnectTimeoutSec) * time.Second
	if connect <= 0 {
		connect = 10 * time.Second
	}
	total := time.Duration(cfg.HopTotalTimeoutSec) * time.Second
	if total <= 0 {
		total = 20 * time.Second
	}
	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout: connect,
		MaxIdleConns:        32,
		IdleConnTimeout:     60 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &hopClient{
		client:   &http.Client{Transport: transport},
		ua:       cfg.UserAgent,
		hopTotal: total,
	}
}

type hopResponse struct {
	Status int
	Body   []byte
}

// get fetches one hop. Referer is the previous page in the chain ("" for
// hop 1). One retry with jittered 250-750ms backoff; 4xx answers are
// returned to the caller rather than retried, because a 404 at hop 1 drives
// the auto-switch policy.
func (c *hopClient) get(ctx context.Context, rawURL, referer string) (*hopResponse, error) {
	hopCtx, cancel := context.WithTimeout(ctx, c.hopTotal)
	defer cancel()

	var out *hopResponse
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(hopCtx, http.MethodGet, rawURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("User-Agent", c.ua)
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")
			req.Header.Set("Upgrade-Insecure-Requests", "1")
			req.Header.Set("Sec-Fetch-Dest", "iframe")
			req.Header.Set("Sec-Fetch-Mode", "navigate")
			req.Header.Set("Sec-Fetch-Site", "cross-site")
			if referer != "" {
				req.Header.Set("Referer", referer)
				req.Header.Set("Sec-Fetch-Site", "same-origin")
			}

			resp, err := c.client.Do(req)
			if err != nil {
				if hopCtx.Err() != nil {
					return retry.Unrecoverable(hopCtx.Err())
				}
				return err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxHopBodyBytes))
			if err != nil {
				return err
			}
			out = &hopResponse{Status: resp.StatusCode, Body: body}
			if resp.StatusCode >= 500 {
				return Wrap(KindOriginFailure, "upstream server error", nil).WithDebug("status", resp.StatusCode)
			}
			return nil
		},
		retry.Context(hopCtx),
		retry.Attempts(2),
		retry.Delay(250*time.Millisecond),
		retry.MaxJitter(500*time.Millisecond),
		retry.DelayType(retry.CombineDelay(retry.FixedDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		// A 5xx with a captured body is still usable for marker checks.
		if out != nil {
			return out, nil
		}
		if hopCtx.Err() != nil && ctx.Err() == nil {
			return nil, Wrap(KindTimeout, "hop timed out", hopCtx.Err())
		}
		return nil, err
	}
	return out, nil
}
