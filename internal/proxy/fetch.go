package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrNotAllowed marks a host outside the source's allow-list.
type ErrNotAllowed struct {
	Host   string
	Source string
}

func (e *ErrNotAllowed) Error() string {
	return fmt.Sprintf("host %q not allowed for source %q", e.Host, e.Source)
}

// ErrBadRequest marks caller-fault input (invalid URL or unknown source).
type ErrBadRequest struct{ Reason string }

func (e *ErrBadRequest) Error() string { return e.Reason }

// Fetcher performs upstream requests on behalf of the stream proxy.
type Fetcher struct {
	policy *Policy
	client *http.Client
}

func NewFetcher(policy *Policy) *Fetcher {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		ForceAttemptHTTP2:     true,
		// The rewriter needs raw bytes; segments must not be transparently
		// gunzipped or the relayed Content-Length would lie.
		DisableCompression: true,
	}
	return &Fetcher{
		policy: policy,
		client: &http.Client{Transport: transport},
	}
}

// Validate checks the raw url/source pair without fetching.
func (f *Fetcher) Validate(rawURL, source string) (*url.URL, error) {
	if !f.policy.KnownSource(source) {
		return nil, &ErrBadRequest{Reason: fmt.Sprintf("unknown source %q", source)}
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ErrBadRequest{Reason: "url must be absolute http(s)"}
	}
	if !f.policy.Allowed(source, u.Hostname()) {
		return nil, &ErrNotAllowed{Host: u.Hostname(), Source: source}
	}
	return u, nil
}

// Allowed exposes the policy's host check, used when rewriting manifests.
func (f *Fetcher) Allowed(source, host string) bool {
	return f.policy.Allowed(source, host)
}

// Fetch retrieves the upstream resource with forged headers. A 5xx answer is
// retried once after 300ms; the last response is returned either way so the
// handler can mirror the origin status.
func (f *Fetcher) Fetch(ctx context.Context, u *url.URL, source, rangeHeader string) (*http.Response, error) {
	var resp *http.Response
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header = f.policy.Headers(source)
			if rangeHeader != "" {
				req.Header.Set("Range", rangeHeader)
			}
			r, err := f.client.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					return retry.Unrecoverable(ctx.Err())
				}
				return err
			}
			if r.StatusCode >= 500 {
				r.Body.Close()
				resp = nil
				return fmt.Errorf("origin returned %s", r.Status)
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// IsManifest reports whether the upstream response looks like an HLS
// playlist, by declared content type or by URL extension.
func IsManifest(contentType string, u *url.URL) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "mpegurl") || strings.Contains(ct, "application/x-mpegurl") {
		return true
	}
	p := strings.ToLower(u.Path)
	return strings.HasSuffix(p, ".m3u8")
}
