package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"vidbridge/internal/metrics"
	"vidbridge/internal/proxy"
)

// ProxyPath is the public mount point of the stream proxy; rewritten
// manifest URIs point back at it.
const ProxyPath = "/stream-proxy"

// relayedHeaders are the only origin response headers passed to the caller.
var relayedHeaders = []string{"Content-Type", "Content-Length", "Cache-Control", "Content-Range", "Accept-Ranges"}

// StreamProxyHandler relays upstream media through the allow-listed,
// header-forging proxy, rewriting HLS manifests on the way through.
type StreamProxyHandler struct {
	Fetcher *proxy.Fetcher
}

func NewStreamProxyHandler(f *proxy.Fetcher) *StreamProxyHandler {
	return &StreamProxyHandler{Fetcher: f}
}

// Proxy handles GET /stream-proxy?url=…&source=….
func (h *StreamProxyHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	source := r.URL.Query().Get("source")

	u, err := h.Fetcher.Validate(rawURL, source)
	if err != nil {
		var notAllowed *proxy.ErrNotAllowed
		if errors.As(err, &notAllowed) {
			metrics.ProxyRequestsTotal.WithLabelValues(source, "403").Inc()
			writeJSONError(w, http.StatusForbidden, err.Error())
			return
		}
		metrics.ProxyRequestsTotal.WithLabelValues(source, "400").Inc()
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.Fetcher.Fetch(r.Context(), u, source, r.Header.Get("Range"))
	if err != nil {
		metrics.ProxyRequestsTotal.WithLabelValues(source, "502").Inc()
		log.Printf("[stream-proxy] upstream %s failed: %v", u.Host, err)
		writeJSONError(w, http.StatusBadGateway, "origin fetch failed")
		return
	}
	defer resp.Body.Close()

	metrics.ProxyRequestsTotal.WithLabelValues(source, strconv.Itoa(resp.StatusCode)).Inc()

	w.Header().Set("Access-Control-Allow-Origin", "*")

	if proxy.IsManifest(resp.Header.Get("Content-Type"), u) {
		h.relayManifest(w, resp, u, source)
		return
	}

	for _, name := range relayedHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	n, err := io.Copy(w, resp.Body)
	metrics.ProxyBytesTotal.WithLabelValues(source).Add(float64(n))
	if err != nil {
		log.Printf("[stream-proxy] relay of %s aborted after %d bytes: %v", u.Host, n, err)
	}
}

// relayManifest buffers the playlist, rewrites its URIs to point back at
// this proxy, and sends it with a corrected Content-Length.
func (h *StreamProxyHandler) relayManifest(w http.ResponseWriter, resp *http.Response, u *url.URL, source string) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "manifest read failed")
		return
	}

	rewritten := proxy.RewriteManifest(body, u, ProxyPath, source, func(host string) bool {
		return h.Fetcher.Allowed(source, host)
	})

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/vnd.apple.mpegurl"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(rewritten)))
	if cc := resp.Header.Get("Cache-Control"); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	w.WriteHeader(resp.StatusCode)

	n, _ := w.Write(rewritten)
	metrics.ProxyBytesTotal.WithLabelValues(source).Add(float64(n))
}

func (h *StreamProxyHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

const maxManifestBytes = 4 << 20
