package handlers

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"vidbridge/models"
	subtitlesvc "vidbridge/services/subtitles"
)

var imdbIDRegex = regexp.MustCompile(`^tt\d{5,10}$`)

type subtitleService interface {
	ListForIMDb(ctx context.Context, imdbID string, season, episode int, languages []string) ([]models.SubtitleRef, error)
	Download(ctx context.Context, ref models.SubtitleRef) (*models.ProcessedSubtitle, error)
	Cached(handle string) ([]byte, bool)
}

// SubtitlesHandler serves subtitle search and the download/convert endpoint.
type SubtitlesHandler struct {
	Service subtitleService
	// downloadHosts limits which upstreams the download endpoint will fetch.
	downloadHosts []string
}

var _ subtitleService = (*subtitlesvc.Service)(nil)

func NewSubtitlesHandler(s subtitleService, downloadHosts []string) *SubtitlesHandler {
	if len(downloadHosts) == 0 {
		downloadHosts = []string{"opensubtitles.org"}
	}
	return &SubtitlesHandler{Service: s, downloadHosts: downloadHosts}
}

// List handles GET /api/subtitles?imdbId=…&languageId=…[&season=&episode=].
func (h *SubtitlesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	imdbID := strings.ToLower(strings.TrimSpace(q.Get("imdbId")))
	if !imdbIDRegex.MatchString(imdbID) {
		writeJSONError(w, http.StatusBadRequest, "imdbId must look like tt0137523")
		return
	}

	var languages []string
	if lang := q.Get("languageId"); lang != "" {
		languages = strings.Split(lang, ",")
	}
	season, _ := strconv.Atoi(q.Get("season"))
	episode, _ := strconv.Atoi(q.Get("episode"))

	subs, err := h.Service.ListForIMDb(r.Context(), imdbID, season, episode, languages)
	if err != nil {
		log.Printf("[subtitles-handler] search %s failed: %v", imdbID, err)
		writeJSONError(w, http.StatusBadGateway, "subtitle search failed")
		return
	}

	language := "eng"
	if len(languages) > 0 {
		language = languages[0]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"subtitles":  subs,
		"totalCount": len(subs),
		"language":   language,
		"source":     "opensubtitles",
	})
}

// Download handles GET /api/subtitles/download?url=… (or ?handle=… for a
// previously processed blob). The payload is decompressed and converted to
// WebVTT before it leaves.
func (h *SubtitlesHandler) Download(w http.ResponseWriter, r *http.Request) {
	if handle := r.URL.Query().Get("handle"); handle != "" {
		if vtt, ok := h.Service.Cached(handle); ok {
			serveVTT(w, vtt)
			return
		}
		writeJSONError(w, http.StatusNotFound, "unknown or expired handle")
		return
	}

	rawURL := r.URL.Query().Get("url")
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		writeJSONError(w, http.StatusBadRequest, "url must be absolute http(s)")
		return
	}
	if !h.allowedHost(u.Hostname()) {
		writeJSONError(w, http.StatusForbidden, "host not allowed for subtitle download")
		return
	}

	processed, err := h.Service.Download(r.Context(), models.SubtitleRef{DownloadURL: rawURL})
	if err != nil {
		log.Printf("[subtitles-handler] download %s failed: %v", rawURL, err)
		writeJSONError(w, http.StatusBadGateway, "subtitle download failed")
		return
	}
	w.Header().Set("X-Subtitle-Handle", processed.BlobHandle)
	serveVTT(w, processed.VTTBytes)
}

func (h *SubtitlesHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *SubtitlesHandler) allowedHost(host string) bool {
	host = strings.ToLower(host)
	for _, allowed := range h.downloadHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func serveVTT(w http.ResponseWriter, vtt []byte) {
	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Content-Length", strconv.Itoa(len(vtt)))
	_, _ = w.Write(vtt)
}
