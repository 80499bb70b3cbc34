package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vidbridge/models"
	"vidbridge/services/extraction"
)

const heartbeatInterval = 15 * time.Second

type extractService interface {
	Start(req models.ExtractionRequest) (*extraction.Job, error)
	Registry() *extraction.Registry
}

// ExtractHandler serves the extraction endpoints: the streaming progress
// surface and its synchronous variant.
type ExtractHandler struct {
	Service extractService
}

var _ extractService = (*extraction.Service)(nil)

func NewExtractHandler(s extractService) *ExtractHandler {
	return &ExtractHandler{Service: s}
}

// Progress handles GET /extract-stream-progress. It starts a job (or, with
// requestId, re-attaches to one) and streams newline-framed JSON events
// until the terminal event, heartbeating while the engine works. When the
// job auto-switches to the backup host the stream continues seamlessly with
// the follow-up job's events.
func (h *ExtractHandler) Progress(w http.ResponseWriter, r *http.Request) {
	var (
		job     *extraction.Job
		starter bool
	)

	if reqID := r.URL.Query().Get("requestId"); reqID != "" {
		existing, ok := h.Service.Registry().Get(reqID)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "unknown requestId")
			return
		}
		job = existing
	} else {
		req, err := parseExtractionQuery(r.URL.Query())
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		started, err := h.Service.Start(req)
		if err != nil {
			writeJSONError(w, errorStatus(string(extraction.KindOf(err))), err.Error())
			return
		}
		job = started
		starter = true
		log.Printf("[extract-handler] job %s started: %s %d server=%s", job.ID, req.MediaType, req.ContentID, req.Server)
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	rc := http.NewResponseController(w)
	// Long-lived stream; the server-level write deadline must not apply.
	_ = rc.SetWriteDeadline(time.Time{})

	watcher := job.Attach()
	defer func() { watcher.Close() }()

	enc := json.NewEncoder(w)
	wroteHeader := false

	for {
		ev, ok, err := watcher.Next(r.Context(), heartbeatInterval)
		if err != nil {
			// Caller went away. The starter's disconnect cancels the job;
			// replay watchers leave it running.
			if starter {
				job.Cancel()
				log.Printf("[extract-handler] job %s: caller disconnected, canceling", job.ID)
			}
			return
		}
		if !ok {
			if !wroteHeader {
				w.WriteHeader(http.StatusOK)
				wroteHeader = true
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			_ = rc.Flush()
			continue
		}

		if !wroteHeader {
			// Saturation before anything streamed surfaces as a plain 429.
			if ev.Error != nil && ev.Error.Kind == string(extraction.KindResourceExhausted) {
				writeJSONError(w, http.StatusTooManyRequests, ev.Error.Message)
				return
			}
			w.WriteHeader(http.StatusOK)
			wroteHeader = true
		}

		if err := enc.Encode(ev); err != nil {
			if starter {
				job.Cancel()
			}
			return
		}
		_ = rc.Flush()

		if ev.Phase == models.PhaseAutoSwitch {
			follow, ok := h.Service.Registry().Get(job.FollowUp())
			if !ok {
				return
			}
			watcher.Close()
			job = follow
			watcher = job.Attach()
			continue
		}
		if ev.Phase.Terminal() {
			return
		}
	}
}

// Extract handles POST /extract-stream: same contract, one JSON body.
func (h *ExtractHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL       string `json:"url,omitempty"`
		MediaType string `json:"mediaType,omitempty"`
		MovieID   int    `json:"movieId,omitempty"`
		SeasonID  int    `json:"seasonId,omitempty"`
		EpisodeID int    `json:"episodeId,omitempty"`
		Server    string `json:"server,omitempty"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		req models.ExtractionRequest
		err error
	)
	if body.URL != "" {
		req, err = parseEmbedURL(body.URL)
	} else {
		req, err = buildExtractionRequest(body.MediaType, body.Server, body.MovieID, body.SeasonID, body.EpisodeID)
	}
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.Service.Start(req)
	if err != nil {
		writeJSONError(w, errorStatus(string(extraction.KindOf(err))), err.Error())
		return
	}

	watcher := job.Attach()
	defer func() { watcher.Close() }()

	for {
		ev, ok, err := watcher.Next(r.Context(), heartbeatInterval)
		if err != nil {
			job.Cancel()
			return
		}
		if !ok {
			continue
		}

		if ev.Phase == models.PhaseAutoSwitch {
			follow, ok := h.Service.Registry().Get(job.FollowUp())
			if !ok {
				writeJSONError(w, http.StatusBadGateway, "auto-switch lost its follow-up job")
				return
			}
			watcher.Close()
			job = follow
			watcher = job.Attach()
			continue
		}

		switch {
		case ev.Result != nil:
			writeJSON(w, http.StatusOK, ev.Result)
			return
		case ev.Error != nil:
			writeJSON(w, errorStatus(ev.Error.Kind), map[string]any{
				"success": false,
				"error":   ev.Error,
			})
			return
		case ev.Phase.Terminal():
			writeJSONError(w, http.StatusBadGateway, "job ended without a result")
			return
		}
	}
}

func (h *ExtractHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// errorStatus maps terminal error kinds to HTTP statuses for the sync
// endpoint.
func errorStatus(kind string) int {
	switch extraction.Kind(kind) {
	case extraction.KindInvalidParams:
		return http.StatusBadRequest
	case extraction.KindResourceExhausted:
		return http.StatusTooManyRequests
	case extraction.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func parseExtractionQuery(q url.Values) (models.ExtractionRequest, error) {
	movieID, _ := strconv.Atoi(q.Get("movieId"))
	seasonID, _ := strconv.Atoi(q.Get("seasonId"))
	episodeID, _ := strconv.Atoi(q.Get("episodeId"))
	return buildExtractionRequest(q.Get("mediaType"), q.Get("server"), movieID, seasonID, episodeID)
}

func buildExtractionRequest(mediaType, server string, movieID, seasonID, episodeID int) (models.ExtractionRequest, error) {
	mt, err := models.ParseMediaType(mediaType)
	if err != nil {
		return models.ExtractionRequest{}, err
	}
	srv, err := models.ParseServer(server)
	if err != nil {
		return models.ExtractionRequest{}, err
	}
	req := models.ExtractionRequest{
		Server:    srv,
		MediaType: mt,
		ContentID: movieID,
		Season:    seasonID,
		Episode:   episodeID,
	}
	if err := req.Validate(); err != nil {
		return models.ExtractionRequest{}, err
	}
	return req, nil
}

// parseEmbedURL accepts a full embed page URL and derives the request from
// its host and path: /embed/movie/{id} or /embed/tv/{id}/{season}/{episode}.
func parseEmbedURL(raw string) (models.ExtractionRequest, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return models.ExtractionRequest{}, errors.New("url must be an absolute embed page URL")
	}
	srv, err := models.ParseServer(strings.TrimPrefix(strings.ToLower(u.Hostname()), "www."))
	if err != nil {
		return models.ExtractionRequest{}, fmt.Errorf("unsupported embed host %q", u.Hostname())
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "embed" {
		return models.ExtractionRequest{}, fmt.Errorf("unrecognized embed path %q", u.Path)
	}
	id, _ := strconv.Atoi(parts[2])
	switch parts[1] {
	case "movie":
		return buildExtractionRequest("movie", string(srv), id, 0, 0)
	case "tv":
		if len(parts) < 5 {
			return models.ExtractionRequest{}, fmt.Errorf("tv embed path needs season and episode")
		}
		season, _ := strconv.Atoi(parts[3])
		episode, _ := strconv.Atoi(parts[4])
		return buildExtractionRequest("tv", string(srv), id, season, episode)
	default:
		return models.ExtractionRequest{}, fmt.Errorf("unrecognized embed path %q", u.Path)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}
