package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vidbridge/handlers"
	"vidbridge/models"
)

type fakeSubtitleService struct {
	refs      []models.SubtitleRef
	processed *models.ProcessedSubtitle
	blobs     map[string][]byte
	err       error
}

func (f *fakeSubtitleService) ListForIMDb(ctx context.Context, imdbID string, season, episode int, languages []string) ([]models.SubtitleRef, error) {
	return f.refs, f.err
}

func (f *fakeSubtitleService) Download(ctx context.Context, ref models.SubtitleRef) (*models.ProcessedSubtitle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.processed, nil
}

func (f *fakeSubtitleService) Cached(handle string) ([]byte, bool) {
	b, ok := f.blobs[handle]
	return b, ok
}

func TestSubtitlesListValidatesIMDbID(t *testing.T) {
	h := handlers.NewSubtitlesHandler(&fakeSubtitleService{}, nil)

	for _, bad := range []string{"", "603", "tt12", "ttABC", "<script>"} {
		req := httptest.NewRequest(http.MethodGet, "/api/subtitles?imdbId="+bad, nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("imdbId=%q: status = %d, want 400", bad, rec.Code)
		}
	}
}

func TestSubtitlesListShape(t *testing.T) {
	h := handlers.NewSubtitlesHandler(&fakeSubtitleService{
		refs: []models.SubtitleRef{
			{Language: "eng", QualityScore: 62, DownloadURL: "https://dl.opensubtitles.org/en/download/1"},
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/subtitles?imdbId=tt0137523&languageId=eng", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Success    bool                 `json:"success"`
		Subtitles  []models.SubtitleRef `json:"subtitles"`
		TotalCount int                  `json:"totalCount"`
		Language   string               `json:"language"`
		Source     string               `json:"source"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.TotalCount != 1 || body.Language != "eng" || body.Source != "opensubtitles" {
		t.Fatalf("body = %+v", body)
	}
}

func TestSubtitlesDownloadHostGate(t *testing.T) {
	h := handlers.NewSubtitlesHandler(&fakeSubtitleService{}, []string{"opensubtitles.org"})

	req := httptest.NewRequest(http.MethodGet, "/api/subtitles/download?url=https%3A%2F%2Fevil.example.com%2Fx.srt.gz", nil)
	rec := httptest.NewRecorder()
	h.Download(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestSubtitlesDownloadServesVTT(t *testing.T) {
	vtt := []byte("WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nhi\n")
	h := handlers.NewSubtitlesHandler(&fakeSubtitleService{
		processed: &models.ProcessedSubtitle{VTTBytes: vtt, BlobHandle: "abc123", WasCompressed: true},
	}, []string{"opensubtitles.org"})

	req := httptest.NewRequest(http.MethodGet, "/api/subtitles/download?url=https%3A%2F%2Fdl.opensubtitles.org%2Fen%2Fdownload%2F1", nil)
	rec := httptest.NewRecorder()
	h.Download(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "WEBVTT\n") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/vtt; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	if rec.Header().Get("X-Subtitle-Handle") != "abc123" {
		t.Errorf("handle header = %q", rec.Header().Get("X-Subtitle-Handle"))
	}
}

func TestSubtitlesDownloadByHandle(t *testing.T) {
	h := handlers.NewSubtitlesHandler(&fakeSubtitleService{
		blobs: map[string][]byte{"abc123": []byte("WEBVTT\n")},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/subtitles/download?handle=abc123", nil)
	rec := httptest.NewRecorder()
	h.Download(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "WEBVTT\n" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/subtitles/download?handle=unknown", nil)
	rec = httptest.NewRecorder()
	h.Download(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown handle status = %d, want 404", rec.Code)
	}
}
