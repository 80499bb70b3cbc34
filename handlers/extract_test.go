package handlers_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vidbridge/handlers"
	"vidbridge/models"
	"vidbridge/services/extraction"
)

// fakeExtractService drives real registry jobs through a scripted worker.
type fakeExtractService struct {
	reg    *extraction.Registry
	script func(svc *fakeExtractService, job *extraction.Job)
	err    error
}

func newFakeExtractService(script func(svc *fakeExtractService, job *extraction.Job)) *fakeExtractService {
	return &fakeExtractService{reg: extraction.NewRegistry(time.Minute), script: script}
}

func (f *fakeExtractService) Start(req models.ExtractionRequest) (*extraction.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	job := f.reg.NewJob()
	go f.script(f, job)
	return job, nil
}

func (f *fakeExtractService) Registry() *extraction.Registry { return f.reg }

func decodeEvents(t *testing.T, body string) []models.ProgressEvent {
	t.Helper()
	var events []models.ProgressEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue // heartbeat
		}
		var ev models.ProgressEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad event line %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestProgressRejectsBadParams(t *testing.T) {
	h := handlers.NewExtractHandler(newFakeExtractService(nil))

	cases := []struct {
		name  string
		query string
	}{
		{"missing movieId", "mediaType=movie"},
		{"bad media type", "mediaType=podcast&movieId=603"},
		{"unknown server", "mediaType=movie&movieId=603&server=dailymotion"},
		{"tv without episode", "mediaType=tv&movieId=1399&seasonId=1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/extract-stream-progress?"+tc.query, nil)
			rec := httptest.NewRecorder()
			h.Progress(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestProgressStreamsToTerminal(t *testing.T) {
	svc := newFakeExtractService(func(_ *fakeExtractService, job *extraction.Job) {
		// Let the handler attach before the first event so the full
		// sequence is observed rather than the snapshot.
		time.Sleep(50 * time.Millisecond)
		job.Emit(models.ProgressEvent{Phase: models.PhaseInitializing, Progress: 5})
		job.Emit(models.ProgressEvent{Phase: models.PhaseConnecting, Progress: 15})
		job.Emit(models.ProgressEvent{Phase: models.PhaseComplete, Progress: 100,
			Result: &models.ExtractResult{Success: true, StreamURL: "https://cdn.example.com/pl.m3u8", RequestID: job.ID}})
	})
	h := handlers.NewExtractHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/extract-stream-progress?mediaType=movie&movieId=603&server=vidsrc.xyz", nil)
	rec := httptest.NewRecorder()
	h.Progress(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}

	events := decodeEvents(t, rec.Body.String())
	if len(events) < 3 {
		t.Fatalf("got %d events, want at least 3", len(events))
	}
	last := events[len(events)-1]
	if last.Phase != models.PhaseComplete || last.Result == nil || !last.Result.Success {
		t.Fatalf("terminal event = %+v", last)
	}
}

func TestProgressSaturationIs429(t *testing.T) {
	svc := newFakeExtractService(func(_ *fakeExtractService, job *extraction.Job) {
		job.Emit(models.ProgressEvent{Phase: models.PhaseError, Progress: 100,
			Error: &models.EventError{Kind: "resource_exhausted", Message: "no browser available", RequestID: job.ID}})
	})
	h := handlers.NewExtractHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/extract-stream-progress?mediaType=movie&movieId=603", nil)
	rec := httptest.NewRecorder()
	h.Progress(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestProgressStartRejectedWhenSaturated(t *testing.T) {
	svc := newFakeExtractService(nil)
	svc.err = extraction.E(extraction.KindResourceExhausted, "extraction capacity reached")
	h := handlers.NewExtractHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/extract-stream-progress?mediaType=movie&movieId=603", nil)
	rec := httptest.NewRecorder()
	h.Progress(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want plain JSON error", ct)
	}
}

func TestProgressFollowsAutoSwitch(t *testing.T) {
	svc := newFakeExtractService(func(f *fakeExtractService, job *extraction.Job) {
		follow := f.reg.NewJob()
		job.SetFollowUp(follow.ID)
		job.Emit(models.ProgressEvent{Phase: models.PhaseAutoSwitch, Progress: 80, Message: "retrying on embed.su"})
		job.FinishSwitched()

		follow.Emit(models.ProgressEvent{Phase: models.PhaseConnecting, Progress: 15})
		follow.Emit(models.ProgressEvent{Phase: models.PhaseComplete, Progress: 100,
			Result: &models.ExtractResult{Success: true, Server: models.ServerEmbedSu, RequestID: follow.ID}})
	})
	h := handlers.NewExtractHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/extract-stream-progress?mediaType=movie&movieId=603", nil)
	rec := httptest.NewRecorder()
	h.Progress(rec, req)

	events := decodeEvents(t, rec.Body.String())
	sawSwitch := false
	ids := map[string]bool{}
	for _, ev := range events {
		ids[ev.RequestID] = true
		if ev.Phase == models.PhaseAutoSwitch {
			sawSwitch = true
		}
	}
	if !sawSwitch {
		t.Fatal("autoswitch event missing from stream")
	}
	if len(ids) != 2 {
		t.Errorf("stream should span two request ids, saw %d", len(ids))
	}
	last := events[len(events)-1]
	if last.Phase != models.PhaseComplete || last.Result == nil || last.Result.Server != models.ServerEmbedSu {
		t.Fatalf("terminal event = %+v", last)
	}
}

func TestProgressReattachByRequestID(t *testing.T) {
	svc := newFakeExtractService(nil)
	job := svc.reg.NewJob()
	job.Emit(models.ProgressEvent{Phase: models.PhaseError, Progress: 100,
		Error: &models.EventError{Kind: "canceled", Message: "caller went away", RequestID: job.ID}})

	h := handlers.NewExtractHandler(svc)
	req := httptest.NewRequest(http.MethodGet, "/extract-stream-progress?requestId="+job.ID, nil)
	rec := httptest.NewRecorder()
	h.Progress(rec, req)

	events := decodeEvents(t, rec.Body.String())
	if len(events) != 1 || events[0].Error == nil || events[0].Error.Kind != "canceled" {
		t.Fatalf("replayed events = %+v", events)
	}
}

func TestProgressUnknownRequestID(t *testing.T) {
	h := handlers.NewExtractHandler(newFakeExtractService(nil))
	req := httptest.NewRequest(http.MethodGet, "/extract-stream-progress?requestId=nope", nil)
	rec := httptest.NewRecorder()
	h.Progress(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestExtractSyncReturnsResult(t *testing.T) {
	svc := newFakeExtractService(func(_ *fakeExtractService, job *extraction.Job) {
		job.Emit(models.ProgressEvent{Phase: models.PhaseComplete, Progress: 100,
			Result: &models.ExtractResult{Success: true, StreamURL: "https://cdn.example.com/pl.m3u8", RequestID: job.ID}})
	})
	h := handlers.NewExtractHandler(svc)

	body := strings.NewReader(`{"mediaType":"movie","movieId":603,"server":"vidsrc"}`)
	req := httptest.NewRequest(http.MethodPost, "/extract-stream", body)
	rec := httptest.NewRecorder()
	h.Extract(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result models.ExtractResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Success || result.StreamURL == "" {
		t.Fatalf("result = %+v", result)
	}
}

func TestExtractSyncEmbedURLBody(t *testing.T) {
	svc := newFakeExtractService(func(_ *fakeExtractService, job *extraction.Job) {
		job.Emit(models.ProgressEvent{Phase: models.PhaseComplete, Progress: 100,
			Result: &models.ExtractResult{Success: true, RequestID: job.ID}})
	})
	h := handlers.NewExtractHandler(svc)

	body := strings.NewReader(`{"url":"https://vidsrc.xyz/embed/tv/1399/1/1"}`)
	req := httptest.NewRequest(http.MethodPost, "/extract-stream", body)
	rec := httptest.NewRecorder()
	h.Extract(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestExtractSyncErrorStatusMapping(t *testing.T) {
	cases := []struct {
		kind string
		want int
	}{
		{"resource_exhausted", http.StatusTooManyRequests},
		{"timeout", http.StatusGatewayTimeout},
		{"pattern_not_found", http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			svc := newFakeExtractService(func(_ *fakeExtractService, job *extraction.Job) {
				job.Emit(models.ProgressEvent{Phase: models.PhaseError, Progress: 100,
					Error: &models.EventError{Kind: tc.kind, Message: "boom", RequestID: job.ID}})
			})
			h := handlers.NewExtractHandler(svc)

			body := strings.NewReader(`{"mediaType":"movie","movieId":603}`)
			req := httptest.NewRequest(http.MethodPost, "/extract-stream", body)
			rec := httptest.NewRecorder()
			h.Extract(rec, req)

			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
