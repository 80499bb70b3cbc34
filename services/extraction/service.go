package extraction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sourcegraph/conc/panics"

	"vidbridge/config"
	"vidbridge/internal/metrics"
	"vidbridge/models"
	"vidbridge/services/browser"
)

// CatalogResolver maps internal content IDs to IMDb IDs for subtitle lookup.
type CatalogResolver interface {
	IMDbID(ctx context.Context, mediaType models.MediaType, contentID int) (string, error)
}

// SubtitleLister fetches subtitle candidates for a title.
type SubtitleLister interface {
	ListForIMDb(ctx context.Context, imdbID string, season, episode int, languages []string) ([]models.SubtitleRef, error)
}

// Service runs extraction jobs and publishes their progress.
type Service struct {
	cfg        config.ExtractionSettings
	registry   *Registry
	extractors map[models.Server]Extractor
	hops       *hopClient

	catalog   CatalogResolver
	subtitles SubtitleLister
	subLangs  []string
}

// NewService wires the engine. catalog and subtitles may be nil; the
// subtitles phase then reports none found.
func NewService(cfg config.ExtractionSettings, bcfg config.BrowserSettings, driver browser.Driver, catalog CatalogResolver, subtitles SubtitleLister, subLangs []string) *Service {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 32
	}
	s := &Service{
		cfg:      cfg,
		registry: NewRegistry(time.Duration(cfg.GraceWindowSec) * time.Second),
		hops:     newHopClient(cfg),
		extractors: map[models.Server]Extractor{
			models.ServerVidsrc:  newVidsrcExtractor(cfg, bcfg, driver),
			models.ServerEmbedSu: newEmbedSuExtractor(cfg, bcfg, driver),
		},
		catalog:   catalog,
		subtitles: subtitles,
		subLangs:  subLangs,
	}
	return s
}

// Registry exposes job lookup for the progress endpoints.
func (s *Service) Registry() *Registry { return s.registry }

// Start validates the request and launches its extraction job.
func (s *Service) Start(req models.ExtractionRequest) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, Wrap(KindInvalidParams, err.Error(), err)
	}
	if _, ok := s.extractors[req.Server]; !ok {
		return nil, E(KindInvalidParams, fmt.Sprintf("no extractor for server %q", req.Server))
	}
	if s.registry.ActiveCount() >= s.cfg.MaxConcurrentJobs {
		return nil, E(KindResourceExhausted, "extraction capacity reached")
	}
	job := s.registry.NewJob()
	s.launch(job, req, false)
	return job, nil
}

// launch runs one job in the background under the whole-job budget.
func (s *Service) launch(job *Job, req models.ExtractionRequest, switched bool) {
	budget := time.Duration(s.cfg.JobBudgetSec) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	job.Bind(cancel)

	go func() {
		defer cancel()
		var pc panics.Catcher
		pc.Try(func() { s.run(ctx, job, req, switched) })
		if r := pc.Recovered(); r != nil {
			log.Printf("[extract] job %s panicked: %v", job.ID, r)
			s.fail(job, req, E(KindInternal, "extraction worker crashed"))
		}
	}()
}

func (s *Service) run(ctx context.Context, job *Job, req models.ExtractionRequest, switched bool) {
	started := time.Now()
	emit := func(phase models.Phase, progress int, message string) {
		job.Emit(models.ProgressEvent{Phase: phase, Progress: progress, Message: message})
	}

	emit(models.PhaseInitializing, 5, fmt.Sprintf("starting extraction on %s", req.Server))

	desc, err := s.extractors[req.Server].Extract(ctx, req, emit)
	if err != nil {
		if !switched && req.Server == models.ServerVidsrc && KindOf(err) == KindNavigationError {
			s.autoSwitch(job, req, err)
			metrics.ExtractionJobsTotal.WithLabelValues(string(req.Server), "autoswitch").Inc()
			metrics.ExtractionDuration.WithLabelValues(string(req.Server)).Observe(time.Since(started).Seconds())
			return
		}
		s.fail(job, req, err)
		metrics.ExtractionDuration.WithLabelValues(string(req.Server)).Observe(time.Since(started).Seconds())
		return
	}

	emit(models.PhaseSubtitles, 85, "looking up subtitles")
	subs := s.lookupSubtitles(ctx, req)

	if !desc.RequiresProxy {
		emit(models.PhaseValidating, 90, "validating playlist")
		if verr := validatePlaylist(ctx, s.hops, desc.StreamURL); verr != nil {
			// The player may still cope with what the validator could not;
			// flag it and move on.
			log.Printf("[extract] job %s playlist validation failed: %v", job.ID, verr)
		}
	} else {
		emit(models.PhaseValidating, 90, "stream routed through proxy")
	}

	emit(models.PhaseFinalizing, 95, "assembling result")
	result := &models.ExtractResult{
		Success:       true,
		StreamURL:     desc.StreamURL,
		StreamKind:    desc.StreamKind,
		Server:        req.Server,
		RequiresProxy: desc.RequiresProxy,
		Subtitles:     models.SubtitleBundle{Found: len(subs), URLs: subs},
		RequestID:     job.ID,
	}
	job.Emit(models.ProgressEvent{
		Phase:    models.PhaseComplete,
		Progress: 100,
		Message:  "stream ready",
		Result:   result,
	})

	metrics.ExtractionJobsTotal.WithLabelValues(string(req.Server), "success").Inc()
	metrics.ExtractionDuration.WithLabelValues(string(req.Server)).Observe(time.Since(started).Seconds())
	log.Printf("[extract] job %s complete via %s in %s (proxy=%t)", job.ID, req.Server, time.Since(started).Round(time.Millisecond), desc.RequiresProxy)
}

// autoSwitch hands the request to the backup host under a new job. The
// original job's watchers learn the follow-up ID from the autoswitch event
// and continue there; the switch happens at most once per request.
func (s *Service) autoSwitch(job *Job, req models.ExtractionRequest, cause error) {
	backupReq := req
	backupReq.Server = models.ServerEmbedSu

	follow := s.registry.NewJob()
	job.SetFollowUp(follow.ID)
	log.Printf("[extract] job %s: primary host failed (%v), switching to %s as job %s", job.ID, cause, backupReq.Server, follow.ID)

	job.Emit(models.ProgressEvent{
		Phase:    models.PhaseAutoSwitch,
		Progress: 80,
		Message:  fmt.Sprintf("primary host unavailable, retrying on %s", backupReq.Server),
	})
	job.FinishSwitched()

	s.launch(follow, backupReq, true)
}

// fail terminates the job with a classified error event.
func (s *Service) fail(job *Job, req models.ExtractionRequest, err error) {
	kind := KindOf(err)
	// Emit clamps progress up to the last observed value, so the error
	// frame reports wherever the job actually got to.
	ev := models.ProgressEvent{
		Phase:    models.PhaseError,
		Progress: 0,
		Error: &models.EventError{
			Kind:      string(kind),
			Message:   userMessage(err),
			RequestID: job.ID,
		},
	}
	var ee *Error
	if errors.As(err, &ee) && len(ee.Debug) > 0 {
		ev.Error.Debug = ee.Debug
	}
	job.Emit(ev)

	metrics.ExtractionJobsTotal.WithLabelValues(string(req.Server), string(kind)).Inc()
	log.Printf("[extract] job %s failed (%s): %v", job.ID, kind, err)
}

// lookupSubtitles is best effort; a failure never fails the job.
func (s *Service) lookupSubtitles(ctx context.Context, req models.ExtractionRequest) []models.SubtitleRef {
	if s.catalog == nil || s.subtitles == nil {
		return nil
	}
	imdbID, err := s.catalog.IMDbID(ctx, req.MediaType, req.ContentID)
	if err != nil || imdbID == "" {
		if err != nil {
			log.Printf("[extract] imdb lookup for %d failed: %v", req.ContentID, err)
		}
		return nil
	}
	subs, err := s.subtitles.ListForIMDb(ctx, imdbID, req.Season, req.Episode, s.subLangs)
	if err != nil {
		log.Printf("[extract] subtitle lookup for %s failed: %v", imdbID, err)
		return nil
	}
	return subs
}

// userMessage strips wrapped causes down to the short message.
func userMessage(err error) string {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Message
	}
	return err.Error()
}
