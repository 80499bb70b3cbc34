package extraction

import (
	"context"
	"fmt"
	"strings"

	"vidbridge/models"
)

// Emitter reports a phase transition on the job's event stream. Extractors
// call it only with non-terminal phases; the orchestrator owns terminal
// events.
type Emitter func(phase models.Phase, progress int, message string)

// Extractor walks one embed host's chain and yields a playable stream.
type Extractor interface {
	// Server is the tag this extractor serves.
	Server() models.Server
	// EmbedURL builds the host's hop-1 URL for a request.
	EmbedURL(req models.ExtractionRequest) string
	// Extract resolves the request to a stream descriptor, emitting phase
	// progress along the way.
	Extract(ctx context.Context, req models.ExtractionRequest, emit Emitter) (*models.StreamDescriptor, error)
}

// embedPath renders the path suffix shared by both embed hosts:
// movie/{id} or tv/{id}/{season}/{episode}.
func embedPath(req models.ExtractionRequest) string {
	if req.MediaType == models.MediaTypeTV {
		return fmt.Sprintf("tv/%d/%d/%d", req.ContentID, req.Season, req.Episode)
	}
	return fmt.Sprintf("movie/%d", req.ContentID)
}

// streamKindOf infers the stream kind from the URL.
func streamKindOf(streamURL string) models.StreamKind {
	if strings.Contains(strings.ToLower(streamURL), ".mp4") && !strings.Contains(strings.ToLower(streamURL), ".m3u8") {
		return models.StreamKindMP4
	}
	return models.StreamKindHLS
}

// describeStream builds the descriptor for a resolved stream URL, deciding
// proxy routing by origin-host needle match.
func describeStream(streamURL string, needles []string, forceProxy bool) (*models.StreamDescriptor, error) {
	host, err := originHost(streamURL)
	if err != nil {
		return nil, Wrap(KindInternal, "resolved stream has no origin", err)
	}
	requires := forceProxy
	if !requires {
		lower := strings.ToLower(host)
		for _, needle := range needles {
			if needle != "" && strings.Contains(lower, strings.ToLower(needle)) {
				requires = true
				break
			}
		}
	}
	return &models.StreamDescriptor{
		StreamURL:     streamURL,
		StreamKind:    streamKindOf(streamURL),
		OriginHost:    host,
		RequiresProxy: requires,
	}, nil
}
