package models

import (
	"fmt"
	"strings"
)

// MediaType identifies the kind of content being extracted.
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// ParseMediaType normalizes a caller-supplied media type string.
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies":
		return MediaTypeMovie, nil
	case "tv", "series", "show":
		return MediaTypeTV, nil
	default:
		return "", fmt.Errorf("unknown media type %q", s)
	}
}

// Server identifies which embed host chain the engine should walk.
type Server string

const (
	// ServerVidsrc is the primary embed host (vidsrc.xyz).
	ServerVidsrc Server = "vidsrc"
	// ServerEmbedSu is the backup embed host (embed.su).
	ServerEmbedSu Server = "embed.su"
)

// ParseServer accepts the aliases callers actually send: the bare tag,
// the host name, or primary/backup.
func ParseServer(s string) (Server, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "vidsrc", "vidsrc.xyz", "primary":
		return ServerVidsrc, nil
	case "embed.su", "embedsu", "backup":
		return ServerEmbedSu, nil
	default:
		return "", fmt.Errorf("unknown server %q", s)
	}
}

// ExtractionRequest is the immutable input for one extraction job.
type ExtractionRequest struct {
	Server    Server    `json:"server"`
	MediaType MediaType `json:"mediaType"`
	ContentID int       `json:"movieId"`
	Season    int       `json:"seasonId,omitempty"`
	Episode   int       `json:"episodeId,omitempty"`
}

// Validate enforces the parameter constraints of the public surface.
func (r ExtractionRequest) Validate() error {
	if r.ContentID <= 0 {
		return fmt.Errorf("movieId must be a positive integer")
	}
	switch r.MediaType {
	case MediaTypeMovie:
	case MediaTypeTV:
		if r.Season <= 0 || r.Episode <= 0 {
			return fmt.Errorf("seasonId and episodeId are required positive integers for tv")
		}
	default:
		return fmt.Errorf("mediaType must be movie or tv")
	}
	switch r.Server {
	case ServerVidsrc, ServerEmbedSu:
	default:
		return fmt.Errorf("unknown server %q", r.Server)
	}
	return nil
}

// StreamKind distinguishes HLS playlists from direct MP4 files.
type StreamKind string

const (
	StreamKindHLS StreamKind = "hls"
	StreamKindMP4 StreamKind = "mp4"
)

// StreamDescriptor is the product of a successful extraction.
type StreamDescriptor struct {
	StreamURL     string        `json:"streamUrl"`
	StreamKind    StreamKind    `json:"streamKind"`
	OriginHost    string        `json:"originHost"`
	RequiresProxy bool          `json:"requiresProxy"`
	Subtitles     []SubtitleRef `json:"subtitles,omitempty"`
}

// ExtractResult is the terminal payload of a completed job, shaped for the
// web player.
type ExtractResult struct {
	Success       bool           `json:"success"`
	StreamURL     string         `json:"streamUrl"`
	StreamKind    StreamKind     `json:"streamKind"`
	Server        Server         `json:"server"`
	RequiresProxy bool           `json:"requiresProxy"`
	Subtitles     SubtitleBundle `json:"subtitles"`
	RequestID     string         `json:"requestId"`
}

// SubtitleBundle wraps the subtitle refs attached to an extraction result.
type SubtitleBundle struct {
	Found int           `json:"found"`
	URLs  []SubtitleRef `json:"urls"`
}
