package subtitles

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"vidbridge/config"
	"vidbridge/models"
)

// Service searches, scores, downloads and converts subtitles.
type Service struct {
	cfg    config.SubtitleSettings
	client *osClient
	cache  *blobCache
}

func NewService(cfg config.SubtitleSettings) *Service {
	return &Service{
		cfg:    cfg,
		client: newOSClient(cfg),
		cache:  newBlobCache(cfg.CacheMaxBytes, time.Duration(cfg.CacheIdleSec)*time.Second),
	}
}

// ListForIMDb searches subtitles for a title and returns them scored and
// sorted, best first.
func (s *Service) ListForIMDb(ctx context.Context, imdbID string, season, episode int, languages []string) ([]models.SubtitleRef, error) {
	if len(languages) == 0 {
		languages = s.cfg.DefaultLanguages
	}
	langParam := strings.Join(languages, ",")

	raw, err := s.client.search(ctx, imdbID, season, episode, langParam)
	if err != nil {
		return nil, fmt.Errorf("subtitle search for %s: %w", imdbID, err)
	}

	refs := make([]models.SubtitleRef, 0, len(raw))
	for _, entry := range raw {
		if entry.SubDownloadLink == "" {
			continue
		}
		ref := models.SubtitleRef{
			Language:        entry.SubLanguageID,
			LanguageName:    entry.LanguageName,
			DownloadURL:     entry.SubDownloadLink,
			Format:          strings.ToLower(entry.SubFormat),
			SizeBytes:       osInt64(entry.SubSize),
			Rating:          osFloat(entry.SubRating),
			DownloadCount:   osInt(entry.SubDownloadsCnt),
			Trusted:         osBool(entry.FromTrusted),
			HD:              osBool(entry.SubHD),
			HearingImpaired: osBool(entry.SubHearingImpaired),
		}
		ref.QualityScore = QualityScore(ref)
		refs = append(refs, ref)
	}

	sortRefs(refs, languages)
	return refs, nil
}

// QualityScore ranks a candidate on a fixed 0-100 scale. The formula is
// deterministic so identical inputs always sort identically.
func QualityScore(ref models.SubtitleRef) float64 {
	score := 0.0
	if ref.Trusted {
		score += 40
	}
	if ref.HD {
		score += 20
	}
	if ref.Format == "vtt" {
		score += 15
	}
	score += 0.0001 * float64(ref.DownloadCount)
	score += 2 * ref.Rating
	if ref.SizeBytes >= 5<<10 && ref.SizeBytes <= 200<<10 {
		score += 3
	}
	if ref.HearingImpaired {
		score -= 20
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// sortRefs orders by score, then download count, then the caller's language
// preference order.
func sortRefs(refs []models.SubtitleRef, languages []string) {
	langRank := map[string]int{}
	for i, lang := range languages {
		langRank[strings.ToLower(lang)] = i
	}
	rank := func(lang string) int {
		if r, ok := langRank[strings.ToLower(lang)]; ok {
			return r
		}
		return len(languages)
	}
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].QualityScore != refs[j].QualityScore {
			return refs[i].QualityScore > refs[j].QualityScore
		}
		if refs[i].DownloadCount != refs[j].DownloadCount {
			return refs[i].DownloadCount > refs[j].DownloadCount
		}
		return rank(refs[i].Language) < rank(refs[j].Language)
	})
}

// Download fetches a subtitle, decompresses and converts it to WebVTT, and
// caches the result under a content-hash handle.
func (s *Service) Download(ctx context.Context, ref models.SubtitleRef) (*models.ProcessedSubtitle, error) {
	payload, err := s.client.download(ctx, ref.DownloadURL, maxSubtitleBytes)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", ref.DownloadURL, err)
	}

	raw, wasCompressed, err := maybeGunzip(payload)
	if err != nil {
		return nil, err
	}

	// Reject HTML error pages and other non-text payloads the download host
	// serves with a 200.
	if mt := mimetype.Detect(raw); !strings.HasPrefix(mt.String(), "text/") &&
		!mimetype.EqualsAny(mt.String(), "application/octet-stream") {
		return nil, fmt.Errorf("subtitle payload is %s, not text", mt.String())
	}

	vtt := []byte(SRTToVTT(decodeText(raw)))
	handle := s.cache.Put(vtt)
	log.Printf("[subtitles] processed %s (%s, gzip=%t, %d bytes vtt)", ref.DownloadURL, ref.Language, wasCompressed, len(vtt))

	return &models.ProcessedSubtitle{
		Ref:           ref,
		VTTBytes:      vtt,
		BlobHandle:    handle,
		WasCompressed: wasCompressed,
	}, nil
}

// Cached returns a previously processed blob by handle.
func (s *Service) Cached(handle string) ([]byte, bool) {
	return s.cache.Get(handle)
}

// CacheStats reports blob cache occupancy for health reporting.
func (s *Service) CacheStats() (entries int, bytes int64) {
	return s.cache.Stats()
}
