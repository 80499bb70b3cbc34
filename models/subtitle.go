package models

// SubtitleRef describes one downloadable subtitle found for a title.
type SubtitleRef struct {
	Language        string  `json:"language"`     // ISO 639-2/3 code, e.g. "eng"
	LanguageName    string  `json:"languageName"` // e.g. "English"
	DownloadURL     string  `json:"downloadUrl"`
	Format          string  `json:"format"` // "srt" or "vtt"
	SizeBytes       int64   `json:"sizeBytes"`
	Rating          float64 `json:"rating"`
	DownloadCount   int     `json:"downloadCount"`
	QualityScore    float64 `json:"qualityScore"` // always within [0,100]
	Trusted         bool    `json:"trusted"`
	HD              bool    `json:"hd"`
	HearingImpaired bool    `json:"hearingImpaired"`
}

// ProcessedSubtitle is a subtitle fetched, decompressed and converted to
// WebVTT, plus an opaque handle the caller can use to re-read the bytes
// without re-fetching.
type ProcessedSubtitle struct {
	Ref           SubtitleRef `json:"ref"`
	VTTBytes      []byte      `json:"-"`
	BlobHandle    string      `json:"blobHandle"`
	WasCompressed bool        `json:"wasCompressed"`
}
