package subtitles

import (
	"testing"

	"vidbridge/models"
)

func TestQualityScoreBounds(t *testing.T) {
	cases := []struct {
		name string
		ref  models.SubtitleRef
	}{
		{"zero value", models.SubtitleRef{}},
		{"everything good", models.SubtitleRef{
			Trusted: true, HD: true, Format: "vtt",
			DownloadCount: 1_000_000, Rating: 10, SizeBytes: 50 << 10,
		}},
		{"hearing impaired only", models.SubtitleRef{HearingImpaired: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score := QualityScore(tc.ref)
			if score < 0 || score > 100 {
				t.Errorf("score %v out of [0,100]", score)
			}
		})
	}
}

func TestQualityScoreComponents(t *testing.T) {
	base := QualityScore(models.SubtitleRef{})
	if base != 0 {
		t.Fatalf("empty ref score = %v, want 0", base)
	}

	trusted := QualityScore(models.SubtitleRef{Trusted: true})
	if trusted != 40 {
		t.Errorf("trusted-only score = %v, want 40", trusted)
	}

	goodSize := QualityScore(models.SubtitleRef{SizeBytes: 100 << 10})
	tooBig := QualityScore(models.SubtitleRef{SizeBytes: 1 << 20})
	if goodSize <= tooBig {
		t.Errorf("plausible size (%v) must outscore oversized (%v)", goodSize, tooBig)
	}

	hi := QualityScore(models.SubtitleRef{Trusted: true, HearingImpaired: true})
	if hi >= trusted {
		t.Errorf("hearing-impaired penalty missing: %v >= %v", hi, trusted)
	}
}

func TestQualityScoreDeterministic(t *testing.T) {
	ref := models.SubtitleRef{Trusted: true, Format: "vtt", DownloadCount: 12345, Rating: 7.5, SizeBytes: 80 << 10}
	if QualityScore(ref) != QualityScore(ref) {
		t.Fatal("identical inputs must score identically")
	}
}

func TestSortRefs(t *testing.T) {
	refs := []models.SubtitleRef{
		{Language: "spa", QualityScore: 50, DownloadCount: 100},
		{Language: "eng", QualityScore: 90, DownloadCount: 10},
		{Language: "eng", QualityScore: 50, DownloadCount: 500},
		{Language: "fre", QualityScore: 50, DownloadCount: 100},
	}
	sortRefs(refs, []string{"eng", "fre"})

	if refs[0].QualityScore != 90 {
		t.Fatalf("best score must come first, got %+v", refs[0])
	}
	if refs[1].DownloadCount != 500 {
		t.Errorf("download count must break score ties, got %+v", refs[1])
	}
	// Equal score and count: language preference decides.
	if refs[2].Language != "fre" || refs[3].Language != "spa" {
		t.Errorf("language order = %q, %q; want fre, spa", refs[2].Language, refs[3].Language)
	}
}

func TestOSFieldHelpers(t *testing.T) {
	if osInt("123") != 123 || osInt(" bad ") != 0 {
		t.Error("osInt")
	}
	if osInt64("9000000000") != 9000000000 {
		t.Error("osInt64")
	}
	if osFloat("7.5") != 7.5 {
		t.Error("osFloat")
	}
	if !osBool("1") || osBool("0") || osBool("") {
		t.Error("osBool")
	}
}
