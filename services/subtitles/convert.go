package subtitles

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const maxSubtitleBytes = 2 << 20

// srtTimecodeRegex matches an SRT cue timing line. Commas separate the
// millisecond part; WebVTT wants dots.
var srtTimecodeRegex = regexp.MustCompile(`^(\d{1,2}:\d{2}:\d{2}),(\d{1,3})\s*-->\s*(\d{1,2}:\d{2}:\d{2}),(\d{1,3})(.*)$`)

var cueNumberRegex = regexp.MustCompile(`^\d+$`)

// maybeGunzip transparently decompresses gzip payloads, detected by the
// 1F 8B magic rather than headers, since the download host is inconsistent
// about Content-Encoding.
func maybeGunzip(data []byte) ([]byte, bool, error) {
	if len(data) < 2 || data[0] != 0x1F || data[1] != 0x8B {
		return data, false, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("gzip open: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxSubtitleBytes))
	if err != nil {
		return nil, false, fmt.Errorf("gzip read: %w", err)
	}
	return out, true, nil
}

// decodeText returns valid UTF-8. Payloads that are not UTF-8 are decoded as
// Latin-1, which maps every byte and so never fails; garbled Eastern
// encodings degrade to readable-ish text instead of replacement runes.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

// SRTToVTT converts SubRip text to WebVTT:
//   - WEBVTT header prepended
//   - cue sequence numbers dropped
//   - timecode commas become dots
//   - runs of three or more blank lines collapse to two
//   - inline <i>/<b>/<u> markup passes through untouched
//
// Input already shaped like WebVTT is returned as-is.
func SRTToVTT(text string) string {
	trimmed := strings.TrimPrefix(text, "\uFEFF")
	if strings.HasPrefix(trimmed, "WEBVTT") {
		return trimmed
	}

	lines := strings.Split(strings.ReplaceAll(trimmed, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines)+2)
	out = append(out, "WEBVTT", "")

	prevBlank := true
	blankRun := 2 // the header already contributed a blank; swallow leading ones
	for i, line := range lines {
		clean := strings.TrimRight(line, "\r")

		if m := srtTimecodeRegex.FindStringSubmatch(clean); m != nil {
			out = append(out, fmt.Sprintf("%s.%s --> %s.%s%s", m[1], pad3(m[2]), m[3], pad3(m[4]), m[5]))
			prevBlank = false
			blankRun = 0
			continue
		}

		// A bare number right before a timing line is a cue counter.
		if prevBlank && cueNumberRegex.MatchString(strings.TrimSpace(clean)) && nextIsTimecode(lines, i) {
			continue
		}

		if strings.TrimSpace(clean) == "" {
			blankRun++
			if blankRun <= 2 {
				out = append(out, "")
			}
			prevBlank = true
			continue
		}

		out = append(out, clean)
		prevBlank = false
		blankRun = 0
	}

	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}

func nextIsTimecode(lines []string, i int) bool {
	for j := i + 1; j < len(lines); j++ {
		next := strings.TrimSpace(lines[j])
		if next == "" {
			continue
		}
		return srtTimecodeRegex.MatchString(next)
	}
	return false
}

// pad3 left-pads a millisecond field to the three digits WebVTT requires.
func pad3(ms string) string {
	for len(ms) < 3 {
		ms = "0" + ms
	}
	return ms
}
