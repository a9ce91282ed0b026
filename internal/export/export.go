package export

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"scribe/internal/fileutil"
	"scribe/internal/services"
	"scribe/internal/transcript"
)

// Supported format names.
const (
	FormatJSON = "json"
	FormatText = "txt"
	FormatSRT  = "srt"
	FormatVTT  = "vtt"
)

// BaseName is the file stem used for every format.
const BaseName = "transcript"

// Formats lists every supported format.
var Formats = []string{FormatJSON, FormatText, FormatSRT, FormatVTT}

// DegradedStage records a stage whose output is a placeholder.
type DegradedStage struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Document is the exported transcript.
type Document struct {
	RunID       string               `json:"run_id"`
	Source      string               `json:"source,omitempty"`
	Duration    float64              `json:"duration_seconds"`
	Language    string               `json:"language,omitempty"`
	GeneratedAt time.Time            `json:"generated_at"`
	Speakers    []string             `json:"speakers,omitempty"`
	Categories  map[string]int       `json:"categories,omitempty"`
	Degraded    []DegradedStage      `json:"degraded,omitempty"`
	Segments    []transcript.Segment `json:"segments"`
}

// IsSupported reports whether format can be rendered.
func IsSupported(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Write renders doc in each format into dir and returns the written paths in
// the order given.
func Write(dir string, doc Document, formats []string) ([]string, error) {
	if len(formats) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "export", "write", "no formats requested", nil)
	}
	paths := make([]string, 0, len(formats))
	for _, format := range formats {
		data, err := Render(doc, format)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, BaseName+"."+format)
		if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
			return paths, services.Wrap(services.ErrValidation, "export", "write", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Render returns doc in format.
func Render(doc Document, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "export", "render json", "", err)
		}
		return append(data, '\n'), nil
	case FormatText:
		return []byte(renderText(doc.Segments)), nil
	case FormatSRT:
		return []byte(renderCues(doc.Segments, false)), nil
	case FormatVTT:
		return []byte(renderCues(doc.Segments, true)), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "export", "render",
			fmt.Sprintf("unsupported format %q", format), nil)
	}
}

// renderText groups consecutive segments by the same speaker into one
// paragraph.
func renderText(segments []transcript.Segment) string {
	var b strings.Builder
	current := ""
	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		speaker := seg.Speaker
		if i == 0 || speaker != current || speaker == "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "[%s]", clock(seg.Start))
			if speaker != "" {
				fmt.Fprintf(&b, " %s:", speaker)
			}
			b.WriteByte(' ')
			current = speaker
		} else {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	return b.String()
}

func renderCues(segments []transcript.Segment, vtt bool) string {
	var b strings.Builder
	if vtt {
		b.WriteString("WEBVTT\n\n")
	}
	n := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		n++
		if vtt {
			fmt.Fprintf(&b, "%s --> %s\n", cueTimestamp(seg.Start, '.'), cueTimestamp(seg.End, '.'))
			if seg.Speaker != "" {
				fmt.Fprintf(&b, "<v %s>%s\n\n", seg.Speaker, text)
			} else {
				fmt.Fprintf(&b, "%s\n\n", text)
			}
			continue
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n", n, cueTimestamp(seg.Start, ','), cueTimestamp(seg.End, ','))
		if seg.Speaker != "" {
			fmt.Fprintf(&b, "%s: %s\n\n", seg.Speaker, text)
		} else {
			fmt.Fprintf(&b, "%s\n\n", text)
		}
	}
	return b.String()
}

// cueTimestamp formats seconds as HH:MM:SS<sep>mmm.
func cueTimestamp(seconds float64, sep byte) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(math.Round(seconds * 1000))
	h := millis / 3_600_000
	m := (millis / 60_000) % 60
	s := (millis / 1000) % 60
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms)
}

func clock(seconds float64) string {
	total := int64(math.Max(0, math.Floor(seconds)))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
