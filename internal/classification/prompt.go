package classification

import (
	"fmt"
	"strings"

	"scribe/internal/transcript"
)

// SystemPrompt instructs the model to answer with index/category pairs only.
const SystemPrompt = `You label segments of a meeting or lecture transcript.
You will receive a list of allowed categories and numbered transcript segments.
Assign exactly one allowed category to every segment.
Respond with JSON only, in the form {"labels":[{"index":0,"category":"question"}]}.
Use the segment numbers exactly as given. Do not invent categories.`

const maxSegmentChars = 600

func buildUserPrompt(categories []string, segments []transcript.Segment, offset int) string {
	var b strings.Builder
	b.WriteString("Allowed categories: ")
	b.WriteString(strings.Join(categories, ", "))
	b.WriteString("\n\nSegments:\n")
	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if len(text) > maxSegmentChars {
			text = text[:maxSegmentChars] + "…"
		}
		speaker := ""
		if seg.Speaker != "" && seg.Speaker != transcript.UnknownSpeaker {
			speaker = " (" + seg.Speaker + ")"
		}
		fmt.Fprintf(&b, "%d%s: %s\n", offset+i, speaker, text)
	}
	return b.String()
}
