package format

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"callpipe/internal/stages/transcribe"
)

// FormatTime renders seconds as HH:MM:SS.
func FormatTime(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

// languageName turns a BCP 47 tag like "cs" into a display name. Unknown
// tags fall through unchanged.
func languageName(code string) string {
	if code == "" {
		return "unknown"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return display.English.Languages().Name(tag)
}

// RenderTranscript renders one redacted transcript as a Markdown document.
func RenderTranscript(t transcribe.Transcript, includeMetadata bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Recording %s\n\n", t.RecordingID)
	if t.CallID != "" {
		fmt.Fprintf(&b, "*Part of call %s*\n\n", t.CallID)
	}

	if includeMetadata {
		b.WriteString("## Metadata\n\n")
		if t.DurationS > 0 {
			fmt.Fprintf(&b, "- **Duration:** %s\n", FormatTime(t.DurationS))
		}
		fmt.Fprintf(&b, "- **Language:** %s\n", languageName(t.Language))
		if t.Model != "" {
			fmt.Fprintf(&b, "- **Model:** %s\n", t.Model)
		}
		fmt.Fprintf(&b, "- **Segments:** %d\n", len(t.Segments))
		b.WriteString("\n")
	}

	b.WriteString("## Transcript\n\n")
	if len(t.Segments) > 0 {
		for _, segment := range t.Segments {
			text := strings.TrimSpace(segment.Text)
			if text == "" {
				continue
			}
			fmt.Fprintf(&b, "**[%s]** %s\n\n", FormatTime(segment.StartS), text)
		}
	} else if text := strings.TrimSpace(t.Text); text != "" {
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "*Generated from the redacted transcript of %s*\n", t.RecordingID)
	return b.String()
}
