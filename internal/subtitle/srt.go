// Package subtitle renders transcripts as SubRip text for the transcribe
// command. Full subtitle authoring lives in the surrounding application;
// this covers only the plain export path.
package subtitle

import (
	"fmt"
	"strings"
	"time"

	"murmur/internal/engine"
)

// FormatSRT renders the transcript segments as a SubRip document. Segments
// with empty text are skipped; indexes stay contiguous.
func FormatSRT(transcript engine.Transcript) string {
	var b strings.Builder
	index := 1
	for _, seg := range transcript.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", index, timestamp(seg.Start), timestamp(seg.End), text)
		index++
	}
	return b.String()
}

func timestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	ms := (d - s*time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
