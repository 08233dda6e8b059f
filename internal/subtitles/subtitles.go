// Package subtitles renders transcript cues into SRT subtitle content.
//
// Building is a pure function of the cue sequence: the same cues always
// produce the same bytes, so a subtitle file can be regenerated at any time
// from the stored transcript.
package subtitles

import (
	"fmt"
	"strings"

	"clipflow/internal/services"
)

// Cue is a single transcript segment with absolute timestamps in seconds.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Build renders cues as SRT content. Cues must be time-monotonic and
// non-overlapping (each cue ends no later than the next begins); violations
// return a validation error. Cues with empty text are skipped. Building an
// empty sequence returns empty content with no error.
func Build(cues []Cue) (string, error) {
	if err := validate(cues); err != nil {
		return "", err
	}

	var sb strings.Builder
	index := 0
	for _, cue := range cues {
		text := strings.TrimSpace(cue.Text)
		if text == "" {
			continue
		}
		index++
		sb.WriteString(fmt.Sprintf("%d\n", index))
		sb.WriteString(FormatTimestamp(cue.Start))
		sb.WriteString(" --> ")
		sb.WriteString(FormatTimestamp(cue.End))
		sb.WriteByte('\n')
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

func validate(cues []Cue) error {
	for i, cue := range cues {
		if cue.Start < 0 {
			return services.Wrap(services.ErrValidation, "", "subtitles",
				fmt.Sprintf("cue %d starts before zero (%.3f)", i+1, cue.Start), nil)
		}
		if cue.End <= cue.Start {
			return services.Wrap(services.ErrValidation, "", "subtitles",
				fmt.Sprintf("cue %d ends at or before its start (%.3f >= %.3f)", i+1, cue.Start, cue.End), nil)
		}
		if i > 0 && cues[i-1].End > cue.Start {
			return services.Wrap(services.ErrValidation, "", "subtitles",
				fmt.Sprintf("cue %d overlaps cue %d (%.3f > %.3f)", i, i+1, cues[i-1].End, cue.Start), nil)
		}
	}
	return nil
}

// ShiftCues moves every cue earlier by offset seconds, re-anchoring
// timestamps to a trimmed clip. Cues that end at or before the new zero are
// dropped; a cue straddling the cut has its start clamped to zero. A zero or
// negative offset returns the input unchanged.
func ShiftCues(cues []Cue, offset float64) []Cue {
	if offset <= 0 {
		return cues
	}
	shifted := make([]Cue, 0, len(cues))
	for _, cue := range cues {
		end := cue.End - offset
		if end <= 0 {
			continue
		}
		start := cue.Start - offset
		if start < 0 {
			start = 0
		}
		shifted = append(shifted, Cue{Start: start, End: end, Text: cue.Text})
	}
	return shifted
}

// FormatTimestamp renders seconds as an SRT timestamp (HH:MM:SS,mmm).
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int64(seconds*1000 + 0.5)
	hours := totalMillis / 3_600_000
	minutes := (totalMillis % 3_600_000) / 60_000
	secs := (totalMillis % 60_000) / 1000
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
