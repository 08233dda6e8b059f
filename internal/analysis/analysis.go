// Package analysis produces structured edit decisions for a source clip.
//
// The analyzer uploads the clip to a remote content analysis service and
// receives back a trim window, hook text, caption, hashtags, and a
// word-timestamped transcript. Results are normalized before use so the edit
// planner never sees an out-of-range trim window.
package analysis

import (
	"strings"

	"clipflow/internal/subtitles"
)

// Result is the structured output of content analysis for one clip.
type Result struct {
	TrimStartSec     float64         `json:"trim_start_sec"`
	TrimEndSec       float64         `json:"trim_end_sec"`
	HookText         string          `json:"hook_text"`
	CaptionStyle     string          `json:"caption_style"`
	Transcript       []subtitles.Cue `json:"transcript"`
	SuggestedCaption string          `json:"suggested_caption"`
	Hashtags         []string        `json:"hashtags"`
	RawDurationSec   float64         `json:"raw_duration_sec"`
}

const (
	// CaptionStyleBold renders larger subtitles with a heavier outline.
	CaptionStyleBold = "bold"
	// CaptionStyleMinimal renders smaller, lighter subtitles.
	CaptionStyleMinimal = "minimal"

	defaultHookText = "WATCH THIS"

	// Trim windows shorter than this are considered degenerate and replaced
	// with a window from the start of the clip.
	minClipSeconds = 5
	// Fallback window length when the suggested trim is degenerate.
	fallbackClipSeconds = 60
)

// Normalize clamps a raw service response into a usable result. The trim
// window is clamped into [0, duration]; a window shorter than five seconds
// falls back to the clip opening. Missing hook text and caption style get
// conservative defaults.
func (r *Result) Normalize() {
	duration := r.RawDurationSec
	if duration <= 0 {
		duration = r.TrimEndSec
		r.RawDurationSec = duration
	}

	if r.TrimStartSec < 0 {
		r.TrimStartSec = 0
	}
	if r.TrimEndSec > duration {
		r.TrimEndSec = duration
	}
	if r.TrimEndSec-r.TrimStartSec < minClipSeconds {
		r.TrimStartSec = 0
		r.TrimEndSec = duration
		if r.TrimEndSec > fallbackClipSeconds {
			r.TrimEndSec = fallbackClipSeconds
		}
	}

	if strings.TrimSpace(r.HookText) == "" {
		r.HookText = defaultHookText
	}
	if r.CaptionStyle != CaptionStyleBold && r.CaptionStyle != CaptionStyleMinimal {
		r.CaptionStyle = CaptionStyleBold
	}
}
