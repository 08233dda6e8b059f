// Package editplan builds deterministic ffmpeg transform recipes.
//
// A Plan captures everything the transcode executor needs: trim window,
// subtitle burn-in, hook overlay, aspect normalization, and the encode
// ladder used to fit the artifact under the output size ceiling. Building a
// plan performs no I/O; the same inputs always produce the same plan.
package editplan

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clipflow/internal/analysis"
	"clipflow/internal/config"
	"clipflow/internal/services"
)

// Options are the encode target knobs taken from configuration.
type Options struct {
	MaxSizeMB        int
	ReencodeAttempts int
	CRF              int
	AudioBitrateKbps int
	HookSeconds      float64
}

// OptionsFromConfig converts the output config section into plan options.
func OptionsFromConfig(out config.Output) Options {
	return Options{
		MaxSizeMB:        out.MaxSizeMB,
		ReencodeAttempts: out.ReencodeAttempts,
		CRF:              out.CRF,
		AudioBitrateKbps: out.AudioBitrateKbps,
		HookSeconds:      out.HookSeconds,
	}
}

// renditions is the step-down ladder for size-fit re-encodes. The first
// attempt always runs at full resolution in constant-quality mode; capped
// attempts walk this ladder top to bottom.
var renditions = []struct {
	width  int
	height int
}{
	{1080, 1920},
	{810, 1440},
	{720, 1280},
}

// Plan is an ordered, validated transform recipe for one clip.
type Plan struct {
	TrimStartSec    float64
	TrimDurationSec float64

	SubtitlePath  string
	SubtitleStyle string

	HookText        string
	HookDurationSec float64

	CRF              int
	AudioBitrateKbps int

	MaxSizeBytes int64
	MaxAttempts  int
}

var upperCaser = cases.Upper(language.Und)

// Build validates the analysis trim window against the true source duration
// and assembles a plan. The hook text is uppercased and clipped to the hook
// interval; a window outside [0, sourceDuration] is a validation error.
func Build(sourceDuration float64, result *analysis.Result, subtitlePath string, opts Options) (*Plan, error) {
	if result == nil {
		return nil, services.Wrap(services.ErrValidation, "editing", "editplan", "analysis result is nil", nil)
	}
	if sourceDuration <= 0 {
		return nil, services.Wrap(services.ErrValidation, "editing", "editplan",
			fmt.Sprintf("source duration %.3f is not positive", sourceDuration), nil)
	}
	start := result.TrimStartSec
	end := result.TrimEndSec
	if start < 0 || start >= end || end > sourceDuration {
		return nil, services.Wrap(services.ErrValidation, "editing", "editplan",
			fmt.Sprintf("trim window [%.3f, %.3f] invalid for duration %.3f", start, end, sourceDuration), nil)
	}

	clipLength := end - start
	hookSeconds := opts.HookSeconds
	if hookSeconds <= 0 {
		hookSeconds = 3
	}
	if hookSeconds > clipLength {
		hookSeconds = clipLength
	}

	// The initial constant-quality encode does not count against the
	// re-encode allowance: reencode_attempts=3 means four invocations total.
	reencodes := opts.ReencodeAttempts
	if reencodes < 1 {
		reencodes = 1
	}

	return &Plan{
		TrimStartSec:     start,
		TrimDurationSec:  clipLength,
		SubtitlePath:     subtitlePath,
		SubtitleStyle:    subtitleStyle(result.CaptionStyle),
		HookText:         upperCaser.String(strings.TrimSpace(result.HookText)),
		HookDurationSec:  hookSeconds,
		CRF:              opts.CRF,
		AudioBitrateKbps: opts.AudioBitrateKbps,
		MaxSizeBytes:     int64(opts.MaxSizeMB) * 1024 * 1024,
		MaxAttempts:      reencodes + 1,
	}, nil
}

func subtitleStyle(captionStyle string) string {
	if captionStyle == analysis.CaptionStyleMinimal {
		return "Fontname=Arial,Fontsize=12,Bold=0," +
			"PrimaryColour=&HFFFFFF,OutlineColour=&H000000,BorderStyle=1,Outline=1," +
			"Alignment=2,MarginV=40"
	}
	return "Fontname=Arial,Fontsize=14,Bold=1," +
		"PrimaryColour=&HFFFFFF,OutlineColour=&H000000,BorderStyle=1,Outline=2," +
		"Alignment=2,MarginV=40"
}

// Args renders the ffmpeg invocation for the given attempt (zero-based).
// Attempt 0 encodes at full resolution in constant-quality mode; later
// attempts cap the video bitrate to the size budget and step the resolution
// ladder down.
func (p *Plan) Args(attempt int, inputPath, outputPath string) []string {
	args := []string{
		"-y",
		"-ss", formatSeconds(p.TrimStartSec),
		"-t", formatSeconds(p.TrimDurationSec),
		"-i", inputPath,
		"-vf", p.videoFilter(attempt),
		"-c:v", "libx264",
		"-preset", "fast",
	}

	if attempt == 0 {
		args = append(args,
			"-crf", strconv.Itoa(p.CRF),
			"-c:a", "aac",
			"-b:a", fmt.Sprintf("%dk", p.AudioBitrateKbps),
		)
	} else {
		bitrate := p.targetBitrateKbps(attempt)
		args = append(args,
			"-b:v", fmt.Sprintf("%dk", bitrate),
			"-maxrate", fmt.Sprintf("%dk", bitrate),
			"-bufsize", fmt.Sprintf("%dk", bitrate*2),
			"-c:a", "aac",
			"-b:a", "96k",
		)
	}

	args = append(args,
		"-movflags", "+faststart",
		"-pix_fmt", "yuv420p",
		outputPath,
	)
	return args
}

// videoFilter chains subtitle burn-in, the hook overlay, and 9:16 aspect
// normalization (scale to fit, pad to fill, never stretch).
func (p *Plan) videoFilter(attempt int) string {
	var filters []string

	if p.SubtitlePath != "" {
		filters = append(filters, fmt.Sprintf("subtitles='%s':force_style='%s'",
			escapeFilterPath(p.SubtitlePath), p.SubtitleStyle))
	}

	if p.HookText != "" {
		filters = append(filters, fmt.Sprintf(
			"drawtext=text='%s':fontsize=48:fontcolor=white:borderw=3:bordercolor=black:"+
				"x=(w-text_w)/2:y=h*0.12:enable='between(t,0,%s)'",
			escapeDrawText(p.HookText), formatSeconds(p.HookDurationSec)))
	}

	rendition := renditions[p.renditionIndex(attempt)]
	filters = append(filters, fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		rendition.width, rendition.height, rendition.width, rendition.height))

	return strings.Join(filters, ",")
}

func (p *Plan) renditionIndex(attempt int) int {
	if attempt <= 0 {
		return 0
	}
	index := attempt - 1
	if index >= len(renditions) {
		index = len(renditions) - 1
	}
	return index
}

// targetBitrateKbps computes the capped video bitrate that fits the clip
// under the size ceiling, leaving headroom for the audio track. Later
// attempts shave the budget further.
func (p *Plan) targetBitrateKbps(attempt int) int {
	budgetKbits := float64(p.MaxSizeBytes) * 8 / 1024
	total := budgetKbits / p.TrimDurationSec
	video := total - 96
	for i := 1; i < attempt; i++ {
		video *= 0.85
	}
	if video < 200 {
		video = 200
	}
	return int(video)
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

// escapeDrawText escapes characters that break the ffmpeg drawtext filter.
func escapeDrawText(text string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`,`, `\,`,
		`[`, `\[`,
		`]`, `\]`,
	)
	return replacer.Replace(text)
}

// escapeFilterPath escapes a filesystem path for use inside a filter graph.
func escapeFilterPath(path string) string {
	escaped := strings.ReplaceAll(path, `\`, `/`)
	return strings.ReplaceAll(escaped, `:`, `\:`)
}
