package queue

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a video job.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusAnalyzing   Status = "analyzing"
	StatusEditing     Status = "editing"
	StatusPosting     Status = "posting"
	StatusDone        Status = "done"
	StatusFailed      Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusAnalyzing,
	StatusEditing,
	StatusPosting,
	StatusDone,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// forwardTransitions is the only legal forward motion through the pipeline.
// failed is reachable from every non-terminal state; leaving failed requires
// an explicit retry (see RetryFailed).
var forwardTransitions = map[Status]Status{
	StatusPending:     StatusDownloading,
	StatusDownloading: StatusAnalyzing,
	StatusAnalyzing:   StatusEditing,
	StatusEditing:     StatusPosting,
	StatusPosting:     StatusDone,
}

// stageStatuses are the states in which a job has an in-flight (or resumable)
// pipeline stage.
var stageStatuses = []Status{
	StatusDownloading,
	StatusAnalyzing,
	StatusEditing,
	StatusPosting,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// NonTerminalStatuses returns every status a job can still progress from.
func NonTerminalStatuses() []Status {
	return []Status{StatusPending, StatusDownloading, StatusAnalyzing, StatusEditing, StatusPosting}
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status has no automatic further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// CanTransition reports whether moving from one status to another follows the
// state machine. Failure is allowed from any non-terminal state.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return forwardTransitions[from] == to
}

// Job represents one source clip moving through the pipeline, persisted in
// SQLite. A job exists per distinct SourceRef.
type Job struct {
	ID        int64
	SourceRef string
	FileName  string
	Status    Status

	RetryCount int
	LastError  string
	// FailedStage records the stage status a job held when it failed, so a
	// manual retry can resume at the same stage boundary.
	FailedStage Status

	TrimStartSec   float64
	TrimEndSec     float64
	HookText       string
	CaptionStyle   string
	Caption        string
	HashtagsJSON   string
	TranscriptJSON string

	LocalSourcePath    string
	EditedOutputPath   string
	CaptionsPath       string
	PublishResultsJSON string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Hashtags decodes the stored hashtag list. Corrupt or empty values decode to
// nil rather than failing a read path.
func (j *Job) Hashtags() []string {
	if strings.TrimSpace(j.HashtagsJSON) == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(j.HashtagsJSON), &tags); err != nil {
		return nil
	}
	return tags
}

// SetHashtags stores the hashtag list as JSON.
func (j *Job) SetHashtags(tags []string) {
	if len(tags) == 0 {
		j.HashtagsJSON = ""
		return
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return
	}
	j.HashtagsJSON = string(data)
}

// PublishResults decodes the per-destination post ID mapping.
func (j *Job) PublishResults() map[string]string {
	if strings.TrimSpace(j.PublishResultsJSON) == "" {
		return nil
	}
	var results map[string]string
	if err := json.Unmarshal([]byte(j.PublishResultsJSON), &results); err != nil {
		return nil
	}
	return results
}

// SetPublishResults stores the per-destination post ID mapping as JSON.
func (j *Job) SetPublishResults(results map[string]string) {
	if len(results) == 0 {
		j.PublishResultsJSON = ""
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	j.PublishResultsJSON = string(data)
}

// ResumeStatus returns the status a failed job should re-enter on manual
// retry: the stage it failed at when known, otherwise pending.
func (j *Job) ResumeStatus() Status {
	for _, stage := range stageStatuses {
		if j.FailedStage == stage {
			return stage
		}
	}
	return StatusPending
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Done       int `json:"done"`
}
