package task

import (
	"strings"
	"time"
)

// Status represents the coarse lifecycle of a task record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Progress represents the fine-grained state of the current step.
type Progress string

const (
	ProgressWaiting    Progress = "waiting"
	ProgressProcessing Progress = "processing"
	ProgressCompleted  Progress = "completed"
	ProgressFailed     Progress = "failed"
)

// RestartFailureMessage is set when incomplete tasks are failed after a restart.
const RestartFailureMessage = "task did not complete across a restart; retry to resume"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// FileRefs holds the published artifact references for one level/lang pair.
type FileRefs struct {
	Audio    string `json:"audio,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
}

// Files maps difficulty level → language → published artifacts.
type Files map[string]map[string]FileRefs

// Set merges one artifact reference into the nested map.
func (f Files) Set(level, lang, fileType, ref string) {
	if f[level] == nil {
		f[level] = make(map[string]FileRefs)
	}
	refs := f[level][lang]
	switch fileType {
	case "audio":
		refs.Audio = ref
	case "subtitle":
		refs.Subtitle = ref
	}
	f[level][lang] = refs
}

// Record represents a podcast generation task persisted in SQLite.
type Record struct {
	ID               int64
	TaskID           string
	URL              string
	Title            string
	Status           Status
	Progress         Progress
	CurrentStep      string
	CurrentStepIndex int
	TotalSteps       int
	StepProgress     int
	ProgressMessage  string
	ErrorMessage     string
	Files            Files
	Revision         int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
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

// IsTerminal reports whether the record reached a final state.
func (r Record) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// SetStepProgress updates the per-step progress fields atomically.
// Progress becomes completed when percent reaches 100, processing otherwise.
func (r *Record) SetStepProgress(index int, step string, percent int, message string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	r.Status = StatusProcessing
	if percent == 100 {
		r.Progress = ProgressCompleted
	} else {
		r.Progress = ProgressProcessing
	}
	r.CurrentStep = step
	r.CurrentStepIndex = index
	r.StepProgress = percent
	r.ProgressMessage = message
}

// SetFailed marks the record as failed with the given error message.
// The current step is preserved so retries know where to resume.
func (r *Record) SetFailed(message string) {
	r.Status = StatusFailed
	r.Progress = ProgressFailed
	r.StepProgress = 0
	r.ErrorMessage = message
	r.ProgressMessage = "task failed"
}

// SetCompleted marks the record as successfully finished.
func (r *Record) SetCompleted() {
	r.Status = StatusCompleted
	r.Progress = ProgressCompleted
	r.StepProgress = 100
	if r.TotalSteps > 0 {
		r.CurrentStepIndex = r.TotalSteps - 1
	}
	r.ErrorMessage = ""
	r.ProgressMessage = "task completed"
}
