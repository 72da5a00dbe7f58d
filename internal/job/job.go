package job

import "time"

type Status string

const (
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

type Job struct {
	ID        string    `json:"jobId"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	ResultURL string    `json:"resultUrl,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New returns a freshly created record in the processing state.
func New(id string, now time.Time) *Job {
	return &Job{
		ID:        id,
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// maxRunningProgress caps progress reported while processing so that 100 is
// only ever observed on a done job.
const maxRunningProgress = 99

func advance(p int) func(*Job) {
	return func(j *Job) {
		if j.Status != StatusProcessing {
			return
		}
		p = min(max(p, 0), maxRunningProgress)
		if p > j.Progress {
			j.Progress = p
		}
	}
}

func complete(resultURL string) func(*Job) {
	return func(j *Job) {
		if j.Status != StatusProcessing {
			return
		}
		j.Status = StatusDone
		j.Progress = 100
		j.ResultURL = resultURL
	}
}

func fail(msg string) func(*Job) {
	return func(j *Job) {
		if j.Status != StatusProcessing {
			return
		}
		j.Status = StatusError
		j.Error = msg
	}
}
