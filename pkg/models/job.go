package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

var validTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job tracks one asynchronous generation request. The API returns the job on
// POST /api/jobs; clients poll GET /api/jobs/{id} until status is terminal.
//
// CreditsUsed is a snapshot of the tool cost at creation and is the exact
// amount refunded if the job fails.
type Job struct {
	ID            uuid.UUID      `db:"id"              json:"id"`
	Tool          Tool           `db:"tool"            json:"tool"`
	Prompt        string         `db:"prompt"          json:"prompt"`
	Inputs        map[string]any `db:"inputs"          json:"inputs"`
	Status        JobStatus      `db:"status"          json:"status"`
	AssetURLs     []string       `db:"asset_urls"      json:"assetUrls"`
	Provider      string         `db:"provider"        json:"provider"`
	ProviderJobID *string        `db:"provider_job_id" json:"providerJobId"`
	Meta          map[string]any `db:"meta"            json:"meta"`
	UserID        uuid.UUID      `db:"user_id"         json:"userId"`
	SessionID     uuid.UUID      `db:"session_id"      json:"sessionId"`
	CreditsUsed   int            `db:"credits_used"    json:"creditsUsed"`
	PollAttempts  int            `db:"poll_attempts"   json:"-"`
	CreatedAt     time.Time      `db:"created_at"      json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at"      json:"updatedAt"`
}

// ErrorMessage returns meta.error, or "" when the job has none.
func (j *Job) ErrorMessage() string {
	if j == nil || j.Meta == nil {
		return ""
	}
	msg, _ := j.Meta["error"].(string)
	return msg
}

// JobSummary is the trimmed job representation returned from job creation.
type JobSummary struct {
	ID          uuid.UUID `json:"id"`
	Tool        Tool      `json:"tool"`
	Prompt      string    `json:"prompt"`
	Status      JobStatus `json:"status"`
	CreditsUsed int       `json:"creditsUsed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Summary projects j onto a JobSummary.
func (j *Job) Summary() JobSummary {
	return JobSummary{
		ID:          j.ID,
		Tool:        j.Tool,
		Prompt:      j.Prompt,
		Status:      j.Status,
		CreditsUsed: j.CreditsUsed,
		CreatedAt:   j.CreatedAt,
	}
}
