package models

import (
	"time"

	"github.com/google/uuid"
)

// Session carries the heavy-job rate-limit counter for one client session.
type Session struct {
	ID                uuid.UUID  `db:"id"                   json:"id"`
	UserID            uuid.UUID  `db:"user_id"              json:"userId"`
	HeavyJobsThisHour int        `db:"heavy_jobs_this_hour" json:"heavyJobsThisHour"`
	LastHeavyJobAt    *time.Time `db:"last_heavy_job_at"    json:"lastHeavyJobAt,omitempty"`
	CreatedAt         time.Time  `db:"created_at"           json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at"           json:"updatedAt"`
}

// HeavyJobsInWindow returns the effective counter at now. The counter resets
// once the last heavy job is more than HeavyJobWindow in the past.
func (s *Session) HeavyJobsInWindow(now time.Time) int {
	if s == nil || s.LastHeavyJobAt == nil {
		return 0
	}
	if now.Sub(*s.LastHeavyJobAt) > HeavyJobWindow {
		return 0
	}
	return s.HeavyJobsThisHour
}

// CanStartHeavyJob reports whether another heavy job fits in the current window.
func (s *Session) CanStartHeavyJob(now time.Time) bool {
	return s.HeavyJobsInWindow(now) < HeavyJobsPerHour
}
