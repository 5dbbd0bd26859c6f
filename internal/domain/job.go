package domain

import "time"

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Resolution enumerates supported output resolutions.
type Resolution string

const (
	Resolution480p Resolution = "480p"
	Resolution720p Resolution = "720p"
)

// CreditCost returns the per-video credit price for the resolution, or 0 for
// unknown resolutions.
func (r Resolution) CreditCost() int {
	switch r {
	case Resolution480p:
		return 1
	case Resolution720p:
		return 2
	}
	return 0
}

// Job encapsulates one image-to-video generation request. A job transitions to
// a terminal state exactly once and is retained afterwards for the gallery.
type Job struct {
	ID            string
	UserID        string
	Status        JobStatus
	InputImageRef string
	Prompt        string
	Resolution    Resolution
	Cost          int
	ReservationID string
	ResultRef     string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
