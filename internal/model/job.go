package model

import "time"

// JobStatus is the lifecycle state of an ingestion/validation run
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// SubStatus tracks one of the job's independent sub-workflows
// (extraction and validation). Both must be terminal before the
// parent job can complete.
type SubStatus string

const (
	SubPending   SubStatus = "pending"
	SubRunning   SubStatus = "running"
	SubCompleted SubStatus = "completed"
	SubFailed    SubStatus = "failed"
)

// Terminal reports whether the sub-workflow has finished
func (s SubStatus) Terminal() bool {
	return s == SubCompleted || s == SubFailed
}

// Job is one ingestion/validation run against one document
type Job struct {
	ID              string         `json:"id"` // UUID
	Prompt          string         `json:"prompt"`
	DocumentPath    string         `json:"document_path,omitempty"`
	DocumentContent string         `json:"document_content,omitempty"`
	Context         map[string]any `json:"context,omitempty"`

	Status          JobStatus `json:"status"`
	CreatorStatus   SubStatus `json:"creator_status"`
	ValidatorStatus SubStatus `json:"validator_status"`

	ErrorMessage string    `json:"error_message,omitempty"`
	ErrorDetails *JobStats `json:"error_details,omitempty"`

	TotalTokensUsed int `json:"total_tokens_used"`
	TotalRequests   int `json:"total_requests"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"` // Set iff status is terminal
}

// JobStats aggregates per-run failure counts. Failed or rejected
// requirements are surfaced here, never silently dropped.
type JobStats struct {
	RequirementsTotal    int `json:"requirements_total"`
	RequirementsAccepted int `json:"requirements_accepted"`
	RequirementsRejected int `json:"requirements_rejected"`
	CitationsVerified    int `json:"citations_verified"`
	CitationsFailed      int `json:"citations_failed"`
	InfraErrors          int `json:"infra_errors"`
}

// Terminal reports whether the job has finished
func (j *Job) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
