package domain

import "time"

// DeploymentStatus tracks pipeline progress for a deployment run.
type DeploymentStatus string

const (
	DeployStatusIdle         DeploymentStatus = "idle"
	DeployStatusInitializing DeploymentStatus = "initializing"
	DeployStatusCreatingRepo DeploymentStatus = "creating_repo"
	DeployStatusPushingFiles DeploymentStatus = "pushing_files"
	DeployStatusCreatingSite DeploymentStatus = "creating_site"
	DeployStatusDeploying    DeploymentStatus = "deploying"
	DeployStatusSuccess      DeploymentStatus = "success"
	DeployStatusError        DeploymentStatus = "error"
)

// Terminal reports whether the status ends a run.
func (s DeploymentStatus) Terminal() bool {
	return s == DeployStatusSuccess || s == DeployStatusError
}

// DeploymentRun captures a single attempt at the deployment pipeline.
type DeploymentRun struct {
	ID          string
	SessionID   string
	RepoName    string
	Status      DeploymentStatus
	Message     string
	URL         string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// ProgressEvent is one incremental status update emitted by the orchestrator.
type ProgressEvent struct {
	RunID   string           `json:"run_id"`
	Status  DeploymentStatus `json:"status"`
	Message string           `json:"message"`
	URL     string           `json:"url,omitempty"`
}
