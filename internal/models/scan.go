package models

import "time"

// RunStatus is the lifecycle state of a ScanRun.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunPartial   RunStatus = "PARTIAL"
)

// Terminal reports whether no further transition is expected.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunPartial
}

// RegionStatus is the lifecycle state of a ScanRegion.
type RegionStatus string

const (
	RegionPending   RegionStatus = "PENDING"
	RegionRunning   RegionStatus = "RUNNING"
	RegionCompleted RegionStatus = "COMPLETED"
	RegionFailed    RegionStatus = "FAILED"
)

// Terminal reports whether the region worker has finished, either way.
func (s RegionStatus) Terminal() bool {
	return s == RegionCompleted || s == RegionFailed
}

const (
	// GlobalRegion is the pseudo-region under which non-partitioned services
	// (S3, IAM) are collected exactly once per scan.
	GlobalRegion = "GLOBAL"

	// ScopeAll requests every region enabled for the account.
	ScopeAll = "all"
)

// ScanRun is one end-to-end audit across a region scope.
type ScanRun struct {
	ID                 string            `json:"id"`
	CreatedAt          time.Time         `json:"created_at"`
	Status             RunStatus         `json:"status"`
	RegionScope        []string          `json:"region_scope"`
	CallerIdentity     map[string]string `json:"caller_identity"`
	MinimalPermissions map[string]bool   `json:"minimal_permissions"`
}

// ScanRegion tracks the progress of one region of a ScanRun.
type ScanRegion struct {
	ID         string       `json:"id"`
	ScanID     string       `json:"scan_id"`
	Region     string       `json:"region"`
	Status     RegionStatus `json:"status"`
	StartedAt  *time.Time   `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at"`
	Error      *string      `json:"error"`
}

// Credential is a temporary AWS credential supplied by the caller of a scan.
// It only ever lives in the vault and in memory; it is never persisted with
// the scan record.
type Credential struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken,omitempty"`
	RoleARN         string `json:"roleArn,omitempty"`
	ExternalID      string `json:"externalId,omitempty"`
}
