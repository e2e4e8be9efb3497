// Package pipeline implements the pipeline lifecycle: it composes the SCM,
// CI and badge gateways with the durable store, owns the per-pipeline build
// state machine and gates badge issuance.
package pipeline

import (
	"encoding/json"

	"github.com/eosc-synergy/sqaaas/badgr"
	"github.com/eosc-synergy/sqaaas/internal/jepl"
	"github.com/eosc-synergy/sqaaas/jenkins"
)

// Record is the durable per-pipeline state, keyed by the pipeline ID.
type Record struct {
	// PipelineRepo is the <org>/<name> identifier of the controlled
	// repository holding the rendered files; PipelineRepoURL its web URL.
	PipelineRepo    string `json:"pipeline_repo"`
	PipelineRepoURL string `json:"pipeline_repo_url"`

	// RawRequest is the verbatim request document, kept for diffing and
	// re-rendering.
	RawRequest json.RawMessage `json:"raw_request"`

	// Artifacts is the rendered file set, fully derivable from
	// RawRequest.
	Artifacts jepl.Artifacts `json:"data"`

	// CI is set once a run has been attempted.
	CI *CIBinding `json:"ci,omitempty"`
}

// Name returns the pipeline name carried by the raw request.
func (r *Record) Name() string {
	var req struct {
		Name string `json:"name"`
	}
	json.Unmarshal(r.RawRequest, &req)
	return req.Name
}

// CIBinding couples the record to a Jenkins job.
type CIBinding struct {
	JobName     string    `json:"job_name"`
	IssueBadge  bool      `json:"issue_badge"`
	ScanOrgWait bool      `json:"scan_org_wait"`
	BuildInfo   BuildInfo `json:"build_info"`
}

// BuildInfo is the last observed state of the job's build.
type BuildInfo struct {
	ItemNumber int64            `json:"item_number,omitempty"`
	Number     int              `json:"number,omitempty"`
	URL        string           `json:"url,omitempty"`
	Status     string           `json:"status"`
	CommitID   string           `json:"commit_id,omitempty"`
	CommitURL  string           `json:"commit_url,omitempty"`
	Badge      *badgr.Assertion `json:"badge,omitempty"`
}

// terminalSuccess reports whether the status allows badge issuance.
func terminalSuccess(status string) bool {
	return status == jenkins.StatusSuccess || status == jenkins.StatusUnstable
}
