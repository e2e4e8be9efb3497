// Package webapi exposes the pipeline lifecycle over HTTP. Routes live under
// /v1 and exchange JSON, except for the zip download and the HTML badge
// embed.
package webapi

// ErrorResponse is the response body for any errors that occur.
type ErrorResponse struct {
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	UpstreamReason string `json:"upstream_reason,omitempty"`
}

// CreatedResponse is the response body for POST /pipeline.
type CreatedResponse struct {
	ID string `json:"id"`
}

// RenderedFile is one rendered artifact with its repository path.
type RenderedFile struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// StatusResponse is the response body for GET /pipeline/{id}/status.
type StatusResponse struct {
	BuildURL    string `json:"build_url,omitempty"`
	BuildStatus string `json:"build_status"`
	OpenBadgeID string `json:"openbadge_id,omitempty"`
}

// PullRequestRequest is the request body for POST /pipeline/{id}/pull_request.
type PullRequestRequest struct {
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
}

// PullRequestResponse is the response body for POST /pipeline/{id}/pull_request.
type PullRequestResponse struct {
	PullRequestURL string `json:"pull_request_url"`
}
