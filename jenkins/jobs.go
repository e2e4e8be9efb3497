package jenkins

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-querystring/query"
)

// Build states reported to API clients, reconciling the local request
// lifecycle with the engine's build lifecycle.
const (
	StatusNotExecuted    = "NOT_EXECUTED"
	StatusQueued         = "QUEUED"
	StatusWaitingScanOrg = "WAITING_SCAN_ORG"
	StatusExecuting      = "EXECUTING"
	StatusSuccess        = "SUCCESS"
	StatusUnstable       = "UNSTABLE"
	StatusFailure        = "FAILURE"
	StatusAborted        = "ABORTED"
)

// JobInfo is the subset of job data the orchestrator needs.
type JobInfo struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	LastBuild *Build `json:"lastBuild"`
}

// Build is a single build of a job.
type Build struct {
	Number   int    `json:"number"`
	URL      string `json:"url"`
	Building bool   `json:"building"`
	Result   string `json:"result"`
}

// QueueItem is a queued build request. Executable is nil until the engine
// schedules the build.
type QueueItem struct {
	ID         int64  `json:"id"`
	URL        string `json:"url"`
	Executable *Build `json:"executable"`
}

type jobInfoOptions struct {
	Depth int `url:"depth"`
}

// jobPath converts a full job name (org/repo/branch) into the nested folder
// URL path Jenkins expects.
func jobPath(fullName string) string {
	segments := strings.Split(strings.Trim(fullName, "/"), "/")
	return "job/" + strings.Join(segments, "/job/")
}

// FullJobName builds the canonical job name for a pipeline branch.
func FullJobName(org, repo, branch string) string {
	return strings.Join([]string{org, repo, FormatBranch(branch)}, "/")
}

// FormatBranch URL-encodes a branch name for use as a job path segment. The
// encoding is applied twice because the engine nests branch jobs under
// folder paths, so a literal `/` must arrive as %252F.
func FormatBranch(branch string) string {
	return url.PathEscape(url.PathEscape(branch))
}

// ScanOrganization asks Jenkins to rescan the hosting organization so new
// repositories and branches get their jobs created. The scan is
// asynchronous; there is no completion signal.
func (c *Client) ScanOrganization(ctx context.Context, org string) error {
	req, err := c.newRequest(ctx, "POST", fmt.Sprintf("job/%s/build?delay=0", org), nil)
	if err != nil {
		return err
	}
	if _, err := c.doRequest(req, nil); err != nil {
		return err
	}
	c.logger.Debug("Triggered scan of organization <%s>", org)
	return nil
}

// GetJobInfo fetches job data. A nil result without error means the job does
// not exist.
func (c *Client) GetJobInfo(ctx context.Context, fullName string, depth int) (*JobInfo, error) {
	qs, err := query.Values(jobInfoOptions{Depth: depth})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, "GET", fmt.Sprintf("%s/api/json?%s", jobPath(fullName), qs.Encode()), nil)
	if err != nil {
		return nil, err
	}

	info := new(JobInfo)
	if _, err := c.doRequest(req, info); err != nil {
		if IsErrHavingStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return info, nil
}

// JobExists reports whether the job is known to the engine.
func (c *Client) JobExists(ctx context.Context, fullName string) (bool, error) {
	info, err := c.GetJobInfo(ctx, fullName, 0)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// TriggerBuild queues a build of the job and returns the queue item number
// parsed from the Location header.
func (c *Client) TriggerBuild(ctx context.Context, fullName string) (int64, error) {
	req, err := c.newRequest(ctx, "POST", fmt.Sprintf("%s/build", jobPath(fullName)), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.doRequest(req, nil)
	if err != nil {
		return 0, err
	}

	item, err := queueItemFromLocation(resp.Header.Get("Location"))
	if err != nil {
		return 0, err
	}
	c.logger.Debug("Triggered build of job <%s> (queue item %d)", fullName, item)
	return item, nil
}

// queueItemFromLocation extracts the queue item number from a Location
// header like https://jenkins.example/queue/item/123/.
func queueItemFromLocation(location string) (int64, error) {
	trimmed := strings.TrimRight(location, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return 0, fmt.Errorf("no queue item in Location header %q", location)
	}
	item, err := strconv.ParseInt(trimmed[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("no queue item in Location header %q", location)
	}
	return item, nil
}

// GetQueueItem fetches a queue item. A nil Executable means the build has
// not been scheduled yet.
func (c *Client) GetQueueItem(ctx context.Context, itemNumber int64) (*QueueItem, error) {
	req, err := c.newRequest(ctx, "GET", fmt.Sprintf("queue/item/%d/api/json", itemNumber), nil)
	if err != nil {
		return nil, err
	}

	item := new(QueueItem)
	if _, err := c.doRequest(req, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GetBuildInfo fetches a single build of the job.
func (c *Client) GetBuildInfo(ctx context.Context, fullName string, number int) (*Build, error) {
	req, err := c.newRequest(ctx, "GET", fmt.Sprintf("%s/%d/api/json", jobPath(fullName), number), nil)
	if err != nil {
		return nil, err
	}

	build := new(Build)
	if _, err := c.doRequest(req, build); err != nil {
		return nil, err
	}
	return build, nil
}

// GetBuildStatus maps the engine's result for a build onto the API's status
// set. A build without a result yet is EXECUTING.
func (c *Client) GetBuildStatus(ctx context.Context, fullName string, number int) (string, error) {
	build, err := c.GetBuildInfo(ctx, fullName, number)
	if err != nil {
		return "", err
	}
	switch build.Result {
	case StatusSuccess, StatusUnstable, StatusFailure, StatusAborted:
		return build.Result, nil
	default:
		return StatusExecuting, nil
	}
}

// DeleteJob removes the job from the engine.
func (c *Client) DeleteJob(ctx context.Context, fullName string) error {
	req, err := c.newRequest(ctx, "POST", fmt.Sprintf("%s/doDelete", jobPath(fullName)), nil)
	if err != nil {
		return err
	}
	_, err = c.doRequest(req, nil)
	return err
}
