package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/buildkite/roko"

	"github.com/eosc-synergy/sqaaas/jenkins"
	"github.com/eosc-synergy/sqaaas/scm"
)

// thisRepoKey marks criteria assessing the pipeline repository itself. It
// must match the key the renderer writes into the config documents.
const thisRepoKey = "this_repo"

// RunOptions tune a single run of a pipeline.
type RunOptions struct {
	// RepoURL, when set, is an external repository mirrored into the
	// controlled one before building, so criteria on the pipeline
	// repository assess the external code.
	RepoURL string

	// RepoBranch selects the branch to mirror or to push to. Empty means
	// the default branch.
	RepoBranch string

	// IssueBadge asks for a badge to be issued automatically once the
	// build finishes successfully.
	IssueBadge bool
}

// RunResult reports how the run was dispatched.
type RunResult struct {
	Status string `json:"build_status"`
	Reason string `json:"reason"`
}

const (
	reasonTriggeredJob  = "Triggered the existing Jenkins job"
	reasonTriggeredScan = "Triggered scan organization"
)

// Run pushes the rendered files to the controlled repository and dispatches
// a build: directly when the branch job already exists, through an
// organization scan otherwise.
func (o *Orchestrator) Run(ctx context.Context, id string, opts RunOptions) (*RunResult, error) {
	unlock, err := o.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, err := o.Get(id)
	if err != nil {
		return nil, err
	}

	if opts.RepoURL != "" && !usesThisRepo(record) {
		return nil, unprocessablef(
			"repository <%s> provided but no criterion assesses the pipeline repository", opts.RepoURL)
	}

	repo, err := o.ensureRepo(ctx, record.PipelineRepo)
	if err != nil {
		return nil, err
	}

	branch := opts.RepoBranch
	if opts.RepoURL != "" {
		mirrored, err := o.scm.Mirror(ctx, opts.RepoURL, repo.CloneURL, opts.RepoBranch)
		if err != nil {
			return nil, upstreamError(err, fmt.Sprintf("cannot mirror repository <%s>", opts.RepoURL))
		}
		branch = mirrored.Branch
	}
	if branch == "" {
		branch = repo.DefaultBranch
	}
	if branch == "" {
		branch = "main"
	}

	commitID, err := o.pushArtifacts(ctx, record, record.PipelineRepo, branch)
	if err != nil {
		return nil, err
	}

	_, repoName, _ := strings.Cut(record.PipelineRepo, "/")
	jobName := jenkins.FullJobName(o.conf.CIOrg, repoName, branch)

	ci := &CIBinding{
		JobName:    jobName,
		IssueBadge: opts.IssueBadge,
		BuildInfo: BuildInfo{
			CommitID:  commitID,
			CommitURL: o.scm.CommitURL(record.PipelineRepo, commitID),
		},
	}

	result := new(RunResult)
	exists, err := o.ci.JobExists(ctx, jobName)
	if err != nil {
		return nil, upstreamError(err, fmt.Sprintf("cannot check Jenkins job <%s>", jobName))
	}
	if exists {
		item, err := o.triggerBuild(ctx, jobName)
		if err != nil {
			return nil, upstreamError(err, fmt.Sprintf("cannot trigger Jenkins job <%s>", jobName))
		}
		ci.BuildInfo.ItemNumber = item
		ci.BuildInfo.Status = jenkins.StatusQueued
		result.Status = jenkins.StatusQueued
		result.Reason = reasonTriggeredJob
	} else {
		if err := o.ci.ScanOrganization(ctx, o.conf.CIOrg); err != nil {
			return nil, upstreamError(err, "cannot trigger organization scan")
		}
		ci.ScanOrgWait = true
		ci.BuildInfo.Status = jenkins.StatusWaitingScanOrg
		result.Status = jenkins.StatusWaitingScanOrg
		result.Reason = reasonTriggeredScan
	}

	record.CI = ci
	if err := o.store.Put(id, record); err != nil {
		return nil, err
	}
	o.logger.Info("Pipeline <%s> run dispatched: %s", id, result.Reason)
	return result, nil
}

// ensureRepo returns the controlled repository, creating it first when it
// does not exist yet.
func (o *Orchestrator) ensureRepo(ctx context.Context, fullName string) (*scm.Repo, error) {
	exists, err := o.scm.RepoExists(ctx, fullName)
	if err != nil {
		return nil, upstreamError(err, fmt.Sprintf("cannot check repository <%s>", fullName))
	}
	if exists {
		repo, err := o.scm.GetRepo(ctx, fullName)
		if err != nil {
			return nil, upstreamError(err, fmt.Sprintf("cannot access repository <%s>", fullName))
		}
		return repo, nil
	}

	_, name, _ := strings.Cut(fullName, "/")
	repo, err := o.scm.CreateRepo(ctx, o.conf.ControlledOrg, name)
	if err != nil {
		return nil, upstreamError(err, fmt.Sprintf("cannot create repository <%s>", fullName))
	}
	o.logger.Info("Created repository <%s>", fullName)
	return repo, nil
}

// triggerBuild retries transient engine failures; a client error from the
// engine aborts the retry loop immediately.
func (o *Orchestrator) triggerBuild(ctx context.Context, jobName string) (int64, error) {
	r := roko.NewRetrier(
		roko.WithMaxAttempts(3),
		roko.WithStrategy(roko.Constant(5*time.Second)),
	)
	return roko.DoFunc(ctx, r, func(r *roko.Retrier) (int64, error) {
		item, err := o.ci.TriggerBuild(ctx, jobName)
		if err != nil {
			if sc, ok := upstreamStatusCode(err); ok && sc >= 400 && sc < 500 {
				r.Break()
			}
			return 0, err
		}
		return item, nil
	})
}

// usesThisRepo reports whether any criterion of the rendered config assesses
// the pipeline repository.
func usesThisRepo(record *Record) bool {
	for _, cfg := range record.Artifacts.Config {
		criteria, ok := cfg.DataJSON["sqa_criteria"].(map[string]any)
		if !ok {
			continue
		}
		for _, c := range criteria {
			criterion, ok := c.(map[string]any)
			if !ok {
				continue
			}
			repos, ok := criterion["repos"].(map[string]any)
			if !ok {
				continue
			}
			if _, ok := repos[thisRepoKey]; ok {
				return true
			}
		}
	}
	return false
}

// Status advances the build state machine one observation: it resolves the
// job after an organization scan, adopts the build once the queue item is
// scheduled, then follows the build result. A successful finish issues the
// requested badge.
func (o *Orchestrator) Status(ctx context.Context, id string) (*BuildInfo, error) {
	unlock, err := o.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, err := o.Get(id)
	if err != nil {
		return nil, err
	}
	if record.CI == nil {
		return &BuildInfo{Status: jenkins.StatusNotExecuted}, nil
	}

	ci := record.CI
	before := *ci

	switch {
	case ci.ScanOrgWait:
		info, err := o.ci.GetJobInfo(ctx, ci.JobName, 1)
		if err != nil {
			return nil, upstreamError(err, fmt.Sprintf("cannot check Jenkins job <%s>", ci.JobName))
		}
		if info == nil || info.LastBuild == nil {
			// The scan has not created the job or its first build yet.
			break
		}
		ci.ScanOrgWait = false
		ci.BuildInfo.Number = info.LastBuild.Number
		ci.BuildInfo.URL = info.LastBuild.URL
		if err := o.refreshBuildStatus(ctx, ci); err != nil {
			return nil, err
		}

	case ci.BuildInfo.Number == 0 && ci.BuildInfo.ItemNumber != 0:
		item, err := o.ci.GetQueueItem(ctx, ci.BuildInfo.ItemNumber)
		if err != nil {
			return nil, upstreamError(err, fmt.Sprintf("cannot check queue item <%d>", ci.BuildInfo.ItemNumber))
		}
		if item.Executable == nil {
			ci.BuildInfo.Status = jenkins.StatusQueued
			break
		}
		ci.BuildInfo.Number = item.Executable.Number
		ci.BuildInfo.URL = item.Executable.URL
		if err := o.refreshBuildStatus(ctx, ci); err != nil {
			return nil, err
		}

	case ci.BuildInfo.Number != 0 && !terminalStatus(ci.BuildInfo.Status):
		if err := o.refreshBuildStatus(ctx, ci); err != nil {
			return nil, err
		}
	}

	if ci.IssueBadge && terminalSuccess(ci.BuildInfo.Status) {
		badge, err := o.issueBadge(ctx, record)
		switch {
		case err == nil:
			ci.BuildInfo.Badge = badge
			ci.IssueBadge = false
		case IsErrWithStatus(err, http.StatusUnprocessableEntity):
			// Nothing badgeable in this pipeline; do not retry.
			o.logger.Warn("No badge issued for pipeline <%s>: %v", id, err)
			ci.IssueBadge = false
		default:
			return nil, err
		}
	} else if terminalStatus(ci.BuildInfo.Status) {
		ci.IssueBadge = false
	}

	if *ci != before {
		if err := o.store.Put(id, record); err != nil {
			return nil, err
		}
	}

	info := ci.BuildInfo
	return &info, nil
}

func (o *Orchestrator) refreshBuildStatus(ctx context.Context, ci *CIBinding) error {
	status, err := o.ci.GetBuildStatus(ctx, ci.JobName, ci.BuildInfo.Number)
	if err != nil {
		return upstreamError(err, fmt.Sprintf("cannot check build <%d> of job <%s>", ci.BuildInfo.Number, ci.JobName))
	}
	ci.BuildInfo.Status = status
	return nil
}

// terminalStatus reports whether the build reached a final state.
func terminalStatus(status string) bool {
	switch status {
	case jenkins.StatusSuccess, jenkins.StatusUnstable, jenkins.StatusFailure, jenkins.StatusAborted:
		return true
	}
	return false
}
