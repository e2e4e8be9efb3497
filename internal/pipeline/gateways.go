package pipeline

import (
	"context"

	"github.com/eosc-synergy/sqaaas/badgr"
	"github.com/eosc-synergy/sqaaas/jenkins"
	"github.com/eosc-synergy/sqaaas/scm"
)

// SCMGateway is the slice of the SCM client the orchestrator uses.
type SCMGateway interface {
	RepoExists(ctx context.Context, repo string) (bool, error)
	GetRepo(ctx context.Context, repo string) (*scm.Repo, error)
	CreateRepo(ctx context.Context, org, name string) (*scm.Repo, error)
	DeleteRepo(ctx context.Context, repo string) error
	PutFile(ctx context.Context, repo, path string, data []byte, message, branch string) (string, error)
	CreateBranch(ctx context.Context, repo, newBranch, fromBranch string) error
	CreateFork(ctx context.Context, upstreamRepo, targetOrg string) (*scm.Repo, error)
	CreatePull(ctx context.Context, baseRepo, head, baseBranch, title, body string) (string, error)
	ListOpenPulls(ctx context.Context, baseRepo string) ([]scm.PullRequest, error)
	CommitURL(repo, commitID string) string
	Mirror(ctx context.Context, sourceURL, targetURL, sourceBranch string) (*scm.MirrorResult, error)
}

// CIGateway is the slice of the Jenkins client the orchestrator uses.
type CIGateway interface {
	ScanOrganization(ctx context.Context, org string) error
	JobExists(ctx context.Context, fullName string) (bool, error)
	GetJobInfo(ctx context.Context, fullName string, depth int) (*jenkins.JobInfo, error)
	TriggerBuild(ctx context.Context, fullName string) (int64, error)
	GetQueueItem(ctx context.Context, itemNumber int64) (*jenkins.QueueItem, error)
	GetBuildStatus(ctx context.Context, fullName string, number int) (string, error)
	DeleteJob(ctx context.Context, fullName string) error
}

// BadgeGateway is the slice of the Badgr client the orchestrator uses.
type BadgeGateway interface {
	Issue(ctx context.Context, p badgr.IssueParams) (*badgr.Assertion, error)
}
