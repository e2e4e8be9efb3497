package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/eosc-synergy/sqaaas/badgr"
	"github.com/eosc-synergy/sqaaas/jenkins"
	"github.com/eosc-synergy/sqaaas/scm"
)

// fakeErr carries a status code like the gateway error types do.
type fakeErr struct {
	code int
	msg  string
}

func (e *fakeErr) Error() string   { return e.msg }
func (e *fakeErr) StatusCode() int { return e.code }

type fakeSCM struct {
	mtx sync.Mutex

	repos  map[string]*scm.Repo
	pushed map[string][]string // repo -> file names in push order

	branches []string
	pulls    []scm.PullRequest
	created  []string // URLs of pulls opened through CreatePull

	mirror    *scm.MirrorResult
	mirrorErr error

	deleted []string

	commits int
}

func newFakeSCM() *fakeSCM {
	return &fakeSCM{
		repos:  map[string]*scm.Repo{},
		pushed: map[string][]string{},
	}
}

func (f *fakeSCM) addRepo(fullName, defaultBranch, owner string) *scm.Repo {
	r := &scm.Repo{
		FullName:      fullName,
		DefaultBranch: defaultBranch,
		HTMLURL:       "https://github.example/" + fullName,
		CloneURL:      "https://github.example/" + fullName + ".git",
		Owner:         scm.Owner{Login: owner},
	}
	f.repos[fullName] = r
	return r
}

func (f *fakeSCM) RepoExists(ctx context.Context, repo string) (bool, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	_, ok := f.repos[repo]
	return ok, nil
}

func (f *fakeSCM) GetRepo(ctx context.Context, repo string) (*scm.Repo, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	r, ok := f.repos[repo]
	if !ok {
		return nil, &fakeErr{code: 404, msg: "repository not found"}
	}
	return r, nil
}

func (f *fakeSCM) CreateRepo(ctx context.Context, org, name string) (*scm.Repo, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.addRepo(org+"/"+name, "main", org), nil
}

func (f *fakeSCM) DeleteRepo(ctx context.Context, repo string) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	delete(f.repos, repo)
	f.deleted = append(f.deleted, repo)
	return nil
}

func (f *fakeSCM) PutFile(ctx context.Context, repo, path string, data []byte, message, branch string) (string, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.pushed[repo] = append(f.pushed[repo], path)
	f.commits++
	return fmt.Sprintf("sha-%d", f.commits), nil
}

func (f *fakeSCM) CreateBranch(ctx context.Context, repo, newBranch, fromBranch string) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.branches = append(f.branches, repo+"@"+newBranch)
	return nil
}

func (f *fakeSCM) CreateFork(ctx context.Context, upstreamRepo, targetOrg string) (*scm.Repo, error) {
	f.mtx.Lock()
	upstream, ok := f.repos[upstreamRepo]
	f.mtx.Unlock()
	if !ok {
		return nil, &fakeErr{code: 404, msg: "repository not found"}
	}
	if upstream.Owner.Login == targetOrg {
		return nil, scm.ErrSameOrg
	}
	_, name, _ := cutRepoName(upstreamRepo)
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.addRepo(targetOrg+"/"+name, upstream.DefaultBranch, targetOrg), nil
}

func cutRepoName(fullName string) (org, name string, ok bool) {
	for i := 0; i < len(fullName); i++ {
		if fullName[i] == '/' {
			return fullName[:i], fullName[i+1:], true
		}
	}
	return fullName, "", false
}

func (f *fakeSCM) CreatePull(ctx context.Context, baseRepo, head, baseBranch, title, body string) (string, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	u := fmt.Sprintf("https://github.example/%s/pull/%d", baseRepo, len(f.created)+1)
	f.created = append(f.created, u)
	return u, nil
}

func (f *fakeSCM) ListOpenPulls(ctx context.Context, baseRepo string) ([]scm.PullRequest, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.pulls, nil
}

func (f *fakeSCM) CommitURL(repo, commitID string) string {
	return "https://github.example/" + repo + "/commit/" + commitID
}

func (f *fakeSCM) Mirror(ctx context.Context, sourceURL, targetURL, sourceBranch string) (*scm.MirrorResult, error) {
	if f.mirrorErr != nil {
		return nil, f.mirrorErr
	}
	if f.mirror != nil {
		return f.mirror, nil
	}
	branch := sourceBranch
	if branch == "" {
		branch = "main"
	}
	return &scm.MirrorResult{TargetURL: targetURL, Branch: branch}, nil
}

type fakeCI struct {
	mtx sync.Mutex

	jobs      map[string]*jenkins.JobInfo
	queue     map[int64]*jenkins.QueueItem
	statuses  map[string]string // "job/number" -> status
	scans     int
	triggers  []string
	nextItem  int64
	failTrig  error
	trigCalls int
}

func newFakeCI() *fakeCI {
	return &fakeCI{
		jobs:     map[string]*jenkins.JobInfo{},
		queue:    map[int64]*jenkins.QueueItem{},
		statuses: map[string]string{},
		nextItem: 100,
	}
}

func (f *fakeCI) ScanOrganization(ctx context.Context, org string) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.scans++
	return nil
}

func (f *fakeCI) JobExists(ctx context.Context, fullName string) (bool, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	_, ok := f.jobs[fullName]
	return ok, nil
}

func (f *fakeCI) GetJobInfo(ctx context.Context, fullName string, depth int) (*jenkins.JobInfo, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.jobs[fullName], nil
}

func (f *fakeCI) TriggerBuild(ctx context.Context, fullName string) (int64, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.trigCalls++
	if f.failTrig != nil {
		return 0, f.failTrig
	}
	f.triggers = append(f.triggers, fullName)
	f.nextItem++
	return f.nextItem, nil
}

func (f *fakeCI) GetQueueItem(ctx context.Context, itemNumber int64) (*jenkins.QueueItem, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	item, ok := f.queue[itemNumber]
	if !ok {
		return &jenkins.QueueItem{ID: itemNumber}, nil
	}
	return item, nil
}

func (f *fakeCI) GetBuildStatus(ctx context.Context, fullName string, number int) (string, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	status, ok := f.statuses[fmt.Sprintf("%s/%d", fullName, number)]
	if !ok {
		return jenkins.StatusExecuting, nil
	}
	return status, nil
}

func (f *fakeCI) DeleteJob(ctx context.Context, fullName string) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	delete(f.jobs, fullName)
	return nil
}

type fakeBadges struct {
	mtx    sync.Mutex
	issued []badgr.IssueParams
	err    error
}

func (f *fakeBadges) Issue(ctx context.Context, p badgr.IssueParams) (*badgr.Assertion, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.issued = append(f.issued, p)
	return &badgr.Assertion{
		EntityID:    "badge-1",
		OpenBadgeID: "https://badgr.example/public/assertions/badge-1",
		Image:       "https://badgr.example/public/assertions/badge-1/image",
		CreatedAt:   "2024-01-01T00:00:00Z",
	}, nil
}
