package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v2"

	"github.com/eosc-synergy/sqaaas/internal/jepl"
	"github.com/eosc-synergy/sqaaas/logger"
)

// Suffix appended to the pipeline name to form the controlled repository
// name; downstream automation keys off it.
const repoSuffix = ".sqaaas"

var pipelineNameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Config carries the organization-level settings of the orchestrator.
type Config struct {
	// ControlledOrg is the SCM organization owning pipeline repositories.
	ControlledOrg string

	// CIOrg is the name of the Jenkins organization folder scanning
	// ControlledOrg.
	CIOrg string

	// RepoBaseURL is the web base of the SCM platform, used to build
	// repository URLs.
	RepoBaseURL string
}

// Orchestrator implements the pipeline lifecycle operations by composing
// the gateways and the store.
type Orchestrator struct {
	conf   Config
	scm    SCMGateway
	ci     CIGateway
	badges BadgeGateway
	store  *Store
	namer  jepl.Namer
	locks  *xsync.MapOf[string, *sync.Mutex]
	logger logger.Logger
}

// New returns an orchestrator wired to the given collaborators.
func New(l logger.Logger, conf Config, scmGw SCMGateway, ciGw CIGateway, badgeGw BadgeGateway, store *Store, namer jepl.Namer) *Orchestrator {
	if conf.RepoBaseURL == "" {
		conf.RepoBaseURL = "https://github.com"
	}
	return &Orchestrator{
		conf:   conf,
		scm:    scmGw,
		ci:     ciGw,
		badges: badgeGw,
		store:  store,
		namer:  namer,
		locks:  xsync.NewMapOf[*sync.Mutex](),
		logger: l.WithPrefix("pipeline"),
	}
}

// lock takes the per-pipeline mutex with fail-fast semantics: concurrent
// mutations of the same pipeline are rejected, not serialized.
func (o *Orchestrator) lock(id string) (func(), error) {
	mu, _ := o.locks.LoadOrStore(id, &sync.Mutex{})
	if !mu.TryLock() {
		return nil, conflictf("pipeline <%s> is being modified by another request", id)
	}
	return mu.Unlock, nil
}

// Create registers a new pipeline from the raw request document and returns
// its ID.
func (o *Orchestrator) Create(ctx context.Context, raw []byte) (string, error) {
	req, err := jepl.ParseRequest(raw)
	if err != nil {
		return "", badRequestf("%v", err)
	}
	if !pipelineNameRe.MatchString(req.Name) {
		return "", badRequestf("invalid pipeline name <%s>: only characters in [A-Za-z0-9_.-] are allowed", req.Name)
	}

	artifacts, err := jepl.Render(req, o.namer)
	if err != nil {
		return "", badRequestf("%v", err)
	}

	id := uuid.NewString()
	repo := o.conf.ControlledOrg + "/" + req.Name + repoSuffix
	record := &Record{
		PipelineRepo:    repo,
		PipelineRepoURL: strings.TrimRight(o.conf.RepoBaseURL, "/") + "/" + repo,
		RawRequest:      raw,
		Artifacts:       *artifacts,
	}
	if err := o.store.Put(id, record); err != nil {
		return "", err
	}

	o.logger.Info("Pipeline <%s> created for repository <%s>", id, repo)
	return id, nil
}

// Get returns the record for the given pipeline.
func (o *Orchestrator) Get(id string) (*Record, error) {
	record, err := o.store.Get(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, notFoundf("pipeline <%s> not found", id)
	}
	return record, nil
}

// ListItem is one entry of the pipeline listing.
type ListItem struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PipelineRepo string `json:"pipeline_repo"`
}

// List returns a summary of every stored pipeline.
func (o *Orchestrator) List() ([]ListItem, error) {
	records, err := o.store.LoadAll()
	if err != nil {
		return nil, err
	}

	items := make([]ListItem, 0, len(records))
	for id, record := range records {
		items = append(items, ListItem{
			ID:           id,
			Name:         record.Name(),
			PipelineRepo: record.PipelineRepo,
		})
	}
	return items, nil
}

// Update re-renders the pipeline from the new request body. The store is
// only touched when the config, composer or job-script sections structurally
// differ from the stored request.
func (o *Orchestrator) Update(ctx context.Context, id string, raw []byte) error {
	unlock, err := o.lock(id)
	if err != nil {
		return err
	}
	defer unlock()

	record, err := o.Get(id)
	if err != nil {
		return err
	}

	newReq, err := jepl.ParseRequest(raw)
	if err != nil {
		return badRequestf("%v", err)
	}
	oldReq, err := jepl.ParseRequest(record.RawRequest)
	if err != nil {
		return err
	}

	if cmp.Equal(oldReq.ConfigData, newReq.ConfigData) &&
		cmp.Equal(oldReq.ComposerData, newReq.ComposerData) &&
		cmp.Equal(oldReq.JenkinsfileData, newReq.JenkinsfileData) {
		o.logger.Debug("Pipeline <%s> update is a no-op", id)
		return nil
	}

	artifacts, err := jepl.Render(newReq, o.namer)
	if err != nil {
		return badRequestf("%v", err)
	}

	record.RawRequest = raw
	record.Artifacts = *artifacts
	if err := o.store.Put(id, record); err != nil {
		return err
	}
	o.logger.Info("Pipeline <%s> updated", id)
	return nil
}

// Delete removes the pipeline. The controlled repository and the CI job are
// cleaned up best-effort: their failures are logged and the record is
// removed regardless.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	unlock, err := o.lock(id)
	if err != nil {
		return err
	}
	defer unlock()

	record, err := o.Get(id)
	if err != nil {
		return err
	}

	if exists, err := o.scm.RepoExists(ctx, record.PipelineRepo); err != nil {
		o.logger.Error("Cannot check repository <%s>: %v", record.PipelineRepo, err)
	} else if exists {
		if err := o.scm.DeleteRepo(ctx, record.PipelineRepo); err != nil {
			o.logger.Error("Cannot delete repository <%s>: %v", record.PipelineRepo, err)
		}
	}

	if record.CI != nil {
		if exists, err := o.ci.JobExists(ctx, record.CI.JobName); err != nil {
			o.logger.Error("Cannot check Jenkins job <%s>: %v", record.CI.JobName, err)
		} else if exists {
			// Rescanning makes the engine drop jobs whose repository
			// is gone.
			if err := o.ci.ScanOrganization(ctx, o.conf.CIOrg); err != nil {
				o.logger.Error("Cannot trigger organization scan: %v", err)
			}
		}
	}

	if err := o.store.Delete(id); err != nil {
		return err
	}
	o.logger.Info("Pipeline <%s> deleted", id)
	return nil
}

// ZipFileName is the attachment name of the compressed artifact bundle.
const ZipFileName = "sqaaas.zip"

// Compress streams a zip archive of the rendered files into w.
func (o *Orchestrator) Compress(id string, w io.Writer) error {
	record, err := o.Get(id)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	write := func(name, data string) error {
		f, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = io.WriteString(f, data)
		return err
	}

	for _, cfg := range record.Artifacts.Config {
		if err := write(cfg.FileName, cfg.DataYML); err != nil {
			return err
		}
	}
	if err := write(record.Artifacts.Composer.FileName, record.Artifacts.Composer.DataYML); err != nil {
		return err
	}
	for _, script := range record.Artifacts.CommandsScripts {
		if err := write(script.FileName, script.Data); err != nil {
			return err
		}
	}
	if err := write(jepl.JenkinsfileName, record.Artifacts.Jenkinsfile); err != nil {
		return err
	}
	return zw.Close()
}

// pushArtifacts pushes the rendered file set to the given branch of the
// repository. The returned commit is the SHA of the job-script push, which
// is always the last file pushed.
func (o *Orchestrator) pushArtifacts(ctx context.Context, record *Record, repo, branch string) (string, error) {
	push := func(name string, data []byte) (string, error) {
		commit, err := o.scm.PutFile(ctx, repo, name, data, fmt.Sprintf("Update %s", name), branch)
		if err != nil {
			return "", upstreamError(err, fmt.Sprintf("cannot push %s to repository <%s>", name, repo))
		}
		return commit, nil
	}

	for _, cfg := range record.Artifacts.Config {
		if _, err := push(cfg.FileName, []byte(cfg.DataYML)); err != nil {
			return "", err
		}
	}
	if _, err := push(record.Artifacts.Composer.FileName, []byte(record.Artifacts.Composer.DataYML)); err != nil {
		return "", err
	}
	for _, script := range record.Artifacts.CommandsScripts {
		if _, err := push(script.FileName, []byte(script.Data)); err != nil {
			return "", err
		}
	}
	return push(jepl.JenkinsfileName, []byte(record.Artifacts.Jenkinsfile))
}

// Proposal titles and bodies are fixed; the body lists the files the head
// branch adds.
const proposalTitle = "Set up SQAaaS pipeline"

// ProposeChange pushes the rendered files to a branch of the upstream
// repository (or of a fork when the upstream belongs to a different
// organization) and opens a change proposal. An already open proposal from
// the same head is returned instead of a duplicate.
func (o *Orchestrator) ProposeChange(ctx context.Context, id, upstreamURL, branch string) (string, error) {
	record, err := o.Get(id)
	if err != nil {
		return "", err
	}

	upstreamRepo, err := o.repoFromURL(upstreamURL)
	if err != nil {
		return "", err
	}

	upstream, err := o.scm.GetRepo(ctx, upstreamRepo)
	if err != nil {
		return "", upstreamError(err, fmt.Sprintf("cannot access repository <%s>", upstreamRepo))
	}
	baseBranch := branch
	if baseBranch == "" {
		baseBranch = upstream.DefaultBranch
	}

	var headRepo, headBranch, head string
	if strings.EqualFold(upstream.Owner.Login, o.conf.ControlledOrg) {
		// Same organization: no fork possible, use a scratch branch.
		headRepo = upstreamRepo
		headBranch = "sqaaas/" + o.namer.Token()
		head = headBranch
		if err := o.scm.CreateBranch(ctx, upstreamRepo, headBranch, baseBranch); err != nil {
			return "", upstreamError(err, fmt.Sprintf("cannot create branch in <%s>", upstreamRepo))
		}
	} else {
		fork, err := o.scm.CreateFork(ctx, upstreamRepo, o.conf.ControlledOrg)
		if err != nil {
			return "", upstreamError(err, fmt.Sprintf("cannot fork repository <%s>", upstreamRepo))
		}
		headRepo = fork.FullName
		headBranch = baseBranch
		head = o.conf.ControlledOrg + ":" + headBranch
	}

	if _, err := o.pushArtifacts(ctx, record, headRepo, headBranch); err != nil {
		return "", err
	}

	open, err := o.scm.ListOpenPulls(ctx, upstreamRepo)
	if err != nil {
		return "", upstreamError(err, fmt.Sprintf("cannot list change proposals of <%s>", upstreamRepo))
	}
	for _, pr := range open {
		if pr.HeadRepo() == headRepo && pr.HeadBranch() == headBranch {
			o.logger.Info("Reusing open change proposal %s", pr.HTMLURL)
			return pr.HTMLURL, nil
		}
	}

	body := "This change adds the SQAaaS pipeline files:\n"
	for _, name := range record.Artifacts.FileNames() {
		body += fmt.Sprintf("- `%s`\n", name)
	}

	prURL, err := o.scm.CreatePull(ctx, upstreamRepo, head, baseBranch, proposalTitle, body)
	if err != nil {
		return "", upstreamError(err, fmt.Sprintf("cannot open change proposal on <%s>", upstreamRepo))
	}
	return prURL, nil
}

// repoFromURL extracts the <org>/<name> identifier from a repository URL on
// the supported platform.
func (o *Orchestrator) repoFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", unprocessablef("invalid repository URL <%s>", raw)
	}
	base, err := url.Parse(o.conf.RepoBaseURL)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(u.Host, base.Host) {
		return "", unprocessablef("unsupported platform <%s>: only %s repositories are supported", u.Host, base.Host)
	}

	repo := strings.Trim(strings.TrimSuffix(u.Path, ".git"), "/")
	if strings.Count(repo, "/") != 1 {
		return "", unprocessablef("cannot extract <org>/<name> from repository URL <%s>", raw)
	}
	return repo, nil
}
