package pipeline

import (
	"context"
	"html/template"
	"io"
	"sort"
	"strings"

	"github.com/eosc-synergy/sqaaas/badgr"
)

// Criterion identifier prefixes of the two quality baselines. Criteria
// outside both are not badgeable.
const (
	swCriterionPrefix  = "QC."
	srvCriterionPrefix = "SvcQC"
)

// issueBadge requests an assertion for the criteria the pipeline validates.
// The caller is responsible for checking that the build earned it.
func (o *Orchestrator) issueBadge(ctx context.Context, record *Record) (*badgr.Assertion, error) {
	sw, srv := criteriaBuckets(record)
	if len(sw) == 0 && len(srv) == 0 {
		return nil, unprocessablef("pipeline validates no badgeable criteria")
	}

	badge, err := o.badges.Issue(ctx, badgr.IssueParams{
		CommitID:    record.CI.BuildInfo.CommitID,
		CommitURL:   record.CI.BuildInfo.CommitURL,
		CIBuildURL:  record.CI.BuildInfo.URL,
		SwCriteria:  sw,
		SrvCriteria: srv,
	})
	if err != nil {
		return nil, upstreamError(err, "cannot issue badge")
	}
	return badge, nil
}

// IssueBadge issues the badge on demand. The last observed build must have
// finished successfully.
func (o *Orchestrator) IssueBadge(ctx context.Context, id string) (*badgr.Assertion, error) {
	unlock, err := o.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, err := o.Get(id)
	if err != nil {
		return nil, err
	}
	if record.CI == nil || !terminalSuccess(record.CI.BuildInfo.Status) {
		return nil, unprocessablef("pipeline <%s> has no successful build to issue a badge for", id)
	}

	badge, err := o.issueBadge(ctx, record)
	if err != nil {
		return nil, err
	}

	record.CI.BuildInfo.Badge = badge
	record.CI.IssueBadge = false
	if err := o.store.Put(id, record); err != nil {
		return nil, err
	}
	return badge, nil
}

// GetBadge returns the badge issued for the pipeline's last build.
func (o *Orchestrator) GetBadge(id string) (*badgr.Assertion, error) {
	record, err := o.Get(id)
	if err != nil {
		return nil, err
	}
	if record.CI == nil || record.CI.BuildInfo.Badge == nil {
		return nil, unprocessablef("no badge issued for pipeline <%s>", id)
	}
	return record.CI.BuildInfo.Badge, nil
}

var badgeShareTmpl = template.Must(template.New("badge").Parse(
	`<a href="{{.OpenBadgeID}}" target="_blank"><img src="{{.Image}}" alt="SQAaaS badge" width="88"/></a>
<p>Badge issued on {{.CreatedAt}} for commit <a href="{{.CommitURL}}" target="_blank">{{.CommitID}}</a>.</p>
`))

// ShareBadge writes an HTML fragment embedding the badge, suitable for
// pasting into a project page.
func (o *Orchestrator) ShareBadge(id string, w io.Writer) error {
	record, err := o.Get(id)
	if err != nil {
		return err
	}
	if record.CI == nil || record.CI.BuildInfo.Badge == nil {
		return unprocessablef("no badge issued for pipeline <%s>", id)
	}

	badge := record.CI.BuildInfo.Badge
	return badgeShareTmpl.Execute(w, struct {
		OpenBadgeID string
		Image       string
		CreatedAt   string
		CommitID    string
		CommitURL   string
	}{
		OpenBadgeID: badge.OpenBadgeID,
		Image:       badge.Image,
		CreatedAt:   badge.CreatedAt,
		CommitID:    record.CI.BuildInfo.CommitID,
		CommitURL:   record.CI.BuildInfo.CommitURL,
	})
}

// criteriaBuckets splits the criteria named by the rendered config documents
// into the software and service baselines. Criteria matching neither prefix
// are dropped.
func criteriaBuckets(record *Record) (sw, srv []string) {
	seen := map[string]bool{}
	for _, cfg := range record.Artifacts.Config {
		criteria, ok := cfg.DataJSON["sqa_criteria"].(map[string]any)
		if !ok {
			continue
		}
		for name := range criteria {
			if seen[name] {
				continue
			}
			seen[name] = true
			switch {
			case strings.HasPrefix(name, srvCriterionPrefix):
				srv = append(srv, name)
			case strings.HasPrefix(name, swCriterionPrefix):
				sw = append(sw, name)
			}
		}
	}
	sort.Strings(sw)
	sort.Strings(srv)
	return sw, srv
}
