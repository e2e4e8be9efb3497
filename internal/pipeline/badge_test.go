package pipeline

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/eosc-synergy/sqaaas/jenkins"
)

// finishBuild fakes a finished run so badge operations have something to
// work with.
func finishBuild(t *testing.T, o *Orchestrator, id, status string) {
	t.Helper()
	err := o.store.UpdateCI(id, func(r *Record) error {
		r.CI = &CIBinding{
			JobName: "myorg-ci/demo.sqaaas/main",
			BuildInfo: BuildInfo{
				Number:    1,
				URL:       "https://ci.example/job/demo/1/",
				Status:    status,
				CommitID:  "sha-1",
				CommitURL: "https://github.example/myorg/demo.sqaaas/commit/sha-1",
			},
		}
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateCI() error = %v", err)
	}
}

func TestIssueBadgeOnDemand(t *testing.T) {
	o, _, _, badgeFake := newTestOrchestrator(t)

	id := mustCreate(t, o, rawRequest("demo", "QC.Uni", "make test"))
	finishBuild(t, o, id, jenkins.StatusUnstable)

	badge, err := o.IssueBadge(context.Background(), id)
	if err != nil {
		t.Fatalf("IssueBadge() error = %v", err)
	}
	if badge.OpenBadgeID == "" {
		t.Error("badge has no open badge ID")
	}

	if len(badgeFake.issued) != 1 {
		t.Fatalf("issued %d badges, want 1", len(badgeFake.issued))
	}
	params := badgeFake.issued[0]
	if diff := cmp.Diff([]string{"QC.Uni"}, params.SwCriteria); diff != "" {
		t.Errorf("SwCriteria diff (-want +got):\n%s", diff)
	}
	if params.CommitID != "sha-1" {
		t.Errorf("CommitID = %q, want sha-1", params.CommitID)
	}
	if params.CIBuildURL != "https://ci.example/job/demo/1/" {
		t.Errorf("CIBuildURL = %q", params.CIBuildURL)
	}

	record, _ := o.Get(id)
	if record.CI.BuildInfo.Badge == nil {
		t.Error("badge not persisted")
	}
}

func TestIssueBadgeNeedsSuccessfulBuild(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	id := mustCreate(t, o, rawRequest("demo", "QC.Sty", "make lint"))

	// Never run.
	if _, err := o.IssueBadge(context.Background(), id); !IsErrWithStatus(err, http.StatusUnprocessableEntity) {
		t.Errorf("IssueBadge() error = %v, want a 422", err)
	}

	// Run, but failed.
	finishBuild(t, o, id, jenkins.StatusFailure)
	if _, err := o.IssueBadge(context.Background(), id); !IsErrWithStatus(err, http.StatusUnprocessableEntity) {
		t.Errorf("IssueBadge() error = %v, want a 422", err)
	}
}

func TestGetBadge(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	id := mustCreate(t, o, rawRequest("demo", "QC.Sty", "make lint"))

	if _, err := o.GetBadge(id); !IsErrWithStatus(err, http.StatusUnprocessableEntity) {
		t.Errorf("GetBadge() error = %v, want a 422", err)
	}

	finishBuild(t, o, id, jenkins.StatusSuccess)
	if _, err := o.IssueBadge(context.Background(), id); err != nil {
		t.Fatalf("IssueBadge() error = %v", err)
	}

	badge, err := o.GetBadge(id)
	if err != nil {
		t.Fatalf("GetBadge() error = %v", err)
	}
	if badge.EntityID != "badge-1" {
		t.Errorf("EntityID = %q, want badge-1", badge.EntityID)
	}
}

func TestShareBadge(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	id := mustCreate(t, o, rawRequest("demo", "QC.Sty", "make lint"))
	finishBuild(t, o, id, jenkins.StatusSuccess)
	if _, err := o.IssueBadge(context.Background(), id); err != nil {
		t.Fatalf("IssueBadge() error = %v", err)
	}

	var buf bytes.Buffer
	if err := o.ShareBadge(id, &buf); err != nil {
		t.Fatalf("ShareBadge() error = %v", err)
	}

	html := buf.String()
	for _, want := range []string{
		"https://badgr.example/public/assertions/badge-1",
		"https://github.example/myorg/demo.sqaaas/commit/sha-1",
		"<img",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("fragment does not contain %q:\n%s", want, html)
		}
	}
}

func TestCriteriaBuckets(t *testing.T) {
	o, _, _, badgeFake := newTestOrchestrator(t)

	raw := []byte(`{
		"name": "demo",
		"config_data": [{
			"sqa_criteria": {
				"QC.Sty": {"repos": [{"container": "checker", "commands": ["make lint"]}]},
				"SvcQC.Dep": {"repos": [{"container": "checker", "commands": ["make deploy-check"]}]}
			}
		}],
		"composer_data": {"version": "3", "services": {"checker": {"image": "alpine"}}}
	}`)
	id := mustCreate(t, o, raw)
	finishBuild(t, o, id, jenkins.StatusSuccess)

	if _, err := o.IssueBadge(context.Background(), id); err != nil {
		t.Fatalf("IssueBadge() error = %v", err)
	}

	params := badgeFake.issued[0]
	if diff := cmp.Diff([]string{"QC.Sty"}, params.SwCriteria); diff != "" {
		t.Errorf("SwCriteria diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"SvcQC.Dep"}, params.SrvCriteria); diff != "" {
		t.Errorf("SrvCriteria diff (-want +got):\n%s", diff)
	}
}
