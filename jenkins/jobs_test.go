package jenkins

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eosc-synergy/sqaaas/logger"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(logger.Discard, Config{
		Endpoint: srv.URL,
		User:     "sqaaas",
		Token:    "secret",
	})
}

func TestFormatBranch(t *testing.T) {
	for in, want := range map[string]string{
		"main":        "main",
		"release/1.0": "release%252F1.0",
	} {
		if got := FormatBranch(in); got != want {
			t.Errorf("FormatBranch(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFullJobName(t *testing.T) {
	got := FullJobName("eosc-synergy-org", "demo.sqaaas", "release/1.0")
	want := "eosc-synergy-org/demo.sqaaas/release%252F1.0"
	if got != want {
		t.Errorf("FullJobName() = %q, want %q", got, want)
	}
}

func TestJobPath(t *testing.T) {
	got := jobPath("org/repo/branch")
	want := "job/org/job/repo/job/branch"
	if got != want {
		t.Errorf("jobPath() = %q, want %q", got, want)
	}
}

func TestJobExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/job/org/job/present/job/main/api/json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(JobInfo{Name: "main"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	exists, err := c.JobExists(ctx, "org/present/main")
	if err != nil || !exists {
		t.Errorf("JobExists(present) = %v, %v; want true, nil", exists, err)
	}

	exists, err = c.JobExists(ctx, "org/absent/main")
	if err != nil || exists {
		t.Errorf("JobExists(absent) = %v, %v; want false, nil", exists, err)
	}
}

func TestTriggerBuildParsesQueueItem(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/job/org/job/repo/job/main/build", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("trigger used method %s", r.Method)
		}
		w.Header().Set("Location", "https://jenkins.example/queue/item/42/")
		w.WriteHeader(http.StatusCreated)
	})
	c := newTestClient(t, mux)

	item, err := c.TriggerBuild(context.Background(), "org/repo/main")
	if err != nil {
		t.Fatalf("TriggerBuild() error = %v", err)
	}
	if item != 42 {
		t.Errorf("TriggerBuild() = %d, want 42", item)
	}
}

func TestGetQueueItemPending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/queue/item/42/api/json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 42, "why": "Waiting for next executor"})
	})
	c := newTestClient(t, mux)

	item, err := c.GetQueueItem(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetQueueItem() error = %v", err)
	}
	if item.Executable != nil {
		t.Errorf("pending queue item has an executable: %+v", item.Executable)
	}
}

func TestGetBuildStatus(t *testing.T) {
	results := map[string]any{}
	mux := http.NewServeMux()
	mux.HandleFunc("/job/org/job/repo/job/main/7/api/json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(results)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	for _, tc := range []struct {
		build map[string]any
		want  string
	}{
		{map[string]any{"number": 7, "building": true}, StatusExecuting},
		{map[string]any{"number": 7, "result": "SUCCESS"}, StatusSuccess},
		{map[string]any{"number": 7, "result": "UNSTABLE"}, StatusUnstable},
		{map[string]any{"number": 7, "result": "FAILURE"}, StatusFailure},
		{map[string]any{"number": 7, "result": "ABORTED"}, StatusAborted},
	} {
		results = tc.build
		got, err := c.GetBuildStatus(ctx, "org/repo/main", 7)
		if err != nil {
			t.Fatalf("GetBuildStatus(%v) error = %v", tc.build, err)
		}
		if got != tc.want {
			t.Errorf("GetBuildStatus(%v) = %q, want %q", tc.build, got, tc.want)
		}
	}
}

func TestScanOrganization(t *testing.T) {
	var scanned bool
	mux := http.NewServeMux()
	mux.HandleFunc("/job/eosc-synergy-org/build", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("delay") != "0" {
			t.Errorf("scan missing delay=0, got %q", r.URL.RawQuery)
		}
		scanned = true
		w.WriteHeader(http.StatusCreated)
	})
	c := newTestClient(t, mux)

	if err := c.ScanOrganization(context.Background(), "eosc-synergy-org"); err != nil {
		t.Fatalf("ScanOrganization() error = %v", err)
	}
	if !scanned {
		t.Errorf("scan endpoint was not called")
	}
}
