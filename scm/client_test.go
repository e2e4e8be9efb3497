package scm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
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
		Token:    "secret",
		Org:      "eosc-synergy",
	})
}

func TestRepoExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/eosc-synergy/present.sqaaas", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Repo{FullName: "eosc-synergy/present.sqaaas"})
	})
	mux.HandleFunc("/repos/eosc-synergy/absent.sqaaas", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "Not Found"}`))
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	exists, err := c.RepoExists(ctx, "eosc-synergy/present.sqaaas")
	if err != nil || !exists {
		t.Errorf("RepoExists(present) = %v, %v; want true, nil", exists, err)
	}

	exists, err = c.RepoExists(ctx, "eosc-synergy/absent.sqaaas")
	if err != nil || exists {
		t.Errorf("RepoExists(absent) = %v, %v; want false, nil", exists, err)
	}
}

func TestPutFileCreatesAndUpdates(t *testing.T) {
	var gotSHA string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/repo/contents/.sqa/config.yml", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "GET":
			json.NewEncoder(w).Encode(FileContent{
				SHA:      "blob123",
				Content:  base64.StdEncoding.EncodeToString([]byte("old")),
				Encoding: "base64",
			})
		case "PUT":
			var body putFileRequest
			json.NewDecoder(r.Body).Decode(&body)
			gotSHA = body.SHA
			json.NewEncoder(w).Encode(map[string]any{
				"commit": map[string]any{"sha": "commit456"},
			})
		}
	})
	mux.HandleFunc("/repos/org/repo/contents/Jenkinsfile", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "GET":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message": "Not Found"}`))
		case "PUT":
			var body putFileRequest
			json.NewDecoder(r.Body).Decode(&body)
			if body.SHA != "" {
				t.Errorf("create sent a blob SHA: %q", body.SHA)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"commit": map[string]any{"sha": "commit789"},
			})
		}
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	commit, err := c.PutFile(ctx, "org/repo", ".sqa/config.yml", []byte("new"), "Update .sqa/config.yml", "main")
	if err != nil {
		t.Fatalf("PutFile(update) error = %v", err)
	}
	if commit != "commit456" {
		t.Errorf("PutFile(update) commit = %q", commit)
	}
	if gotSHA != "blob123" {
		t.Errorf("update did not carry the existing blob SHA, got %q", gotSHA)
	}

	commit, err = c.PutFile(ctx, "org/repo", "Jenkinsfile", []byte("pipeline {}"), "Update Jenkinsfile", "main")
	if err != nil {
		t.Fatalf("PutFile(create) error = %v", err)
	}
	if commit != "commit789" {
		t.Errorf("PutFile(create) commit = %q", commit)
	}
}

func TestGetFileAbsent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "Not Found"}`))
	})
	c := newTestClient(t, mux)

	f, err := c.GetFile(context.Background(), "org/repo", "nope.yml", "main")
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if f != nil {
		t.Errorf("GetFile() = %v, want nil for an absent file", f)
	}
}

func TestCreateForkSameOrg(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/eosc-synergy/tool", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Repo{
			FullName: "eosc-synergy/tool",
			Owner:    Owner{Login: "eosc-synergy"},
		})
	})
	c := newTestClient(t, mux)

	_, err := c.CreateFork(context.Background(), "eosc-synergy/tool", "eosc-synergy")
	if !errors.Is(err, ErrSameOrg) {
		t.Errorf("CreateFork() error = %v, want ErrSameOrg", err)
	}
}

func TestErrorResponseCarriesStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message": "rate limited"}`))
	})
	c := newTestClient(t, mux)

	_, err := c.GetRepo(context.Background(), "org/repo")
	if !IsErrHavingStatus(err, http.StatusForbidden) {
		t.Errorf("IsErrHavingStatus(403) = false for %v", err)
	}

	var apierr *ErrorResponse
	if !errors.As(err, &apierr) || apierr.Message != "rate limited" {
		t.Errorf("error did not carry the upstream message: %v", err)
	}
}

func TestCommitURL(t *testing.T) {
	c := NewClient(logger.Discard, Config{Token: "t"})
	got := c.CommitURL("org/repo", "abc123")
	want := "https://github.com/org/repo/commit/abc123"
	if got != want {
		t.Errorf("CommitURL() = %q, want %q", got, want)
	}
}
