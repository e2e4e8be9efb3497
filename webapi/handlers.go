package webapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eosc-synergy/sqaaas/internal/jepl"
	"github.com/eosc-synergy/sqaaas/internal/pipeline"
	"github.com/eosc-synergy/sqaaas/jenkins"
)

// maxRequestBody caps pipeline request documents at 1 MiB.
const maxRequestBody = 1 << 20

func (s *Server) readBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if len(raw) > maxRequestBody {
		return nil, errors.New("request body too large")
	}
	return raw, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) createPipeline(w http.ResponseWriter, r *http.Request) {
	raw, err := s.readBody(r)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	id, err := s.pipelines.Create(r.Context(), raw)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
}

func (s *Server) listPipelines(w http.ResponseWriter, r *http.Request) {
	items, err := s.pipelines.List()
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getPipeline(w http.ResponseWriter, r *http.Request) {
	record, err := s.pipelines.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeOperationError(w, err)
		return
	}
	// The raw document, exactly as it was created or last updated.
	w.WriteHeader(http.StatusOK)
	w.Write(record.RawRequest)
}

func (s *Server) updatePipeline(w http.ResponseWriter, r *http.Request) {
	raw, err := s.readBody(r)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	if err := s.pipelines.Update(r.Context(), chi.URLParam(r, "id"), raw); err != nil {
		writeOperationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deletePipeline(w http.ResponseWriter, r *http.Request) {
	if err := s.pipelines.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeOperationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// rawSection serves one top-level section of the raw request document.
func (s *Server) rawSection(w http.ResponseWriter, r *http.Request, section func(*jepl.Request) any) {
	record, err := s.pipelines.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeOperationError(w, err)
		return
	}
	req, err := jepl.ParseRequest(record.RawRequest)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, section(req))
}

func (s *Server) getRawConfig(w http.ResponseWriter, r *http.Request) {
	s.rawSection(w, r, func(req *jepl.Request) any { return req.ConfigData })
}

func (s *Server) getRawComposer(w http.ResponseWriter, r *http.Request) {
	s.rawSection(w, r, func(req *jepl.Request) any { return req.ComposerData })
}

func (s *Server) getRawJenkinsfile(w http.ResponseWriter, r *http.Request) {
	s.rawSection(w, r, func(req *jepl.Request) any { return req.JenkinsfileData })
}

func (s *Server) getRenderedConfig(w http.ResponseWriter, r *http.Request) {
	record, err := s.pipelines.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeOperationError(w, err)
		return
	}

	files := make([]RenderedFile, 0, len(record.Artifacts.Config))
	for _, cfg := range record.Artifacts.Config {
		files = append(files, RenderedFile{FileName: cfg.FileName, Content: cfg.DataYML})
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) getRenderedComposer(w http.ResponseWriter, r *http.Request) {
	record, err := s.pipelines.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RenderedFile{
		FileName: record.Artifacts.Composer.FileName,
		Content:  record.Artifacts.Composer.DataYML,
	})
}

func (s *Server) getRenderedJenkinsfile(w http.ResponseWriter, r *http.Request) {
	record, err := s.pipelines.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RenderedFile{
		FileName: jepl.JenkinsfileName,
		Content:  record.Artifacts.Jenkinsfile,
	})
}

func (s *Server) getCommandsScripts(w http.ResponseWriter, r *http.Request) {
	record, err := s.pipelines.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeOperationError(w, err)
		return
	}

	scripts := record.Artifacts.CommandsScripts
	if scripts == nil {
		scripts = []jepl.CommandsScript{}
	}
	writeJSON(w, http.StatusOK, scripts)
}

func (s *Server) getCompressedFiles(w http.ResponseWriter, r *http.Request) {
	// Build the archive first so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := s.pipelines.Compress(chi.URLParam(r, "id"), &buf); err != nil {
		writeOperationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", pipeline.ZipFileName))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) runPipeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	issueBadge := false
	if q.Has("issue_badge") {
		v, err := strconv.ParseBool(q.Get("issue_badge"))
		issueBadge = err != nil || v // bare ?issue_badge counts as true
	}

	opts := pipeline.RunOptions{
		RepoURL:    q.Get("repo_url"),
		RepoBranch: q.Get("repo_branch"),
		IssueBadge: issueBadge,
	}
	if _, err := s.pipelines.Run(r.Context(), chi.URLParam(r, "id"), opts); err != nil {
		writeOperationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.pipelines.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeOperationError(w, err)
		return
	}
	if info.Status == jenkins.StatusNotExecuted {
		writeError(w, errors.New("pipeline has not been run yet"), http.StatusUnprocessableEntity)
		return
	}

	resp := StatusResponse{
		BuildURL:    info.URL,
		BuildStatus: info.Status,
	}
	if info.Badge != nil {
		resp.OpenBadgeID = info.Badge.OpenBadgeID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createPullRequest(w http.ResponseWriter, r *http.Request) {
	var req PullRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("malformed request body: %w", err), http.StatusBadRequest)
		return
	}
	if req.Repo == "" {
		writeError(w, errors.New("repo is required"), http.StatusBadRequest)
		return
	}

	prURL, err := s.pipelines.ProposeChange(r.Context(), chi.URLParam(r, "id"), req.Repo, req.Branch)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PullRequestResponse{PullRequestURL: prURL})
}

func (s *Server) issueBadge(w http.ResponseWriter, r *http.Request) {
	badge, err := s.pipelines.IssueBadge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badge)
}

func (s *Server) getBadge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if r.URL.Query().Get("share") == "html" {
		var buf bytes.Buffer
		if err := s.pipelines.ShareBadge(id, &buf); err != nil {
			writeOperationError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}

	badge, err := s.pipelines.GetBadge(id)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badge)
}
