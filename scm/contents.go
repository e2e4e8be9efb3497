package scm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// FileContent is a file fetched from a repository.
type FileContent struct {
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Decode returns the decoded file bytes.
func (f *FileContent) Decode() ([]byte, error) {
	if f.Encoding != "base64" {
		return []byte(f.Content), nil
	}
	// The API wraps base64 payloads in newlines.
	return base64.StdEncoding.DecodeString(strings.ReplaceAll(f.Content, "\n", ""))
}

// GetFile fetches a file from the repository at the given branch. A nil
// result without error means the file does not exist.
func (c *Client) GetFile(ctx context.Context, repo, path, branch string) (*FileContent, error) {
	u := fmt.Sprintf("repos/%s/contents/%s", repo, escapePath(path))
	if branch != "" {
		u += "?ref=" + url.QueryEscape(branch)
	}
	req, err := c.newRequest(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	f := new(FileContent)
	if err := c.doRequest(req, f); err != nil {
		if IsErrHavingStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

type putFileRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type contentsResponse struct {
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// PutFile creates or updates a file in the repository and returns the SHA of
// the resulting commit.
func (c *Client) PutFile(ctx context.Context, repo, path string, data []byte, message, branch string) (string, error) {
	// An update needs the blob SHA of the current file.
	existing, err := c.GetFile(ctx, repo, path, branch)
	if err != nil {
		return "", err
	}

	body := &putFileRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  branch,
	}
	if existing != nil {
		body.SHA = existing.SHA
	}

	req, err := c.newRequest(ctx, "PUT", fmt.Sprintf("repos/%s/contents/%s", repo, escapePath(path)), body)
	if err != nil {
		return "", err
	}

	resp := new(contentsResponse)
	if err := c.doRequest(req, resp); err != nil {
		return "", err
	}
	c.logger.Debug("File <%s> pushed to repository <%s> (commit %s)", path, repo, resp.Commit.SHA)
	return resp.Commit.SHA, nil
}

type deleteFileRequest struct {
	Message string `json:"message"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch,omitempty"`
}

// DeleteFile removes a file from the repository.
func (c *Client) DeleteFile(ctx context.Context, repo, path, branch string) error {
	existing, err := c.GetFile(ctx, repo, path, branch)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	req, err := c.newRequest(ctx, "DELETE", fmt.Sprintf("repos/%s/contents/%s", repo, escapePath(path)), &deleteFileRequest{
		Message: fmt.Sprintf("Delete %s", path),
		SHA:     existing.SHA,
		Branch:  branch,
	})
	if err != nil {
		return err
	}
	return c.doRequest(req, nil)
}

// escapePath escapes each path segment, keeping the separators.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
