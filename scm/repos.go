package scm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Repo represents a repository on the platform.
type Repo struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
	CloneURL      string `json:"clone_url"`
	Owner         Owner  `json:"owner"`
}

// Owner is the user or organization a repository belongs to.
type Owner struct {
	Login string `json:"login"`
}

// ErrSameOrg is returned by CreateFork when the upstream repository already
// lives in the target organization, so no fork can be created.
var ErrSameOrg = errors.New("upstream repository already belongs to the target organization")

// GetRepo fetches a repository by its <org>/<name> identifier.
func (c *Client) GetRepo(ctx context.Context, repo string) (*Repo, error) {
	req, err := c.newRequest(ctx, "GET", fmt.Sprintf("repos/%s", repo), nil)
	if err != nil {
		return nil, err
	}

	r := new(Repo)
	if err := c.doRequest(req, r); err != nil {
		return nil, err
	}
	return r, nil
}

// RepoExists reports whether the repository exists on the platform.
func (c *Client) RepoExists(ctx context.Context, repo string) (bool, error) {
	_, err := c.GetRepo(ctx, repo)
	if err != nil {
		if IsErrHavingStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type createRepoRequest struct {
	Name string `json:"name"`
}

// CreateRepo creates a repository under the given organization.
func (c *Client) CreateRepo(ctx context.Context, org, name string) (*Repo, error) {
	req, err := c.newRequest(ctx, "POST", fmt.Sprintf("orgs/%s/repos", org), &createRepoRequest{Name: name})
	if err != nil {
		return nil, err
	}

	r := new(Repo)
	if err := c.doRequest(req, r); err != nil {
		return nil, err
	}
	c.logger.Debug("Repository <%s> created", r.FullName)
	return r, nil
}

// DeleteRepo removes the repository from the platform.
func (c *Client) DeleteRepo(ctx context.Context, repo string) error {
	req, err := c.newRequest(ctx, "DELETE", fmt.Sprintf("repos/%s", repo), nil)
	if err != nil {
		return err
	}
	if err := c.doRequest(req, nil); err != nil {
		return err
	}
	c.logger.Debug("Repository <%s> deleted", repo)
	return nil
}

type gitRef struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type createRefRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// CreateBranch creates newBranch in the repository, pointing at the head of
// fromBranch.
func (c *Client) CreateBranch(ctx context.Context, repo, newBranch, fromBranch string) error {
	req, err := c.newRequest(ctx, "GET", fmt.Sprintf("repos/%s/git/ref/heads/%s", repo, fromBranch), nil)
	if err != nil {
		return err
	}
	ref := new(gitRef)
	if err := c.doRequest(req, ref); err != nil {
		return err
	}

	req, err = c.newRequest(ctx, "POST", fmt.Sprintf("repos/%s/git/refs", repo), &createRefRequest{
		Ref: "refs/heads/" + newBranch,
		SHA: ref.Object.SHA,
	})
	if err != nil {
		return err
	}
	if err := c.doRequest(req, nil); err != nil {
		return err
	}
	c.logger.Debug("Branch <%s> created in repository <%s> from <%s>", newBranch, repo, fromBranch)
	return nil
}

type createForkRequest struct {
	Organization string `json:"organization,omitempty"`
}

// CreateFork forks the upstream repository into the target organization.
// When the upstream already belongs to that organization ErrSameOrg is
// returned instead.
func (c *Client) CreateFork(ctx context.Context, upstreamRepo, targetOrg string) (*Repo, error) {
	upstream, err := c.GetRepo(ctx, upstreamRepo)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(upstream.Owner.Login, targetOrg) {
		return nil, ErrSameOrg
	}

	req, err := c.newRequest(ctx, "POST", fmt.Sprintf("repos/%s/forks", upstreamRepo), &createForkRequest{
		Organization: targetOrg,
	})
	if err != nil {
		return nil, err
	}

	fork := new(Repo)
	if err := c.doRequest(req, fork); err != nil {
		return nil, err
	}
	c.logger.Debug("Repository <%s> forked into <%s>", upstreamRepo, fork.FullName)
	return fork, nil
}

// CommitURL returns the web page of a commit in the repository.
func (c *Client) CommitURL(repo, commitID string) string {
	base := strings.TrimSuffix(c.conf.Endpoint, "/")
	base = strings.Replace(base, "api.github.com", "github.com", 1)
	return fmt.Sprintf("%s/%s/commit/%s", base, repo, commitID)
}
