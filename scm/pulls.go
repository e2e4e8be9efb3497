package scm

import (
	"context"
	"fmt"
)

// PullRequest is an open change proposal against a repository.
type PullRequest struct {
	HTMLURL string `json:"html_url"`
	Head    struct {
		Ref  string `json:"ref"`
		Repo struct {
			FullName string `json:"full_name"`
		} `json:"repo"`
	} `json:"head"`
}

// HeadRepo returns the <org>/<name> identifier of the proposal's head.
func (p *PullRequest) HeadRepo() string {
	return p.Head.Repo.FullName
}

// HeadBranch returns the branch name of the proposal's head.
func (p *PullRequest) HeadBranch() string {
	return p.Head.Ref
}

type createPullRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Head  string `json:"head"`
	Base  string `json:"base"`
}

// CreatePull opens a change proposal from head (either "branch" or
// "org:branch" for cross-repository heads) onto the base branch of baseRepo,
// returning its web URL.
func (c *Client) CreatePull(ctx context.Context, baseRepo, head, baseBranch, title, body string) (string, error) {
	req, err := c.newRequest(ctx, "POST", fmt.Sprintf("repos/%s/pulls", baseRepo), &createPullRequest{
		Title: title,
		Body:  body,
		Head:  head,
		Base:  baseBranch,
	})
	if err != nil {
		return "", err
	}

	pr := new(PullRequest)
	if err := c.doRequest(req, pr); err != nil {
		return "", err
	}
	c.logger.Debug("Change proposal opened on <%s>: %s", baseRepo, pr.HTMLURL)
	return pr.HTMLURL, nil
}

// ListOpenPulls returns the open change proposals targeting baseRepo.
func (c *Client) ListOpenPulls(ctx context.Context, baseRepo string) ([]PullRequest, error) {
	req, err := c.newRequest(ctx, "GET", fmt.Sprintf("repos/%s/pulls?state=open", baseRepo), nil)
	if err != nil {
		return nil, err
	}

	var pulls []PullRequest
	if err := c.doRequest(req, &pulls); err != nil {
		return nil, err
	}
	return pulls, nil
}
