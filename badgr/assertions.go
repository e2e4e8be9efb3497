package badgr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Anchors into the quality baselines, used to give criteria human-readable
// links inside the assertion narrative.
var (
	swCriteriaLinks = map[string]string{
		"QC.Sty": "https://indigo-dc.github.io/sqa-baseline/#code-style-qc.sty",
		"QC.Uni": "https://indigo-dc.github.io/sqa-baseline/#unit-testing-qc.uni",
		"QC.Fun": "https://indigo-dc.github.io/sqa-baseline/#functional-testing-qc.fun",
		"QC.Doc": "https://indigo-dc.github.io/sqa-baseline/#documentation-qc.doc",
		"QC.Sec": "https://indigo-dc.github.io/sqa-baseline/#security-qc.sec",
	}
	srvCriteriaLinks = map[string]string{}
)

// Assertion is an issued badge.
type Assertion struct {
	EntityID    string `json:"entityId"`
	OpenBadgeID string `json:"openBadgeId"`
	Image       string `json:"image"`
	CreatedAt   string `json:"createdAt"`
	Narrative   string `json:"narrative"`
}

// IssueParams ties an assertion to the commit and build that earned it.
type IssueParams struct {
	CommitID    string
	CommitURL   string
	CIBuildURL  string
	SwCriteria  []string
	SrvCriteria []string
}

type assertionRecipient struct {
	Identity string `json:"identity"`
	Hashed   bool   `json:"hashed"`
	Type     string `json:"type"`
}

type assertionEvidence struct {
	URL       string `json:"url"`
	Narrative string `json:"narrative"`
}

type assertionRequest struct {
	Recipient assertionRecipient  `json:"recipient"`
	Narrative string              `json:"narrative"`
	Evidence  []assertionEvidence `json:"evidence"`
}

// Issue posts a new assertion for the configured badge class. When the API
// returns more than one assertion the first is used.
func (c *Client) Issue(ctx context.Context, p IssueParams) (*Assertion, error) {
	classID, err := c.ResolveBadgeClass(ctx)
	if err != nil {
		return nil, err
	}

	body := &assertionRequest{
		Recipient: assertionRecipient{
			Identity: p.CommitURL,
			Hashed:   true,
			Type:     "url",
		},
		Narrative: narrative(p),
		Evidence: []assertionEvidence{{
			URL:       p.CIBuildURL,
			Narrative: "Build page from Jenkins CI",
		}},
	}

	req, err := c.newRequest(ctx, "POST", fmt.Sprintf("v2/badgeclasses/%s/assertions", classID), body)
	if err != nil {
		return nil, err
	}

	var resp apiResponse
	if err := c.doRequest(req, &resp); err != nil {
		return nil, err
	}

	var assertions []Assertion
	if err := json.Unmarshal(resp.Result, &assertions); err != nil {
		return nil, fmt.Errorf("failed to decode assertions: %w", err)
	}
	if len(assertions) == 0 {
		return nil, fmt.Errorf("credential issuer returned no assertion")
	}
	if len(assertions) > 1 {
		c.logger.Warn("More than one badge being issued, keeping the first")
	}

	c.logger.Info("Badge issued for commit %s: %s", p.CommitID, assertions[0].OpenBadgeID)
	return &assertions[0], nil
}

// narrative composes the markdown text listing the criteria the commit
// passed, one section per baseline.
func narrative(p IssueParams) string {
	var sections []string
	for _, bucket := range []struct {
		kind     string
		criteria []string
		links    map[string]string
	}{
		{"Software", p.SwCriteria, swCriteriaLinks},
		{"Service", p.SrvCriteria, srvCriteriaLinks},
	} {
		if len(bucket.criteria) == 0 {
			continue
		}
		var lines []string
		for _, criterion := range bucket.criteria {
			if link, ok := bucket.links[criterion]; ok {
				lines = append(lines, fmt.Sprintf("- [%s](%s)", criterion, link))
			} else {
				lines = append(lines, "- "+criterion)
			}
		}
		sections = append(sections, fmt.Sprintf(
			"Source code change (SHA: [%s](%s)) have passed successfully the\nvalidation of the following %s QA criteria:\n%s",
			p.CommitID, p.CommitURL, bucket.kind, strings.Join(lines, "\n")))
	}
	return strings.Join(sections, "\n\n")
}
