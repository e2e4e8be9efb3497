package badgr

import (
	"context"
	"encoding/json"
	"fmt"
)

// Entity is anything Badgr identifies by an entityId and a display name.
// Issuers and badge classes share this shape.
type Entity struct {
	EntityID string `json:"entityId"`
	Name     string `json:"name"`
}

// GetIssuers returns the issuers associated with the authenticated user.
func (c *Client) GetIssuers(ctx context.Context) ([]Entity, error) {
	req, err := c.newRequest(ctx, "GET", "v2/issuers", nil)
	if err != nil {
		return nil, err
	}

	var resp apiResponse
	if err := c.doRequest(req, &resp); err != nil {
		return nil, err
	}
	return decodeEntities(resp.Result)
}

// GetBadgeClasses returns the badge classes belonging to the issuer.
func (c *Client) GetBadgeClasses(ctx context.Context, issuerID string) ([]Entity, error) {
	req, err := c.newRequest(ctx, "GET", fmt.Sprintf("v2/issuers/%s/badgeclasses", issuerID), nil)
	if err != nil {
		return nil, err
	}

	var resp apiResponse
	if err := c.doRequest(req, &resp); err != nil {
		return nil, err
	}
	return decodeEntities(resp.Result)
}

// ResolveBadgeClass returns the entityId of the configured badge class,
// found by exact display-name match of the issuer and then of the class
// within it.
func (c *Client) ResolveBadgeClass(ctx context.Context) (string, error) {
	issuers, err := c.GetIssuers(ctx)
	if err != nil {
		return "", err
	}
	issuerID, err := matchEntity(issuers, c.conf.IssuerName, "issuer")
	if err != nil {
		return "", err
	}

	classes, err := c.GetBadgeClasses(ctx, issuerID)
	if err != nil {
		return "", err
	}
	classID, err := matchEntity(classes, c.conf.BadgeClassName, "badgeclass")
	if err != nil {
		return "", err
	}

	c.logger.Debug("BadgeClass entityId for issuer <%s> and class <%s>: %s",
		c.conf.IssuerName, c.conf.BadgeClassName, classID)
	return classID, nil
}

// matchEntity finds the single entity with the given display name. Zero or
// multiple matches are errors.
func matchEntity(entities []Entity, name, kind string) (string, error) {
	var matches []Entity
	for _, e := range entities {
		if e.Name == name {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no %s found matching name <%s>", kind, name)
	case 1:
		return matches[0].EntityID, nil
	default:
		return "", fmt.Errorf("found more than one %s matching name <%s>", kind, name)
	}
}

func decodeEntities(result json.RawMessage) ([]Entity, error) {
	if len(result) == 0 {
		return nil, nil
	}
	var entities []Entity
	if err := json.Unmarshal(result, &entities); err != nil {
		return nil, fmt.Errorf("failed to decode result entities: %w", err)
	}
	return entities, nil
}
