package scm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// mirrorRemote is the name given to the controlled repository remote inside
// the scratch clone.
const mirrorRemote = "sqaaas"

// MirrorResult describes the outcome of mirroring a repository.
type MirrorResult struct {
	// TargetURL is the URL the source was pushed to.
	TargetURL string
	// Branch is the active branch of the source clone, which is the
	// branch that was pushed.
	Branch string
}

// Mirror clones the source repository and pushes it to the target one.
// Authentication against the target uses an askpass helper scoped to a
// temporary directory, so the token never appears on a command line. A
// fetch/pull failure from the target (for example when it is still empty) is
// not fatal; only the final push is.
func (c *Client) Mirror(ctx context.Context, sourceURL, targetURL, sourceBranch string) (*MirrorResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.conf.MirrorTimeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "sqaaas-mirror-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	cloneArgs := []string{"clone"}
	if sourceBranch != "" {
		cloneArgs = append(cloneArgs, "--single-branch", "-b", sourceBranch)
	}
	cloneArgs = append(cloneArgs, "--", sourceURL, dir)
	if _, err := c.git(ctx, "", nil, cloneArgs...); err != nil {
		return nil, fmt.Errorf("cloning %s: %w", sourceURL, err)
	}

	env, err := c.askpassEnv(dir)
	if err != nil {
		return nil, err
	}

	if _, err := c.git(ctx, dir, env, "remote", "add", mirrorRemote, targetURL); err != nil {
		return nil, fmt.Errorf("adding remote %s: %w", targetURL, err)
	}

	branch, err := c.git(ctx, dir, env, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolving active branch: %w", err)
	}
	branch = strings.TrimSpace(branch)

	// The target may be empty or diverged; sync if we can, push anyway.
	if _, err := c.git(ctx, dir, env, "fetch", mirrorRemote); err != nil {
		c.logger.Warn("Could not fetch from target repository %s: %v", targetURL, err)
	} else if _, err := c.git(ctx, dir, env, "pull", mirrorRemote, branch); err != nil {
		c.logger.Warn("Could not pull from target repository %s: %v", targetURL, err)
	}

	if _, err := c.git(ctx, dir, env, "push", mirrorRemote, branch); err != nil {
		return nil, fmt.Errorf("pushing to %s: %w", targetURL, err)
	}
	c.logger.Debug("Repository %s mirrored into %s (branch %s)", sourceURL, targetURL, branch)

	return &MirrorResult{TargetURL: targetURL, Branch: branch}, nil
}

// askpassEnv writes the askpass helper into dir and returns the environment
// that makes git use it. The helper dies with dir.
func (c *Client) askpassEnv(dir string) ([]string, error) {
	helper := filepath.Join(dir, "git-askpass-helper.sh")
	script := "#!/bin/sh\nexec echo \"$GIT_PASSWORD\"\n"
	if err := os.WriteFile(helper, []byte(script), 0o700); err != nil {
		return nil, fmt.Errorf("writing askpass helper: %w", err)
	}

	return append(os.Environ(),
		"GIT_ASKPASS="+helper,
		"GIT_PASSWORD="+c.conf.Token,
		"GIT_TERMINAL_PROMPT=0",
	), nil
}

func (c *Client) git(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
