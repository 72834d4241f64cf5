// Package vcs is the git gateway for evolution commits. It shells out
// to the git binary with bounded per-command timeouts and never
// force-pushes; divergence is always resolved by pull-rebase before a
// new push attempt.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/theRebelliousNerd/evoloop/internal/logging"
)

// shortHashLen is how many hash characters push verification compares.
const shortHashLen = 7

// Status is the ahead/behind snapshot of the working checkout against
// its remote branch.
type Status struct {
	LocalHead      string `json:"local_head"`
	RemoteHead     string `json:"remote_head"`
	IsSynced       bool   `json:"is_synced"`
	Ahead          int    `json:"ahead"`
	Behind         int    `json:"behind"`
	HasUncommitted bool   `json:"has_uncommitted"`
}

// Gateway runs git against a single checkout. It keeps no state of its
// own; every method re-inspects the repository.
type Gateway struct {
	root    string
	remote  string
	branch  string
	timeout time.Duration
}

// NewGateway creates a gateway for the checkout at root. Empty remote,
// branch, or timeout select origin, main, and 30s.
func NewGateway(root, remote, branch string, timeout time.Duration) *Gateway {
	if remote == "" {
		remote = "origin"
	}
	if branch == "" {
		branch = "main"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{root: root, remote: remote, branch: branch, timeout: timeout}
}

// GitStatus reports the local/remote head relationship. The remote is
// fetched first so ahead/behind counts are current.
func (g *Gateway) GitStatus(ctx context.Context) (Status, error) {
	var status Status

	local, err := g.runGit(ctx, "rev-parse", "HEAD")
	if err != nil {
		return status, fmt.Errorf("failed to resolve local HEAD: %w", err)
	}
	status.LocalHead = shortHash(local)

	if _, err := g.runGit(ctx, "fetch", g.remote, g.branch, "--quiet"); err != nil {
		return status, fmt.Errorf("failed to fetch %s/%s: %w", g.remote, g.branch, err)
	}

	remote, err := g.runGit(ctx, "rev-parse", g.remoteRef())
	if err != nil {
		return status, fmt.Errorf("failed to resolve %s: %w", g.remoteRef(), err)
	}
	status.RemoteHead = shortHash(remote)

	counts, err := g.runGit(ctx, "rev-list", "--left-right", "--count", "HEAD..."+g.remoteRef())
	if err != nil {
		return status, fmt.Errorf("failed to count ahead/behind: %w", err)
	}
	if parts := strings.Fields(counts); len(parts) == 2 {
		status.Ahead, _ = strconv.Atoi(parts[0])
		status.Behind, _ = strconv.Atoi(parts[1])
	}
	status.IsSynced = status.Ahead == 0 && status.Behind == 0

	porcelain, err := g.runGit(ctx, "status", "--porcelain")
	if err != nil {
		return status, fmt.Errorf("failed to read working tree status: %w", err)
	}
	status.HasUncommitted = strings.TrimSpace(porcelain) != ""

	return status, nil
}

// SyncBeforeCommit pulls with rebase when the remote is ahead. Returns
// whether a pull happened plus a description.
func (g *Gateway) SyncBeforeCommit(ctx context.Context) (bool, string) {
	status, err := g.GitStatus(ctx)
	if err != nil {
		return false, fmt.Sprintf("git error: %v", err)
	}

	if status.Behind > 0 {
		if _, err := g.runGit(ctx, "pull", "--rebase", g.remote, g.branch); err != nil {
			return false, fmt.Sprintf("pull --rebase failed: %v", err)
		}
		logging.VCS("pulled %d commits from %s/%s before committing", status.Behind, g.remote, g.branch)
		return true, fmt.Sprintf("pulled %d commits from %s/%s", status.Behind, g.remote, g.branch)
	}
	return false, "already synced"
}

// CommitAndPush stages everything, commits with the given message, and
// pushes. A clean tree is success with an empty hash. A rejected push
// gets one pull-rebase retry before failing.
func (g *Gateway) CommitAndPush(ctx context.Context, message string) (bool, string, string) {
	if err := g.ensureIdentity(ctx); err != nil {
		return false, fmt.Sprintf("failed to configure git identity: %v", err), ""
	}

	if _, err := g.runGit(ctx, "add", "-A"); err != nil {
		return false, fmt.Sprintf("git add failed: %v", err), ""
	}

	oldHead, _ := g.runGit(ctx, "rev-parse", "HEAD")

	commitOut, commitErr := g.runGit(ctx, "commit", "-m", message)
	if strings.Contains(commitOut, "nothing to commit") {
		return true, "nothing to commit, working tree clean", ""
	}
	if commitErr != nil {
		return false, fmt.Sprintf("git commit failed: %v", commitErr), ""
	}

	newHead, err := g.runGit(ctx, "rev-parse", "HEAD")
	if err != nil {
		return false, fmt.Sprintf("failed to resolve HEAD after commit: %v", err), ""
	}
	if oldHead != "" && oldHead == newHead {
		return true, "no commit created (tree unchanged)", ""
	}

	logging.VCS("committed %s: %s", shortHash(newHead), message)

	if _, err := g.push(ctx); err != nil {
		logging.VCSWarn("push rejected, retrying after pull --rebase: %v", err)
		if _, pullErr := g.runGit(ctx, "pull", "--rebase", g.remote, g.branch); pullErr != nil {
			return false, fmt.Sprintf("push failed and rebase failed: %v", pullErr), newHead
		}
		// Rebase rewrites the commit, pick up the new hash.
		if rebased, err := g.runGit(ctx, "rev-parse", "HEAD"); err == nil {
			newHead = rebased
		}
		if _, err := g.push(ctx); err != nil {
			return false, fmt.Sprintf("push failed after retry: %v", err), newHead
		}
	}

	logging.VCS("pushed %s to %s/%s", shortHash(newHead), g.remote, g.branch)
	return true, fmt.Sprintf("pushed %s", shortHash(newHead)), newHead
}

// VerifyPush fetches the remote and checks that its head matches the
// hash we just pushed. Comparison uses short hashes.
func (g *Gateway) VerifyPush(ctx context.Context, expectedHash string) (bool, string) {
	if expectedHash == "" {
		return false, "no commit hash to verify"
	}

	if _, err := g.runGit(ctx, "fetch", g.remote, g.branch, "--quiet"); err != nil {
		return false, fmt.Sprintf("verify fetch failed: %v", err)
	}
	remoteHead, err := g.runGit(ctx, "rev-parse", g.remoteRef())
	if err != nil || remoteHead == "" {
		return false, fmt.Sprintf("cannot resolve remote head: %v", err)
	}

	expected := shortHash(expectedHash)
	remote := shortHash(remoteHead)
	if expected == remote {
		return true, fmt.Sprintf("push verified (%s)", remote)
	}
	return false, fmt.Sprintf("push mismatch: remote %s != expected %s", remote, expected)
}

// SafePush pushes with verification, rebasing onto the remote between
// attempts. Used for recovery outside the normal commit path.
func (g *Gateway) SafePush(ctx context.Context, maxRetries int) (bool, string) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if _, err := g.push(ctx); err == nil {
			localHead, headErr := g.runGit(ctx, "rev-parse", "HEAD")
			if headErr == nil {
				if ok, msg := g.VerifyPush(ctx, localHead); ok {
					return true, msg
				}
			}
		}
		if _, err := g.runGit(ctx, "pull", "--rebase", g.remote, g.branch); err != nil {
			logging.VCSWarn("pull --rebase failed on push attempt %d: %v", attempt+1, err)
		}
	}
	return false, fmt.Sprintf("push failed after %d retries", maxRetries)
}

func (g *Gateway) push(ctx context.Context) (string, error) {
	return g.runGit(ctx, "push", g.remote, "HEAD:"+g.branch)
}

// ensureIdentity sets a repo-local committer identity when none is
// configured, so evolution commits never fail on a fresh checkout.
func (g *Gateway) ensureIdentity(ctx context.Context) error {
	if email, err := g.runGit(ctx, "config", "user.email"); err == nil && email != "" {
		return nil
	}
	if _, err := g.runGit(ctx, "config", "user.email", "evoloop@localhost"); err != nil {
		return err
	}
	_, err := g.runGit(ctx, "config", "user.name", "evoloop")
	return err
}

func (g *Gateway) remoteRef() string {
	return g.remote + "/" + g.branch
}

// runGit executes one git command under the per-command timeout and
// returns trimmed stdout. Non-zero exits become errors carrying stderr.
func (g *Gateway) runGit(ctx context.Context, args ...string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "git", args...)
	cmd.Dir = g.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.VCSDebug("git %s", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("git %s timed out after %s", args[0], g.timeout)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return strings.TrimSpace(stdout.String()), fmt.Errorf("git %s: %s", args[0], detail)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func shortHash(hash string) string {
	if len(hash) > shortHashLen {
		return hash[:shortHashLen]
	}
	return hash
}
