// File path: internal/repo/publish.go
package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	github "github.com/google/go-github/v47/github"
	"golang.org/x/oauth2"

	"github.com/coderev-ai/coderev/internal/common"
)

// Publisher turns applied review edits into a pull request: new branch,
// commit, push, then a PR against the repository's base branch.
type Publisher struct {
	store *Store
	token string
}

// NewPublisher constructs a publisher over the given store. The GitHub
// token is read from the environment; publishing without one fails.
func NewPublisher(store *Store) *Publisher {
	return &Publisher{store: store, token: strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))}
}

// Publish commits the working copy of the clone to a fresh branch and opens
// a pull request. Returns the PR URL.
func (p *Publisher) Publish(ctx context.Context, repoID, title, body string) (string, error) {
	if p.token == "" {
		return "", errors.New("GITHUB_TOKEN required to publish changes")
	}
	root, err := p.store.Path(repoID)
	if err != nil {
		return "", err
	}
	repository, err := git.PlainOpen(root)
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}
	worktree, err := repository.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}

	branch := fmt.Sprintf("coderev/%s-%d", repoID, time.Now().Unix())
	if err := worktree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	}); err != nil {
		return "", fmt.Errorf("create branch %s: %w", branch, err)
	}
	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("stage changes: %w", err)
	}
	if title == "" {
		title = "Automated code review fixes"
	}
	if _, err := worktree.Commit(title, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "coderev",
			Email: "coderev@localhost",
			When:  time.Now(),
		},
	}); err != nil {
		return "", fmt.Errorf("commit changes: %w", err)
	}

	auth := &githttp.BasicAuth{Username: "token", Password: p.token}
	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	if err := repository.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth,
	}); err != nil {
		return "", fmt.Errorf("push branch: %s", maskError(err))
	}

	remoteURL, err := p.store.RemoteURL(repoID)
	if err != nil {
		return "", err
	}
	owner, name, err := parseGitHubRemote(remoteURL)
	if err != nil {
		return "", err
	}
	base := p.store.Branch(repoID)
	if body == "" {
		body = "Fixes generated by the automated code review pipeline."
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	pr, _, err := client.PullRequests.Create(ctx, owner, name, &github.NewPullRequest{
		Title: github.String(title),
		Head:  github.String(branch),
		Base:  github.String(base),
		Body:  github.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("create pull request: %s", maskError(err))
	}
	common.Logger().Info("repo: pull request opened",
		"repo", repoID, "branch", branch, "url", pr.GetHTMLURL())
	return pr.GetHTMLURL(), nil
}

// parseGitHubRemote extracts owner and repository name from an https or ssh
// GitHub remote URL.
func parseGitHubRemote(remote string) (owner, name string, err error) {
	trimmed := strings.TrimSuffix(remote, ".git")
	switch {
	case strings.Contains(trimmed, "github.com/"):
		parts := strings.Split(trimmed[strings.Index(trimmed, "github.com/")+len("github.com/"):], "/")
		if len(parts) >= 2 {
			return parts[0], parts[1], nil
		}
	case strings.Contains(trimmed, "github.com:"):
		parts := strings.Split(trimmed[strings.Index(trimmed, "github.com:")+len("github.com:"):], "/")
		if len(parts) >= 2 {
			return parts[0], parts[1], nil
		}
	}
	return "", "", fmt.Errorf("remote %s is not a recognized GitHub URL", MaskURL(remote))
}
