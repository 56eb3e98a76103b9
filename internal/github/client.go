// MIT License
//
// Copyright (c) 2025 Mike Lane
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
)

// githubClient implements the Client interface using go-github
type githubClient struct {
	client *github.Client
}

// NewClient creates a new GitHub client on top of httpClient, which is
// expected to authenticate its requests. apiURL overrides the REST API
// root (for GitHub Enterprise Server, e.g. https://ghe.example.com/api/v3).
func NewClient(httpClient *http.Client, apiURL string) (Client, error) {
	client := github.NewClient(httpClient)

	if apiURL != "" {
		baseURL, err := parseAPIURL(apiURL)
		if err != nil {
			return nil, err
		}
		client.BaseURL = baseURL
	}

	return &githubClient{client: client}, nil
}

// parseAPIURL makes sure the API root ends with a slash, as go-github requires
func parseAPIURL(apiURL string) (*url.URL, error) {
	baseURL, err := url.Parse(strings.TrimSuffix(apiURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL %q: %w", apiURL, err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid GitHub API URL %q: missing scheme or host", apiURL)
	}
	return baseURL, nil
}

// GetBranchSHA resolves the head commit SHA of a branch
func (c *githubClient) GetBranchSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	ref, _, err := c.client.Git.GetRef(ctx, owner, repo, "refs/heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("failed to get branch %s: %w", branch, err)
	}

	sha := ref.GetObject().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("branch %s has no commit", branch)
	}

	return sha, nil
}

// CreateBranch creates refs/heads/<branch> pointing at sha
func (c *githubClient) CreateBranch(ctx context.Context, owner, repo, branch, sha string) error {
	ref := &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(sha)},
	}

	_, _, err := c.client.Git.CreateRef(ctx, owner, repo, ref)
	if err != nil {
		if isReferenceExists(err) {
			return fmt.Errorf("failed to create branch %s: %w", branch, ErrReferenceExists)
		}
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}

	return nil
}

// GetFileSHA returns the blob SHA of path at ref, or "" when the file does not exist
func (c *githubClient) GetFileSHA(ctx context.Context, owner, repo, path, ref string) (string, error) {
	opts := &github.RepositoryContentGetOptions{Ref: ref}

	file, _, _, err := c.client.Repositories.GetContents(ctx, owner, repo, path, opts)
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to get contents of %s: %w", path, err)
	}

	if file == nil {
		return "", fmt.Errorf("path %s is a directory", path)
	}

	return file.GetSHA(), nil
}

// PutFile creates or updates a single file as one commit
func (c *githubClient) PutFile(ctx context.Context, owner, repo string, change *FileChange) (*Commit, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(change.Message),
		Content: change.Content,
		Branch:  github.String(change.Branch),
	}
	if change.SHA != "" {
		opts.SHA = github.String(change.SHA)
	}

	// CreateFile and UpdateFile issue the same PUT; the SHA decides which it is
	resp, _, err := c.client.Repositories.CreateFile(ctx, owner, repo, change.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", change.Path, err)
	}

	return &Commit{
		SHA:     resp.Commit.GetSHA(),
		HTMLURL: resp.Commit.GetHTMLURL(),
	}, nil
}

// CreatePullRequest opens a pull request
func (c *githubClient) CreatePullRequest(ctx context.Context, owner, repo string, pr *NewPullRequest) (*PullRequest, error) {
	created, _, err := c.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(pr.Title),
		Head:  github.String(pr.Head),
		Base:  github.String(pr.Base),
		Body:  github.String(pr.Body),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}

	return c.convertPullRequest(created), nil
}

// CreateIssueComment posts a comment on an issue or pull request
func (c *githubClient) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}

	_, _, err := c.client.Issues.CreateComment(ctx, owner, repo, number, comment)
	if err != nil {
		return fmt.Errorf("failed to comment on issue #%d: %w", number, err)
	}

	return nil
}

// convertPullRequest converts a GitHub PR to our domain model
func (c *githubClient) convertPullRequest(pr *github.PullRequest) *PullRequest {
	if pr == nil {
		return nil
	}

	result := &PullRequest{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
	}

	if pr.Head != nil {
		result.HeadBranch = pr.Head.GetRef()
	}

	if pr.Base != nil {
		result.BaseBranch = pr.Base.GetRef()
	}

	return result
}

// statusCode extracts the HTTP status of a GitHub API error, or 0
func statusCode(err error) int {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	return 0
}

// isReferenceExists reports whether a ref creation failed on an existing ref
func isReferenceExists(err error) bool {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return false
	}
	return ghErr.Response.StatusCode == http.StatusUnprocessableEntity &&
		strings.Contains(strings.ToLower(ghErr.Message), "already exists")
}
