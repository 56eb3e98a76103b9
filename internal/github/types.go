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
)

// ErrReferenceExists is returned by CreateBranch when the branch is already present
var ErrReferenceExists = errors.New("reference already exists")

// Client interface defines the contract for interacting with GitHub API
type Client interface {
	// GetBranchSHA resolves the head commit SHA of a branch
	GetBranchSHA(ctx context.Context, owner, repo, branch string) (string, error)
	// CreateBranch creates refs/heads/<branch> pointing at sha
	CreateBranch(ctx context.Context, owner, repo, branch, sha string) error
	// GetFileSHA returns the blob SHA of path at ref, or "" when the file does not exist
	GetFileSHA(ctx context.Context, owner, repo, path, ref string) (string, error)
	// PutFile creates or updates a single file as one commit
	PutFile(ctx context.Context, owner, repo string, change *FileChange) (*Commit, error)
	// CreatePullRequest opens a pull request
	CreatePullRequest(ctx context.Context, owner, repo string, pr *NewPullRequest) (*PullRequest, error)
	// CreateIssueComment posts a comment on an issue or pull request
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error
}

// ClientFactory builds clients scoped to a GitHub App installation
type ClientFactory interface {
	ForInstallation(ctx context.Context, installationID int64) (Client, error)
}

// FileChange describes one file write on a branch
type FileChange struct {
	Path    string
	Content []byte
	Message string
	Branch  string
	// SHA is the blob being replaced; empty creates a new file
	SHA string
}

// Commit is the commit created by a file write
type Commit struct {
	SHA     string
	HTMLURL string
}

// NewPullRequest holds the fields needed to open a pull request
type NewPullRequest struct {
	Title string
	Head  string
	Base  string
	Body  string
}

// PullRequest represents a created GitHub pull request
type PullRequest struct {
	Number     int
	URL        string
	HeadBranch string
	BaseBranch string
}
