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

// Package githubtest provides an in-memory github.Client for tests.
package githubtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mikelane/pollinate/internal/github"
)

// Call records one method invocation on the fake client
type Call struct {
	Method string
	// Target is the branch, path or issue the call acted on
	Target string
	Body   string
}

// Client is a recording github.Client. Branches and files live in memory;
// set the *Err fields to make the matching method fail.
type Client struct {
	mu sync.Mutex

	Branches map[string]string
	Files    map[string]string
	Calls    []Call

	GetBranchErr    error
	CreateBranchErr error
	GetFileErr      error
	// PutFileErr makes PutFile fail for the listed paths
	PutFileErr  map[string]error
	CreatePRErr error
	CommentErr  error
	PullRequest *github.PullRequest

	commitSerial int
}

// New returns a fake whose repository has a main branch at sha "base-sha"
func New() *Client {
	return &Client{
		Branches:   map[string]string{"main": "base-sha"},
		Files:      map[string]string{},
		PutFileErr: map[string]error{},
	}
}

var _ github.Client = (*Client)(nil)

func (c *Client) record(method, target, body string) {
	c.Calls = append(c.Calls, Call{Method: method, Target: target, Body: body})
}

// Methods returns the recorded method names in call order
func (c *Client) Methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	methods := make([]string, 0, len(c.Calls))
	for _, call := range c.Calls {
		methods = append(methods, call.Method)
	}
	return methods
}

// CallsTo returns the recorded calls of one method
func (c *Client) CallsTo(method string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()

	var calls []Call
	for _, call := range c.Calls {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// GetBranchSHA implements github.Client
func (c *Client) GetBranchSHA(_ context.Context, _, _, branch string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("GetBranchSHA", branch, "")
	if c.GetBranchErr != nil {
		return "", c.GetBranchErr
	}
	sha, ok := c.Branches[branch]
	if !ok {
		return "", fmt.Errorf("branch %s not found", branch)
	}
	return sha, nil
}

// CreateBranch implements github.Client
func (c *Client) CreateBranch(_ context.Context, _, _, branch, sha string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("CreateBranch", branch, sha)
	if c.CreateBranchErr != nil {
		return c.CreateBranchErr
	}
	if _, ok := c.Branches[branch]; ok {
		return fmt.Errorf("failed to create branch %s: %w", branch, github.ErrReferenceExists)
	}
	c.Branches[branch] = sha
	return nil
}

// GetFileSHA implements github.Client
func (c *Client) GetFileSHA(_ context.Context, _, _, path, ref string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("GetFileSHA", path, ref)
	if c.GetFileErr != nil {
		return "", c.GetFileErr
	}
	if _, ok := c.Files[ref+":"+path]; ok {
		return "blob-" + path, nil
	}
	return "", nil
}

// PutFile implements github.Client
func (c *Client) PutFile(_ context.Context, _, _ string, change *github.FileChange) (*github.Commit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("PutFile", change.Path, change.Message)
	if err := c.PutFileErr[change.Path]; err != nil {
		return nil, err
	}
	c.Files[change.Branch+":"+change.Path] = string(change.Content)
	c.commitSerial++
	return &github.Commit{SHA: fmt.Sprintf("commit-%d", c.commitSerial)}, nil
}

// CreatePullRequest implements github.Client
func (c *Client) CreatePullRequest(_ context.Context, owner, repo string, pr *github.NewPullRequest) (*github.PullRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("CreatePullRequest", pr.Head, pr.Title+"\n"+pr.Body)
	if c.CreatePRErr != nil {
		return nil, c.CreatePRErr
	}
	if c.PullRequest != nil {
		return c.PullRequest, nil
	}
	return &github.PullRequest{
		Number:     100,
		URL:        fmt.Sprintf("https://github.com/%s/%s/pull/100", owner, repo),
		HeadBranch: pr.Head,
		BaseBranch: pr.Base,
	}, nil
}

// CreateIssueComment implements github.Client
func (c *Client) CreateIssueComment(_ context.Context, _, _ string, number int, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("CreateIssueComment", fmt.Sprintf("#%d", number), body)
	return c.CommentErr
}

// Factory is a github.ClientFactory that always returns Client
type Factory struct {
	Client *Client
	Err    error

	mu            sync.Mutex
	Installations []int64
}

var _ github.ClientFactory = (*Factory)(nil)

// ForInstallation implements github.ClientFactory
func (f *Factory) ForInstallation(_ context.Context, installationID int64) (github.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Installations = append(f.Installations, installationID)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Client, nil
}
