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

package mutator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/pollinate/internal/ai"
	"github.com/mikelane/pollinate/internal/github"
)

// BranchPrefix is the namespace every generated branch lives under
const BranchPrefix = "pollinate/"

var (
	// ErrBranchConflict is returned when the generated branch name already exists
	ErrBranchConflict = errors.New("branch already exists")
	// ErrBranchCreation is returned when the base branch cannot be resolved or the branch cannot be created
	ErrBranchCreation = errors.New("branch creation failed")
	// ErrCommit is returned when writing a file to the branch fails
	ErrCommit = errors.New("commit failed")
)

// BranchRef describes the branch a run created and the commits written to it
type BranchRef struct {
	Name    string
	BaseSHA string
	// Commits holds one commit SHA per file, in write order
	Commits []string
}

// Mutator writes generated files to a repository through the GitHub API
type Mutator struct {
	client github.Client
	now    func() time.Time
}

// New creates a Mutator that uses client for all repository writes
func New(client github.Client) *Mutator {
	return &Mutator{
		client: client,
		now:    time.Now,
	}
}

// BranchName returns the branch used for a run on issue started at t
func BranchName(issue int, t time.Time) string {
	return fmt.Sprintf("%sissue-%d-%d", BranchPrefix, issue, t.UnixMilli())
}

// CommitMessage returns the message of the commit that writes path
func CommitMessage(path string) string {
	return "pollinate: add " + path
}

// Materialize creates a branch for issue off base in owner/repo and commits
// files to it in order. On a commit failure the returned error wraps
// ErrCommit and names the file; the partially written branch is returned
// and not deleted.
//
// Materialize is the one-shot form of CreateBranch followed by CommitFiles.
// The pipeline makes the two calls separately so that branch and commit
// failures are reported as distinct stages.
func (m *Mutator) Materialize(ctx context.Context, files []ai.GeneratedFile, owner, repo, base string, issue int) (*BranchRef, error) {
	ref, err := m.CreateBranch(ctx, owner, repo, base, issue)
	if err != nil {
		return nil, err
	}

	if err := m.CommitFiles(ctx, ref, owner, repo, files); err != nil {
		return ref, err
	}

	return ref, nil
}

// CreateBranch resolves base and creates the run branch for issue at its head
func (m *Mutator) CreateBranch(ctx context.Context, owner, repo, base string, issue int) (*BranchRef, error) {
	baseSHA, err := m.client.GetBranchSHA(ctx, owner, repo, base)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %w", ErrBranchCreation, base, err)
	}

	ref := &BranchRef{
		Name:    BranchName(issue, m.now()),
		BaseSHA: baseSHA,
	}

	if err := m.client.CreateBranch(ctx, owner, repo, ref.Name, baseSHA); err != nil {
		if errors.Is(err, github.ErrReferenceExists) {
			return nil, fmt.Errorf("%w: %s", ErrBranchConflict, ref.Name)
		}
		return nil, fmt.Errorf("%w: %w", ErrBranchCreation, err)
	}

	log.FromContext(ctx).Info("Created branch", "branch", ref.Name, "base", base, "sha", baseSHA)
	return ref, nil
}

// CommitFiles writes files to ref one at a time, appending each commit SHA
// to ref.Commits. It stops at the first failure.
func (m *Mutator) CommitFiles(ctx context.Context, ref *BranchRef, owner, repo string, files []ai.GeneratedFile) error {
	logger := log.FromContext(ctx)

	for i, file := range files {
		sha, err := m.commit(ctx, owner, repo, ref.Name, file)
		if err != nil {
			logger.Error(err, "Commit failed, leaving branch in place",
				"branch", ref.Name, "path", file.Path, "committed", i, "total", len(files))
			return fmt.Errorf("%w: %s: %w", ErrCommit, file.Path, err)
		}
		ref.Commits = append(ref.Commits, sha)
		logger.V(1).Info("Committed file", "branch", ref.Name, "path", file.Path, "commit", sha)
	}

	return nil
}

// commit writes one file, updating it when it already exists on the branch
func (m *Mutator) commit(ctx context.Context, owner, repo, branch string, file ai.GeneratedFile) (string, error) {
	existing, err := m.client.GetFileSHA(ctx, owner, repo, file.Path, branch)
	if err != nil {
		return "", err
	}

	commit, err := m.client.PutFile(ctx, owner, repo, &github.FileChange{
		Path:    file.Path,
		Content: []byte(file.Content),
		Message: CommitMessage(file.Path),
		Branch:  branch,
		SHA:     existing,
	})
	if err != nil {
		return "", err
	}

	return commit.SHA, nil
}
