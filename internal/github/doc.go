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

// Package github provides GitHub API integration for Pollinate.
//
// This package implements the small slice of the GitHub REST API the
// pipeline needs to turn generated files into a pull request and to report
// back on the triggering issue.
//
// Key features:
//   - Resolve a branch head and create a new branch from it
//   - Create or update files on a branch, one commit per file
//   - Open pull requests and post issue comments
//   - GitHub App authentication with cached installation tokens
//
// Authentication:
//
// Pollinate runs as a GitHub App. AppClientFactory keeps one ghinstallation
// transport per installation. The transport signs the App JWT, exchanges it
// for an installation access token and refreshes the token shortly before
// it expires, so every client built for an installation shares one token.
//
// The App needs the following repository permissions:
//   - contents: write (branches and commits)
//   - pull_requests: write
//   - issues: write (progress comments)
//
// Example usage:
//
//	factory, err := github.NewAppClientFactory(appID, privateKeyPEM, "", nil)
//	if err != nil {
//	    return err
//	}
//
//	client, err := factory.ForInstallation(ctx, installationID)
//	if err != nil {
//	    return err
//	}
//	err = client.CreateIssueComment(ctx, "owner", "repo", 42, "On it!")
//
// Errors:
//
// Calls are made exactly once. Failures are returned wrapped; a branch that
// already exists is reported as ErrReferenceExists so callers can tell a
// naming collision apart from other host failures.
package github
