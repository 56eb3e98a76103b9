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
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-github/v66/github"
)

// newTestClient points a githubClient at a test server
func newTestClient(t *testing.T, handler http.Handler) *githubClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := &githubClient{client: github.NewClient(nil)}
	client.client.BaseURL, _ = client.client.BaseURL.Parse(server.URL + "/")
	return client
}

// TestNewClient tests the creation of a new GitHub client
func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		apiURL      string
		wantBaseURL string
		wantError   bool
	}{
		{
			name:        "Default API URL",
			apiURL:      "",
			wantBaseURL: "https://api.github.com/",
		},
		{
			name:        "Enterprise API URL gets trailing slash",
			apiURL:      "https://ghe.example.com/api/v3",
			wantBaseURL: "https://ghe.example.com/api/v3/",
		},
		{
			name:      "Relative URL is rejected",
			apiURL:    "ghe.example.com",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(nil, tt.apiURL)
			if tt.wantError {
				if err == nil {
					t.Errorf("NewClient() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient() unexpected error: %v", err)
			}

			got := client.(*githubClient).client.BaseURL.String()
			if got != tt.wantBaseURL {
				t.Errorf("BaseURL = %s, want %s", got, tt.wantBaseURL)
			}
		})
	}
}

// TestGetBranchSHA tests resolving a branch head
func TestGetBranchSHA(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantSHA    string
		wantError  bool
	}{
		{
			name:       "Resolves branch",
			statusCode: http.StatusOK,
			body:       `{"ref":"refs/heads/main","object":{"sha":"abc123","type":"commit"}}`,
			wantSHA:    "abc123",
		},
		{
			name:       "Missing branch",
			statusCode: http.StatusNotFound,
			body:       `{"message":"Not Found"}`,
			wantError:  true,
		},
		{
			name:       "Ref without object",
			statusCode: http.StatusOK,
			body:       `{"ref":"refs/heads/main"}`,
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/repos/acme/widgets/git/ref/heads/main" {
					t.Errorf("Expected path /repos/acme/widgets/git/ref/heads/main, got %s", r.URL.Path)
				}
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			}))

			sha, err := client.GetBranchSHA(context.Background(), "acme", "widgets", "main")
			if tt.wantError && err == nil {
				t.Errorf("GetBranchSHA() expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("GetBranchSHA() unexpected error: %v", err)
			}
			if sha != tt.wantSHA {
				t.Errorf("GetBranchSHA() = %q, want %q", sha, tt.wantSHA)
			}
		})
	}
}

// TestCreateBranch tests ref creation and conflict detection
func TestCreateBranch(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantError  bool
		wantExists bool
	}{
		{
			name:       "Creates branch",
			statusCode: http.StatusCreated,
			body:       `{"ref":"refs/heads/pollinate/issue-1-1","object":{"sha":"abc123"}}`,
		},
		{
			name:       "Existing branch",
			statusCode: http.StatusUnprocessableEntity,
			body:       `{"message":"Reference already exists"}`,
			wantError:  true,
			wantExists: true,
		},
		{
			name:       "Invalid SHA",
			statusCode: http.StatusUnprocessableEntity,
			body:       `{"message":"Object does not exist"}`,
			wantError:  true,
		},
		{
			name:       "Forbidden",
			statusCode: http.StatusForbidden,
			body:       `{"message":"Resource not accessible by integration"}`,
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/repos/acme/widgets/git/refs" {
					t.Errorf("Expected POST /repos/acme/widgets/git/refs, got %s %s", r.Method, r.URL.Path)
				}

				// The refs API takes ref and sha at the top level
				var ref struct {
					Ref string `json:"ref"`
					SHA string `json:"sha"`
				}
				if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
					t.Errorf("Failed to decode body: %v", err)
				}
				if ref.Ref != "refs/heads/pollinate/issue-1-1" {
					t.Errorf("ref = %s, want refs/heads/pollinate/issue-1-1", ref.Ref)
				}
				if ref.SHA != "abc123" {
					t.Errorf("sha = %s, want abc123", ref.SHA)
				}

				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			}))

			err := client.CreateBranch(context.Background(), "acme", "widgets", "pollinate/issue-1-1", "abc123")
			if tt.wantError && err == nil {
				t.Errorf("CreateBranch() expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("CreateBranch() unexpected error: %v", err)
			}
			if got := errors.Is(err, ErrReferenceExists); got != tt.wantExists {
				t.Errorf("errors.Is(err, ErrReferenceExists) = %v, want %v", got, tt.wantExists)
			}
		})
	}
}

// TestGetFileSHA tests blob lookups for create-or-update
func TestGetFileSHA(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantSHA    string
		wantError  bool
	}{
		{
			name:       "Existing file",
			statusCode: http.StatusOK,
			body:       `{"type":"file","path":"docs/a.md","sha":"blob1"}`,
			wantSHA:    "blob1",
		},
		{
			name:       "New file",
			statusCode: http.StatusNotFound,
			body:       `{"message":"Not Found"}`,
			wantSHA:    "",
		},
		{
			name:       "Directory",
			statusCode: http.StatusOK,
			body:       `[{"type":"file","path":"docs/a.md/x","sha":"blob2"}]`,
			wantError:  true,
		},
		{
			name:       "Server error",
			statusCode: http.StatusInternalServerError,
			body:       `{"message":"boom"}`,
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/repos/acme/widgets/contents/docs/a.md" {
					t.Errorf("Expected path /repos/acme/widgets/contents/docs/a.md, got %s", r.URL.Path)
				}
				if got := r.URL.Query().Get("ref"); got != "feature" {
					t.Errorf("ref query = %q, want feature", got)
				}
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			}))

			sha, err := client.GetFileSHA(context.Background(), "acme", "widgets", "docs/a.md", "feature")
			if tt.wantError && err == nil {
				t.Errorf("GetFileSHA() expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("GetFileSHA() unexpected error: %v", err)
			}
			if sha != tt.wantSHA {
				t.Errorf("GetFileSHA() = %q, want %q", sha, tt.wantSHA)
			}
		})
	}
}

// TestPutFile tests that content is sent base64 encoded with the commit metadata
func TestPutFile(t *testing.T) {
	tests := []struct {
		name    string
		change  *FileChange
		wantSHA bool
	}{
		{
			name:   "New file",
			change: &FileChange{Path: "main.go", Content: []byte("package main\n"), Message: "pollinate: add main.go", Branch: "feature"},
		},
		{
			name:    "Replaces existing blob",
			change:  &FileChange{Path: "main.go", Content: []byte("package main\n"), Message: "pollinate: add main.go", Branch: "feature", SHA: "blob1"},
			wantSHA: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPut || r.URL.Path != "/repos/acme/widgets/contents/main.go" {
					t.Errorf("Expected PUT /repos/acme/widgets/contents/main.go, got %s %s", r.Method, r.URL.Path)
				}

				raw, _ := io.ReadAll(r.Body)
				var body map[string]string
				if err := json.Unmarshal(raw, &body); err != nil {
					t.Fatalf("Failed to decode body %s: %v", raw, err)
				}

				decoded, err := base64.StdEncoding.DecodeString(body["content"])
				if err != nil || string(decoded) != "package main\n" {
					t.Errorf("content = %q (%v), want base64 of the file", body["content"], err)
				}
				if body["message"] != "pollinate: add main.go" || body["branch"] != "feature" {
					t.Errorf("message/branch = %q/%q", body["message"], body["branch"])
				}
				if _, ok := body["sha"]; ok != tt.wantSHA {
					t.Errorf("sha present = %v, want %v", ok, tt.wantSHA)
				}

				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(`{"content":{"path":"main.go"},"commit":{"sha":"commit1","html_url":"https://github.com/acme/widgets/commit/commit1"}}`))
			}))

			commit, err := client.PutFile(context.Background(), "acme", "widgets", tt.change)
			if err != nil {
				t.Fatalf("PutFile() unexpected error: %v", err)
			}
			if commit.SHA != "commit1" {
				t.Errorf("commit SHA = %s, want commit1", commit.SHA)
			}
		})
	}
}

func TestPutFile_Error(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"sha does not match"}`))
	}))

	_, err := client.PutFile(context.Background(), "acme", "widgets", &FileChange{Path: "a.txt", Content: []byte("x")})
	if err == nil {
		t.Fatal("PutFile() expected error, got nil")
	}
	if statusCode(err) != http.StatusConflict {
		t.Errorf("statusCode(err) = %d, want 409", statusCode(err))
	}
}

// TestCreatePullRequest tests opening a pull request
func TestCreatePullRequest(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/acme/widgets/pulls" {
			t.Errorf("Expected POST /repos/acme/widgets/pulls, got %s %s", r.Method, r.URL.Path)
		}

		var pr github.NewPullRequest
		if err := json.NewDecoder(r.Body).Decode(&pr); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		if pr.GetHead() != "pollinate/issue-7-1" || pr.GetBase() != "main" {
			t.Errorf("head/base = %s/%s", pr.GetHead(), pr.GetBase())
		}
		if pr.GetTitle() != "Pollinate: add a README" {
			t.Errorf("title = %s", pr.GetTitle())
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(&github.PullRequest{
			Number:  github.Int(12),
			HTMLURL: github.String("https://github.com/acme/widgets/pull/12"),
			Head:    &github.PullRequestBranch{Ref: github.String("pollinate/issue-7-1")},
			Base:    &github.PullRequestBranch{Ref: github.String("main")},
		})
	}))

	pr, err := client.CreatePullRequest(context.Background(), "acme", "widgets", &NewPullRequest{
		Title: "Pollinate: add a README",
		Head:  "pollinate/issue-7-1",
		Base:  "main",
		Body:  "Closes #7",
	})
	if err != nil {
		t.Fatalf("CreatePullRequest() unexpected error: %v", err)
	}

	want := PullRequest{Number: 12, URL: "https://github.com/acme/widgets/pull/12", HeadBranch: "pollinate/issue-7-1", BaseBranch: "main"}
	if *pr != want {
		t.Errorf("CreatePullRequest() = %+v, want %+v", *pr, want)
	}
}

func TestCreatePullRequest_Error(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"Validation Failed"}`))
	}))

	pr, err := client.CreatePullRequest(context.Background(), "acme", "widgets", &NewPullRequest{Head: "x", Base: "main"})
	if err == nil {
		t.Fatal("CreatePullRequest() expected error, got nil")
	}
	if pr != nil {
		t.Errorf("CreatePullRequest() returned %+v alongside an error", pr)
	}
}

// TestCreateIssueComment tests posting progress comments
func TestCreateIssueComment(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantError  bool
	}{
		{"Comment created", http.StatusCreated, false},
		{"Issue locked", http.StatusForbidden, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/repos/acme/widgets/issues/42/comments" {
					t.Errorf("Expected POST /repos/acme/widgets/issues/42/comments, got %s %s", r.Method, r.URL.Path)
				}

				var comment github.IssueComment
				if err := json.NewDecoder(r.Body).Decode(&comment); err != nil {
					t.Errorf("Failed to decode body: %v", err)
				}
				if comment.GetBody() != "hello" {
					t.Errorf("body = %q, want hello", comment.GetBody())
				}

				w.WriteHeader(tt.statusCode)
				w.Write([]byte(`{"id":1}`))
			}))

			err := client.CreateIssueComment(context.Background(), "acme", "widgets", 42, "hello")
			if tt.wantError && err == nil {
				t.Errorf("CreateIssueComment() expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("CreateIssueComment() unexpected error: %v", err)
			}
		})
	}
}
