// Copyright 2025 The Pollinate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

// issuesPayload represents a GitHub issues webhook event
type issuesPayload struct {
	Action       string       `json:"action"`
	Issue        issue        `json:"issue"`
	Repository   repository   `json:"repository"`
	Installation installation `json:"installation"`
	Sender       user         `json:"sender"`
}

// issueCommentPayload represents a GitHub issue_comment webhook event
type issueCommentPayload struct {
	Action       string       `json:"action"`
	Issue        issue        `json:"issue"`
	Comment      comment      `json:"comment"`
	Repository   repository   `json:"repository"`
	Installation installation `json:"installation"`
	Sender       user         `json:"sender"`
}

type issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

type comment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
	User user   `json:"user"`
}

// repository contains repository metadata
type repository struct {
	FullName      string `json:"full_name"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	Owner         user   `json:"owner"`
}

type installation struct {
	ID int64 `json:"id"`
}

// user is the owner, sender or comment author
type user struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}
