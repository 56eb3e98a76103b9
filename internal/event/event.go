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

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which webhook event type an Event came from
type Kind string

const (
	// KindIssue is the issues event
	KindIssue Kind = "issues"
	// KindComment is the issue_comment event
	KindComment Kind = "issue_comment"
)

// ErrMalformed is returned for payloads that cannot be decoded
var ErrMalformed = errors.New("malformed webhook payload")

// Event is the decoded subset of an issues or issue_comment delivery
type Event struct {
	Kind           Kind
	Action         string
	IssueNumber    int
	Owner          string
	Repo           string
	InstallationID int64
	// Text is the issue body for KindIssue and the comment body for KindComment
	Text          string
	DefaultBranch string
	SenderLogin   string
	SenderType    string
}

// FullName returns owner/repo
func (e *Event) FullName() string {
	return e.Owner + "/" + e.Repo
}

// FromBot reports whether the delivery was caused by a bot account,
// including the app's own comments.
func (e *Event) FromBot() bool {
	return e.SenderType == "Bot" || strings.HasSuffix(e.SenderLogin, "[bot]")
}

// Decode parses body as an eventType delivery.
// Unsupported event types and actions return (nil, nil).
func Decode(eventType string, body []byte) (*Event, error) {
	switch Kind(eventType) {
	case KindIssue:
		return decodeIssues(body)
	case KindComment:
		return decodeIssueComment(body)
	default:
		return nil, nil
	}
}

func decodeIssues(body []byte) (*Event, error) {
	var payload issuesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch payload.Action {
	case "opened", "edited":
	default:
		return nil, nil
	}

	evt := &Event{
		Kind:           KindIssue,
		Action:         payload.Action,
		IssueNumber:    payload.Issue.Number,
		Owner:          payload.Repository.Owner.Login,
		Repo:           payload.Repository.Name,
		InstallationID: payload.Installation.ID,
		Text:           payload.Issue.Body,
		DefaultBranch:  payload.Repository.DefaultBranch,
		SenderLogin:    payload.Sender.Login,
		SenderType:     payload.Sender.Type,
	}
	if err := evt.validate(); err != nil {
		return nil, err
	}
	return evt, nil
}

func decodeIssueComment(body []byte) (*Event, error) {
	var payload issueCommentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch payload.Action {
	case "created", "edited":
	default:
		return nil, nil
	}

	sender := payload.Sender
	if sender.Login == "" {
		sender = payload.Comment.User
	}

	evt := &Event{
		Kind:           KindComment,
		Action:         payload.Action,
		IssueNumber:    payload.Issue.Number,
		Owner:          payload.Repository.Owner.Login,
		Repo:           payload.Repository.Name,
		InstallationID: payload.Installation.ID,
		Text:           payload.Comment.Body,
		DefaultBranch:  payload.Repository.DefaultBranch,
		SenderLogin:    sender.Login,
		SenderType:     sender.Type,
	}
	if err := evt.validate(); err != nil {
		return nil, err
	}
	return evt, nil
}

// validate rejects events that do not name the issue they belong to
func (e *Event) validate() error {
	if e.Owner == "" || e.Repo == "" {
		return fmt.Errorf("%w: missing repository", ErrMalformed)
	}
	if e.IssueNumber <= 0 {
		return fmt.Errorf("%w: missing issue number", ErrMalformed)
	}
	return nil
}
