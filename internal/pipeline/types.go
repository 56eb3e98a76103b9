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

package pipeline

import (
	"errors"
	"fmt"

	"github.com/mikelane/pollinate/internal/event"
)

// State is the position of a run in the pipeline
type State int

const (
	StateReceived State = iota
	StateVerified
	StateCommandFound
	StateGenerated
	StateBranched
	StateCommitted
	StatePRCreated
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "Received"
	case StateVerified:
		return "Verified"
	case StateCommandFound:
		return "CommandFound"
	case StateGenerated:
		return "Generated"
	case StateBranched:
		return "Branched"
	case StateCommitted:
		return "Committed"
	case StatePRCreated:
		return "PRCreated"
	case StateDone:
		return "Done"
	case StateAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is how a run ended, as seen by the webhook sender
type Outcome int

const (
	// OutcomeHandled means a pull request was opened
	OutcomeHandled Outcome = iota
	// OutcomeIgnored means the delivery needed no work
	OutcomeIgnored
	// OutcomeUnauthorized means the signature did not verify
	OutcomeUnauthorized
	// OutcomeBadRequest means the payload could not be decoded
	OutcomeBadRequest
	// OutcomeRateLimited means the repository sent too many deliveries
	OutcomeRateLimited
	// OutcomeFailed means a step failed after the delivery was accepted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHandled:
		return "handled"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeBadRequest:
		return "bad_request"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stage names a pipeline step in errors, logs and metrics
type Stage string

const (
	StageVerify      Stage = "verify"
	StageDedupe      Stage = "dedupe"
	StageDecode      Stage = "decode"
	StageExtract     Stage = "extract"
	StageThrottle    Stage = "throttle"
	StageAuthorize   Stage = "authorize"
	StageAcknowledge Stage = "acknowledge"
	StageGenerate    Stage = "generate"
	StageBranch      Stage = "branch"
	StageCommit      Stage = "commit"
	StagePullRequest Stage = "pull_request"
	StageComplete    Stage = "complete"
)

var (
	// ErrUnauthorized is returned when the webhook signature is missing or wrong
	ErrUnauthorized = errors.New("invalid webhook signature")
	// ErrPRCreation is returned when the host refuses to open the pull request
	ErrPRCreation = errors.New("pull request creation failed")
	// ErrRateLimited is returned when a repository exceeds its delivery rate
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrNoInstallation is returned when the client factory rejects the installation
	ErrNoInstallation = errors.New("installation client unavailable")
)

// StageError tags a step failure with the step that produced it
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Request is one webhook delivery as received over HTTP
type Request struct {
	EventType  string
	DeliveryID string
	Body       []byte
	Signature  string
}

// PullRequestResult describes the pull request a run opened
type PullRequestResult struct {
	URL        string
	Number     int
	HeadBranch string
	BaseBranch string
}

// Result is the final state of a run
type Result struct {
	// State is StateDone on success and StateAborted otherwise
	State State
	// Reached is the last state the run got to before it ended
	Reached State
	Outcome Outcome
	RunID   string
	// Reason explains an ignored delivery
	Reason string
	Event  *event.Event
	PR     *PullRequestResult
	Err    error
}
