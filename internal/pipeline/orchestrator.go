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
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/pollinate/internal/ai"
	"github.com/mikelane/pollinate/internal/command"
	"github.com/mikelane/pollinate/internal/event"
	"github.com/mikelane/pollinate/internal/github"
	"github.com/mikelane/pollinate/internal/mutator"
)

// DefaultBaseBranch is used when a payload does not name the repository's default branch
const DefaultBaseBranch = "main"

// Verifier checks a payload against its signature header
type Verifier interface {
	Verify(payload []byte, signature string) bool
}

// Generator turns an instruction into a set of files
type Generator interface {
	Generate(ctx context.Context, instruction string) ([]ai.GeneratedFile, error)
}

// Materializer writes a generated project to a new branch
type Materializer interface {
	CreateBranch(ctx context.Context, owner, repo, base string, issue int) (*mutator.BranchRef, error)
	CommitFiles(ctx context.Context, ref *mutator.BranchRef, owner, repo string, files []ai.GeneratedFile) error
}

// Limiter throttles deliveries per key
type Limiter interface {
	Allow(key string) bool
}

// Deduper remembers delivery IDs. Claim reports whether id is new and
// records it; Release forgets it so a redelivery is processed again.
type Deduper interface {
	Claim(id string) bool
	Release(id string)
}

// MaterializerFunc builds the Materializer for a run from its installation client
type MaterializerFunc func(client github.Client) Materializer

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithTrigger replaces the command trigger token
func WithTrigger(trigger string) Option {
	return func(o *Orchestrator) {
		if trigger != "" {
			o.trigger = trigger
		}
	}
}

// WithDefaultBase sets the base branch used when the payload has none
func WithDefaultBase(branch string) Option {
	return func(o *Orchestrator) {
		if branch != "" {
			o.defaultBase = branch
		}
	}
}

// WithMetrics records run and stage metrics
func WithMetrics(metrics *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// WithLimiter throttles deliveries per repository
func WithLimiter(limiter Limiter) Option {
	return func(o *Orchestrator) {
		o.limiter = limiter
	}
}

// WithDeduper drops deliveries whose ID was already processed
func WithDeduper(deduper Deduper) Option {
	return func(o *Orchestrator) {
		o.deduper = deduper
	}
}

// WithMaterializer replaces how branches and commits are written
func WithMaterializer(fn MaterializerFunc) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newMaterializer = fn
		}
	}
}

// Orchestrator runs deliveries through the pipeline steps
type Orchestrator struct {
	verifier        Verifier
	generator       Generator
	clients         github.ClientFactory
	newMaterializer MaterializerFunc
	trigger         string
	defaultBase     string
	limiter         Limiter
	deduper         Deduper
	metrics         *Metrics
	newRunID        func() string
}

// NewOrchestrator creates an Orchestrator. Clients are built per run from
// the delivery's installation.
func NewOrchestrator(verifier Verifier, generator Generator, clients github.ClientFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		verifier:  verifier,
		generator: generator,
		clients:   clients,
		newMaterializer: func(client github.Client) Materializer {
			return mutator.New(client)
		},
		trigger:     command.DefaultTrigger,
		defaultBase: DefaultBaseBranch,
		newRunID:    uuid.NewString,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// run carries the state of one delivery between steps
type run struct {
	id      string
	req     Request
	state   State
	logger  logr.Logger
	claimed bool

	event        *event.Event
	instruction  string
	client       github.Client
	materializer Materializer
	files        []ai.GeneratedFile
	base         string
	branch       *mutator.BranchRef
	pr           *PullRequestResult
}

type step struct {
	stage Stage
	// target is the state a run is in once the step succeeds
	target State
	run    func(ctx context.Context, r *run) error
}

func (o *Orchestrator) steps() []step {
	return []step{
		{StageVerify, StateVerified, o.verify},
		{StageDedupe, StateVerified, o.dedupe},
		{StageDecode, StateVerified, o.decode},
		{StageExtract, StateCommandFound, o.extract},
		{StageThrottle, StateCommandFound, o.throttle},
		{StageAuthorize, StateCommandFound, o.authorize},
		{StageAcknowledge, StateCommandFound, o.acknowledge},
		{StageGenerate, StateGenerated, o.generate},
		{StageBranch, StateBranched, o.createBranch},
		{StageCommit, StateCommitted, o.commit},
		{StagePullRequest, StatePRCreated, o.openPullRequest},
		{StageComplete, StateDone, o.complete},
	}
}

// Process runs req through every step in order and reports how it ended.
// It never panics on a failing step; failures come back in Result.Err as a
// *StageError.
func (o *Orchestrator) Process(ctx context.Context, req Request) Result {
	r := &run{
		id:    o.newRunID(),
		req:   req,
		state: StateReceived,
	}
	r.logger = log.FromContext(ctx).WithValues("run", r.id, "delivery", req.DeliveryID, "event", req.EventType)

	started := time.Now()
	for _, s := range o.steps() {
		stepCtx := log.IntoContext(ctx, r.logger)

		stepStarted := time.Now()
		err := s.run(stepCtx, r)
		o.metrics.observeStage(s.stage, time.Since(stepStarted), err)

		if err != nil {
			result := o.abort(r, s.stage, err)
			o.metrics.observeRun(result.Outcome, time.Since(started))
			return result
		}
		r.state = s.target
	}

	r.logger.Info("Pull request opened", "url", r.pr.URL, "files", len(r.files), "duration", time.Since(started).String())
	o.metrics.observeRun(OutcomeHandled, time.Since(started))
	o.metrics.observeFiles(len(r.branch.Commits))

	return Result{
		State:   StateDone,
		Reached: StateDone,
		Outcome: OutcomeHandled,
		RunID:   r.id,
		Event:   r.event,
		PR:      r.pr,
	}
}

// abort ends a run at stage with err
func (o *Orchestrator) abort(r *run, stage Stage, err error) Result {
	result := Result{
		State:   StateAborted,
		Reached: r.state,
		RunID:   r.id,
		Event:   r.event,
		PR:      r.pr,
	}

	var skipErr *skipped
	switch {
	case errors.As(err, &skipErr):
		result.Outcome = OutcomeIgnored
		result.Reason = skipErr.reason
		r.logger.V(1).Info("Ignoring delivery", "reason", skipErr.reason)
		return result
	case errors.Is(err, ErrUnauthorized):
		result.Outcome = OutcomeUnauthorized
		r.logger.Info("Rejected delivery with invalid signature")
	case errors.Is(err, event.ErrMalformed):
		result.Outcome = OutcomeBadRequest
		r.logger.Info("Rejected malformed payload", "error", err.Error())
	case errors.Is(err, ErrRateLimited):
		result.Outcome = OutcomeRateLimited
		r.logger.Info("Rate limit exceeded")
	default:
		result.Outcome = OutcomeFailed
		r.logger.Error(err, "Pipeline step failed", "stage", string(stage), "state", r.state.String())
	}

	// A redelivery may retry the run unless a pull request already exists
	if r.claimed && r.pr == nil {
		o.deduper.Release(r.req.DeliveryID)
	}

	result.Err = &StageError{Stage: stage, Err: err}
	return result
}

// skipped ends a run without error
type skipped struct {
	reason string
}

func (s *skipped) Error() string {
	return "skipped: " + s.reason
}

func skip(reason string) error {
	return &skipped{reason: reason}
}
