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

package pipeline_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mikelane/pollinate/internal/ai"
	"github.com/mikelane/pollinate/internal/event"
	"github.com/mikelane/pollinate/internal/github"
	"github.com/mikelane/pollinate/internal/github/githubtest"
	"github.com/mikelane/pollinate/internal/mutator"
	"github.com/mikelane/pollinate/internal/pipeline"
	"github.com/mikelane/pollinate/internal/webhook"
)

const secret = "pipeline-secret"

type fakeGenerator struct {
	files        []ai.GeneratedFile
	err          error
	instructions []string
	// onGenerate runs before the reply is returned
	onGenerate func()
}

func (g *fakeGenerator) Generate(_ context.Context, instruction string) ([]ai.GeneratedFile, error) {
	g.instructions = append(g.instructions, instruction)
	if g.onGenerate != nil {
		g.onGenerate()
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.files, nil
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func commentBody(text string, sender map[string]string, installation int64) []byte {
	payload := map[string]any{
		"action":  "created",
		"issue":   map[string]any{"number": 42, "title": "Health", "body": ""},
		"comment": map[string]any{"id": 1, "body": text},
		"repository": map[string]any{
			"full_name":      "acme/widgets",
			"name":           "widgets",
			"default_branch": "main",
			"owner":          map[string]string{"login": "acme"},
		},
		"sender": sender,
	}
	if installation != 0 {
		payload["installation"] = map[string]int64{"id": installation}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return body
}

func signedRequest(body []byte) pipeline.Request {
	return pipeline.Request{
		EventType:  "issue_comment",
		DeliveryID: "delivery-1",
		Body:       body,
		Signature:  sign(body),
	}
}

var user = map[string]string{"login": "octocat", "type": "User"}

type conflictingMaterializer struct{}

func (conflictingMaterializer) CreateBranch(context.Context, string, string, string, int) (*mutator.BranchRef, error) {
	return nil, fmt.Errorf("%w: pollinate/issue-42-1", mutator.ErrBranchConflict)
}

func (conflictingMaterializer) CommitFiles(context.Context, *mutator.BranchRef, string, string, []ai.GeneratedFile) error {
	return errors.New("unreachable")
}

// metricValue reads a counter from registry; label is matched against the
// first label value, "" matches an unlabelled metric.
func metricValue(registry *prometheus.Registry, name, label string) float64 {
	families, err := registry.Gather()
	Expect(err).NotTo(HaveOccurred())

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := metric.GetLabel()
			if (label == "" && len(labels) == 0) || (len(labels) > 0 && labels[0].GetValue() == label) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx          context.Context
		client       *githubtest.Client
		factory      *githubtest.Factory
		generator    *fakeGenerator
		registry     *prometheus.Registry
		orchestrator *pipeline.Orchestrator
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = githubtest.New()
		factory = &githubtest.Factory{Client: client}
		generator = &fakeGenerator{files: []ai.GeneratedFile{
			{Path: "health.go", Content: "package health"},
			{Path: "health_test.go", Content: "package health"},
		}}
		registry = prometheus.NewRegistry()
		orchestrator = pipeline.NewOrchestrator(
			webhook.NewVerifier(secret),
			generator,
			factory,
			pipeline.WithMetrics(pipeline.NewMetrics(registry)),
		)
	})

	Context("When a comment carries a command", func() {
		It("should acknowledge, branch, commit, open a PR and link it, in that order", func() {
			generator.onGenerate = func() {
				By("generating only after the acknowledgement and before any branch exists")
				Expect(client.Methods()).To(Equal([]string{"CreateIssueComment"}))
			}

			result := orchestrator.Process(ctx, signedRequest(commentBody("!Pollinate add health endpoint", user, 99)))

			Expect(result.Err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(pipeline.OutcomeHandled))
			Expect(result.State).To(Equal(pipeline.StateDone))
			Expect(result.RunID).NotTo(BeEmpty())
			Expect(generator.instructions).To(Equal([]string{"add health endpoint"}))
			Expect(factory.Installations).To(Equal([]int64{99}))

			Expect(client.Methods()).To(Equal([]string{
				"CreateIssueComment",
				"GetBranchSHA", "CreateBranch",
				"GetFileSHA", "PutFile",
				"GetFileSHA", "PutFile",
				"CreatePullRequest",
				"CreateIssueComment",
			}))

			By("creating a uniquely named branch for the issue")
			branch := client.CallsTo("CreateBranch")[0].Target
			Expect(branch).To(HavePrefix("pollinate/issue-42-"))

			By("committing each file in order")
			puts := client.CallsTo("PutFile")
			Expect(puts[0].Target).To(Equal("health.go"))
			Expect(puts[1].Target).To(Equal("health_test.go"))

			By("referencing the issue in the PR body")
			pr := client.CallsTo("CreatePullRequest")[0]
			Expect(pr.Target).To(Equal(branch))
			Expect(pr.Body).To(HavePrefix("Pollinate: add health endpoint\n"))
			Expect(pr.Body).To(ContainSubstring("#42"))
			Expect(pr.Body).To(ContainSubstring("> add health endpoint"))

			By("linking the PR in the completion comment")
			comments := client.CallsTo("CreateIssueComment")
			Expect(comments).To(HaveLen(2))
			Expect(comments[0].Target).To(Equal("#42"))
			Expect(comments[0].Body).To(ContainSubstring("add health endpoint"))
			Expect(comments[1].Body).To(ContainSubstring("https://github.com/acme/widgets/pull/100"))

			Expect(result.PR).To(Equal(&pipeline.PullRequestResult{
				URL:        "https://github.com/acme/widgets/pull/100",
				Number:     100,
				HeadBranch: branch,
				BaseBranch: "main",
			}))

			Expect(metricValue(registry, "pollinate_pipeline_files_committed_total", "")).To(Equal(2.0))
			Expect(metricValue(registry, "pollinate_pipeline_runs_total", "handled")).To(Equal(1.0))
		})

		It("should fall back to the configured base branch", func() {
			client.Branches["develop"] = "dev-sha"
			orchestrator = pipeline.NewOrchestrator(webhook.NewVerifier(secret), generator, factory, pipeline.WithDefaultBase("develop"))

			body := []byte(`{"action":"created","issue":{"number":5},"comment":{"body":"!Pollinate x"},"repository":{"name":"widgets","owner":{"login":"acme"}},"installation":{"id":1},"sender":{"login":"octocat"}}`)
			result := orchestrator.Process(ctx, signedRequest(body))

			Expect(result.Outcome).To(Equal(pipeline.OutcomeHandled))
			Expect(result.PR.BaseBranch).To(Equal("develop"))
			Expect(client.CallsTo("GetBranchSHA")[0].Target).To(Equal("develop"))
		})

		It("should honour a custom trigger", func() {
			orchestrator = pipeline.NewOrchestrator(webhook.NewVerifier(secret), generator, factory, pipeline.WithTrigger("/bloom"))

			result := orchestrator.Process(ctx, signedRequest(commentBody("/bloom write docs", user, 1)))
			Expect(result.Outcome).To(Equal(pipeline.OutcomeHandled))
			Expect(generator.instructions).To(Equal([]string{"write docs"}))
		})

		It("should truncate long PR titles", func() {
			long := strings.Repeat("word ", 40)
			result := orchestrator.Process(ctx, signedRequest(commentBody("!Pollinate "+long, user, 1)))
			Expect(result.Outcome).To(Equal(pipeline.OutcomeHandled))

			title, _, _ := strings.Cut(client.CallsTo("CreatePullRequest")[0].Body, "\n")
			Expect([]rune(title)).To(HaveLen(72))
			Expect(title).To(HaveSuffix("..."))
		})
	})

	Context("When the signature is invalid", func() {
		It("should reject the delivery without touching GitHub", func() {
			req := signedRequest(commentBody("!Pollinate add health endpoint", user, 99))
			req.Signature = "sha256=" + strings.Repeat("0", 64)

			result := orchestrator.Process(ctx, req)

			Expect(result.Outcome).To(Equal(pipeline.OutcomeUnauthorized))
			Expect(result.State).To(Equal(pipeline.StateAborted))
			Expect(result.Reached).To(Equal(pipeline.StateReceived))
			Expect(errors.Is(result.Err, pipeline.ErrUnauthorized)).To(BeTrue())

			var stageErr *pipeline.StageError
			Expect(errors.As(result.Err, &stageErr)).To(BeTrue())
			Expect(stageErr.Stage).To(Equal(pipeline.StageVerify))

			Expect(client.Calls).To(BeEmpty())
			Expect(factory.Installations).To(BeEmpty())
			Expect(generator.instructions).To(BeEmpty())
		})

		It("should reject a missing signature", func() {
			req := signedRequest(commentBody("!Pollinate x", user, 99))
			req.Signature = ""

			Expect(orchestrator.Process(ctx, req).Outcome).To(Equal(pipeline.OutcomeUnauthorized))
			Expect(client.Calls).To(BeEmpty())
		})
	})

	Context("When there is nothing to do", func() {
		DescribeTable("should ignore the delivery with no side effects",
			func(eventType string, body []byte, reason string) {
				req := signedRequest(body)
				req.EventType = eventType

				result := orchestrator.Process(ctx, req)

				Expect(result.Outcome).To(Equal(pipeline.OutcomeIgnored))
				Expect(result.State).To(Equal(pipeline.StateAborted))
				Expect(result.Err).NotTo(HaveOccurred())
				Expect(result.Reason).To(Equal(reason))
				Expect(client.Calls).To(BeEmpty())
				Expect(generator.instructions).To(BeEmpty())
			},
			Entry("no trigger line", "issue_comment", commentBody("looks good to me", user, 1), "no command"),
			Entry("trigger without instruction", "issue_comment", commentBody("!Pollinate   ", user, 1), "no command"),
			Entry("no installation", "issue_comment", commentBody("!Pollinate x", user, 0), "no installation"),
			Entry("bot sender", "issue_comment", commentBody("!Pollinate x", map[string]string{"login": "pollinate[bot]", "type": "Bot"}, 1), "sender is a bot"),
			Entry("unsupported event", "push", []byte(`{"ref":"refs/heads/main"}`), "unsupported event or action"),
			Entry("unsupported action", "issue_comment", []byte(`{"action":"deleted"}`), "unsupported event or action"),
		)

		It("should read commands from issue bodies", func() {
			body := []byte(`{"action":"opened","issue":{"number":8,"body":"Context\n!Pollinate scaffold a CLI"},"repository":{"name":"widgets","default_branch":"main","owner":{"login":"acme"}},"installation":{"id":3},"sender":{"login":"octocat","type":"User"}}`)
			req := signedRequest(body)
			req.EventType = "issues"

			result := orchestrator.Process(ctx, req)

			Expect(result.Outcome).To(Equal(pipeline.OutcomeHandled))
			Expect(result.Event.Kind).To(Equal(event.KindIssue))
			Expect(generator.instructions).To(Equal([]string{"scaffold a CLI"}))
		})
	})

	Context("When the payload is malformed", func() {
		It("should report a bad request", func() {
			result := orchestrator.Process(ctx, signedRequest([]byte(`{invalid json}`)))

			Expect(result.Outcome).To(Equal(pipeline.OutcomeBadRequest))
			Expect(errors.Is(result.Err, event.ErrMalformed)).To(BeTrue())
			Expect(client.Calls).To(BeEmpty())
		})
	})

	Context("When a step fails", func() {
		It("should stop after the acknowledgement when generation fails", func() {
			generator.err = ai.ErrProvider

			result := orchestrator.Process(ctx, signedRequest(commentBody("!Pollinate x", user, 1)))

			Expect(result.Outcome).To(Equal(pipeline.OutcomeFailed))
			Expect(result.Reached).To(Equal(pipeline.StateCommandFound))
			Expect(errors.Is(result.Err, ai.ErrProvider)).To(BeTrue())
			Expect(client.Methods()).To(Equal([]string{"CreateIssueComment"}))
			Expect(metricValue(registry, "pollinate_pipeline_stage_failures_total", "generate")).To(Equal(1.0))
			Expect(metricValue(registry, "pollinate_pipeline_runs_total", "failed")).To(Equal(1.0))
		})

		It("should surface a branch conflict", func() {
			orchestrator = pipeline.NewOrchestrator(webhook.NewVerifier(secret), generator, factory,
				pipeline.WithMaterializer(func(github.Client) pipeline.Materializer {
					return conflictingMaterializer{}
				}))

			result := orchestrator.Process(ctx, signedRequest(commentBody("!Pollinate x", user, 1)))

			Expect(result.Outcome).To(Equal(pipeline.OutcomeFailed))
			Expect(errors.Is(result.Err, mutator.ErrBranchConflict)).To(BeTrue())
			Expect(client.CallsTo("CreatePullRequest")).To(BeEmpty())
			Expect(client.CallsTo("CreateIssueComment")).To(HaveLen(1))
		})

		It("should not post a completion comment when a commit fails", func() {
			client.PutFileErr["health_test.go"] = errors.New("409")

			result := orchestrator.Process(ctx, signedRequest(commentBody("!Pollinate x", user, 1)))

			Expect(result.Outcome).To(Equal(pipeline.OutcomeFailed))
			Expect(result.Reached).To(Equal(pipeline.StateBranched))
			Expect(errors.Is(result.Err, mutator.ErrCommit)).To(BeTrue())
			Expect(client.CallsTo("PutFile")).To(HaveLen(2))
			Expect(client.CallsTo("CreatePullRequest")).To(BeEmpty())
			Expect(client.CallsTo("CreateIssueComment")).To(HaveLen(1))
		})

		It("should wrap pull request failures", func() {
			client.CreatePRErr = errors.New("422 Validation Failed")

			result := orchestrator.Process(ctx, signedRequest(commentBody("!Pollinate x", user, 1)))

			Expect(result.Outcome).To(Equal(pipeline.OutcomeFailed))
			Expect(errors.Is(result.Err, pipeline.ErrPRCreation)).To(BeTrue())
			Expect(client.CallsTo("CreateIssueComment")).To(HaveLen(1))
		})

		It("should fail before any comment when the installation is unusable", func() {
			factory.Err = errors.New("installation suspended")

			result := orchestrator.Process(ctx, signedRequest(commentBody("!Pollinate x", user, 1)))

			Expect(result.Outcome).To(Equal(pipeline.OutcomeFailed))
			Expect(errors.Is(result.Err, pipeline.ErrNoInstallation)).To(BeTrue())
			Expect(client.Calls).To(BeEmpty())
		})

		It("should fail when the acknowledgement cannot be posted", func() {
			client.CommentErr = errors.New("issue locked")

			result := orchestrator.Process(ctx, signedRequest(commentBody("!Pollinate x", user, 1)))

			Expect(result.Outcome).To(Equal(pipeline.OutcomeFailed))
			Expect(generator.instructions).To(BeEmpty())
		})
	})
})

type memoryDeduper struct {
	seen     map[string]bool
	released []string
}

func (d *memoryDeduper) Claim(id string) bool {
	if d.seen[id] {
		return false
	}
	d.seen[id] = true
	return true
}

func (d *memoryDeduper) Release(id string) {
	delete(d.seen, id)
	d.released = append(d.released, id)
}

type denyingLimiter struct {
	keys []string
}

func (l *denyingLimiter) Allow(key string) bool {
	l.keys = append(l.keys, key)
	return false
}

var _ = Describe("Delivery guards", func() {
	var (
		ctx       context.Context
		client    *githubtest.Client
		factory   *githubtest.Factory
		generator *fakeGenerator
		deduper   *memoryDeduper
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = githubtest.New()
		factory = &githubtest.Factory{Client: client}
		generator = &fakeGenerator{files: []ai.GeneratedFile{{Path: "a.txt", Content: "x"}}}
		deduper = &memoryDeduper{seen: map[string]bool{}}
	})

	It("should process a redelivered event only once", func() {
		orchestrator := pipeline.NewOrchestrator(webhook.NewVerifier(secret), generator, factory, pipeline.WithDeduper(deduper))
		req := signedRequest(commentBody("!Pollinate x", user, 1))

		first := orchestrator.Process(ctx, req)
		second := orchestrator.Process(ctx, req)

		Expect(first.Outcome).To(Equal(pipeline.OutcomeHandled))
		Expect(second.Outcome).To(Equal(pipeline.OutcomeIgnored))
		Expect(second.Reason).To(Equal("duplicate delivery"))
		Expect(client.CallsTo("CreatePullRequest")).To(HaveLen(1))
	})

	It("should let a failed delivery be retried", func() {
		generator.err = ai.ErrEmptyProject
		orchestrator := pipeline.NewOrchestrator(webhook.NewVerifier(secret), generator, factory, pipeline.WithDeduper(deduper))
		req := signedRequest(commentBody("!Pollinate x", user, 1))

		Expect(orchestrator.Process(ctx, req).Outcome).To(Equal(pipeline.OutcomeFailed))
		Expect(deduper.released).To(Equal([]string{"delivery-1"}))

		generator.err = nil
		Expect(orchestrator.Process(ctx, req).Outcome).To(Equal(pipeline.OutcomeHandled))
	})

	It("should not claim deliveries with a bad signature", func() {
		orchestrator := pipeline.NewOrchestrator(webhook.NewVerifier(secret), generator, factory, pipeline.WithDeduper(deduper))
		req := signedRequest(commentBody("!Pollinate x", user, 1))
		forged := req
		forged.Signature = "sha256=deadbeef"

		Expect(orchestrator.Process(ctx, forged).Outcome).To(Equal(pipeline.OutcomeUnauthorized))
		Expect(orchestrator.Process(ctx, req).Outcome).To(Equal(pipeline.OutcomeHandled))
	})

	It("should rate limit per repository after verification", func() {
		limiter := &denyingLimiter{}
		orchestrator := pipeline.NewOrchestrator(webhook.NewVerifier(secret), generator, factory, pipeline.WithLimiter(limiter))

		result := orchestrator.Process(ctx, signedRequest(commentBody("!Pollinate x", user, 1)))

		Expect(result.Outcome).To(Equal(pipeline.OutcomeRateLimited))
		Expect(errors.Is(result.Err, pipeline.ErrRateLimited)).To(BeTrue())
		Expect(limiter.keys).To(Equal([]string{"acme/widgets"}))
		Expect(client.Calls).To(BeEmpty())
	})
})

var _ = Describe("Rate limiting", func() {
	var (
		ctx     context.Context
		client  *githubtest.Client
		factory *githubtest.Factory
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = githubtest.New()
		factory = &githubtest.Factory{Client: client}
	})

	It("should not spend a token on comments without a command", func() {
		generator := &fakeGenerator{files: []ai.GeneratedFile{{Path: "a.txt", Content: "x"}}}
		orchestrator := pipeline.NewOrchestrator(webhook.NewVerifier(secret), generator, factory,
			pipeline.WithLimiter(webhook.NewRateLimiter(0.0001, 1)))

		chatter := orchestrator.Process(ctx, signedRequest(commentBody("looks good to me", user, 1)))
		again := orchestrator.Process(ctx, signedRequest(commentBody("thanks!", user, 1)))
		command := orchestrator.Process(ctx, signedRequest(commentBody("!Pollinate x", user, 1)))

		Expect(chatter.Outcome).To(Equal(pipeline.OutcomeIgnored))
		Expect(again.Outcome).To(Equal(pipeline.OutcomeIgnored))
		Expect(command.Outcome).To(Equal(pipeline.OutcomeHandled))

		limited := orchestrator.Process(ctx, signedRequest(commentBody("!Pollinate y", user, 1)))
		Expect(limited.Outcome).To(Equal(pipeline.OutcomeRateLimited))
		Expect(limited.Reached).To(Equal(pipeline.StateCommandFound))
	})

	It("should not consult the limiter for bot senders", func() {
		limiter := &denyingLimiter{}
		orchestrator := pipeline.NewOrchestrator(webhook.NewVerifier(secret), &fakeGenerator{}, factory, pipeline.WithLimiter(limiter))

		bot := map[string]string{"login": "pollinate[bot]", "type": "Bot"}
		result := orchestrator.Process(ctx, signedRequest(commentBody("!Pollinate x", bot, 1)))

		Expect(result.Outcome).To(Equal(pipeline.OutcomeIgnored))
		Expect(limiter.keys).To(BeEmpty())
	})
})

var _ = Describe("State and Outcome names", func() {
	It("should name every state", func() {
		Expect(pipeline.StateReceived.String()).To(Equal("Received"))
		Expect(pipeline.StatePRCreated.String()).To(Equal("PRCreated"))
		Expect(pipeline.StateAborted.String()).To(Equal("Aborted"))
		Expect(pipeline.State(42).String()).To(Equal("State(42)"))
	})

	It("should name every outcome", func() {
		Expect(pipeline.OutcomeHandled.String()).To(Equal("handled"))
		Expect(pipeline.OutcomeBadRequest.String()).To(Equal("bad_request"))
		Expect(pipeline.Outcome(42).String()).To(Equal("unknown"))
	})
})
