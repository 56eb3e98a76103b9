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
	"fmt"
	"strings"

	"github.com/mikelane/pollinate/internal/command"
	"github.com/mikelane/pollinate/internal/event"
	"github.com/mikelane/pollinate/internal/github"
)

// maxTitleRunes caps pull request titles
const maxTitleRunes = 72

func (o *Orchestrator) verify(_ context.Context, r *run) error {
	if !o.verifier.Verify(r.req.Body, r.req.Signature) {
		return ErrUnauthorized
	}
	return nil
}

func (o *Orchestrator) dedupe(_ context.Context, r *run) error {
	if o.deduper == nil || r.req.DeliveryID == "" {
		return nil
	}
	if !o.deduper.Claim(r.req.DeliveryID) {
		return skip("duplicate delivery")
	}
	r.claimed = true
	return nil
}

func (o *Orchestrator) throttle(_ context.Context, r *run) error {
	if o.limiter == nil {
		return nil
	}
	if !o.limiter.Allow(r.event.FullName()) {
		return ErrRateLimited
	}
	return nil
}

func (o *Orchestrator) decode(_ context.Context, r *run) error {
	evt, err := event.Decode(r.req.EventType, r.req.Body)
	if err != nil {
		return err
	}
	if evt == nil {
		return skip("unsupported event or action")
	}

	r.event = evt
	r.logger = r.logger.WithValues("repository", evt.FullName(), "issue", evt.IssueNumber)
	return nil
}

func (o *Orchestrator) extract(_ context.Context, r *run) error {
	if r.event.FromBot() {
		return skip("sender is a bot")
	}

	instruction, ok := command.ExtractTrigger(o.trigger, r.event.Text)
	if !ok {
		return skip("no command")
	}
	if r.event.InstallationID == 0 {
		return skip("no installation")
	}

	r.instruction = instruction
	r.logger.Info("Command found", "instruction", instruction, "sender", r.event.SenderLogin)
	return nil
}

func (o *Orchestrator) authorize(ctx context.Context, r *run) error {
	client, err := o.clients.ForInstallation(ctx, r.event.InstallationID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoInstallation, err)
	}

	r.client = client
	r.materializer = o.newMaterializer(client)
	return nil
}

func (o *Orchestrator) acknowledge(ctx context.Context, r *run) error {
	return r.client.CreateIssueComment(ctx, r.event.Owner, r.event.Repo, r.event.IssueNumber, acknowledgementComment(r.instruction))
}

func (o *Orchestrator) generate(ctx context.Context, r *run) error {
	files, err := o.generator.Generate(ctx, r.instruction)
	if err != nil {
		return err
	}

	r.files = files
	r.logger.Info("Generated project", "files", len(files))
	return nil
}

func (o *Orchestrator) createBranch(ctx context.Context, r *run) error {
	r.base = r.event.DefaultBranch
	if r.base == "" {
		r.base = o.defaultBase
	}

	branch, err := r.materializer.CreateBranch(ctx, r.event.Owner, r.event.Repo, r.base, r.event.IssueNumber)
	if err != nil {
		return err
	}

	r.branch = branch
	return nil
}

func (o *Orchestrator) commit(ctx context.Context, r *run) error {
	return r.materializer.CommitFiles(ctx, r.branch, r.event.Owner, r.event.Repo, r.files)
}

func (o *Orchestrator) openPullRequest(ctx context.Context, r *run) error {
	pr, err := r.client.CreatePullRequest(ctx, r.event.Owner, r.event.Repo, &github.NewPullRequest{
		Title: pullRequestTitle(r.instruction),
		Head:  r.branch.Name,
		Base:  r.base,
		Body:  pullRequestBody(r.event.IssueNumber, r.instruction, len(r.files)),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPRCreation, err)
	}

	r.pr = &PullRequestResult{
		URL:        pr.URL,
		Number:     pr.Number,
		HeadBranch: r.branch.Name,
		BaseBranch: r.base,
	}
	return nil
}

func (o *Orchestrator) complete(ctx context.Context, r *run) error {
	return r.client.CreateIssueComment(ctx, r.event.Owner, r.event.Repo, r.event.IssueNumber, completionComment(r.pr.URL))
}

func acknowledgementComment(instruction string) string {
	return fmt.Sprintf("Pollinate is generating code for this request:\n\n%s\n\nA pull request will be linked here when it is ready.", quote(instruction))
}

func completionComment(url string) string {
	return fmt.Sprintf("Pollinate opened a pull request with the generated code: %s", url)
}

// pullRequestTitle prefixes the instruction and truncates it to maxTitleRunes
func pullRequestTitle(instruction string) string {
	title := []rune("Pollinate: " + instruction)
	if len(title) <= maxTitleRunes {
		return string(title)
	}
	return string(title[:maxTitleRunes-3]) + "..."
}

func pullRequestBody(issue int, instruction string, files int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generated by Pollinate for #%d.\n\n", issue)
	b.WriteString(quote(instruction))
	fmt.Fprintf(&b, "\n\nThis pull request adds %d file(s), one commit per file. Review the generated code before merging.\n", files)
	return b.String()
}

// quote renders text as a Markdown block quote
func quote(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}
