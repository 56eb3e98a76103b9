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

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// maxErrorBody caps how much of a failed response is kept in the error
const maxErrorBody = 1024

// Generator produces a project from an instruction using a chat completion provider
type Generator struct {
	endpoint   string
	apiKey     string
	options    Options
	httpClient HTTPClient
}

// NewGenerator creates a new Generator.
// Uses dependency injection for HTTPClient; a nil client means http.DefaultClient.
func NewGenerator(config Config, httpClient HTTPClient) *Generator {
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Generator{
		endpoint:   endpoint,
		apiKey:     config.APIKey,
		options:    config.Options.withDefaults(),
		httpClient: httpClient,
	}
}

// Generate asks the provider for a project implementing instruction and
// returns its files in reply order. Malformed replies degrade to a single
// file at FallbackPath instead of failing.
func (g *Generator) Generate(ctx context.Context, instruction string) ([]GeneratedFile, error) {
	logger := log.FromContext(ctx)

	text, err := g.complete(ctx, instruction)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyProject
	}

	reply := ParseReply(text)
	files := reply.Files()
	if len(files) == 0 {
		return nil, ErrEmptyProject
	}

	logger.V(1).Info("Parsed AI reply", "kind", reply.Kind.String(), "files", len(files))
	return files, nil
}

// complete performs the chat completion request and returns the reply text
func (g *Generator) complete(ctx context.Context, instruction string) (string, error) {
	wireRequest := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: instruction},
		},
		Model:       g.options.Model,
		Temperature: *g.options.Temperature,
		MaxTokens:   g.options.MaxTokens,
		Stream:      false,
	}

	body, err := json.Marshal(wireRequest)
	if err != nil {
		return "", fmt.Errorf("%w: encoding request: %v", ErrProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %v", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrProvider, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrProvider, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrProvider)
	}

	return extractText(completion.Choices[0])
}

// extractText pulls the reply text out of a choice. The message content is
// either a JSON string or an array of text blocks; legacy completion
// responses carry a top-level text field instead.
func extractText(choice chatChoice) (string, error) {
	content := bytes.TrimSpace(choice.Message.Content)

	if len(content) > 0 && content[0] == '"' {
		var text string
		if err := json.Unmarshal(content, &text); err != nil {
			return "", fmt.Errorf("%w: decoding content string: %v", ErrExtraction, err)
		}
		return text, nil
	}

	if len(content) > 0 && content[0] == '[' {
		var blocks []contentBlock
		if err := json.Unmarshal(content, &blocks); err != nil {
			return "", fmt.Errorf("%w: decoding content blocks: %v", ErrExtraction, err)
		}
		parts := make([]string, 0, len(blocks))
		for _, block := range blocks {
			if block.Type != "" && block.Type != "text" {
				continue
			}
			parts = append(parts, block.Text)
		}
		if len(parts) == 0 {
			return "", fmt.Errorf("%w: content has no text blocks", ErrExtraction)
		}
		return strings.Join(parts, "\n\n"), nil
	}

	if choice.Text != nil {
		return *choice.Text, nil
	}

	return "", fmt.Errorf("%w: choice has no text content", ErrExtraction)
}

// --- wire types ---

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// chatChoice keeps message content raw because it is polymorphic
type chatChoice struct {
	Message struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
	Text *string `json:"text"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
