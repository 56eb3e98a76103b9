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
	"errors"
	"net/http"
)

const (
	// DefaultEndpoint is the Pollinations OpenAI-compatible chat endpoint
	DefaultEndpoint = "https://text.pollinations.ai/openai"
	// DefaultModel is the model identifier sent when none is configured
	DefaultModel = "openai"
	// DefaultTemperature is the sampling temperature sent when none is configured
	DefaultTemperature = 0.7
	// DefaultMaxTokens is the completion budget sent when none is configured
	DefaultMaxTokens = 2000
	// FallbackPath is where an unstructured reply is written
	FallbackPath = "pollinate-output.md"
)

var (
	// ErrProvider signals a failed request or an unusable provider response.
	ErrProvider = errors.New("ai provider error")
	// ErrExtraction signals a choice that carries no reply text.
	ErrExtraction = errors.New("ai reply extraction error")
	// ErrEmptyProject signals a reply that produced no committable files.
	ErrEmptyProject = errors.New("ai reply produced no files")
)

// GeneratedFile is a single repo-relative file produced by the model
type GeneratedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Options are passed through to the provider unchanged
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// withDefaults fills unset options
func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Temperature == nil {
		temperature := DefaultTemperature
		o.Temperature = &temperature
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

// Config holds the provider connection settings
type Config struct {
	Endpoint string
	APIKey   string
	Options  Options
}

// HTTPClient interface for HTTP operations (allows mocking in tests)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
