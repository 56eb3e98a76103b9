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

// Package webhook provides the GitHub webhook HTTP surface for Pollinate.
//
// This package implements an HTTP server that receives GitHub issues and
// issue_comment deliveries and hands them to the pipeline, then maps the
// pipeline outcome to the response GitHub sees.
//
// Key features:
//   - Validates GitHub webhook signatures using HMAC-SHA256
//   - Caps request bodies and keeps runs alive after GitHub disconnects
//   - Provides per-repository rate limiting
//   - Drops redelivered events by X-GitHub-Delivery
//   - Health check and Prometheus metrics endpoints
//
// Webhook Security:
//
// All webhook requests must include a valid X-Hub-Signature-256 header containing
// an HMAC-SHA256 signature computed with the webhook secret. Requests with invalid
// or missing signatures are rejected with HTTP 401 before the payload is parsed.
//
// Responses:
//
//   - 200: the delivery was handled or needed no work
//   - 400: the payload could not be decoded
//   - 401: the signature is missing or wrong
//   - 405: the method is not POST
//   - 413: the body exceeds the configured limit
//   - 429: the repository exceeded its rate limit
//   - 500: a pipeline step failed
//
// Rate Limiting:
//
// Commands are rate-limited per repository using a token bucket algorithm.
// Only deliveries that carry a command spend a token. The default limit is
// 10 commands per second per repository with a burst of 10. Buckets of idle
// repositories are swept by the cleanup scheduler. Delivery IDs expire from
// their cache on their own.
//
// Example usage:
//
//	server := webhook.NewServer(
//		webhook.Config{Host: "0.0.0.0", Port: 8080},
//		orchestrator,
//		registry,
//	)
//	if err := server.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package webhook
