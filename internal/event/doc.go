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

// Package event decodes the GitHub webhook payloads Pollinate reacts to.
//
// Two event types are understood:
//   - issues (opened, edited): the issue body is scanned for a command
//   - issue_comment (created, edited): the comment body is scanned for a command
//
// Every other event type or action decodes to a nil Event so callers can
// acknowledge the delivery without doing any work. Payloads that fail to
// parse, or lack the repository or issue they refer to, are reported with
// ErrMalformed.
package event
