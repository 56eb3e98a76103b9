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

// Package command extracts Pollinate commands from issue and comment text.
//
// A command is a single line whose trimmed text starts with the trigger
// token, compared case-insensitively:
//
//	!Pollinate add a health endpoint
//
// Everything after the token on that line, with surrounding whitespace
// removed, is the instruction. Only the first matching line counts.
package command
