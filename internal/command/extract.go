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

package command

import "strings"

// DefaultTrigger is the token that marks a line as a Pollinate command.
const DefaultTrigger = "!Pollinate"

// Extract returns the instruction following DefaultTrigger in text.
// It reports false when no line carries the trigger.
func Extract(text string) (string, bool) {
	return ExtractTrigger(DefaultTrigger, text)
}

// ExtractTrigger scans text line by line and returns the remainder of
// the first line starting with trigger. A trigger line with nothing
// after the token yields ("", false), since an empty instruction is
// not a command.
func ExtractTrigger(trigger, text string) (string, bool) {
	if text == "" || trigger == "" {
		return "", false
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < len(trigger) {
			continue
		}
		if !strings.EqualFold(line[:len(trigger)], trigger) {
			continue
		}

		// First occurrence wins, even when it has no instruction.
		instruction := strings.TrimSpace(line[len(trigger):])
		return instruction, instruction != ""
	}

	return "", false
}
