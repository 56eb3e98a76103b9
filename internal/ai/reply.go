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
	"encoding/json"
	"path"
	"strings"
)

// ReplyKind tags how a reply was interpreted
type ReplyKind int

const (
	// ReplyStructured means the reply was a JSON array of file objects
	ReplyStructured ReplyKind = iota
	// ReplyRaw means the reply is kept verbatim as a single fallback file
	ReplyRaw
)

// String returns the kind name used in logs
func (k ReplyKind) String() string {
	switch k {
	case ReplyStructured:
		return "structured"
	case ReplyRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Reply is a model reply resolved into either structured files or raw text
type Reply struct {
	Kind  ReplyKind
	files []GeneratedFile
	raw   string
}

// Files returns the files to commit. A raw reply yields one file at
// FallbackPath, or none when the raw text is empty.
func (r Reply) Files() []GeneratedFile {
	if r.Kind == ReplyStructured {
		out := make([]GeneratedFile, len(r.files))
		copy(out, r.files)
		return out
	}
	if r.raw == "" {
		return nil
	}
	return []GeneratedFile{{Path: FallbackPath, Content: r.raw}}
}

// Raw returns the original reply text
func (r Reply) Raw() string {
	return r.raw
}

// ParseReply strictly parses text as a JSON array of {"path","content"}
// objects. Entries without a usable path or content are dropped. When the
// text is not an array, or no entry survives, the reply is raw.
func ParseReply(text string) Reply {
	raw := Reply{Kind: ReplyRaw, raw: text}

	candidate := stripCodeFence(strings.TrimSpace(text))
	if !strings.HasPrefix(candidate, "[") {
		return raw
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &items); err != nil {
		return raw
	}

	files := make([]GeneratedFile, 0, len(items))
	for _, item := range items {
		file, ok := decodeFile(item)
		if !ok {
			continue
		}
		files = append(files, file)
	}

	if len(files) == 0 {
		return raw
	}

	return Reply{Kind: ReplyStructured, files: files, raw: text}
}

// decodeFile validates a single array entry
func decodeFile(item json.RawMessage) (GeneratedFile, bool) {
	var entry struct {
		Path    json.RawMessage `json:"path"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(item, &entry); err != nil {
		return GeneratedFile{}, false
	}

	var filePath, content string
	if err := json.Unmarshal(entry.Path, &filePath); err != nil {
		return GeneratedFile{}, false
	}
	if err := json.Unmarshal(entry.Content, &content); err != nil {
		return GeneratedFile{}, false
	}

	filePath, ok := normalizePath(filePath)
	if !ok || content == "" {
		return GeneratedFile{}, false
	}

	return GeneratedFile{Path: filePath, Content: content}, true
}

// normalizePath makes a model-supplied path repo-relative.
// Paths that resolve outside the repository root are rejected.
func normalizePath(p string) (string, bool) {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", false
	}

	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}

	return p, true
}

// stripCodeFence removes a Markdown code fence wrapped around the whole reply
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}

	// Drop the opening fence line, including any language tag.
	newline := strings.Index(text, "\n")
	if newline < 0 {
		return text
	}
	body := text[newline+1:]

	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
