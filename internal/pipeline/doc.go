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

// Package pipeline runs one webhook delivery from signature check to pull
// request.
//
// A run moves through a fixed sequence of states:
//
//	Received -> Verified -> CommandFound -> Generated -> Branched -> Committed -> PRCreated -> Done
//
// and ends in Aborted when a step fails or when there is nothing to do
// (no trigger line, no installation, bot sender). Every step runs in order
// on the caller's goroutine; nothing inside a run is concurrent.
//
// User-visible side effects of a successful run are exactly two issue
// comments (acknowledgement and completion with the PR link) and one pull
// request. A failure after the acknowledgement leaves that comment and any
// commits already written in place, and posts nothing else.
package pipeline
