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

// Package ai turns a Pollinate instruction into a set of generated files.
//
// The Generator sends a two-message chat completion request (a system
// prompt that demands a JSON array of {"path","content"} objects, then
// the user's instruction) to an OpenAI-compatible endpoint. The default
// endpoint is the Pollinations text API.
//
// Reply Handling:
//
// Models do not always follow formatting instructions, so the reply is
// parsed into a tagged Reply:
//   - ReplyStructured: the text was a JSON array and at least one entry
//     had a non-empty path and content
//   - ReplyRaw: anything else; the raw text becomes a single file at
//     FallbackPath
//
// A malformed reply therefore never fails generation. Provider errors
// (non-2xx status, undecodable body, no choices) are reported as
// ErrProvider, and a choice without a text payload as ErrExtraction.
//
// Example usage:
//
//	generator := ai.NewGenerator(ai.Config{
//		Endpoint: ai.DefaultEndpoint,
//	}, http.DefaultClient)
//	files, err := generator.Generate(ctx, "add a health endpoint")
//	if err != nil {
//		return err
//	}
//	for _, file := range files {
//		fmt.Println(file.Path)
//	}
package ai
