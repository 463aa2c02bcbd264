package rag

// context.go builds the grounding context block passed to the model.
// Every snippet is labeled with a 1-based index and a citation token so
// the model can attribute claims to a specific chunk.

import (
	"fmt"
	"strings"
)

// DefaultMaxSnippetChars bounds each context snippet to control token use.
const DefaultMaxSnippetChars = 900

// unknownFile is the citation placeholder for hits with no file metadata.
const unknownFile = "unknown_file"

// BuildContext formats the narrow hits of result into the context block
// passed to the model. Each snippet is emitted as
//
//	[i] (file_name#chunk_part)
//	<truncated text>
//
// joined by blank lines, with surrounding whitespace stripped.
// maxSnippetChars <= 0 uses DefaultMaxSnippetChars.
func BuildContext(result *TwoStepRetrievalResult, maxSnippetChars int) string {
	if result == nil {
		return ""
	}
	if maxSnippetChars <= 0 {
		maxSnippetChars = DefaultMaxSnippetChars
	}
	var b strings.Builder
	for i, hit := range result.NarrowHits {
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, CitationToken(hit.Meta), formatSnippet(hit.Text, maxSnippetChars))
	}
	return strings.TrimSpace(b.String())
}

// CitationToken returns the stable citation token for a hit's metadata:
// "file_name#chunk_part", or just "file_name" when the chunk position is
// absent. The same token format appears in the prompt instructions, so the
// model's citations and the structured sources agree.
func CitationToken(meta Meta) string {
	name, ok := meta.FileName()
	if !ok {
		name = unknownFile
	}
	part, ok := meta.ChunkPart()
	if !ok {
		return name
	}
	return fmt.Sprintf("%s#%d", name, part)
}

// formatSnippet trims text and truncates it to maxChars characters,
// replacing the cut tail with an ellipsis marker. The marker is counted
// inside the budget, so the output never exceeds maxChars characters.
// Truncation counts runes, not bytes, and is idempotent on already short
// text.
func formatSnippet(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	cut := maxChars - 3
	if cut < 0 {
		cut = 0
	}
	return strings.TrimRight(string(runes[:cut]), " \t\n\r") + "..."
}
