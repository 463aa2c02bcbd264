package rag

// payload.go is the serialization boundary for retrieval results. When a
// result crosses a tool or process boundary (the Genkit/MCP tools, or any
// client replaying a retrieval into answer_from_context), it travels as
// this JSON shape instead of the in-memory structs. The broad hit list is
// dropped to bound payload size, and hit text is truncated to the caller's
// snippet budget. Decoding applies defined defaults for omitted fields so
// a round trip always reconstructs a valid result.

import "strings"

// HitPayload is the wire form of one Hit.
type HitPayload struct {
	Text     string   `json:"text"`
	Meta     Meta     `json:"meta"`
	Distance *float64 `json:"distance,omitempty"`
}

// RetrievalPayload is the wire form of a TwoStepRetrievalResult.
// BroadHits is intentionally absent.
type RetrievalPayload struct {
	Query       string       `json:"query"`
	ChosenFiles []string     `json:"chosen_files"`
	NarrowHits  []HitPayload `json:"narrow_hits"`
	Mode        Mode         `json:"mode"`
}

// EncodeRetrieval projects result into its wire form, truncating each
// narrow hit's text to maxSnippetChars (metadata is never truncated).
// maxSnippetChars <= 0 uses DefaultMaxSnippetChars.
func EncodeRetrieval(result *TwoStepRetrievalResult, maxSnippetChars int) RetrievalPayload {
	if maxSnippetChars <= 0 {
		maxSnippetChars = DefaultMaxSnippetChars
	}
	payload := RetrievalPayload{
		Query:       result.Query,
		ChosenFiles: append([]string(nil), result.ChosenFiles...),
		NarrowHits:  make([]HitPayload, 0, len(result.NarrowHits)),
		Mode:        result.Mode,
	}
	if payload.ChosenFiles == nil {
		payload.ChosenFiles = []string{}
	}
	for _, h := range result.NarrowHits {
		meta := h.Meta.Clone()
		if meta == nil {
			meta = Meta{}
		}
		payload.NarrowHits = append(payload.NarrowHits, HitPayload{
			Text:     formatSnippet(h.Text, maxSnippetChars),
			Meta:     meta,
			Distance: h.Distance,
		})
	}
	return payload
}

// DecodeRetrieval reconstructs a result from its wire form. Omitted
// optional fields take their documented defaults: missing broad hits
// become an empty list, a missing mode becomes ModeTwoStep, missing hit
// metadata becomes an empty mapping.
func DecodeRetrieval(payload RetrievalPayload) *TwoStepRetrievalResult {
	result := &TwoStepRetrievalResult{
		Query:       payload.Query,
		ChosenFiles: append([]string(nil), payload.ChosenFiles...),
		BroadHits:   []Hit{},
		NarrowHits:  make([]Hit, 0, len(payload.NarrowHits)),
		Mode:        payload.Mode,
	}
	if result.Mode == "" {
		result.Mode = ModeTwoStep
	}
	for _, h := range payload.NarrowHits {
		meta := h.Meta
		if meta == nil {
			meta = Meta{}
		}
		result.NarrowHits = append(result.NarrowHits, Hit{
			Text:     strings.TrimSpace(h.Text),
			Meta:     meta,
			Distance: h.Distance,
		})
	}
	return result
}
