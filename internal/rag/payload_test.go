package rag

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestEncodeRetrievalDropsBroadHits(t *testing.T) {
	result := &TwoStepRetrievalResult{
		Query:       "q",
		ChosenFiles: []string{"a.pdf"},
		BroadHits:   []Hit{bareHit("broad1"), bareHit("broad2")},
		NarrowHits:  []Hit{fileHit("narrow", "a.pdf", 0)},
		Mode:        ModeTwoStep,
	}

	payload := EncodeRetrieval(result, 900)

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(raw), "broad") {
		t.Errorf("serialized payload leaks broad hits: %s", raw)
	}
	if len(payload.NarrowHits) != 1 || payload.NarrowHits[0].Text != "narrow" {
		t.Errorf("NarrowHits = %+v", payload.NarrowHits)
	}
}

func TestEncodeRetrievalTruncatesText(t *testing.T) {
	long := strings.Repeat("z", 2000)
	result := &TwoStepRetrievalResult{
		Query:      "q",
		NarrowHits: []Hit{fileHit(long, "a.pdf", 0)},
		Mode:       ModeOneStepFallback,
	}

	payload := EncodeRetrieval(result, 100)

	got := payload.NarrowHits[0].Text
	if len(got) > 100 {
		t.Errorf("len(text) = %d, want <= 100", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("text = %q, want ellipsis suffix", got)
	}
	// Metadata is never truncated.
	if name, _ := payload.NarrowHits[0].Meta.FileName(); name != "a.pdf" {
		t.Errorf("meta file name = %q", name)
	}
}

func TestEncodeRetrievalMultibyteText(t *testing.T) {
	result := &TwoStepRetrievalResult{
		Query:      "q",
		NarrowHits: []Hit{fileHit(strings.Repeat("政", 200), "a.pdf", 0)},
		Mode:       ModeTwoStep,
	}

	payload := EncodeRetrieval(result, 100)

	got := payload.NarrowHits[0].Text
	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("政", 97) + "..."; got != want {
		t.Errorf("text = %q, want 97 runes + ellipsis", got)
	}

	// The JSON form must survive a round trip byte for byte.
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var back RetrievalPayload
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.NarrowHits[0].Text != got {
		t.Errorf("round trip changed text: %q", back.NarrowHits[0].Text)
	}
}

func TestRetrievalRoundTrip(t *testing.T) {
	dist := 0.33
	original := &TwoStepRetrievalResult{
		Query:       "visitation policy",
		ChosenFiles: []string{"visitation_policy.pdf", "security_policy.pdf"},
		BroadHits:   []Hit{bareHit("will be dropped")},
		NarrowHits: []Hit{
			{
				Text:     "Visitors must sign in.",
				Meta:     Meta{MetaFileName: String("visitation_policy.pdf"), MetaChunkPart: Int(2)},
				Distance: &dist,
			},
		},
		Mode: ModeTwoStep,
	}

	raw, err := json.Marshal(EncodeRetrieval(original, 900))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var payload RetrievalPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	got := DecodeRetrieval(payload)

	if got.Query != original.Query {
		t.Errorf("Query = %q", got.Query)
	}
	if got.Mode != ModeTwoStep {
		t.Errorf("Mode = %q, want preserved", got.Mode)
	}
	if len(got.BroadHits) != 0 {
		t.Errorf("BroadHits = %v, want empty after round trip", got.BroadHits)
	}
	if len(got.ChosenFiles) != 2 || got.ChosenFiles[0] != "visitation_policy.pdf" {
		t.Errorf("ChosenFiles = %v", got.ChosenFiles)
	}
	if len(got.NarrowHits) != 1 {
		t.Fatalf("len(NarrowHits) = %d, want 1", len(got.NarrowHits))
	}
	h := got.NarrowHits[0]
	if h.Text != "Visitors must sign in." {
		t.Errorf("text = %q", h.Text)
	}
	if part, ok := h.Meta.ChunkPart(); !ok || part != 2 {
		t.Errorf("chunk part = %d ok=%v, want 2 (int kind survives JSON)", part, ok)
	}
	if h.Distance == nil || *h.Distance != dist {
		t.Errorf("distance = %v, want %v", h.Distance, dist)
	}
}

func TestDecodeRetrievalDefaults(t *testing.T) {
	// A minimal payload from an external caller: mode and hits omitted.
	var payload RetrievalPayload
	if err := json.Unmarshal([]byte(`{"query":"q"}`), &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	got := DecodeRetrieval(payload)

	if got.Mode != ModeTwoStep {
		t.Errorf("Mode = %q, want default two_step", got.Mode)
	}
	if got.BroadHits == nil || len(got.BroadHits) != 0 {
		t.Errorf("BroadHits = %#v, want empty non-nil", got.BroadHits)
	}
	if len(got.NarrowHits) != 0 {
		t.Errorf("NarrowHits = %v, want empty", got.NarrowHits)
	}
}
