package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeSearcher returns canned hits per call and records the queries it saw.
type fakeSearcher struct {
	results [][]Hit // one entry per expected call, in order
	errs    []error // parallel to results; nil means success

	calls []searchCall
}

type searchCall struct {
	text   string
	topN   int
	filter *Filter
}

func (f *fakeSearcher) Query(ctx context.Context, text string, topN int, filter *Filter) ([]Hit, error) {
	idx := len(f.calls)
	f.calls = append(f.calls, searchCall{text: text, topN: topN, filter: filter})
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx >= len(f.results) {
		return nil, nil
	}
	hits := f.results[idx]
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

// fileHit builds a hit tagged with a file name and chunk part.
func fileHit(text, file string, part int) Hit {
	return Hit{
		Text: text,
		Meta: Meta{
			MetaFileName:  String(file),
			MetaChunkPart: Int(int64(part)),
		},
	}
}

// bareHit builds a hit with no metadata at all.
func bareHit(text string) Hit {
	return Hit{Text: text, Meta: Meta{}}
}

func TestRetrieveTwoStep(t *testing.T) {
	broad := []Hit{
		fileHit("a1", "leave_policy.pdf", 0),
		fileHit("b1", "travel_policy.pdf", 2),
		fileHit("a2", "leave_policy.pdf", 1),
	}
	narrow := []Hit{
		fileHit("a1", "leave_policy.pdf", 0),
		fileHit("b1", "travel_policy.pdf", 2),
	}
	searcher := &fakeSearcher{results: [][]Hit{broad, narrow}}
	r, err := NewRetriever(searcher)
	if err != nil {
		t.Fatalf("NewRetriever() error = %v", err)
	}

	result, err := r.Retrieve(context.Background(), "leave policy", Params{BroadK: 10, FileK: 3, FinalK: 5})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if result.Mode != ModeTwoStep {
		t.Errorf("Mode = %q, want %q", result.Mode, ModeTwoStep)
	}
	wantFiles := []string{"leave_policy.pdf", "travel_policy.pdf"}
	if len(result.ChosenFiles) != len(wantFiles) {
		t.Fatalf("ChosenFiles = %v, want %v", result.ChosenFiles, wantFiles)
	}
	for i, f := range wantFiles {
		if result.ChosenFiles[i] != f {
			t.Errorf("ChosenFiles[%d] = %q, want %q", i, result.ChosenFiles[i], f)
		}
	}
	if len(result.BroadHits) != len(broad) {
		t.Errorf("len(BroadHits) = %d, want %d", len(result.BroadHits), len(broad))
	}
	if len(result.NarrowHits) != len(narrow) {
		t.Errorf("len(NarrowHits) = %d, want %d", len(result.NarrowHits), len(narrow))
	}

	// Two round trips, second constrained to the chosen files.
	if len(searcher.calls) != 2 {
		t.Fatalf("search calls = %d, want 2", len(searcher.calls))
	}
	if searcher.calls[0].topN != 10 || searcher.calls[0].filter != nil {
		t.Errorf("broad call = %+v, want topN=10 and nil filter", searcher.calls[0])
	}
	narrowCall := searcher.calls[1]
	if narrowCall.topN != 5 {
		t.Errorf("narrow topN = %d, want 5", narrowCall.topN)
	}
	if narrowCall.filter == nil || len(narrowCall.filter.AnyOf[MetaFileName]) != 2 {
		t.Errorf("narrow filter = %+v, want AnyOf[%s] with 2 files", narrowCall.filter, MetaFileName)
	}
}

func TestRetrieveDedupFirstOccurrenceWins(t *testing.T) {
	// Files [A, B, A, C] with file_k=2 must choose [A, B]: first occurrence
	// wins, frequency is irrelevant.
	broad := []Hit{
		fileHit("1", "A", 0),
		fileHit("2", "B", 0),
		fileHit("3", "A", 1),
		fileHit("4", "C", 0),
	}
	searcher := &fakeSearcher{results: [][]Hit{broad, nil}}
	r, _ := NewRetriever(searcher)

	result, err := r.Retrieve(context.Background(), "q", Params{FileK: 2})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.ChosenFiles) != 2 || result.ChosenFiles[0] != "A" || result.ChosenFiles[1] != "B" {
		t.Errorf("ChosenFiles = %v, want [A B]", result.ChosenFiles)
	}
}

func TestRetrieveFallbackWithoutFileMetadata(t *testing.T) {
	broad := []Hit{
		bareHit("one"), bareHit("two"), bareHit("three"), bareHit("four"),
	}
	searcher := &fakeSearcher{results: [][]Hit{broad}}
	r, _ := NewRetriever(searcher)

	result, err := r.Retrieve(context.Background(), "q", Params{FinalK: 3})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if result.Mode != ModeOneStepFallback {
		t.Errorf("Mode = %q, want %q", result.Mode, ModeOneStepFallback)
	}
	if len(result.ChosenFiles) != 0 {
		t.Errorf("ChosenFiles = %v, want empty", result.ChosenFiles)
	}
	if len(result.NarrowHits) != 3 {
		t.Fatalf("len(NarrowHits) = %d, want 3 (broad truncated to final_k)", len(result.NarrowHits))
	}
	for i := range result.NarrowHits {
		if result.NarrowHits[i].Text != broad[i].Text {
			t.Errorf("NarrowHits[%d] = %q, want %q", i, result.NarrowHits[i].Text, broad[i].Text)
		}
	}
	// Fallback path costs only one round trip.
	if len(searcher.calls) != 1 {
		t.Errorf("search calls = %d, want 1", len(searcher.calls))
	}
}

func TestRetrieveBounds(t *testing.T) {
	// 30 broad hits over 10 distinct files; both bounds must hold.
	var broad []Hit
	for i := range 30 {
		broad = append(broad, fileHit(fmt.Sprintf("t%d", i), fmt.Sprintf("file%d", i%10), i))
	}
	searcher := &fakeSearcher{results: [][]Hit{broad, broad}}
	r, _ := NewRetriever(searcher)

	result, err := r.Retrieve(context.Background(), "q", Params{BroadK: 30, FileK: 4, FinalK: 6})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.ChosenFiles) > 4 {
		t.Errorf("len(ChosenFiles) = %d, want <= 4", len(result.ChosenFiles))
	}
	if len(result.NarrowHits) > 6 {
		t.Errorf("len(NarrowHits) = %d, want <= 6", len(result.NarrowHits))
	}
}

func TestRetrieveSkipsHitsWithoutFileKey(t *testing.T) {
	broad := []Hit{
		bareHit("untagged"),
		fileHit("tagged", "handbook.pdf", 3),
	}
	searcher := &fakeSearcher{results: [][]Hit{broad, {fileHit("tagged", "handbook.pdf", 3)}}}
	r, _ := NewRetriever(searcher)

	result, err := r.Retrieve(context.Background(), "q", Params{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.Mode != ModeTwoStep {
		t.Errorf("Mode = %q, want %q (one tagged hit is enough)", result.Mode, ModeTwoStep)
	}
	if len(result.ChosenFiles) != 1 || result.ChosenFiles[0] != "handbook.pdf" {
		t.Errorf("ChosenFiles = %v, want [handbook.pdf]", result.ChosenFiles)
	}
}

func TestRetrieveExtraFilterCarried(t *testing.T) {
	broad := []Hit{fileHit("x", "hr.pdf", 0)}
	searcher := &fakeSearcher{results: [][]Hit{broad, broad}}
	r, _ := NewRetriever(searcher)

	extra := map[string]Value{"policy_type": String("HR")}
	if _, err := r.Retrieve(context.Background(), "q", Params{Extra: extra}); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	filter := searcher.calls[1].filter
	if filter == nil {
		t.Fatal("narrow filter is nil, want extra filter carried")
	}
	got, ok := filter.Equals["policy_type"]
	if !ok {
		t.Fatal("narrow filter missing policy_type")
	}
	if s, _ := got.Str(); s != "HR" {
		t.Errorf("policy_type = %q, want HR", s)
	}
}

func TestRetrieveInvalidInput(t *testing.T) {
	r, _ := NewRetriever(&fakeSearcher{})

	if _, err := r.Retrieve(context.Background(), "   ", Params{}); err == nil {
		t.Error("Retrieve() with blank query: error = nil, want error")
	}
	for _, p := range []Params{{BroadK: -1}, {FileK: -2}, {FinalK: -1}} {
		_, err := r.Retrieve(context.Background(), "q", p)
		if err == nil {
			t.Errorf("Retrieve() with %+v: error = nil, want error", p)
			continue
		}
		if !strings.Contains(err.Error(), "must not be negative") {
			t.Errorf("Retrieve() with %+v: error = %q, want negative-count message", p, err)
		}
	}
}

func TestRetrieveZeroCountsTakeDefaults(t *testing.T) {
	broad := []Hit{fileHit("x", "hr.pdf", 0)}
	searcher := &fakeSearcher{results: [][]Hit{broad, broad}}
	r, _ := NewRetriever(searcher)

	if _, err := r.Retrieve(context.Background(), "q", Params{}); err != nil {
		t.Fatalf("Retrieve() with zero params: error = %v", err)
	}
	if got := searcher.calls[0].topN; got != DefaultBroadK {
		t.Errorf("broad topN = %d, want default %d", got, DefaultBroadK)
	}
	if got := searcher.calls[1].topN; got != DefaultFinalK {
		t.Errorf("narrow topN = %d, want default %d", got, DefaultFinalK)
	}
}

func TestRetrieveBackendFailure(t *testing.T) {
	backendErr := errors.New("connection refused")

	t.Run("broad search fails", func(t *testing.T) {
		searcher := &fakeSearcher{errs: []error{backendErr}}
		r, _ := NewRetriever(searcher)
		_, err := r.Retrieve(context.Background(), "q", Params{})
		if !errors.Is(err, ErrRetrievalUnavailable) {
			t.Errorf("error = %v, want ErrRetrievalUnavailable", err)
		}
		if !errors.Is(err, backendErr) {
			t.Errorf("error = %v, want wrapped backend error", err)
		}
	})

	t.Run("narrow search fails", func(t *testing.T) {
		searcher := &fakeSearcher{
			results: [][]Hit{{fileHit("x", "f.pdf", 0)}},
			errs:    []error{nil, backendErr},
		}
		r, _ := NewRetriever(searcher)
		_, err := r.Retrieve(context.Background(), "q", Params{})
		if !errors.Is(err, ErrRetrievalUnavailable) {
			t.Errorf("error = %v, want ErrRetrievalUnavailable", err)
		}
	})
}

func TestRetrieveVisitationScenario(t *testing.T) {
	// 25 broad hits, 3 of which reference visitation_policy.pdf near the
	// top. The result must choose that file and keep the narrow hits
	// within final_k, all drawn from chosen files.
	var broad []Hit
	for i := range 25 {
		switch i {
		case 0, 3, 7:
			broad = append(broad, fileHit(fmt.Sprintf("visit%d", i), "visitation_policy.pdf", i))
		default:
			broad = append(broad, fileHit(fmt.Sprintf("other%d", i), fmt.Sprintf("misc_%d.pdf", i), i))
		}
	}
	narrow := []Hit{
		fileHit("v0", "visitation_policy.pdf", 0),
		fileHit("v1", "visitation_policy.pdf", 1),
		fileHit("m1", "misc_1.pdf", 0),
	}
	searcher := &fakeSearcher{results: [][]Hit{broad, narrow}}
	r, _ := NewRetriever(searcher)

	result, err := r.Retrieve(context.Background(), "visitation policy", Params{BroadK: 25, FileK: 5, FinalK: 6})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if result.Mode != ModeTwoStep {
		t.Errorf("Mode = %q, want %q", result.Mode, ModeTwoStep)
	}
	found := false
	for _, f := range result.ChosenFiles {
		if f == "visitation_policy.pdf" {
			found = true
		}
	}
	if !found {
		t.Errorf("ChosenFiles = %v, want visitation_policy.pdf included", result.ChosenFiles)
	}
	if len(result.NarrowHits) > 6 {
		t.Errorf("len(NarrowHits) = %d, want <= 6", len(result.NarrowHits))
	}
	chosen := make(map[string]bool)
	for _, f := range result.ChosenFiles {
		chosen[f] = true
	}
	for _, h := range result.NarrowHits {
		name, _ := h.Meta.FileName()
		if !chosen[name] {
			t.Errorf("narrow hit from %q, not in chosen files %v", name, result.ChosenFiles)
		}
	}
}
