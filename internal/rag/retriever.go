package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Default breadth parameters for two-step retrieval. They match the
// request-layer defaults so the retriever is usable standalone.
const (
	DefaultBroadK = 25
	DefaultFileK  = 5
	DefaultFinalK = 6
)

// Sentinel errors for the retrieval/generation taxonomy. Callers match
// these with errors.Is to translate failures at the request boundary.
var (
	// ErrRetrievalUnavailable wraps vector store query failures. The
	// retriever performs no retries; the failure is turn-fatal.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrGenerationUnavailable wraps hosted model failures. See answer.go.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)

// Filter constrains a similarity search by chunk metadata.
// Both maps may be nil. Conditions are combined with AND; when the same
// key appears in both, Equals wins (callers control both sides, so
// last-write-wins is acceptable).
type Filter struct {
	// AnyOf requires the string value at each key to be one of the listed
	// values. The retriever uses this for the file membership constraint.
	AnyOf map[string][]string

	// Equals requires an exact scalar match at each key. This carries any
	// caller-supplied extra filter into the narrow step.
	Equals map[string]Value
}

// IsZero reports whether f constrains nothing.
func (f *Filter) IsZero() bool {
	return f == nil || (len(f.AnyOf) == 0 && len(f.Equals) == 0)
}

// Searcher is the vector store query primitive the retriever consumes.
// Interface defined by the consumer; chunkstore.Store implements it.
//
// Implementations must normalize malformed backend responses into hits
// with empty metadata / nil distance rather than failing, and must return
// at most topN hits ranked most-similar first.
type Searcher interface {
	Query(ctx context.Context, text string, topN int, filter *Filter) ([]Hit, error)
}

// Params tunes one retrieval call. Zero fields take the package defaults,
// so Params{} is a valid input. Negative counts are rejected.
type Params struct {
	BroadK  int    // broad pass size (default DefaultBroadK)
	FileK   int    // max unique files to keep (default DefaultFileK)
	FinalK  int    // narrow pass size (default DefaultFinalK)
	FileKey string // metadata key identifying the source file (default MetaFileName)

	// Extra is an optional equality filter merged into the narrow step.
	// Keys here take precedence over the file membership constraint.
	Extra map[string]Value
}

func (p *Params) applyDefaults() {
	if p.BroadK == 0 {
		p.BroadK = DefaultBroadK
	}
	if p.FileK == 0 {
		p.FileK = DefaultFileK
	}
	if p.FinalK == 0 {
		p.FinalK = DefaultFinalK
	}
	if p.FileKey == "" {
		p.FileKey = MetaFileName
	}
}

func (p Params) validate() error {
	if p.BroadK < 0 || p.FileK < 0 || p.FinalK < 0 {
		return fmt.Errorf("retrieval counts must not be negative (broad_k=%d file_k=%d final_k=%d); zero selects the default",
			p.BroadK, p.FileK, p.FinalK)
	}
	return nil
}

// Retriever implements broad-to-narrow two-step retrieval over a Searcher.
// It holds no mutable state and is safe for concurrent use.
type Retriever struct {
	searcher Searcher
}

// NewRetriever creates a Retriever over the given search backend.
func NewRetriever(searcher Searcher) (*Retriever, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	return &Retriever{searcher: searcher}, nil
}

// Retrieve runs the two-step funnel for query:
//
//  1. Broad search for up to BroadK hits across all chunks.
//  2. Scan the broad hits in order and keep the first FileK unique values
//     of the file metadata key. First occurrence wins; a file seen once
//     near the top outranks one seen five times further down.
//  3. If any files were chosen, search again for up to FinalK hits
//     constrained to those files (plus any Extra filter). Otherwise fall
//     back to the broad hits truncated to FinalK.
//
// The normal path costs two round trips to the vector store, the fallback
// path one. Backend failures are wrapped in ErrRetrievalUnavailable and
// never retried here.
func (r *Retriever) Retrieve(ctx context.Context, query string, params Params) (*TwoStepRetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	params.applyDefaults()

	broadHits, err := r.searcher.Query(ctx, query, params.BroadK, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: broad search: %w", ErrRetrievalUnavailable, err)
	}

	chosen := pickTopUniqueFiles(broadHits, params.FileKey, params.FileK)

	result := &TwoStepRetrievalResult{
		Query:       query,
		ChosenFiles: chosen,
		BroadHits:   broadHits,
	}

	if len(chosen) == 0 {
		// No usable file metadata anywhere in the broad hits. Keep the
		// pipeline functional against a poorly tagged index.
		result.NarrowHits = truncateHits(broadHits, params.FinalK)
		result.Mode = ModeOneStepFallback
		return result, nil
	}

	filter := &Filter{
		AnyOf:  map[string][]string{params.FileKey: chosen},
		Equals: params.Extra,
	}
	narrowHits, err := r.searcher.Query(ctx, query, params.FinalK, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: narrow search: %w", ErrRetrievalUnavailable, err)
	}

	result.NarrowHits = truncateHits(narrowHits, params.FinalK)
	result.Mode = ModeTwoStep
	return result, nil
}

// pickTopUniqueFiles selects up to fileK unique file identifiers from hits,
// preserving the order of first appearance. Hits without the key are
// skipped, not counted.
func pickTopUniqueFiles(hits []Hit, fileKey string, fileK int) []string {
	if fileK <= 0 {
		return nil
	}
	var chosen []string
	seen := make(map[string]struct{})
	for _, h := range hits {
		v, ok := h.Meta.Get(fileKey)
		if !ok {
			continue
		}
		name, ok := v.Str()
		if !ok || name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		chosen = append(chosen, name)
		if len(chosen) == fileK {
			break
		}
	}
	return chosen
}

func truncateHits(hits []Hit, n int) []Hit {
	if len(hits) <= n {
		return hits
	}
	return hits[:n]
}
