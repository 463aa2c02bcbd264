package rag

// types.go defines the immutable data carried through one retrieval and
// answering turn. All of these are constructed once and never mutated;
// treat the slices and maps they hold as read-only.

// Hit is one retrieved chunk. Distance is the backend's dissimilarity score
// for the hit; nil means the backend did not report one, which is valid and
// must be tolerated downstream.
type Hit struct {
	Text     string
	Meta     Meta
	Distance *float64
}

// Mode tags how a retrieval result was produced.
type Mode string

const (
	// ModeTwoStep means the narrow, file-constrained second search ran.
	ModeTwoStep Mode = "two_step"

	// ModeOneStepFallback means no files could be chosen from the broad
	// hits, so the narrow list is the broad list truncated to FinalK.
	ModeOneStepFallback Mode = "one_step_fallback"
)

// TwoStepRetrievalResult is the output of one retrieval call.
//
// ChosenFiles preserves first-appearance order from the broad hit list and
// never exceeds the file_k bound. NarrowHits never exceeds the final_k
// bound. Mode is ModeOneStepFallback exactly when ChosenFiles is empty.
type TwoStepRetrievalResult struct {
	Query       string
	ChosenFiles []string
	BroadHits   []Hit
	NarrowHits  []Hit
	Mode        Mode
}

// Source is the citation-safe projection of a Hit returned to clients.
// FileName and ChunkPart come from the hit's metadata, never invented.
// ChunkPart and Distance are pointers so "absent" survives serialization
// as a missing field rather than a zero.
type Source struct {
	FileName  string   `json:"file_name,omitempty"`
	ChunkPart *int     `json:"chunk_part,omitempty"`
	Distance  *float64 `json:"distance,omitempty"`
	Metadata  Meta     `json:"metadata"`
}

// SourcesFromHits derives one Source per hit, order preserving.
func SourcesFromHits(hits []Hit) []Source {
	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		src := Source{
			Distance: h.Distance,
			Metadata: h.Meta.Clone(),
		}
		if src.Metadata == nil {
			src.Metadata = Meta{}
		}
		if name, ok := h.Meta.FileName(); ok {
			src.FileName = name
		}
		if part, ok := h.Meta.ChunkPart(); ok {
			p := part
			src.ChunkPart = &p
		}
		sources = append(sources, src)
	}
	return sources
}

// AnswerResult is the final payload of one chat turn: the trimmed answer
// text, one Source per narrow hit, and the retrieval the answer was
// grounded in.
type AnswerResult struct {
	Answer    string
	Sources   []Source
	Retrieval *TwoStepRetrievalResult
}

// Chat roles accepted in normalized history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one normalized history entry.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
