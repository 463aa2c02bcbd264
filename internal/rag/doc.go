// Package rag implements the retrieval-augmented answering core of policydesk.
//
// The package owns the two pieces of real algorithmic work in the system:
//
//   - Two-step retrieval: a broad semantic search over every indexed chunk,
//     selection of the top unique source files represented in those hits,
//     and a second search constrained to only those files. The broad pass
//     optimizes recall, the narrow pass precision. When the index carries no
//     usable file metadata the retriever degrades to a single-pass result
//     (ModeOneStepFallback) so the pipeline always produces an answerable
//     context.
//
//   - Grounded answer generation: retrieved hits are formatted into a
//     bounded context block with stable citation tokens
//     ("file_name#chunk_part"), chat history is normalized and truncated,
//     and the hosted model is invoked with instructions to answer from the
//     supplied context only.
//
// Retrieval backends and model clients are consumed through small
// interfaces (Searcher, ModelCaller) defined here, following the
// consumer-side interface convention used across the codebase. The
// chunkstore package provides the production Searcher; the llm package
// provides the production ModelCaller.
//
// Results can cross a tool or process boundary through an explicit
// serialized payload (see EncodeRetrieval/DecodeRetrieval) that drops the
// broad hit list to bound payload size.
package rag
