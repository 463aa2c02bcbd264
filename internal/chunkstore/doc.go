// Package chunkstore provides vector similarity search over policy document
// chunks stored in PostgreSQL with pgvector.
//
// Store embeds query text with a configured ai.Embedder and runs cosine
// distance search against the policy_chunks table. It implements the
// rag.Searcher interface consumed by the retrieval pipeline.
package chunkstore
