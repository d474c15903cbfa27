// Package codesearch is the public surface of the semantic code search
// engine: five operations — index_codebase, reindex_by_change, clear_index,
// search_code, get_indexing_status — over a hybrid dense+BM25 vector store.
//
// # Usage
//
//	engine := codesearch.New(embedder, store, snapshots, statusReg)
//	stats, err := engine.IndexCodebase(ctx, root, codesearch.IndexOptions{}, nil)
//	results, err := engine.SearchCode(ctx, root, "authenticate user", codesearch.SearchOptions{Limit: 10})
//
// Only library semantics are normative here; an MCP-style tool layer or CLI
// wrapping these five operations is a packaging concern layered on top.
package codesearch
