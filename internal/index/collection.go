// Package index implements the Indexer orchestrator: it walks a codebase,
// chunks and embeds its files, and keeps a hybrid vector store collection in
// sync with the file system, either from scratch or incrementally.
package index

import "github.com/opencodesearch/codesearch/internal/codebase"

// CollectionName derives the vector store collection name for a codebase
// root. See internal/codebase for the derivation; re-exported here since
// callers already import this package for the Indexer itself.
func CollectionName(root string) string { return codebase.CollectionName(root) }

// CanonicalRoot resolves root to the same absolute, cleaned path the status
// registry and snapshot store key their state by.
func CanonicalRoot(root string) string { return codebase.CanonicalRoot(root) }
