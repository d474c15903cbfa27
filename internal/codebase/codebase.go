// Package codebase derives the canonical identity of an indexed codebase
// root: the collection name the vector store uses for it and the
// canonicalised path key the status registry and snapshot store use for it.
// It is factored out of internal/index so internal/search can share the
// same derivation without importing the indexer.
package codebase

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// collectionPrefix names every codebase's collection in the vector store.
const collectionPrefix = "code_chunks_"

// CollectionName derives the vector store collection name for a codebase
// root: a fixed prefix plus the first 16 hex characters of the SHA-256
// digest of the canonicalised root, per the deterministic naming scheme
// also used for snapshot and status file naming.
func CollectionName(root string) string {
	sum := sha256.Sum256([]byte(CanonicalRoot(root)))
	return collectionPrefix + hex.EncodeToString(sum[:])[:16]
}

// CanonicalRoot resolves root to an absolute, cleaned path so that the same
// codebase always maps to the same collection name and snapshot file
// regardless of the working directory or trailing slashes a caller passes.
func CanonicalRoot(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Clean(root)
	}
	return filepath.Clean(abs)
}
