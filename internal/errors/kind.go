// Package errors provides the structured error taxonomy for the indexing and
// search core. Errors are classified by Kind (not by Go type), matching the
// kinds the rest of the system branches on: whether to retry, whether to
// surface the error to a caller, whether it aborts an in-flight operation.
package errors

// Kind identifies one of the named error conditions the core raises.
type Kind string

const (
	// KindPathNotFound: root doesn't exist or isn't a directory.
	KindPathNotFound Kind = "PathNotFound"
	// KindAlreadyIndexed: index_codebase called on a live collection, force=false.
	KindAlreadyIndexed Kind = "AlreadyIndexed"
	// KindAlreadyIndexing: index/reindex called while status is Indexing.
	KindAlreadyIndexing Kind = "AlreadyIndexing"
	// KindNotIndexed: search/reindex/clear on an unknown root.
	KindNotIndexed Kind = "NotIndexed"
	// KindEmptyCorpus: BM25 learn() with zero documents.
	KindEmptyCorpus Kind = "EmptyCorpus"
	// KindNotTrained: BM25 generate() called before learn().
	KindNotTrained Kind = "NotTrained"
	// KindInvalidSplitter: unknown chunker strategy name.
	KindInvalidSplitter Kind = "InvalidSplitter"
	// KindInvalidExtensionFilter: extension filter entry doesn't match the
	// required syntax.
	KindInvalidExtensionFilter Kind = "InvalidExtensionFilter"
	// KindEmbeddingError: embedding provider failure. Retryable is set on the
	// Error value to indicate whether the caller should retry.
	KindEmbeddingError Kind = "EmbeddingError"
	// KindStoreError: vector store failure. StoreKind carries the backend's
	// own error classification.
	KindStoreError Kind = "StoreError"
	// KindCollectionLimitReached: the store signalled it is at capacity.
	KindCollectionLimitReached Kind = "CollectionLimitReached"
	// KindCancelled: the caller cancelled the operation's context.
	KindCancelled Kind = "Cancelled"
	// KindUnsupportedFilter: the store can't parse/honour a query filter.
	KindUnsupportedFilter Kind = "UnsupportedFilter"
	// KindUnsupportedDeletion: the store can't honour a delete request
	// (FAISS-family backends).
	KindUnsupportedDeletion Kind = "UnsupportedDeletion"
	// KindInternal: anything not named above; should be rare.
	KindInternal Kind = "Internal"
)

// retryableKinds records per-kind default retryability. IsRetryable does not
// consult it: an Error is retryable only when its own Retryable field is set
// (EmbeddingError sets it per-call based on the provider's classification;
// see internal/embed).
var retryableKinds = map[Kind]bool{
	KindEmbeddingError: false, // decided per-instance, see Error.Retryable
}
