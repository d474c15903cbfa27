package errors

import "fmt"

// Error is the structured error type the core returns from every public
// operation. It carries a stable, machine-readable Kind plus a human message
// and, where relevant, the offending path/collection.
type Error struct {
	Kind Kind

	// Message is the human-readable description.
	Message string

	// Path is the offending path or collection name, when relevant.
	Path string

	// Retryable is meaningful for KindEmbeddingError: whether the caller's
	// retry policy should apply.
	Retryable bool

	// StoreKind carries the backend's own error classification for
	// KindStoreError (e.g. "faiss", "qdrant", "milvus", "hnsw").
	StoreKind string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is enables errors.Is(err, &Error{Kind: KindX}) to match by Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithPath returns a copy of e with Path set. Convenient for chaining at the
// call site: errors.New(KindPathNotFound, "no such directory").WithPath(root).
func (e *Error) WithPath(path string) *Error {
	ne := *e
	ne.Path = path
	return &ne
}

func PathNotFound(path string) *Error {
	return New(KindPathNotFound, "root does not exist or is not a directory").WithPath(path)
}

func AlreadyIndexed(root string) *Error {
	return New(KindAlreadyIndexed, "codebase is already indexed; pass force=true to re-index").WithPath(root)
}

func AlreadyIndexing(root string) *Error {
	return New(KindAlreadyIndexing, "codebase is currently being indexed").WithPath(root)
}

func NotIndexed(root string) *Error {
	return New(KindNotIndexed, "codebase has not been indexed").WithPath(root)
}

func EmptyCorpus() *Error {
	return New(KindEmptyCorpus, "corpus yielded zero documents")
}

func NotTrained() *Error {
	return New(KindNotTrained, "BM25 model has not been trained")
}

func InvalidSplitter(name string) *Error {
	return New(KindInvalidSplitter, fmt.Sprintf("unknown chunker strategy %q", name))
}

func InvalidExtensionFilter(entry string) *Error {
	return New(KindInvalidExtensionFilter, fmt.Sprintf("invalid extension filter entry %q", entry))
}

// EmbeddingError wraps a provider failure. retryable reflects the
// classification from internal/embed's pure predicate, not a guess made here.
func EmbeddingError(retryable bool, cause error) *Error {
	return &Error{Kind: KindEmbeddingError, Message: "embedding provider call failed", Retryable: retryable, Cause: cause}
}

// StoreError wraps a vector store failure, tagged with the backend's name.
func StoreError(storeKind, message string, cause error) *Error {
	return &Error{Kind: KindStoreError, Message: message, StoreKind: storeKind, Cause: cause}
}

func CollectionLimitReached(collection string) *Error {
	return New(KindCollectionLimitReached, "vector store signalled capacity reached").WithPath(collection)
}

func Cancelled() *Error {
	return New(KindCancelled, "operation cancelled")
}

func UnsupportedFilter(storeKind string) *Error {
	return &Error{Kind: KindUnsupportedFilter, Message: "store cannot honour this query filter", StoreKind: storeKind}
}

func UnsupportedDeletion(storeKind string) *Error {
	return &Error{Kind: KindUnsupportedDeletion, Message: "store cannot honour delete; drop and recreate the collection", StoreKind: storeKind}
}

// IsRetryable reports whether err is an *Error whose Retryable flag is set.
func IsRetryable(err error) bool {
	var e *Error
	if !As(err, &e) {
		return false
	}
	return e.Retryable
}

// GetKind extracts the Kind from err, or "" if err is not an *Error.
func GetKind(err error) Kind {
	var e *Error
	if !As(err, &e) {
		return ""
	}
	return e.Kind
}

// As is a small local wrapper so this file doesn't need to import the
// standard "errors" package under a name that collides with the package
// itself being named errors.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
