// Package dedupe provides a reusable library for deduplicated,
// reference-counted content storage with pluggable repository, blob-storage
// and cache backends.
//
// It exposes a single Service interface that orchestrates uploads (hashing
// the stream and creating a record or attaching a reference to an existing
// one), deletes (detaching references and soft-deleting at zero), the
// storage-savings summary, and cache-coordinated search. Implementations of
// repositories (memory, Postgres), blob stores (memory, filesystem, S3) and
// the cache coordinator are provided under subpackages.
//
// # Concurrency
//
// The content-hash uniqueness constraint in the repository is the single
// source of truth for "is this content already stored". Attaching a
// reference is linearized by an optimistic version counter with a bounded
// retry budget; detaching holds an exclusive row lock so the choice between
// decrement and soft-delete is atomic with the read that decides it. Caches
// of derived state are invalidated explicitly after every mutation and are
// never authoritative.
//
// The uniqueness constraint deliberately covers soft-deleted rows as well:
// re-uploading content whose only prior record was fully deleted surfaces
// ErrIntegrity rather than resurrecting the row, keeping deleted records
// available for audit.
package dedupe
