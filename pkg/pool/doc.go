// Package pool implements the type-safe object pooling used by arrowlog's
// paged output channel and segment readers.
//
// Pool[T] builds on sync.Pool and adds allocation statistics and an
// optional reset hook. BufferPool layers size buckets over Pool[[]byte] for
// scratch buffers whose size is known only at the call site.
//
// Objects handed out by a pool belong to the caller until Put. Never Put
// an object twice and never keep using it after Put.
package pool
