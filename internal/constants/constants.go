// Package constants holds the compile-time defaults for the dispatch core.
// Only IncompleteTimeout and IncompleteMax can be overridden, through the
// root package's WithIncompleteTimeout and WithIncompleteMax options;
// ChunksPerTx, MinBufferWords, CachePoolSize and DiagnosticRingSize are
// fixed at compile time.
package constants

import "time"

const (
	// ChunksPerTx is the number of direct ring references ("chunks") a
	// transaction may hold before further appends force promotion to an
	// owned buffer.
	ChunksPerTx = 3

	// MinBufferWords is the smallest owned-buffer allocation, in words.
	// Buffers grow by doubling from this floor.
	MinBufferWords = 64

	// CachePoolSize is the number of retired transaction shells kept
	// around for reuse before the allocator is asked for a fresh one.
	CachePoolSize = 10

	// IncompleteTimeout is how long a transaction may sit on the
	// incomplete queue before it is forced complete.
	IncompleteTimeout = 120 * time.Second

	// IncompleteMax bounds the number of simultaneously incomplete
	// transactions; the oldest are forced once the bound is exceeded.
	IncompleteMax = 1000

	// DiagnosticRingSize bounds the number of diagnostics retained per
	// transaction; oldest entries are dropped first.
	DiagnosticRingSize = 8
)
