// Package quotes holds the in-memory quotation store and the inline query
// selection policy.
//
// The store is read once from a line-delimited file and never mutated, so a
// single *Index can be shared by every handler goroutine without locking.
// Sampling takes an explicit *rand.Rand so tests can fix the sequence.
package quotes
