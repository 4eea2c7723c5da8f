// Package vectorindex provides an exact, append-only vector index keyed by
// insertion position. Each position addresses three parallel stores: the entry
// id, the entry text and the stored vector. Indexes built for the cosine metric
// keep unit-normalized vectors and normalize queries the same way, so scores
// are cosine similarities in [-1, 1]. Indexes built for l2 keep raw vectors and
// score by Euclidean distance.
//
// A published index is treated as immutable. Snapshot publishes an index, or
// a value pairing it with state fitted to it, through an atomic pointer and
// replaces it whole, so concurrent searches never observe a partially built
// index.
package vectorindex
