// Package consistency coordinates multiple instances sharing one
// backing store: advisory TTL locks built on conditional puts, an
// append-only change log for cross-instance replay, and a shared
// statistics document.
package consistency
