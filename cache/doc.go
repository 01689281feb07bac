// Package cache implements the tiered entry cache: a hot bounded LRU,
// a warm TTL tier fed by hot evictions, and a cold tier backed by the
// shared object store. Pinning and connectivity-driven prefetch keep
// search working sets resident.
package cache
