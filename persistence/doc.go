// Package persistence defines the snapshot file format: a small header
// followed by framed sections, each independently compressed (zstd or
// lz4) and CRC32-checksummed.
package persistence
