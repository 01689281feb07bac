// Package coordinator fans search queries out over partitions through a
// fixed worker pool, degrades gracefully when partitions miss their
// deadline, and merges per-partition answers deterministically.
package coordinator
