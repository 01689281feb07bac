package persistence

import "errors"

const (
	// MagicNumber identifies snapshot files (ASCII: "BRN1").
	MagicNumber = 0x42524e31
	// Version is the current snapshot format version.
	Version = 0x00010000
)

// SectionType tags each framed section of a snapshot.
type SectionType uint8

const (
	SectionManifest SectionType = iota + 1
	SectionNodes
	SectionEdges
	SectionQuantizer
)

// Codec selects the per-section compression.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZstd
	CodecLZ4
)

var (
	ErrInvalidMagic   = errors.New("persistence: invalid magic number")
	ErrInvalidVersion = errors.New("persistence: unsupported version")
	ErrInvalidCodec   = errors.New("persistence: unknown codec")
	ErrTruncated      = errors.New("persistence: truncated snapshot")
)
