package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Section frame layout, little-endian:
//
//	type   uint8
//	codec  uint8
//	ulen   uint32  uncompressed payload length
//	clen   uint32  stored payload length
//	crc    uint32  checksum of the stored payload
//	data   [clen]byte
type sectionHeader struct {
	Type  uint8
	Codec uint8
	ULen  uint32
	CLen  uint32
	CRC   uint32
}

type fileHeader struct {
	Magic   uint32
	Version uint32
}

// Writer emits a snapshot as a stream of framed, checksummed sections.
type Writer struct {
	w       io.Writer
	codec   Codec
	encoder *zstd.Encoder
	started bool
}

// NewWriter creates a snapshot writer using the given codec for every
// section.
func NewWriter(w io.Writer, codec Codec) (*Writer, error) {
	sw := &Writer{w: w, codec: codec}
	if codec == CodecZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		sw.encoder = enc
	}
	if codec > CodecLZ4 {
		return nil, ErrInvalidCodec
	}
	return sw, nil
}

func (sw *Writer) writeFileHeader() error {
	if sw.started {
		return nil
	}
	sw.started = true
	return binary.Write(sw.w, binary.LittleEndian, fileHeader{Magic: MagicNumber, Version: Version})
}

// WriteSection frames, compresses and checksums one section.
func (sw *Writer) WriteSection(typ SectionType, payload []byte) error {
	if err := sw.writeFileHeader(); err != nil {
		return err
	}

	stored := payload
	codec := sw.codec
	switch sw.codec {
	case CodecZstd:
		stored = sw.encoder.EncodeAll(payload, nil)
	case CodecLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		stored = buf.Bytes()
	}

	// Tiny sections can grow under compression; store those raw.
	if len(stored) >= len(payload) && sw.codec != CodecNone {
		stored = payload
		codec = CodecNone
	}

	hdr := sectionHeader{
		Type:  uint8(typ),
		Codec: uint8(codec),
		ULen:  uint32(len(payload)),
		CLen:  uint32(len(stored)),
		CRC:   checksum(stored),
	}
	if err := binary.Write(sw.w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	_, err := sw.w.Write(stored)
	return err
}

// Close finalizes the writer. An empty snapshot still gets its header.
func (sw *Writer) Close() error {
	return sw.writeFileHeader()
}

// Reader consumes a snapshot produced by Writer.
type Reader struct {
	r       io.Reader
	decoder *zstd.Decoder
	started bool
}

// NewReader creates a snapshot reader.
func NewReader(r io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Reader{r: r, decoder: dec}, nil
}

func (sr *Reader) readFileHeader() error {
	if sr.started {
		return nil
	}
	sr.started = true

	var hdr fileHeader
	if err := binary.Read(sr.r, binary.LittleEndian, &hdr); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrTruncated
		}
		return err
	}
	if hdr.Magic != MagicNumber {
		return ErrInvalidMagic
	}
	if hdr.Version != Version {
		return ErrInvalidVersion
	}
	return nil
}

// NextSection returns the next section, verifying its checksum and
// decompressing it. Returns io.EOF after the last section.
func (sr *Reader) NextSection() (SectionType, []byte, error) {
	if err := sr.readFileHeader(); err != nil {
		return 0, nil, err
	}

	var hdr sectionHeader
	if err := binary.Read(sr.r, binary.LittleEndian, &hdr); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return 0, nil, ErrTruncated
		}
		return 0, nil, err
	}

	stored := make([]byte, hdr.CLen)
	if _, err := io.ReadFull(sr.r, stored); err != nil {
		return 0, nil, ErrTruncated
	}

	typ := SectionType(hdr.Type)
	if actual := checksum(stored); actual != hdr.CRC {
		return typ, nil, &ChecksumMismatchError{Section: typ, Expected: hdr.CRC, Actual: actual}
	}

	var payload []byte
	switch Codec(hdr.Codec) {
	case CodecNone:
		payload = stored
	case CodecZstd:
		var err error
		if payload, err = sr.decoder.DecodeAll(stored, nil); err != nil {
			return typ, nil, err
		}
	case CodecLZ4:
		payload = make([]byte, 0, hdr.ULen)
		buf := bytes.NewBuffer(payload)
		if _, err := io.Copy(buf, lz4.NewReader(bytes.NewReader(stored))); err != nil {
			return typ, nil, err
		}
		payload = buf.Bytes()
	default:
		return typ, nil, ErrInvalidCodec
	}

	if uint32(len(payload)) != hdr.ULen {
		return typ, nil, fmt.Errorf("persistence: section %d decompressed to %d bytes, expected %d", typ, len(payload), hdr.ULen)
	}
	return typ, payload, nil
}

// ReadAll collects every remaining section keyed by type.
func (sr *Reader) ReadAll() (map[SectionType][]byte, error) {
	out := make(map[SectionType][]byte)
	for {
		typ, payload, err := sr.NextSection()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out[typ] = payload
	}
}
