package persistence

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestSnapshot(t *testing.T, codec Codec, sections map[SectionType][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, codec)
	require.NoError(t, err)
	for _, typ := range []SectionType{SectionManifest, SectionNodes, SectionEdges, SectionQuantizer} {
		if payload, ok := sections[typ]; ok {
			require.NoError(t, w.WriteSection(typ, payload))
		}
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestRoundTripAllCodecs(t *testing.T) {
	big := bytes.Repeat([]byte("vector data block "), 500)
	sections := map[SectionType][]byte{
		SectionManifest:  []byte(`{"dimension":8}`),
		SectionNodes:     big,
		SectionQuantizer: {0x01, 0x02, 0x03},
	}

	for name, codec := range map[string]Codec{"none": CodecNone, "zstd": CodecZstd, "lz4": CodecLZ4} {
		t.Run(name, func(t *testing.T) {
			data := writeTestSnapshot(t, codec, sections)

			r, err := NewReader(bytes.NewReader(data))
			require.NoError(t, err)
			got, err := r.ReadAll()
			require.NoError(t, err)

			assert.Equal(t, sections[SectionManifest], got[SectionManifest])
			assert.Equal(t, sections[SectionNodes], got[SectionNodes])
			assert.Equal(t, sections[SectionQuantizer], got[SectionQuantizer])
		})
	}
}

func TestCompressionShrinksRepetitiveData(t *testing.T) {
	big := bytes.Repeat([]byte("abcdefgh"), 4096)
	plain := writeTestSnapshot(t, CodecNone, map[SectionType][]byte{SectionNodes: big})
	compressed := writeTestSnapshot(t, CodecZstd, map[SectionType][]byte{SectionNodes: big})
	assert.Less(t, len(compressed), len(plain)/4)
}

func TestInvalidMagic(t *testing.T) {
	r, err := NewReader(bytes.NewReader([]byte("not a snapshot at all")))
	require.NoError(t, err)
	_, _, err = r.NextSection()
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestTruncatedSnapshot(t *testing.T) {
	data := writeTestSnapshot(t, CodecNone, map[SectionType][]byte{
		SectionNodes: bytes.Repeat([]byte("x"), 1000),
	})

	r, err := NewReader(bytes.NewReader(data[:len(data)-10]))
	require.NoError(t, err)
	_, _, err = r.NextSection()
	require.ErrorIs(t, err, ErrTruncated)
}

func TestCorruptionDetected(t *testing.T) {
	data := writeTestSnapshot(t, CodecNone, map[SectionType][]byte{
		SectionNodes: bytes.Repeat([]byte("y"), 256),
	})

	// Flip a payload byte past the header and section frame.
	data[len(data)-1] ^= 0xff

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	_, _, err = r.NextSection()
	var mismatch *ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, SectionNodes, mismatch.Section)
}

func TestEmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, CodecZstd)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	_, _, err = r.NextSection()
	require.ErrorIs(t, err, io.EOF)
}
