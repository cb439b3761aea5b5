package codec

import (
	"testing"

	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompress_AllKinds(t *testing.T) {
	rng := testutil.NewRNG(1)
	// Repeated descriptors compress well; random ones do not.
	ref := rng.Descriptors(4)
	var descs []model.Descriptor
	for i := 0; i < 64; i++ {
		descs = append(descs, ref[i%len(ref)])
	}
	random := rng.Descriptors(64)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			for _, in := range [][]model.Descriptor{descs, random, nil} {
				blob, err := CompressDescriptors(in, c)
				require.NoError(t, err)

				out, err := DecompressDescriptors(blob)
				require.NoError(t, err)
				assert.Len(t, out, len(in))
				for i := range in {
					assert.Equal(t, in[i], out[i])
				}
			}

			if c != CompressionNone {
				blob, err := CompressDescriptors(descs, c)
				require.NoError(t, err)
				assert.Less(t, len(blob), len(descs)*model.DescriptorSize)
				assert.Equal(t, byte(c), blob[0])
			}
		})
	}
}

func TestCompress_IncompressibleStoredRaw(t *testing.T) {
	rng := testutil.NewRNG(2)
	blob, err := CompressDescriptors(rng.Descriptors(8), CompressionZSTD)
	require.NoError(t, err)
	assert.Equal(t, byte(CompressionNone), blob[0])
}

func TestDecompress_Corrupt(t *testing.T) {
	_, err := Decompress([]byte{1, 2})
	require.ErrorIs(t, err, ErrCorruptBlock)

	// Header claims 64 bytes, only 10 present.
	block := []byte{0, 64, 0, 0, 0}
	block = append(block, make([]byte, 10)...)
	_, err = Decompress(block)
	require.ErrorIs(t, err, ErrCorruptBlock)

	_, err = Decompress([]byte{9, 0, 0, 0, 0})
	require.ErrorIs(t, err, ErrCorruptBlock)
}

func TestDecompressDescriptors_Malformed(t *testing.T) {
	blob, err := Compress(make([]byte, 33), CompressionNone)
	require.NoError(t, err)
	_, err = DecompressDescriptors(blob)
	require.ErrorIs(t, err, model.ErrMalformedDescriptors)

	_, err = DecompressDescriptors([]byte{0})
	require.ErrorIs(t, err, model.ErrMalformedDescriptors)
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}

func TestRecord_Codecs(t *testing.T) {
	rng := testutil.NewRNG(3)
	rec := model.Record{
		ID:          model.NewID(),
		Title:       "Vase",
		Description: "Ming dynasty",
		Image:       []byte{0xff, 0xd8},
		Descriptors: rng.Descriptors(5),
	}

	for _, name := range []string{"json", "go-json"} {
		t.Run(name, func(t *testing.T) {
			c, ok := ByName(name)
			require.True(t, ok)
			assert.Equal(t, name, c.Name())

			data, err := EncodeRecord(c, rec, CompressionLZ4)
			require.NoError(t, err)

			got, err := DecodeRecord(c, data, true)
			require.NoError(t, err)
			assert.Equal(t, rec, got)

			noImage, err := DecodeRecord(c, data, false)
			require.NoError(t, err)
			assert.Nil(t, noImage.Image)
		})
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestDecodeRecord_BadID(t *testing.T) {
	data, err := JSON{}.Marshal(StoredRecord{ID: "nope"})
	require.NoError(t, err)
	_, err = DecodeRecord(JSON{}, data, false)
	assert.Error(t, err)
}
