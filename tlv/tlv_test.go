package tlv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 3, 4, 255, 256, 16384, 65534, 65535}

	for _, size := range sizes {
		value := bytes.Repeat([]byte{0xA5}, size)
		data, err := Encode(TypeDataRequest, value)
		require.NoError(t, err, "size %d", size)
		assert.Len(t, data, 4+size)

		records, err := Decode(data)
		require.NoError(t, err, "size %d", size)
		require.Len(t, records, 1)
		assert.Equal(t, TypeDataRequest, records[0].Type)
		assert.Equal(t, value, records[0].Value)
	}
}

func TestEncodeRejectsOversizedValue(t *testing.T) {
	_, err := Encode(TypeDataResponse, make([]byte, 65536))
	assert.ErrorIs(t, err, ErrValueTooLarge)
}

func TestEncodeWireLayout(t *testing.T) {
	data, err := Encode(TypeDataResponse, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x01, 0x00, 0x02, 'h', 'i'}, data)
}

func TestEncodeAll(t *testing.T) {
	data, err := EncodeAll(
		Record{Type: TypePadding, Value: []byte{0, 0}},
		Record{Type: TypeDataRequest, Value: []byte("offer")},
		Record{Type: Type(0x7777), Value: nil},
	)
	require.NoError(t, err)

	records, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, TypePadding, records[0].Type)
	assert.Equal(t, []byte("offer"), records[1].Value)
	assert.Equal(t, Type(0x7777), records[2].Type)
	assert.Empty(t, records[2].Value)

	_, err = EncodeAll(Record{Type: TypeDataRequest, Value: make([]byte, 70000)})
	assert.ErrorIs(t, err, ErrValueTooLarge)
}

func TestDecodeTruncated(t *testing.T) {
	good, err := Encode(TypeDataRequest, []byte("complete"))
	require.NoError(t, err)

	tests := []struct {
		name string
		tail []byte
	}{
		{"short header", []byte{0x01, 0x00, 0x00}},
		{"short value", []byte{0x01, 0x00, 0x00, 0x05, 'a', 'b'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := append(append([]byte{}, good...), tt.tail...)
			records, err := Decode(buf)
			assert.ErrorIs(t, err, ErrTruncated)
			require.Len(t, records, 1, "records before the truncated tail are kept")
			assert.Equal(t, []byte("complete"), records[0].Value)
		})
	}
}

func TestDecodeAllIsLazy(t *testing.T) {
	data, err := EncodeAll(
		Record{Type: TypeDataRequest, Value: []byte("a")},
		Record{Type: TypeDataRequest, Value: []byte("b")},
		Record{Type: TypeDataRequest, Value: []byte("c")},
	)
	require.NoError(t, err)

	seen := 0
	for rec, err := range DecodeAll(data) {
		require.NoError(t, err)
		seen++
		if string(rec.Value) == "b" {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestDecodeDoesNotAliasInput(t *testing.T) {
	data, err := Encode(TypeDataRequest, []byte("abc"))
	require.NoError(t, err)

	records, err := Decode(data)
	require.NoError(t, err)
	data[4] = 'z'
	assert.Equal(t, []byte("abc"), records[0].Value)
}

func TestDecodeEmpty(t *testing.T) {
	records, err := Decode(nil)
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestHandlesAndString(t *testing.T) {
	assert.True(t, Handles(TypeDataRequest))
	assert.True(t, Handles(TypeDataResponse))
	assert.False(t, Handles(TypeSMP1))
	assert.False(t, Handles(TypePadding))

	assert.Equal(t, "data-request", TypeDataRequest.String())
	assert.Equal(t, "unknown(0x1234)", Type(0x1234).String())
}

func TestRecordValid(t *testing.T) {
	assert.True(t, Record{Value: make([]byte, 65535)}.Valid())
	assert.False(t, Record{Value: make([]byte, 65536)}.Valid())
	assert.Equal(t, 9, Record{Value: []byte("hello")}.Size())
}

func FuzzDecodeAll(f *testing.F) {
	seed, _ := Encode(TypeDataRequest, []byte("GET otr-in-band:/storage/x HTTP/1.1\r\n\r\n"))
	f.Add(seed)
	f.Add([]byte{0x01})
	f.Add([]byte{0x00, 0x00, 0xff, 0xff})

	f.Fuzz(func(t *testing.T, data []byte) {
		consumed := 0
		for rec, err := range DecodeAll(data) {
			if err != nil {
				return
			}
			consumed += rec.Size()
			if consumed > len(data) {
				t.Fatalf("decoded %d bytes from %d-byte input", consumed, len(data))
			}
		}
		if consumed != len(data) {
			t.Fatalf("clean decode consumed %d of %d bytes", consumed, len(data))
		}
	})
}

func BenchmarkEncode(b *testing.B) {
	value := make([]byte, 16384)
	b.SetBytes(int64(len(value)))
	for i := 0; i < b.N; i++ {
		if _, err := Encode(TypeDataResponse, value); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeAll(b *testing.B) {
	data, _ := EncodeAll(
		Record{Type: TypeDataResponse, Value: make([]byte, 16384)},
		Record{Type: TypeDataResponse, Value: make([]byte, 16384)},
	)
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		for _, err := range DecodeAll(data) {
			if err != nil {
				b.Fatal(err)
			}
		}
	}
}
