package serde

import (
	"encoding/binary"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/streamhaus/streamhaus/windowing"
)

func TestWindowedKeyRoundTrip(t *testing.T) {
	ser := WindowedKeySerializer(StringSerializer)
	deser := WindowedKeyDeserializer(StringDeserializer)

	tests := []struct {
		name    string
		key     string
		startMs int64
	}{
		{name: "simple key", key: "user-42", startMs: 1500000000000},
		{name: "empty key", key: "", startMs: 0},
		{name: "key containing separator-ish bytes", key: "a\x00b:c", startMs: 123},
		{name: "max start", key: "k", startMs: 1<<62 - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := ser(windowing.WindowedKey[string]{
				Key:    tt.key,
				Window: windowing.NewUnlimitedWindow(tt.startMs),
			})
			assert.NoError(t, err)

			decoded, err := deser(encoded)
			assert.NoError(t, err)
			assert.Equal(t, tt.key, decoded.Key)
			assert.Equal(t, tt.startMs, decoded.Window.StartMs)
			assert.True(t, decoded.Window.Unlimited())
		})
	}
}

func TestWindowedKeySuffixLayout(t *testing.T) {
	encoded := EncodeWindowStart([]byte("key"), 0x0102030405060708)

	assert.Equal(t, len("key")+8, len(encoded))
	assert.Equal(t, []byte("key"), encoded[:3])
	assert.Equal(t, uint64(0x0102030405060708), binary.BigEndian.Uint64(encoded[3:]))
}

// A bounded window encodes only its start; the decode side reconstructs the
// unlimited variant. The start instant survives, the window type does not.
func TestWindowedKeyDecodeIsAlwaysUnlimited(t *testing.T) {
	ser := WindowedKeySerializer(StringSerializer)
	deser := WindowedKeyDeserializer(StringDeserializer)

	encoded, err := ser(windowing.WindowedKey[string]{
		Key:    "k",
		Window: windowing.NewTimeWindow(100, 200),
	})
	assert.NoError(t, err)

	decoded, err := deser(encoded)
	assert.NoError(t, err)
	assert.Equal(t, int64(100), decoded.Window.StartMs)
	assert.True(t, decoded.Window.Unlimited())
}

func TestWindowedKeyTooShort(t *testing.T) {
	deser := WindowedKeyDeserializer(StringDeserializer)

	for _, data := range [][]byte{nil, {}, {1}, {1, 2, 3, 4, 5, 6, 7}} {
		_, err := deser(data)
		assert.IsError(t, err, ErrWindowedKeyTooShort)
	}

	// Exactly 8 bytes is a valid empty key.
	decoded, err := deser(make([]byte, 8))
	assert.NoError(t, err)
	assert.Equal(t, "", decoded.Key)
	assert.Equal(t, int64(0), decoded.Window.StartMs)
}
