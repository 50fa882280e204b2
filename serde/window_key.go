package serde

import (
	"encoding/binary"
	"errors"

	"github.com/streamhaus/streamhaus/windowing"
)

// A windowed key is stored as the raw key bytes followed by the window start
// instant as a big-endian int64. The timestamp always occupies the last 8
// bytes of the encoded buffer.
const windowSuffixSize = 8

// ErrWindowedKeyTooShort is returned when a buffer is too short to carry the
// 8-byte window suffix.
var ErrWindowedKeyTooShort = errors.New("serde: windowed key shorter than 8 bytes")

// EncodeWindowStart appends the big-endian window start instant to keyBytes.
func EncodeWindowStart(keyBytes []byte, startMs int64) []byte {
	buf := make([]byte, len(keyBytes)+windowSuffixSize)
	copy(buf, keyBytes)
	binary.BigEndian.PutUint64(buf[len(keyBytes):], uint64(startMs))
	return buf
}

// DecodeWindowStart splits an encoded windowed key into the raw key bytes
// and the window start instant.
func DecodeWindowStart(data []byte) ([]byte, int64, error) {
	if len(data) < windowSuffixSize {
		return nil, 0, ErrWindowedKeyTooShort
	}
	split := len(data) - windowSuffixSize
	return data[:split], int64(binary.BigEndian.Uint64(data[split:])), nil
}

// WindowedKeySerializer wraps a key serializer so it produces encoded
// windowed keys.
func WindowedKeySerializer[K any](inner Serializer[K]) Serializer[windowing.WindowedKey[K]] {
	return func(wk windowing.WindowedKey[K]) ([]byte, error) {
		keyBytes, err := inner(wk.Key)
		if err != nil {
			return nil, err
		}
		return EncodeWindowStart(keyBytes, wk.Window.StartMs), nil
	}
}

// WindowedKeyDeserializer wraps a key deserializer so it consumes encoded
// windowed keys. The encoding does not record which window variant produced
// the suffix, so the window is always reconstructed as the unlimited
// variant; round-tripping preserves the start instant, not the window type.
func WindowedKeyDeserializer[K any](inner Deserializer[K]) Deserializer[windowing.WindowedKey[K]] {
	return func(data []byte) (windowing.WindowedKey[K], error) {
		keyBytes, start, err := DecodeWindowStart(data)
		if err != nil {
			return windowing.WindowedKey[K]{}, err
		}
		key, err := inner(keyBytes)
		if err != nil {
			return windowing.WindowedKey[K]{}, err
		}
		return windowing.WindowedKey[K]{
			Key:    key,
			Window: windowing.NewUnlimitedWindow(start),
		}, nil
	}
}
