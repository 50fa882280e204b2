package streamhaus

import "github.com/streamhaus/streamhaus/serde"

// Config carries the process-wide defaults supplied to nodes that were not
// configured explicitly. It is owned by the application and initialized once
// at startup.
type Config struct {
	// Default serdes for sources and debug sinks created without explicit
	// serdes. Records pass through as raw bytes unless overridden.
	DefaultKeySerde   serde.Serde[[]byte]
	DefaultValueSerde serde.Serde[[]byte]
}

func NewConfig() *Config {
	return &Config{
		DefaultKeySerde:   serde.Bytes,
		DefaultValueSerde: serde.Bytes,
	}
}
