package serde

// Bytes passes raw record payloads through untouched.
var Bytes = Serde[[]byte]{
	Serializer:   func(data []byte) ([]byte, error) { return data, nil },
	Deserializer: func(data []byte) ([]byte, error) { return data, nil },
}
