package cluster

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseBrokerV1(t *testing.T) {
	data := []byte(`{"version":1,"host":"localhost","port":9092,"jmx_port":-1,"timestamp":"1416974968782"}`)

	b, err := ParseBroker(1, data)
	assert.NoError(t, err)
	assert.Equal(t, int32(1), b.ID)
	assert.Equal(t, []Endpoint{{Protocol: "PLAINTEXT", Host: "localhost", Port: 9092}}, b.Endpoints)
}

func TestParseBrokerV2(t *testing.T) {
	data := []byte(`{"version":2,"host":"localhost","port":9092,"jmx_port":-1,"timestamp":"1416974968782","endpoints":["PLAINTEXT://localhost:9092","SSL://localhost:9093"]}`)

	b, err := ParseBroker(2, data)
	assert.NoError(t, err)
	assert.Equal(t, []Endpoint{
		{Protocol: "PLAINTEXT", Host: "localhost", Port: 9092},
		{Protocol: "SSL", Host: "localhost", Port: 9093},
	}, b.Endpoints)
}

func TestParseBrokerWithRack(t *testing.T) {
	data := []byte(`{"version":3,"host":"localhost","port":9092,"rack":"dc1","endpoints":["PLAINTEXT://localhost:9092"]}`)

	b, err := ParseBroker(3, data)
	assert.NoError(t, err)
	assert.Equal(t, "dc1", b.Rack)
	assert.Equal(t, 1, len(b.Endpoints))
}

// Records written by schema versions newer than this parser must still
// decode; unknown fields are ignored, never rejected.
func TestParseBrokerFutureVersion(t *testing.T) {
	data := []byte(`{"version":100,"host":"localhost","port":9092,"rack":"dc1","endpoints":["PLAINTEXT://localhost:9092"],"listener_security_protocol_map":{"PLAINTEXT":"PLAINTEXT"},"some_future_field":true}`)

	b, err := ParseBroker(4, data)
	assert.NoError(t, err)
	assert.Equal(t, int32(4), b.ID)
	assert.Equal(t, []Endpoint{{Protocol: "PLAINTEXT", Host: "localhost", Port: 9092}}, b.Endpoints)
}

func TestParseBrokerBindAllEndpoint(t *testing.T) {
	data := []byte(`{"version":2,"endpoints":["PLAINTEXT://:9092"]}`)

	b, err := ParseBroker(5, data)
	assert.NoError(t, err)
	assert.Equal(t, "", b.Endpoints[0].Host)
	assert.Equal(t, "PLAINTEXT://:9092", b.Endpoints[0].ConnectionString())
}

func TestParseBrokerInvalid(t *testing.T) {
	t.Run("unsupported version", func(t *testing.T) {
		_, err := ParseBroker(1, []byte(`{"version":0,"host":"localhost","port":9092}`))
		assert.IsError(t, err, ErrUnsupportedVersion)
	})

	t.Run("missing version", func(t *testing.T) {
		_, err := ParseBroker(1, []byte(`{"host":"localhost","port":9092}`))
		assert.IsError(t, err, ErrUnsupportedVersion)
	})

	t.Run("garbage payload", func(t *testing.T) {
		_, err := ParseBroker(1, []byte(`not json`))
		assert.Error(t, err)
	})

	t.Run("malformed endpoint", func(t *testing.T) {
		_, err := ParseBroker(1, []byte(`{"version":2,"endpoints":["PLAINTEXT://host"]}`))
		assert.IsError(t, err, ErrMalformedEndpoint)
	})
}
