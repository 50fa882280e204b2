package cluster

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrUnsupportedVersion is returned for broker registration payloads whose
// schema version cannot be decoded.
var ErrUnsupportedVersion = errors.New("cluster: unsupported broker registration version")

// Broker is one member of the cluster, decoded from its versioned JSON
// registration record.
type Broker struct {
	ID        int32
	Rack      string
	Endpoints []Endpoint
}

// brokerRegistration covers schema versions 1 and up. Fields introduced by
// versions newer than this parser are ignored, not rejected.
type brokerRegistration struct {
	Version   int      `json:"version"`
	Host      string   `json:"host"`
	Port      int32    `json:"port"`
	Endpoints []string `json:"endpoints"`
	Rack      string   `json:"rack"`
}

// ParseBroker decodes a broker registration record. Version 1 records carry
// a bare host and port, from which a PLAINTEXT endpoint is synthesized;
// version 2 and every later version carry an explicit endpoint list.
func ParseBroker(id int32, data []byte) (*Broker, error) {
	var reg brokerRegistration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("cluster: failed to decode broker %d registration: %w", id, err)
	}
	if reg.Version < 1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, reg.Version)
	}

	broker := &Broker{ID: id, Rack: reg.Rack}

	if reg.Version == 1 {
		broker.Endpoints = []Endpoint{{Protocol: "PLAINTEXT", Host: reg.Host, Port: reg.Port}}
		return broker, nil
	}

	broker.Endpoints = make([]Endpoint, 0, len(reg.Endpoints))
	for _, raw := range reg.Endpoints {
		ep, err := ParseEndpoint(raw)
		if err != nil {
			return nil, fmt.Errorf("cluster: broker %d: %w", id, err)
		}
		broker.Endpoints = append(broker.Endpoints, ep)
	}
	return broker, nil
}
