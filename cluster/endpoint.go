// Package cluster parses broker registration metadata and listener
// endpoints.
package cluster

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedEndpoint is returned for listener strings that do not match
// protocol://host:port.
var ErrMalformedEndpoint = errors.New("cluster: malformed endpoint")

// net/url cannot be used here: IPv6 zone identifiers (%zone) are not valid
// in URL hosts, but they are valid in listener endpoints.
var (
	endpointRe = regexp.MustCompile(`^(.*)://\[?([0-9a-zA-Z\-%._:]*)\]?:(-?[0-9]+)$`)
	hostPortRe = regexp.MustCompile(`^\[?([0-9a-zA-Z\-%._:]*)\]?:([0-9]+)$`)
)

// Endpoint is one protocol-qualified listener of a broker. An empty Host
// means "bind to all interfaces" (the proto://:port form), following the
// net package convention for ":port" addresses.
type Endpoint struct {
	Protocol string
	Host     string
	Port     int32
}

// ParseEndpoint parses a listener string such as PLAINTEXT://host:9092.
// Hosts may be bare names, bracketed IPv6 literals, or IPv6 literals with a
// zone identifier; the host may be absent entirely.
func ParseEndpoint(s string) (Endpoint, error) {
	m := endpointRe.FindStringSubmatch(s)
	if m == nil {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrMalformedEndpoint, s)
	}
	port, err := strconv.ParseInt(m[3], 10, 32)
	if err != nil || port < 0 {
		return Endpoint{}, fmt.Errorf("%w: bad port in %q", ErrMalformedEndpoint, s)
	}
	return Endpoint{
		Protocol: m[1],
		Host:     m[2],
		Port:     int32(port),
	}, nil
}

// ConnectionString reconstructs the listener string this endpoint was parsed
// from. IPv6 hosts are re-bracketed; an absent host yields proto://:port.
func (e Endpoint) ConnectionString() string {
	return e.Protocol + "://" + e.hostPort()
}

func (e Endpoint) hostPort() string {
	switch {
	case e.Host == "":
		return fmt.Sprintf(":%d", e.Port)
	case strings.Contains(e.Host, ":"):
		return fmt.Sprintf("[%s]:%d", e.Host, e.Port)
	default:
		return fmt.Sprintf("%s:%d", e.Host, e.Port)
	}
}

// ParseHostPort splits a host:port string, handling bracketed IPv6 literals
// and zone identifiers.
func ParseHostPort(s string) (string, int32, error) {
	m := hostPortRe.FindStringSubmatch(s)
	if m == nil {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedEndpoint, s)
	}
	port, err := strconv.ParseInt(m[2], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad port in %q", ErrMalformedEndpoint, s)
	}
	return m[1], int32(port), nil
}
