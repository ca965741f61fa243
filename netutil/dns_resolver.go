/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package netutil contains network helpers shared by the outbound HTTP clients.
package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/atomic"
)

const defaultDNSPort = "53"

// ErrNoDNSServers is returned when a resolver is requested without any server address.
var ErrNoDNSServers = errors.New("no DNS servers specified")

// NewCustomDNSResolver creates a resolver that sends queries to the given DNS servers
// in round-robin order instead of the ones from the system configuration.
// Each address is a "host:port" pair; port 53 is assumed when it is omitted.
func NewCustomDNSResolver(addrs []string, timeout time.Duration) (*net.Resolver, error) {
	if len(addrs) == 0 {
		return nil, ErrNoDNSServers
	}
	servers := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		server, err := normalizeDNSServerAddr(addr)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}

	var idx atomic.Uint32
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			server := servers[(idx.Inc()-1)%uint32(len(servers))] //nolint:gosec // server count is reasonable
			return d.DialContext(ctx, network, server)
		},
	}, nil
}

func normalizeDNSServerAddr(addr string) (string, error) {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr, nil
	}
	host := strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
	if net.ParseIP(host) == nil {
		return "", fmt.Errorf("invalid DNS server address %q", addr)
	}
	return net.JoinHostPort(host, defaultDNSPort), nil
}
