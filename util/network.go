package util

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// numericOnly rejects anything but an IP literal when DNS is disabled.
func numericOnly(host string) error {
	if net.ParseIP(host) == nil {
		return fmt.Errorf("cannot parse %q as an IP address (DNS disabled with -n)", host)
	}
	return nil
}

// ResolveAddr builds the host:port to dial.  Resolution itself is left
// to the dialer; with noDNS the host must already be an IP literal.
// A bracketed IPv6 host is accepted.
func ResolveAddr(host string, port int, noDNS bool) (string, error) {
	host = strings.Trim(host, "[]")
	if noDNS {
		if err := numericOnly(host); err != nil {
			return "", err
		}
	}
	return FormatAddr(host, port), nil
}

// LookupHost resolves host for display (--dry-run).  With noDNS it only
// accepts IP literals and never queries a resolver.
func LookupHost(ctx context.Context, host string, noDNS bool) ([]string, error) {
	host = strings.Trim(host, "[]")
	if net.ParseIP(host) != nil {
		return []string{host}, nil
	}
	if noDNS {
		return nil, numericOnly(host)
	}
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("DNS lookup for %q: %w", host, err)
	}
	return addrs, nil
}

// FormatAddr returns "host:port", bracketing IPv6 literals.
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// FindFreePort returns a TCP port on 127.0.0.1 that was free a moment
// ago, for binding a source port.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
