// Package address turns user supplied server addresses into endpoints the
// status client can dial.
package address

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/keyboard-slayer/mcstatus/internal/mcerrors"
)

const DefaultPort uint16 = 25565

// Endpoint identifies a server. Host and port are what the user asked for and
// what goes into the handshake. The dial target differs from them only after
// an SRV record redirected the endpoint.
type Endpoint struct {
	host         string
	port         uint16
	explicitPort bool
	target       string
}

func New(host string, port uint16) Endpoint {
	return Endpoint{host: host, port: port, explicitPort: true}
}

// Parse accepts "host", "host:port" and "[ipv6]:port".
func Parse(addr string) (Endpoint, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Endpoint{}, fmt.Errorf("%w: empty address", mcerrors.ErrAddress)
	}

	host, rawPort, hasPort := splitHostPort(addr)
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: missing host in %q", mcerrors.ErrAddress, addr)
	}

	if strings.ContainsAny(host, " /") {
		return Endpoint{}, fmt.Errorf("%w: malformed host %q", mcerrors.ErrAddress, host)
	}

	if !hasPort {
		return Endpoint{host: host, port: DefaultPort}, nil
	}

	port, err := strconv.ParseUint(rawPort, 10, 16)
	if err != nil || port == 0 {
		return Endpoint{}, fmt.Errorf("%w: invalid port %q", mcerrors.ErrAddress, rawPort)
	}

	return New(host, uint16(port)), nil
}

func splitHostPort(addr string) (string, string, bool) {
	if strings.HasPrefix(addr, "[") {
		end := strings.Index(addr, "]")
		if end < 0 {
			return "", "", false
		}

		host := addr[1:end]
		rest := addr[end+1:]
		if rest == "" {
			return host, "", false
		}

		if !strings.HasPrefix(rest, ":") {
			return "", "", false
		}

		return host, rest[1:], true
	}

	// A bare IPv6 literal has more than one colon and no port.
	if strings.Count(addr, ":") > 1 {
		return addr, "", false
	}

	host, port, found := strings.Cut(addr, ":")
	return host, port, found
}

func (e Endpoint) Host() string {
	return e.host
}

func (e Endpoint) Port() uint16 {
	return e.port
}

// IsIP reports whether the host is an IP literal.
func (e Endpoint) IsIP() bool {
	return net.ParseIP(e.host) != nil
}

// String returns host:port as the user would write it.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.host, strconv.Itoa(int(e.port)))
}

// Target is the address to dial.
func (e Endpoint) Target() string {
	if e.target != "" {
		return e.target
	}

	return e.String()
}

// Redirected reports whether an SRV record changed the dial target.
func (e Endpoint) Redirected() bool {
	return e.target != ""
}

// SRVResolver is the part of *net.Resolver that Resolve needs.
type SRVResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// Resolve follows the _minecraft._tcp SRV record of the host, the way the
// vanilla client does. IP literals and endpoints with an explicit port are
// left alone, and so is every endpoint whose lookup fails.
func Resolve(ctx context.Context, resolver SRVResolver, e Endpoint) Endpoint {
	if e.IsIP() || e.explicitPort {
		return e
	}

	_, records, err := resolver.LookupSRV(ctx, "minecraft", "tcp", e.host)
	if err != nil || len(records) == 0 {
		slog.Debug("no SRV record", "host", e.host, "error", err)
		return e
	}

	record := records[0]
	host := strings.TrimSuffix(record.Target, ".")
	if host == "" {
		return e
	}

	e.target = net.JoinHostPort(host, strconv.Itoa(int(record.Port)))
	slog.Debug("following SRV record", "host", e.host, "target", e.target)

	return e
}
