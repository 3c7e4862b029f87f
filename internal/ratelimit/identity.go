package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Forwarding headers, in the order they are consulted.
const (
	HeaderXForwardedFor  = "X-Forwarded-For"
	HeaderXRealIP        = "X-Real-IP"
	HeaderCFConnectingIP = "CF-Connecting-IP"
)

// UnknownClientAddress is used when a request carries no address at all.
// It is address shaped so unknown callers share one well-formed key.
const UnknownClientAddress = "0.0.0.0"

var keyPartSanitizer = strings.NewReplacer(":", "_", "/", "_")

// IdentityKind tells what a ClientIdentity value holds.
type IdentityKind int

const (
	// IdentityKindIP is a normalized client address.
	IdentityKindIP IdentityKind = iota
	// IdentityKindUserID is an authenticated subject.
	IdentityKindUserID
)

// String returns the kind name.
func (k IdentityKind) String() string {
	switch k {
	case IdentityKindIP:
		return "ip"
	case IdentityKindUserID:
		return "user_id"
	default:
		return "unknown"
	}
}

// ClientIdentity is the caller a request is charged to.
type ClientIdentity struct {
	Kind  IdentityKind
	Value string
}

// Resolver derives the client address of a request.
//
// Forwarding headers are untrusted and only ever used to build counter
// keys, never for authorization.
type Resolver struct {
	headers []string
}

// NewResolver creates a Resolver consulting X-Forwarded-For, X-Real-IP and
// then CF-Connecting-IP before the transport peer.
func NewResolver() *Resolver {
	return &Resolver{
		headers: []string{HeaderXForwardedFor, HeaderXRealIP, HeaderCFConnectingIP},
	}
}

// Resolve returns the normalized client address of r. It never fails;
// without any usable source the address is 0.0.0.0.
func (res *Resolver) Resolve(r *http.Request) ClientIdentity {
	return ClientIdentity{Kind: IdentityKindIP, Value: NormalizeIP(res.clientAddress(r))}
}

func (res *Resolver) clientAddress(r *http.Request) string {
	for _, name := range res.headers {
		var value string
		if name == HeaderXForwardedFor {
			value = firstForwardedFor(r.Header.Values(name))
		} else {
			value = strings.TrimSpace(r.Header.Get(name))
		}
		if value != "" {
			return value
		}
	}

	if host := peerHost(r.RemoteAddr); host != "" {
		return host
	}

	return UnknownClientAddress
}

// firstForwardedFor returns the first non-empty token across all
// X-Forwarded-For lines, which is the original client of a proxy chain.
func firstForwardedFor(lines []string) string {
	for _, line := range lines {
		for _, token := range strings.Split(line, ",") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	return ""
}

func peerHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// NormalizeIP returns the canonical text form of an address so equal
// addresses always produce equal keys. IPv4-mapped IPv6 addresses become
// IPv4, IPv6 is lowercased and compressed, and brackets, ports and zones
// are dropped. A value that is not an address is kept with ':' and '/'
// replaced by '_'. NormalizeIP is idempotent.
func NormalizeIP(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return UnknownClientAddress
	}

	if addr, ok := parseAddr(s); ok {
		return addr.Unmap().WithZone("").String()
	}

	return sanitizeKeyPart(s)
}

func parseAddr(s string) (netip.Addr, bool) {
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr, true
	}
	if addrPort, err := netip.ParseAddrPort(s); err == nil {
		return addrPort.Addr(), true
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		if addr, err := netip.ParseAddr(s[1 : len(s)-1]); err == nil {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

func sanitizeKeyPart(s string) string {
	return keyPartSanitizer.Replace(s)
}
