package crypto

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// ErrForbiddenURL is returned when an outbound URL fails validation.
var ErrForbiddenURL = errors.New("crypto: forbidden outbound url")

// blockedPrefixes are ranges that never count as publicly routable even
// though the netip predicates alone would let them through.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),  // carrier-grade NAT
	netip.MustParsePrefix("192.0.0.0/24"),   // IETF protocol assignments
	netip.MustParsePrefix("192.0.2.0/24"),   // TEST-NET-1
	netip.MustParsePrefix("198.18.0.0/15"),  // benchmarking
	netip.MustParsePrefix("198.51.100.0/24"), // TEST-NET-2
	netip.MustParsePrefix("203.0.113.0/24"), // TEST-NET-3
	netip.MustParsePrefix("240.0.0.0/4"),    // reserved
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("64:ff9b::/96"), // NAT64
	netip.MustParsePrefix("2001:db8::/32"),
}

// URLGuard validates destinations for outbound webhook delivery so the
// service cannot be steered at internal infrastructure.
type URLGuard struct {
	resolve func(ctx context.Context, host string) ([]netip.Addr, error)
}

// NewURLGuard creates a URLGuard using the system resolver.
func NewURLGuard() *URLGuard {
	return &URLGuard{
		resolve: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
	}
}

// NewURLGuardWithResolver creates a URLGuard with a custom resolver. For tests.
func NewURLGuardWithResolver(resolve func(ctx context.Context, host string) ([]netip.Addr, error)) *URLGuard {
	return &URLGuard{resolve: resolve}
}

// Validate checks that rawURL is an HTTPS URL whose host resolves only to
// publicly routable addresses. Every resolved address must pass; a single
// internal address rejects the URL.
func (g *URLGuard) Validate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForbiddenURL, err)
	}

	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("%w: scheme %q is not https", ErrForbiddenURL, u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("%w: userinfo not allowed", ErrForbiddenURL)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrForbiddenURL)
	}

	var addrs []netip.Addr
	if addr, err := netip.ParseAddr(host); err == nil {
		addrs = []netip.Addr{addr}
	} else {
		addrs, err = g.resolve(ctx, host)
		if err != nil {
			return fmt.Errorf("%w: resolving %s: %v", ErrForbiddenURL, host, err)
		}
		if len(addrs) == 0 {
			return fmt.Errorf("%w: %s resolved to no addresses", ErrForbiddenURL, host)
		}
	}

	for _, addr := range addrs {
		if err := checkAddr(addr); err != nil {
			return err
		}
	}
	return nil
}

// checkAddr rejects any address that is not publicly routable. IPv4-mapped
// IPv6 addresses are unmapped first so ::ffff:10.0.0.1 cannot slip past
// the IPv4 range checks.
func checkAddr(addr netip.Addr) error {
	addr = addr.Unmap()

	switch {
	case addr.IsLoopback(),
		addr.IsUnspecified(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsMulticast(),
		addr.IsPrivate(): // RFC 1918 and IPv6 ULA fc00::/7
		return fmt.Errorf("%w: %s is not publicly routable", ErrForbiddenURL, addr)
	}

	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return fmt.Errorf("%w: %s is in blocked range %s", ErrForbiddenURL, addr, p)
		}
	}
	return nil
}
