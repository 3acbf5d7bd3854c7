package crypto

import (
	"context"
	"errors"
	"net/netip"
	"testing"
)

func guardResolvingTo(addrs ...string) *URLGuard {
	parsed := make([]netip.Addr, len(addrs))
	for i, a := range addrs {
		parsed[i] = netip.MustParseAddr(a)
	}
	return NewURLGuardWithResolver(func(_ context.Context, _ string) ([]netip.Addr, error) {
		return parsed, nil
	})
}

func TestURLGuard_SchemeAndShape(t *testing.T) {
	g := guardResolvingTo("93.184.216.34")

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https allowed", "https://hooks.example.com/T000/B000", false},
		{"http rejected", "http://hooks.example.com/T000", true},
		{"ftp rejected", "ftp://hooks.example.com/x", true},
		{"empty host rejected", "https:///path-only", true},
		{"userinfo rejected", "https://admin:pw@hooks.example.com/x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Validate(context.Background(), tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrForbiddenURL) {
				t.Fatalf("error %v does not wrap ErrForbiddenURL", err)
			}
		})
	}
}

func TestURLGuard_LiteralAddresses(t *testing.T) {
	g := guardResolvingTo("93.184.216.34")

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public v4", "https://93.184.216.34/hook", false},
		{"loopback v4", "https://127.0.0.1/hook", true},
		{"loopback v6", "https://[::1]/hook", true},
		{"rfc1918 10/8", "https://10.12.0.5/hook", true},
		{"rfc1918 172.16/12", "https://172.20.1.1/hook", true},
		{"rfc1918 192.168/16", "https://192.168.1.10/hook", true},
		{"link-local v4", "https://169.254.169.254/latest/meta-data", true},
		{"link-local v6", "https://[fe80::1]/hook", true},
		{"unspecified", "https://0.0.0.0/hook", true},
		{"cgnat", "https://100.64.3.2/hook", true},
		{"reserved 240/4", "https://250.1.1.1/hook", true},
		{"ipv6 ula", "https://[fd12:3456::1]/hook", true},
		{"ipv4-mapped v6 private", "https://[::ffff:10.0.0.1]/hook", true},
		{"ipv4-mapped v6 loopback", "https://[::ffff:127.0.0.1]/hook", true},
		{"public v6", "https://[2607:f8b0:4004:800::200e]/hook", false},
		{"doc range v6", "https://[2001:db8::1]/hook", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Validate(context.Background(), tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestURLGuard_ResolvedAddresses(t *testing.T) {
	// DNS rebinding: the hostname looks fine but resolves to an internal
	// address. Every resolved address must be routable.
	t.Run("one internal address rejects the url", func(t *testing.T) {
		g := guardResolvingTo("93.184.216.34", "10.0.0.8")
		if err := g.Validate(context.Background(), "https://hooks.example.com/x"); err == nil {
			t.Fatal("expected rejection when one resolved address is internal")
		}
	})

	t.Run("all public addresses accepted", func(t *testing.T) {
		g := guardResolvingTo("93.184.216.34", "2607:f8b0:4004:800::200e")
		if err := g.Validate(context.Background(), "https://hooks.example.com/x"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("resolver failure rejects", func(t *testing.T) {
		g := NewURLGuardWithResolver(func(_ context.Context, _ string) ([]netip.Addr, error) {
			return nil, errors.New("no such host")
		})
		if err := g.Validate(context.Background(), "https://hooks.example.com/x"); err == nil {
			t.Fatal("expected rejection on resolver failure")
		}
	})
}
