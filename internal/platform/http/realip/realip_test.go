package realip

import (
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestTrustedProxies_IsTrusted(t *testing.T) {
	tp := NewTrustedProxies([]string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "192.168.1.1", "not-an-ip"})

	tests := []struct {
		ip      string
		trusted bool
	}{
		{"127.0.0.1", true},
		{"10.255.255.255", true},
		{"192.168.1.1", true},
		{"192.168.1.2", false},
		{"8.8.8.8", false},
		{"::1", true},
		{"::2", false},
		{"::ffff:127.0.0.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := tp.IsTrusted(netip.MustParseAddr(tt.ip)); got != tt.trusted {
				t.Errorf("IsTrusted(%s) = %v, want %v", tt.ip, got, tt.trusted)
			}
		})
	}
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	tp := NewTrustedProxies([]string{"127.0.0.0/8", "10.0.0.0/8", "::1/128"})

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct untrusted ignores headers", "192.168.1.100:12345", "8.8.8.8", "", "192.168.1.100"},
		{"trusted peer uses forwarded hop", "127.0.0.1:12345", "8.8.8.8", "", "8.8.8.8"},
		{"rightmost untrusted hop wins", "127.0.0.1:12345", "1.1.1.1, 8.8.8.8, 10.0.0.1", "", "8.8.8.8"},
		{"all hops trusted", "127.0.0.1:12345", "10.0.0.2, 10.0.0.1", "", "10.0.0.2"},
		{"garbage hop stops walk", "127.0.0.1:12345", "8.8.8.8, junk", "", "127.0.0.1"},
		{"x-real-ip fallback", "127.0.0.1:12345", "", "1.2.3.4", "1.2.3.4"},
		{"ipv6 peer", "[::1]:12345", "2001:db8::1", "", "2001:db8::1"},
		{"bare address", "192.168.1.1", "", "", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := tp.GetClientIPString(req); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTrustedProxies_Unknown(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "pipe"
	if got := NewTrustedProxies(nil).GetClientIPString(req); got != "unknown" {
		t.Errorf("expected unknown, got %s", got)
	}
}
