// Package realip resolves the client address of a request behind reverse proxies.
package realip

import (
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies holds the prefixes whose forwarding headers are believed.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// NewTrustedProxies parses CIDRs and bare addresses. Entries that parse as
// neither are skipped; config validation rejects them earlier.
func NewTrustedProxies(entries []string) *TrustedProxies {
	tp := &TrustedProxies{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if p, err := netip.ParsePrefix(e); err == nil {
			tp.prefixes = append(tp.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			tp.prefixes = append(tp.prefixes, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
		}
	}
	return tp
}

// IsTrusted reports whether addr falls inside a trusted prefix.
func (tp *TrustedProxies) IsTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range tp.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the client address. Forwarding headers are only read
// when the peer is trusted. X-Forwarded-For is walked right to left and the
// first untrusted hop wins, so a client cannot spoof its address by
// prepending entries.
func (tp *TrustedProxies) ClientIP(r *http.Request) (netip.Addr, bool) {
	peer, ok := parseRemoteAddr(r.RemoteAddr)
	if !ok || !tp.IsTrusted(peer) {
		return peer, ok
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			a, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			a = a.Unmap()
			if !tp.IsTrusted(a) {
				return a, true
			}
			peer = a
		}
		return peer, true
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if a, err := netip.ParseAddr(xri); err == nil {
			return a.Unmap(), true
		}
	}
	return peer, true
}

// GetClientIPString returns the client address for logs and rate-limit keys,
// or "unknown".
func (tp *TrustedProxies) GetClientIPString(r *http.Request) string {
	a, ok := tp.ClientIP(r)
	if !ok {
		return "unknown"
	}
	return a.String()
}

func parseRemoteAddr(addr string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().Unmap(), true
	}
	if a, err := netip.ParseAddr(addr); err == nil {
		return a.Unmap(), true
	}
	return netip.Addr{}, false
}
