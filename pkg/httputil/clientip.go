package httputil

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/edugatenow/edugate/pkg/contextkeys"
)

// TrustedProxies is the set of networks allowed to report the client address
// through X-Forwarded-For or X-Real-IP. The zero value trusts nobody.
type TrustedProxies struct {
	nets []*net.IPNet
}

// ParseTrustedProxies accepts CIDRs and bare IPs
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	p := &TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			entry = fmt.Sprintf("%s/%d", ip.String(), bits)
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		p.nets = append(p.nets, network)
	}
	return p, nil
}

// Trusts reports whether ip belongs to a trusted proxy network
func (p *TrustedProxies) Trusts(ip net.IP) bool {
	if p == nil || ip == nil {
		return false
	}
	for _, n := range p.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolve returns the client address for r. Forwarding headers are used only
// when the direct peer is trusted; X-Forwarded-For is walked from the right
// and the first hop outside the trusted networks wins.
func (p *TrustedProxies) Resolve(r *http.Request) string {
	peer := remoteHost(r)
	if !p.Trusts(net.ParseIP(peer)) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		client := ""
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				break
			}
			client = ip.String()
			if !p.Trusts(ip) {
				break
			}
		}
		if client != "" {
			return client
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return peer
}

// ClientIPMiddleware resolves the client address once per request so that
// rate limiting, CSRF fingerprints and audit entries agree on it
func ClientIPMiddleware(proxies *TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := contextkeys.WithClientIP(r.Context(), proxies.Resolve(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
