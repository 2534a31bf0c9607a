package core

import (
	"fmt"
	"net"
	"strings"
)

// SourceACL decides which client addresses may call the webhook.
// A nil *SourceACL allows everything.
type SourceACL struct {
	allow []*net.IPNet
	deny  []*net.IPNet
}

// NewSourceACL parses CIDRs or bare IPs. It returns nil, nil when both lists
// are empty.
func NewSourceACL(allowCIDRs, denyCIDRs []string) (*SourceACL, error) {
	allow, err := parseNets(allowCIDRs)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook allow list: %w", err)
	}
	deny, err := parseNets(denyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook deny list: %w", err)
	}

	if len(allow) == 0 && len(deny) == 0 {
		return nil, nil
	}
	return &SourceACL{allow: allow, deny: deny}, nil
}

func parseNets(list []string) ([]*net.IPNet, error) {
	var out []*net.IPNet
	for _, raw := range list {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		ipNet, err := parseCIDROrIP(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, ipNet)
	}
	return out, nil
}

// Allows reports whether ip may pass. Deny entries win over allow entries;
// an empty allow list admits anything not denied.
func (a *SourceACL) Allows(ip net.IP) bool {
	if a == nil {
		return true
	}
	if ip == nil {
		return false
	}

	for _, n := range a.deny {
		if n.Contains(ip) {
			return false
		}
	}
	if len(a.allow) == 0 {
		return true
	}
	for _, n := range a.allow {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// AllowsAddr is Allows for a textual address as returned by gin's ClientIP.
func (a *SourceACL) AllowsAddr(addr string) bool {
	if a == nil {
		return true
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return a.Allows(net.ParseIP(strings.TrimSpace(addr)))
}

func parseCIDROrIP(value string) (*net.IPNet, error) {
	if strings.Contains(value, "/") {
		_, ipNet, err := net.ParseCIDR(value)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q", value)
		}
		return ipNet, nil
	}

	ip := net.ParseIP(value)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP %q", value)
	}
	if ip4 := ip.To4(); ip4 != nil {
		return &net.IPNet{IP: ip4, Mask: net.CIDRMask(32, 32)}, nil
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}, nil
}
