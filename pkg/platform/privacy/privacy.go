// Package privacy provides helpers for keeping personal data out of logs.
package privacy

import (
	"net"
	"strings"
)

// AnonymizeIP coarsens an IP address before it is logged or stored in
// non-audit telemetry. IPv4 addresses lose the last octet, IPv6 addresses
// keep only the /48 prefix. Unparseable input is redacted entirely.
func AnonymizeIP(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "redacted"
	}
	if v4 := parsed.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], v4[2], 0).String() + "/24"
	}
	masked := parsed.Mask(net.CIDRMask(48, 128))
	return masked.String() + "/48"
}

// RedactFields replaces the values of known-sensitive keys in a shallow map.
// Used before search criteria or request echoes are written to the audit
// trail.
func RedactFields(in map[string]any, sensitive ...string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	for _, field := range sensitive {
		if _, ok := out[field]; ok {
			out[field] = "***REDACTED***"
		}
	}
	return out
}
