package enrich

import (
	"strings"
)

// redactIPParts is how many octets of an IPv4 address survive redaction.
const redactIPParts = 3

// PII redacts the user IP address unless the per-hostname remote config
// allows storing the full address. Only dotted IPv4 addresses are redacted;
// other address forms pass through unchanged.
type PII struct {
	FullIP bool
}

func (PII) Name() string { return "pii" }

func (p PII) Enrich(sp *Scratchpad) error {
	if p.FullIP || !sp.Has("user_ipaddress") {
		return nil
	}
	return sp.SetValue("user_ipaddress", RedactIP(sp.GetString("user_ipaddress")))
}

// RedactIP replaces the last octet of a dotted IPv4 address with "x".
func RedactIP(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ip
	}
	return strings.Join(append(parts[:redactIPParts], "x"), ".")
}
