package mail

import (
	"net/mail"
	"strings"
)

// Domain returns the lower-cased domain part of an address, or "" when the
// address has none.
func Domain(addr string) string {
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(addr[at+1:])
}

// splitAddress separates an optional display name from the bare address.
// Unparsable input is returned as the address unchanged.
func splitAddress(addr string) (name, address string) {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return "", strings.TrimSpace(addr)
	}
	return parsed.Name, parsed.Address
}
