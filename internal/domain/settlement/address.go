package settlement

import (
	"regexp"
	"strings"
)

// Address is a 20-byte account or contract address in 0x-prefixed hex form.
// Stored lowercased so string comparison is stable.
type Address string

var hexAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ParseAddress validates and normalizes a hex address
func ParseAddress(s string) (Address, bool) {
	if !hexAddressPattern.MatchString(s) {
		return "", false
	}
	return Address(strings.ToLower(s)), true
}

// IsValid returns true if the address is well-formed
func (a Address) IsValid() bool {
	return hexAddressPattern.MatchString(string(a))
}

// IsZero returns true if the address is empty or the zero address
func (a Address) IsZero() bool {
	return a == "" || a == "0x0000000000000000000000000000000000000000"
}

// String returns the string representation of the address
func (a Address) String() string {
	return string(a)
}
