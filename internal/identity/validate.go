package identity

import (
	"fmt"
	"math/big"
	"strings"
)

// IsValidIMSI reports whether s looks like an IMSI: 14 or 15 decimal digits.
func IsValidIMSI(s string) bool {
	if len(s) != 14 && len(s) != 15 {
		return false
	}
	return isDecimal(s)
}

// IsValidTemporaryID reports whether s is a plausible temporary identifier token.
// The dissector may print TMSIs in either radix, so any 0x-prefixed hex, bare hex or
// decimal string is accepted.
func IsValidTemporaryID(s string) bool {
	if s == "" {
		return false
	}
	v := strings.ToLower(s)

	if rest, ok := strings.CutPrefix(v, "0x"); ok {
		return rest != "" && isHex(rest)
	}

	return isHex(v) || isDecimal(v)
}

// DescribeValue renders a raw identifier token in both radixes when the radix can be guessed:
// decimal tokens also show hex, 0x tokens and bare hex tokens of at least six digits also show
// decimal. Anything else is returned unchanged.
func DescribeValue(s string) string {
	switch {
	case s != "" && isDecimal(s):
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return s
		}
		return fmt.Sprintf("Decimal: %s\nHex: 0x%s", s, n.Text(16))
	case strings.HasPrefix(s, "0x"):
		n, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return s
		}
		return fmt.Sprintf("Hex: %s\nDecimal: %s", s, n.Text(10))
	case len(s) >= 6 && isHex(strings.ToLower(s)):
		n, ok := new(big.Int).SetString(s, 16)
		if !ok {
			return s
		}
		return fmt.Sprintf("Hex: %s\nDecimal: %s", s, n.Text(10))
	default:
		return s
	}
}

func isDecimal(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isHex expects lowercase input.
func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
