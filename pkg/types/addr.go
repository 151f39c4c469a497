package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Addr is a uint64 wrapper representing a virtual memory address.
type Addr uint64

// String renders the address as 0x-prefixed lowercase hexadecimal,
// the format downstream analysis tooling expects.
func (a Addr) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// MarshalJSON encodes the address as a quoted hex string.
func (a Addr) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON parses a quoted 0x-prefixed hex string.
func (a *Addr) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("addr: %w", err)
	}
	return a.parse(s)
}

// ParseAddr parses a 0x-prefixed hex string into an Addr.
func ParseAddr(s string) (Addr, error) {
	var a Addr
	if err := a.parse(s); err != nil {
		return 0, err
	}
	return a, nil
}

func (a *Addr) parse(s string) error {
	hex := strings.TrimPrefix(s, "0x")
	if hex == s {
		return fmt.Errorf("addr: missing 0x prefix in %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return fmt.Errorf("addr: %w", err)
	}
	*a = Addr(v)
	return nil
}
