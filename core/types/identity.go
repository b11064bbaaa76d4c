package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"matchpool/crypto"
)

// Identity is the 20-byte identifier of a caller, controller, participant or
// administrator. The zero value is the null identity.
type Identity [20]byte

// ModuleAddress identifies a deployed handler module. The zero value is the
// null module.
type ModuleAddress [20]byte

// IsZero reports whether the identity is the null identity.
func (id Identity) IsZero() bool { return id == Identity{} }

func (id Identity) Bytes() []byte { return append([]byte(nil), id[:]...) }

func (id Identity) Hex() string { return "0x" + hex.EncodeToString(id[:]) }

// String renders the identity in bech32 form.
func (id Identity) String() string {
	return crypto.MustNewAddress(crypto.IdentityPrefix, id[:]).String()
}

func (id Identity) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseIdentity accepts either the bech32 form or a 0x-prefixed hex string.
func ParseIdentity(raw string) (Identity, error) {
	b, err := parse20(raw, crypto.IdentityPrefix)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: %w", err)
	}
	return Identity(b), nil
}

func (m ModuleAddress) IsZero() bool { return m == ModuleAddress{} }

func (m ModuleAddress) String() string {
	return crypto.MustNewAddress(crypto.ModulePrefix, m[:]).String()
}

func (m ModuleAddress) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *ModuleAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseModuleAddress(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func ParseModuleAddress(raw string) (ModuleAddress, error) {
	b, err := parse20(raw, crypto.ModulePrefix)
	if err != nil {
		return ModuleAddress{}, fmt.Errorf("module address: %w", err)
	}
	return ModuleAddress(b), nil
}

func parse20(raw string, prefix crypto.AddressPrefix) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out, fmt.Errorf("empty value")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		decoded, err := hex.DecodeString(trimmed[2:])
		if err != nil {
			return out, err
		}
		if len(decoded) != len(out) {
			return out, fmt.Errorf("expected 20 bytes, got %d", len(decoded))
		}
		copy(out[:], decoded)
		return out, nil
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, err
	}
	if addr.Prefix() != prefix {
		return out, fmt.Errorf("unexpected prefix %q", addr.Prefix())
	}
	copy(out[:], addr.Bytes())
	return out, nil
}
