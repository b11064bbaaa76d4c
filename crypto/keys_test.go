package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, 20)
	addr, err := NewAddress(IdentityPrefix, raw)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr.String(), "mp1"))

	decoded, err := DecodeAddress(addr.String())
	require.NoError(t, err)
	require.Equal(t, IdentityPrefix, decoded.Prefix())
	require.Equal(t, raw, decoded.Bytes())
}

func TestNewAddressRejectsWrongLength(t *testing.T) {
	_, err := NewAddress(IdentityPrefix, []byte{1, 2, 3})
	require.Error(t, err)
	require.Panics(t, func() { MustNewAddress(IdentityPrefix, nil) })
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	_, err := DecodeAddress("not-an-address")
	require.Error(t, err)
}

func TestModuleAddressIsVersioned(t *testing.T) {
	a := ModuleAddress("escrow", "v1")
	require.Equal(t, a, ModuleAddress("escrow", "v1"))
	require.NotEqual(t, a, ModuleAddress("escrow", "v2"))
	require.NotEqual(t, a, ModuleAddress("admin", "v1"))
}

func TestKeyRestore(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	restored, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), restored.PubKey().Address().String())
}
