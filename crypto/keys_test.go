package crypto

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, AddressLength)
	addr := MustNewAddress(DropPrefix, raw)

	encoded := addr.String()
	require.True(t, strings.HasPrefix(encoded, "drop1"))

	decoded, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, addr.Raw(), decoded.Raw())
	require.Equal(t, DropPrefix, decoded.Prefix())
}

func TestParseAddressAcceptsHex(t *testing.T) {
	addr, err := ParseAddress("0x" + strings.Repeat("ab", AddressLength))
	require.NoError(t, err)
	require.Equal(t, byte(0xab), addr.Raw()[0])

	_, err = ParseAddress("0x1234")
	require.Error(t, err)

	_, err = ParseAddress("   ")
	require.Error(t, err)
}

func TestSignAndRecover(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	msg := []byte("set-admin")
	sig, err := SignMessage(key, msg)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)

	signer, err := RecoverSigner(msg, sig)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Raw(), signer.Raw())

	other, err := RecoverSigner([]byte("tampered"), sig)
	if err == nil {
		require.NotEqual(t, signer.Raw(), other.Raw())
	}

	_, err = RecoverSigner(msg, sig[:10])
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "admin.keystore")
	require.NoError(t, SaveToKeystore(path, key, "passphrase"))

	loaded, err := LoadFromKeystore(path, "passphrase")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}
