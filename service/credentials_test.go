package service

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrGenerateAuthorityKey(t *testing.T) {
	dir := t.TempDir()

	key, err := LoadOrGenerateAuthorityKey(dir)
	require.NoError(t, err)

	// A second load restores the same keypair instead of minting a new one.
	reloaded, err := LoadOrGenerateAuthorityKey(dir)
	require.NoError(t, err)
	assert.Equal(t,
		crypto.PubkeyToAddress(key.PublicKey),
		crypto.PubkeyToAddress(reloaded.PublicKey))
}

func TestParsePrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	encoded := hexutil.Encode(crypto.FromECDSA(key))

	parsed, err := ParsePrivateKey(encoded)
	require.NoError(t, err)
	assert.Equal(t,
		crypto.PubkeyToAddress(key.PublicKey),
		crypto.PubkeyToAddress(parsed.PublicKey))

	// The 0x prefix is optional.
	parsed, err = ParsePrivateKey(encoded[2:])
	require.NoError(t, err)
	assert.Equal(t,
		crypto.PubkeyToAddress(key.PublicKey),
		crypto.PubkeyToAddress(parsed.PublicKey))

	_, err = ParsePrivateKey("not-hex")
	assert.Error(t, err)
}
