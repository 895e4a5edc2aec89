package service

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// AuthorityCredentials is the persisted keypair of the fixed authority.
type AuthorityCredentials struct {
	Address    string `json:"address"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// LoadOrGenerateAuthorityKey restores the authority keypair from
// authority_credentials.json under storagePath, generating and saving a
// fresh one on first start. The resulting address is the ledger authority
// for the lifetime of the deployment.
func LoadOrGenerateAuthorityKey(storagePath string) (*ecdsa.PrivateKey, error) {
	credsPath := filepath.Join(storagePath, "authority_credentials.json")

	if data, err := os.ReadFile(credsPath); err == nil {
		var creds AuthorityCredentials
		if err := json.Unmarshal(data, &creds); err != nil {
			return nil, errors.Wrap(err, "failed to parse authority credentials")
		}

		privateKeyHex := strings.TrimPrefix(creds.PrivateKey, "0x")
		privateKey, err := crypto.HexToECDSA(privateKeyHex)
		if err != nil {
			return nil, errors.Wrap(err, "failed to restore authority private key")
		}
		return privateKey, nil
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate authority key")
	}

	creds := AuthorityCredentials{
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey).Hex(),
		PublicKey:  hexutil.Encode(crypto.FromECDSAPub(&privateKey.PublicKey)),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(privateKey)),
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal authority credentials")
	}
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create storage directory")
	}
	if err := os.WriteFile(credsPath, data, 0600); err != nil {
		return nil, errors.Wrap(err, "failed to save authority credentials")
	}

	return privateKey, nil
}

// ParsePrivateKey decodes a hex-encoded secp256k1 private key, with or
// without a 0x prefix.
func ParsePrivateKey(keyStr string) (*ecdsa.PrivateKey, error) {
	keyStr = strings.TrimPrefix(keyStr, "0x")

	keyBytes, err := hex.DecodeString(keyStr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode private key hex string")
	}

	privateKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	return privateKey, nil
}
