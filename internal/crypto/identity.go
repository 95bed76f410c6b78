// Package crypto implements C1: Ed25519 signature verification and
// deterministic pubkey-to-principal derivation, grounded on the teacher's
// Neo-address derivation idiom and generalized to this spec's principal
// concept (mr-tron/base58 + a version byte + checksum).
package crypto

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"errors"

	"github.com/mr-tron/base58"
)

const principalVersion byte = 0x2a

var (
	ErrInvalidPublicKeyLength = errors.New("crypto: public key must be 32 bytes")
	ErrInvalidSignatureLength = errors.New("crypto: signature must be 64 bytes")
)

// Verify checks sig over payload under pubkey in constant time, per §4.1.
// Callers must pass the exact submitted bytes — never a re-serialized copy.
func Verify(pubkey, payload, sig []byte) bool {
	if len(pubkey) != ed25519.PublicKeySize {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubkey), payload, sig)
}

// DerivePrincipal deterministically encodes a 32-byte verifying key into a
// stable, human-displayable principal string: version byte + pubkey +
// 4-byte double-SHA256 checksum, base58-encoded.
func DerivePrincipal(pubkey []byte) (string, error) {
	if len(pubkey) != ed25519.PublicKeySize {
		return "", ErrInvalidPublicKeyLength
	}
	payload := make([]byte, 0, 1+len(pubkey))
	payload = append(payload, principalVersion)
	payload = append(payload, pubkey...)

	checksum := doubleSHA256(payload)
	full := append(payload, checksum[:4]...)
	return base58.Encode(full), nil
}

func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

// GenerateKeypair derives an Ed25519 keypair deterministically from a
// mnemonic phrase, for the `coordinatorctl keygen` CLI. The mnemonic is
// expanded into a 64-byte seed via HMAC-SHA512 (no bip39 wordlist
// dependency is present anywhere in the corpus, so the expansion itself
// stays on the standard library; see DESIGN.md).
func GenerateKeypair(mnemonic string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if mnemonic == "" {
		return nil, nil, errors.New("crypto: mnemonic must not be empty")
	}
	mac := hmac.New(sha512.New, []byte("aethermarket-coordinator-seed"))
	mac.Write([]byte(mnemonic))
	seed := mac.Sum(nil)[:ed25519.SeedSize]

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return pub, priv, nil
}

// Sign is a test/CLI convenience; production clients sign independently.
func Sign(priv ed25519.PrivateKey, payload []byte) []byte {
	return ed25519.Sign(priv, payload)
}
