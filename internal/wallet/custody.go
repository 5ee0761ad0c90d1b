// Package wallet generates custodial signing keys and seals their private
// halves under a user-chosen secret. The service never stores a plaintext
// key: only the envelope produced by Encrypt is persisted, and Decrypt is
// the sole way back.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/scrypt"
)

const (
	saltLen = 16
	keyLen  = 32
)

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Params configure the scrypt key derivation. Zero values fall back to
// the interactive-login defaults.
type Params struct {
	N int
	R int
	P int
}

func (p Params) withDefaults() Params {
	if p.N == 0 {
		p.N = 32768
	}
	if p.R == 0 {
		p.R = 8
	}
	if p.P == 0 {
		p.P = 1
	}
	return p
}

// Keypair is a freshly generated secp256k1 identity.
type Keypair struct {
	Address    string
	PrivateKey string
}

// Generate creates a new secp256k1 keypair. The address is checksummed
// and the private key is 0x-prefixed hex.
func Generate() (*Keypair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	return &Keypair{
		Address:    addr.Hex(),
		PrivateKey: "0x" + hex.EncodeToString(crypto.FromECDSA(key)),
	}, nil
}

// ValidAddress reports whether s looks like a 20-byte hex address.
func ValidAddress(s string) bool {
	return addressRe.MatchString(s)
}

// Encrypt seals plaintext under secret with scrypt-derived AES-256-GCM.
// The envelope is hex(salt || nonce || ciphertext); salt and nonce are
// fresh per call, so encrypting the same key twice gives different
// envelopes.
func Encrypt(plaintext, secret string, params Params) (string, error) {
	params = params.withDefaults()

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	derived, err := scrypt.Key([]byte(secret), salt, params.N, params.R, params.P, keyLen)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	envelope := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	envelope = append(envelope, salt...)
	envelope = append(envelope, nonce...)
	envelope = append(envelope, sealed...)
	return hex.EncodeToString(envelope), nil
}

// Decrypt opens an envelope produced by Encrypt. A wrong secret fails
// GCM authentication and returns an error without revealing anything.
func Decrypt(envelope, secret string, params Params) (string, error) {
	params = params.withDefaults()

	raw, err := hex.DecodeString(envelope)
	if err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if len(raw) < saltLen {
		return "", fmt.Errorf("envelope too short")
	}
	salt, rest := raw[:saltLen], raw[saltLen:]

	derived, err := scrypt.Key([]byte(secret), salt, params.N, params.R, params.P, keyLen)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}
	if len(rest) < gcm.NonceSize() {
		return "", fmt.Errorf("envelope too short")
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("open envelope: %w", err)
	}
	return string(plain), nil
}
