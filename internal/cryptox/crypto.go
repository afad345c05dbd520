// Package cryptox implements the password-based codec used to seal recipient
// lists at rest and to open them again in search and CLI flows.
//
// The scheme is a wire contract shared by every producer and consumer of
// sealed payloads:
//
//	key        = PBKDF2-HMAC-SHA256(password, salt, 10000 iterations, 32 bytes)
//	ciphertext = AES-256-CBC(key, iv, PKCS#7(json(value)))
//
// Salt and IV are fresh random values for every encryption and travel with the
// ciphertext as hex strings; the ciphertext itself is base64.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Scheme names the parameter set below. Changing any of them makes
	// previously sealed payloads unreadable, so bump the version if you do.
	Scheme = "pbkdf2-sha256/aes-256-cbc/pkcs7/v1"

	Iterations = 10000
	KeySize    = 32
	SaltSize   = 16
	IVSize     = aes.BlockSize
)

// ErrDecryption is returned for every decryption failure: wrong password,
// corrupted ciphertext, bad padding, malformed salt/iv or non-JSON plaintext.
var ErrDecryption = errors.New("decryption failed: wrong password or corrupted data")

// EncryptedPayload is the envelope produced by Encrypt. All three parts are
// required to decrypt.
type EncryptedPayload struct {
	Ciphertext string `json:"ciphertext"`
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
}

// DeriveKey stretches password with salt into a 256-bit AES key.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
}

// Encrypt serializes v to JSON and seals it under password.
//
// Every call draws a new salt and IV, so encrypting the same value twice
// yields different payloads.
func Encrypt(v any, password string) (*EncryptedPayload, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	salt := common.GenerateRandByteArray(SaltSize)
	iv := common.GenerateRandByteArray(IVSize)

	ciphertext, err := Seal(plaintext, password, salt, iv)
	if err != nil {
		return nil, err
	}

	return &EncryptedPayload{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Salt:       hex.EncodeToString(salt),
		IV:         hex.EncodeToString(iv),
	}, nil
}

// Decrypt opens p with password and unmarshals the JSON plaintext into v.
// v is left untouched when an error is returned.
func Decrypt(p *EncryptedPayload, password string, v any) error {
	if p == nil {
		return ErrDecryption
	}

	salt, err := hex.DecodeString(p.Salt)
	if err != nil || len(salt) == 0 {
		return ErrDecryption
	}
	iv, err := hex.DecodeString(p.IV)
	if err != nil || len(iv) != IVSize {
		return ErrDecryption
	}
	ciphertext, err := base64.StdEncoding.DecodeString(p.Ciphertext)
	if err != nil {
		return ErrDecryption
	}

	plaintext, err := Open(ciphertext, password, salt, iv)
	if err != nil {
		return err
	}

	// A wrong key can still produce valid padding by chance; the JSON check
	// catches that case so garbage never reaches the caller.
	if !json.Valid(plaintext) {
		return ErrDecryption
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

// Seal encrypts raw bytes with a key derived from password and salt.
func Seal(plaintext []byte, password string, salt, iv []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv))
	}

	key := DeriveKey(password, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// Open reverses Seal. Any failure is reported as ErrDecryption.
func Open(ciphertext []byte, password string, salt, iv []byte) ([]byte, error) {
	if len(iv) != IVSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrDecryption
	}

	key := DeriveKey(password, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecryption
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)

	plaintext, err := unpad(out, aes.BlockSize)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrDecryption
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, ErrDecryption
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrDecryption
		}
	}
	return b[:len(b)-n], nil
}
