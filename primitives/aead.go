package primitives

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/eluv-io/errors-go"

	"github.com/maddog226uk/magma/primeerr"
)

// AEADKeyLen, AEADNonceLen and AEADTagLen are the fixed sizes spec.md §4.1
// mandates for the AES-256-GCM primitive.
const (
	AEADKeyLen   = 32
	AEADNonceLen = 16
	AEADTagLen   = 16
)

// AEADSeal encrypts plaintext with AES-256-GCM, returning ciphertext||tag.
func AEADSeal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key, nonce)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

// AEADOpen is the inverse of AEADSeal. It fails with a Crypto-kind error
// when the tag check fails.
func AEADOpen(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key, nonce)
	if err != nil {
		return nil, err
	}
	pt, openErr := gcm.Open(nil, nonce, ciphertext, aad)
	if openErr != nil {
		return nil, primeerr.E("aead open", primeerr.Crypto, errors.K.Invalid, "reason", "tag verification failed")
	}
	return pt, nil
}

func newGCM(key, nonce []byte) (cipher.AEAD, error) {
	if len(key) != AEADKeyLen {
		return nil, primeerr.E("aead init", primeerr.Input, errors.K.Invalid, "reason", "invalid key length", "length", len(key))
	}
	if len(nonce) != AEADNonceLen {
		return nil, primeerr.E("aead init", primeerr.Input, errors.K.Invalid, "reason", "invalid nonce length", "length", len(nonce))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, primeerr.E("aead init", primeerr.Crypto, errors.K.Internal, err)
	}
	// default GCM tag size is already AEADTagLen (16); only the nonce size
	// needs widening to match spec.md §4.1.
	gcm, err := cipher.NewGCMWithNonceSize(block, AEADNonceLen)
	if err != nil {
		return nil, primeerr.E("aead init", primeerr.Crypto, errors.K.Internal, err)
	}
	return gcm, nil
}
