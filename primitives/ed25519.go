// Package primitives is the uniform adapter over the cryptographic
// primitives PRIME invokes: Ed25519 signing, secp256k1 ECDH, AES-256-GCM,
// SHA-512/HMAC-SHA-512/HKDF, and the STACIE password schedule (spec.md
// §4.1). Every primitive returns a primeerr-tagged error on underlying
// library failure or invalid input size; none silently truncate.
package primitives

import (
	stded25519 "crypto/ed25519"
	"crypto/rand"

	"github.com/eluv-io/errors-go"

	"github.com/maddog226uk/magma/keys"
	"github.com/maddog226uk/magma/primeerr"
)

// Ed25519SignatureLen is the fixed size of an Ed25519 signature.
const Ed25519SignatureLen = stded25519.SignatureSize

// Ed25519Generate creates a fresh Ed25519 keypair.
func Ed25519Generate() (pub keys.PublicKey, priv *keys.PrivateKey, err error) {
	e := primeerr.Template("ed25519 generate", primeerr.Crypto, errors.K.Internal)
	pk, sk, genErr := stded25519.GenerateKey(rand.Reader)
	if genErr != nil {
		return nil, nil, e(genErr)
	}
	// stded25519 private keys are the 32 byte seed followed by the 32 byte
	// public key; PRIME only needs the seed, the public key travels
	// separately in the signet.
	return keys.New(keys.Ed25519Public, pk), keys.NewPrivate(keys.Ed25519Private, append([]byte{}, sk.Seed()...)), nil
}

// Ed25519Sign signs msg with priv, returning a 64 byte signature.
func Ed25519Sign(priv *keys.PrivateKey, msg []byte) ([]byte, error) {
	e := primeerr.Template("ed25519 sign", primeerr.Crypto, errors.K.Invalid)
	if !priv.IsValid() || priv.Code() != keys.Ed25519Private {
		return nil, e("reason", "invalid signing key")
	}
	sk := stded25519.NewKeyFromSeed(priv.Bytes())
	return stded25519.Sign(sk, msg), nil
}

// Ed25519Verify reports whether sig is a valid Ed25519 signature over msg
// under pub.
func Ed25519Verify(pub keys.PublicKey, msg, sig []byte) bool {
	if !pub.IsValid() || pub.Code() != keys.Ed25519Public {
		return false
	}
	if len(sig) != Ed25519SignatureLen {
		return false
	}
	return stded25519.Verify(stded25519.PublicKey(pub.Bytes()), msg, sig)
}
