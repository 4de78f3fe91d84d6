package primitives

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/eluv-io/errors-go"

	"github.com/maddog226uk/magma/keys"
	"github.com/maddog226uk/magma/primeerr"
)

// Secp256k1SharedLen is the length of the raw ECDH x-coordinate.
const Secp256k1SharedLen = 32

// Secp256k1Generate creates a fresh secp256k1 keypair. The public half is
// the 33 byte compressed point.
func Secp256k1Generate() (pub keys.PublicKey, priv *keys.PrivateKey, err error) {
	e := primeerr.Template("secp256k1 generate", primeerr.Crypto, errors.K.Internal)
	sk, genErr := secp256k1.GeneratePrivateKey()
	if genErr != nil {
		return nil, nil, e(genErr)
	}
	compressed := sk.PubKey().SerializeCompressed()
	secret := sk.Serialize()
	return keys.New(keys.Secp256k1Public, compressed), keys.NewPrivate(keys.Secp256k1Private, secret), nil
}

// Secp256k1ComputeShared performs raw ECDH: it multiplies pub by priv's
// scalar and returns the big-endian x-coordinate of the resulting point.
// This is the ECDH primitive spec.md §4.1 and §4.4's KEK derivation are
// built on; the caller is responsible for passing the result through HKDF
// before using it as a key.
func Secp256k1ComputeShared(priv *keys.PrivateKey, pub keys.PublicKey) ([]byte, error) {
	e := primeerr.Template("secp256k1 ecdh", primeerr.Crypto, errors.K.Invalid)
	if !priv.IsValid() || priv.Code() != keys.Secp256k1Private {
		return nil, e("reason", "invalid private key")
	}
	if !pub.IsValid() || pub.Code() != keys.Secp256k1Public {
		return nil, e("reason", "invalid public key")
	}

	sk := secp256k1.PrivKeyFromBytes(priv.Bytes())
	defer sk.Zero()

	pk, parseErr := secp256k1.ParsePubKey(pub.Bytes())
	if parseErr != nil {
		return nil, e(parseErr, "reason", "invalid public key encoding")
	}

	var point, result secp256k1.JacobianPoint
	pk.AsJacobian(&point)
	secp256k1.ScalarMultNonConst(&sk.Key, &point, &result)
	result.ToAffine()

	shared := result.X.Bytes() // *[32]byte
	return shared[:], nil
}

// Secp256k1ParsePublic validates that raw is a well-formed compressed
// secp256k1 public key and returns it wrapped.
func Secp256k1ParsePublic(raw []byte) (keys.PublicKey, error) {
	if _, err := secp256k1.ParsePubKey(raw); err != nil {
		return nil, primeerr.E("secp256k1 parse public key", primeerr.Format, errors.K.Invalid, err)
	}
	return keys.New(keys.Secp256k1Public, raw), nil
}
