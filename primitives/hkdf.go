package primitives

import (
	"crypto/sha512"
	"io"

	"github.com/eluv-io/errors-go"
	"golang.org/x/crypto/hkdf"

	"github.com/maddog226uk/magma/primeerr"
)

// HKDF derives length bytes from ikm using HKDF-SHA-512, per spec.md §4.1.
func HKDF(ikm, salt, info []byte, length int) ([]byte, error) {
	if length <= 0 {
		return nil, primeerr.E("hkdf", primeerr.Input, errors.K.Invalid, "reason", "invalid length", "length", length)
	}
	r := hkdf.New(sha512.New, ikm, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, primeerr.E("hkdf", primeerr.Crypto, errors.K.Internal, err)
	}
	return out, nil
}
