package primitives

import (
	"crypto/hmac"
	"crypto/sha512"

	"github.com/eluv-io/errors-go"
	"github.com/eluv-io/log-go"

	"github.com/maddog226uk/magma/primeerr"
)

// STACIE round count bounds, per spec.md §4.6.
const (
	StacieMinRounds = 8
	StacieMaxRounds = 1<<24 - 1
)

const (
	stacieShardLabel      = "STACIE SHARD"
	stacieTokenLabel      = "STACIE TOKEN"
	stacieSaltLen         = 16
	stacieNonceLen        = 16
)

// StacieResult bundles the four outputs of the STACIE schedule (spec.md
// §4.6): the seed used to derive further key material, the account
// recovery shard, the token stored by the server, and the token the
// client sends to authenticate, each a 64 byte SHA-512-sized value.
type StacieResult struct {
	Seed               []byte
	Shard              []byte
	HashedToken        []byte
	VerificationToken  []byte
}

// Stacie runs the STACIE password-hardening schedule described in
// spec.md §4.6. It fails with a Policy-kind error if rounds is outside
// [StacieMinRounds, StacieMaxRounds].
func Stacie(password string, salt, nonce []byte, rounds uint32) (*StacieResult, error) {
	e := primeerr.Template("stacie", primeerr.Policy, errors.K.Invalid)
	if rounds < StacieMinRounds || rounds > StacieMaxRounds {
		return nil, e("reason", "round count out of range", "rounds", rounds)
	}
	if len(salt) != stacieSaltLen {
		return nil, primeerr.E("stacie", primeerr.Input, errors.K.Invalid, "reason", "invalid salt length", "length", len(salt))
	}
	if len(nonce) != stacieNonceLen {
		return nil, primeerr.E("stacie", primeerr.Input, errors.K.Invalid, "reason", "invalid nonce length", "length", len(nonce))
	}

	pw := []byte(password)

	h := sha512.New()
	h.Write(pw)
	h.Write(salt)
	h.Write(nonce)
	base := h.Sum(nil)

	counter := make([]byte, 3)
	for i := uint32(1); i <= rounds; i++ {
		counter[0] = byte(i >> 16)
		counter[1] = byte(i >> 8)
		counter[2] = byte(i)

		h := sha512.New()
		h.Write(base)
		h.Write(pw)
		h.Write(salt)
		h.Write(nonce)
		h.Write(counter)
		base = h.Sum(nil)
	}

	seed := base

	shardMAC := hmac.New(sha512.New, seed)
	shardMAC.Write([]byte(stacieShardLabel))
	shard := shardMAC.Sum(nil)

	tokenMAC := hmac.New(sha512.New, seed)
	tokenMAC.Write([]byte(stacieTokenLabel))
	hashedToken := tokenMAC.Sum(nil)

	verifyMAC := hmac.New(sha512.New, hashedToken)
	verifyMAC.Write(salt)
	verifyMAC.Write(nonce)
	verificationToken := verifyMAC.Sum(nil)

	log.Debug("stacie schedule complete", "rounds", rounds)

	return &StacieResult{
		Seed:              seed,
		Shard:             shard,
		HashedToken:       hashedToken,
		VerificationToken: verificationToken,
	}, nil
}
