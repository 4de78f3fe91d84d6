// Package chunk implements the PRIME message chunk: the type/length
// framed unit every message is built from, its four fixed-order KEK
// slots (spec.md §4.4), and the AES-256-GCM payload they protect.
// There is no direct teacher analog; the TLV/framing idioms are
// grounded on codec, and the per-recipient key wrapping is grounded on
// the ECDH+HKDF primitives' doc comments (spec.md §4.1, §4.4).
package chunk

import (
	"bytes"
	"crypto/sha512"

	"github.com/eluv-io/errors-go"

	"github.com/maddog226uk/magma/encscheme"
	"github.com/maddog226uk/magma/keys"
	"github.com/maddog226uk/magma/primeerr"
	"github.com/maddog226uk/magma/primitives"
)

// Slot field widths (spec.md §4.4): 33 byte masked ephemeral public
// key, 32 byte wrapped chunk key, 3 byte role tag selector.
const (
	EphemeralKeyLen = 33
	WrappedKeyLen   = 32
	TagSelectorLen  = 3
	SlotLen         = EphemeralKeyLen + WrappedKeyLen + TagSelectorLen
)

// Slot is one of the four fixed-position KEK slots carried by every
// encrypted chunk.
type Slot struct {
	EphemeralPub [EphemeralKeyLen]byte
	WrappedKey   [WrappedKeyLen]byte
	Tag          [TagSelectorLen]byte
}

// Encode serializes a slot to its fixed 68 byte wire form.
func (s Slot) Encode() []byte {
	buf := make([]byte, 0, SlotLen)
	buf = append(buf, s.EphemeralPub[:]...)
	buf = append(buf, s.WrappedKey[:]...)
	buf = append(buf, s.Tag[:]...)
	return buf
}

// DecodeSlot parses a slot from the front of data, returning the slot
// and the remaining unread bytes.
func DecodeSlot(data []byte) (Slot, []byte, error) {
	if len(data) < SlotLen {
		return Slot{}, nil, primeerr.E("decode slot", primeerr.Format, errors.K.Invalid,
			"reason", "buffer shorter than slot", "available", len(data))
	}
	var s Slot
	copy(s.EphemeralPub[:], data[0:33])
	copy(s.WrappedKey[:], data[33:65])
	copy(s.Tag[:], data[65:68])
	return s, data[SlotLen:], nil
}

// kek derives the key-encryption-key for role given the ECDH shared
// secret and the ephemeral public key the slot embeds (spec.md §4.4):
// HKDF(shared, salt=SHA-512(ephemeral_pub), info="PRIME KEK "||role_tag, 32).
func kek(role encscheme.Role, shared, ephemeralPubRaw []byte) ([]byte, error) {
	salt := sha512.Sum512(ephemeralPubRaw)
	return primitives.HKDF(shared, salt[:], role.KEKInfo(), primitives.AEADKeyLen)
}

// slotMaskInfoLabel is the HKDF info label used to derive the mask a
// real slot's ephemeral public key is XORed against before storage
// (spec.md §4.4, §8 Slot-indistinguishability Open Question): the mask
// is salted with the chunk's own nonce so the masked value differs
// chunk to chunk even though the underlying ephemeral key is the same
// for every chunk of a message.
const slotMaskInfoLabel = "PRIME SLOT MASK"

func slotMask(ephemeralPubRaw, nonce []byte, role encscheme.Role) ([]byte, error) {
	info := append([]byte(slotMaskInfoLabel), byte(role.Index()))
	return primitives.HKDF(ephemeralPubRaw, nonce, info, EphemeralKeyLen)
}

// placeholderInfoLabel is the HKDF info label used to derive a
// placeholder slot's content when no recipient occupies that role
// (spec.md §9 Open Question: slot placeholder derivation - any
// deterministic function of public, message-visible inputs satisfies
// the unlinkability requirement; the construction below is one such
// choice).
const placeholderInfoLabel = "PRIME SLOT PLACEHOLDER"

// buildPlaceholderSlot fills a slot deterministically from the
// chunk's ephemeral public key and the slot's own index, so a slot
// with no real recipient is indistinguishable in size and shape from
// one that wraps a real key.
func buildPlaceholderSlot(ephemeralPubRaw []byte, role encscheme.Role) (Slot, error) {
	filler, err := primitives.HKDF(ephemeralPubRaw, nil, append([]byte(placeholderInfoLabel), byte(role.Index())), SlotLen)
	if err != nil {
		return Slot{}, err
	}
	var s Slot
	copy(s.EphemeralPub[:], filler[0:33])
	copy(s.WrappedKey[:], filler[33:65])
	copy(s.Tag[:], filler[65:68])
	return s, nil
}

// buildSlot wraps chunkKey for role's recipient, using the chunk's
// shared ephemeral keypair. The ephemeral public key is stored masked
// (spec.md §4.4, §8) rather than in the clear, so a real slot is not
// trivially distinguishable from a placeholder by inspection alone.
func buildSlot(role encscheme.Role, chunkKey []byte, ephemeralPriv *keys.PrivateKey, ephemeralPubRaw []byte, nonce []byte, recipientPub keys.PublicKey) (Slot, error) {
	shared, err := primitives.Secp256k1ComputeShared(ephemeralPriv, recipientPub)
	if err != nil {
		return Slot{}, err
	}
	k, err := kek(role, shared, ephemeralPubRaw)
	if err != nil {
		return Slot{}, err
	}
	mask, err := slotMask(ephemeralPubRaw, nonce, role)
	if err != nil {
		return Slot{}, err
	}
	var s Slot
	for i := 0; i < EphemeralKeyLen; i++ {
		s.EphemeralPub[i] = ephemeralPubRaw[i] ^ mask[i]
	}
	for i := 0; i < WrappedKeyLen; i++ {
		s.WrappedKey[i] = chunkKey[i] ^ k[i]
	}
	s.Tag = role.Tag()
	return s, nil
}

// openSlot recovers the chunk key a slot wraps for role, given the
// message's true ephemeral public key (recovered from the cleartext
// ephemeral chunk), the chunk's nonce, and the recipient's own private
// key. It first unmasks the slot's embedded ephemeral key and checks it
// against ephemeralPubRaw - a mismatch means this slot was never built
// for this message's ephemeral keypair. Beyond that, a slot belonging
// to a different recipient or role simply yields the wrong chunk key,
// which the chunk's own AEAD tag then rejects.
func openSlot(role encscheme.Role, s Slot, ephemeralPubRaw []byte, nonce []byte, recipientPriv *keys.PrivateKey) ([]byte, error) {
	mask, err := slotMask(ephemeralPubRaw, nonce, role)
	if err != nil {
		return nil, err
	}
	unmasked := make([]byte, EphemeralKeyLen)
	for i := 0; i < EphemeralKeyLen; i++ {
		unmasked[i] = s.EphemeralPub[i] ^ mask[i]
	}
	if !bytes.Equal(unmasked, ephemeralPubRaw) {
		return nil, primeerr.E("open slot", primeerr.Crypto, errors.K.Invalid,
			"reason", "slot ephemeral key does not match message envelope")
	}

	ephemeralPub, err := primitives.Secp256k1ParsePublic(ephemeralPubRaw)
	if err != nil {
		return nil, err
	}
	shared, err := primitives.Secp256k1ComputeShared(recipientPriv, ephemeralPub)
	if err != nil {
		return nil, err
	}
	k, err := kek(role, shared, ephemeralPubRaw)
	if err != nil {
		return nil, err
	}
	chunkKey := make([]byte, WrappedKeyLen)
	for i := 0; i < WrappedKeyLen; i++ {
		chunkKey[i] = s.WrappedKey[i] ^ k[i]
	}
	return chunkKey, nil
}

func slotMatchesRole(s Slot, role encscheme.Role) bool {
	return bytes.Equal(s.Tag[:], role.Tag()[:])
}
