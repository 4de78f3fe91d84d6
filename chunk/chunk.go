package chunk

import (
	"crypto/rand"
	"io"

	"github.com/eluv-io/errors-go"

	"github.com/maddog226uk/magma/codec"
	"github.com/maddog226uk/magma/encscheme"
	"github.com/maddog226uk/magma/keys"
	"github.com/maddog226uk/magma/primeerr"
	"github.com/maddog226uk/magma/primitives"
	"github.com/maddog226uk/magma/util/byteutil"
)

// Chunk type tags (spec.md §4.4).
const (
	TypeTracing       byte = 0
	TypeEphemeral     byte = 1
	TypeOrigin        byte = 2
	TypeDestination   byte = 3
	TypeCommonHeaders byte = 32
	TypeOtherHeaders  byte = 33
	TypeBody          byte = 48
	TypeSignatureTree byte = 224
	TypeUserSignature byte = 225
	TypeOriginOrgSig  byte = 254
	TypeDestOrgSig    byte = 255
)

// Inner payload flags (spec.md §4.4).
const (
	// FlagSpanning marks a non-terminal fragment of a chunk too large to
	// encode in one piece; the next chunk of the same type continues it.
	FlagSpanning byte = 0x80
	// FlagAltPadding raises the padding floor from 256 to 4096 bytes.
	FlagAltPadding byte = 0x01
)

// innerHeaderLen is the fixed portion of the inner payload ahead of the
// data itself: a 64 byte Ed25519 signature, a 3 byte length, a 1 byte
// flags field and a 1 byte pad-length hint.
const innerHeaderLen = primitives.Ed25519SignatureLen + 3 + 1 + 1

// innerPaddingFloor is the minimum total size of an inner payload once
// signed, framed and padded (spec.md §4.4); FlagAltPadding raises this
// to innerPaddingFloorAlt.
const (
	innerPaddingFloor    = 256
	innerPaddingFloorAlt = 4096
)

// Chunk is one type/length framed unit of a message: four fixed-order
// KEK slots, an AEAD nonce and the ciphertext they protect, unless
// Cleartext is set, in which case Ciphertext carries the inner payload
// unsealed (spec.md §4.4 - the type-1 ephemeral chunk is broadcast in
// the clear so a decoder can recover the message's ephemeral public
// key before it has unwrapped any slot).
type Chunk struct {
	Type       byte
	Cleartext  bool
	Slots      [4]Slot
	Nonce      []byte
	Ciphertext []byte
}

// Envelope is the single ephemeral secp256k1 keypair shared by every
// chunk of one message (spec.md §4.5). Generating one keypair per
// message rather than per chunk lets every chunk's slots wrap the same
// four role KEKs, and lets a decoder recover the ephemeral public key
// once, from the cleartext ephemeral chunk, instead of having to
// unmask it out of a slot before it can even attempt decryption.
type Envelope struct {
	PublicRaw []byte
	Private   *keys.PrivateKey
}

// NewEnvelope generates a fresh per-message ephemeral keypair.
func NewEnvelope() (*Envelope, error) {
	pub, priv, err := primitives.Secp256k1Generate()
	if err != nil {
		return nil, err
	}
	return &Envelope{PublicRaw: pub.Bytes(), Private: priv}, nil
}

func encodeLen3(n int) [3]byte {
	return [3]byte{byte(n >> 16), byte(n >> 8), byte(n)}
}

func decodeLen3(b []byte) int {
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
}

func innerSignedPreimage(chunkType byte, length [3]byte, flags byte, data []byte) []byte {
	buf := make([]byte, 0, 1+3+1+len(data))
	buf = append(buf, chunkType)
	buf = append(buf, length[:]...)
	buf = append(buf, flags)
	buf = append(buf, data...)
	return buf
}

// paddingLen returns how many trailing bytes are needed so that
// innerHeaderLen+len(data)+padding is both a multiple of 16 and at
// least the padding floor for flags (spec.md §4.4).
func paddingLen(dataLen int, flags byte) int {
	floor := innerPaddingFloor
	if flags&FlagAltPadding != 0 {
		floor = innerPaddingFloorAlt
	}
	size := innerHeaderLen + dataLen
	if size < floor {
		size = floor
	}
	if rem := size % 16; rem != 0 {
		size += 16 - rem
	}
	return size - (innerHeaderLen + dataLen)
}

// buildInnerPayload assembles the spec.md §4.4 inner payload that sits
// inside the AEAD seal (or, for the cleartext ephemeral chunk, in place
// of one): a 64 byte signature by the author's signing key over
// type||length||flags||data, the 3 byte length and 1 byte flags it
// covers, a 1 byte padding hint, the data itself, and random trailing
// bytes out to the padding floor. The pad-length byte is best effort
// only - it truncates silently past 255, since the authoritative
// trailing length a decoder needs is always the remainder of the
// payload after the declared data length, never the pad byte itself.
func buildInnerPayload(chunkType byte, authorSigning *keys.PrivateKey, data []byte, flags byte) ([]byte, error) {
	length := encodeLen3(len(data))
	sigBytes, err := primitives.Ed25519Sign(authorSigning, innerSignedPreimage(chunkType, length, flags, data))
	if err != nil {
		return nil, err
	}
	padLen := paddingLen(len(data), flags)

	payload := make([]byte, 0, innerHeaderLen+len(data)+padLen)
	payload = append(payload, sigBytes...)
	payload = append(payload, length[:]...)
	payload = append(payload, flags)
	payload = append(payload, byte(padLen&0xFF))
	payload = append(payload, data...)
	payload = append(payload, byteutil.RandomBytes(padLen)...)
	return payload, nil
}

// parseInnerPayload recovers the data and flags buildInnerPayload
// framed, verifying the embedded signature under authorPub.
func parseInnerPayload(chunkType byte, authorPub keys.PublicKey, payload []byte) (data []byte, flags byte, err error) {
	if len(payload) < innerHeaderLen {
		return nil, 0, primeerr.E("parse inner payload", primeerr.Format, errors.K.Invalid,
			"reason", "payload shorter than inner header")
	}
	sigBytes := payload[0:primitives.Ed25519SignatureLen]
	length := payload[primitives.Ed25519SignatureLen : primitives.Ed25519SignatureLen+3]
	flags = payload[primitives.Ed25519SignatureLen+3]
	dataLen := decodeLen3(length)
	if innerHeaderLen+dataLen > len(payload) {
		return nil, 0, primeerr.E("parse inner payload", primeerr.Format, errors.K.Invalid,
			"reason", "declared length exceeds payload", "length", dataLen)
	}
	data = payload[innerHeaderLen : innerHeaderLen+dataLen]

	var lengthArr [3]byte
	copy(lengthArr[:], length)
	if !primitives.Ed25519Verify(authorPub, innerSignedPreimage(chunkType, lengthArr, flags, data), sigBytes) {
		return nil, 0, primeerr.E("parse inner payload", primeerr.Crypto, errors.K.Invalid,
			"reason", "inner signature does not verify")
	}
	return data, flags, nil
}

// NewEphemeralChunk builds the cleartext type-1 chunk that broadcasts
// env's public key, signed by authorSigning so a recipient can trust
// which ephemeral key every other chunk's slots were wrapped against.
func NewEphemeralChunk(env *Envelope, authorSigning *keys.PrivateKey) (*Chunk, error) {
	inner, err := buildInnerPayload(TypeEphemeral, authorSigning, env.PublicRaw, 0)
	if err != nil {
		return nil, err
	}
	return &Chunk{Type: TypeEphemeral, Cleartext: true, Ciphertext: inner}, nil
}

// ParseEphemeralChunk recovers the per-message ephemeral public key
// from a cleartext ephemeral chunk, verifying its signature under
// authorPub.
func ParseEphemeralChunk(c *Chunk, authorPub keys.PublicKey) ([]byte, error) {
	if c.Type != TypeEphemeral {
		return nil, primeerr.E("parse ephemeral chunk", primeerr.Input, errors.K.Invalid,
			"reason", "not an ephemeral chunk", "type", c.Type)
	}
	data, _, err := parseInnerPayload(TypeEphemeral, authorPub, c.Ciphertext)
	if err != nil {
		return nil, err
	}
	if len(data) != EphemeralKeyLen {
		return nil, primeerr.E("parse ephemeral chunk", primeerr.Format, errors.K.Invalid,
			"reason", "wrong ephemeral key length", "length", len(data))
	}
	return data, nil
}

// EncryptChunk seals plaintext inside the spec.md §4.4 inner payload -
// signed by the author's key and padded to the chunk's size floor -
// under a fresh per-chunk key wrapped into one slot per role present in
// recipients, with indistinguishable placeholders filling the rest
// (spec.md §4.4, §9).
func EncryptChunk(chunkType byte, plaintext, aad []byte, flags byte, env *Envelope, authorSigning *keys.PrivateKey, recipients map[encscheme.Role]keys.PublicKey) (*Chunk, error) {
	e := primeerr.Template("encrypt chunk", primeerr.Crypto, errors.K.Internal)

	inner, err := buildInnerPayload(chunkType, authorSigning, plaintext, flags)
	if err != nil {
		return nil, e(err)
	}

	chunkKey := make([]byte, primitives.AEADKeyLen)
	if _, err := rand.Read(chunkKey); err != nil {
		return nil, e(err)
	}
	nonce := make([]byte, primitives.AEADNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, e(err)
	}

	var slots [4]Slot
	for i, role := range encscheme.Roles {
		if pub, ok := recipients[role]; ok {
			slots[i], err = buildSlot(role, chunkKey, env.Private, env.PublicRaw, nonce, pub)
		} else {
			slots[i], err = buildPlaceholderSlot(env.PublicRaw, role)
		}
		if err != nil {
			return nil, e(err)
		}
	}

	ciphertext, err := primitives.AEADSeal(chunkKey, nonce, aad, inner)
	if err != nil {
		return nil, e(err)
	}

	return &Chunk{Type: chunkType, Slots: slots, Nonce: nonce, Ciphertext: ciphertext}, nil
}

// DecryptChunk opens c as role, using priv to unwrap role's slot and
// recover the per-chunk key, then verifies and strips the inner payload
// framing. ephemeralPubRaw is the message's ephemeral public key,
// recovered once from the cleartext ephemeral chunk. It returns the
// plaintext data and the inner payload's flags byte (spec.md §4.4).
func DecryptChunk(c *Chunk, role encscheme.Role, priv *keys.PrivateKey, aad []byte, ephemeralPubRaw []byte, authorPub keys.PublicKey) ([]byte, byte, error) {
	idx := role.Index()
	if idx < 0 {
		return nil, 0, primeerr.E("decrypt chunk", primeerr.Input, errors.K.Invalid, "reason", "unknown role")
	}
	if !slotMatchesRole(c.Slots[idx], role) {
		return nil, 0, primeerr.E("decrypt chunk", primeerr.Crypto, errors.K.Invalid,
			"reason", "slot tag selector does not match role")
	}
	chunkKey, err := openSlot(role, c.Slots[idx], ephemeralPubRaw, c.Nonce, priv)
	if err != nil {
		return nil, 0, err
	}
	inner, err := primitives.AEADOpen(chunkKey, c.Nonce, aad, c.Ciphertext)
	if err != nil {
		return nil, 0, err
	}
	return parseInnerPayload(c.Type, authorPub, inner)
}

// Encode serializes c to its wire form: a 4 byte header followed either
// by the bare inner payload (cleartext chunks) or by the 4 fixed slots,
// the AEAD nonce and the ciphertext (encrypted chunks).
func (c *Chunk) Encode() ([]byte, error) {
	var body []byte
	if c.Cleartext {
		body = c.Ciphertext
	} else {
		body = make([]byte, 0, 4*SlotLen+len(c.Nonce)+len(c.Ciphertext))
		for _, s := range c.Slots {
			body = append(body, s.Encode()...)
		}
		body = append(body, c.Nonce...)
		body = append(body, c.Ciphertext...)
	}

	header, err := codec.EncodeChunkHeader(c.Type, uint32(len(body)))
	if err != nil {
		return nil, err
	}
	return append(header, body...), nil
}

// DecodeChunk reads one chunk from r. A type-1 ephemeral chunk is
// framed as a bare inner payload; every other type carries the usual
// four slots, nonce and ciphertext.
func DecodeChunk(r io.Reader) (*Chunk, error) {
	chunkType, length, err := codec.DecodeChunkHeader(r)
	if err != nil {
		return nil, err
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, primeerr.E("decode chunk", primeerr.Format, errors.K.Invalid, err)
	}

	if chunkType == TypeEphemeral {
		return &Chunk{Type: chunkType, Cleartext: true, Ciphertext: body}, nil
	}

	c := &Chunk{Type: chunkType}
	rest := body
	for i := 0; i < 4; i++ {
		c.Slots[i], rest, err = DecodeSlot(rest)
		if err != nil {
			return nil, err
		}
	}
	if len(rest) < primitives.AEADNonceLen {
		return nil, primeerr.E("decode chunk", primeerr.Format, errors.K.Invalid,
			"reason", "chunk body shorter than nonce")
	}
	c.Nonce = rest[:primitives.AEADNonceLen]
	c.Ciphertext = rest[primitives.AEADNonceLen:]
	return c, nil
}
