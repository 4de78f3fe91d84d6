// Package message implements the PRIME message: the ordered tree of
// chunks a message assembles into (tracing, ephemeral, origin,
// destination, header, body and signature chunks, spec.md §4.4) and
// the encrypt/decrypt operations spec.md §4.5 and §6.2's
// message_encrypt/message_decrypt describe. There is no direct
// teacher analog; the sequencing idiom for spanning/overflow chunks is
// grounded on util/multiqueue/input.go's deque-backed bounded queue.
package message

import (
	"bytes"
	"crypto/sha512"

	"github.com/eluv-io/errors-go"
	"github.com/eluv-io/utc-go"
	"github.com/gammazero/deque"

	"github.com/maddog226uk/magma/artifactid"
	"github.com/maddog226uk/magma/chunk"
	"github.com/maddog226uk/magma/codec"
	"github.com/maddog226uk/magma/encscheme"
	"github.com/maddog226uk/magma/keys"
	"github.com/maddog226uk/magma/primeerr"
	"github.com/maddog226uk/magma/primitives"
)

// Party is one role's key material for message_encrypt (spec.md §6.2).
// Encryption is that role's recipient public key, used to wrap a chunk
// key into that role's slot - a nil Encryption leaves the role's slot
// an indistinguishable placeholder. Signing is the role's own signing
// key: for Author it is mandatory and signs every chunk's inner
// payload, the message's signature tree (chunk 224) and the user
// signature (chunk 225); for Origin and Destination, when present, it
// produces that role's org countersignature (chunks 254 and 255
// respectively); Recipient's Signing is unused.
type Party struct {
	Encryption keys.PublicKey
	Signing    *keys.PrivateKey
}

// Participants bundles the key material for all four roles spec.md
// §4.4's fixed slots address.
type Participants struct {
	Author      Party
	Origin      Party
	Destination Party
	Recipient   Party
}

func (p Participants) asMap() map[encscheme.Role]keys.PublicKey {
	m := map[encscheme.Role]keys.PublicKey{}
	if p.Author.Encryption != nil {
		m[encscheme.Author] = p.Author.Encryption
	}
	if p.Origin.Encryption != nil {
		m[encscheme.Origin] = p.Origin.Encryption
	}
	if p.Destination.Encryption != nil {
		m[encscheme.Destination] = p.Destination.Encryption
	}
	if p.Recipient.Encryption != nil {
		m[encscheme.Recipient] = p.Recipient.Encryption
	}
	return m
}

// Verifiers bundles the public keys message_decrypt checks a message's
// signatures against (spec.md §6.2): Author is mandatory and verifies
// every chunk's inner signature, the signature tree and the user
// signature; OriginOrg and DestinationOrg are each optional and, when
// given, require the matching org countersignature chunk to be present
// and to verify.
type Verifiers struct {
	Author         keys.PublicKey
	OriginOrg      keys.PublicKey
	DestinationOrg keys.PublicKey
}

// Message is the in-memory form of an assembled message: its trace
// identifier, creation time, and ordered chunk tree.
type Message struct {
	TraceID   artifactid.ID
	Timestamp utc.UTC
	Chunks    []*chunk.Chunk
}

// maxChunkPlaintext bounds how much plaintext a single chunk carries
// before it must be split into spanning fragments (spec.md §4.4's 0x80
// spanning flag: a fragment that is not the section's last carries the
// flag, and the next chunk of the same type continues it).
const maxChunkPlaintext = 1 << 20

// commonHeaderNames lists the header field names spec.md §6.1 assigns
// to the common-headers chunk (type 32); everything else in a
// message's header block goes to the other-headers chunk (type 33).
var commonHeaderNames = map[string]bool{
	"date":        true,
	"from":        true,
	"sender":      true,
	"reply-to":    true,
	"to":          true,
	"cc":          true,
	"bcc":         true,
	"subject":     true,
	"in-reply-to": true,
	"references":  true,
	"message-id":  true,
}

// splitHeaders divides plaintext, a CRLF- or LF-terminated header block
// followed by a blank line and a body, into its common-header lines,
// other-header lines, and body (spec.md §4.5, §6.1). A plaintext with
// no blank-line separator is treated as having no headers at all.
func splitHeaders(plaintext []byte) (common, other, body []byte) {
	normalized := bytes.ReplaceAll(plaintext, []byte("\r\n"), []byte("\n"))
	idx := bytes.Index(normalized, []byte("\n\n"))
	var headerPart []byte
	if idx < 0 {
		return nil, nil, normalized
	}
	headerPart, body = normalized[:idx], normalized[idx+2:]

	var commonLines, otherLines [][]byte
	for _, line := range bytes.Split(headerPart, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		if commonHeaderNames[string(bytes.ToLower(headerName(line)))] {
			commonLines = append(commonLines, line)
		} else {
			otherLines = append(otherLines, line)
		}
	}
	return bytes.Join(commonLines, []byte("\n")), bytes.Join(otherLines, []byte("\n")), body
}

func headerName(line []byte) []byte {
	if idx := bytes.IndexByte(line, ':'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// assemblePlaintext rebuilds a message's plaintext from its decrypted
// header and body sections, always joining lines with LF and always
// emitting one blank line before the body. It round-trips exactly only
// when the original plaintext uses LF line endings, contains a blank
// line separating headers from body, and has headers that are either
// all-common or all-other: CRLF line endings come back as LF, a
// plaintext with no separator comes back with "\n\n" prepended, and a
// message that interleaves common and other headers loses that
// original line ordering across groups.
func assemblePlaintext(common, other, body []byte) []byte {
	var groups [][]byte
	if len(common) > 0 {
		groups = append(groups, common)
	}
	if len(other) > 0 {
		groups = append(groups, other)
	}
	headers := bytes.Join(groups, []byte("\n"))
	out := make([]byte, 0, len(headers)+2+len(body))
	out = append(out, headers...)
	out = append(out, '\n', '\n')
	out = append(out, body...)
	return out
}

// fragment splits data into pieces no larger than maxChunkPlaintext,
// in order, using the teacher's deque for the bounded work queue.
func fragment(data []byte) [][]byte {
	q := deque.Deque{}
	for remaining := data; ; {
		n := len(remaining)
		if n > maxChunkPlaintext {
			n = maxChunkPlaintext
		}
		q.PushBack(remaining[:n])
		remaining = remaining[n:]
		if len(remaining) == 0 {
			break
		}
	}
	out := make([][]byte, 0, q.Len())
	for q.Len() > 0 {
		out = append(out, q.PopFront().([]byte))
	}
	return out
}

// appendSection fragments data into one or more chunks of sectionType,
// appended to m, setting the spanning flag on every fragment but the
// last (spec.md §4.4). A section with no data produces no chunk at all.
func appendSection(m *Message, sectionType byte, data []byte, env *chunk.Envelope, authorSigning *keys.PrivateKey, aad []byte, recipients map[encscheme.Role]keys.PublicKey) error {
	if len(data) == 0 {
		return nil
	}
	fragments := fragment(data)
	for i, frag := range fragments {
		var flags byte
		if i < len(fragments)-1 {
			flags = chunk.FlagSpanning
		}
		c, err := chunk.EncryptChunk(sectionType, frag, aad, flags, env, authorSigning, recipients)
		if err != nil {
			return err
		}
		m.Chunks = append(m.Chunks, c)
	}
	return nil
}

// isSignatureType reports whether t names one of the signature chunks
// (spec.md §4.4 chunks 224, 225, 254, 255), which the signature tree
// itself does not cover.
func isSignatureType(t byte) bool {
	switch t {
	case chunk.TypeSignatureTree, chunk.TypeUserSignature, chunk.TypeOriginOrgSig, chunk.TypeDestOrgSig:
		return true
	default:
		return false
	}
}

// treeHashes computes the signature tree's input: SHA-512(chunk wire
// bytes) for every non-signature chunk, concatenated in file order
// (spec.md §4.4).
func treeHashes(chunks []*chunk.Chunk) ([]byte, error) {
	var buf bytes.Buffer
	for _, c := range chunks {
		if isSignatureType(c.Type) {
			continue
		}
		encoded, err := c.Encode()
		if err != nil {
			return nil, err
		}
		h := sha512.Sum512(encoded)
		buf.Write(h[:])
	}
	return buf.Bytes(), nil
}

// Encrypt assembles plaintext into a Message (spec.md §4.4, §4.5, §6.2
// message_encrypt): a tracing chunk, the per-message ephemeral chunk,
// optional origin/destination identity chunks, the header/body split of
// plaintext each sealed into one or more (possibly spanning) chunks,
// and finally the signature tree, user signature, and any org
// signatures parties carries keys for.
func Encrypt(plaintext []byte, parties Participants) (*Message, error) {
	e := primeerr.Template("encrypt message", primeerr.Crypto, errors.K.Internal)
	if parties.Author.Signing == nil {
		return nil, e("reason", "author signing key is required")
	}
	authorSigning := parties.Author.Signing
	recipients := parties.asMap()

	env, err := chunk.NewEnvelope()
	if err != nil {
		return nil, e(err)
	}
	ephemeralChunk, err := chunk.NewEphemeralChunk(env, authorSigning)
	if err != nil {
		return nil, e(err)
	}

	traceID := artifactid.Generate()
	now := utc.Now()
	aad := traceID.Bytes()

	tracingChunk, err := chunk.EncryptChunk(chunk.TypeTracing, traceID.Bytes(), aad, 0, env, authorSigning, recipients)
	if err != nil {
		return nil, e(err)
	}

	m := &Message{TraceID: traceID, Timestamp: now, Chunks: []*chunk.Chunk{tracingChunk, ephemeralChunk}}

	if parties.Origin.Encryption != nil {
		c, err := chunk.EncryptChunk(chunk.TypeOrigin, []byte(parties.Origin.Encryption), aad, 0, env, authorSigning, recipients)
		if err != nil {
			return nil, e(err)
		}
		m.Chunks = append(m.Chunks, c)
	}
	if parties.Destination.Encryption != nil {
		c, err := chunk.EncryptChunk(chunk.TypeDestination, []byte(parties.Destination.Encryption), aad, 0, env, authorSigning, recipients)
		if err != nil {
			return nil, e(err)
		}
		m.Chunks = append(m.Chunks, c)
	}

	common, other, body := splitHeaders(plaintext)
	if err := appendSection(m, chunk.TypeCommonHeaders, common, env, authorSigning, aad, recipients); err != nil {
		return nil, e(err)
	}
	if err := appendSection(m, chunk.TypeOtherHeaders, other, env, authorSigning, aad, recipients); err != nil {
		return nil, e(err)
	}
	if err := appendSection(m, chunk.TypeBody, body, env, authorSigning, aad, recipients); err != nil {
		return nil, e(err)
	}

	hashes, err := treeHashes(m.Chunks)
	if err != nil {
		return nil, e(err)
	}
	treeSigBytes, err := primitives.Ed25519Sign(authorSigning, hashes)
	if err != nil {
		return nil, e(err)
	}
	treeChunk, err := chunk.EncryptChunk(chunk.TypeSignatureTree, treeSigBytes, aad, 0, env, authorSigning, recipients)
	if err != nil {
		return nil, e(err)
	}
	m.Chunks = append(m.Chunks, treeChunk)

	userSigBytes, err := primitives.Ed25519Sign(authorSigning, treeSigBytes)
	if err != nil {
		return nil, e(err)
	}
	userSigChunk, err := chunk.EncryptChunk(chunk.TypeUserSignature, userSigBytes, aad, 0, env, authorSigning, recipients)
	if err != nil {
		return nil, e(err)
	}
	m.Chunks = append(m.Chunks, userSigChunk)

	if parties.Origin.Signing != nil {
		sigBytes, err := primitives.Ed25519Sign(parties.Origin.Signing, treeSigBytes)
		if err != nil {
			return nil, e(err)
		}
		c, err := chunk.EncryptChunk(chunk.TypeOriginOrgSig, sigBytes, aad, 0, env, authorSigning, recipients)
		if err != nil {
			return nil, e(err)
		}
		m.Chunks = append(m.Chunks, c)
	}
	if parties.Destination.Signing != nil {
		sigBytes, err := primitives.Ed25519Sign(parties.Destination.Signing, treeSigBytes)
		if err != nil {
			return nil, e(err)
		}
		c, err := chunk.EncryptChunk(chunk.TypeDestOrgSig, sigBytes, aad, 0, env, authorSigning, recipients)
		if err != nil {
			return nil, e(err)
		}
		m.Chunks = append(m.Chunks, c)
	}

	return m, nil
}

// Decrypt opens every chunk of m as role using priv, verifies the
// signature tree, user signature and any org signatures verifiers
// names, reassembles the header/body sections back together across
// spanning fragments, and returns the recovered plaintext (spec.md
// §4.5, §6.2 message_decrypt). Any failure - a missing ephemeral chunk,
// a chunk that does not carry a slot for role, a broken spanning run,
// or a signature that does not verify - aborts the whole decrypt: a
// message is atomic.
func Decrypt(m *Message, role encscheme.Role, priv *keys.PrivateKey, verifiers Verifiers) ([]byte, error) {
	e := primeerr.Template("decrypt message", primeerr.Crypto, errors.K.Invalid)
	if verifiers.Author == nil {
		return nil, e("reason", "author verifying key is required")
	}
	if len(m.Chunks) == 0 {
		return nil, primeerr.E("decrypt message", primeerr.Format, errors.K.Invalid, "reason", "empty message")
	}

	var ephemeralPubRaw []byte
	for _, c := range m.Chunks {
		if c.Type == chunk.TypeEphemeral {
			raw, err := chunk.ParseEphemeralChunk(c, verifiers.Author)
			if err != nil {
				return nil, err
			}
			ephemeralPubRaw = raw
			break
		}
	}
	if ephemeralPubRaw == nil {
		return nil, e("reason", "message has no ephemeral chunk")
	}

	aad := m.TraceID.Bytes()
	sections := map[byte][]byte{}
	var treeChunks []*chunk.Chunk
	var treeSigBytes, userSigBytes, originOrgSigBytes, destOrgSigBytes []byte
	var prevType byte
	var prevSpanning bool
	first := true

	for _, c := range m.Chunks {
		if c.Type == chunk.TypeEphemeral {
			treeChunks = append(treeChunks, c)
			continue
		}
		plaintext, flags, err := chunk.DecryptChunk(c, role, priv, aad, ephemeralPubRaw, verifiers.Author)
		if err != nil {
			return nil, err
		}
		if !first && prevSpanning && c.Type != prevType {
			return nil, e("reason", "spanning chunk not followed by a same-type continuation")
		}
		first = false
		prevType = c.Type
		prevSpanning = flags&chunk.FlagSpanning != 0

		switch c.Type {
		case chunk.TypeTracing:
			if !bytes.Equal(plaintext, m.TraceID.Bytes()) {
				return nil, e("reason", "tracing chunk does not match message trace id")
			}
			treeChunks = append(treeChunks, c)
		case chunk.TypeSignatureTree:
			treeSigBytes = plaintext
		case chunk.TypeUserSignature:
			userSigBytes = plaintext
		case chunk.TypeOriginOrgSig:
			originOrgSigBytes = plaintext
		case chunk.TypeDestOrgSig:
			destOrgSigBytes = plaintext
		default:
			sections[c.Type] = append(sections[c.Type], plaintext...)
			treeChunks = append(treeChunks, c)
		}
	}

	if treeSigBytes == nil {
		return nil, e("reason", "message has no signature-tree chunk")
	}
	hashes, err := treeHashes(treeChunks)
	if err != nil {
		return nil, err
	}
	if !primitives.Ed25519Verify(verifiers.Author, hashes, treeSigBytes) {
		return nil, e("reason", "signature tree does not verify")
	}
	if userSigBytes == nil || !primitives.Ed25519Verify(verifiers.Author, treeSigBytes, userSigBytes) {
		return nil, e("reason", "user signature does not verify")
	}
	if verifiers.OriginOrg != nil {
		if originOrgSigBytes == nil || !primitives.Ed25519Verify(verifiers.OriginOrg, treeSigBytes, originOrgSigBytes) {
			return nil, e("reason", "origin org signature does not verify")
		}
	}
	if verifiers.DestinationOrg != nil {
		if destOrgSigBytes == nil || !primitives.Ed25519Verify(verifiers.DestinationOrg, treeSigBytes, destOrgSigBytes) {
			return nil, e("reason", "destination org signature does not verify")
		}
	}

	return assemblePlaintext(sections[chunk.TypeCommonHeaders], sections[chunk.TypeOtherHeaders], sections[chunk.TypeBody]), nil
}

// Encode serializes m as a codec.MessageEncrypted-framed artifact: a 1
// byte trace-identifier length, the trace identifier, then every
// chunk's own self-delimiting wire encoding in order. Timestamp is not
// part of the wire format - spec.md's message data model carries no
// timestamp field, so it remains an encrypt-time, in-memory only
// convenience and is left at its zero value by Parse.
func (m *Message) Encode() ([]byte, error) {
	idBytes := []byte(m.TraceID)
	if len(idBytes) > 0xFF {
		return nil, primeerr.E("encode message", primeerr.Format, errors.K.Invalid,
			"reason", "trace identifier too long", "length", len(idBytes))
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(len(idBytes)))
	buf.Write(idBytes)
	for _, c := range m.Chunks {
		encoded, err := c.Encode()
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	return codec.EncodeArtifact(codec.MessageEncrypted, buf.Bytes()), nil
}

// Parse decodes a message previously serialized by Encode.
func Parse(b []byte) (*Message, error) {
	code, payload, err := codec.DecodeArtifact(b)
	if err != nil {
		return nil, err
	}
	if code != codec.MessageEncrypted {
		return nil, primeerr.E("parse message", primeerr.Format, errors.K.Invalid,
			"reason", "wrong artifact code", "code", code)
	}
	if len(payload) < 1 {
		return nil, primeerr.E("parse message", primeerr.Format, errors.K.Invalid,
			"reason", "payload shorter than trace id header")
	}
	idLen := int(payload[0])
	if len(payload) < 1+idLen {
		return nil, primeerr.E("parse message", primeerr.Format, errors.K.Invalid,
			"reason", "payload shorter than declared trace id")
	}
	traceID := artifactid.ID(append([]byte{}, payload[1:1+idLen]...))

	r := bytes.NewReader(payload[1+idLen:])
	var chunks []*chunk.Chunk
	for r.Len() > 0 {
		c, err := chunk.DecodeChunk(r)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return &Message{TraceID: traceID, Chunks: chunks}, nil
}
