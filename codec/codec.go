// Package codec implements the PRIME field codec (spec.md §4.2): the
// binary TLV field encoding, artifact framing, the armored PEM-like
// text wrapper, and the human-readable debug dump. Adapted from
// format/preamble/preamble.go of the teacher repository, whose
// varint-length multicodec-tagged preamble (a single length-prefixed
// blob prepended to content-fabric part data) is the same "prefix
// bytes with a self-describing header" idiom applied to a different
// wire shape; PRIME fields are tag-prefixed with a protocol-specified
// fixed length width rather than a single varint, so the Read/Write
// pair is rewritten around that shape and the teacher's Sizer is not
// carried over.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/eluv-io/errors-go"

	"github.com/maddog226uk/magma/primeerr"
	"github.com/maddog226uk/magma/util/stringutil"
)

///////////////////////////////////////////////////////////////////////////////
// Artifact framing

// ArtifactCode is the 2-byte big-endian magic code identifying an
// artifact's type (spec.md §6.1).
type ArtifactCode uint16

const (
	OrgSignet             ArtifactCode = 1776
	OrgKey                ArtifactCode = 1952
	OrgKeyEncrypted       ArtifactCode = 1947
	UserSigningRequest    ArtifactCode = 1215
	UserSignet            ArtifactCode = 1789
	UserKey               ArtifactCode = 2013
	UserKeyEncrypted      ArtifactCode = 1976
	MessageEncrypted      ArtifactCode = 1847
	MessageSent           ArtifactCode = 1851
	MessageDraft          ArtifactCode = 1861
	MessageNaked          ArtifactCode = 1908
	MessageBounce         ArtifactCode = 1931
	MessageForward        ArtifactCode = 1948
	MessageAbuse          ArtifactCode = 2001
	BinaryObject          ArtifactCode = 1837
	ProtocolTicket        ArtifactCode = 1841
)

var codeToLabel = map[ArtifactCode]string{
	OrgSignet:          "ORGANIZATIONAL SIGNET",
	OrgKey:             "ORGANIZATIONAL KEY",
	OrgKeyEncrypted:    "ENCRYPTED ORGANIZATIONAL KEY",
	UserSigningRequest: "USER SIGNING REQUEST",
	UserSignet:         "USER SIGNET",
	UserKey:            "USER KEY",
	UserKeyEncrypted:   "ENCRYPTED USER KEY",
	MessageEncrypted:   "ENCRYPTED MESSAGE",
	MessageSent:        "SENT MESSAGE",
	MessageDraft:       "DRAFT MESSAGE",
	MessageNaked:       "NAKED MESSAGE",
	MessageBounce:      "BOUNCE MESSAGE",
	MessageForward:     "FORWARD MESSAGE",
	MessageAbuse:       "ABUSE MESSAGE",
	BinaryObject:       "BINARY OBJECT",
	ProtocolTicket:     "PROTOCOL TICKET",
}
var labelToCode = map[string]ArtifactCode{}

func init() {
	for code, label := range codeToLabel {
		labelToCode[label] = code
	}
}

// Label returns the armor label for this artifact code.
func (c ArtifactCode) Label() string {
	return codeToLabel[c]
}

// ArtifactCodeFromLabel looks up the artifact code for an armor label.
func ArtifactCodeFromLabel(label string) (ArtifactCode, error) {
	c, ok := labelToCode[label]
	if !ok {
		return 0, primeerr.E("parse artifact code", primeerr.Format, errors.K.Invalid, "label", label)
	}
	return c, nil
}

// EncodeArtifact wraps already-serialized TLV field bytes with the
// artifact framing header: magic (2B) || length (4B) || payload.
func EncodeArtifact(code ArtifactCode, payload []byte) []byte {
	buf := make([]byte, 6+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(code))
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(payload)))
	copy(buf[6:], payload)
	return buf
}

// DecodeArtifact splits an artifact-framed buffer back into its code
// and TLV payload bytes.
func DecodeArtifact(b []byte) (code ArtifactCode, payload []byte, err error) {
	e := primeerr.Template("decode artifact", primeerr.Format, errors.K.Invalid)
	if len(b) < 6 {
		return 0, nil, e("reason", "buffer shorter than artifact header")
	}
	code = ArtifactCode(binary.BigEndian.Uint16(b[0:2]))
	length := binary.BigEndian.Uint32(b[2:6])
	rest := b[6:]
	if uint64(length) != uint64(len(rest)) {
		return 0, nil, e("reason", "declared length does not match buffer", "declared", length, "actual", len(rest))
	}
	return code, rest, nil
}

///////////////////////////////////////////////////////////////////////////////
// Binary TLV fields

// Width is the number of big-endian bytes used to encode a field's
// length (1, 2, 3, or 4; spec.md §4.2).
type Width int

const (
	Width1 Width = 1
	Width2 Width = 2
	Width3 Width = 3
	Width4 Width = 4
)

// Field is a single tag/length/value entry of an artifact or chunk
// serialization.
type Field struct {
	Tag   byte
	Value []byte
}

// EncodeField serializes one field as tag || length(width) || value.
func EncodeField(tag byte, width Width, value []byte) ([]byte, error) {
	max := uint64(1)<<(8*uint(width)) - 1
	if uint64(len(value)) > max {
		return nil, primeerr.E("encode field", primeerr.Format, errors.K.Invalid,
			"reason", "value exceeds declared length width", "tag", tag, "width", width, "length", len(value))
	}
	buf := make([]byte, 1+int(width)+len(value))
	buf[0] = tag
	putUint(buf[1:1+int(width)], uint64(len(value)))
	copy(buf[1+int(width):], value)
	return buf, nil
}

// DecodeField reads one field from the front of data using the given
// length width, and returns the field plus the remaining unread bytes.
// Refuses lengths exceeding the declared width and payloads extending
// beyond the enclosing buffer.
func DecodeField(data []byte, width Width) (field Field, rest []byte, err error) {
	e := primeerr.Template("decode field", primeerr.Format, errors.K.Invalid)
	if len(data) < 1+int(width) {
		return Field{}, nil, e("reason", "buffer shorter than field header")
	}
	tag := data[0]
	length := getUint(data[1 : 1+int(width)])
	start := 1 + int(width)
	end := start + int(length)
	if end > len(data) {
		return Field{}, nil, e("reason", "field payload extends beyond buffer",
			"tag", tag, "declared_length", length, "available", len(data)-start)
	}
	value := make([]byte, length)
	copy(value, data[start:end])
	return Field{Tag: tag, Value: value}, data[end:], nil
}

// EncodeFields serializes fields in the order given, each with the
// length width its tag is declared to use in widths.
func EncodeFields(fields []Field, widths map[byte]Width) ([]byte, error) {
	var buf bytes.Buffer
	for _, f := range fields {
		w, ok := widths[f.Tag]
		if !ok {
			return nil, primeerr.E("encode fields", primeerr.Format, errors.K.Invalid,
				"reason", "no declared length width for tag", "tag", f.Tag)
		}
		b, err := EncodeField(f.Tag, w, f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// DecodeFields parses a sequence of TLV fields until data is exhausted,
// looking up each field's length width by its tag.
func DecodeFields(data []byte, widths map[byte]Width) ([]Field, error) {
	var fields []Field
	for len(data) > 0 {
		if len(data) < 1 {
			break
		}
		tag := data[0]
		w, ok := widths[tag]
		if !ok {
			return nil, primeerr.E("decode fields", primeerr.Format, errors.K.Invalid,
				"reason", "no declared length width for tag", "tag", tag)
		}
		var f Field
		var err error
		f, data, err = DecodeField(data, w)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func putUint(buf []byte, v uint64) {
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
}

func getUint(buf []byte) uint64 {
	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}
	return v
}

///////////////////////////////////////////////////////////////////////////////
// Chunk header: type (1 byte) || length (3 bytes big-endian), spec.md §4.4

const ChunkHeaderLen = 4

// EncodeChunkHeader serializes a chunk's type/length header.
func EncodeChunkHeader(chunkType byte, length uint32) ([]byte, error) {
	if length >= 1<<24 {
		return nil, primeerr.E("encode chunk header", primeerr.Format, errors.K.Invalid,
			"reason", "length exceeds 24 bits", "length", length)
	}
	buf := make([]byte, ChunkHeaderLen)
	buf[0] = chunkType
	putUint(buf[1:4], uint64(length))
	return buf, nil
}

// DecodeChunkHeader reads a chunk's type/length header from r.
func DecodeChunkHeader(r io.Reader) (chunkType byte, length uint32, err error) {
	buf := make([]byte, ChunkHeaderLen)
	if _, err = io.ReadFull(r, buf); err != nil {
		return 0, 0, primeerr.E("decode chunk header", primeerr.Format, errors.K.Invalid, err)
	}
	return buf[0], uint32(getUint(buf[1:4])), nil
}

///////////////////////////////////////////////////////////////////////////////
// Armored text form

const armorLineLen = 64

// Armor wraps binary in base64, line-wrapped at 64 characters, between
// BEGIN/END header and footer lines carrying label.
func Armor(label string, binary []byte) string {
	encoded := base64.StdEncoding.EncodeToString(binary)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "-----BEGIN %s-----\n", label)
	for len(encoded) > 0 {
		n := armorLineLen
		if n > len(encoded) {
			n = len(encoded)
		}
		buf.WriteString(encoded[:n])
		buf.WriteByte('\n')
		encoded = encoded[n:]
	}
	fmt.Fprintf(&buf, "-----END %s-----\n", label)
	return buf.String()
}

// Dearmor parses an armored string, returning its label and decoded
// binary content. Trailing whitespace on any line is tolerated. A
// missing footer, or a BEGIN/END label mismatch, is a Format error.
func Dearmor(s string) (label string, binary []byte, err error) {
	e := primeerr.Template("dearmor", primeerr.Format, errors.K.Invalid)
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")

	var beginLine, endLineIdx = -1, -1
	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.HasPrefix(trimmed, "-----BEGIN ") && strings.HasSuffix(trimmed, "-----") {
			beginLine = i
			label = strings.TrimSuffix(strings.TrimPrefix(trimmed, "-----BEGIN "), "-----")
			break
		}
	}
	if beginLine < 0 {
		return "", nil, e("reason", "missing BEGIN header")
	}
	if !isLabel(label) {
		return "", nil, e("reason", "invalid label", "label", label)
	}
	footer := "-----END " + label + "-----"
	for i := beginLine + 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \t") == footer {
			endLineIdx = i
			break
		}
	}
	if endLineIdx < 0 {
		return "", nil, e("reason", "missing or mismatched END footer", "label", label)
	}

	var b64 strings.Builder
	for i := beginLine + 1; i < endLineIdx; i++ {
		b64.WriteString(strings.TrimRight(lines[i], " \t"))
	}
	binary, err = base64.StdEncoding.DecodeString(b64.String())
	if err != nil {
		return "", nil, e(err, "reason", "invalid base64 body")
	}
	return label, binary, nil
}

func isLabel(s string) bool {
	return len(s) > 0 && stringutil.MatchRunes(s, func(r rune) bool {
		return r == ' ' || (r >= 'A' && r <= 'Z')
	})
}

// ArmorArtifact frames payload under code and armors the result under
// code's own label.
func ArmorArtifact(code ArtifactCode, payload []byte) string {
	return Armor(code.Label(), EncodeArtifact(code, payload))
}

// DearmorArtifact dearmors s and decodes the enclosed artifact,
// additionally checking that the armor label matches the label
// registered for the artifact's own magic code.
func DearmorArtifact(s string) (code ArtifactCode, payload []byte, err error) {
	label, binary, err := Dearmor(s)
	if err != nil {
		return 0, nil, err
	}
	code, payload, err = DecodeArtifact(binary)
	if err != nil {
		return 0, nil, err
	}
	if code.Label() != label {
		return 0, nil, primeerr.E("dearmor artifact", primeerr.Format, errors.K.Invalid,
			"reason", "armor label does not match artifact magic code", "label", label, "expected", code.Label())
	}
	return code, payload, nil
}

///////////////////////////////////////////////////////////////////////////////
// Debug dump

// Debug renders a human-readable, non-injective dump of fields: one
// "<label>: <base64(value)>" line per field, in the order given.
func Debug(fields []Field, labels map[byte]string) string {
	var buf bytes.Buffer
	for _, f := range fields {
		label, ok := labels[f.Tag]
		if !ok {
			label = fmt.Sprintf("field[%d]", f.Tag)
		}
		fmt.Fprintf(&buf, "%s: %s\n", label, base64.StdEncoding.EncodeToString(f.Value))
	}
	return buf.String()
}
