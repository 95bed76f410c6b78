// Package wire implements the deterministic, length-prefixed binary
// encoding that signed payloads use (§6, §9): fixed field order, explicit
// length prefixes, no reflection-based serializer that could reorder
// fields. The same bytes a client signs are the bytes the server hashes
// and verifies against — never re-derived from a parsed struct.
package wire

import (
	"crypto/sha256"
	"encoding/binary"
)

// Encoder builds a canonical byte string field by field.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf }

// String appends a length-prefixed UTF-8 string.
func (e *Encoder) String(s string) *Encoder {
	e.lenPrefixed([]byte(s))
	return e
}

// Raw appends a length-prefixed byte slice.
func (e *Encoder) Raw(b []byte) *Encoder {
	e.lenPrefixed(b)
	return e
}

// U64 appends a fixed 8-byte big-endian unsigned integer.
func (e *Encoder) U64(v uint64) *Encoder {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
	return e
}

// I64 appends a fixed 8-byte big-endian signed integer.
func (e *Encoder) I64(v int64) *Encoder {
	return e.U64(uint64(v))
}

// Bool appends a single 0/1 byte.
func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	return e
}

func (e *Encoder) lenPrefixed(b []byte) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(b)))
	e.buf = append(e.buf, tmp[:]...)
	e.buf = append(e.buf, b...)
}

// Hash returns SHA-256 over the encoded payload — this is the H in
// contract_id = H(borsh(ContractSignRequest)).
func Hash(payload []byte) [32]byte {
	return sha256.Sum256(payload)
}
