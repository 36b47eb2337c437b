package core

// encoding.go – canonical little-endian binary encodings used for hashing
// and signing. Two implementations of this scheme in different languages
// must produce byte-identical output for identical inputs, so field order
// and integer width/endianness are fixed here and never inferred from
// struct layout or JSON.

import (
	"bytes"
	"encoding/binary"
)

func putU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// headerHash computes SHA-256 over version ∥ previous_hash ∥ merkle_root ∥
// timestamp ∥ difficulty ∥ nonce, each integer little-endian.
func headerHash(h *BlockHeader) Hash {
	var buf bytes.Buffer
	putU32(&buf, h.Version)
	buf.Write(h.PreviousHash[:])
	buf.Write(h.MerkleRoot[:])
	putU64(&buf, h.Timestamp)
	putU32(&buf, h.Difficulty)
	putU64(&buf, h.Nonce)
	return SHA256(buf.Bytes())
}

// signingHash computes SHA-256 over chain_id ∥ from ∥ to ∥ amount ∥ fee ∥
// nonce ∥ data (data omitted if absent), each integer little-endian. The
// signature field is never included: a signature is produced over this
// value, so including it would be circular.
func signingHash(tx *Transaction) Hash {
	var buf bytes.Buffer
	putU32(&buf, tx.ChainID)
	buf.Write(tx.From[:])
	buf.Write(tx.To[:])
	putU64(&buf, tx.Amount)
	putU64(&buf, tx.Fee)
	putU64(&buf, tx.Nonce)
	if len(tx.Data) > 0 {
		buf.Write(tx.Data)
	}
	return SHA256(buf.Bytes())
}

// txHash computes SHA-256 over the full transaction encoding including the
// signature; used as the transaction's identifier and as a Merkle leaf.
func txHash(tx *Transaction) Hash {
	var buf bytes.Buffer
	putU32(&buf, tx.ChainID)
	buf.Write(tx.From[:])
	buf.Write(tx.To[:])
	putU64(&buf, tx.Amount)
	putU64(&buf, tx.Fee)
	putU64(&buf, tx.Nonce)
	if len(tx.Data) > 0 {
		buf.Write(tx.Data)
	}
	buf.Write(tx.Signature)
	return SHA256(buf.Bytes())
}
