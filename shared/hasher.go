package shared

import (
	"crypto/sha256"
	"hash"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/multiformats/go-multihash"
	mhreg "github.com/multiformats/go-multihash/core"
)

func init() {
	mhreg.Register(multihash.DBL_SHA2_256, func() hash.Hash {
		return NewDoubleSha256()
	})
}

// DoubleSha256 implements hash.Hash for the dbl-sha2-256 multihash function,
// so that cid.Prefix.Sum and LinkSystems can derive identifiers for blocks
// addressed by it. Input is buffered until Sum is called since the second
// hashing pass cannot be streamed.
type DoubleSha256 struct {
	buf []byte
}

func NewDoubleSha256() *DoubleSha256 {
	return &DoubleSha256{}
}

func (h *DoubleSha256) Write(p []byte) (int, error) {
	h.buf = append(h.buf, p...)
	return len(p), nil
}

func (h *DoubleSha256) Sum(b []byte) []byte {
	return append(b, chainhash.DoubleHashB(h.buf)...)
}

func (h *DoubleSha256) Reset() {
	h.buf = h.buf[:0]
}

func (h *DoubleSha256) Size() int {
	return chainhash.HashSize
}

func (h *DoubleSha256) BlockSize() int {
	return sha256.BlockSize
}
