package shared

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ipfs/go-cid"
	"github.com/ipld/go-ipld-prime"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/multiformats/go-multihash"
)

var zeroHash chainhash.Hash

// witnessCommitmentPrefix is OP_RETURN OP_DATA_36 followed by the BIP141
// witness commitment header.
var witnessCommitmentPrefix = []byte{0x6a, 0x24, 0xaa, 0x21, 0xa9, 0xed}

// RawToCid takes the desired codec and a slice of bytes
// and returns the proper cid of the object.
func RawToCid(codec uint64, rawdata []byte) (cid.Cid, error) {
	c, err := cid.Prefix{
		Codec:    codec,
		Version:  1,
		MhType:   multihash.DBL_SHA2_256,
		MhLength: -1,
	}.Sum(rawdata)
	if err != nil {
		return cid.Cid{}, err
	}
	return c, nil
}

// DblSha256ToCid takes a double-sha2-256 digest and returns its cid based on
// the codec given.
func DblSha256ToCid(codec uint64, h []byte) cid.Cid {
	buf, err := multihash.Encode(h, multihash.DBL_SHA2_256)
	if err != nil {
		panic(err)
	}

	return cid.NewCidV1(codec, multihash.Multihash(buf))
}

// HashToCid wraps a chainhash digest in a cid of the given codec.
func HashToCid(codec uint64, h *chainhash.Hash) cid.Cid {
	return DblSha256ToCid(codec, h[:])
}

// DigestFromLink unpacks the 32-byte multihash digest out of a link node;
// this is the inverse of the CID constructors above and is what the encoders
// use to recover the raw hashes a node's links were derived from.
func DigestFromLink(node ipld.Node) ([]byte, error) {
	link, err := node.AsLink()
	if err != nil {
		return nil, err
	}
	cidLink, ok := link.(cidlink.Link)
	if !ok {
		return nil, fmt.Errorf("link must be a CID")
	}
	dmh, err := multihash.Decode(cidLink.Hash())
	if err != nil {
		return nil, fmt.Errorf("unable to decode multihash: %v", err)
	}
	if len(dmh.Digest) != chainhash.HashSize {
		return nil, fmt.Errorf("link digest must be %d bytes long", chainhash.HashSize)
	}
	return dmh.Digest, nil
}

// IsCoinbaseTx returns whether tx is a coinbase: a single input spending the
// all-zero outpoint with the max index.
func IsCoinbaseTx(tx *wire.MsgTx) bool {
	if len(tx.TxIn) != 1 {
		return false
	}
	prevOut := &tx.TxIn[0].PreviousOutPoint
	return prevOut.Index == wire.MaxPrevOutIndex && prevOut.Hash == zeroHash
}

// WitnessCommitmentFromTx scans the outputs of a coinbase for a BIP141
// witness commitment: a 38-byte pkScript beginning 6a24aa21a9ed. The embedded
// 32-byte commitment digest is returned; when more than one output matches,
// the one with the highest index wins. The second return is false when no
// output matches, as is the case for any pre-segwit coinbase.
func WitnessCommitmentFromTx(tx *wire.MsgTx) ([]byte, bool) {
	for i := len(tx.TxOut) - 1; i >= 0; i-- {
		pkScript := tx.TxOut[i].PkScript
		if len(pkScript) == 38 && bytes.HasPrefix(pkScript, witnessCommitmentPrefix) {
			commitment := make([]byte, 32)
			copy(commitment, pkScript[6:38])
			return commitment, true
		}
	}
	return nil, false
}

type WriteableByteSlice struct {
	enc *[]byte
}

func NewWriteableByteSlice(enc *[]byte) WriteableByteSlice {
	return WriteableByteSlice{enc: enc}
}

func (w WriteableByteSlice) Write(b []byte) (int, error) {
	*w.enc = append(*w.enc, b...)
	return len(b), nil
}
