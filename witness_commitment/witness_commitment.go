package witness_commitment

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	"github.com/pkg/errors"

	dagbtc "github.com/vulcanize/go-codec-dagbtc"
	"github.com/vulcanize/go-codec-dagbtc/shared"
)

var (
	MultiCodecType = uint64(multicodec.BitcoinWitnessCommitment)
)

// Size is the exact length of the witness commitment binary: the witness
// merkle root followed by the coinbase's 32-byte reserved witness value.
const Size = chainhash.HashSize * 2

// Commitment is the parsed form of the 64-byte structure whose double-sha2-256
// digest a coinbase output commits to.
type Commitment struct {
	// WitnessRoot is the merkle root over wtxids with the coinbase leaf
	// replaced by 32 zero bytes.
	WitnessRoot chainhash.Hash
	// Nonce is the reserved value carried verbatim from the coinbase witness.
	// Its content is opaque at this layer; the common convention is all zero
	// but non-zero nonces occur on chain and are never rejected here.
	Nonce [chainhash.HashSize]byte
}

// Encode builds the 64-byte witness commitment structure for a block from an
// independently computed witness merkle root, and derives its CID. The
// reserved value is the first item of the coinbase's witness stack when that
// item is exactly 32 bytes, and 32 zero bytes otherwise (pre-BIP141 coinbases
// carry no witness at all).
func Encode(blk *wire.MsgBlock, witnessRoot *chainhash.Hash) (cid.Cid, []byte, error) {
	if len(blk.Transactions) == 0 {
		return cid.Cid{}, nil, errors.Wrap(dagbtc.ErrStructuralInvariant, "block has no coinbase transaction")
	}
	coinbase := blk.Transactions[0]
	if !shared.IsCoinbaseTx(coinbase) {
		return cid.Cid{}, nil, errors.Wrap(dagbtc.ErrStructuralInvariant, "first transaction of the block is not a coinbase")
	}
	enc := make([]byte, 0, Size)
	enc = append(enc, witnessRoot[:]...)
	enc = append(enc, reservedValue(coinbase)...)
	c, err := shared.RawToCid(MultiCodecType, enc)
	if err != nil {
		return cid.Cid{}, nil, err
	}
	return c, enc, nil
}

func reservedValue(coinbase *wire.MsgTx) []byte {
	if len(coinbase.TxIn) > 0 && len(coinbase.TxIn[0].Witness) > 0 && len(coinbase.TxIn[0].Witness[0]) == chainhash.HashSize {
		return coinbase.TxIn[0].Witness[0]
	}
	return make([]byte, chainhash.HashSize)
}

// Extract scans the block's coinbase for an embedded witness commitment and
// returns the 32-byte commitment digest. The second return is false when no
// output carries one, which is the expected outcome for any block predating
// the witness commitment rule; absence is reported, never an error.
func Extract(blk *wire.MsgBlock) ([]byte, bool) {
	if len(blk.Transactions) == 0 {
		return nil, false
	}
	return ExtractFromTx(blk.Transactions[0])
}

// ExtractFromTx is like Extract but scans a coinbase transaction directly:
// the commitment lives in a 38-byte pkScript beginning 6a24aa21a9ed, and when
// several outputs match the one with the highest index wins.
func ExtractFromTx(coinbase *wire.MsgTx) ([]byte, bool) {
	return shared.WitnessCommitmentFromTx(coinbase)
}

// Parse splits a raw witness commitment into its two halves. Anything other
// than exactly 64 bytes is structurally invalid.
func Parse(raw []byte) (*Commitment, error) {
	if len(raw) != Size {
		return nil, errors.Wrapf(dagbtc.ErrStructuralInvariant, "witness commitment must be %d bytes, got %d", Size, len(raw))
	}
	commitment := new(Commitment)
	copy(commitment.WitnessRoot[:], raw[:chainhash.HashSize])
	copy(commitment.Nonce[:], raw[chainhash.HashSize:])
	return commitment, nil
}
