// Package block composes the DAG-BTC codecs over a whole block: one pass
// over a btcutil.Block yields every IPLD block the chain structure commits
// to, each binary paired with the CID whose multihash digest is its double
// sha2-256.
package block

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	blocks "github.com/ipfs/go-block-format"
	"github.com/pkg/errors"

	dagbtc "github.com/vulcanize/go-codec-dagbtc"
	"github.com/vulcanize/go-codec-dagbtc/header"
	"github.com/vulcanize/go-codec-dagbtc/merkle"
	"github.com/vulcanize/go-codec-dagbtc/shared"
	"github.com/vulcanize/go-codec-dagbtc/tx"
	"github.com/vulcanize/go-codec-dagbtc/witness_commitment"
)

const (
	stageHeader = iota
	stageBaseTree
	stageWitnessTree
	stageDone
)

// Assembler walks a block and lazily emits its DAG: the header (codec 0xb0,
// CID digest = block hash), the witness-stripped transaction binaries and the
// interior nodes of the txid merkle tree (0xb1), then, when the coinbase
// carries a witness commitment, the witness-inclusive binaries of the
// transactions that have witness data, the interior nodes of the wtxid tree
// (coinbase leaf zeroed), and the 64-byte commitment structure (0xb2). Both
// trees are verified against what the block commits to as they complete.
type Assembler struct {
	blk         *btcutil.Block
	stage       int
	baseIt      *merkle.Iterator
	baseLeaf    int
	witnessIt   *merkle.Iterator
	witnessLeaf int
	commitment  []byte
}

// NewAssembler returns an assembler over the given block. Nothing is hashed
// or serialized until Next is called.
func NewAssembler(blk *btcutil.Block) *Assembler {
	return &Assembler{blk: blk}
}

// Done reports whether the block's DAG has been fully emitted (or emission
// has failed; a block that breaks a structural invariant is not resumable).
func (a *Assembler) Done() bool {
	return a.stage == stageDone
}

// Next emits the next IPLD block of the DAG.
func (a *Assembler) Next() (blocks.Block, error) {
	switch a.stage {
	case stageHeader:
		return a.emitHeader()
	case stageBaseTree:
		return a.emitBaseNode()
	case stageWitnessTree:
		return a.emitWitnessNode()
	default:
		return nil, errors.New("block assembler is exhausted")
	}
}

func (a *Assembler) emitHeader() (blocks.Block, error) {
	hdr := a.blk.MsgBlock().Header
	enc := make([]byte, 0, wire.MaxBlockHeaderPayload)
	wbs := shared.NewWriteableByteSlice(&enc)
	if err := hdr.Serialize(wbs); err != nil {
		return nil, a.fail(errors.Wrapf(dagbtc.ErrMalformedEncoding, "invalid DAG-BTC Block binary (unable to serialize header: %v)", err))
	}
	a.stage = stageBaseTree
	return blocks.NewBlockWithCid(enc, shared.HashToCid(header.MultiCodecType, a.blk.Hash()))
}

// emitBaseNode yields the next node of the txid tree: leaves are paired with
// the witness-stripped transaction binaries they digest, interior nodes carry
// their own 64-byte binaries. When the tree completes, its root must be the
// one the header commits to.
func (a *Assembler) emitBaseNode() (blocks.Block, error) {
	if a.baseIt == nil {
		txs := a.blk.Transactions()
		leaves := make([]chainhash.Hash, len(txs))
		for i, t := range txs {
			leaves[i] = *t.Hash()
		}
		baseIt, err := merkle.Iterate(leaves, false)
		if err != nil {
			return nil, a.fail(errors.Wrap(err, "invalid DAG-BTC Block binary (block has no transactions)"))
		}
		a.baseIt = baseIt
	}
	node, err := a.baseIt.Next()
	if err != nil {
		return nil, a.fail(err)
	}
	binary := node.Binary
	if binary == nil {
		msgTx := a.blk.Transactions()[a.baseLeaf].MsgTx()
		a.baseLeaf++
		enc := make([]byte, 0, msgTx.SerializeSizeStripped())
		wbs := shared.NewWriteableByteSlice(&enc)
		if err := msgTx.SerializeNoWitness(wbs); err != nil {
			return nil, a.fail(errors.Wrapf(dagbtc.ErrMalformedEncoding, "invalid DAG-BTC Block binary (unable to serialize transaction %d: %v)", a.baseLeaf-1, err))
		}
		binary = enc
	}
	if a.baseIt.Done() {
		if err := a.finishBaseTree(); err != nil {
			return nil, err
		}
	}
	return blocks.NewBlockWithCid(binary, shared.HashToCid(tx.MultiCodecType, &node.Digest))
}

func (a *Assembler) finishBaseTree() error {
	root := a.baseIt.Root()
	if root != a.blk.MsgBlock().Header.MerkleRoot {
		return a.fail(errors.Wrapf(dagbtc.ErrStructuralInvariant,
			"computed transaction merkle root (%s) does not match the one the header commits to (%s)", root, a.blk.MsgBlock().Header.MerkleRoot))
	}
	commitment, ok := witness_commitment.Extract(a.blk.MsgBlock())
	if !ok {
		if hasWitnessTx(a.blk) {
			return a.fail(errors.Wrap(dagbtc.ErrStructuralInvariant, "block carries witness data but no witness commitment output"))
		}
		a.stage = stageDone
		return nil
	}
	a.commitment = commitment
	a.stage = stageWitnessTree
	return nil
}

// emitWitnessNode yields the next node of the wtxid tree. The coinbase leaf
// is zeroed by the commitment rule, so no binary is addressed by it; a
// transaction without witness data serializes identically in both forms and
// its binary was already emitted by the base stage. Interior nodes always
// carry binaries. After the last tree node the 64-byte commitment structure
// itself is emitted and checked against the embedded commitment.
func (a *Assembler) emitWitnessNode() (blocks.Block, error) {
	if a.witnessIt == nil {
		txs := a.blk.Transactions()
		leaves := make([]chainhash.Hash, len(txs))
		for i, t := range txs {
			leaves[i] = *t.WitnessHash()
		}
		witnessIt, err := merkle.Iterate(leaves, true)
		if err != nil {
			return nil, a.fail(err)
		}
		a.witnessIt = witnessIt
	}
	for !a.witnessIt.Done() {
		node, err := a.witnessIt.Next()
		if err != nil {
			return nil, a.fail(err)
		}
		if node.Binary != nil {
			return blocks.NewBlockWithCid(node.Binary, shared.HashToCid(tx.MultiCodecType, &node.Digest))
		}
		idx := a.witnessLeaf
		a.witnessLeaf++
		if idx == 0 {
			continue
		}
		msgTx := a.blk.Transactions()[idx].MsgTx()
		if !msgTx.HasWitness() {
			continue
		}
		enc := make([]byte, 0, msgTx.SerializeSize())
		wbs := shared.NewWriteableByteSlice(&enc)
		if err := msgTx.Serialize(wbs); err != nil {
			return nil, a.fail(errors.Wrapf(dagbtc.ErrMalformedEncoding, "invalid DAG-BTC Block binary (unable to serialize transaction %d: %v)", idx, err))
		}
		return blocks.NewBlockWithCid(enc, shared.HashToCid(tx.MultiCodecType, &node.Digest))
	}
	return a.emitCommitment()
}

func (a *Assembler) emitCommitment() (blocks.Block, error) {
	root := a.witnessIt.Root()
	commitmentCid, enc, err := witness_commitment.Encode(a.blk.MsgBlock(), &root)
	if err != nil {
		return nil, a.fail(err)
	}
	computed := chainhash.DoubleHashB(enc)
	if !bytes.Equal(computed, a.commitment) {
		return nil, a.fail(errors.Wrapf(dagbtc.ErrStructuralInvariant,
			"computed witness commitment (%x) does not match the one the coinbase commits to (%x)", computed, a.commitment))
	}
	a.stage = stageDone
	return blocks.NewBlockWithCid(enc, commitmentCid)
}

func (a *Assembler) fail(err error) error {
	a.stage = stageDone
	return err
}

func hasWitnessTx(blk *btcutil.Block) bool {
	for _, t := range blk.Transactions() {
		if t.MsgTx().HasWitness() {
			return true
		}
	}
	return false
}

// Assemble is the eager convenience over a raw block binary: parse, walk,
// collect.
func Assemble(raw []byte) ([]blocks.Block, error) {
	blk, err := btcutil.NewBlockFromBytes(raw)
	if err != nil {
		return nil, errors.Wrapf(dagbtc.ErrMalformedEncoding, "invalid DAG-BTC Block binary (%v)", err)
	}
	asm := NewAssembler(blk)
	var out []blocks.Block
	for !asm.Done() {
		b, err := asm.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
