package witness_commitment_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"

	dagbtc "github.com/vulcanize/go-codec-dagbtc"
	"github.com/vulcanize/go-codec-dagbtc/merkle"
	"github.com/vulcanize/go-codec-dagbtc/shared"
	"github.com/vulcanize/go-codec-dagbtc/witness_commitment"
)

var commitmentHeader = []byte{0x6a, 0x24, 0xaa, 0x21, 0xa9, 0xed}

func commitmentScript(digest []byte) []byte {
	return append(append([]byte{}, commitmentHeader...), digest...)
}

// buildSegWitBlock assembles a two-transaction block the way a miner does:
// the witness root is computed with the coinbase leaf zeroed, combined with
// the coinbase's reserved witness value, and committed to in a coinbase
// output.
func buildSegWitBlock(t *testing.T, reserved []byte) (*wire.MsgBlock, *chainhash.Hash) {
	coinbase := wire.NewMsgTx(2)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
		SignatureScript:  []byte{0x03, 0x8f, 0xa3, 0x0c},
		Witness:          wire.TxWitness{reserved},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	coinbase.AddTxOut(wire.NewTxOut(625000000, shared.RandomBytes(25)))

	spend := wire.NewMsgTx(2)
	prevHash := shared.RandomHash()
	spend.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: prevHash, Index: 0},
		Witness:          wire.TxWitness{shared.RandomBytes(71), shared.RandomBytes(33)},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	spend.AddTxOut(wire.NewTxOut(100000000, shared.RandomBytes(22)))

	witnessRoot, err := merkle.Root([]chainhash.Hash{coinbase.WitnessHash(), spend.WitnessHash()}, true)
	if err != nil {
		t.Fatalf("unable to compute witness merkle root: %v", err)
	}
	structure := make([]byte, 0, witness_commitment.Size)
	structure = append(structure, witnessRoot[:]...)
	structure = append(structure, reservedValueOrZeros(reserved)...)
	coinbase.AddTxOut(wire.NewTxOut(0, commitmentScript(chainhash.DoubleHashB(structure))))

	blk := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   0x20000000,
			PrevBlock: *chaincfg.MainNetParams.GenesisHash,
			Bits:      0x1d00ffff,
		},
		Transactions: []*wire.MsgTx{coinbase, spend},
	}
	return blk, &witnessRoot
}

func reservedValueOrZeros(reserved []byte) []byte {
	if len(reserved) == chainhash.HashSize {
		return reserved
	}
	return make([]byte, chainhash.HashSize)
}

func TestWitnessCommitmentEncode(t *testing.T) {
	reserved := make([]byte, chainhash.HashSize)
	blk, witnessRoot := buildSegWitBlock(t, reserved)

	commitmentCid, enc, err := witness_commitment.Encode(blk, witnessRoot)
	if err != nil {
		t.Fatalf("unable to encode witness commitment: %v", err)
	}
	if len(enc) != witness_commitment.Size {
		t.Fatalf("witness commitment encoding should be %d bytes, got %d", witness_commitment.Size, len(enc))
	}

	parsed, err := witness_commitment.Parse(enc)
	if err != nil {
		t.Fatalf("unable to parse witness commitment: %v", err)
	}
	if parsed.WitnessRoot != *witnessRoot {
		t.Errorf("parsed witness root: got %v, want %v", spew.Sprint(parsed.WitnessRoot), spew.Sprint(*witnessRoot))
	}
	if !bytes.Equal(parsed.Nonce[:], reserved) {
		t.Errorf("parsed nonce (%x) does not match the coinbase reserved value (%x)", parsed.Nonce[:], reserved)
	}

	// the coinbase output commits to the double sha2-256 of the structure
	extracted, ok := witness_commitment.Extract(blk)
	if !ok {
		t.Fatalf("expected the self-assembled block to carry a witness commitment")
	}
	computed := chainhash.DoubleHashB(enc)
	if !bytes.Equal(computed, extracted) {
		t.Errorf("computed commitment digest (%x) does not match the extracted one (%x)", computed, extracted)
	}
	if !commitmentCid.Equals(shared.DblSha256ToCid(witness_commitment.MultiCodecType, extracted)) {
		t.Errorf("commitment cid (%s) does not match the extracted-digest cid (%s)", commitmentCid, shared.DblSha256ToCid(witness_commitment.MultiCodecType, extracted))
	}
}

// TestWitnessCommitmentNonce checks that a non-zero reserved value rides
// through untouched; the nonce is opaque at this layer
func TestWitnessCommitmentNonce(t *testing.T) {
	reserved := shared.RandomBytes(chainhash.HashSize)
	blk, witnessRoot := buildSegWitBlock(t, reserved)

	_, enc, err := witness_commitment.Encode(blk, witnessRoot)
	if err != nil {
		t.Fatalf("unable to encode witness commitment: %v", err)
	}
	parsed, err := witness_commitment.Parse(enc)
	if err != nil {
		t.Fatalf("unable to parse witness commitment: %v", err)
	}
	if !bytes.Equal(parsed.Nonce[:], reserved) {
		t.Errorf("parsed nonce (%x) does not match the coinbase reserved value (%x)", parsed.Nonce[:], reserved)
	}
}

// TestWitnessCommitmentReservedFallback checks that a coinbase whose first
// witness item is not exactly 32 bytes contributes 32 zero bytes instead
func TestWitnessCommitmentReservedFallback(t *testing.T) {
	blk, witnessRoot := buildSegWitBlock(t, shared.RandomBytes(20))

	_, enc, err := witness_commitment.Encode(blk, witnessRoot)
	if err != nil {
		t.Fatalf("unable to encode witness commitment: %v", err)
	}
	parsed, err := witness_commitment.Parse(enc)
	if err != nil {
		t.Fatalf("unable to parse witness commitment: %v", err)
	}
	if parsed.Nonce != [chainhash.HashSize]byte{} {
		t.Errorf("parsed nonce (%x) should fall back to zero for a short witness item", parsed.Nonce[:])
	}
}

func TestWitnessCommitmentExtract(t *testing.T) {
	// pre-segwit blocks carry no commitment; absence is not an error
	if _, ok := witness_commitment.Extract(chaincfg.MainNetParams.GenesisBlock); ok {
		t.Errorf("expected no witness commitment in the genesis block")
	}

	// when several outputs match the pattern, the highest index wins
	first := shared.RandomBytes(chainhash.HashSize)
	second := shared.RandomBytes(chainhash.HashSize)
	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	coinbase.AddTxOut(wire.NewTxOut(0, commitmentScript(first)))
	coinbase.AddTxOut(wire.NewTxOut(0, commitmentScript(second)))
	extracted, ok := witness_commitment.ExtractFromTx(coinbase)
	if !ok {
		t.Fatalf("expected a witness commitment in the coinbase")
	}
	if !bytes.Equal(extracted, second) {
		t.Errorf("extracted commitment (%x) should be the highest-index output's (%x)", extracted, second)
	}
}

func TestWitnessCommitmentParseErrors(t *testing.T) {
	for _, size := range []int{0, witness_commitment.Size - 1, witness_commitment.Size + 1} {
		_, err := witness_commitment.Parse(shared.RandomBytes(size))
		if err == nil {
			t.Fatalf("expected parsing a %d-byte commitment to fail", size)
		}
		if !errors.Is(err, dagbtc.ErrStructuralInvariant) {
			t.Errorf("parsing a %d-byte commitment returned %v, expected it to wrap %v", size, err, dagbtc.ErrStructuralInvariant)
		}
	}

	raw := shared.RandomBytes(witness_commitment.Size)
	parsed, err := witness_commitment.Parse(raw)
	if err != nil {
		t.Fatalf("unable to parse witness commitment: %v", err)
	}
	if !bytes.Equal(parsed.WitnessRoot[:], raw[:chainhash.HashSize]) {
		t.Errorf("parsed witness root (%x) does not match the first half (%x)", parsed.WitnessRoot[:], raw[:chainhash.HashSize])
	}
	if !bytes.Equal(parsed.Nonce[:], raw[chainhash.HashSize:]) {
		t.Errorf("parsed nonce (%x) does not match the second half (%x)", parsed.Nonce[:], raw[chainhash.HashSize:])
	}
}

func TestWitnessCommitmentEncodeErrors(t *testing.T) {
	var root chainhash.Hash

	empty := &wire.MsgBlock{}
	if _, _, err := witness_commitment.Encode(empty, &root); !errors.Is(err, dagbtc.ErrStructuralInvariant) {
		t.Errorf("encoding a commitment for an empty block returned %v, expected it to wrap %v", err, dagbtc.ErrStructuralInvariant)
	}

	spend := wire.NewMsgTx(1)
	prevHash := shared.RandomHash()
	spend.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: prevHash, Index: 0},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	spend.AddTxOut(wire.NewTxOut(100000000, shared.RandomBytes(25)))
	headless := &wire.MsgBlock{Transactions: []*wire.MsgTx{spend}}
	if _, _, err := witness_commitment.Encode(headless, &root); !errors.Is(err, dagbtc.ErrStructuralInvariant) {
		t.Errorf("encoding a commitment for a block without a coinbase returned %v, expected it to wrap %v", err, dagbtc.ErrStructuralInvariant)
	}
}
