package tx

import (
	"bytes"
	"io"
	"io/ioutil"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ipfs/go-cid"
	"github.com/ipld/go-ipld-prime"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/ipld/go-ipld-prime/multicodec"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"

	dagbtc "github.com/vulcanize/go-codec-dagbtc"
	"github.com/vulcanize/go-codec-dagbtc/shared"
	"github.com/vulcanize/go-codec-dagbtc/witness_commitment"
)

var (
	MultiCodecType = uint64(cid.BitcoinTx)
	MultiHashType  = uint64(multihash.DBL_SHA2_256)
)

// MerkleNodeSize is the length of an interior node of the transaction merkle
// tree: two 32-byte child digests. Every 64-byte binary on this codec is taken
// to be a merkle node, never a whole transaction, mirroring the consensus
// overlap between the two layouts.
const MerkleNodeSize = chainhash.HashSize * 2

var zeroHash chainhash.Hash

func init() {
	multicodec.RegisterDecoder(MultiCodecType, Decode)
}

// Decode provides an IPLD codec decode interface for BTC transaction IPLDs,
// covering both whole transactions and the interior nodes of the transaction
// merkle tree (which share multicodec code 0xb1). This function is registered
// via the go-ipld-prime link loader when this package is invoked via init.
func Decode(na ipld.NodeAssembler, in io.Reader) error {
	var src []byte
	if buf, ok := in.(interface{ Bytes() []byte }); ok {
		src = buf.Bytes()
	} else {
		var err error
		src, err = ioutil.ReadAll(in)
		if err != nil {
			return err
		}
	}
	return DecodeBytes(na, src)
}

/*
	type Transaction struct {
	    Version              Int
	    SegWit               Bool
	    TxIn                 TxInList
	    TxOut                TxOutList
	    LockTime             Int
	    WitnessCommitmentCID nullable Link
	}

	type TxMerkleNode [nullable Link]
*/

// DecodeBytes is like Decode, but it uses an input buffer directly.
// Decode will grab or read all the bytes from an io.Reader anyway, so this can
// save having to copy the bytes or create a bytes.Buffer.
func DecodeBytes(na ipld.NodeAssembler, src []byte) error {
	if len(src) == MerkleNodeSize {
		return decodeTxMerkleNode(na, src)
	}
	if len(src) < 6 {
		return errors.Wrapf(dagbtc.ErrMalformedEncoding, "invalid DAG-BTC Transaction binary (%d bytes is too short for a transaction)", len(src))
	}
	// the marker/flag pair sits between the version and the input count on a
	// segwit-tagged wire encoding
	segwit := src[4] == 0x00 && src[5] == 0x01
	var tx wire.MsgTx
	r := bytes.NewReader(src)
	if err := tx.Deserialize(r); err != nil {
		return errors.Wrapf(dagbtc.ErrMalformedEncoding, "invalid DAG-BTC Transaction binary (%v)", err)
	}
	if r.Len() != 0 {
		return errors.Wrapf(dagbtc.ErrMalformedEncoding, "invalid DAG-BTC Transaction binary (%d trailing bytes after the transaction)", r.Len())
	}
	if segwit && !tx.HasWitness() {
		return errors.Wrap(dagbtc.ErrMalformedEncoding, "invalid DAG-BTC Transaction binary (marker and flag bytes present but no witness data follows)")
	}
	ma, err := na.BeginMap(6)
	if err != nil {
		return err
	}
	for _, upFunc := range requiredUnpackFuncs {
		if err := upFunc(ma, &tx); err != nil {
			return errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Transaction binary (%v)", err)
		}
	}
	return ma.Finish()
}

// decodeTxMerkleNode assembles an interior merkle node as a list of two links.
// The right link is null when its digest duplicates the left, the convention
// for rows of odd length where the last node is paired with itself.
func decodeTxMerkleNode(na ipld.NodeAssembler, src []byte) error {
	left := src[:chainhash.HashSize]
	right := src[chainhash.HashSize:]
	la, err := na.BeginList(2)
	if err != nil {
		return err
	}
	leftCID := shared.DblSha256ToCid(MultiCodecType, left)
	if err := la.AssembleValue().AssignLink(cidlink.Link{Cid: leftCID}); err != nil {
		return err
	}
	if bytes.Equal(left, right) {
		if err := la.AssembleValue().AssignNull(); err != nil {
			return err
		}
	} else {
		rightCID := shared.DblSha256ToCid(MultiCodecType, right)
		if err := la.AssembleValue().AssignLink(cidlink.Link{Cid: rightCID}); err != nil {
			return err
		}
	}
	return la.Finish()
}

var requiredUnpackFuncs = []func(ma ipld.MapAssembler, tx *wire.MsgTx) error{
	unpackVersion,
	unpackSegWit,
	unpackTxIn,
	unpackTxOut,
	unpackLockTime,
	unpackWitnessCommitmentCID,
}

func unpackVersion(ma ipld.MapAssembler, tx *wire.MsgTx) error {
	if err := ma.AssembleKey().AssignString("Version"); err != nil {
		return err
	}
	return ma.AssembleValue().AssignInt(int64(tx.Version))
}

func unpackSegWit(ma ipld.MapAssembler, tx *wire.MsgTx) error {
	// DecodeBytes has already rejected tagged transactions without witness
	// data, so witness presence and wire tagging coincide here
	if err := ma.AssembleKey().AssignString("SegWit"); err != nil {
		return err
	}
	return ma.AssembleValue().AssignBool(tx.HasWitness())
}

func unpackTxIn(ma ipld.MapAssembler, tx *wire.MsgTx) error {
	if err := ma.AssembleKey().AssignString("TxIn"); err != nil {
		return err
	}
	la, err := ma.AssembleValue().BeginList(int64(len(tx.TxIn)))
	if err != nil {
		return err
	}
	segwit := tx.HasWitness()
	for _, txIn := range tx.TxIn {
		inMA, err := la.AssembleValue().BeginMap(4)
		if err != nil {
			return err
		}
		if err := unpackOutPoint(inMA, txIn); err != nil {
			return err
		}
		if err := inMA.AssembleKey().AssignString("SignatureScript"); err != nil {
			return err
		}
		if err := inMA.AssembleValue().AssignBytes(txIn.SignatureScript); err != nil {
			return err
		}
		if err := unpackWitness(inMA, txIn, segwit); err != nil {
			return err
		}
		if err := inMA.AssembleKey().AssignString("Sequence"); err != nil {
			return err
		}
		if err := inMA.AssembleValue().AssignInt(int64(txIn.Sequence)); err != nil {
			return err
		}
		if err := inMA.Finish(); err != nil {
			return err
		}
	}
	return la.Finish()
}

func unpackOutPoint(inMA ipld.MapAssembler, txIn *wire.TxIn) error {
	if err := inMA.AssembleKey().AssignString("PreviousOutPoint"); err != nil {
		return err
	}
	opMA, err := inMA.AssembleValue().BeginMap(2)
	if err != nil {
		return err
	}
	if err := opMA.AssembleKey().AssignString("TxCID"); err != nil {
		return err
	}
	// a coinbase input spends nothing; its all-zero outpoint hash maps to a
	// null link rather than a reference to a transaction that cannot exist
	if txIn.PreviousOutPoint.Hash == zeroHash {
		if err := opMA.AssembleValue().AssignNull(); err != nil {
			return err
		}
	} else {
		spentCID := shared.HashToCid(MultiCodecType, &txIn.PreviousOutPoint.Hash)
		if err := opMA.AssembleValue().AssignLink(cidlink.Link{Cid: spentCID}); err != nil {
			return err
		}
	}
	if err := opMA.AssembleKey().AssignString("Index"); err != nil {
		return err
	}
	if err := opMA.AssembleValue().AssignInt(int64(txIn.PreviousOutPoint.Index)); err != nil {
		return err
	}
	return opMA.Finish()
}

func unpackWitness(inMA ipld.MapAssembler, txIn *wire.TxIn, segwit bool) error {
	if err := inMA.AssembleKey().AssignString("Witness"); err != nil {
		return err
	}
	if !segwit {
		return inMA.AssembleValue().AssignNull()
	}
	wla, err := inMA.AssembleValue().BeginList(int64(len(txIn.Witness)))
	if err != nil {
		return err
	}
	for _, item := range txIn.Witness {
		if err := wla.AssembleValue().AssignBytes(item); err != nil {
			return err
		}
	}
	return wla.Finish()
}

func unpackTxOut(ma ipld.MapAssembler, tx *wire.MsgTx) error {
	if err := ma.AssembleKey().AssignString("TxOut"); err != nil {
		return err
	}
	la, err := ma.AssembleValue().BeginList(int64(len(tx.TxOut)))
	if err != nil {
		return err
	}
	for _, txOut := range tx.TxOut {
		outMA, err := la.AssembleValue().BeginMap(2)
		if err != nil {
			return err
		}
		if err := outMA.AssembleKey().AssignString("Value"); err != nil {
			return err
		}
		if err := outMA.AssembleValue().AssignInt(txOut.Value); err != nil {
			return err
		}
		if err := outMA.AssembleKey().AssignString("PkScript"); err != nil {
			return err
		}
		if err := outMA.AssembleValue().AssignBytes(txOut.PkScript); err != nil {
			return err
		}
		if err := outMA.Finish(); err != nil {
			return err
		}
	}
	return la.Finish()
}

func unpackLockTime(ma ipld.MapAssembler, tx *wire.MsgTx) error {
	if err := ma.AssembleKey().AssignString("LockTime"); err != nil {
		return err
	}
	return ma.AssembleValue().AssignInt(int64(tx.LockTime))
}

func unpackWitnessCommitmentCID(ma ipld.MapAssembler, tx *wire.MsgTx) error {
	if err := ma.AssembleKey().AssignString("WitnessCommitmentCID"); err != nil {
		return err
	}
	if !shared.IsCoinbaseTx(tx) {
		return ma.AssembleValue().AssignNull()
	}
	commitment, ok := shared.WitnessCommitmentFromTx(tx)
	if !ok {
		return ma.AssembleValue().AssignNull()
	}
	commitmentCID := shared.DblSha256ToCid(witness_commitment.MultiCodecType, commitment)
	return ma.AssembleValue().AssignLink(cidlink.Link{Cid: commitmentCID})
}
