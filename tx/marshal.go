package tx

import (
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/multicodec"
	"github.com/pkg/errors"

	dagbtc "github.com/vulcanize/go-codec-dagbtc"
	"github.com/vulcanize/go-codec-dagbtc/shared"
)

func init() {
	multicodec.RegisterEncoder(MultiCodecType, Encode)
}

// Encode provides an IPLD codec encode interface for BTC transaction IPLDs,
// emitting the witness-inclusive wire form: marker/flag bytes and per-input
// witness stacks are present exactly when the node is segwit-tagged. List
// nodes encode as 64-byte merkle tree nodes. This function is registered via
// the go-ipld-prime link loader for multicodec code 0xb1 when this package is
// invoked via init.
func Encode(node ipld.Node, w io.Writer) error {
	// 1KiB can be allocated on the stack, and covers most small nodes
	// without having to grow the buffer and cause allocations.
	enc := make([]byte, 0, 1024)

	enc, err := AppendEncode(enc, node)
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

// AppendEncode is like Encode, but it uses a destination buffer directly.
// This means less copying of bytes, and if the destination has enough capacity,
// fewer allocations.
func AppendEncode(enc []byte, inNode ipld.Node) ([]byte, error) {
	if inNode.Kind() == datamodel.Kind_List {
		return appendEncodeTxMerkleNode(enc, inNode)
	}
	tx := new(wire.MsgTx)
	if err := EncodeTx(tx, inNode); err != nil {
		return enc, err
	}
	wbs := shared.NewWriteableByteSlice(&enc)
	if err := tx.Serialize(wbs); err != nil {
		return enc, errors.Wrapf(dagbtc.ErrMalformedEncoding, "invalid DAG-BTC Transaction form (unable to serialize transaction: %v)", err)
	}
	return enc, nil
}

// EncodeNoWitness is like Encode but emits the witness-stripped wire form:
// marker/flag bytes and witness stacks are omitted whether or not the node is
// segwit-tagged. For a node that is not segwit-tagged the two forms are
// byte-identical; for one that is, the double-sha2-256 of this form is the
// transaction's legacy txid while that of the Encode form is its wtxid.
func EncodeNoWitness(node ipld.Node, w io.Writer) error {
	enc := make([]byte, 0, 1024)

	enc, err := AppendEncodeNoWitness(enc, node)
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

// AppendEncodeNoWitness is like EncodeNoWitness, but it uses a destination
// buffer directly.
func AppendEncodeNoWitness(enc []byte, inNode ipld.Node) ([]byte, error) {
	if inNode.Kind() == datamodel.Kind_List {
		// merkle nodes carry no witness section; both forms coincide
		return appendEncodeTxMerkleNode(enc, inNode)
	}
	tx := new(wire.MsgTx)
	if err := EncodeTx(tx, inNode); err != nil {
		return enc, err
	}
	wbs := shared.NewWriteableByteSlice(&enc)
	if err := tx.SerializeNoWitness(wbs); err != nil {
		return enc, errors.Wrapf(dagbtc.ErrMalformedEncoding, "invalid DAG-BTC Transaction form (unable to serialize transaction: %v)", err)
	}
	return enc, nil
}

// EncodeTx packs the node into the provided btcd MsgTx
func EncodeTx(tx *wire.MsgTx, inNode ipld.Node) error {
	// Wrap in a typed node for some basic schema form checking
	builder := dagbtc.Type.Transaction.NewBuilder()
	if err := builder.AssignNode(inNode); err != nil {
		return errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Transaction form (%v)", err)
	}
	node := builder.Build()
	for _, pFunc := range requiredPackFuncs {
		if err := pFunc(tx, node); err != nil {
			return errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Transaction form (%v)", err)
		}
	}
	return checkWitnessConsistency(tx, node)
}

// checkWitnessConsistency enforces the tagging rule the wire format cannot
// express on its own: a segwit-tagged node must carry witness data on at least
// one input, and an untagged node must carry none, otherwise the SegWit flag
// would not survive a round trip through the serialized form.
func checkWitnessConsistency(tx *wire.MsgTx, node ipld.Node) error {
	segwitNode, err := node.LookupByString("SegWit")
	if err != nil {
		return errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Transaction form (%v)", err)
	}
	segwit, err := segwitNode.AsBool()
	if err != nil {
		return errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Transaction form (%v)", err)
	}
	if segwit && !tx.HasWitness() {
		return errors.Wrap(dagbtc.ErrStructuralInvariant, "invalid DAG-BTC Transaction form (segwit-tagged transaction carries no witness data)")
	}
	if !segwit && tx.HasWitness() {
		return errors.Wrap(dagbtc.ErrStructuralInvariant, "invalid DAG-BTC Transaction form (witness data on a transaction that is not segwit-tagged)")
	}
	return nil
}

func appendEncodeTxMerkleNode(enc []byte, inNode ipld.Node) ([]byte, error) {
	builder := dagbtc.Type.TxMerkleNode.NewBuilder()
	if err := builder.AssignNode(inNode); err != nil {
		return enc, errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Transaction form (%v)", err)
	}
	node := builder.Build()
	if node.Length() != 2 {
		return enc, errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Transaction form (merkle node must hold exactly two links, got %d)", node.Length())
	}
	leftNode, err := node.LookupByIndex(0)
	if err != nil {
		return enc, errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Transaction form (%v)", err)
	}
	if leftNode.IsNull() {
		return enc, errors.Wrap(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Transaction form (merkle node left link cannot be null)")
	}
	leftDigest, err := shared.DigestFromLink(leftNode)
	if err != nil {
		return enc, errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Transaction form (unable to unpack merkle node left link: %v)", err)
	}
	rightNode, err := node.LookupByIndex(1)
	if err != nil {
		return enc, errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Transaction form (%v)", err)
	}
	rightDigest := leftDigest
	if !rightNode.IsNull() {
		rightDigest, err = shared.DigestFromLink(rightNode)
		if err != nil {
			return enc, errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Transaction form (unable to unpack merkle node right link: %v)", err)
		}
	}
	enc = append(enc, leftDigest...)
	enc = append(enc, rightDigest...)
	return enc, nil
}

var requiredPackFuncs = []func(*wire.MsgTx, ipld.Node) error{
	packVersion,
	packTxIn,
	packTxOut,
	packLockTime,
}

func packVersion(tx *wire.MsgTx, node ipld.Node) error {
	v, err := node.LookupByString("Version")
	if err != nil {
		return err
	}
	version, err := v.AsInt()
	if err != nil {
		return err
	}
	tx.Version = int32(version)
	return nil
}

func packTxIn(tx *wire.MsgTx, node ipld.Node) error {
	txInsNode, err := node.LookupByString("TxIn")
	if err != nil {
		return err
	}
	it := txInsNode.ListIterator()
	for !it.Done() {
		_, txInNode, err := it.Next()
		if err != nil {
			return err
		}
		txIn, err := packOneTxIn(txInNode)
		if err != nil {
			return err
		}
		tx.AddTxIn(txIn)
	}
	return nil
}

func packOneTxIn(txInNode ipld.Node) (*wire.TxIn, error) {
	opNode, err := txInNode.LookupByString("PreviousOutPoint")
	if err != nil {
		return nil, err
	}
	txCIDNode, err := opNode.LookupByString("TxCID")
	if err != nil {
		return nil, err
	}
	var prevHash chainhash.Hash
	if !txCIDNode.IsNull() {
		digest, err := shared.DigestFromLink(txCIDNode)
		if err != nil {
			return nil, errors.Errorf("unable to unpack outpoint TxCID (%v)", err)
		}
		copy(prevHash[:], digest)
	}
	indexNode, err := opNode.LookupByString("Index")
	if err != nil {
		return nil, err
	}
	index, err := indexNode.AsInt()
	if err != nil {
		return nil, err
	}
	sigScriptNode, err := txInNode.LookupByString("SignatureScript")
	if err != nil {
		return nil, err
	}
	sigScript, err := sigScriptNode.AsBytes()
	if err != nil {
		return nil, err
	}
	witness, err := packWitness(txInNode)
	if err != nil {
		return nil, err
	}
	sequenceNode, err := txInNode.LookupByString("Sequence")
	if err != nil {
		return nil, err
	}
	sequence, err := sequenceNode.AsInt()
	if err != nil {
		return nil, err
	}
	return &wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  prevHash,
			Index: uint32(index),
		},
		SignatureScript: sigScript,
		Witness:         witness,
		Sequence:        uint32(sequence),
	}, nil
}

func packWitness(txInNode ipld.Node) (wire.TxWitness, error) {
	witnessNode, err := txInNode.LookupByString("Witness")
	if err != nil {
		return nil, err
	}
	if witnessNode.IsNull() {
		return nil, nil
	}
	witness := make(wire.TxWitness, 0, witnessNode.Length())
	it := witnessNode.ListIterator()
	for !it.Done() {
		_, itemNode, err := it.Next()
		if err != nil {
			return nil, err
		}
		item, err := itemNode.AsBytes()
		if err != nil {
			return nil, err
		}
		witness = append(witness, item)
	}
	return witness, nil
}

func packTxOut(tx *wire.MsgTx, node ipld.Node) error {
	txOutsNode, err := node.LookupByString("TxOut")
	if err != nil {
		return err
	}
	it := txOutsNode.ListIterator()
	for !it.Done() {
		_, txOutNode, err := it.Next()
		if err != nil {
			return err
		}
		valueNode, err := txOutNode.LookupByString("Value")
		if err != nil {
			return err
		}
		value, err := valueNode.AsInt()
		if err != nil {
			return err
		}
		pkScriptNode, err := txOutNode.LookupByString("PkScript")
		if err != nil {
			return err
		}
		pkScript, err := pkScriptNode.AsBytes()
		if err != nil {
			return err
		}
		tx.AddTxOut(&wire.TxOut{
			Value:    value,
			PkScript: pkScript,
		})
	}
	return nil
}

func packLockTime(tx *wire.MsgTx, node ipld.Node) error {
	lt, err := node.LookupByString("LockTime")
	if err != nil {
		return err
	}
	lockTime, err := lt.AsInt()
	if err != nil {
		return err
	}
	tx.LockTime = uint32(lockTime)
	return nil
}
