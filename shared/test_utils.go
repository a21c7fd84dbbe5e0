package shared

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ipld/go-ipld-prime"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/multiformats/go-multihash"
)

// RandomHash returns a random hash
func RandomHash() chainhash.Hash {
	rand.Seed(time.Now().UnixNano())
	var hash chainhash.Hash
	rand.Read(hash[:])
	return hash
}

// RandomBytes returns a random byte slice of the provided length
func RandomBytes(len int) []byte {
	rand.Seed(time.Now().UnixNano())
	by := make([]byte, len)
	rand.Read(by)
	return by
}

// TestHeaderNodeContent checks the contents of a header IPLD node against a provided wire header
func TestHeaderNodeContent(t *testing.T, headerNode ipld.Node, header *wire.BlockHeader) {
	versionNode, err := headerNode.LookupByString("Version")
	if err != nil {
		t.Fatalf("header missing Version: %v", err)
	}
	version, err := versionNode.AsInt()
	if err != nil {
		t.Fatalf("header Version should be of type Int: %v", err)
	}
	if version != int64(header.Version) {
		t.Errorf("header version (%d) does not match expected version (%d)", version, header.Version)
	}

	parentCIDNode, err := headerNode.LookupByString("ParentCID")
	if err != nil {
		t.Fatalf("header missing ParentCID: %v", err)
	}
	if header.PrevBlock == zeroHash {
		if !parentCIDNode.IsNull() {
			t.Errorf("header ParentCID should be null when the previous-block hash is all zero")
		}
	} else {
		if parentCIDNode.IsNull() {
			t.Fatalf("header ParentCID should not be null")
		}
		verifyLinkDigest(t, "header ParentCID", parentCIDNode, header.PrevBlock[:])
	}

	txRootCIDNode, err := headerNode.LookupByString("TxRootCID")
	if err != nil {
		t.Fatalf("header missing TxRootCID: %v", err)
	}
	verifyLinkDigest(t, "header TxRootCID", txRootCIDNode, header.MerkleRoot[:])

	timeNode, err := headerNode.LookupByString("Time")
	if err != nil {
		t.Fatalf("header missing Time: %v", err)
	}
	timestamp, err := timeNode.AsInt()
	if err != nil {
		t.Fatalf("header Time should be of type Int: %v", err)
	}
	if timestamp != header.Timestamp.Unix() {
		t.Errorf("header time (%d) does not match expected time (%d)", timestamp, header.Timestamp.Unix())
	}

	bitsNode, err := headerNode.LookupByString("Bits")
	if err != nil {
		t.Fatalf("header missing Bits: %v", err)
	}
	bits, err := bitsNode.AsInt()
	if err != nil {
		t.Fatalf("header Bits should be of type Int: %v", err)
	}
	if bits != int64(header.Bits) {
		t.Errorf("header bits (%d) does not match expected bits (%d)", bits, header.Bits)
	}

	nonceNode, err := headerNode.LookupByString("Nonce")
	if err != nil {
		t.Fatalf("header missing Nonce: %v", err)
	}
	nonce, err := nonceNode.AsInt()
	if err != nil {
		t.Fatalf("header Nonce should be of type Int: %v", err)
	}
	if nonce != int64(header.Nonce) {
		t.Errorf("header nonce (%d) does not match expected nonce (%d)", nonce, header.Nonce)
	}
}

// TestTransactionNodeContent checks the contents of a transaction IPLD node against a provided wire tx
func TestTransactionNodeContent(t *testing.T, txNode ipld.Node, tx *wire.MsgTx, segwit bool) {
	versionNode, err := txNode.LookupByString("Version")
	if err != nil {
		t.Fatalf("transaction missing Version: %v", err)
	}
	version, err := versionNode.AsInt()
	if err != nil {
		t.Fatalf("transaction Version should be of type Int: %v", err)
	}
	if version != int64(tx.Version) {
		t.Errorf("transaction version (%d) does not match expected version (%d)", version, tx.Version)
	}

	segWitNode, err := txNode.LookupByString("SegWit")
	if err != nil {
		t.Fatalf("transaction missing SegWit: %v", err)
	}
	segWit, err := segWitNode.AsBool()
	if err != nil {
		t.Fatalf("transaction SegWit should be of type Bool: %v", err)
	}
	if segWit != segwit {
		t.Errorf("transaction segwit flag (%t) does not match expected flag (%t)", segWit, segwit)
	}

	txInsNode, err := txNode.LookupByString("TxIn")
	if err != nil {
		t.Fatalf("transaction missing TxIn: %v", err)
	}
	if txInsNode.Length() != int64(len(tx.TxIn)) {
		t.Fatalf("transaction should have %d inputs", len(tx.TxIn))
	}
	txInIT := txInsNode.ListIterator()
	for !txInIT.Done() {
		i, txInNode, err := txInIT.Next()
		if err != nil {
			t.Fatalf("transaction input iterator error: %v", err)
		}
		currentIn := tx.TxIn[i]

		outPointNode, err := txInNode.LookupByString("PreviousOutPoint")
		if err != nil {
			t.Fatalf("transaction input missing PreviousOutPoint: %v", err)
		}
		txCIDNode, err := outPointNode.LookupByString("TxCID")
		if err != nil {
			t.Fatalf("transaction outpoint missing TxCID: %v", err)
		}
		if currentIn.PreviousOutPoint.Hash == zeroHash {
			if !txCIDNode.IsNull() {
				t.Errorf("transaction outpoint TxCID should be null when the referenced txid is all zero")
			}
		} else {
			if txCIDNode.IsNull() {
				t.Fatalf("transaction outpoint TxCID should not be null")
			}
			verifyLinkDigest(t, "transaction outpoint TxCID", txCIDNode, currentIn.PreviousOutPoint.Hash[:])
		}
		indexNode, err := outPointNode.LookupByString("Index")
		if err != nil {
			t.Fatalf("transaction outpoint missing Index: %v", err)
		}
		index, err := indexNode.AsInt()
		if err != nil {
			t.Fatalf("transaction outpoint Index should be of type Int: %v", err)
		}
		if index != int64(currentIn.PreviousOutPoint.Index) {
			t.Errorf("transaction outpoint index (%d) does not match expected index (%d)", index, currentIn.PreviousOutPoint.Index)
		}

		sigScriptNode, err := txInNode.LookupByString("SignatureScript")
		if err != nil {
			t.Fatalf("transaction input missing SignatureScript: %v", err)
		}
		sigScript, err := sigScriptNode.AsBytes()
		if err != nil {
			t.Fatalf("transaction input SignatureScript should be of type Bytes: %v", err)
		}
		if !bytes.Equal(sigScript, currentIn.SignatureScript) {
			t.Errorf("transaction input signature script (%x) does not match expected script (%x)", sigScript, currentIn.SignatureScript)
		}

		witnessNode, err := txInNode.LookupByString("Witness")
		if err != nil {
			t.Fatalf("transaction input missing Witness: %v", err)
		}
		if !segwit {
			if !witnessNode.IsNull() {
				t.Errorf("non-segwit transaction input Witness should be null")
			}
		} else {
			if witnessNode.IsNull() {
				t.Fatalf("segwit transaction input Witness should not be null")
			}
			if witnessNode.Length() != int64(len(currentIn.Witness)) {
				t.Fatalf("transaction input witness stack should have %d items", len(currentIn.Witness))
			}
			witnessIT := witnessNode.ListIterator()
			for !witnessIT.Done() {
				j, witnessItemNode, err := witnessIT.Next()
				if err != nil {
					t.Fatalf("transaction witness stack iterator error: %v", err)
				}
				witnessItem, err := witnessItemNode.AsBytes()
				if err != nil {
					t.Fatalf("transaction witness item should be of type Bytes: %v", err)
				}
				if !bytes.Equal(witnessItem, currentIn.Witness[j]) {
					t.Errorf("transaction witness item (%x) does not match expected item (%x)", witnessItem, currentIn.Witness[j])
				}
			}
		}

		sequenceNode, err := txInNode.LookupByString("Sequence")
		if err != nil {
			t.Fatalf("transaction input missing Sequence: %v", err)
		}
		sequence, err := sequenceNode.AsInt()
		if err != nil {
			t.Fatalf("transaction input Sequence should be of type Int: %v", err)
		}
		if sequence != int64(currentIn.Sequence) {
			t.Errorf("transaction input sequence (%d) does not match expected sequence (%d)", sequence, currentIn.Sequence)
		}
	}

	txOutsNode, err := txNode.LookupByString("TxOut")
	if err != nil {
		t.Fatalf("transaction missing TxOut: %v", err)
	}
	if txOutsNode.Length() != int64(len(tx.TxOut)) {
		t.Fatalf("transaction should have %d outputs", len(tx.TxOut))
	}
	txOutIT := txOutsNode.ListIterator()
	for !txOutIT.Done() {
		i, txOutNode, err := txOutIT.Next()
		if err != nil {
			t.Fatalf("transaction output iterator error: %v", err)
		}
		currentOut := tx.TxOut[i]

		valueNode, err := txOutNode.LookupByString("Value")
		if err != nil {
			t.Fatalf("transaction output missing Value: %v", err)
		}
		value, err := valueNode.AsInt()
		if err != nil {
			t.Fatalf("transaction output Value should be of type Int: %v", err)
		}
		if value != currentOut.Value {
			t.Errorf("transaction output value (%d) does not match expected value (%d)", value, currentOut.Value)
		}

		pkScriptNode, err := txOutNode.LookupByString("PkScript")
		if err != nil {
			t.Fatalf("transaction output missing PkScript: %v", err)
		}
		pkScript, err := pkScriptNode.AsBytes()
		if err != nil {
			t.Fatalf("transaction output PkScript should be of type Bytes: %v", err)
		}
		if !bytes.Equal(pkScript, currentOut.PkScript) {
			t.Errorf("transaction output pk script (%x) does not match expected script (%x)", pkScript, currentOut.PkScript)
		}
	}

	lockTimeNode, err := txNode.LookupByString("LockTime")
	if err != nil {
		t.Fatalf("transaction missing LockTime: %v", err)
	}
	lockTime, err := lockTimeNode.AsInt()
	if err != nil {
		t.Fatalf("transaction LockTime should be of type Int: %v", err)
	}
	if lockTime != int64(tx.LockTime) {
		t.Errorf("transaction lock time (%d) does not match expected lock time (%d)", lockTime, tx.LockTime)
	}

	commitmentCIDNode, err := txNode.LookupByString("WitnessCommitmentCID")
	if err != nil {
		t.Fatalf("transaction missing WitnessCommitmentCID: %v", err)
	}
	commitment, ok := WitnessCommitmentFromTx(tx)
	if IsCoinbaseTx(tx) && ok {
		if commitmentCIDNode.IsNull() {
			t.Fatalf("coinbase WitnessCommitmentCID should not be null")
		}
		verifyLinkDigest(t, "coinbase WitnessCommitmentCID", commitmentCIDNode, commitment)
	} else {
		if !commitmentCIDNode.IsNull() {
			t.Errorf("transaction WitnessCommitmentCID should be null")
		}
	}
}

func verifyLinkDigest(t *testing.T, field string, linkNode ipld.Node, digest []byte) {
	link, err := linkNode.AsLink()
	if err != nil {
		t.Fatalf("%s should be of type Link: %v", field, err)
	}
	cidLink, ok := link.(cidlink.Link)
	if !ok {
		t.Fatalf("%s should be a CID link", field)
	}
	dmh, err := multihash.Decode(cidLink.Hash())
	if err != nil {
		t.Fatalf("%s multihash decoding error: %v", field, err)
	}
	if !bytes.Equal(dmh.Digest, digest) {
		t.Errorf("%s digest (%x) does not match expected digest (%x)", field, dmh.Digest, digest)
	}
}
