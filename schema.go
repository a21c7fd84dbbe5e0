package dagbtc

import (
	"fmt"

	"github.com/ipld/go-ipld-prime/node/bindnode"
	"github.com/ipld/go-ipld-prime/schema"
)

// TypeSystem holds the DAG-BTC IPLD schema. It is accumulated at init and
// validated once; bindnode supplies the typed prototypes in the Type slab.
var TypeSystem schema.TypeSystem

// Type exposes a typed prototype for every type in the DAG-BTC schema. Use
// these (e.g. dagbtc.Type.Transaction) for strictness guarantees when
// building nodes to encode. Basic ipld.Nodes will need to have the
// appropriate fields (and no others) to successfully encode.
var Type struct {
	Header       schema.TypedPrototype
	OutPoint     schema.TypedPrototype
	TxIn         schema.TypedPrototype
	TxOut        schema.TypedPrototype
	WitnessStack schema.TypedPrototype
	Transaction  schema.TypedPrototype
	TxMerkleNode schema.TypedPrototype
}

func init() {
	TypeSystem.Init()
	accumulateBasicTypes(&TypeSystem)
	accumulateChainTypes(&TypeSystem)
	if errs := TypeSystem.ValidateGraph(); errs != nil {
		panic(fmt.Sprintf("invalid DAG-BTC schema: %v", errs))
	}
	Type.Header = prototype("Header")
	Type.OutPoint = prototype("OutPoint")
	Type.TxIn = prototype("TxIn")
	Type.TxOut = prototype("TxOut")
	Type.WitnessStack = prototype("WitnessStack")
	Type.Transaction = prototype("Transaction")
	Type.TxMerkleNode = prototype("TxMerkleNode")
}

func prototype(name string) schema.TypedPrototype {
	return bindnode.Prototype(nil, TypeSystem.TypeByName(name))
}

func accumulateBasicTypes(ts *schema.TypeSystem) {
	ts.Accumulate(schema.SpawnString("String"))
	ts.Accumulate(schema.SpawnInt("Int"))
	ts.Accumulate(schema.SpawnBool("Bool"))
	ts.Accumulate(schema.SpawnLink("Link"))
	ts.Accumulate(schema.SpawnBytes("Bytes"))

	ts.Accumulate(schema.SpawnBytes("Hash"))
	ts.Accumulate(schema.SpawnBytes("Script"))
}

func accumulateChainTypes(ts *schema.TypeSystem) {
	/*
		type Header struct {
		    Version   Int
		    ParentCID nullable &Header # null when the previous-block hash is all zero (genesis)
		    TxRootCID &Transaction     # merkle root node
		    Time      Int
		    Bits      Int
		    Nonce     Int
		}
	*/
	ts.Accumulate(schema.SpawnStruct("Header",
		[]schema.StructField{
			schema.SpawnStructField("Version", "Int", false, false),
			schema.SpawnStructField("ParentCID", "Link", false, true),
			schema.SpawnStructField("TxRootCID", "Link", false, false),
			schema.SpawnStructField("Time", "Int", false, false),
			schema.SpawnStructField("Bits", "Int", false, false),
			schema.SpawnStructField("Nonce", "Int", false, false),
		},
		schema.SpawnStructRepresentationMap(nil),
	))

	/*
		type OutPoint struct {
		    TxCID nullable &Transaction # null when the referenced txid is all zero (coinbase input)
		    Index Int
		}

		type WitnessStack [Bytes]

		type TxIn struct {
		    PreviousOutPoint OutPoint
		    SignatureScript  Script
		    Witness          nullable WitnessStack # null when the transaction is not segwit-tagged
		    Sequence         Int
		}

		type TxOut struct {
		    Value    Int
		    PkScript Script
		}

		type Transaction struct {
		    Version              Int
		    SegWit               Bool # true when the wire form carries the marker/flag pair
		    TxIn                 TxInList
		    TxOut                TxOutList
		    LockTime             Int
		    WitnessCommitmentCID nullable Link # derived from a coinbase's BIP141 commitment output
		}
	*/
	ts.Accumulate(schema.SpawnStruct("OutPoint",
		[]schema.StructField{
			schema.SpawnStructField("TxCID", "Link", false, true),
			schema.SpawnStructField("Index", "Int", false, false),
		},
		schema.SpawnStructRepresentationMap(nil),
	))
	ts.Accumulate(schema.SpawnList("WitnessStack", "Bytes", false))
	ts.Accumulate(schema.SpawnStruct("TxIn",
		[]schema.StructField{
			schema.SpawnStructField("PreviousOutPoint", "OutPoint", false, false),
			schema.SpawnStructField("SignatureScript", "Script", false, false),
			schema.SpawnStructField("Witness", "WitnessStack", false, true),
			schema.SpawnStructField("Sequence", "Int", false, false),
		},
		schema.SpawnStructRepresentationMap(nil),
	))
	ts.Accumulate(schema.SpawnStruct("TxOut",
		[]schema.StructField{
			schema.SpawnStructField("Value", "Int", false, false),
			schema.SpawnStructField("PkScript", "Script", false, false),
		},
		schema.SpawnStructRepresentationMap(nil),
	))
	ts.Accumulate(schema.SpawnList("TxInList", "TxIn", false))
	ts.Accumulate(schema.SpawnList("TxOutList", "TxOut", false))
	ts.Accumulate(schema.SpawnStruct("Transaction",
		[]schema.StructField{
			schema.SpawnStructField("Version", "Int", false, false),
			schema.SpawnStructField("SegWit", "Bool", false, false),
			schema.SpawnStructField("TxIn", "TxInList", false, false),
			schema.SpawnStructField("TxOut", "TxOutList", false, false),
			schema.SpawnStructField("LockTime", "Int", false, false),
			schema.SpawnStructField("WitnessCommitmentCID", "Link", false, true),
		},
		schema.SpawnStructRepresentationMap(nil),
	))

	/*
		type TxMerkleNode [nullable &Transaction]

		Interior nodes of the transaction merkle tree: exactly two links. The
		right link is null when it duplicates the left (odd-row duplication).
	*/
	ts.Accumulate(schema.SpawnList("TxMerkleNode", "Link", true))
}
