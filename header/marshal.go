package header

import (
	"io"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/multicodec"
	"github.com/pkg/errors"

	dagbtc "github.com/vulcanize/go-codec-dagbtc"
	"github.com/vulcanize/go-codec-dagbtc/shared"
)

func init() {
	multicodec.RegisterEncoder(MultiCodecType, Encode)
}

// Encode provides an IPLD codec encode interface for BTC header IPLDs.
// This function is registered via the go-ipld-prime link loader for multicodec
// code 0xb0 when this package is invoked via init.
func Encode(node ipld.Node, w io.Writer) error {
	enc, err := AppendEncode(make([]byte, 0, wire.MaxBlockHeaderPayload), node)
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

// AppendEncode is like Encode, but it uses a destination buffer directly.
// This means less copying of bytes, and if the destination has enough capacity,
// fewer allocations. The output is always exactly 80 bytes: a header node never
// serializes transaction data, whatever block it was decoded out of.
func AppendEncode(enc []byte, inNode ipld.Node) ([]byte, error) {
	header := new(wire.BlockHeader)
	if err := EncodeHeader(header, inNode); err != nil {
		return enc, err
	}
	wbs := shared.NewWriteableByteSlice(&enc)
	if err := header.Serialize(wbs); err != nil {
		return enc, errors.Wrapf(dagbtc.ErrMalformedEncoding, "invalid DAG-BTC Header form (unable to serialize header: %v)", err)
	}
	return enc, nil
}

// EncodeHeader packs the node into the provided btcd BlockHeader
func EncodeHeader(header *wire.BlockHeader, inNode ipld.Node) error {
	// Wrap in a typed node for some basic schema form checking
	builder := dagbtc.Type.Header.NewBuilder()
	if err := builder.AssignNode(inNode); err != nil {
		return errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Header form (%v)", err)
	}
	node := builder.Build()
	for _, pFunc := range requiredPackFuncs {
		if err := pFunc(header, node); err != nil {
			return errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Header form (%v)", err)
		}
	}
	return nil
}

var requiredPackFuncs = []func(*wire.BlockHeader, ipld.Node) error{
	packVersion,
	packParentCID,
	packTxRootCID,
	packTime,
	packBits,
	packNonce,
}

func packVersion(header *wire.BlockHeader, node ipld.Node) error {
	v, err := node.LookupByString("Version")
	if err != nil {
		return err
	}
	version, err := v.AsInt()
	if err != nil {
		return err
	}
	header.Version = int32(version)
	return nil
}

func packParentCID(header *wire.BlockHeader, node ipld.Node) error {
	parentCID, err := node.LookupByString("ParentCID")
	if err != nil {
		return err
	}
	if parentCID.IsNull() {
		// null parent round-trips to the all-zero previous-block hash
		return nil
	}
	digest, err := shared.DigestFromLink(parentCID)
	if err != nil {
		return errors.Errorf("unable to unpack ParentCID (%v)", err)
	}
	copy(header.PrevBlock[:], digest)
	return nil
}

func packTxRootCID(header *wire.BlockHeader, node ipld.Node) error {
	txRootCID, err := node.LookupByString("TxRootCID")
	if err != nil {
		return err
	}
	digest, err := shared.DigestFromLink(txRootCID)
	if err != nil {
		return errors.Errorf("unable to unpack TxRootCID (%v)", err)
	}
	copy(header.MerkleRoot[:], digest)
	return nil
}

func packTime(header *wire.BlockHeader, node ipld.Node) error {
	t, err := node.LookupByString("Time")
	if err != nil {
		return err
	}
	timestamp, err := t.AsInt()
	if err != nil {
		return err
	}
	header.Timestamp = time.Unix(timestamp, 0)
	return nil
}

func packBits(header *wire.BlockHeader, node ipld.Node) error {
	b, err := node.LookupByString("Bits")
	if err != nil {
		return err
	}
	bits, err := b.AsInt()
	if err != nil {
		return err
	}
	header.Bits = uint32(bits)
	return nil
}

func packNonce(header *wire.BlockHeader, node ipld.Node) error {
	n, err := node.LookupByString("Nonce")
	if err != nil {
		return err
	}
	nonce, err := n.AsInt()
	if err != nil {
		return err
	}
	header.Nonce = uint32(nonce)
	return nil
}
