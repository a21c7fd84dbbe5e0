package header

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
)

var (
	MultiCodecType = uint64(cid.BitcoinBlock)
	MultiHashType  = uint64(multihash.DBL_SHA2_256)
)

var zeroHash chainhash.Hash

func init() {
	multicodec.RegisterDecoder(MultiCodecType, Decode)
}

// Decode provides an IPLD codec decode interface for BTC header IPLDs.
// This function is registered via the go-ipld-prime link loader for multicodec
// code 0xb0 when this package is invoked via init.
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
	type Header struct {
	    Version   Int
	    ParentCID nullable &Header
	    TxRootCID &Transaction
	    Time      Int
	    Bits      Int
	    Nonce     Int
	}
*/

// DecodeBytes is like Decode, but it uses an input buffer directly.
// Decode will grab or read all the bytes from an io.Reader anyway, so this can
// save having to copy the bytes or create a bytes.Buffer.
// Only the leading 80 bytes are consumed, so whole-block binaries decode to
// their header node; anything shorter than 80 bytes is malformed.
func DecodeBytes(na ipld.NodeAssembler, src []byte) error {
	if len(src) < wire.MaxBlockHeaderPayload {
		return errors.Wrapf(dagbtc.ErrMalformedEncoding,
			"invalid DAG-BTC Header binary (expected at least %d bytes, got %d)", wire.MaxBlockHeaderPayload, len(src))
	}
	var header wire.BlockHeader
	if err := header.Deserialize(bytes.NewReader(src[:wire.MaxBlockHeaderPayload])); err != nil {
		return errors.Wrapf(dagbtc.ErrMalformedEncoding, "invalid DAG-BTC Header binary (%v)", err)
	}
	ma, err := na.BeginMap(6)
	if err != nil {
		return err
	}
	for _, upFunc := range requiredUnpackFuncs {
		if err := upFunc(ma, &header); err != nil {
			return errors.Wrapf(dagbtc.ErrTypeMismatch, "invalid DAG-BTC Header binary (%v)", err)
		}
	}
	return ma.Finish()
}

var requiredUnpackFuncs = []func(ma ipld.MapAssembler, header *wire.BlockHeader) error{
	unpackVersion,
	unpackParentCID,
	unpackTxRootCID,
	unpackTime,
	unpackBits,
	unpackNonce,
}

func unpackVersion(ma ipld.MapAssembler, header *wire.BlockHeader) error {
	if err := ma.AssembleKey().AssignString("Version"); err != nil {
		return err
	}
	return ma.AssembleValue().AssignInt(int64(header.Version))
}

func unpackParentCID(ma ipld.MapAssembler, header *wire.BlockHeader) error {
	if err := ma.AssembleKey().AssignString("ParentCID"); err != nil {
		return err
	}
	// the genesis header references no parent; its previous-block hash is all
	// zero and the link is null
	if header.PrevBlock == zeroHash {
		return ma.AssembleValue().AssignNull()
	}
	parentCID := shared.HashToCid(MultiCodecType, &header.PrevBlock)
	return ma.AssembleValue().AssignLink(cidlink.Link{Cid: parentCID})
}

func unpackTxRootCID(ma ipld.MapAssembler, header *wire.BlockHeader) error {
	txRootCID := shared.HashToCid(uint64(cid.BitcoinTx), &header.MerkleRoot)
	if err := ma.AssembleKey().AssignString("TxRootCID"); err != nil {
		return err
	}
	return ma.AssembleValue().AssignLink(cidlink.Link{Cid: txRootCID})
}

func unpackTime(ma ipld.MapAssembler, header *wire.BlockHeader) error {
	if err := ma.AssembleKey().AssignString("Time"); err != nil {
		return err
	}
	return ma.AssembleValue().AssignInt(header.Timestamp.Unix())
}

func unpackBits(ma ipld.MapAssembler, header *wire.BlockHeader) error {
	if err := ma.AssembleKey().AssignString("Bits"); err != nil {
		return err
	}
	return ma.AssembleValue().AssignInt(int64(header.Bits))
}

func unpackNonce(ma ipld.MapAssembler, header *wire.BlockHeader) error {
	if err := ma.AssembleKey().AssignString("Nonce"); err != nil {
		return err
	}
	return ma.AssembleValue().AssignInt(int64(header.Nonce))
}
