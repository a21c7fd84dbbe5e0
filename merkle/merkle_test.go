package merkle_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"

	dagbtc "github.com/vulcanize/go-codec-dagbtc"
	"github.com/vulcanize/go-codec-dagbtc/merkle"
	"github.com/vulcanize/go-codec-dagbtc/shared"
)

var (
	// block 170's two txids and the merkle root its header commits to
	block170CbTxID, _ = chainhash.NewHashFromStr("b1fea52486ce0c62bb442b530a3f0132b826c74e473d1f2c220bfa78111c5082")
	block170TxID, _   = chainhash.NewHashFromStr("f4184fc596403b9d638783cf57adfe4c75c605f6356fbc91338530e9831e9e16")
	block170TxRoot, _ = chainhash.NewHashFromStr("7dac2c5666815c17a3b36427de37bb9d2e2c5ccec3f8633eb91a4205cb4c10ff")
)

func TestSingleLeafTree(t *testing.T) {
	leaf := shared.RandomHash()
	it, err := merkle.Iterate([]chainhash.Hash{leaf}, false)
	if err != nil {
		t.Fatalf("unable to iterate single-leaf tree: %v", err)
	}
	node, err := it.Next()
	if err != nil {
		t.Fatalf("unable to emit single-leaf tree node: %v", err)
	}
	if node.Digest != leaf {
		t.Errorf("single-leaf node digest: got %v, want %v", spew.Sprint(node.Digest), spew.Sprint(leaf))
	}
	if node.Binary != nil {
		t.Errorf("leaf node should carry a nil binary, got %v", spew.Sdump(node.Binary))
	}
	if !it.Done() {
		t.Fatalf("single-leaf iterator should be done after one node")
	}
	if it.Root() != leaf {
		t.Errorf("single-leaf root: got %v, want %v", spew.Sprint(it.Root()), spew.Sprint(leaf))
	}
	if _, err := it.Next(); err == nil {
		t.Errorf("expected Next on an exhausted iterator to fail")
	}

	root, err := merkle.Root([]chainhash.Hash{leaf}, false)
	if err != nil {
		t.Fatalf("unable to compute single-leaf root: %v", err)
	}
	if root != leaf {
		t.Errorf("single-leaf root: got %v, want %v", spew.Sprint(root), spew.Sprint(leaf))
	}
}

func TestBlock170Tree(t *testing.T) {
	leaves := []chainhash.Hash{*block170CbTxID, *block170TxID}
	it, err := merkle.Iterate(leaves, false)
	if err != nil {
		t.Fatalf("unable to iterate block 170 tree: %v", err)
	}
	var nodes []merkle.Node
	for !it.Done() {
		node, err := it.Next()
		if err != nil {
			t.Fatalf("unable to emit block 170 tree node: %v", err)
		}
		nodes = append(nodes, node)
	}
	if len(nodes) != merkle.NodeCount(len(leaves)) {
		t.Fatalf("block 170 tree emitted %d nodes, want %d", len(nodes), merkle.NodeCount(len(leaves)))
	}
	for i, leaf := range leaves {
		if nodes[i].Digest != leaf {
			t.Errorf("leaf %d digest: got %v, want %v", i, spew.Sprint(nodes[i].Digest), spew.Sprint(leaf))
		}
		if nodes[i].Binary != nil {
			t.Errorf("leaf %d should carry a nil binary", i)
		}
	}
	rootNode := nodes[2]
	expectedBinary := make([]byte, 0, chainhash.HashSize*2)
	expectedBinary = append(expectedBinary, block170CbTxID[:]...)
	expectedBinary = append(expectedBinary, block170TxID[:]...)
	if !bytes.Equal(rootNode.Binary, expectedBinary) {
		t.Errorf("root node binary: got %x, want %x", rootNode.Binary, expectedBinary)
	}
	if rootNode.Digest != *block170TxRoot {
		t.Errorf("block 170 root: got %v, want %v", spew.Sprint(rootNode.Digest), spew.Sprint(*block170TxRoot))
	}
	if it.Root() != *block170TxRoot {
		t.Errorf("block 170 iterator root: got %v, want %v", spew.Sprint(it.Root()), spew.Sprint(*block170TxRoot))
	}
}

// TestOddRowDuplication recomputes a three-leaf tree by hand: the odd row
// pairs its last digest with itself
func TestOddRowDuplication(t *testing.T) {
	leaves := []chainhash.Hash{shared.RandomHash(), shared.RandomHash(), shared.RandomHash()}
	left := chainhash.DoubleHashH(append(append([]byte{}, leaves[0][:]...), leaves[1][:]...))
	right := chainhash.DoubleHashH(append(append([]byte{}, leaves[2][:]...), leaves[2][:]...))
	expectedRoot := chainhash.DoubleHashH(append(append([]byte{}, left[:]...), right[:]...))

	it, err := merkle.Iterate(leaves, false)
	if err != nil {
		t.Fatalf("unable to iterate three-leaf tree: %v", err)
	}
	var nodes []merkle.Node
	for !it.Done() {
		node, err := it.Next()
		if err != nil {
			t.Fatalf("unable to emit three-leaf tree node: %v", err)
		}
		nodes = append(nodes, node)
	}
	if len(nodes) != merkle.NodeCount(3) {
		t.Fatalf("three-leaf tree emitted %d nodes, want %d", len(nodes), merkle.NodeCount(3))
	}
	if nodes[3].Digest != left {
		t.Errorf("first interior digest: got %v, want %v", spew.Sprint(nodes[3].Digest), spew.Sprint(left))
	}
	if nodes[4].Digest != right {
		t.Errorf("duplicated-pair digest: got %v, want %v", spew.Sprint(nodes[4].Digest), spew.Sprint(right))
	}
	if it.Root() != expectedRoot {
		t.Errorf("three-leaf root: got %v, want %v", spew.Sprint(it.Root()), spew.Sprint(expectedRoot))
	}
}

func TestNodeCount(t *testing.T) {
	if merkle.NodeCount(0) != 0 {
		t.Errorf("node count over zero leaves should be zero")
	}
	for n := 1; n <= 9; n++ {
		leaves := make([]chainhash.Hash, n)
		for i := range leaves {
			leaves[i] = shared.RandomHash()
		}
		it, err := merkle.Iterate(leaves, false)
		if err != nil {
			t.Fatalf("unable to iterate %d-leaf tree: %v", n, err)
		}
		emitted := 0
		for !it.Done() {
			if _, err := it.Next(); err != nil {
				t.Fatalf("unable to emit node of %d-leaf tree: %v", n, err)
			}
			emitted++
		}
		if emitted != merkle.NodeCount(n) {
			t.Errorf("%d-leaf tree emitted %d nodes, want %d", n, emitted, merkle.NodeCount(n))
		}
	}
}

func TestZeroFirstLeaf(t *testing.T) {
	leaves := []chainhash.Hash{shared.RandomHash(), shared.RandomHash()}
	root, err := merkle.Root(leaves, false)
	if err != nil {
		t.Fatalf("unable to compute root: %v", err)
	}
	zeroRoot, err := merkle.Root(leaves, true)
	if err != nil {
		t.Fatalf("unable to compute zero-first root: %v", err)
	}
	if zeroRoot == root {
		t.Errorf("zeroing the first leaf should change the root")
	}
	var zeroLeaf chainhash.Hash
	expectedZeroRoot := chainhash.DoubleHashH(append(append([]byte{}, zeroLeaf[:]...), leaves[1][:]...))
	if zeroRoot != expectedZeroRoot {
		t.Errorf("zero-first root: got %v, want %v", spew.Sprint(zeroRoot), spew.Sprint(expectedZeroRoot))
	}

	// the first leaf is still emitted with its original digest
	it, err := merkle.Iterate(leaves, true)
	if err != nil {
		t.Fatalf("unable to iterate zero-first tree: %v", err)
	}
	node, err := it.Next()
	if err != nil {
		t.Fatalf("unable to emit zero-first tree node: %v", err)
	}
	if node.Digest != leaves[0] {
		t.Errorf("zero-first leaf emission: got %v, want the original digest %v", spew.Sprint(node.Digest), spew.Sprint(leaves[0]))
	}

	// a single zeroed leaf is its own root
	singleZeroRoot, err := merkle.Root(leaves[:1], true)
	if err != nil {
		t.Fatalf("unable to compute single-leaf zero-first root: %v", err)
	}
	if singleZeroRoot != zeroLeaf {
		t.Errorf("single-leaf zero-first root: got %v, want %v", spew.Sprint(singleZeroRoot), spew.Sprint(zeroLeaf))
	}
}

func TestIterateNoLeaves(t *testing.T) {
	_, err := merkle.Iterate(nil, false)
	if err == nil {
		t.Fatalf("expected iterating an empty leaf set to fail")
	}
	if !errors.Is(err, dagbtc.ErrStructuralInvariant) {
		t.Errorf("iterating an empty leaf set returned %v, expected it to wrap %v", err, dagbtc.ErrStructuralInvariant)
	}
}

func TestIterationDeterminism(t *testing.T) {
	leaves := make([]chainhash.Hash, 5)
	for i := range leaves {
		leaves[i] = shared.RandomHash()
	}
	first, err := drain(leaves)
	if err != nil {
		t.Fatalf("unable to drain iterator: %v", err)
	}
	second, err := drain(leaves)
	if err != nil {
		t.Fatalf("unable to drain iterator: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("iterations emitted %d and %d nodes over the same leaves", len(first), len(second))
	}
	for i := range first {
		if first[i].Digest != second[i].Digest {
			t.Errorf("node %d digest differs across iterations: %v vs %v", i, spew.Sprint(first[i].Digest), spew.Sprint(second[i].Digest))
		}
		if !bytes.Equal(first[i].Binary, second[i].Binary) {
			t.Errorf("node %d binary differs across iterations: %x vs %x", i, first[i].Binary, second[i].Binary)
		}
	}
}

func drain(leaves []chainhash.Hash) ([]merkle.Node, error) {
	it, err := merkle.Iterate(leaves, false)
	if err != nil {
		return nil, err
	}
	var nodes []merkle.Node
	for !it.Done() {
		node, err := it.Next()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
