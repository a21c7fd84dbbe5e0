// Package merkle builds the transaction merkle tree over a block's txids (or
// wtxids), emitting every node lazily from the leaves up to the root. The
// 64-byte interior binaries it yields are valid DAG-BTC transaction-codec
// payloads, so a block's whole tree can be persisted as IPLD blocks addressed
// by codec 0xb1 CIDs.
package merkle

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"

	dagbtc "github.com/vulcanize/go-codec-dagbtc"
)

// Node is one element of the tree. Interior nodes carry the left||right
// concatenation they were hashed from; leaves carry a nil Binary since their
// content is the transaction itself.
type Node struct {
	Digest chainhash.Hash
	Binary []byte
}

// Iterator yields a tree's nodes one at a time: the leaves first, in order,
// then each interior level bottom-up, ending with the root. State is a pair
// of digest rows and two cursors; independent iterators never share state, so
// they are safe for concurrent use.
type Iterator struct {
	leaves  []chainhash.Hash // emitted as given, even when the working row zeroes leaf 0
	level   []chainhash.Hash // row currently being paired
	next    []chainhash.Hash // row accumulated for the level above
	leafIdx int
	pos     int
	root    chainhash.Hash
	done    bool
}

// Iterate returns an iterator over the tree built from the given leaf
// digests. With zeroFirst the first leaf is replaced by 32 zero bytes for
// interior computation, the BIP141 witness-root rule for the coinbase; the
// leaf itself is still emitted with its original digest. A tree needs at
// least one leaf.
func Iterate(leaves []chainhash.Hash, zeroFirst bool) (*Iterator, error) {
	if len(leaves) == 0 {
		return nil, errors.Wrap(dagbtc.ErrStructuralInvariant, "merkle tree requires at least one leaf")
	}
	level := make([]chainhash.Hash, len(leaves))
	copy(level, leaves)
	if zeroFirst {
		level[0] = chainhash.Hash{}
	}
	return &Iterator{leaves: leaves, level: level}, nil
}

// Done reports whether every node of the tree has been emitted.
func (it *Iterator) Done() bool {
	return it.done
}

// Root returns the digest of the tree's top node; it is meaningful once Done
// reports true. For a single-leaf tree no interior node is synthesized and
// the root is the (possibly zeroed) leaf itself.
func (it *Iterator) Root() chainhash.Hash {
	return it.root
}

// Next emits the next node of the tree. Interior digests are the double
// sha2-256 of the 64-byte concatenation of their children; a row of odd
// width pairs its last digest with itself.
func (it *Iterator) Next() (Node, error) {
	if it.done {
		return Node{}, errors.New("merkle iterator is exhausted")
	}
	if it.leafIdx < len(it.leaves) {
		node := Node{Digest: it.leaves[it.leafIdx]}
		it.leafIdx++
		if it.leafIdx == len(it.leaves) && len(it.level) == 1 {
			it.root = it.level[0]
			it.done = true
		}
		return node, nil
	}
	left := it.level[2*it.pos]
	right := left
	if 2*it.pos+1 < len(it.level) {
		right = it.level[2*it.pos+1]
	}
	binary := make([]byte, 0, chainhash.HashSize*2)
	binary = append(binary, left[:]...)
	binary = append(binary, right[:]...)
	digest := chainhash.DoubleHashH(binary)
	it.next = append(it.next, digest)
	it.pos++
	if 2*it.pos >= len(it.level) {
		it.level = it.next
		it.next = nil
		it.pos = 0
		if len(it.level) == 1 {
			it.root = it.level[0]
			it.done = true
		}
	}
	return Node{Digest: digest, Binary: binary}, nil
}

// Root drains an iterator over the given leaves and returns the tree's root
// digest.
func Root(leaves []chainhash.Hash, zeroFirst bool) (chainhash.Hash, error) {
	it, err := Iterate(leaves, zeroFirst)
	if err != nil {
		return chainhash.Hash{}, err
	}
	for !it.Done() {
		if _, err := it.Next(); err != nil {
			return chainhash.Hash{}, err
		}
	}
	return it.Root(), nil
}

// NodeCount returns the total number of nodes in a tree over leafCount
// leaves: the leaves themselves plus every interior row of ceil-halved width
// down to the root.
func NodeCount(leafCount int) int {
	if leafCount <= 0 {
		return 0
	}
	count := leafCount
	for width := leafCount; width > 1; width = (width + 1) / 2 {
		count += (width + 1) / 2
	}
	return count
}
