/*
Package dagbtc provides a Go implementation of the IPLD DAG-BTC spec
(https://github.com/ipld/ipld/tree/master/specs/codecs/bitcoin) for
go-ipld-prime (https://github.com/ipld/go-ipld-prime/).

Use the Decode() and Encode() functions directly, or import one of the packages
to have their codec registered into the go-ipld-prime multicodec registry and
available from the cidlink.DefaultLinkSystem.

Nodes encoded with these codecs _must_ conform to the DAG-BTC spec.
Specifically, they should have the non-optional fields shown in the DAG-BTC
[schemas](https://github.com/ipld/ipld/tree/master/specs/codecs/bitcoin):

Use the dagbtc.Type slab to select the appropriate type (e.g. dagbtc.Type.Transaction) for strictness guarantees.
Basic ipld.Nodes will need to have the appropriate fields (and no others) to successfully encode using this codec.
*/
package dagbtc
