package dagbtc

import "github.com/pkg/errors"

// Every failure mode of the codecs wraps one of these sentinels so that
// callers can classify errors with errors.Is instead of string matching.
var (
	// ErrTypeMismatch is returned when an input node or value has the wrong
	// kind for the operation, e.g. encoding a node that is neither the map
	// form of a transaction nor the list form of a merkle node.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrMalformedEncoding is returned when binary input cannot be decoded:
	// truncation, a non-canonical compact-size varint, a segwit marker/flag
	// pair followed by no witness data, or trailing bytes past the end of a
	// transaction.
	ErrMalformedEncoding = errors.New("malformed encoding")

	// ErrStructuralInvariant is returned when otherwise well-formed data
	// violates a structural rule: a witness commitment that is not exactly
	// 64 bytes, a block with no coinbase, or a recomputed merkle root that
	// does not match its committed value.
	ErrStructuralInvariant = errors.New("structural invariant violation")
)
