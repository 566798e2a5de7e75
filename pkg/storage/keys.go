package storage

import "fmt"

// Key schema:
//
//	book:<instrument>  → JSON BookRecord (resting orders in priority order)
//	meta:seq           → 8-byte big-endian last issued order sequence
const (
	prefixBook = "book:"
	keySeq     = "meta:seq"
)

// bookKey returns the key for one instrument's resting orders
func bookKey(instrument string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixBook, instrument))
}

func seqKey() []byte { return []byte(keySeq) }

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
