package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// BlockRef identifies a ledger point either by header hash or by number. The
// zero value references the canonical head. It is an opaque lookup key only;
// resolution to a state snapshot is the backend's job.
type BlockRef struct {
	hash   *common.Hash
	number *uint64
}

// HashRef returns a reference that selects the block with the given hash.
func HashRef(h common.Hash) BlockRef {
	return BlockRef{hash: &h}
}

// NumberRef returns a reference that selects the canonical block at the given
// height.
func NumberRef(n uint64) BlockRef {
	return BlockRef{number: &n}
}

// Hash returns the referenced hash, if the reference is by hash.
func (r BlockRef) Hash() (common.Hash, bool) {
	if r.hash == nil {
		return common.Hash{}, false
	}
	return *r.hash, true
}

// Number returns the referenced height, if the reference is by number.
func (r BlockRef) Number() (uint64, bool) {
	if r.number == nil {
		return 0, false
	}
	return *r.number, true
}

// IsHead reports whether the reference selects the canonical head.
func (r BlockRef) IsHead() bool {
	return r.hash == nil && r.number == nil
}

func (r BlockRef) String() string {
	switch {
	case r.hash != nil:
		return fmt.Sprintf("hash(%s)", r.hash.Hex())
	case r.number != nil:
		return fmt.Sprintf("number(%d)", *r.number)
	default:
		return "head"
	}
}
