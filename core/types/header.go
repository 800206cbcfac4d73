package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// EmptyRootHash is the root of an empty merkle trie.
var EmptyRootHash = common.HexToHash("0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

// Header describes a ledger block header. Digest items are opaque to this
// layer; consensus owns their interpretation.
type Header struct {
	ParentHash     common.Hash `json:"parentHash"`
	Number         uint64      `json:"number"`
	StateRoot      common.Hash `json:"stateRoot"`
	ExtrinsicsRoot common.Hash `json:"extrinsicsRoot"`
	Digest         [][]byte    `json:"digest"`
}

// Hash returns the keccak256 hash of the RLP encoded header.
func (h *Header) Hash() common.Hash {
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		// Header contains no unencodable field types; this is unreachable.
		panic(err)
	}
	return crypto.Keccak256Hash(enc)
}

// Encode returns the canonical RLP encoding of the header.
func (h *Header) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(h)
}

// DecodeHeader decodes an RLP encoded header.
func DecodeHeader(data []byte) (*Header, error) {
	h := new(Header)
	if err := rlp.DecodeBytes(data, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Copy returns a deep copy of the header.
func (h *Header) Copy() *Header {
	cpy := *h
	cpy.Digest = make([][]byte, len(h.Digest))
	for i, item := range h.Digest {
		cpy.Digest[i] = append([]byte(nil), item...)
	}
	return &cpy
}
