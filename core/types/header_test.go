package types

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestHeaderEncodeDecode(t *testing.T) {
	h := &Header{
		ParentHash:     common.HexToHash("0x01"),
		Number:         42,
		StateRoot:      common.HexToHash("0x02"),
		ExtrinsicsRoot: EmptyRootHash,
		Digest:         [][]byte{[]byte("seal"), {}},
	}
	enc, err := h.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := DecodeHeader(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.ParentHash != h.ParentHash || dec.Number != h.Number ||
		dec.StateRoot != h.StateRoot || dec.ExtrinsicsRoot != h.ExtrinsicsRoot {
		t.Fatalf("decoded header differs: %+v", dec)
	}
	if len(dec.Digest) != 2 || !bytes.Equal(dec.Digest[0], []byte("seal")) {
		t.Fatalf("digest mangled: %v", dec.Digest)
	}
	if dec.Hash() != h.Hash() {
		t.Fatalf("hash changed across the codec round trip")
	}

	if _, err := DecodeHeader([]byte{0xff, 0xff}); err == nil {
		t.Fatalf("garbage must not decode")
	}
}

func TestHeaderHashCoversEveryField(t *testing.T) {
	base := &Header{ParentHash: common.HexToHash("0xaa"), Number: 7}
	mutations := []func(*Header){
		func(h *Header) { h.ParentHash = common.HexToHash("0xbb") },
		func(h *Header) { h.Number++ },
		func(h *Header) { h.StateRoot = common.HexToHash("0xcc") },
		func(h *Header) { h.ExtrinsicsRoot = common.HexToHash("0xdd") },
		func(h *Header) { h.Digest = append(h.Digest, []byte{1}) },
	}
	for i, mutate := range mutations {
		mutated := base.Copy()
		mutate(mutated)
		if mutated.Hash() == base.Hash() {
			t.Fatalf("mutation %d did not change the header hash", i)
		}
	}
}

func TestHeaderCopyIsDeep(t *testing.T) {
	h := &Header{Number: 1, Digest: [][]byte{[]byte("item")}}
	cpy := h.Copy()
	cpy.Digest[0][0] = 'X'
	cpy.Number = 2
	if h.Digest[0][0] != 'i' || h.Number != 1 {
		t.Fatalf("copy shares memory with the original")
	}
}

func TestBlockRefForms(t *testing.T) {
	var head BlockRef
	if !head.IsHead() {
		t.Fatalf("zero value must reference the head")
	}
	if _, ok := head.Hash(); ok {
		t.Fatalf("head ref must not carry a hash")
	}

	byHash := HashRef(common.HexToHash("0x0a"))
	if h, ok := byHash.Hash(); !ok || h != common.HexToHash("0x0a") {
		t.Fatalf("hash ref lost its hash")
	}
	if byHash.IsHead() {
		t.Fatalf("hash ref reported as head")
	}

	byNumber := NumberRef(9)
	if n, ok := byNumber.Number(); !ok || n != 9 {
		t.Fatalf("number ref lost its height")
	}
	if byNumber.String() != "number(9)" {
		t.Fatalf("unexpected ref string %q", byNumber.String())
	}
}
