// Package tests holds cross-package integration tests that drive the
// executor the way a block producer does: initialize a block, apply
// extrinsics through a shared overlay, seal the resulting state into the
// backend and serve proofs at the new head.
package tests

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"

	"github.com/kestrel-network/kestrel/core"
	"github.com/kestrel-network/kestrel/core/runtime"
	"github.com/kestrel-network/kestrel/core/runtime/runtimetest"
	"github.com/kestrel-network/kestrel/core/state"
	"github.com/kestrel-network/kestrel/core/types"
)

type chain struct {
	backend  *state.MemoryBackend
	executor *core.LocalExecutor
}

func newChain(t *testing.T, cfg core.Config) *chain {
	t.Helper()
	top, children := runtimetest.Genesis(runtimetest.DefaultVersion())
	backend, err := state.NewMemoryBackend(top, children)
	if err != nil {
		t.Fatalf("build backend: %v", err)
	}
	cfg.Backend = backend
	if cfg.Engine == nil {
		cfg.Engine = runtimetest.NewEngine()
	}
	executor, err := core.NewLocalExecutor(cfg)
	if err != nil {
		t.Fatalf("build executor: %v", err)
	}
	return &chain{backend: backend, executor: executor}
}

// buildBlock runs one producer round: initialize the candidate header,
// apply the extrinsics, fill in the pending state root and import the block.
func (c *chain) buildBlock(t *testing.T, extrinsics [][]byte) *types.Header {
	t.Helper()
	parent := c.backend.Head()
	header := &types.Header{
		ParentHash: parent.Hash(),
		Number:     parent.Number + 1,
	}

	overlay := state.NewOverlay()
	cache := state.NewTransactionCache()
	_, err := c.executor.ContextualCall(&core.ContextualCallParams{
		Method:  "System_header",
		Overlay: overlay,
		TxCache: cache,
		Initialize: core.InitializeBlock{
			Mode:       core.InitializeAndPushExtrinsics,
			Header:     header,
			Extrinsics: extrinsics,
		},
	})
	if err != nil {
		t.Fatalf("build block %d: %v", header.Number, err)
	}

	root, ok := cache.Root()
	if !ok {
		t.Fatalf("no pending root after block %d", header.Number)
	}
	header.StateRoot = root
	header.ExtrinsicsRoot = types.EmptyRootHash

	if err := c.backend.ImportBlock(header, overlay); err != nil {
		t.Fatalf("import block %d: %v", header.Number, err)
	}
	return header
}

func (c *chain) balanceAt(t *testing.T, at types.BlockRef, account string) uint64 {
	t.Helper()
	out, err := c.executor.Call(at, "Balance_get", []byte(account), core.InterpretedOnly, nil)
	if err != nil {
		t.Fatalf("balance of %s at %s: %v", account, at, err)
	}
	return new(uint256.Int).SetBytes(out).Uint64()
}

func TestBlockProductionRound(t *testing.T) {
	c := newChain(t, core.Config{})

	header := c.buildBlock(t, [][]byte{
		runtimetest.EncodeTransfer(runtimetest.Transfer{From: "alice", To: "bob", Amount: 100}),
		runtimetest.EncodeTransfer(runtimetest.Transfer{From: "bob", To: "alice", Amount: 25}),
	})

	if c.backend.Head().Hash() != header.Hash() {
		t.Fatalf("imported block is not the head")
	}
	if got := c.balanceAt(t, types.BlockRef{}, "alice"); got != 925 {
		t.Fatalf("alice at head = %d, want 925", got)
	}
	if got := c.balanceAt(t, types.BlockRef{}, "bob"); got != 575 {
		t.Fatalf("bob at head = %d, want 575", got)
	}

	// The parent state is untouched by the import.
	if got := c.balanceAt(t, types.NumberRef(0), "alice"); got != 1000 {
		t.Fatalf("alice at genesis = %d, want 1000", got)
	}
}

func TestChainOfBlocks(t *testing.T) {
	c := newChain(t, core.Config{Native: runtimetest.NewNative()})

	var headers []*types.Header
	for i := 0; i < 3; i++ {
		headers = append(headers, c.buildBlock(t, [][]byte{
			runtimetest.EncodeTransfer(runtimetest.Transfer{From: "alice", To: "bob", Amount: 10}),
		}))
	}

	// Every historical block stays queryable by hash and by number, and
	// the balances step down one transfer per block.
	for i, header := range headers {
		want := uint64(1000 - 10*(i+1))
		if got := c.balanceAt(t, types.HashRef(header.Hash()), "alice"); got != want {
			t.Fatalf("alice at block %d = %d, want %d", header.Number, got, want)
		}
		if got := c.balanceAt(t, types.NumberRef(header.Number), "alice"); got != want {
			t.Fatalf("alice at height %d = %d, want %d", header.Number, got, want)
		}
	}
}

func TestProofAtImportedBlock(t *testing.T) {
	c := newChain(t, core.Config{})

	header := c.buildBlock(t, [][]byte{
		runtimetest.EncodeTransfer(runtimetest.Transfer{From: "alice", To: "bob", Amount: 100}),
	})

	view, err := c.backend.StateAt(types.HashRef(header.Hash()))
	if err != nil {
		t.Fatalf("state at new head: %v", err)
	}
	output, proof, err := c.executor.ProveAtState(view, nil, "Balance_get", []byte("bob"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	// A verifier holding only the header's state root checks the read.
	proven, err := state.VerifyRead(header.StateRoot, runtimetest.BalanceKey("bob"), proof)
	if err != nil {
		t.Fatalf("verify against header root: %v", err)
	}
	if !bytes.Equal(proven, output) {
		t.Fatalf("proof yields %x, execution returned %x", proven, output)
	}
	if new(uint256.Int).SetBytes(proven).Uint64() != 600 {
		t.Fatalf("proved balance = %d, want 600", new(uint256.Int).SetBytes(proven).Uint64())
	}
}

func TestImportRejectsWrongStateRoot(t *testing.T) {
	c := newChain(t, core.Config{})

	overlay := state.NewOverlay()
	_, err := c.executor.ContextualCall(&core.ContextualCallParams{
		Method:  "Storage_set",
		Args:    runtimetest.EncodeKV([]byte("scratch"), []byte("value")),
		Overlay: overlay,
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	parent := c.backend.Head()
	header := &types.Header{
		ParentHash: parent.Hash(),
		Number:     parent.Number + 1,
		StateRoot:  types.EmptyRootHash, // wrong on purpose
	}
	if err := c.backend.ImportBlock(header, overlay); err == nil {
		t.Fatalf("import accepted a header with the wrong state root")
	}
}

func TestExecutorReadsThroughChildStorage(t *testing.T) {
	c := newChain(t, core.Config{})

	out, err := c.executor.Call(types.BlockRef{}, "Child_storage_get", []byte("alice"), core.InterpretedOnly, nil)
	if err != nil {
		t.Fatalf("child get: %v", err)
	}
	if !bytes.Equal(out, []byte{1}) {
		t.Fatalf("child storage read %v, want [1]", out)
	}

	overlay := state.NewOverlay()
	_, err = c.executor.ContextualCall(&core.ContextualCallParams{
		Method:  "Child_storage_set",
		Args:    runtimetest.EncodeKV([]byte("carol"), []byte{9}),
		Overlay: overlay,
	})
	if err != nil {
		t.Fatalf("child set: %v", err)
	}
	result, err := c.executor.ContextualCall(&core.ContextualCallParams{
		Method:  "Child_storage_get",
		Args:    []byte("carol"),
		Overlay: overlay,
	})
	if err != nil {
		t.Fatalf("child get through overlay: %v", err)
	}
	if !bytes.Equal(result.Encoded, []byte{9}) {
		t.Fatalf("pending child write invisible: %v", result.Encoded)
	}
}

func TestRuntimeUpgradeAcrossBlocks(t *testing.T) {
	c := newChain(t, core.Config{})

	upgraded := runtimetest.DefaultVersion()
	upgraded.SpecVersion++

	parent := c.backend.Head()
	header := &types.Header{ParentHash: parent.Hash(), Number: parent.Number + 1}
	overlay := state.NewOverlay()
	cache := state.NewTransactionCache()
	_, err := c.executor.ContextualCall(&core.ContextualCallParams{
		Method:  "Storage_set",
		Args:    runtimetest.EncodeKV(runtime.CodeKey, runtimetest.Code(upgraded)),
		Overlay: overlay,
		TxCache: cache,
		Initialize: core.InitializeBlock{
			Mode:   core.InitializeFromHeader,
			Header: header,
		},
	})
	if err != nil {
		t.Fatalf("upgrade call: %v", err)
	}
	root, ok := cache.Root()
	if !ok {
		t.Fatalf("no pending root")
	}
	header.StateRoot = root
	header.ExtrinsicsRoot = types.EmptyRootHash
	if err := c.backend.ImportBlock(header, overlay); err != nil {
		t.Fatalf("import upgrade block: %v", err)
	}

	// The sealed block declares the new runtime; its parent keeps the old
	// one.
	atHead, err := c.executor.RuntimeVersion(types.HashRef(header.Hash()))
	if err != nil {
		t.Fatalf("version at head: %v", err)
	}
	if atHead.SpecVersion != upgraded.SpecVersion {
		t.Fatalf("head declares spec %d, want %d", atHead.SpecVersion, upgraded.SpecVersion)
	}
	atParent, err := c.executor.RuntimeVersion(types.HashRef(parent.Hash()))
	if err != nil {
		t.Fatalf("version at parent: %v", err)
	}
	if atParent.SpecVersion != runtimetest.DefaultVersion().SpecVersion {
		t.Fatalf("parent version moved: %d", atParent.SpecVersion)
	}
}
