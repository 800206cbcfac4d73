package state

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/trie"
)

// StorageProof is an ordered, deduplicated set of serialized trie nodes
// sufficient to re-verify every value read during a recorded execution
// against a known state root. It is immutable once returned by a recorder.
type StorageProof struct {
	nodes [][]byte
}

// NewStorageProof builds a proof from raw trie nodes, dropping duplicates.
// The node order of first appearance is preserved.
func NewStorageProof(nodes [][]byte) *StorageProof {
	p := &StorageProof{}
	seen := make(map[common.Hash]struct{}, len(nodes))
	for _, node := range nodes {
		h := crypto.Keccak256Hash(node)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		p.nodes = append(p.nodes, append([]byte(nil), node...))
	}
	return p
}

// Nodes returns the proof's trie nodes. The caller must not mutate them.
func (p *StorageProof) Nodes() [][]byte {
	return p.nodes
}

// Len returns the number of nodes in the proof.
func (p *StorageProof) Len() int {
	return len(p.nodes)
}

// Size returns the aggregate byte size of all proof nodes.
func (p *StorageProof) Size() int {
	total := 0
	for _, node := range p.nodes {
		total += len(node)
	}
	return total
}

// proofDB indexes proof nodes by hash so they can serve as the node source
// during verification. It implements ethdb.KeyValueReader.
type proofDB struct {
	nodes map[common.Hash][]byte
}

func (p *StorageProof) reader() *proofDB {
	db := &proofDB{nodes: make(map[common.Hash][]byte, len(p.nodes))}
	for _, node := range p.nodes {
		db.nodes[crypto.Keccak256Hash(node)] = node
	}
	return db
}

func (db *proofDB) Has(key []byte) (bool, error) {
	_, ok := db.nodes[common.BytesToHash(key)]
	return ok, nil
}

func (db *proofDB) Get(key []byte) ([]byte, error) {
	node, ok := db.nodes[common.BytesToHash(key)]
	if !ok {
		return nil, errors.New("proof node not found")
	}
	return node, nil
}

// VerifyRead checks that the proof is consistent with root for the given key
// and returns the proven value (nil for a proven absence). This is the
// verifier side of the proof contract; the executor itself only produces
// proofs.
func VerifyRead(root common.Hash, key []byte, proof *StorageProof) ([]byte, error) {
	return trie.VerifyProof(root, key, proof.reader())
}

// ProofRecorder accumulates the trie nodes visited while a call executes.
// It implements ethdb.KeyValueWriter so trie traversal can stream nodes into
// it directly; insertion is idempotent per node hash. A recorder may be
// shared by the main trie and any child tries touched by the same call.
type ProofRecorder struct {
	mu    sync.Mutex
	seen  map[common.Hash]struct{}
	nodes [][]byte
}

// NewProofRecorder returns an empty recorder.
func NewProofRecorder() *ProofRecorder {
	return &ProofRecorder{seen: make(map[common.Hash]struct{})}
}

// Put records one serialized trie node keyed by its hash. A node recorded
// twice contributes once.
func (r *ProofRecorder) Put(key, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := common.BytesToHash(key)
	if _, ok := r.seen[h]; ok {
		return nil
	}
	r.seen[h] = struct{}{}
	r.nodes = append(r.nodes, append([]byte(nil), value...))
	return nil
}

// Delete is required by ethdb.KeyValueWriter but never used by proof
// traversal.
func (r *ProofRecorder) Delete(key []byte) error {
	return errors.New("proof recorder is append-only")
}

// Len returns the number of distinct nodes recorded so far.
func (r *ProofRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// Proof returns a snapshot of the recorded node set.
func (r *ProofRecorder) Proof() *StorageProof {
	r.mu.Lock()
	defer r.mu.Unlock()

	nodes := make([][]byte, len(r.nodes))
	copy(nodes, r.nodes)
	return &StorageProof{nodes: nodes}
}
