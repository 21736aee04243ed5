package ledger

import (
	"crypto/sha256"
	"fmt"

	"github.com/veritasvote/veritas-node/types"
)

// tree is an append-only incremental Merkle tree. Its depth grows with the
// leaf count and a node without a right sibling is carried up unhashed, so
// the tree never pads with empty leaves and the root over n leaves is
// independent of any fixed capacity.
//
// All levels are kept in memory. The tree is rebuilt from the leaf stream
// on startup, which keeps the persisted state to the leaves alone.
type tree struct {
	levels [][]types.HexBytes
}

func newTree() *tree {
	return &tree{levels: [][]types.HexBytes{nil}}
}

// size returns the number of leaves.
func (t *tree) size() uint64 {
	return uint64(len(t.levels[0]))
}

// root returns the current root, or nil for an empty tree.
func (t *tree) root() types.HexBytes {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return nil
	}
	return top[0]
}

func hashNode(left, right types.HexBytes) types.HexBytes {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// insert appends a leaf hash and recomputes the path to the root. Only the
// inserted leaf's path changes; earlier carried-up nodes get replaced by
// real hashes exactly when their sibling appears.
func (t *tree) insert(leafHash types.HexBytes) types.HexBytes {
	t.levels[0] = append(t.levels[0], leafHash)

	level := 0
	index := len(t.levels[0]) - 1
	for len(t.levels[level]) > 1 {
		left := index - index%2
		var parent types.HexBytes
		if left+1 < len(t.levels[level]) {
			parent = hashNode(t.levels[level][left], t.levels[level][left+1])
		} else {
			// odd node out, carry it up
			parent = t.levels[level][left]
		}
		if level+1 == len(t.levels) {
			t.levels = append(t.levels, nil)
		}
		parentIndex := left / 2
		if parentIndex < len(t.levels[level+1]) {
			t.levels[level+1][parentIndex] = parent
		} else {
			t.levels[level+1] = append(t.levels[level+1], parent)
		}
		index = parentIndex
		level++
	}
	return t.root()
}

// InclusionProof proves that a leaf sits at a position under a root. Index
// packs the left/right direction bits of the levels that contributed a
// sibling: bit i tells whether the running node is the right child when
// Siblings[i] is applied. Levels where the node was carried up contribute
// neither a sibling nor a bit.
type InclusionProof struct {
	Root     types.HexBytes   `json:"root"`
	Leaf     types.HexBytes   `json:"leaf"`
	Position uint64           `json:"position"`
	Index    uint64           `json:"index"`
	Siblings []types.HexBytes `json:"siblings"`
}

// prove builds the inclusion proof for the leaf at the given position
// against the current root.
func (t *tree) prove(position uint64) (*InclusionProof, error) {
	if position >= t.size() {
		return nil, fmt.Errorf("position %d out of range, tree has %d leaves", position, t.size())
	}
	proof := &InclusionProof{
		Root:     t.root(),
		Leaf:     t.levels[0][position],
		Position: position,
	}
	index := int(position)
	bit := 0
	for level := 0; level < len(t.levels)-1; level++ {
		isRight := index % 2
		siblingIndex := index + 1
		if isRight == 1 {
			siblingIndex = index - 1
		}
		if siblingIndex < len(t.levels[level]) {
			proof.Siblings = append(proof.Siblings, t.levels[level][siblingIndex])
			proof.Index |= uint64(isRight) << bit
			bit++
		}
		index /= 2
	}
	return proof, nil
}

// VerifyInclusion checks an inclusion proof. It is a pure function of the
// proof and depends on no ledger state, so auditors can run it offline.
func VerifyInclusion(proof *InclusionProof) bool {
	if proof == nil || len(proof.Root) == 0 || len(proof.Leaf) == 0 {
		return false
	}
	node := proof.Leaf
	for i, sibling := range proof.Siblings {
		if (proof.Index>>i)&1 == 1 {
			node = hashNode(sibling, node)
		} else {
			node = hashNode(node, sibling)
		}
	}
	return node.Equal(proof.Root)
}
