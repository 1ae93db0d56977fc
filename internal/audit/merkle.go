package audit

import "github.com/transparency-dev/merkle"

// logHasher adapts hashLeaf/hashNodes to merkle.LogHasher, so the
// window tree is built with the same RFC 6962 left-balanced shape
// github.com/transparency-dev/merkle's own log trees use, substituting
// our algebraic hash in place of its default SHA-256 leaf/node hashes.
type logHasher struct{}

func (logHasher) EmptyRoot() []byte                  { return emptyRoot() }
func (logHasher) HashLeaf(leaf []byte) []byte        { return hashLeaf(leaf) }
func (logHasher) HashChildren(l, r []byte) []byte    { return hashNodes(l, r) }
func (logHasher) Size() int                          { return len(emptyRoot()) }

var _ merkle.LogHasher = logHasher{}

var treeHasher = logHasher{}

// PathEntry is one step of a Merkle inclusion proof: the sibling hash
// at that level, and whether the sibling belongs on the left.
//
// The direction convention is fixed by
// original_source/src/audit_adapters/snark_proof.rs's test:
// is_left=true means hash_nodes(sibling, current); is_left=false means
// hash_nodes(current, sibling).
type PathEntry struct {
	Sibling []byte
	IsLeft  bool
}

// windowTree holds the leaf hashes committed to one audit window, in
// insertion order, and computes its root and per-leaf inclusion paths
// on demand (no incremental/streaming root maintenance is needed since
// a window's leaf count is bounded by spec.md's window-close policy).
type windowTree struct {
	leaves [][]byte
}

func newWindowTree() *windowTree {
	return &windowTree{}
}

func (t *windowTree) addLeaf(data []byte) int {
	t.leaves = append(t.leaves, treeHasher.HashLeaf(data))
	return len(t.leaves) - 1
}

func (t *windowTree) root() []byte {
	if len(t.leaves) == 0 {
		return treeHasher.EmptyRoot()
	}
	return subtreeHash(t.leaves)
}

// subtreeHash implements RFC 6962's left-balanced binary tree shape:
// the left subtree always holds the largest power of two of leaves
// strictly smaller than the total.
func subtreeHash(hashes [][]byte) []byte {
	n := len(hashes)
	if n == 1 {
		return hashes[0]
	}
	k := largestPowerOfTwoLessThan(n)
	return treeHasher.HashChildren(subtreeHash(hashes[:k]), subtreeHash(hashes[k:]))
}

func largestPowerOfTwoLessThan(n int) int {
	k := 1
	for k*2 < n {
		k *= 2
	}
	return k
}

// inclusionPath computes the audit path for leaf index idx, walking
// the same left-balanced recursive structure subtreeHash uses.
func (t *windowTree) inclusionPath(idx int) []PathEntry {
	var path []PathEntry
	var walk func(hashes [][]byte, idx int)
	walk = func(hashes [][]byte, idx int) {
		n := len(hashes)
		if n == 1 {
			return
		}
		k := largestPowerOfTwoLessThan(n)
		if idx < k {
			path = append(path, PathEntry{Sibling: subtreeHash(hashes[k:]), IsLeft: false})
			walk(hashes[:k], idx)
		} else {
			path = append(path, PathEntry{Sibling: subtreeHash(hashes[:k]), IsLeft: true})
			walk(hashes[k:], idx-k)
		}
	}
	walk(t.leaves, idx)
	// Reverse so the path reads leaf-to-root, matching the order
	// VerifyPath (and Prove, through it) replays it in.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// VerifyPath replays an inclusion path against a leaf hash and checks
// the result equals root.
func VerifyPath(leafHash []byte, path []PathEntry, root []byte) bool {
	current := leafHash
	for _, entry := range path {
		if entry.IsLeft {
			current = hashNodes(entry.Sibling, current)
		} else {
			current = hashNodes(current, entry.Sibling)
		}
	}
	return bytesEqual(current, root)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
