// Package namespace implements the path<->fileid bijection and depth
// index described in SPEC_FULL.md §4.3, grounded on
// original_source/src/sharesfs/mod.rs's get_path_from_id,
// get_id_from_path, create_node, get_direct_children, and
// get_nodes_in_subpath.
package namespace

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/marmos91/graymamba/internal/store"
)

// Scope identifies the community/namespace pair a namespace index
// operates under. The original implementation held this in process-wide
// mutable globals (NAMESPACE_ID/COMMUNITY); here it is an explicit,
// read-only value threaded through the handler instead.
type Scope struct {
	Community   string
	NamespaceID string
}

func (s Scope) prefix() string {
	return fmt.Sprintf("{%s}:", s.Community)
}

func (s Scope) pathToIDKey() string  { return s.prefix() + "/" + s.NamespaceID + "_path_to_id" }
func (s Scope) idToPathKey() string  { return s.prefix() + "/" + s.NamespaceID + "_id_to_path" }
func (s Scope) nodesKey() string     { return s.prefix() + "/" + s.NamespaceID + "_nodes" }
func (s Scope) nextFileIDKey() string {
	return s.prefix() + "/" + s.NamespaceID + "_next_fileid"
}

// NodeKey returns the backing-store key under which a path's own
// metadata hash lives: "{community}:/path".
func (s Scope) NodeKey(path string) string {
	return s.prefix() + path
}

// Index is the namespace index over a single Scope.
type Index struct {
	store store.Store
	scope Scope
}

// New constructs an Index bound to the given backing store and scope.
func New(st store.Store, scope Scope) *Index {
	return &Index{store: st, scope: scope}
}

// DepthScore computes the depth-index sorted-set score for path.
// Root is a special case: it scores 1.0, one below its immediate
// children (which score 2.0 under the general count('/')+1 formula),
// so the lowest-scored member of the index is always the root.
func DepthScore(path string) float64 {
	if path == "/" {
		return 1.0
	}
	return float64(strings.Count(path, "/")) + 1.0
}

// GetPathFromID resolves a fileid to its path.
func (ix *Index) GetPathFromID(ctx context.Context, id uint64) (string, error) {
	path, err := ix.store.HGet(ctx, ix.scope.idToPathKey(), strconv.FormatUint(id, 10))
	if err != nil {
		return "", err
	}
	return path, nil
}

// GetIDFromPath resolves a path to its fileid.
func (ix *Index) GetIDFromPath(ctx context.Context, path string) (uint64, error) {
	idStr, err := ix.store.HGet(ctx, ix.scope.pathToIDKey(), path)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, store.ErrOperationFailed
	}
	return id, nil
}

// Exists reports whether path is already a node in the namespace.
func (ix *Index) Exists(ctx context.Context, path string) (bool, error) {
	_, found, err := ix.store.ZScore(ctx, ix.scope.nodesKey(), path)
	if err != nil {
		return false, err
	}
	return found, nil
}

// NextFileID allocates a new monotonically increasing fileid.
func (ix *Index) NextFileID(ctx context.Context) (uint64, error) {
	v, err := ix.store.Incr(ctx, ix.scope.nextFileIDKey())
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// CreateNode registers path/id in the path<->id maps and the depth
// index. It does not write file metadata; callers in internal/vfs do
// that via the node's own metadata hash (Scope.NodeKey(path)).
func (ix *Index) CreateNode(ctx context.Context, id uint64, path string) error {
	if err := ix.store.ZAdd(ctx, ix.scope.nodesKey(), path, DepthScore(path)); err != nil {
		return err
	}
	idStr := strconv.FormatUint(id, 10)
	if err := ix.store.HSet(ctx, ix.scope.pathToIDKey(), path, idStr); err != nil {
		return err
	}
	return ix.store.HSet(ctx, ix.scope.idToPathKey(), idStr, path)
}

// RemoveNode removes path/id from the path<->id maps and the depth
// index.
func (ix *Index) RemoveNode(ctx context.Context, id uint64, path string) error {
	if err := ix.store.ZRem(ctx, ix.scope.nodesKey(), path); err != nil {
		return err
	}
	idStr := strconv.FormatUint(id, 10)
	if err := ix.store.HDel(ctx, ix.scope.pathToIDKey(), path); err != nil {
		return err
	}
	return ix.store.HDel(ctx, ix.scope.idToPathKey(), idStr)
}

// RenameNode moves a node from oldPath to newPath, keeping its fileid,
// updating the depth index score and both path maps.
func (ix *Index) RenameNode(ctx context.Context, id uint64, oldPath, newPath string) error {
	if err := ix.store.ZRem(ctx, ix.scope.nodesKey(), oldPath); err != nil {
		return err
	}
	if err := ix.store.ZAdd(ctx, ix.scope.nodesKey(), newPath, DepthScore(newPath)); err != nil {
		return err
	}
	idStr := strconv.FormatUint(id, 10)
	if err := ix.store.HDel(ctx, ix.scope.pathToIDKey(), oldPath); err != nil {
		return err
	}
	if err := ix.store.HSet(ctx, ix.scope.pathToIDKey(), newPath, idStr); err != nil {
		return err
	}
	return ix.store.HSet(ctx, ix.scope.idToPathKey(), idStr, newPath)
}

// Descendants returns every node path in the depth index rooted under
// path, at any depth, not including path itself. Used by rename to
// move a whole subtree rather than just its root node.
func (ix *Index) Descendants(ctx context.Context, path string) ([]string, error) {
	prefix := path
	if prefix == "/" {
		prefix = ""
	}
	return ix.store.ZScanMatch(ctx, ix.scope.nodesKey(), prefix+"/*")
}

// Community returns the scope's community, so callers that only hold
// an Index can still tag audit events without threading the Scope
// through separately.
func (ix *Index) Community() string {
	return ix.scope.Community
}

// nodesInSubpath returns every node whose depth score places it one
// level below subpath (i.e. candidates for "direct child of subpath").
func (ix *Index) nodesInSubpath(ctx context.Context, subpath string) ([]string, error) {
	var score float64
	if subpath == "/" {
		score = 2.0
	} else {
		score = float64(strings.Count(subpath, "/")) + 2.0
	}
	return ix.store.ZRangeByScore(ctx, ix.scope.nodesKey(), score, score)
}

func isDirectChild(node, path string) bool {
	if path == "/" {
		return strings.Count(node, "/") == 1
	}
	prefix := path + "/"
	if !strings.HasPrefix(node, prefix) {
		return false
	}
	return !strings.Contains(node[len(prefix):], "/")
}

// DirectChildren returns the fileids of path's immediate children.
func (ix *Index) DirectChildren(ctx context.Context, path string) ([]uint64, error) {
	nodes, err := ix.nodesInSubpath(ctx, path)
	if err != nil {
		return nil, err
	}
	var children []uint64
	for _, node := range nodes {
		if !isDirectChild(node, path) {
			continue
		}
		id, err := ix.GetIDFromPath(ctx, node)
		if err != nil {
			return nil, err
		}
		children = append(children, id)
	}
	return children, nil
}

// JoinChild builds the path of a child named name under parentPath.
func JoinChild(parentPath, name string) string {
	if parentPath == "/" {
		return "/" + name
	}
	return parentPath + "/" + name
}
