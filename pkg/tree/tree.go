// Package tree reassembles flat record lists into nested display trees.
package tree

import (
	"sort"
	"strings"

	"github.com/driftpad/driftpad/pkg/models"
)

// Build converts a flat record list into a sorted hierarchy of nodes.
//
// Every record becomes a fresh node; a record whose ParentID is empty or
// references an ID absent from the input is promoted to a root. Children
// of every node (and the roots themselves) are ordered folders first, then
// case-insensitively by name. Build is pure: running it twice on the same
// input yields structurally identical trees, and the returned nodes share
// no state with any previous build.
func Build(records []models.Record) []*models.Node {
	index := make(map[string]*models.Node, len(records))
	for i := range records {
		index[records[i].ID] = &models.Node{Record: records[i]}
	}

	var roots []*models.Node
	for i := range records {
		node := index[records[i].ID]
		parent, ok := index[records[i].ParentID]
		if !ok || parent == node {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	sortNodes(roots)
	for _, n := range index {
		sortNodes(n.Children)
	}
	return roots
}

// sortNodes orders siblings folders-first, then by case-insensitive name.
// Equal lowercase names fall back to a case-sensitive comparison so the
// order is deterministic.
func sortNodes(nodes []*models.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})
}

// FindByID finds a node by record ID (recursive).
func FindByID(roots []*models.Node, id string) *models.Node {
	for _, root := range roots {
		if found := findByID(root, id); found != nil {
			return found
		}
	}
	return nil
}

func findByID(node *models.Node, id string) *models.Node {
	if node == nil {
		return nil
	}
	if node.ID == id {
		return node
	}
	for _, child := range node.Children {
		if found := findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

// FindByPath resolves a path in the tree (recursive).
func FindByPath(roots []*models.Node, path string) *models.Node {
	for _, root := range roots {
		if found := findByPath(root, path); found != nil {
			return found
		}
	}
	return nil
}

func findByPath(node *models.Node, path string) *models.Node {
	if node == nil {
		return nil
	}
	if node.Path == path {
		return node
	}
	for _, child := range node.Children {
		if found := findByPath(child, path); found != nil {
			return found
		}
	}
	return nil
}

// Flatten returns all nodes in a flat map keyed by ID.
func Flatten(roots []*models.Node) map[string]*models.Node {
	result := make(map[string]*models.Node)
	for _, root := range roots {
		flattenRecursive(root, result)
	}
	return result
}

func flattenRecursive(node *models.Node, result map[string]*models.Node) {
	result[node.ID] = node
	for _, child := range node.Children {
		flattenRecursive(child, result)
	}
}

// CountNodes counts all nodes in the tree.
func CountNodes(roots []*models.Node) int {
	count := 0
	for _, root := range roots {
		count += countNodes(root)
	}
	return count
}

func countNodes(node *models.Node) int {
	if node == nil {
		return 0
	}
	count := 1
	for _, child := range node.Children {
		count += countNodes(child)
	}
	return count
}

// Depth returns indentation depths keyed by node ID, roots at depth 0.
// Renderers use it to indent rows without walking the tree themselves.
func Depth(roots []*models.Node) map[string]int {
	depths := make(map[string]int)
	for _, root := range roots {
		walkDepth(root, 0, depths)
	}
	return depths
}

func walkDepth(node *models.Node, depth int, depths map[string]int) {
	depths[node.ID] = depth
	for _, child := range node.Children {
		walkDepth(child, depth+1, depths)
	}
}

// BuildChildPath constructs a child path from parent + name.
func BuildChildPath(parentPath, name string) string {
	if parentPath == "" || parentPath == "/" {
		return "/" + name
	}
	return parentPath + "/" + name
}
