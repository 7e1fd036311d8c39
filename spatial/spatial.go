// Package spatial is the spatial/symbol hierarchy index (C4): a directory
// and code-symbol graph that answers "which events happened near this
// file/function?" queries via breadth-first neighborhood search.
package spatial

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cogmem/cogmem/store"
	"github.com/cogmem/cogmem/types"
)

// Index is the spatial hierarchy index.
type Index struct {
	kernel *store.Kernel
	logger *zap.Logger
}

// New constructs a spatial Index over the given store kernel.
func New(kernel *store.Kernel, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{kernel: kernel, logger: logger.With(zap.String("component", "spatial"))}
}

// BuildHierarchy produces the ordered sequence of nodes at depths 0..n for
// an absolute path, with parent_path linkage. The terminal node is a file
// if its name contains a ".", else a directory.
func BuildHierarchy(projectID, absPath string) []store.SpatialNode {
	segments := splitPath(absPath)
	if len(segments) == 0 {
		return nil
	}

	nodes := make([]store.SpatialNode, 0, len(segments))
	var parent string
	var cur string
	for depth, seg := range segments {
		if cur == "" {
			cur = seg
		} else {
			cur = cur + "/" + seg
		}

		nodeType := "directory"
		if depth == len(segments)-1 && strings.Contains(seg, ".") {
			nodeType = "file"
		}

		node := store.SpatialNode{
			ProjectID: projectID,
			FullPath:  cur,
			Name:      seg,
			Depth:     depth,
			NodeType:  nodeType,
			CreatedAt: time.Time{},
		}
		if depth > 0 {
			node.ParentPath = parent
		}
		nodes = append(nodes, node)
		parent = cur
	}
	return nodes
}

// BuildSymbolNode constructs the node for a code symbol, keyed
// `<file_path>:<symbol_name>` per spec.md §4.2.
func BuildSymbolNode(projectID, filePath, symbolName, language, symbolKind string, depth int) store.SpatialNode {
	return store.SpatialNode{
		ProjectID:  projectID,
		FullPath:   filePath + ":" + symbolName,
		Name:       symbolName,
		Depth:      depth,
		ParentPath: filePath,
		NodeType:   symbolKind,
		Language:   language,
		SymbolKind: symbolKind,
	}
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// ExtractRelations emits contains(parent -> child) at strength 1.0 and
// sibling(a -> b) at strength 0.8 for a set of nodes co-occurring in one
// ingest. Duplicates are left to Ingest's upsert, which ignores conflicts
// on the natural key.
func ExtractRelations(projectID string, nodes []store.SpatialNode) []store.SpatialRelation {
	var relations []store.SpatialRelation

	byParent := make(map[string][]store.SpatialNode)
	for _, n := range nodes {
		if n.ParentPath != "" {
			relations = append(relations, store.SpatialRelation{
				ProjectID: projectID, FromPath: n.ParentPath, ToPath: n.FullPath,
				RelationType: "contains", Strength: 1.0,
			})
			byParent[n.ParentPath] = append(byParent[n.ParentPath], n)
		}
	}

	for _, siblings := range byParent {
		for i := 0; i < len(siblings); i++ {
			for j := i + 1; j < len(siblings); j++ {
				relations = append(relations,
					store.SpatialRelation{
						ProjectID: projectID, FromPath: siblings[i].FullPath, ToPath: siblings[j].FullPath,
						RelationType: "sibling", Strength: 0.8,
					},
					store.SpatialRelation{
						ProjectID: projectID, FromPath: siblings[j].FullPath, ToPath: siblings[i].FullPath,
						RelationType: "sibling", Strength: 0.8,
					},
				)
			}
		}
	}
	return relations
}

// Ingest builds and batch-upserts the hierarchy and relations for a set of
// paths in one transaction, deduplicating within the batch.
func (idx *Index) Ingest(ctx context.Context, projectID string, paths []string) error {
	nodeSet := make(map[string]store.SpatialNode)
	for _, p := range paths {
		for _, n := range BuildHierarchy(projectID, p) {
			nodeSet[n.FullPath] = n
		}
	}
	nodes := make([]store.SpatialNode, 0, len(nodeSet))
	for _, n := range nodeSet {
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return nil
	}

	relSet := make(map[string]store.SpatialRelation)
	for _, r := range ExtractRelations(projectID, nodes) {
		relSet[r.FromPath+"|"+r.ToPath+"|"+r.RelationType] = r
	}
	relations := make([]store.SpatialRelation, 0, len(relSet))
	for _, r := range relSet {
		relations = append(relations, r)
	}

	return idx.kernel.WithProjectTx(ctx, projectID, func(tx *gorm.DB) error {
		nodeCols := []clause.Column{{Name: "project_id"}, {Name: "full_path"}}
		if err := tx.Clauses(clause.OnConflict{Columns: nodeCols, DoNothing: true}).Create(&nodes).Error; err != nil {
			return err
		}
		if len(relations) > 0 {
			relCols := []clause.Column{{Name: "project_id"}, {Name: "from_path"}, {Name: "to_path"}, {Name: "relation_type"}}
			if err := tx.Clauses(clause.OnConflict{Columns: relCols, DoNothing: true}).Create(&relations).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Distance is the fallback metric used when relations aren't yet indexed:
// (depth1 - common) + (depth2 - common), where common is the length of the
// longest shared path-component prefix.
func Distance(p1, p2 string) int {
	s1, s2 := splitPath(p1), splitPath(p2)
	common := 0
	for common < len(s1) && common < len(s2) && s1[common] == s2[common] {
		common++
	}
	return (len(s1) - common) + (len(s2) - common)
}

// Neighbors performs a breadth-first search over spatial_relations in both
// directions, returning distinct paths reached within maxDepth hops,
// excluding the center.
func (idx *Index) Neighbors(ctx context.Context, projectID, centerPath string, maxDepth int) ([]string, error) {
	if maxDepth <= 0 {
		return nil, nil
	}

	var relations []store.SpatialRelation
	if err := idx.kernel.DB().WithContext(ctx).
		Where("project_id = ?", projectID).
		Find(&relations).Error; err != nil {
		return nil, types.NewError(types.ErrStoreError, "load spatial relations").WithCause(err)
	}

	adjacency := make(map[string][]string)
	for _, r := range relations {
		adjacency[r.FromPath] = append(adjacency[r.FromPath], r.ToPath)
		adjacency[r.ToPath] = append(adjacency[r.ToPath], r.FromPath)
	}

	visited := map[string]bool{centerPath: true}
	frontier := []string{centerPath}
	var result []string

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, node := range frontier {
			for _, neighbor := range adjacency[node] {
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				result = append(result, neighbor)
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return result, nil
}
