package columngraph

import (
	"fmt"
	"sort"

	"github.com/etylermoss/sql-bulk-import-profile/internal/apperr"
	"github.com/etylermoss/sql-bulk-import-profile/internal/dbdriver"
	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
	"github.com/etylermoss/sql-bulk-import-profile/internal/profile"
	"github.com/sirupsen/logrus"
)

const component = "columngraph"

// Graph is the column dependency DAG for one table mapper: nodes keep their
// original creation index even across duplicate-optimization removal (so
// IndexedNode.Index stays a stable handle), matching the original engine's
// use of a stable graph index.
type Graph struct {
	nodes   []*Node
	removed []bool

	out map[int]map[int]struct{}
	in  map[int]map[int]struct{}

	groups            [][]int
	uniqueIdentifiers map[int]identifier.Column
	metadata          map[int]dbdriver.ColumnMetadata
}

// IndexedNode pairs a node with the derived state callers need alongside
// it: its stable index, unique staging identifier, and attached metadata.
type IndexedNode struct {
	Index      int
	Node       *Node
	UniqueName identifier.Column
	Metadata   dbdriver.ColumnMetadata
}

// CycleError reports that the graph could not be topologically sorted; it
// names the lowest-index node left unsorted, which lies either on a cycle or
// downstream of one.
type CycleError struct {
	Column identifier.Column
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("column cycle at %s", e.Column.Full())
}

// UnknownTargetError reports a ProcessedKeyColumn naming a column_identifier
// that no Static/Parser/Lookup column in the table mapper provides.
type UnknownTargetError struct {
	Column identifier.Column
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("processed key column target not found: %s", e.Column.Full())
}

// Build constructs the column graph for one table mapper: adds a node per
// column (plus synthetic Parser/key nodes for lookup key columns), wires
// ProcessedKey edges to their resolved targets, optionally collapses
// duplicate nodes, and computes an eager topological grouping. Grounded on
// original_source/src/column_graph.rs's ColumnGraph::new.
func Build(mapper *profile.TableMapper, tableMetadata map[identifier.Table]map[identifier.Column]dbdriver.ColumnMetadata, options profile.ImportOptions, log *logrus.Logger) (*Graph, error) {
	g := &Graph{
		out: make(map[int]map[int]struct{}),
		in:  make(map[int]map[int]struct{}),
	}

	dynamic := make(map[int]bool) // synthetic Parser nodes injected for ParserKeyColumn targets

	for _, column := range mapper.Columns {
		switch {
		case column.Static != nil:
			g.addNode(&Node{Kind: StaticNode, Static: column.Static})

		case column.Parser != nil:
			g.addNode(&Node{Kind: ParserNode, Parser: column.Parser})

		case column.Lookup != nil:
			lookupIndex := g.addNode(&Node{Kind: LookupNode, Lookup: column.Lookup})

			for _, key := range column.Lookup.KeyColumns {
				switch {
				case key.ParserKeyColumn != nil:
					keyIndex := g.addNode(&Node{Kind: ParserKeyNode, ParserKey: key.ParserKeyColumn})
					g.addEdge(keyIndex, lookupIndex)

					targetIndex := g.addNode(&Node{Kind: ParserNode, Parser: &profile.ParserColumn{
						ColumnIdentifier: key.ParserKeyColumn.KeyColumnIdentifier,
						MapColumn:        false,
						FieldName:        key.ParserKeyColumn.FieldName,
					}})
					g.addEdge(targetIndex, keyIndex)
					dynamic[targetIndex] = true

				case key.ProcessedKeyColumn != nil:
					keyIndex := g.addNode(&Node{Kind: ProcessedKeyNode, ProcessedKey: key.ProcessedKeyColumn})
					g.addEdge(keyIndex, lookupIndex)
				}
			}
		}
	}

	// Second pass: wire ProcessedKey edges now that every node exists.
	for index, node := range g.nodes {
		if g.removed[index] || node.Kind != ProcessedKeyNode {
			continue
		}
		target := -1
		for candidate, other := range g.nodes {
			if g.removed[candidate] || dynamic[candidate] {
				continue
			}
			switch other.Kind {
			case StaticNode, ParserNode, LookupNode:
				if other.Identifier().Full() == node.ProcessedKey.ColumnIdentifier.Full() {
					target = candidate
				}
			}
			if target != -1 {
				break
			}
		}
		if target == -1 {
			return nil, apperr.New(apperr.CodeProcessedKeyUnknown, component, "Build", fmt.Sprintf("could not find column target for processed key column: %s", node.ProcessedKey.ColumnIdentifier.Full())).Wrap(&UnknownTargetError{Column: node.ProcessedKey.ColumnIdentifier})
		}
		g.addEdge(target, index)
	}

	if !options.NoDuplicateOptimization {
		g.collapseDuplicates(mapper.Name, log)
	}

	groups, err := g.toposortGrouped()
	if err != nil {
		return nil, err
	}
	g.groups = groups

	g.uniqueIdentifiers = g.buildUniqueIdentifiers()
	g.metadata = g.buildMetadata(tableMetadata)

	return g, nil
}

func (g *Graph) addNode(n *Node) int {
	index := len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.removed = append(g.removed, false)
	return index
}

func (g *Graph) addEdge(from, to int) {
	if g.out[from] == nil {
		g.out[from] = make(map[int]struct{})
	}
	g.out[from][to] = struct{}{}
	if g.in[to] == nil {
		g.in[to] = make(map[int]struct{})
	}
	g.in[to][from] = struct{}{}
}

// collapseDuplicates groups nodes by dedup key, keeps the first of each
// group with ≥2 members, redirects every edge touching the others onto it,
// ORs their map flags in, and marks them removed.
func (g *Graph) collapseDuplicates(mapperName string, log *logrus.Logger) {
	groupsByKey := make(map[string][]int)
	order := make([]string, 0)
	for index, node := range g.nodes {
		if g.removed[index] {
			continue
		}
		key := node.dedupKey()
		if _, seen := groupsByKey[key]; !seen {
			order = append(order, key)
		}
		groupsByKey[key] = append(groupsByKey[key], index)
	}

	mergedAny := false
	for _, key := range order {
		members := groupsByKey[key]
		if len(members) < 2 {
			continue
		}
		mergedAny = true
		first := members[0]
		for _, nth := range members[1:] {
			g.redirectEdges(nth, first)
			if g.nodes[nth].declaredMap() || g.nodes[nth].mapColumn {
				g.nodes[first].mapColumn = true
			}
			g.removed[nth] = true
		}
	}

	if mergedAny && log != nil {
		log.WithFields(logrus.Fields{"table_mapper": mapperName}).Debug("applied duplicate optimization")
	}
}

func (g *Graph) redirectEdges(from, to int) {
	for successor := range g.out[from] {
		delete(g.in[successor], from)
		g.addEdge(to, successor)
	}
	delete(g.out, from)

	for predecessor := range g.in[from] {
		delete(g.out[predecessor], from)
		g.addEdge(predecessor, to)
	}
	delete(g.in, from)
}

// toposortGrouped assigns every remaining node to the earliest group its
// dependencies allow (Kahn's algorithm by layer), matching
// ToposortGroupingStrategy::Eager.
func (g *Graph) toposortGrouped() ([][]int, error) {
	remaining := make(map[int]bool)
	indegree := make(map[int]int)
	for index := range g.nodes {
		if g.removed[index] {
			continue
		}
		remaining[index] = true
		count := 0
		for predecessor := range g.in[index] {
			if !g.removed[predecessor] {
				count++
			}
		}
		indegree[index] = count
	}

	var groups [][]int
	for len(remaining) > 0 {
		var layer []int
		for index := range remaining {
			if indegree[index] == 0 {
				layer = append(layer, index)
			}
		}
		if len(layer) == 0 {
			// Cycle: report the lowest-index remaining node for determinism.
			ids := make([]int, 0, len(remaining))
			for index := range remaining {
				ids = append(ids, index)
			}
			sort.Ints(ids)
			return nil, apperr.New(apperr.CodeColumnCycle, component, "toposortGrouped", fmt.Sprintf("column cycle at %s", g.nodes[ids[0]].Identifier().Full())).Wrap(&CycleError{Column: g.nodes[ids[0]].Identifier()})
		}
		sort.Ints(layer)
		groups = append(groups, layer)
		for _, index := range layer {
			delete(remaining, index)
			for successor := range g.out[index] {
				if remaining[successor] {
					indegree[successor]--
				}
			}
		}
	}

	return groups, nil
}

func (g *Graph) buildUniqueIdentifiers() map[int]identifier.Column {
	out := make(map[int]identifier.Column, len(g.nodes))
	for index, node := range g.nodes {
		if g.removed[index] {
			continue
		}
		uniqueName := fmt.Sprintf("%s_%d", node.Identifier().PartUnescaped(), index)
		column, err := identifier.ColumnWithTable(node.Identifier().AsTable(), uniqueName)
		if err != nil {
			// uniqueName is built from an already-valid identifier part plus
			// a numeric suffix, both drawn from the identifier rune set.
			panic(fmt.Sprintf("columngraph: unique identifier should always be valid: %v", err))
		}
		out[index] = column
	}
	return out
}

func (g *Graph) buildMetadata(tableMetadata map[identifier.Table]map[identifier.Column]dbdriver.ColumnMetadata) map[int]dbdriver.ColumnMetadata {
	out := make(map[int]dbdriver.ColumnMetadata, len(g.nodes))
	for index, node := range g.nodes {
		if g.removed[index] {
			continue
		}
		columns := tableMetadata[node.Identifier().AsTable()]
		meta, ok := columns[node.Identifier()]
		if !ok {
			meta = dbdriver.DefaultColumnMetadata
		}
		out[index] = meta
	}
	return out
}

func (g *Graph) indexed(index int) IndexedNode {
	return IndexedNode{
		Index:      index,
		Node:       g.nodes[index],
		UniqueName: g.uniqueIdentifiers[index],
		Metadata:   g.metadata[index],
	}
}

// TargetColumns returns every surviving node whose value should appear in
// the target table (IsMappable), in node-creation order.
func (g *Graph) TargetColumns() []IndexedNode {
	var out []IndexedNode
	for index, node := range g.nodes {
		if g.removed[index] || !node.IsMappable() {
			continue
		}
		out = append(out, g.indexed(index))
	}
	return out
}

// Groups returns the topological layers computed at Build time; group 0
// contains every node with no remaining dependency.
func (g *Graph) Groups() [][]IndexedNode {
	groups := make([][]IndexedNode, len(g.groups))
	for i, layer := range g.groups {
		nodes := make([]IndexedNode, len(layer))
		for j, index := range layer {
			nodes[j] = g.indexed(index)
		}
		groups[i] = nodes
	}
	return groups
}

// ColumnDependencies returns the nodes with an edge into index — its
// incoming neighbors.
func (g *Graph) ColumnDependencies(index int) []IndexedNode {
	predecessors := make([]int, 0, len(g.in[index]))
	for predecessor := range g.in[index] {
		predecessors = append(predecessors, predecessor)
	}
	sort.Ints(predecessors)

	out := make([]IndexedNode, len(predecessors))
	for i, predecessor := range predecessors {
		out[i] = g.indexed(predecessor)
	}
	return out
}

// NonTransientColumns returns every surviving node that is not transient,
// in node-creation order — the staging table's column set (C5).
func (g *Graph) NonTransientColumns() []IndexedNode {
	var out []IndexedNode
	for index, node := range g.nodes {
		if g.removed[index] || node.IsTransient() {
			continue
		}
		out = append(out, g.indexed(index))
	}
	return out
}

// GroupIndexOf returns which topological group index belongs to, or -1 if
// index is not a surviving node.
func (g *Graph) GroupIndexOf(index int) int {
	for groupIndex, layer := range g.groups {
		for _, candidate := range layer {
			if candidate == index {
				return groupIndex
			}
		}
	}
	return -1
}
